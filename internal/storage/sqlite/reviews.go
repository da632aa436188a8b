package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/api/pagination"
	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/Togather-Foundation/gatherings/internal/domain/reviews"
)

var _ reviews.Repository = (*ReviewRepository)(nil)

type ReviewRepository struct {
	store *Store
}

const reviewColumns = `event_id, user_id, rating, comment, created_at, updated_at`

func scanReview(row rowScanner) (reviews.Review, error) {
	var (
		review               reviews.Review
		createdAt, updatedAt int64
	)
	if err := row.Scan(&review.EventID, &review.UserID, &review.Rating, &review.Comment, &createdAt, &updatedAt); err != nil {
		return reviews.Review{}, err
	}
	review.CreatedAt = fromMillis(createdAt)
	review.UpdatedAt = fromMillis(updatedAt)
	return review, nil
}

func getReview(ctx context.Context, q dbtx, key reviews.Key) (reviews.Review, error) {
	return scanReview(q.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE event_id = ? AND user_id = ?`, key.EventID, key.UserID))
}

// InsertReviewIfAbsent never overwrites: a taken key leaves zero rows
// affected and reports ErrAlreadyExists.
func (r *ReviewRepository) InsertReviewIfAbsent(ctx context.Context, review reviews.Review) (out reviews.Review, err error) {
	defer observe("insert_review", time.Now(), &err)

	err = r.store.inTx(ctx, func(q dbtx) error {
		res, err := q.ExecContext(ctx, `
INSERT INTO reviews (event_id, user_id, rating, comment, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (event_id, user_id) DO NOTHING`,
			review.EventID,
			review.UserID,
			review.Rating,
			review.Comment,
			toMillis(review.CreatedAt),
			toMillis(review.UpdatedAt),
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.ErrAlreadyExists
		}
		out, err = getReview(ctx, q, review.Key())
		return err
	})
	if err != nil {
		return reviews.Review{}, classify("insert review", err)
	}
	return out, nil
}

func (r *ReviewRepository) GetReview(ctx context.Context, key reviews.Key) (review *reviews.Review, err error) {
	defer observe("get_review", time.Now(), &err)

	out, err := getReview(ctx, r.store.conn(), key)
	if err != nil {
		return nil, classify("get review", err)
	}
	return &out, nil
}

func (r *ReviewRepository) ListReviewsByEvent(ctx context.Context, eventID string, page reviews.Pagination) (result reviews.ListResult, err error) {
	defer observe("list_reviews", time.Now(), &err)

	var cursorMillis *int64
	var cursorUser string
	if strings.TrimSpace(page.After) != "" {
		cursor, err := pagination.DecodeKeyCursor(page.After)
		if err != nil {
			return reviews.ListResult{}, apperr.Invalid("after", "must be a cursor returned by a previous page")
		}
		value := toMillis(cursor.Timestamp)
		cursorMillis = &value
		cursorUser = cursor.Key
	}

	limit := page.Limit
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.store.conn().QueryContext(ctx, `
SELECT `+reviewColumns+`
  FROM reviews
 WHERE event_id = ?1
   AND (?2 IS NULL OR created_at < ?2 OR (created_at = ?2 AND user_id < ?3))
 ORDER BY created_at DESC, user_id DESC
 LIMIT ?4`, eventID, cursorMillis, cursorUser, limit+1)
	if err != nil {
		return reviews.ListResult{}, classify("list reviews", err)
	}
	defer rows.Close()

	items := make([]reviews.Review, 0, limit+1)
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return reviews.ListResult{}, classify("scan reviews", err)
		}
		items = append(items, review)
	}
	if err := rows.Err(); err != nil {
		return reviews.ListResult{}, classify("iterate reviews", err)
	}

	if len(items) > limit {
		items = items[:limit]
		last := items[len(items)-1]
		result.NextCursor = pagination.EncodeKeyCursor(last.CreatedAt, last.UserID)
	}
	result.Reviews = items
	return result, nil
}

func (r *ReviewRepository) AverageRating(ctx context.Context, eventID string) (avg *float64, count int, err error) {
	defer observe("average_rating", time.Now(), &err)

	var mean sql.NullFloat64
	err = r.store.conn().QueryRowContext(ctx,
		`SELECT AVG(rating), COUNT(*) FROM reviews WHERE event_id = ?`, eventID,
	).Scan(&mean, &count)
	if err != nil {
		return nil, 0, classify("average rating", err)
	}
	if mean.Valid {
		avg = &mean.Float64
	}
	return avg, count, nil
}

func (r *ReviewRepository) UpdateReview(ctx context.Context, key reviews.Key, rating int, comment string, at time.Time) (review *reviews.Review, err error) {
	defer observe("update_review", time.Now(), &err)

	var out reviews.Review
	err = r.store.inTx(ctx, func(q dbtx) error {
		res, err := q.ExecContext(ctx,
			`UPDATE reviews SET rating = ?, comment = ?, updated_at = ? WHERE event_id = ? AND user_id = ?`,
			rating, comment, toMillis(at), key.EventID, key.UserID,
		)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return apperr.ErrNotFound
		}
		out, err = getReview(ctx, q, key)
		return err
	})
	if err != nil {
		return nil, classify("update review", err)
	}
	return &out, nil
}

func (r *ReviewRepository) DeleteReview(ctx context.Context, key reviews.Key) (err error) {
	defer observe("delete_review", time.Now(), &err)

	res, err := r.store.conn().ExecContext(ctx, `DELETE FROM reviews WHERE event_id = ? AND user_id = ?`, key.EventID, key.UserID)
	if err != nil {
		return classify("delete review", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify("delete review", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
