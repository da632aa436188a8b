package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/api/pagination"
	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/Togather-Foundation/gatherings/internal/domain/reviews"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ reviews.Repository = (*ReviewRepository)(nil)

type ReviewRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

const reviewColumns = `event_id, user_id, rating, comment, created_at, updated_at`

type reviewRow struct {
	EventID   string
	UserID    string
	Rating    int16
	Comment   string
	CreatedAt pgtype.Timestamptz
	UpdatedAt pgtype.Timestamptz
}

func scanReview(row pgx.Row) (reviews.Review, error) {
	var data reviewRow
	if err := row.Scan(&data.EventID, &data.UserID, &data.Rating, &data.Comment, &data.CreatedAt, &data.UpdatedAt); err != nil {
		return reviews.Review{}, err
	}
	return reviews.Review{
		EventID:   data.EventID,
		UserID:    data.UserID,
		Rating:    int(data.Rating),
		Comment:   data.Comment,
		CreatedAt: data.CreatedAt.Time.UTC(),
		UpdatedAt: data.UpdatedAt.Time.UTC(),
	}, nil
}

// InsertReviewIfAbsent relies on ON CONFLICT DO NOTHING: when the key is
// taken no row is returned and the existing review is left untouched.
func (r *ReviewRepository) InsertReviewIfAbsent(ctx context.Context, review reviews.Review) (out reviews.Review, err error) {
	defer observe("insert_review", time.Now(), &err)

	row := r.queryer().QueryRow(ctx, `
INSERT INTO reviews (event_id, user_id, rating, comment, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (event_id, user_id) DO NOTHING
RETURNING `+reviewColumns,
		review.EventID,
		review.UserID,
		review.Rating,
		review.Comment,
		review.CreatedAt.UTC(),
		review.UpdatedAt.UTC(),
	)
	out, err = scanReview(row)
	if err != nil {
		return reviews.Review{}, insertIfAbsentError("insert review", err)
	}
	return out, nil
}

// insertIfAbsentError maps an empty RETURNING set to ErrAlreadyExists.
func insertIfAbsentError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.ErrAlreadyExists
	}
	return classify(op, err)
}

func (r *ReviewRepository) GetReview(ctx context.Context, key reviews.Key) (review *reviews.Review, err error) {
	defer observe("get_review", time.Now(), &err)

	out, err := scanReview(r.queryer().QueryRow(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE event_id = $1 AND user_id = $2`, key.EventID, key.UserID))
	if err != nil {
		return nil, classify("get review", err)
	}
	return &out, nil
}

func (r *ReviewRepository) ListReviewsByEvent(ctx context.Context, eventID string, page reviews.Pagination) (result reviews.ListResult, err error) {
	defer observe("list_reviews", time.Now(), &err)

	var cursorTimestamp *time.Time
	var cursorUser string
	if strings.TrimSpace(page.After) != "" {
		cursor, err := pagination.DecodeKeyCursor(page.After)
		if err != nil {
			return reviews.ListResult{}, apperr.Invalid("after", "must be a cursor returned by a previous page")
		}
		value := cursor.Timestamp
		cursorTimestamp = &value
		cursorUser = cursor.Key
	}

	limit := page.Limit
	if limit <= 0 {
		limit = 10
	}
	limitPlusOne := limit + 1

	rows, err := r.queryer().Query(ctx, `
SELECT `+reviewColumns+`
  FROM reviews
 WHERE event_id = $1
   AND (
     $2::timestamptz IS NULL OR
     created_at < $2::timestamptz OR
     (created_at = $2::timestamptz AND user_id < $3::text)
   )
 ORDER BY created_at DESC, user_id DESC
 LIMIT $4`, eventID, cursorTimestamp, cursorUser, limitPlusOne)
	if err != nil {
		return reviews.ListResult{}, classify("list reviews", err)
	}
	defer rows.Close()

	items := make([]reviews.Review, 0, limitPlusOne)
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

// AverageRating aggregates in the database. AVG yields NULL for an empty set.
func (r *ReviewRepository) AverageRating(ctx context.Context, eventID string) (avg *float64, count int, err error) {
	defer observe("average_rating", time.Now(), &err)

	err = r.queryer().QueryRow(ctx,
		`SELECT AVG(rating)::float8, COUNT(*) FROM reviews WHERE event_id = $1`, eventID,
	).Scan(&avg, &count)
	if err != nil {
		return nil, 0, classify("average rating", err)
	}
	return avg, count, nil
}

func (r *ReviewRepository) UpdateReview(ctx context.Context, key reviews.Key, rating int, comment string, at time.Time) (review *reviews.Review, err error) {
	defer observe("update_review", time.Now(), &err)

	out, err := scanReview(r.queryer().QueryRow(ctx, `
UPDATE reviews
   SET rating = $3, comment = $4, updated_at = $5
 WHERE event_id = $1 AND user_id = $2
RETURNING `+reviewColumns, key.EventID, key.UserID, rating, comment, at.UTC()))
	if err != nil {
		return nil, classify("update review", err)
	}
	return &out, nil
}

func (r *ReviewRepository) DeleteReview(ctx context.Context, key reviews.Key) (err error) {
	defer observe("delete_review", time.Now(), &err)

	tag, err := r.queryer().Exec(ctx, `DELETE FROM reviews WHERE event_id = $1 AND user_id = $2`, key.EventID, key.UserID)
	if err != nil {
		return classify("delete review", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *ReviewRepository) queryer() queryer {
	return pick(r.pool, r.tx)
}
