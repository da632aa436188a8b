package sqlite

import (
	"context"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/Togather-Foundation/gatherings/internal/domain/rsvps"
)

var _ rsvps.Repository = (*RSVPRepository)(nil)

type RSVPRepository struct {
	store *Store
}

const rsvpColumns = `event_id, user_id, status, created_at, updated_at`

func scanRSVP(row rowScanner) (rsvps.RSVP, error) {
	var (
		rsvp                 rsvps.RSVP
		status               string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&rsvp.EventID, &rsvp.UserID, &status, &createdAt, &updatedAt); err != nil {
		return rsvps.RSVP{}, err
	}
	rsvp.Status = rsvps.Status(status)
	rsvp.CreatedAt = fromMillis(createdAt)
	rsvp.UpdatedAt = fromMillis(updatedAt)
	return rsvp, nil
}

// UpsertRSVP inserts or updates inside one transaction. The insert is tried
// first so created reflects whether this call produced the record.
func (r *RSVPRepository) UpsertRSVP(ctx context.Context, key rsvps.Key, status rsvps.Status, at time.Time) (rsvp rsvps.RSVP, created bool, err error) {
	defer observe("upsert_rsvp", time.Now(), &err)

	millis := toMillis(at)
	err = r.store.inTx(ctx, func(q dbtx) error {
		res, err := q.ExecContext(ctx, `
INSERT INTO rsvps (event_id, user_id, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (event_id, user_id) DO NOTHING`,
			key.EventID, key.UserID, string(status), millis, millis,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		created = n == 1
		if !created {
			if _, err := q.ExecContext(ctx,
				`UPDATE rsvps SET status = ?, updated_at = ? WHERE event_id = ? AND user_id = ?`,
				string(status), millis, key.EventID, key.UserID,
			); err != nil {
				return err
			}
		}
		rsvp, err = scanRSVP(q.QueryRowContext(ctx,
			`SELECT `+rsvpColumns+` FROM rsvps WHERE event_id = ? AND user_id = ?`, key.EventID, key.UserID))
		return err
	})
	if err != nil {
		return rsvps.RSVP{}, false, classify("upsert rsvp", err)
	}
	return rsvp, created, nil
}

func (r *RSVPRepository) GetRSVP(ctx context.Context, key rsvps.Key) (rsvp *rsvps.RSVP, err error) {
	defer observe("get_rsvp", time.Now(), &err)

	out, err := scanRSVP(r.store.conn().QueryRowContext(ctx,
		`SELECT `+rsvpColumns+` FROM rsvps WHERE event_id = ? AND user_id = ?`, key.EventID, key.UserID))
	if err != nil {
		return nil, classify("get rsvp", err)
	}
	return &out, nil
}

func (r *RSVPRepository) ListRSVPsByEvent(ctx context.Context, eventID string) (items []rsvps.RSVP, err error) {
	defer observe("list_rsvps_by_event", time.Now(), &err)

	return r.list(ctx, `
SELECT `+rsvpColumns+`
  FROM rsvps
 WHERE event_id = ?1
 ORDER BY created_at ASC, user_id ASC`, eventID)
}

func (r *RSVPRepository) ListRSVPsByUser(ctx context.Context, userID string) (items []rsvps.RSVP, err error) {
	defer observe("list_rsvps_by_user", time.Now(), &err)

	return r.list(ctx, `
SELECT `+rsvpColumns+`
  FROM rsvps
 WHERE (?1 = '' OR user_id = ?1)
 ORDER BY updated_at DESC, event_id DESC`, userID)
}

func (r *RSVPRepository) CountRSVPs(ctx context.Context, eventID string, status rsvps.Status) (count int, err error) {
	defer observe("count_rsvps", time.Now(), &err)

	err = r.store.conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rsvps WHERE event_id = ? AND status = ?`, eventID, string(status),
	).Scan(&count)
	if err != nil {
		return 0, classify("count rsvps", err)
	}
	return count, nil
}

func (r *RSVPRepository) DeleteRSVP(ctx context.Context, key rsvps.Key) (err error) {
	defer observe("delete_rsvp", time.Now(), &err)

	res, err := r.store.conn().ExecContext(ctx, `DELETE FROM rsvps WHERE event_id = ? AND user_id = ?`, key.EventID, key.UserID)
	if err != nil {
		return classify("delete rsvp", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify("delete rsvp", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *RSVPRepository) list(ctx context.Context, query string, arg string) ([]rsvps.RSVP, error) {
	rows, err := r.store.conn().QueryContext(ctx, query, arg)
	if err != nil {
		return nil, classify("list rsvps", err)
	}
	defer rows.Close()

	items := []rsvps.RSVP{}
	for rows.Next() {
		rsvp, err := scanRSVP(rows)
		if err != nil {
			return nil, classify("scan rsvps", err)
		}
		items = append(items, rsvp)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate rsvps", err)
	}
	return items, nil
}
