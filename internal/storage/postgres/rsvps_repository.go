package postgres

import (
	"context"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/Togather-Foundation/gatherings/internal/domain/rsvps"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ rsvps.Repository = (*RSVPRepository)(nil)

type RSVPRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

type rsvpRow struct {
	EventID   string
	UserID    string
	Status    string
	CreatedAt pgtype.Timestamptz
	UpdatedAt pgtype.Timestamptz
}

func (row rsvpRow) toDomain() rsvps.RSVP {
	return rsvps.RSVP{
		EventID:   row.EventID,
		UserID:    row.UserID,
		Status:    rsvps.Status(row.Status),
		CreatedAt: row.CreatedAt.Time.UTC(),
		UpdatedAt: row.UpdatedAt.Time.UTC(),
	}
}

// UpsertRSVP is a single INSERT .. ON CONFLICT statement, so concurrent calls
// for one key serialize on the primary key. xmax is zero only for the row
// version this statement inserted.
func (r *RSVPRepository) UpsertRSVP(ctx context.Context, key rsvps.Key, status rsvps.Status, at time.Time) (rsvp rsvps.RSVP, created bool, err error) {
	defer observe("upsert_rsvp", time.Now(), &err)

	var row rsvpRow
	err = r.queryer().QueryRow(ctx, `
INSERT INTO rsvps (event_id, user_id, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)
ON CONFLICT (event_id, user_id)
DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
RETURNING event_id, user_id, status, created_at, updated_at, (xmax = 0) AS inserted`,
		key.EventID, key.UserID, string(status), at.UTC(),
	).Scan(&row.EventID, &row.UserID, &row.Status, &row.CreatedAt, &row.UpdatedAt, &created)
	if err != nil {
		return rsvps.RSVP{}, false, classify("upsert rsvp", err)
	}
	return row.toDomain(), created, nil
}

func (r *RSVPRepository) GetRSVP(ctx context.Context, key rsvps.Key) (rsvp *rsvps.RSVP, err error) {
	defer observe("get_rsvp", time.Now(), &err)

	var row rsvpRow
	err = r.queryer().QueryRow(ctx, `
SELECT event_id, user_id, status, created_at, updated_at
  FROM rsvps
 WHERE event_id = $1 AND user_id = $2`, key.EventID, key.UserID,
	).Scan(&row.EventID, &row.UserID, &row.Status, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return nil, classify("get rsvp", err)
	}
	out := row.toDomain()
	return &out, nil
}

func (r *RSVPRepository) ListRSVPsByEvent(ctx context.Context, eventID string) (items []rsvps.RSVP, err error) {
	defer observe("list_rsvps_by_event", time.Now(), &err)

	return r.list(ctx, `
SELECT event_id, user_id, status, created_at, updated_at
  FROM rsvps
 WHERE event_id = $1
 ORDER BY created_at ASC, user_id ASC`, eventID)
}

func (r *RSVPRepository) ListRSVPsByUser(ctx context.Context, userID string) (items []rsvps.RSVP, err error) {
	defer observe("list_rsvps_by_user", time.Now(), &err)

	return r.list(ctx, `
SELECT event_id, user_id, status, created_at, updated_at
  FROM rsvps
 WHERE ($1::text = '' OR user_id = $1::text)
 ORDER BY updated_at DESC, event_id DESC`, userID)
}

func (r *RSVPRepository) CountRSVPs(ctx context.Context, eventID string, status rsvps.Status) (count int, err error) {
	defer observe("count_rsvps", time.Now(), &err)

	err = r.queryer().QueryRow(ctx,
		`SELECT COUNT(*) FROM rsvps WHERE event_id = $1 AND status = $2`, eventID, string(status),
	).Scan(&count)
	if err != nil {
		return 0, classify("count rsvps", err)
	}
	return count, nil
}

func (r *RSVPRepository) DeleteRSVP(ctx context.Context, key rsvps.Key) (err error) {
	defer observe("delete_rsvp", time.Now(), &err)

	tag, err := r.queryer().Exec(ctx, `DELETE FROM rsvps WHERE event_id = $1 AND user_id = $2`, key.EventID, key.UserID)
	if err != nil {
		return classify("delete rsvp", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *RSVPRepository) list(ctx context.Context, sql string, arg string) ([]rsvps.RSVP, error) {
	rows, err := r.queryer().Query(ctx, sql, arg)
	if err != nil {
		return nil, classify("list rsvps", err)
	}
	defer rows.Close()

	items := []rsvps.RSVP{}
	for rows.Next() {
		var row rsvpRow
		if err := rows.Scan(&row.EventID, &row.UserID, &row.Status, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, classify("scan rsvps", err)
		}
		items = append(items, row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate rsvps", err)
	}
	return items, nil
}

func (r *RSVPRepository) queryer() queryer {
	return pick(r.pool, r.tx)
}
