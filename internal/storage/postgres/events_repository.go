package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/api/pagination"
	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/Togather-Foundation/gatherings/internal/domain/events"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ events.Repository = (*EventRepository)(nil)

type EventRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

const eventColumns = `
e.id, e.organizer_id, e.title, e.description, e.location, e.start_time, e.end_time,
e.is_public, e.created_at, e.updated_at,
ARRAY(SELECT i.user_id FROM event_invitees i WHERE i.event_id = e.id ORDER BY i.user_id) AS invitees`

type eventRow struct {
	ID          string
	OrganizerID string
	Title       string
	Description string
	Location    string
	StartTime   pgtype.Timestamptz
	EndTime     pgtype.Timestamptz
	IsPublic    bool
	CreatedAt   pgtype.Timestamptz
	UpdatedAt   pgtype.Timestamptz
	Invitees    []string
}

func scanEvent(row pgx.Row) (*events.Event, error) {
	var data eventRow
	if err := row.Scan(
		&data.ID,
		&data.OrganizerID,
		&data.Title,
		&data.Description,
		&data.Location,
		&data.StartTime,
		&data.EndTime,
		&data.IsPublic,
		&data.CreatedAt,
		&data.UpdatedAt,
		&data.Invitees,
	); err != nil {
		return nil, err
	}
	event := &events.Event{
		ID:             data.ID,
		OrganizerID:    data.OrganizerID,
		Title:          data.Title,
		Description:    data.Description,
		Location:       data.Location,
		IsPublic:       data.IsPublic,
		InvitedUserIDs: data.Invitees,
	}
	if data.StartTime.Valid {
		event.StartTime = data.StartTime.Time.UTC()
	}
	if data.EndTime.Valid {
		event.EndTime = data.EndTime.Time.UTC()
	}
	if data.CreatedAt.Valid {
		event.CreatedAt = data.CreatedAt.Time.UTC()
	}
	if data.UpdatedAt.Valid {
		event.UpdatedAt = data.UpdatedAt.Time.UTC()
	}
	return event, nil
}

func (r *EventRepository) GetEvent(ctx context.Context, id string) (event *events.Event, err error) {
	defer observe("get_event", time.Now(), &err)

	row := r.queryer().QueryRow(ctx, `SELECT `+eventColumns+` FROM events e WHERE e.id = $1`, id)
	event, err = scanEvent(row)
	if err != nil {
		return nil, classify("get event", err)
	}
	return event, nil
}

// ListEvents pages events newest first. The visibility scope is applied in
// SQL as public OR organized-by OR invited; EXISTS keeps each event once.
func (r *EventRepository) ListEvents(ctx context.Context, scope events.Scope, filters events.Filters, page events.Pagination) (result events.ListResult, err error) {
	defer observe("list_events", time.Now(), &err)

	var cursorTimestamp *time.Time
	var cursorULID string
	if strings.TrimSpace(page.After) != "" {
		cursor, err := pagination.DecodeEventCursor(page.After)
		if err != nil {
			return events.ListResult{}, apperr.Invalid("after", "must be a cursor returned by a previous page")
		}
		value := cursor.Timestamp.UTC()
		cursorTimestamp = &value
		cursorULID = cursor.ULID
	}

	limit := page.Limit
	if limit <= 0 {
		limit = 10
	}
	limitPlusOne := limit + 1

	var query, location string
	if filters.Query != "" {
		query = escapeLike(filters.Query)
	}
	if filters.Location != "" {
		location = escapeLike(filters.Location)
	}

	rows, err := r.queryer().Query(ctx, `
SELECT `+eventColumns+`
  FROM events e
 WHERE ($1::boolean
        OR e.is_public
        OR ($2::text <> '' AND (
              e.organizer_id = $2::text
              OR EXISTS (SELECT 1 FROM event_invitees vi WHERE vi.event_id = e.id AND vi.user_id = $2::text))))
   AND ($3::text = '' OR e.title ILIKE '%' || $3::text || '%' OR e.description ILIKE '%' || $3::text || '%')
   AND ($4::text = '' OR e.location ILIKE '%' || $4::text || '%')
   AND ($5::text = '' OR e.organizer_id = $5::text)
   AND ($6::boolean IS NULL OR e.is_public = $6::boolean)
   AND (
     $7::timestamptz IS NULL OR
     e.start_time < $7::timestamptz OR
     (e.start_time = $7::timestamptz AND e.id < $8::text)
   )
 ORDER BY e.start_time DESC, e.id DESC
 LIMIT $9
`,
		scope.All,
		scope.ViewerID,
		query,
		location,
		filters.OrganizerID,
		filters.IsPublic,
		cursorTimestamp,
		cursorULID,
		limitPlusOne,
	)
	if err != nil {
		return events.ListResult{}, classify("list events", err)
	}
	defer rows.Close()

	items := make([]events.Event, 0, limitPlusOne)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return events.ListResult{}, classify("scan events", err)
		}
		items = append(items, *event)
	}
	if err := rows.Err(); err != nil {
		return events.ListResult{}, classify("iterate events", err)
	}

	if len(items) > limit {
		items = items[:limit]
		last := items[len(items)-1]
		result.NextCursor = pagination.EncodeEventCursor(last.StartTime, last.ID)
	}
	result.Events = items
	return result, nil
}

func (r *EventRepository) CreateEvent(ctx context.Context, params events.CreateParams) (event *events.Event, err error) {
	defer observe("create_event", time.Now(), &err)

	err = pgx.BeginFunc(ctx, r.beginner(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
INSERT INTO events (id, organizer_id, title, description, location, start_time, end_time, is_public)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			params.ID,
			params.OrganizerID,
			params.Title,
			params.Description,
			params.Location,
			params.StartTime.UTC(),
			params.EndTime.UTC(),
			params.IsPublic,
		); err != nil {
			return err
		}
		if err := insertInvitees(ctx, tx, params.ID, params.InvitedUserIDs); err != nil {
			return err
		}
		event, err = scanEvent(tx.QueryRow(ctx, `SELECT `+eventColumns+` FROM events e WHERE e.id = $1`, params.ID))
		return err
	})
	if err != nil {
		return nil, classify("create event", err)
	}
	return event, nil
}

func (r *EventRepository) UpdateEvent(ctx context.Context, id string, params events.UpdateParams) (event *events.Event, err error) {
	defer observe("update_event", time.Now(), &err)

	row := r.queryer().QueryRow(ctx, `
WITH updated AS (
  UPDATE events
     SET title = $2, description = $3, location = $4, start_time = $5, end_time = $6,
         is_public = $7, updated_at = now()
   WHERE id = $1
  RETURNING *
)
SELECT `+eventColumns+` FROM updated e`,
		id,
		params.Title,
		params.Description,
		params.Location,
		params.StartTime.UTC(),
		params.EndTime.UTC(),
		params.IsPublic,
	)
	event, err = scanEvent(row)
	if err != nil {
		return nil, classify("update event", err)
	}
	return event, nil
}

// ReplaceInvitees swaps the invited set in one transaction, locking the event
// row so concurrent replacements serialize.
func (r *EventRepository) ReplaceInvitees(ctx context.Context, id string, userIDs []string) (err error) {
	defer observe("replace_invitees", time.Now(), &err)

	err = pgx.BeginFunc(ctx, r.beginner(), func(tx pgx.Tx) error {
		var locked string
		if err := tx.QueryRow(ctx, `SELECT id FROM events WHERE id = $1 FOR UPDATE`, id).Scan(&locked); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM event_invitees WHERE event_id = $1`, id); err != nil {
			return err
		}
		if err := insertInvitees(ctx, tx, id, userIDs); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `UPDATE events SET updated_at = now() WHERE id = $1`, id)
		return err
	})
	return classify("replace invitees", err)
}

func (r *EventRepository) DeleteEvent(ctx context.Context, id string) (err error) {
	defer observe("delete_event", time.Now(), &err)

	tag, err := r.queryer().Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return classify("delete event", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func insertInvitees(ctx context.Context, tx pgx.Tx, eventID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
INSERT INTO event_invitees (event_id, user_id)
SELECT $1, u FROM unnest($2::text[]) AS u
ON CONFLICT DO NOTHING`, eventID, userIDs)
	return err
}

func (r *EventRepository) queryer() queryer {
	return pick(r.pool, r.tx)
}

func (r *EventRepository) beginner() beginner {
	return pick(r.pool, r.tx)
}
