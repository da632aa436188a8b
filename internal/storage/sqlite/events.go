package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/api/pagination"
	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/Togather-Foundation/gatherings/internal/domain/events"
)

var _ events.Repository = (*EventRepository)(nil)

type EventRepository struct {
	store *Store
}

const eventColumns = `
e.id, e.organizer_id, e.title, e.description, e.location, e.start_time, e.end_time,
e.is_public, e.created_at, e.updated_at,
(SELECT json_group_array(i.user_id) FROM event_invitees i WHERE i.event_id = e.id) AS invitees`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*events.Event, error) {
	var (
		event                events.Event
		start, end           int64
		createdAt, updatedAt int64
		invitees             sql.NullString
	)
	if err := row.Scan(
		&event.ID,
		&event.OrganizerID,
		&event.Title,
		&event.Description,
		&event.Location,
		&start,
		&end,
		&event.IsPublic,
		&createdAt,
		&updatedAt,
		&invitees,
	); err != nil {
		return nil, err
	}
	event.StartTime = fromMillis(start)
	event.EndTime = fromMillis(end)
	event.CreatedAt = fromMillis(createdAt)
	event.UpdatedAt = fromMillis(updatedAt)
	event.InvitedUserIDs = []string{}
	if invitees.Valid && invitees.String != "" {
		if err := json.Unmarshal([]byte(invitees.String), &event.InvitedUserIDs); err != nil {
			return nil, fmt.Errorf("decode invitees: %w", err)
		}
	}
	slices.Sort(event.InvitedUserIDs)
	return &event, nil
}

func getEvent(ctx context.Context, q dbtx, id string) (*events.Event, error) {
	return scanEvent(q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events e WHERE e.id = ?`, id))
}

func (r *EventRepository) GetEvent(ctx context.Context, id string) (event *events.Event, err error) {
	defer observe("get_event", time.Now(), &err)

	event, err = getEvent(ctx, r.store.conn(), id)
	if err != nil {
		return nil, classify("get event", err)
	}
	return event, nil
}

// ListEvents pages events newest first with the visibility scope applied in
// SQL, mirroring the PostgreSQL backend.
func (r *EventRepository) ListEvents(ctx context.Context, scope events.Scope, filters events.Filters, page events.Pagination) (result events.ListResult, err error) {
	defer observe("list_events", time.Now(), &err)

	var cursorMillis *int64
	var cursorID string
	if strings.TrimSpace(page.After) != "" {
		cursor, err := pagination.DecodeEventCursor(page.After)
		if err != nil {
			return events.ListResult{}, apperr.Invalid("after", "must be a cursor returned by a previous page")
		}
		value := toMillis(cursor.Timestamp)
		cursorMillis = &value
		cursorID = cursor.ULID
	}

	limit := page.Limit
	if limit <= 0 {
		limit = 10
	}

	var isPublic *int64
	if filters.IsPublic != nil {
		value := boolInt(*filters.IsPublic)
		isPublic = &value
	}

	rows, err := r.store.conn().QueryContext(ctx, `
SELECT `+eventColumns+`
  FROM events e
 WHERE (?1 = 1
        OR e.is_public = 1
        OR (?2 <> '' AND (
              e.organizer_id = ?2
              OR EXISTS (SELECT 1 FROM event_invitees vi WHERE vi.event_id = e.id AND vi.user_id = ?2))))
   AND (?3 = '' OR e.title LIKE '%' || ?3 || '%' ESCAPE '\' OR e.description LIKE '%' || ?3 || '%' ESCAPE '\')
   AND (?4 = '' OR e.location LIKE '%' || ?4 || '%' ESCAPE '\')
   AND (?5 = '' OR e.organizer_id = ?5)
   AND (?6 IS NULL OR e.is_public = ?6)
   AND (?7 IS NULL OR e.start_time < ?7 OR (e.start_time = ?7 AND e.id < ?8))
 ORDER BY e.start_time DESC, e.id DESC
 LIMIT ?9`,
		boolInt(scope.All),
		scope.ViewerID,
		escapeLike(filters.Query),
		escapeLike(filters.Location),
		filters.OrganizerID,
		isPublic,
		cursorMillis,
		cursorID,
		limit+1,
	)
	if err != nil {
		return events.ListResult{}, classify("list events", err)
	}
	defer rows.Close()

	items := make([]events.Event, 0, limit+1)
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

	now := toMillis(time.Now())
	err = r.store.inTx(ctx, func(q dbtx) error {
		if _, err := q.ExecContext(ctx, `
INSERT INTO events (id, organizer_id, title, description, location, start_time, end_time, is_public, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			params.ID,
			params.OrganizerID,
			params.Title,
			params.Description,
			params.Location,
			toMillis(params.StartTime),
			toMillis(params.EndTime),
			boolInt(params.IsPublic),
			now,
			now,
		); err != nil {
			return err
		}
		if err := insertInvitees(ctx, q, params.ID, params.InvitedUserIDs); err != nil {
			return err
		}
		event, err = getEvent(ctx, q, params.ID)
		return err
	})
	if err != nil {
		return nil, classify("create event", err)
	}
	return event, nil
}

func (r *EventRepository) UpdateEvent(ctx context.Context, id string, params events.UpdateParams) (event *events.Event, err error) {
	defer observe("update_event", time.Now(), &err)

	err = r.store.inTx(ctx, func(q dbtx) error {
		res, err := q.ExecContext(ctx, `
UPDATE events
   SET title = ?, description = ?, location = ?, start_time = ?, end_time = ?, is_public = ?, updated_at = ?
 WHERE id = ?`,
			params.Title,
			params.Description,
			params.Location,
			toMillis(params.StartTime),
			toMillis(params.EndTime),
			boolInt(params.IsPublic),
			toMillis(time.Now()),
			id,
		)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return apperr.ErrNotFound
		}
		event, err = getEvent(ctx, q, id)
		return err
	})
	if err != nil {
		return nil, classify("update event", err)
	}
	return event, nil
}

func (r *EventRepository) ReplaceInvitees(ctx context.Context, id string, userIDs []string) (err error) {
	defer observe("replace_invitees", time.Now(), &err)

	err = r.store.inTx(ctx, func(q dbtx) error {
		res, err := q.ExecContext(ctx, `UPDATE events SET updated_at = ? WHERE id = ?`, toMillis(time.Now()), id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return apperr.ErrNotFound
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM event_invitees WHERE event_id = ?`, id); err != nil {
			return err
		}
		return insertInvitees(ctx, q, id, userIDs)
	})
	return classify("replace invitees", err)
}

func (r *EventRepository) DeleteEvent(ctx context.Context, id string) (err error) {
	defer observe("delete_event", time.Now(), &err)

	res, err := r.store.conn().ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return classify("delete event", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify("delete event", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func insertInvitees(ctx context.Context, q dbtx, eventID string, userIDs []string) error {
	for _, userID := range userIDs {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO event_invitees (event_id, user_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
			eventID, userID,
		); err != nil {
			return err
		}
	}
	return nil
}
