package events

import (
	"context"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/domain/access"
)

type Event struct {
	ID             string
	OrganizerID    string
	Title          string
	Description    string
	Location       string
	StartTime      time.Time
	EndTime        time.Time
	IsPublic       bool
	InvitedUserIDs []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Target returns the snapshot the access policies evaluate.
func (e Event) Target() access.Target {
	return access.Target{
		EventID:     e.ID,
		OrganizerID: e.OrganizerID,
		Public:      e.IsPublic,
		InvitedIDs:  e.InvitedUserIDs,
	}
}

type CreateParams struct {
	ID             string
	OrganizerID    string
	Title          string
	Description    string
	Location       string
	StartTime      time.Time
	EndTime        time.Time
	IsPublic       bool
	InvitedUserIDs []string
}

type UpdateParams struct {
	Title       string
	Description string
	Location    string
	StartTime   time.Time
	EndTime     time.Time
	IsPublic    bool
}

// Scope restricts a listing to the events a viewer may see. An empty ViewerID
// means anonymous (public events only); All is set for staff.
type Scope struct {
	ViewerID string
	All      bool
}

// ScopeFor derives the store-side listing scope for identity.
func ScopeFor(identity access.Identity) Scope {
	return Scope{ViewerID: identity.UserID(), All: identity.IsStaff()}
}

type Filters struct {
	Query       string
	Location    string
	OrganizerID string
	IsPublic    *bool
}

type Pagination struct {
	Limit int
	After string
}

type ListResult struct {
	Events     []Event
	NextCursor string
}

// Reader is the lookup the RSVP and review registries need.
type Reader interface {
	GetEvent(ctx context.Context, id string) (*Event, error)
}

// Repository is the event side of the store. Implementations return
// apperr.ErrNotFound for unknown ids and wrap driver failures with
// apperr.ErrStoreUnavailable.
type Repository interface {
	Reader
	ListEvents(ctx context.Context, scope Scope, filters Filters, pagination Pagination) (ListResult, error)
	CreateEvent(ctx context.Context, params CreateParams) (*Event, error)
	UpdateEvent(ctx context.Context, id string, params UpdateParams) (*Event, error)
	ReplaceInvitees(ctx context.Context, id string, userIDs []string) error
	DeleteEvent(ctx context.Context, id string) error
}
