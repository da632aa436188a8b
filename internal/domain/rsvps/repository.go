package rsvps

import (
	"context"
	"strings"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
)

type Status string

const (
	StatusGoing    Status = "going"
	StatusMaybe    Status = "maybe"
	StatusNotGoing Status = "not_going"
)

// ParseStatus accepts the three RSVP states, case-insensitively.
func ParseStatus(value string) (Status, error) {
	switch status := Status(strings.ToLower(strings.TrimSpace(value))); status {
	case StatusGoing, StatusMaybe, StatusNotGoing:
		return status, nil
	default:
		return "", apperr.Invalid("status", "must be one of going, maybe, not_going")
	}
}

func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

// Key identifies the single RSVP a user may hold for an event.
type Key struct {
	EventID string
	UserID  string
}

type RSVP struct {
	EventID   string
	UserID    string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository is the RSVP side of the store.
//
// UpsertRSVP must be atomic per key: concurrent calls for the same key leave
// exactly one record holding one of the submitted statuses. created reports
// whether the call inserted the record.
type Repository interface {
	UpsertRSVP(ctx context.Context, key Key, status Status, at time.Time) (rsvp RSVP, created bool, err error)
	GetRSVP(ctx context.Context, key Key) (*RSVP, error)
	ListRSVPsByEvent(ctx context.Context, eventID string) ([]RSVP, error)
	// ListRSVPsByUser lists a user's RSVPs, newest first. An empty userID lists every RSVP.
	ListRSVPsByUser(ctx context.Context, userID string) ([]RSVP, error)
	CountRSVPs(ctx context.Context, eventID string, status Status) (int, error)
	DeleteRSVP(ctx context.Context, key Key) error
}
