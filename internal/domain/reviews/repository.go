package reviews

import (
	"context"
	"time"
)

// Key identifies the single review a user may leave for an event.
type Key struct {
	EventID string
	UserID  string
}

type Review struct {
	EventID   string
	UserID    string
	Rating    int
	Comment   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r Review) Key() Key {
	return Key{EventID: r.EventID, UserID: r.UserID}
}

type Pagination struct {
	Limit int
	After string
}

type ListResult struct {
	Reviews    []Review
	NextCursor string
}

// Repository is the review side of the store.
//
// InsertReviewIfAbsent is a single conditional write: it returns
// apperr.ErrAlreadyExists when a review for the key is already stored and
// never overwrites it.
type Repository interface {
	InsertReviewIfAbsent(ctx context.Context, review Review) (Review, error)
	GetReview(ctx context.Context, key Key) (*Review, error)
	// ListReviewsByEvent pages reviews newest first.
	ListReviewsByEvent(ctx context.Context, eventID string, page Pagination) (ListResult, error)
	// AverageRating returns the unrounded mean rating and the review count.
	// The mean is nil when the event has no reviews.
	AverageRating(ctx context.Context, eventID string) (*float64, int, error)
	UpdateReview(ctx context.Context, key Key, rating int, comment string, at time.Time) (*Review, error)
	DeleteReview(ctx context.Context, key Key) error
}
