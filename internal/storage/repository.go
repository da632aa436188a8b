// Package storage defines the transactional store the domain services run
// against. Backends live in the postgres and sqlite subpackages.
package storage

import (
	"context"

	"github.com/Togather-Foundation/gatherings/internal/domain/events"
	"github.com/Togather-Foundation/gatherings/internal/domain/reviews"
	"github.com/Togather-Foundation/gatherings/internal/domain/rsvps"
)

// Repository groups data access by domain.
type Repository interface {
	Events() events.Repository
	RSVPs() rsvps.Repository
	Reviews() reviews.Repository

	// WithTx runs fn against a repository bound to a single transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error

	Ping(ctx context.Context) error
	Close() error
}
