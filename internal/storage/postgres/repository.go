package postgres

import (
	"context"
	"fmt"

	"github.com/Togather-Foundation/gatherings/internal/domain/events"
	"github.com/Togather-Foundation/gatherings/internal/domain/reviews"
	"github.com/Togather-Foundation/gatherings/internal/domain/rsvps"
	"github.com/Togather-Foundation/gatherings/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ storage.Repository = (*Repository)(nil)

// Repository implements storage.Repository interface with PostgreSQL backend
type Repository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

// NewRepository creates a new PostgreSQL-backed repository
func NewRepository(pool *pgxpool.Pool) (*Repository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Events() events.Repository {
	return &EventRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) RSVPs() rsvps.Repository {
	return &RSVPRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) Reviews() reviews.Repository {
	return &ReviewRepository{pool: r.pool, tx: r.tx}
}

// WithTx executes fn within a transaction. Nested calls reuse the open one.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, storage.Repository) error) error {
	if r.tx != nil {
		return fn(ctx, r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return classify("begin tx", err)
	}

	wrapped := &Repository{pool: r.pool, tx: tx}
	if err := fn(ctx, wrapped); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return classify("commit tx", err)
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return classify("ping", r.pool.Ping(ctx))
}

// Close releases the pool. It is a no-op on a transaction-bound repository.
func (r *Repository) Close() error {
	if r.tx == nil {
		r.pool.Close()
	}
	return nil
}
