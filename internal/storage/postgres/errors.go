package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/Togather-Foundation/gatherings/internal/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

func pick(pool *pgxpool.Pool, tx pgx.Tx) interface {
	queryer
	beginner
} {
	if tx != nil {
		return tx
	}
	return pool
}

// classify maps driver errors onto the domain taxonomy. Missing rows become
// ErrNotFound, constraint failures keep their meaning, and anything else is
// reported as ErrStoreUnavailable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w", op, apperr.ErrAlreadyExists)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
		case pgCheckViolation:
			return fmt.Errorf("%s: %w: constraint %s", op, apperr.ErrInvalidArgument, pgErr.ConstraintName)
		}
	}
	return apperr.Unavailable(op, err)
}

// observe records query latency and errors for op.
func observe(op string, start time.Time, errp *error) {
	var err error
	if errp != nil {
		err = *errp
	}
	if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrAlreadyExists) {
		err = nil
	}
	if errors.Is(err, context.Canceled) {
		err = context.Canceled
	} else if errors.Is(err, context.DeadlineExceeded) {
		err = context.DeadlineExceeded
	}
	metrics.RecordQuery(op, start, err)
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
