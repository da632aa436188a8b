// Package sqlite provides the single-file storage backend. It implements the
// same storage.Repository contract as the PostgreSQL backend and is meant for
// development and small deployments.
//
// The handle is limited to one open connection, so every statement and
// transaction is serialized by database/sql. Inside WithTx callers must use
// the repository passed to the callback; using the outer one would wait for
// the connection the transaction holds.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/domain/events"
	"github.com/Togather-Foundation/gatherings/internal/domain/reviews"
	"github.com/Togather-Foundation/gatherings/internal/domain/rsvps"
	"github.com/Togather-Foundation/gatherings/internal/metrics"
	"github.com/Togather-Foundation/gatherings/internal/storage"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const dsnPragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

var (
	_ storage.Repository  = (*Store)(nil)
	_ metrics.StatsSource = (*Store)(nil)
)

// Store persists events, RSVPs and reviews in SQLite.
type Store struct {
	db *sql.DB
	tx *sql.Tx
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func openDB(path string) (*sql.DB, error) {
	path = strings.TrimPrefix(strings.TrimSpace(path), "sqlite://")
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := path
	if path != ":memory:" {
		cleanPath = filepath.Clean(path)
	}
	db, err := sql.Open("sqlite", cleanPath+"?"+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return db, nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, func(), error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		_ = source.Close()
		return nil, nil, fmt.Errorf("init migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		_ = source.Close()
		return nil, nil, fmt.Errorf("init migrator: %w", err)
	}
	// Closing the migrator would close db as well; only the source is released.
	return m, func() { _ = source.Close() }, nil
}

func migrateUp(db *sql.DB) error {
	m, release, err := newMigrator(db)
	if err != nil {
		return err
	}
	defer release()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// MigrateDown rolls back steps migrations on the database at path.
func MigrateDown(path string, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("migrate down: steps must be > 0")
	}
	db, err := openDB(path)
	if err != nil {
		return err
	}
	defer db.Close()

	m, release, err := newMigrator(db)
	if err != nil {
		return err
	}
	defer release()

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

func (s *Store) Events() events.Repository {
	return &EventRepository{store: s}
}

func (s *Store) RSVPs() rsvps.Repository {
	return &RSVPRepository{store: s}
}

func (s *Store) Reviews() reviews.Repository {
	return &ReviewRepository{store: s}
}

// WithTx executes fn within a transaction. Nested calls reuse the open one.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, storage.Repository) error) error {
	if s.tx != nil {
		return fn(ctx, s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin tx", err)
	}
	if err := fn(ctx, &Store{db: s.db, tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify("commit tx", err)
	}
	return nil
}

// PoolStats reports the handle's connection statistics for the pool
// collector.
func (s *Store) PoolStats() metrics.PoolStats {
	return metrics.SQLDBStats{DB: s.db}.PoolStats()
}

func (s *Store) Ping(ctx context.Context) error {
	if s.tx != nil {
		return nil
	}
	return classify("ping", s.db.PingContext(ctx))
}

// Close closes the handle. It is a no-op on a transaction-bound store.
func (s *Store) Close() error {
	if s == nil || s.db == nil || s.tx != nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) conn() dbtx {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// inTx runs fn on the open transaction, or on a fresh one committed when fn
// succeeds.
func (s *Store) inTx(ctx context.Context, fn func(q dbtx) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
