package cmd

import (
	"context"
	"fmt"

	"github.com/Togather-Foundation/gatherings/internal/config"
	"github.com/Togather-Foundation/gatherings/internal/metrics"
	"github.com/Togather-Foundation/gatherings/internal/storage"
	"github.com/Togather-Foundation/gatherings/internal/storage/postgres"
	"github.com/Togather-Foundation/gatherings/internal/storage/sqlite"
)

// openedStore is a ready store plus the source of its connection pool
// statistics for the metrics collector.
type openedStore struct {
	repo  storage.Repository
	stats metrics.StatsSource
}

func (s openedStore) Close() {
	if s.repo != nil {
		_ = s.repo.Close()
	}
}

// openStore migrates and opens the configured backend.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (openedStore, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.URL)
		if err != nil {
			return openedStore{}, fmt.Errorf("open sqlite store: %w", err)
		}
		return openedStore{repo: store, stats: store}, nil
	case config.DriverPostgres:
		if err := postgres.MigrateUp(cfg.URL); err != nil {
			return openedStore{}, err
		}
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return openedStore{}, fmt.Errorf("database connection failed: %w", err)
		}
		repo, err := postgres.NewRepository(pool)
		if err != nil {
			pool.Close()
			return openedStore{}, err
		}
		return openedStore{repo: repo, stats: metrics.PgxPoolStats{Pool: pool}}, nil
	default:
		return openedStore{}, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
