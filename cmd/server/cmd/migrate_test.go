package cmd

import (
	"context"
	"os"
	"testing"

	"github.com/Togather-Foundation/gatherings/internal/config"
	"github.com/stretchr/testify/require"
)

func TestMigrateUpAndDownSQLite(t *testing.T) {
	path := sqliteEnv(t)

	out, err := executeCommand(t, "migrate", "up")
	require.NoError(t, err)
	require.Contains(t, out, "sqlite schema is up to date")
	_, err = os.Stat(path)
	require.NoError(t, err)

	out, err = executeCommand(t, "migrate", "down", "--steps", "1")
	require.NoError(t, err)
	require.Contains(t, out, "rolled back 1 migration(s)")

	_, err = executeCommand(t, "migrate", "up")
	require.NoError(t, err)
}

func TestMigrateDownRejectsZeroSteps(t *testing.T) {
	sqliteEnv(t)

	_, err := executeCommand(t, "migrate", "down", "--steps", "0")
	require.ErrorContains(t, err, "steps must be > 0")
}

func TestMigrateUnsupportedDriver(t *testing.T) {
	cfg := config.DatabaseConfig{Driver: "mysql", URL: "x"}

	require.ErrorContains(t, migrateUp(cfg), "unsupported database driver")
	require.ErrorContains(t, migrateDown(cfg, 1), "unsupported database driver")
}

func TestOpenStoreSQLiteReportsPoolStats(t *testing.T) {
	path := sqliteEnv(t)

	store, err := openStore(context.Background(), config.DatabaseConfig{Driver: config.DriverSQLite, URL: path})
	require.NoError(t, err)
	defer store.Close()

	require.NotNil(t, store.stats)
	require.Equal(t, 1, store.stats.PoolStats().MaxOpen)
	require.NoError(t, store.repo.Ping(context.Background()))
}

func TestOpenStoreUnsupportedDriver(t *testing.T) {
	_, err := openStore(context.Background(), config.DatabaseConfig{Driver: "mysql"})
	require.ErrorContains(t, err, "unsupported database driver")
}
