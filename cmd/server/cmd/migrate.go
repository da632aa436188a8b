package cmd

import (
	"fmt"

	"github.com/Togather-Foundation/gatherings/internal/config"
	"github.com/Togather-Foundation/gatherings/internal/storage/postgres"
	"github.com/Togather-Foundation/gatherings/internal/storage/sqlite"
	"github.com/spf13/cobra"
)

func newMigrateCommand(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back schema migrations",
		Long: `Apply or roll back the embedded schema migrations of the configured store.

serve applies pending migrations on start; this command is for running them
ahead of a deploy or rolling back.`,
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.loadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if err := migrateUp(cfg.Database); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", cfg.Database.Driver)
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.loadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if err := migrateDown(cfg.Database, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s) on %s\n", steps, cfg.Database.Driver)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}

func migrateUp(cfg config.DatabaseConfig) error {
	switch cfg.Driver {
	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.URL)
		if err != nil {
			return err
		}
		return store.Close()
	case config.DriverPostgres:
		return postgres.MigrateUp(cfg.URL)
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func migrateDown(cfg config.DatabaseConfig, steps int) error {
	switch cfg.Driver {
	case config.DriverSQLite:
		return sqlite.MigrateDown(cfg.URL, steps)
	case config.DriverPostgres:
		return postgres.MigrateDown(cfg.URL, steps)
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
