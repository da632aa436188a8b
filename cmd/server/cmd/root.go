package cmd

import (
	"fmt"
	"os"

	"github.com/Togather-Foundation/gatherings/internal/config"
	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "server",
		Short: "Gatherings server - events, RSVPs and reviews API",
		Long: `Gatherings server hosts the event-management API.

Events are public or private with an invited set. Authenticated users RSVP
(going, maybe, not_going) and leave one 1-5 review per event. Data lives in
PostgreSQL or in a single SQLite file.`,
		SilenceUsage: true,
	}
	serve := newServeCommand(opts)
	root.RunE = serve.RunE

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (environment variables override it)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (json, console) (default: json)")

	root.AddCommand(
		serve,
		newMigrateCommand(opts),
		newTokenCommand(opts),
		newHealthcheckCommand(),
		newVersionCommand(),
	)
	return root
}

// Execute runs the command tree. It is called once by main.
func Execute() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and environment, then applies the
// logging flag overrides.
func (o *globalOptions) loadConfig() (config.Config, error) {
	cfg, err := config.LoadFile(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	return cfg, nil
}
