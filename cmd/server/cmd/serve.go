package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/api"
	"github.com/Togather-Foundation/gatherings/internal/auth"
	"github.com/Togather-Foundation/gatherings/internal/config"
	"github.com/Togather-Foundation/gatherings/internal/metrics"
	"github.com/Togather-Foundation/gatherings/internal/telemetry"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	host string
	port int
}

func newServeCommand(global *globalOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Gatherings HTTP server",
		Long: `Start the Gatherings HTTP server and begin accepting API requests.

The server will:
- Load configuration from environment variables (and --config if provided)
- Open and migrate the configured store (postgres or sqlite)
- Serve the API, /healthz, /readyz and /metrics
- Drain in-flight requests on SIGINT/SIGTERM

Examples:
  # Start with configuration from the environment
  server serve

  # Start on a specific host and port
  server serve --host 127.0.0.1 --port 9090

  # Start against a local SQLite file
  DATABASE_DRIVER=sqlite DATABASE_URL=./gatherings.db server serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.loadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			opts.apply(&cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", "", "server host address (default: 0.0.0.0)")
	cmd.Flags().IntVar(&opts.port, "port", 0, "server port (default: 8080)")
	return cmd
}

func (o *serveOptions) apply(cfg *config.Config) {
	if o.host != "" {
		cfg.Server.Host = o.host
	}
	if o.port != 0 {
		cfg.Server.Port = o.port
	}
}

// runServer serves until ctx is cancelled, then shuts down gracefully.
func runServer(ctx context.Context, cfg config.Config) error {
	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("driver", cfg.Database.Driver).Str("version", Version).Msg("starting gatherings server")

	metrics.Init(Version, GitCommit, BuildDate)

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown error")
		}
	}()

	openCtx, openCancel := context.WithTimeout(ctx, 30*time.Second)
	store, err := openStore(openCtx, cfg.Database)
	openCancel()
	if err != nil {
		return err
	}
	defer store.Close()

	collector := metrics.NewDBCollector(cfg.Database.Driver, store.stats)
	go collector.Start(ctx, 15*time.Second)
	defer collector.Stop()
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database metrics collector started")

	tokens, err := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.Issuer)
	if err != nil {
		return fmt.Errorf("init token validation: %w", err)
	}

	server := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewRouter(api.Dependencies{
			Config:    cfg,
			Logger:    logger,
			Store:     store.repo,
			Tokens:    tokens,
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
		}),
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
