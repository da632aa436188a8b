package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// HealthResponse matches the readiness report of the server.
type HealthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func newHealthcheckCommand() *cobra.Command {
	var (
		timeout time.Duration
		url     string
	)

	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check if the server is ready",
		Long: `Calls the /readyz endpoint and exits non-zero unless the server reports
healthy. Intended for container HEALTHCHECK directives.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				port := os.Getenv("SERVER_PORT")
				if port == "" {
					port = "8080"
				}
				url = fmt.Sprintf("http://localhost:%s/readyz", port)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			resp, err := performHealthCheck(ctx, url)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status: %s\n", resp.Status)
			if resp.Status != "healthy" {
				return fmt.Errorf("unhealthy: status=%s", resp.Status)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	cmd.Flags().StringVar(&url, "url", "", "readiness URL (default: http://localhost:{SERVER_PORT}/readyz)")
	return cmd
}

// performHealthCheck fetches and decodes the readiness report. A 503 still
// carries a report, so only transport and decode failures are errors.
func performHealthCheck(ctx context.Context, url string) (HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return HealthResponse{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return HealthResponse{}, fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return HealthResponse{}, fmt.Errorf("parse health response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK && health.Status == "healthy" {
		health.Status = "unhealthy"
	}
	return health, nil
}
