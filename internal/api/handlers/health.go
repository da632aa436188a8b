package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger is the store check the readiness endpoint runs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck is the readiness report.
type HealthCheck struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	GitCommit string                 `json:"git_commit,omitempty"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

type CheckResult struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

type HealthChecker struct {
	store     Pinger
	driver    string
	version   string
	gitCommit string
}

func NewHealthChecker(store Pinger, driver, version, gitCommit string) *HealthChecker {
	return &HealthChecker{store: store, driver: driver, version: version, gitCommit: gitCommit}
}

// Healthz reports liveness. It never touches the store.
func (h *HealthChecker) Healthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// Readyz reports 503 while the store is unreachable or the server is
// shutting down.
func (h *HealthChecker) Readyz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
			return
		default:
		}

		checks := map[string]CheckResult{"database": h.checkDatabase(r.Context())}

		status, code := "healthy", http.StatusOK
		for _, check := range checks {
			if check.Status == "fail" {
				status, code = "unhealthy", http.StatusServiceUnavailable
				break
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(HealthCheck{
			Status:    status,
			Version:   h.version,
			GitCommit: h.gitCommit,
			Checks:    checks,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func (h *HealthChecker) checkDatabase(ctx context.Context) CheckResult {
	start := time.Now()
	if h.store == nil {
		return CheckResult{Status: "fail", Message: "store not initialized"}
	}

	dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	err := h.store.Ping(dbCtx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		message := h.driver + " ping failed"
		if dbCtx.Err() == context.DeadlineExceeded {
			message = h.driver + " ping timed out after 2 seconds"
		}
		return CheckResult{Status: "fail", Message: message, LatencyMs: latency}
	}
	return CheckResult{Status: "pass", Message: h.driver + " reachable", LatencyMs: latency}
}
