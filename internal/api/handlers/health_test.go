package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(ctx context.Context) error {
	return s.err
}

func TestHealthz(t *testing.T) {
	checker := NewHealthChecker(nil, "sqlite", "0.1.0", "abc")
	w := httptest.NewRecorder()
	checker.Healthz().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		store      Pinger
		wantStatus int
		wantCheck  string
	}{
		{name: "healthy", store: stubPinger{}, wantStatus: http.StatusOK, wantCheck: "pass"},
		{name: "ping fails", store: stubPinger{err: errors.New("connection refused")}, wantStatus: http.StatusServiceUnavailable, wantCheck: "fail"},
		{name: "no store", store: nil, wantStatus: http.StatusServiceUnavailable, wantCheck: "fail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewHealthChecker(tt.store, "postgres", "0.1.0", "abc")
			w := httptest.NewRecorder()
			checker.Readyz().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			var response HealthCheck
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, "0.1.0", response.Version)
			assert.Equal(t, tt.wantCheck, response.Checks["database"].Status)
			assert.NotEmpty(t, response.Timestamp)
		})
	}
}

func TestReadyzWithSQLiteStore(t *testing.T) {
	h := newHarness(t)
	checker := NewHealthChecker(h.store, "sqlite", "0.1.0", "")

	w := httptest.NewRecorder()
	checker.Readyz().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadyzDuringShutdown(t *testing.T) {
	checker := NewHealthChecker(stubPinger{}, "sqlite", "0.1.0", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := httptest.NewRecorder()
	checker.Readyz().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil).WithContext(ctx))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"shutting_down"}`, w.Body.String())
}
