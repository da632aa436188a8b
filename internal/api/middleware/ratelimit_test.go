package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/config"
	"github.com/Togather-Foundation/gatherings/internal/domain/access"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(handler http.Handler, path, remote string, identity access.Identity, headers map[string]string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remote
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req = req.WithContext(access.WithIdentity(req.Context(), identity))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimitAnonymousPerIP(t *testing.T) {
	handler := RateLimit(config.RateLimitConfig{AnonymousPerMinute: 3})(okHandler())

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, doRequest(handler, "/api/v1/events", "192.0.2.1:1000", access.Anonymous(), nil))
	}
	require.Equal(t, http.StatusTooManyRequests, doRequest(handler, "/api/v1/events", "192.0.2.1:1000", access.Anonymous(), nil))
	require.Equal(t, http.StatusOK, doRequest(handler, "/api/v1/events", "192.0.2.2:1000", access.Anonymous(), nil))
}

func TestRateLimitAuthenticatedKeyedByUser(t *testing.T) {
	handler := RateLimit(config.RateLimitConfig{AnonymousPerMinute: 1, AuthenticatedPerMinute: 2})(okHandler())
	u1 := access.Authenticated("U1", false)

	require.Equal(t, http.StatusOK, doRequest(handler, "/api/v1/events", "192.0.2.1:1", u1, nil))
	require.Equal(t, http.StatusOK, doRequest(handler, "/api/v1/events", "192.0.2.9:1", u1, nil))
	require.Equal(t, http.StatusTooManyRequests, doRequest(handler, "/api/v1/events", "192.0.2.5:1", u1, nil))

	// The same IP still has its own anonymous budget.
	require.Equal(t, http.StatusOK, doRequest(handler, "/api/v1/events", "192.0.2.1:1", access.Anonymous(), nil))
	require.Equal(t, http.StatusOK, doRequest(handler, "/api/v1/events", "192.0.2.1:1", access.Authenticated("U2", false), nil))
}

func TestRateLimitRetryAfterAndProblem(t *testing.T) {
	handler := RateLimit(config.RateLimitConfig{AnonymousPerMinute: 1})(okHandler())
	doRequest(handler, "/api/v1/events", "192.0.2.1:1", access.Anonymous(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	req.RemoteAddr = "192.0.2.1:1"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "60", rec.Header().Get("Retry-After"))
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestRateLimitDisabledWhenZero(t *testing.T) {
	handler := RateLimit(config.RateLimitConfig{})(okHandler())
	for i := 0; i < 50; i++ {
		require.Equal(t, http.StatusOK, doRequest(handler, "/api/v1/events", "192.0.2.1:1", access.Anonymous(), nil))
	}
}

func TestRateLimitHealthExempt(t *testing.T) {
	handler := RateLimit(config.RateLimitConfig{AnonymousPerMinute: 1})(okHandler())
	for i := 0; i < 20; i++ {
		require.Equal(t, http.StatusOK, doRequest(handler, "/healthz", "192.0.2.1:1", access.Anonymous(), nil))
		require.Equal(t, http.StatusOK, doRequest(handler, "/readyz", "192.0.2.1:1", access.Anonymous(), nil))
	}
}

func TestRateLimitForwardedHeadersNeedTrustedProxy(t *testing.T) {
	spoofed := RateLimit(config.RateLimitConfig{AnonymousPerMinute: 1})(okHandler())
	require.Equal(t, http.StatusOK, doRequest(spoofed, "/", "10.0.0.1:1", access.Anonymous(), map[string]string{"X-Forwarded-For": "203.0.113.1"}))
	// Untrusted peer: a different forwarded address does not buy a new bucket.
	require.Equal(t, http.StatusTooManyRequests, doRequest(spoofed, "/", "10.0.0.1:1", access.Anonymous(), map[string]string{"X-Forwarded-For": "203.0.113.2"}))

	trusted := RateLimit(config.RateLimitConfig{AnonymousPerMinute: 1, TrustedProxyCIDRs: []string{"10.0.0.0/8"}})(okHandler())
	require.Equal(t, http.StatusOK, doRequest(trusted, "/", "10.0.0.1:1", access.Anonymous(), map[string]string{"X-Forwarded-For": "203.0.113.1, 10.0.0.1"}))
	require.Equal(t, http.StatusOK, doRequest(trusted, "/", "10.0.0.1:1", access.Anonymous(), map[string]string{"X-Forwarded-For": "203.0.113.2"}))
	require.Equal(t, http.StatusTooManyRequests, doRequest(trusted, "/", "10.0.0.1:1", access.Anonymous(), map[string]string{"X-Forwarded-For": "203.0.113.1"}))
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:4567"
	req.Header.Set("X-Real-IP", "198.51.100.7")

	require.Equal(t, "10.1.2.3", clientKey(req, nil))
	require.Equal(t, "198.51.100.7", clientKey(req, []string{"10.0.0.0/8"}))
	require.Equal(t, "10.1.2.3", clientKey(req, []string{"not-a-cidr"}))
	require.Equal(t, "", clientKey(nil, nil))
}

func TestLimiterStoreCleanup(t *testing.T) {
	store := newLimiterStore(config.RateLimitConfig{AnonymousPerMinute: 10})
	defer store.Stop()

	require.NotNil(t, store.limiter(TierAnonymous, "a"))
	require.Nil(t, store.limiter(TierAuthenticated, "u"))

	store.cleanup(time.Now())
	require.Len(t, store.limiters, 1)

	store.cleanup(time.Now().Add(limiterTTL + time.Minute))
	require.Empty(t, store.limiters)
}

func TestRetryAfterSeconds(t *testing.T) {
	store := newLimiterStore(config.RateLimitConfig{AnonymousPerMinute: 1, AuthenticatedPerMinute: 300})
	defer store.Stop()

	require.Equal(t, 60, store.retryAfterSeconds(TierAnonymous))
	require.Equal(t, 1, store.retryAfterSeconds(TierAuthenticated))
}
