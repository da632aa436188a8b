package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/api/problem"
	"github.com/Togather-Foundation/gatherings/internal/config"
	"github.com/Togather-Foundation/gatherings/internal/domain/access"
	"golang.org/x/time/rate"
)

type RateLimitTier string

const (
	TierAnonymous     RateLimitTier = "anonymous"
	TierAuthenticated RateLimitTier = "authenticated"
)

const (
	limiterTTL      = 15 * time.Minute
	cleanupInterval = 5 * time.Minute
)

// RateLimit applies per-minute token buckets. Anonymous callers are keyed by
// client IP and authenticated callers by user id, so it must run after
// Identity. A tier with a zero limit is unlimited.
func RateLimit(cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	store := newLimiterStore(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
				next.ServeHTTP(w, r)
				return
			}

			tier, key := TierAnonymous, clientKey(r, cfg.TrustedProxyCIDRs)
			if identity := access.FromContext(r.Context()); !identity.IsAnonymous() {
				tier, key = TierAuthenticated, identity.UserID()
			}

			limiter := store.limiter(tier, key)
			if limiter != nil && !limiter.Allow() {
				w.Header().Set("Retry-After", strconv.Itoa(store.retryAfterSeconds(tier)))
				problem.WriteKind(w, r, problem.KindRateLimited, "rate limit exceeded for "+string(tier)+" callers")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type limiterStore struct {
	mu          sync.Mutex
	limiters    map[string]*limiterEntry
	perMinute   map[RateLimitTier]int
	stopCleanup chan struct{}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterStore(cfg config.RateLimitConfig) *limiterStore {
	store := &limiterStore{
		limiters: make(map[string]*limiterEntry),
		perMinute: map[RateLimitTier]int{
			TierAnonymous:     cfg.AnonymousPerMinute,
			TierAuthenticated: cfg.AuthenticatedPerMinute,
		},
		stopCleanup: make(chan struct{}),
	}
	go store.cleanupLoop()
	return store
}

func (s *limiterStore) limiter(tier RateLimitTier, key string) *rate.Limiter {
	limit := s.perMinute[tier]
	if limit <= 0 {
		return nil
	}

	lookup := string(tier) + ":" + key

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.limiters[lookup]; ok {
		entry.lastSeen = time.Now()
		return entry.limiter
	}

	interval := time.Minute / time.Duration(limit)
	limiter := rate.NewLimiter(rate.Every(interval), limit)
	s.limiters[lookup] = &limiterEntry{limiter: limiter, lastSeen: time.Now()}
	return limiter
}

// retryAfterSeconds is the time for one token to refill, rounded up.
func (s *limiterStore) retryAfterSeconds(tier RateLimitTier) int {
	limit := s.perMinute[tier]
	if limit <= 0 {
		return 1
	}
	seconds := (60 + limit - 1) / limit
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

func (s *limiterStore) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup(time.Now())
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *limiterStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > limiterTTL {
			delete(s.limiters, key)
		}
	}
}

func (s *limiterStore) Stop() {
	close(s.stopCleanup)
}

// clientKey returns the client IP. Forwarding headers are honoured only when
// the direct peer is inside a trusted proxy CIDR.
func clientKey(r *http.Request, trustedProxyCIDRs []string) string {
	if r == nil {
		return ""
	}

	remoteIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		remoteIP = host
	}

	if isTrustedProxy(remoteIP, trustedProxyCIDRs) {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
	}
	return remoteIP
}

func isTrustedProxy(ip string, trustedCIDRs []string) bool {
	if len(trustedCIDRs) == 0 {
		return false
	}
	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return false
	}
	for _, cidrStr := range trustedCIDRs {
		_, cidr, err := net.ParseCIDR(cidrStr)
		if err != nil {
			continue
		}
		if cidr.Contains(parsedIP) {
			return true
		}
	}
	return false
}
