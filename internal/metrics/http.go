package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/domain/ids"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status code
	HTTPRequestsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration records HTTP request latency in seconds
	HTTPRequestDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			// Buckets: 1ms, 5ms, 10ms, 25ms, 50ms, 100ms, 250ms, 500ms, 1s, 2.5s, 5s, 10s
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks the current number of requests being processed
	HTTPRequestsInFlight = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
	)

	// HTTPRequestSize records the size of HTTP request bodies in bytes
	HTTPRequestSize = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request body size in bytes",
			// Buckets: 100B, 1KB, 10KB, 100KB, 1MB, 10MB
			Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
		},
		[]string{"method", "path"},
	)

	// HTTPResponseSize records the size of HTTP response bodies in bytes
	HTTPResponseSize = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response body size in bytes",
			// Buckets: 100B, 1KB, 10KB, 100KB, 1MB, 10MB
			Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
		},
		[]string{"method", "path"},
	)
)

// responseWriter wraps http.ResponseWriter to capture status code and response size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.statusCode == 0 {
		rw.statusCode = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMiddleware returns a middleware that records HTTP metrics
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Track in-flight requests
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		// Start timer
		start := time.Now()

		// Wrap response writer to capture status code and size
		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     0,
			bytesWritten:   0,
		}

		// Call next handler
		next.ServeHTTP(wrapped, r)

		// Record metrics
		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)
		method := r.Method
		status := strconv.Itoa(wrapped.statusCode)

		// Record request count
		HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()

		// Record request duration
		HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)

		// Record request size (if available)
		if r.ContentLength > 0 {
			HTTPRequestSize.WithLabelValues(method, path).Observe(float64(r.ContentLength))
		}

		// Record response size
		HTTPResponseSize.WithLabelValues(method, path).Observe(float64(wrapped.bytesWritten))
	})
}

// normalizePath collapses identifiers so label cardinality stays bounded:
// ULID segments become {id}, and the segment after rsvps/reviews becomes {user}.
func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/") {
		return path
	}
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		switch {
		case ids.IsULID(segment):
			segments[i] = "{id}"
		case i > 0 && (segments[i-1] == "rsvps" || segments[i-1] == "reviews") && segment != "":
			segments[i] = "{user}"
		}
	}
	return strings.Join(segments, "/")
}
