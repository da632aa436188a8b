package middleware

import (
	"net/http"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/domain/access"
)

type responseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *responseWriter) WriteHeader(statusCode int) {
	if w.status == 0 {
		w.status = statusCode
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

// RequestLogging logs one line per request through the request-scoped logger
// installed by CorrelationID. The caller identity is read after the handler
// chain ran, so it must sit outside Identity.
func RequestLogging() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w}
			holder := &identityHolder{identity: access.Anonymous()}

			next.ServeHTTP(rw, r.WithContext(withIdentityHolder(r.Context(), holder)))

			status := rw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger := LoggerFromContext(r.Context())
			event := logger.Info()
			if status >= 500 {
				event = logger.Error()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("caller", holder.identity.String()).
				Int("status", status).
				Int("bytes", rw.bytes).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
