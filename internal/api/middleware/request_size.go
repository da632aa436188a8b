package middleware

import "net/http"

// DefaultMaxBodySize bounds JSON request bodies. The largest legitimate body
// is an event with a full invitee list.
const DefaultMaxBodySize int64 = 256 << 10

// RequestSize wraps the body in http.MaxBytesReader; decoding past maxBytes
// fails with *http.MaxBytesError, which handlers report as 413.
func RequestSize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
