// Package api assembles the HTTP surface: routes, handlers and the
// middleware chain every request passes through.
package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/Togather-Foundation/gatherings/internal/api/handlers"
	"github.com/Togather-Foundation/gatherings/internal/api/middleware"
	"github.com/Togather-Foundation/gatherings/internal/api/problem"
	"github.com/Togather-Foundation/gatherings/internal/audit"
	"github.com/Togather-Foundation/gatherings/internal/config"
	"github.com/Togather-Foundation/gatherings/internal/domain/events"
	"github.com/Togather-Foundation/gatherings/internal/domain/reviews"
	"github.com/Togather-Foundation/gatherings/internal/domain/rsvps"
	"github.com/Togather-Foundation/gatherings/internal/metrics"
	"github.com/Togather-Foundation/gatherings/internal/storage"
	"github.com/rs/zerolog"
)

// Dependencies are the collaborators the router wires into handlers.
type Dependencies struct {
	Config    config.Config
	Logger    zerolog.Logger
	Store     storage.Repository
	Tokens    middleware.TokenValidator
	Version   string
	GitCommit string
	BuildDate string
}

// NewRouter builds the routed handler wrapped in the middleware chain:
// correlation id, tracing, request logging, security headers, HTTP metrics,
// identity, rate limiting and the body size limit, outermost first.
func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	auditLogger := audit.NewLogger(deps.Logger)

	eventService := events.NewService(deps.Store.Events(), deps.Logger, auditLogger)
	rsvpService := rsvps.NewService(deps.Store.RSVPs(), deps.Store.Events(), deps.Logger, auditLogger)
	reviewService := reviews.NewService(deps.Store.Reviews(), deps.Store.Events(), deps.Logger, auditLogger)

	eventsHandler := handlers.NewEventsHandler(eventService, rsvpService, reviewService, cfg.Environment)
	rsvpsHandler := handlers.NewRSVPsHandler(rsvpService, cfg.Environment)
	reviewsHandler := handlers.NewReviewsHandler(reviewService, cfg.Environment)
	health := handlers.NewHealthChecker(deps.Store, cfg.Database.Driver, deps.Version, deps.GitCommit)

	mux := http.NewServeMux()
	mux.Handle("/healthz", methodMux(map[string]http.Handler{http.MethodGet: health.Healthz()}))
	mux.Handle("/readyz", methodMux(map[string]http.Handler{http.MethodGet: health.Readyz()}))
	mux.Handle("/metrics", methodMux(map[string]http.Handler{http.MethodGet: metrics.Handler()}))
	mux.Handle("/version", VersionHandler(deps.Version, deps.GitCommit, deps.BuildDate))
	mux.Handle("/api/v1/openapi.json", OpenAPIHandler())

	mux.Handle("/api/v1/events", methodMux(map[string]http.Handler{
		http.MethodGet:  http.HandlerFunc(eventsHandler.List),
		http.MethodPost: http.HandlerFunc(eventsHandler.Create),
	}))
	mux.Handle("/api/v1/events/{id}", methodMux(map[string]http.Handler{
		http.MethodGet:    http.HandlerFunc(eventsHandler.Get),
		http.MethodPatch:  http.HandlerFunc(eventsHandler.Update),
		http.MethodDelete: http.HandlerFunc(eventsHandler.Delete),
	}))
	mux.Handle("/api/v1/events/{id}/invitees", methodMux(map[string]http.Handler{
		http.MethodPut: http.HandlerFunc(eventsHandler.SetInvitees),
	}))
	mux.Handle("/api/v1/events/{id}/permissions", methodMux(map[string]http.Handler{
		http.MethodGet: http.HandlerFunc(eventsHandler.Permissions),
	}))
	mux.Handle("/api/v1/events/{id}/rsvp", methodMux(map[string]http.Handler{
		http.MethodPost: http.HandlerFunc(rsvpsHandler.Upsert),
	}))
	mux.Handle("/api/v1/events/{id}/rsvps", methodMux(map[string]http.Handler{
		http.MethodGet: http.HandlerFunc(rsvpsHandler.List),
	}))
	mux.Handle("/api/v1/events/{id}/rsvps/{user}", methodMux(map[string]http.Handler{
		http.MethodDelete: http.HandlerFunc(rsvpsHandler.Delete),
	}))
	mux.Handle("/api/v1/me/rsvps", methodMux(map[string]http.Handler{
		http.MethodGet: http.HandlerFunc(rsvpsHandler.ListMine),
	}))
	mux.Handle("/api/v1/events/{id}/reviews", methodMux(map[string]http.Handler{
		http.MethodGet:  http.HandlerFunc(reviewsHandler.List),
		http.MethodPost: http.HandlerFunc(reviewsHandler.Create),
	}))
	mux.Handle("/api/v1/events/{id}/reviews/{user}", methodMux(map[string]http.Handler{
		http.MethodPatch:  http.HandlerFunc(reviewsHandler.Update),
		http.MethodDelete: http.HandlerFunc(reviewsHandler.Delete),
	}))
	mux.Handle("/api/v1/events/{id}/rating", methodMux(map[string]http.Handler{
		http.MethodGet: http.HandlerFunc(reviewsHandler.Rating),
	}))
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		problem.WriteKind(w, r, problem.KindNotFound, "no route for "+r.URL.Path)
	}))

	var handler http.Handler = mux
	handler = middleware.RequestSize(middleware.DefaultMaxBodySize)(handler)
	handler = middleware.RateLimit(cfg.RateLimit)(handler)
	handler = middleware.Identity(deps.Tokens)(handler)
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.SecurityHeaders(cfg.IsProduction())(handler)
	handler = middleware.RequestLogging()(handler)
	handler = middleware.Tracing(handler)
	handler = middleware.CorrelationID(deps.Logger)(handler)
	return handler
}

// methodMux dispatches on the request method and answers anything else with
// a 405 problem carrying the Allow header.
func methodMux(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		allow := allowedMethods(handlers)
		w.Header().Set("Allow", allow)
		problem.WriteKind(w, r, problem.KindMethod, r.Method+" is not supported here; use "+allow)
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	methods := make([]string, 0, len(handlers))
	for method := range handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
