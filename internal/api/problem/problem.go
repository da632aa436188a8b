// Package problem writes RFC 7807 problem+json responses and maps domain
// errors onto them.
package problem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/rs/zerolog"
)

const contentType = "application/problem+json"

// TypeBase prefixes every problem type URI.
const TypeBase = "https://gatherings.dev/problems/"

type ProblemDetails struct {
	Type     string                 `json:"type"`
	Title    string                 `json:"title"`
	Status   int                    `json:"status"`
	Detail   string                 `json:"detail,omitempty"`
	Instance string                 `json:"instance,omitempty"`
	Errors   map[string]interface{} `json:"errors,omitempty"`
}

type Option func(*ProblemDetails)

func WithDetail(detail string) Option {
	return func(p *ProblemDetails) {
		p.Detail = detail
	}
}

func WithInstance(instance string) Option {
	return func(p *ProblemDetails) {
		p.Instance = instance
	}
}

func WithErrors(errs map[string]interface{}) Option {
	return func(p *ProblemDetails) {
		p.Errors = errs
	}
}

// Kind is the problem classification of a domain error.
type Kind struct {
	Status int
	Type   string
	Title  string
}

var (
	KindUnauthenticated = Kind{http.StatusUnauthorized, TypeBase + "unauthenticated", "Authentication required"}
	KindForbidden       = Kind{http.StatusForbidden, TypeBase + "forbidden", "Forbidden"}
	KindNotFound        = Kind{http.StatusNotFound, TypeBase + "not-found", "Not found"}
	KindInvalid         = Kind{http.StatusBadRequest, TypeBase + "invalid-argument", "Invalid request"}
	KindConflict        = Kind{http.StatusConflict, TypeBase + "already-exists", "Already exists"}
	KindUnavailable     = Kind{http.StatusServiceUnavailable, TypeBase + "store-unavailable", "Service unavailable"}
	KindRateLimited     = Kind{http.StatusTooManyRequests, TypeBase + "rate-limited", "Too many requests"}
	KindTooLarge        = Kind{http.StatusRequestEntityTooLarge, TypeBase + "payload-too-large", "Payload too large"}
	KindMethod          = Kind{http.StatusMethodNotAllowed, TypeBase + "method-not-allowed", "Method not allowed"}
	KindInternal        = Kind{http.StatusInternalServerError, TypeBase + "internal", "Internal server error"}
)

// Classify maps err onto a problem kind. Each apperr sentinel has its own
// status; anything unrecognized is an internal error.
func Classify(err error) Kind {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, apperr.ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, apperr.ErrForbidden):
		return KindForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return KindNotFound
	case errors.Is(err, apperr.ErrInvalidArgument):
		return KindInvalid
	case errors.Is(err, apperr.ErrAlreadyExists):
		return KindConflict
	case errors.Is(err, apperr.ErrStoreUnavailable), errors.Is(err, context.DeadlineExceeded):
		return KindUnavailable
	case errors.As(err, &maxBytes):
		return KindTooLarge
	default:
		return KindInternal
	}
}

// FromError writes the problem response for a domain error. Field errors
// always carry their message and field so clients can correct the input.
func FromError(w http.ResponseWriter, r *http.Request, err error, env string) {
	kind := Classify(err)

	var opts []Option
	var fieldErr apperr.FieldError
	if errors.As(err, &fieldErr) {
		opts = append(opts, WithDetail(fieldErr.Error()))
		if fieldErr.Field != "" {
			opts = append(opts, WithErrors(map[string]interface{}{fieldErr.Field: fieldErr.Message}))
		}
	}
	if kind.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="gatherings"`)
	}
	Write(w, r, kind.Status, kind.Type, kind.Title, err, env, opts...)
}

// WriteKind writes a problem of a fixed kind with an explicit detail.
func WriteKind(w http.ResponseWriter, r *http.Request, kind Kind, detail string) {
	Write(w, r, kind.Status, kind.Type, kind.Title, nil, "", WithDetail(detail))
}

func Write(w http.ResponseWriter, r *http.Request, status int, typ, title string, err error, env string, opts ...Option) {
	problem := ProblemDetails{
		Type:   typ,
		Title:  title,
		Status: status,
	}

	for _, opt := range opts {
		opt(&problem)
	}

	if problem.Detail == "" && err != nil {
		if env == "development" || env == "test" {
			problem.Detail = err.Error()
		} else {
			problem.Detail = http.StatusText(status)
		}
	}

	if problem.Instance == "" && r != nil {
		problem.Instance = r.URL.Path
	}

	if err != nil && r != nil {
		logger := zerolog.Ctx(r.Context())
		var event *zerolog.Event
		if status >= 500 {
			event = logger.Error()
		} else {
			event = logger.Warn()
		}
		event.
			Err(err).
			Int("status", status).
			Str("type", typ).
			Str("path", r.URL.Path).
			Str("method", r.Method).
			Msg(title)
	}

	WriteProblem(w, problem)
}

func WriteProblem(w http.ResponseWriter, problem ProblemDetails) {
	payload, err := json.Marshal(problem)
	if err != nil {
		fallback := fmt.Sprintf("{\"type\":\"about:blank\",\"title\":\"%s\",\"status\":500}", http.StatusText(http.StatusInternalServerError))
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(fallback))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(problem.Status)
	_, _ = w.Write(payload)
}
