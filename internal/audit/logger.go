package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	StatusSuccess = "success"
	StatusDenied  = "denied"
	StatusFailure = "failure"
)

// Entry represents a single audit log entry with structured fields
type Entry struct {
	Timestamp    time.Time
	Action       string
	Actor        string
	ResourceType string
	ResourceID   string
	Status       string
	Reason       string
	Details      map[string]string
}

// Logger writes audit entries for event, RSVP and review mutations.
// A nil *Logger discards everything.
type Logger struct {
	output zerolog.Logger
}

// NewLogger creates a new audit logger on top of the application logger.
func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{
		output: logger.With().Str("component", "audit").Logger(),
	}
}

// Log writes an audit entry. The request id is taken from the context logger
// when one is attached.
func (l *Logger) Log(ctx context.Context, entry Entry) {
	if l == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	level := zerolog.InfoLevel
	if entry.Status != StatusSuccess {
		level = zerolog.WarnLevel
	}
	out := l.output
	if reqLogger := zerolog.Ctx(ctx); reqLogger.GetLevel() != zerolog.Disabled {
		// Request-scoped logger carries request_id from CorrelationID.
		out = reqLogger.With().Str("component", "audit").Logger()
	}

	evt := out.WithLevel(level)
	evt = evt.
		Time("at", entry.Timestamp).
		Str("action", entry.Action).
		Str("actor", entry.Actor).
		Str("resource_type", entry.ResourceType).
		Str("resource_id", entry.ResourceID).
		Str("status", entry.Status)
	if entry.Reason != "" {
		evt = evt.Str("reason", entry.Reason)
	}
	if len(entry.Details) > 0 {
		dict := zerolog.Dict()
		for k, v := range entry.Details {
			dict = dict.Str(k, v)
		}
		evt = evt.Dict("details", dict)
	}
	evt.Msg("audit")
}

// LogSuccess logs a completed mutation.
func (l *Logger) LogSuccess(ctx context.Context, action, actor, resourceType, resourceID string, details map[string]string) {
	l.Log(ctx, Entry{
		Action:       action,
		Actor:        actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Status:       StatusSuccess,
		Details:      details,
	})
}

// LogDenied logs a mutation rejected by a policy check.
func (l *Logger) LogDenied(ctx context.Context, action, actor, resourceType, resourceID string, reason error) {
	entry := Entry{
		Action:       action,
		Actor:        actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Status:       StatusDenied,
	}
	if reason != nil {
		entry.Reason = reason.Error()
	}
	l.Log(ctx, entry)
}
