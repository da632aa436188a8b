package rsvps

import (
	"context"
	"errors"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/audit"
	"github.com/Togather-Foundation/gatherings/internal/domain/access"
	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/Togather-Foundation/gatherings/internal/domain/events"
	"github.com/Togather-Foundation/gatherings/internal/domain/ids"
	"github.com/Togather-Foundation/gatherings/internal/metrics"
	"github.com/Togather-Foundation/gatherings/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = telemetry.GetTracer("github.com/Togather-Foundation/gatherings/internal/domain/rsvps")

// Service is the RSVP registry: one record per (event, user), revised in
// place by later calls.
type Service struct {
	repo   Repository
	events events.Reader
	audit  *audit.Logger
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, eventReader events.Reader, logger zerolog.Logger, auditLogger *audit.Logger) *Service {
	return &Service{
		repo:   repo,
		events: eventReader,
		audit:  auditLogger,
		logger: logger.With().Str("component", "rsvps").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Upsert records the caller's status for an event. The first call creates the
// record; later calls overwrite its status and report created=false.
func (s *Service) Upsert(ctx context.Context, identity access.Identity, eventID string, rawStatus string) (RSVP, bool, error) {
	ctx, span := tracer.Start(ctx, "rsvps.Upsert", trace.WithAttributes(attribute.String("event.id", eventID)))
	defer span.End()

	if identity.IsAnonymous() {
		metrics.AuthorizationDenialsTotal.WithLabelValues("rsvp", "unauthenticated").Inc()
		return RSVP{}, false, apperr.ErrUnauthenticated
	}
	status, err := ParseStatus(rawStatus)
	if err != nil {
		return RSVP{}, false, err
	}
	event, err := s.viewable(ctx, identity, eventID)
	if err != nil {
		return RSVP{}, false, err
	}

	key := Key{EventID: event.ID, UserID: identity.UserID()}
	rsvp, created, err := s.repo.UpsertRSVP(ctx, key, status, s.now())
	if err != nil {
		return RSVP{}, false, err
	}

	result := "updated"
	if created {
		result = "created"
	}
	span.SetAttributes(attribute.Bool("rsvp.created", created))
	metrics.RSVPUpsertsTotal.WithLabelValues(result, string(status)).Inc()
	s.audit.LogSuccess(ctx, "rsvp.upsert", key.UserID, "rsvp", key.EventID+"/"+key.UserID, map[string]string{
		"status": string(status),
		"result": result,
	})
	return rsvp, created, nil
}

// List returns the RSVPs of an event. The organizer and staff see every
// record; any other viewer sees only their own, which is always empty for an
// anonymous viewer of a public event.
func (s *Service) List(ctx context.Context, identity access.Identity, eventID string) ([]RSVP, error) {
	ctx, span := tracer.Start(ctx, "rsvps.List", trace.WithAttributes(attribute.String("event.id", eventID)))
	defer span.End()

	event, err := s.viewable(ctx, identity, eventID)
	if err != nil {
		return nil, err
	}
	if identity.IsAnonymous() {
		return []RSVP{}, nil
	}
	if identity.IsStaff() || identity.UserID() == event.OrganizerID {
		return s.repo.ListRSVPsByEvent(ctx, event.ID)
	}

	own, err := s.repo.GetRSVP(ctx, Key{EventID: event.ID, UserID: identity.UserID()})
	if errors.Is(err, apperr.ErrNotFound) {
		return []RSVP{}, nil
	}
	if err != nil {
		return nil, err
	}
	return []RSVP{*own}, nil
}

// Get returns the caller's own RSVP for a visible event.
func (s *Service) Get(ctx context.Context, identity access.Identity, eventID string) (*RSVP, error) {
	if identity.IsAnonymous() {
		return nil, apperr.ErrUnauthenticated
	}
	event, err := s.viewable(ctx, identity, eventID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetRSVP(ctx, Key{EventID: event.ID, UserID: identity.UserID()})
}

// StatusFor returns the caller's RSVP status for an event the caller has
// already been allowed to read, or "" when there is none.
func (s *Service) StatusFor(ctx context.Context, identity access.Identity, eventID string) (Status, error) {
	if identity.IsAnonymous() {
		return "", nil
	}
	rsvp, err := s.repo.GetRSVP(ctx, Key{EventID: ids.Normalize(eventID), UserID: identity.UserID()})
	if errors.Is(err, apperr.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return rsvp.Status, nil
}

// GoingCount is the number of "going" RSVPs for an event.
func (s *Service) GoingCount(ctx context.Context, eventID string) (int, error) {
	return s.repo.CountRSVPs(ctx, ids.Normalize(eventID), StatusGoing)
}

// ListMine lists the caller's RSVPs across events. Staff see every RSVP.
func (s *Service) ListMine(ctx context.Context, identity access.Identity) ([]RSVP, error) {
	if identity.IsAnonymous() {
		return nil, apperr.ErrUnauthenticated
	}
	if identity.IsStaff() {
		return s.repo.ListRSVPsByUser(ctx, "")
	}
	return s.repo.ListRSVPsByUser(ctx, identity.UserID())
}

// Delete removes an RSVP. Only the user who holds it may delete it.
func (s *Service) Delete(ctx context.Context, identity access.Identity, eventID, userID string) error {
	ctx, span := tracer.Start(ctx, "rsvps.Delete", trace.WithAttributes(attribute.String("event.id", eventID)))
	defer span.End()

	if identity.IsAnonymous() {
		metrics.AuthorizationDenialsTotal.WithLabelValues("rsvp", "unauthenticated").Inc()
		return apperr.ErrUnauthenticated
	}
	eventID = ids.Normalize(eventID)
	if err := ids.ValidateULID(eventID); err != nil {
		return apperr.Invalid("event_id", "must be a valid ULID")
	}
	key := Key{EventID: eventID, UserID: userID}
	if !access.CanMutate(identity, userID) {
		metrics.AuthorizationDenialsTotal.WithLabelValues("rsvp", "forbidden").Inc()
		s.audit.LogDenied(ctx, "rsvp.delete", identity.UserID(), "rsvp", key.EventID+"/"+key.UserID, apperr.ErrForbidden)
		return apperr.ErrForbidden
	}
	if err := s.repo.DeleteRSVP(ctx, key); err != nil {
		return err
	}
	s.audit.LogSuccess(ctx, "rsvp.delete", identity.UserID(), "rsvp", key.EventID+"/"+key.UserID, nil)
	return nil
}

func (s *Service) viewable(ctx context.Context, identity access.Identity, eventID string) (*events.Event, error) {
	event, err := events.ViewableEvent(ctx, s.events, identity, eventID)
	if errors.Is(err, apperr.ErrForbidden) {
		metrics.AuthorizationDenialsTotal.WithLabelValues("rsvp", "forbidden").Inc()
		s.logger.Debug().Str("event_id", eventID).Str("identity", identity.String()).Msg("rsvp access denied")
	}
	return event, err
}
