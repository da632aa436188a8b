package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/audit"
	"github.com/Togather-Foundation/gatherings/internal/domain/access"
	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/Togather-Foundation/gatherings/internal/domain/ids"
	"github.com/Togather-Foundation/gatherings/internal/metrics"
	"github.com/Togather-Foundation/gatherings/internal/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = telemetry.GetTracer("github.com/Togather-Foundation/gatherings/internal/domain/events")

type Service struct {
	repo     Repository
	validate *validator.Validate
	audit    *audit.Logger
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger, auditLogger *audit.Logger) *Service {
	return &Service{
		repo:     repo,
		validate: newValidator(),
		audit:    auditLogger,
		logger:   logger.With().Str("component", "events").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ViewableEvent loads an event and applies the visibility policy. It is the
// shared gate for every read of an event or its derived resources.
func ViewableEvent(ctx context.Context, reader Reader, identity access.Identity, eventID string) (*Event, error) {
	eventID = ids.Normalize(eventID)
	if err := ids.ValidateULID(eventID); err != nil {
		return nil, apperr.Invalid("event_id", "must be a valid ULID")
	}
	event, err := reader.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !access.CanView(identity, event.Target()) {
		return nil, apperr.ErrForbidden
	}
	return event, nil
}

func (s *Service) Get(ctx context.Context, identity access.Identity, eventID string) (*Event, error) {
	ctx, span := tracer.Start(ctx, "events.Get", trace.WithAttributes(attribute.String("event.id", eventID)))
	defer span.End()

	event, err := ViewableEvent(ctx, s.repo, identity, eventID)
	if errors.Is(err, apperr.ErrForbidden) {
		metrics.AuthorizationDenialsTotal.WithLabelValues("event", "forbidden").Inc()
	}
	return event, err
}

// IsVisible reports whether identity may read the event.
func (s *Service) IsVisible(ctx context.Context, identity access.Identity, eventID string) (bool, error) {
	event, err := s.lookup(ctx, eventID)
	if err != nil {
		return false, err
	}
	return access.CanView(identity, event.Target()), nil
}

// CanMutate reports whether identity may change the event.
func (s *Service) CanMutate(ctx context.Context, identity access.Identity, eventID string) (bool, error) {
	event, err := s.lookup(ctx, eventID)
	if err != nil {
		return false, err
	}
	return access.CanMutateEvent(identity, event.Target()), nil
}

// ListVisible returns one page of events the identity may see. The store
// narrows by scope; the policy filter is applied again over the page.
func (s *Service) ListVisible(ctx context.Context, identity access.Identity, filters Filters, page Pagination) (ListResult, error) {
	ctx, span := tracer.Start(ctx, "events.ListVisible")
	defer span.End()

	if page.Limit <= 0 {
		page.Limit = defaultLimit
	}
	result, err := s.repo.ListEvents(ctx, ScopeFor(identity), filters, page)
	if err != nil {
		return ListResult{}, err
	}
	result.Events = access.FilterVisible(identity, result.Events, Event.Target)
	span.SetAttributes(attribute.Int("events.count", len(result.Events)))
	return result, nil
}

func (s *Service) Create(ctx context.Context, identity access.Identity, input EventInput) (*Event, error) {
	ctx, span := tracer.Start(ctx, "events.Create")
	defer span.End()

	if identity.IsAnonymous() {
		metrics.AuthorizationDenialsTotal.WithLabelValues("event", "unauthenticated").Inc()
		return nil, apperr.ErrUnauthenticated
	}
	input, err := s.ValidateEventInput(input)
	if err != nil {
		return nil, err
	}

	isPublic := true
	if input.IsPublic != nil {
		isPublic = *input.IsPublic
	}
	id, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("generate event id: %w", err)
	}
	params := CreateParams{
		ID:             id,
		OrganizerID:    identity.UserID(),
		Title:          input.Title,
		Description:    input.Description,
		Location:       input.Location,
		StartTime:      input.StartTime,
		EndTime:        input.EndTime,
		IsPublic:       isPublic,
		InvitedUserIDs: withoutUser(input.InvitedUserIDs, identity.UserID()),
	}
	event, err := s.repo.CreateEvent(ctx, params)
	if err != nil {
		return nil, err
	}

	metrics.EventMutationsTotal.WithLabelValues("create").Inc()
	s.logger.Debug().Str("event_id", event.ID).Bool("is_public", event.IsPublic).Msg("event created")
	s.audit.LogSuccess(ctx, "event.create", identity.UserID(), "event", event.ID, nil)
	return event, nil
}

func (s *Service) Update(ctx context.Context, identity access.Identity, eventID string, patch EventPatch) (*Event, error) {
	ctx, span := tracer.Start(ctx, "events.Update", trace.WithAttributes(attribute.String("event.id", eventID)))
	defer span.End()

	current, err := s.authorizeMutation(ctx, identity, eventID, "event.update")
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return current, nil
	}

	input, err := s.ValidateEventInput(patch.apply(*current))
	if err != nil {
		return nil, err
	}
	updated, err := s.repo.UpdateEvent(ctx, current.ID, UpdateParams{
		Title:       input.Title,
		Description: input.Description,
		Location:    input.Location,
		StartTime:   input.StartTime,
		EndTime:     input.EndTime,
		IsPublic:    *input.IsPublic,
	})
	if err != nil {
		return nil, err
	}

	metrics.EventMutationsTotal.WithLabelValues("update").Inc()
	s.audit.LogSuccess(ctx, "event.update", identity.UserID(), "event", updated.ID, map[string]string{
		"fields": strings.Join(patch.fields(), ","),
	})
	return updated, nil
}

// SetInvitees replaces the invited set. Blank and duplicate ids are dropped
// and the organizer is never stored as an invitee.
func (s *Service) SetInvitees(ctx context.Context, identity access.Identity, eventID string, userIDs []string) (*Event, error) {
	ctx, span := tracer.Start(ctx, "events.SetInvitees", trace.WithAttributes(attribute.String("event.id", eventID)))
	defer span.End()

	current, err := s.authorizeMutation(ctx, identity, eventID, "event.invitees")
	if err != nil {
		return nil, err
	}

	invitees := withoutUser(normalizeUserIDs(userIDs), current.OrganizerID)
	if len(invitees) > maxInvitees {
		return nil, apperr.Invalid("invited_users", "must contain at most 500 users")
	}
	for _, id := range invitees {
		if len(id) > maxUserIDLength {
			return nil, apperr.Invalid("invited_users", "user ids must be at most 128 characters")
		}
	}
	if err := s.repo.ReplaceInvitees(ctx, current.ID, invitees); err != nil {
		return nil, err
	}

	current.InvitedUserIDs = invitees
	current.UpdatedAt = s.now()
	metrics.EventMutationsTotal.WithLabelValues("invitees").Inc()
	s.audit.LogSuccess(ctx, "event.invitees", identity.UserID(), "event", current.ID, nil)
	return current, nil
}

func (s *Service) Delete(ctx context.Context, identity access.Identity, eventID string) error {
	ctx, span := tracer.Start(ctx, "events.Delete", trace.WithAttributes(attribute.String("event.id", eventID)))
	defer span.End()

	current, err := s.authorizeMutation(ctx, identity, eventID, "event.delete")
	if err != nil {
		return err
	}
	if err := s.repo.DeleteEvent(ctx, current.ID); err != nil {
		return err
	}

	metrics.EventMutationsTotal.WithLabelValues("delete").Inc()
	s.audit.LogSuccess(ctx, "event.delete", identity.UserID(), "event", current.ID, nil)
	return nil
}

// authorizeMutation resolves the event and runs the organizer check before
// any write is attempted.
func (s *Service) authorizeMutation(ctx context.Context, identity access.Identity, eventID, action string) (*Event, error) {
	if identity.IsAnonymous() {
		metrics.AuthorizationDenialsTotal.WithLabelValues("event", "unauthenticated").Inc()
		return nil, apperr.ErrUnauthenticated
	}
	event, err := s.lookup(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !access.CanMutateEvent(identity, event.Target()) {
		metrics.AuthorizationDenialsTotal.WithLabelValues("event", "forbidden").Inc()
		s.audit.LogDenied(ctx, action, identity.UserID(), "event", event.ID, apperr.ErrForbidden)
		return nil, apperr.ErrForbidden
	}
	return event, nil
}

func (s *Service) lookup(ctx context.Context, eventID string) (*Event, error) {
	eventID = ids.Normalize(eventID)
	if err := ids.ValidateULID(eventID); err != nil {
		return nil, apperr.Invalid("event_id", "must be a valid ULID")
	}
	return s.repo.GetEvent(ctx, eventID)
}

func (p EventPatch) fields() []string {
	var fields []string
	if p.Title != nil {
		fields = append(fields, "title")
	}
	if p.Description != nil {
		fields = append(fields, "description")
	}
	if p.Location != nil {
		fields = append(fields, "location")
	}
	if p.StartTime != nil {
		fields = append(fields, "start_time")
	}
	if p.EndTime != nil {
		fields = append(fields, "end_time")
	}
	if p.IsPublic != nil {
		fields = append(fields, "is_public")
	}
	return fields
}

func withoutUser(userIDs []string, userID string) []string {
	out := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if id != userID {
			out = append(out, id)
		}
	}
	return out
}
