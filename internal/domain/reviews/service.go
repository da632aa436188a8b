package reviews

import (
	"context"
	"errors"
	"math"
	"time"
	"unicode/utf8"

	"github.com/Togather-Foundation/gatherings/internal/api/pagination"
	"github.com/Togather-Foundation/gatherings/internal/audit"
	"github.com/Togather-Foundation/gatherings/internal/domain/access"
	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/Togather-Foundation/gatherings/internal/domain/events"
	"github.com/Togather-Foundation/gatherings/internal/domain/ids"
	"github.com/Togather-Foundation/gatherings/internal/metrics"
	"github.com/Togather-Foundation/gatherings/internal/sanitize"
	"github.com/Togather-Foundation/gatherings/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	MinRating        = 1
	MaxRating        = 5
	maxCommentLength = 2000
)

var tracer = telemetry.GetTracer("github.com/Togather-Foundation/gatherings/internal/domain/reviews")

// Summary is the derived rating aggregate of an event.
type Summary struct {
	Average *float64
	Count   int
}

// Patch carries an owner's edit. Nil fields are unchanged.
type Patch struct {
	Rating  *int
	Comment *string
}

// Service is the review registry: at most one review per (event, user), and
// a second create for the same key is rejected.
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
		logger: logger.With().Str("component", "reviews").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Create(ctx context.Context, identity access.Identity, eventID string, rating int, comment string) (Review, error) {
	ctx, span := tracer.Start(ctx, "reviews.Create", trace.WithAttributes(attribute.String("event.id", eventID)))
	defer span.End()

	if identity.IsAnonymous() {
		metrics.AuthorizationDenialsTotal.WithLabelValues("review", "unauthenticated").Inc()
		return Review{}, apperr.ErrUnauthenticated
	}
	if err := validateRating(rating); err != nil {
		return Review{}, err
	}
	comment, err := cleanComment(comment)
	if err != nil {
		return Review{}, err
	}
	event, err := s.viewable(ctx, identity, eventID)
	if err != nil {
		return Review{}, err
	}

	now := s.now()
	review, err := s.repo.InsertReviewIfAbsent(ctx, Review{
		EventID:   event.ID,
		UserID:    identity.UserID(),
		Rating:    rating,
		Comment:   comment,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if errors.Is(err, apperr.ErrAlreadyExists) {
		metrics.ReviewCreatesTotal.WithLabelValues("duplicate").Inc()
		return Review{}, err
	}
	if err != nil {
		return Review{}, err
	}

	metrics.ReviewCreatesTotal.WithLabelValues("created").Inc()
	s.audit.LogSuccess(ctx, "review.create", identity.UserID(), "review", event.ID+"/"+identity.UserID(), nil)
	return review, nil
}

// AverageRating is the mean rating of an event rounded to two decimals, or
// nil when the event has no reviews.
func (s *Service) AverageRating(ctx context.Context, eventID string) (*float64, error) {
	summary, err := s.summary(ctx, ids.Normalize(eventID))
	if err != nil {
		return nil, err
	}
	return summary.Average, nil
}

// RatingSummary returns the rating aggregate of an event the caller can view.
func (s *Service) RatingSummary(ctx context.Context, identity access.Identity, eventID string) (Summary, error) {
	event, err := s.viewable(ctx, identity, eventID)
	if err != nil {
		return Summary{}, err
	}
	return s.summary(ctx, event.ID)
}

func (s *Service) summary(ctx context.Context, eventID string) (Summary, error) {
	avg, count, err := s.repo.AverageRating(ctx, eventID)
	if err != nil {
		return Summary{}, err
	}
	if avg == nil || count == 0 {
		return Summary{}, nil
	}
	rounded := roundRating(*avg)
	return Summary{Average: &rounded, Count: count}, nil
}

// List pages the reviews of an event the caller can view.
func (s *Service) List(ctx context.Context, identity access.Identity, eventID string, page Pagination) (ListResult, error) {
	event, err := s.viewable(ctx, identity, eventID)
	if err != nil {
		return ListResult{}, err
	}
	if page.After != "" {
		if _, err := pagination.DecodeKeyCursor(page.After); err != nil {
			return ListResult{}, apperr.Invalid("after", "must be a cursor returned by a previous page")
		}
	}
	return s.repo.ListReviewsByEvent(ctx, event.ID, page)
}

// Update edits a review. Only its author may do so.
func (s *Service) Update(ctx context.Context, identity access.Identity, eventID, userID string, patch Patch) (*Review, error) {
	ctx, span := tracer.Start(ctx, "reviews.Update", trace.WithAttributes(attribute.String("event.id", eventID)))
	defer span.End()

	key, err := s.authorizeOwner(ctx, identity, eventID, userID, "review.update")
	if err != nil {
		return nil, err
	}
	current, err := s.repo.GetReview(ctx, key)
	if err != nil {
		return nil, err
	}

	rating, comment := current.Rating, current.Comment
	if patch.Rating != nil {
		if err := validateRating(*patch.Rating); err != nil {
			return nil, err
		}
		rating = *patch.Rating
	}
	if patch.Comment != nil {
		if comment, err = cleanComment(*patch.Comment); err != nil {
			return nil, err
		}
	}

	updated, err := s.repo.UpdateReview(ctx, key, rating, comment, s.now())
	if err != nil {
		return nil, err
	}
	s.audit.LogSuccess(ctx, "review.update", identity.UserID(), "review", key.EventID+"/"+key.UserID, nil)
	return updated, nil
}

// Delete removes a review. Only its author may do so.
func (s *Service) Delete(ctx context.Context, identity access.Identity, eventID, userID string) error {
	key, err := s.authorizeOwner(ctx, identity, eventID, userID, "review.delete")
	if err != nil {
		return err
	}
	if err := s.repo.DeleteReview(ctx, key); err != nil {
		return err
	}
	s.audit.LogSuccess(ctx, "review.delete", identity.UserID(), "review", key.EventID+"/"+key.UserID, nil)
	return nil
}

func (s *Service) authorizeOwner(ctx context.Context, identity access.Identity, eventID, userID, action string) (Key, error) {
	if identity.IsAnonymous() {
		metrics.AuthorizationDenialsTotal.WithLabelValues("review", "unauthenticated").Inc()
		return Key{}, apperr.ErrUnauthenticated
	}
	eventID = ids.Normalize(eventID)
	if err := ids.ValidateULID(eventID); err != nil {
		return Key{}, apperr.Invalid("event_id", "must be a valid ULID")
	}
	key := Key{EventID: eventID, UserID: userID}
	if !access.CanMutate(identity, userID) {
		metrics.AuthorizationDenialsTotal.WithLabelValues("review", "forbidden").Inc()
		s.audit.LogDenied(ctx, action, identity.UserID(), "review", key.EventID+"/"+key.UserID, apperr.ErrForbidden)
		return Key{}, apperr.ErrForbidden
	}
	return key, nil
}

func (s *Service) viewable(ctx context.Context, identity access.Identity, eventID string) (*events.Event, error) {
	event, err := events.ViewableEvent(ctx, s.events, identity, eventID)
	if errors.Is(err, apperr.ErrForbidden) {
		metrics.AuthorizationDenialsTotal.WithLabelValues("review", "forbidden").Inc()
		s.logger.Debug().Str("event_id", eventID).Str("identity", identity.String()).Msg("review access denied")
	}
	return event, err
}

func validateRating(rating int) error {
	if rating < MinRating || rating > MaxRating {
		return apperr.Invalid("rating", "must be between 1 and 5")
	}
	return nil
}

func cleanComment(comment string) (string, error) {
	comment = sanitize.Text(comment)
	if utf8.RuneCountInString(comment) > maxCommentLength {
		return "", apperr.Invalid("comment", "must be at most 2000 characters")
	}
	return comment, nil
}

func roundRating(value float64) float64 {
	return math.Round(value*100) / 100
}
