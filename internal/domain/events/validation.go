package events

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/Togather-Foundation/gatherings/internal/sanitize"
	"github.com/go-playground/validator/v10"
)

const (
	maxInvitees     = 500
	maxUserIDLength = 128
)

// EventInput is the payload for creating an event.
type EventInput struct {
	Title          string    `json:"title" validate:"required,max=255"`
	Description    string    `json:"description" validate:"required,max=10000"`
	Location       string    `json:"location" validate:"required,max=255"`
	StartTime      time.Time `json:"start_time" validate:"required"`
	EndTime        time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
	IsPublic       *bool     `json:"is_public,omitempty"`
	InvitedUserIDs []string  `json:"invited_users,omitempty" validate:"max=500,dive,required,max=128"`
}

// EventPatch carries the fields of a partial update. Nil fields are unchanged.
type EventPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Location    *string    `json:"location,omitempty"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	IsPublic    *bool      `json:"is_public,omitempty"`
}

func (p EventPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Location == nil &&
		p.StartTime == nil && p.EndTime == nil && p.IsPublic == nil
}

// apply merges the patch over the current event into a full input.
func (p EventPatch) apply(current Event) EventInput {
	isPublic := current.IsPublic
	input := EventInput{
		Title:       current.Title,
		Description: current.Description,
		Location:    current.Location,
		StartTime:   current.StartTime,
		EndTime:     current.EndTime,
		IsPublic:    &isPublic,
	}
	if p.Title != nil {
		input.Title = *p.Title
	}
	if p.Description != nil {
		input.Description = *p.Description
	}
	if p.Location != nil {
		input.Location = *p.Location
	}
	if p.StartTime != nil {
		input.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		input.EndTime = *p.EndTime
	}
	if p.IsPublic != nil {
		input.IsPublic = p.IsPublic
	}
	return input
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// normalizeInput sanitizes free text and user ids before validation.
func normalizeInput(input EventInput) EventInput {
	input.Title = sanitize.Text(input.Title)
	input.Description = sanitize.HTML(input.Description)
	input.Location = sanitize.Text(input.Location)
	input.StartTime = input.StartTime.UTC()
	input.EndTime = input.EndTime.UTC()
	input.InvitedUserIDs = normalizeUserIDs(input.InvitedUserIDs)
	return input
}

// ValidateEventInput sanitizes and validates input, returning the cleaned
// value or an apperr.FieldError for the first failing field.
func (s *Service) ValidateEventInput(input EventInput) (EventInput, error) {
	input = normalizeInput(input)
	if err := s.validate.Struct(input); err != nil {
		return input, fieldErrorFrom(err)
	}
	return input, nil
}

func fieldErrorFrom(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return apperr.Invalid("", err.Error())
	}
	first := validationErrs[0]
	field := first.Field()
	if ns := first.Namespace(); strings.HasPrefix(ns, "EventInput.invited_users") {
		field = "invited_users"
	}
	switch first.Tag() {
	case "required":
		return apperr.Invalid(field, "is required")
	case "max":
		if field == "invited_users" && first.Param() == "500" {
			return apperr.Invalid(field, "must contain at most "+first.Param()+" users")
		}
		return apperr.Invalid(field, "must be at most "+first.Param()+" characters")
	case "gtfield":
		return apperr.Invalid(field, "must be after start_time")
	default:
		return apperr.Invalid(field, "failed "+first.Tag()+" validation")
	}
}

// normalizeUserIDs trims, drops blanks and duplicates, keeping first-seen order.
func normalizeUserIDs(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
