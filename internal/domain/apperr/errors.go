// Package apperr defines the error taxonomy shared by the domain services and
// the storage backends. Callers classify failures with errors.Is against the
// sentinels below; the HTTP layer maps each one to a distinct status code.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is returned when an anonymous caller attempts a write.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden is returned when an authenticated caller fails a visibility
	// or mutation check for the target resource.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when a referenced event, RSVP or review does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument is returned for domain validation failures.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAlreadyExists is returned when a review already exists for the key.
	ErrAlreadyExists = errors.New("already exists")

	// ErrStoreUnavailable is returned when the backing store failed or timed out.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// FieldError is an ErrInvalidArgument scoped to one input field.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e FieldError) Unwrap() error {
	return ErrInvalidArgument
}

// Invalid builds a FieldError.
func Invalid(field, message string) error {
	return FieldError{Field: field, Message: message}
}

// Unavailable wraps a driver failure so it matches ErrStoreUnavailable while
// keeping the underlying cause inspectable.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
