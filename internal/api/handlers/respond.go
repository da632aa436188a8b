// Package handlers implements the HTTP surface of the gatherings API. Every
// handler resolves the caller from the request context, delegates to a domain
// service and renders either JSON or an RFC 7807 problem.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/Togather-Foundation/gatherings/internal/api/problem"
	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
)

const bodyRequired = "request body is required"

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func pathParam(r *http.Request, key string) string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.PathValue(key))
}

// decodeJSON reads a single JSON object from the body. Oversized bodies keep
// their *http.MaxBytesError so the problem writer can answer 413.
func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return err
		case errors.Is(err, io.EOF):
			return apperr.Invalid("body", bodyRequired)
		default:
			return apperr.Invalid("body", "must be a valid JSON object: "+err.Error())
		}
	}
	if decoder.More() {
		return apperr.Invalid("body", "must contain a single JSON object")
	}
	return nil
}

// decodeOptionalJSON is decodeJSON for endpoints where every field has a
// default, so an empty body leaves dst untouched.
func decodeOptionalJSON(r *http.Request, dst any) error {
	err := decodeJSON(r, dst)
	var fieldErr apperr.FieldError
	if errors.As(err, &fieldErr) && fieldErr.Field == "body" && fieldErr.Message == bodyRequired {
		return nil
	}
	return err
}

type base struct {
	Env string
}

func (b base) fail(w http.ResponseWriter, r *http.Request, err error) {
	problem.FromError(w, r, err, b.Env)
}
