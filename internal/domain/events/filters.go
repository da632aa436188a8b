package events

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/Togather-Foundation/gatherings/internal/api/pagination"
	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// ParseFilters reads listing filters and keyset pagination from query values.
func ParseFilters(values url.Values) (Filters, Pagination, error) {
	filters := Filters{}
	page := Pagination{Limit: defaultLimit}

	filters.Query = strings.TrimSpace(values.Get("q"))
	filters.Location = strings.TrimSpace(values.Get("location"))
	filters.OrganizerID = strings.TrimSpace(values.Get("organizer"))

	if raw := strings.TrimSpace(values.Get("is_public")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return filters, page, apperr.Invalid("is_public", "must be true or false")
		}
		filters.IsPublic = &parsed
	}

	limit, err := ParseLimit(values)
	if err != nil {
		return filters, page, err
	}
	page.Limit = limit

	after := strings.TrimSpace(values.Get("after"))
	if after != "" {
		if _, err := pagination.DecodeEventCursor(after); err != nil {
			return filters, page, apperr.Invalid("after", "must be a cursor returned by a previous page")
		}
	}
	page.After = after

	return filters, page, nil
}

// ParseLimit reads the limit query parameter, defaulting to 10.
func ParseLimit(values url.Values) (int, error) {
	rawLimit := strings.TrimSpace(values.Get("limit"))
	if rawLimit == "" {
		return defaultLimit, nil
	}
	parsed, err := strconv.Atoi(rawLimit)
	if err != nil {
		return 0, apperr.Invalid("limit", "must be a number")
	}
	if parsed < 1 || parsed > maxLimit {
		return 0, apperr.Invalid("limit", "must be between 1 and "+strconv.Itoa(maxLimit))
	}
	return parsed, nil
}
