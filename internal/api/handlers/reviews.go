package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/domain/access"
	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/Togather-Foundation/gatherings/internal/domain/events"
	"github.com/Togather-Foundation/gatherings/internal/domain/reviews"
)

type ReviewsHandler struct {
	base
	Service *reviews.Service
}

func NewReviewsHandler(service *reviews.Service, env string) *ReviewsHandler {
	return &ReviewsHandler{base: base{Env: env}, Service: service}
}

type reviewRequest struct {
	Rating  *int   `json:"rating"`
	Comment string `json:"comment"`
}

type reviewPatchRequest struct {
	Rating  *int    `json:"rating"`
	Comment *string `json:"comment"`
}

type reviewResponse struct {
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type reviewListResponse struct {
	Items      []reviewResponse `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

type ratingResponse struct {
	AverageRating *float64 `json:"average_rating"`
	Count         int      `json:"count"`
}

func toReviewResponse(review reviews.Review) reviewResponse {
	return reviewResponse{
		EventID:   review.EventID,
		UserID:    review.UserID,
		Rating:    review.Rating,
		Comment:   review.Comment,
		CreatedAt: review.CreatedAt.UTC(),
		UpdatedAt: review.UpdatedAt.UTC(),
	}
}

// Create answers 201 for the first review of the caller on an event and 409
// for any later attempt.
func (h *ReviewsHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity := access.FromContext(r.Context())
	if identity.IsAnonymous() {
		h.fail(w, r, apperr.ErrUnauthenticated)
		return
	}

	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Rating == nil {
		h.fail(w, r, apperr.Invalid("rating", "is required"))
		return
	}

	review, err := h.Service.Create(r.Context(), identity, pathParam(r, "id"), *req.Rating, req.Comment)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReviewResponse(review))
}

func (h *ReviewsHandler) List(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	limit, err := events.ParseLimit(values)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page := reviews.Pagination{Limit: limit, After: strings.TrimSpace(values.Get("after"))}

	result, err := h.Service.List(r.Context(), access.FromContext(r.Context()), pathParam(r, "id"), page)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	items := make([]reviewResponse, 0, len(result.Reviews))
	for _, review := range result.Reviews {
		items = append(items, toReviewResponse(review))
	}
	writeJSON(w, http.StatusOK, reviewListResponse{Items: items, NextCursor: result.NextCursor})
}

func (h *ReviewsHandler) Rating(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Service.RatingSummary(r.Context(), access.FromContext(r.Context()), pathParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ratingResponse{AverageRating: summary.Average, Count: summary.Count})
}

func (h *ReviewsHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity := access.FromContext(r.Context())
	if identity.IsAnonymous() {
		h.fail(w, r, apperr.ErrUnauthenticated)
		return
	}

	var req reviewPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	review, err := h.Service.Update(r.Context(), identity, pathParam(r, "id"), pathParam(r, "user"), reviews.Patch{
		Rating:  req.Rating,
		Comment: req.Comment,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReviewResponse(*review))
}

func (h *ReviewsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.Service.Delete(r.Context(), access.FromContext(r.Context()), pathParam(r, "id"), pathParam(r, "user"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
