package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/domain/access"
	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/Togather-Foundation/gatherings/internal/domain/rsvps"
)

type RSVPsHandler struct {
	base
	Service *rsvps.Service
}

func NewRSVPsHandler(service *rsvps.Service, env string) *RSVPsHandler {
	return &RSVPsHandler{base: base{Env: env}, Service: service}
}

type rsvpRequest struct {
	Status string `json:"status"`
}

type rsvpResponse struct {
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type rsvpListResponse struct {
	Items []rsvpResponse `json:"items"`
}

func toRSVPResponse(rsvp rsvps.RSVP) rsvpResponse {
	return rsvpResponse{
		EventID:   rsvp.EventID,
		UserID:    rsvp.UserID,
		Status:    string(rsvp.Status),
		CreatedAt: rsvp.CreatedAt.UTC(),
		UpdatedAt: rsvp.UpdatedAt.UTC(),
	}
}

func toRSVPList(items []rsvps.RSVP) rsvpListResponse {
	out := make([]rsvpResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toRSVPResponse(item))
	}
	return rsvpListResponse{Items: out}
}

// Upsert answers 201 when the call created the caller's RSVP and 200 when it
// overwrote an existing one. An absent or blank status means going.
func (h *RSVPsHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	identity := access.FromContext(r.Context())
	if identity.IsAnonymous() {
		h.fail(w, r, apperr.ErrUnauthenticated)
		return
	}

	var req rsvpRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		req.Status = string(rsvps.StatusGoing)
	}

	rsvp, created, err := h.Service.Upsert(r.Context(), identity, pathParam(r, "id"), req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, toRSVPResponse(rsvp))
}

func (h *RSVPsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.List(r.Context(), access.FromContext(r.Context()), pathParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRSVPList(items))
}

func (h *RSVPsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.ListMine(r.Context(), access.FromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRSVPList(items))
}

func (h *RSVPsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.Service.Delete(r.Context(), access.FromContext(r.Context()), pathParam(r, "id"), pathParam(r, "user"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
