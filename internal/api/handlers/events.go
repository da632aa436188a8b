package handlers

import (
	"net/http"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/domain/access"
	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/Togather-Foundation/gatherings/internal/domain/events"
	"github.com/Togather-Foundation/gatherings/internal/domain/reviews"
	"github.com/Togather-Foundation/gatherings/internal/domain/rsvps"
	"golang.org/x/sync/errgroup"
)

type EventsHandler struct {
	base
	Events  *events.Service
	RSVPs   *rsvps.Service
	Reviews *reviews.Service
}

func NewEventsHandler(eventsService *events.Service, rsvpService *rsvps.Service, reviewService *reviews.Service, env string) *EventsHandler {
	return &EventsHandler{
		base:    base{Env: env},
		Events:  eventsService,
		RSVPs:   rsvpService,
		Reviews: reviewService,
	}
}

type eventResponse struct {
	ID           string    `json:"id"`
	OrganizerID  string    `json:"organizer_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Location     string    `json:"location"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	IsPublic     bool      `json:"is_public"`
	InvitedUsers []string  `json:"invited_users"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// eventDetailResponse adds the derived aggregates shown on a single event.
type eventDetailResponse struct {
	eventResponse
	RSVPCount      int      `json:"rsvp_count"`
	UserRSVPStatus *string  `json:"user_rsvp_status"`
	AverageRating  *float64 `json:"average_rating"`
	ReviewCount    int      `json:"review_count"`
}

type eventListResponse struct {
	Items      []eventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type permissionsResponse struct {
	Visible   bool `json:"visible"`
	CanMutate bool `json:"can_mutate"`
}

type inviteesRequest struct {
	InvitedUsers []string `json:"invited_users"`
}

func toEventResponse(event events.Event) eventResponse {
	invited := event.InvitedUserIDs
	if invited == nil {
		invited = []string{}
	}
	return eventResponse{
		ID:           event.ID,
		OrganizerID:  event.OrganizerID,
		Title:        event.Title,
		Description:  event.Description,
		Location:     event.Location,
		StartTime:    event.StartTime.UTC(),
		EndTime:      event.EndTime.UTC(),
		IsPublic:     event.IsPublic,
		InvitedUsers: invited,
		CreatedAt:    event.CreatedAt.UTC(),
		UpdatedAt:    event.UpdatedAt.UTC(),
	}
}

func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	filters, page, err := events.ParseFilters(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.Events.ListVisible(r.Context(), access.FromContext(r.Context()), filters, page)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	items := make([]eventResponse, 0, len(result.Events))
	for _, event := range result.Events {
		items = append(items, toEventResponse(event))
	}
	writeJSON(w, http.StatusOK, eventListResponse{Items: items, NextCursor: result.NextCursor})
}

func (h *EventsHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity := access.FromContext(r.Context())
	if identity.IsAnonymous() {
		h.fail(w, r, apperr.ErrUnauthenticated)
		return
	}

	var input events.EventInput
	if err := decodeJSON(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}

	event, err := h.Events.Create(r.Context(), identity, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/events/"+event.ID)
	writeJSON(w, http.StatusCreated, toEventResponse(*event))
}

// Get renders one event with its going count, rating aggregate and the
// caller's own RSVP status. The aggregates are loaded concurrently once the
// visibility check has passed.
func (h *EventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity := access.FromContext(r.Context())
	event, err := h.Events.Get(r.Context(), identity, pathParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	detail := eventDetailResponse{eventResponse: toEventResponse(*event)}
	group, ctx := errgroup.WithContext(r.Context())
	group.Go(func() error {
		count, err := h.RSVPs.GoingCount(ctx, event.ID)
		detail.RSVPCount = count
		return err
	})
	group.Go(func() error {
		status, err := h.RSVPs.StatusFor(ctx, identity, event.ID)
		if status != "" {
			value := string(status)
			detail.UserRSVPStatus = &value
		}
		return err
	})
	group.Go(func() error {
		summary, err := h.Reviews.RatingSummary(ctx, identity, event.ID)
		detail.AverageRating = summary.Average
		detail.ReviewCount = summary.Count
		return err
	})
	if err := group.Wait(); err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

func (h *EventsHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity := access.FromContext(r.Context())
	if identity.IsAnonymous() {
		h.fail(w, r, apperr.ErrUnauthenticated)
		return
	}

	var patch events.EventPatch
	if err := decodeJSON(r, &patch); err != nil {
		h.fail(w, r, err)
		return
	}

	event, err := h.Events.Update(r.Context(), identity, pathParam(r, "id"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(*event))
}

func (h *EventsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Events.Delete(r.Context(), access.FromContext(r.Context()), pathParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *EventsHandler) SetInvitees(w http.ResponseWriter, r *http.Request) {
	identity := access.FromContext(r.Context())
	if identity.IsAnonymous() {
		h.fail(w, r, apperr.ErrUnauthenticated)
		return
	}

	var req inviteesRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	event, err := h.Events.SetInvitees(r.Context(), identity, pathParam(r, "id"), req.InvitedUsers)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(*event))
}

// Permissions reports what the caller may do with an event. It answers for
// private events too, so clients can tell "hidden" from "missing".
func (h *EventsHandler) Permissions(w http.ResponseWriter, r *http.Request) {
	identity := access.FromContext(r.Context())
	id := pathParam(r, "id")

	visible, err := h.Events.IsVisible(r.Context(), identity, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	canMutate, err := h.Events.CanMutate(r.Context(), identity, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, permissionsResponse{Visible: visible, CanMutate: canMutate})
}
