package events

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/domain/access"
	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/Togather-Foundation/gatherings/internal/domain/ids"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	mu        sync.Mutex
	events    map[string]*Event
	order     []string
	lastScope Scope
	writes    int
}

func newStubRepo() *stubRepo {
	return &stubRepo{events: map[string]*Event{}}
}

func (r *stubRepo) put(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[e.ID] = &e
	r.order = append(r.order, e.ID)
}

func (r *stubRepo) GetEvent(_ context.Context, id string) (*Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	clone := *e
	clone.InvitedUserIDs = append([]string(nil), e.InvitedUserIDs...)
	return &clone, nil
}

// ListEvents deliberately ignores the scope so the service-side policy filter
// is what the tests observe.
func (r *stubRepo) ListEvents(_ context.Context, scope Scope, _ Filters, page Pagination) (ListResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastScope = scope
	out := make([]Event, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.events[id])
	}
	if page.Limit > 0 && len(out) > page.Limit {
		out = out[:page.Limit]
	}
	return ListResult{Events: out}, nil
}

func (r *stubRepo) CreateEvent(_ context.Context, p CreateParams) (*Event, error) {
	now := time.Now().UTC()
	e := Event{
		ID: p.ID, OrganizerID: p.OrganizerID, Title: p.Title, Description: p.Description,
		Location: p.Location, StartTime: p.StartTime, EndTime: p.EndTime, IsPublic: p.IsPublic,
		InvitedUserIDs: p.InvitedUserIDs, CreatedAt: now, UpdatedAt: now,
	}
	r.put(e)
	r.mu.Lock()
	r.writes++
	r.mu.Unlock()
	return &e, nil
}

func (r *stubRepo) UpdateEvent(_ context.Context, id string, p UpdateParams) (*Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	e.Title, e.Description, e.Location = p.Title, p.Description, p.Location
	e.StartTime, e.EndTime, e.IsPublic = p.StartTime, p.EndTime, p.IsPublic
	r.writes++
	clone := *e
	return &clone, nil
}

func (r *stubRepo) ReplaceInvitees(_ context.Context, id string, userIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return apperr.ErrNotFound
	}
	e.InvitedUserIDs = append([]string(nil), userIDs...)
	r.writes++
	return nil
}

func (r *stubRepo) DeleteEvent(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(r.events, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.writes++
	return nil
}

func mustULID() string {
	id, err := ids.NewULID()
	if err != nil {
		panic(err)
	}
	return id
}

func newTestService(repo Repository) *Service {
	return NewService(repo, zerolog.Nop(), nil)
}

func privateFixture(repo *stubRepo) Event {
	start := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	e := Event{
		ID:             mustULID(),
		OrganizerID:    "O",
		Title:          "Board games",
		Description:    "Bring snacks",
		Location:       "Library",
		StartTime:      start,
		EndTime:        start.Add(2 * time.Hour),
		IsPublic:       false,
		InvitedUserIDs: []string{"A"},
	}
	repo.put(e)
	return e
}

func validInput() EventInput {
	start := time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)
	return EventInput{
		Title:       "Picnic",
		Description: "In the park",
		Location:    "Central Park",
		StartTime:   start,
		EndTime:     start.Add(3 * time.Hour),
	}
}

func TestIsVisiblePrivateEvent(t *testing.T) {
	repo := newStubRepo()
	event := privateFixture(repo)
	svc := newTestService(repo)
	ctx := context.Background()

	tests := []struct {
		name     string
		identity access.Identity
		want     bool
	}{
		{name: "organizer", identity: access.Authenticated("O", false), want: true},
		{name: "invited", identity: access.Authenticated("A", false), want: true},
		{name: "stranger", identity: access.Authenticated("B", false), want: false},
		{name: "anonymous", identity: access.Anonymous(), want: false},
		{name: "staff", identity: access.Authenticated("S", true), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			visible, err := svc.IsVisible(ctx, tt.identity, event.ID)
			require.NoError(t, err)
			require.Equal(t, tt.want, visible)
		})
	}
}

func TestIsVisibleErrors(t *testing.T) {
	svc := newTestService(newStubRepo())
	ctx := context.Background()

	_, err := svc.IsVisible(ctx, access.Anonymous(), mustULID())
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.IsVisible(ctx, access.Anonymous(), "not-a-ulid")
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestGetForbiddenForStranger(t *testing.T) {
	repo := newStubRepo()
	event := privateFixture(repo)
	svc := newTestService(repo)

	_, err := svc.Get(context.Background(), access.Authenticated("B", false), event.ID)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	got, err := svc.Get(context.Background(), access.Authenticated("A", false), event.ID)
	require.NoError(t, err)
	require.Equal(t, event.ID, got.ID)
}

func TestCanMutateOnlyOrganizer(t *testing.T) {
	repo := newStubRepo()
	event := privateFixture(repo)
	svc := newTestService(repo)
	ctx := context.Background()

	ok, err := svc.CanMutate(ctx, access.Authenticated("O", false), event.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.CanMutate(ctx, access.Authenticated("A", false), event.ID)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.CanMutate(ctx, access.Authenticated("S", true), event.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestListVisibleFiltersPage(t *testing.T) {
	repo := newStubRepo()
	private := privateFixture(repo)
	public := private
	public.ID = mustULID()
	public.OrganizerID = "X"
	public.IsPublic = true
	public.InvitedUserIDs = nil
	repo.put(public)
	svc := newTestService(repo)
	ctx := context.Background()

	result, err := svc.ListVisible(ctx, access.Anonymous(), Filters{}, Pagination{})
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	require.Equal(t, public.ID, result.Events[0].ID)
	require.Equal(t, Scope{}, repo.lastScope)

	result, err = svc.ListVisible(ctx, access.Authenticated("A", false), Filters{}, Pagination{})
	require.NoError(t, err)
	require.Len(t, result.Events, 2)
	require.Equal(t, Scope{ViewerID: "A"}, repo.lastScope)

	result, err = svc.ListVisible(ctx, access.Authenticated("S", true), Filters{}, Pagination{})
	require.NoError(t, err)
	require.Len(t, result.Events, 2)
	require.Equal(t, Scope{ViewerID: "S", All: true}, repo.lastScope)
}

func TestCreateRequiresAuthentication(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	_, err := svc.Create(context.Background(), access.Anonymous(), validInput())
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)
	require.Zero(t, repo.writes)
}

func TestCreateSetsOrganizerAndCleansInvitees(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	input := validInput()
	input.Title = "  <b>Picnic</b>  "
	private := false
	input.IsPublic = &private
	input.InvitedUserIDs = []string{"U1", " U1 ", "", "O", "U2"}

	event, err := svc.Create(context.Background(), access.Authenticated("O", false), input)
	require.NoError(t, err)
	require.True(t, ids.IsULID(event.ID))
	require.Equal(t, "O", event.OrganizerID)
	require.Equal(t, "Picnic", event.Title)
	require.False(t, event.IsPublic)
	require.Equal(t, []string{"U1", "U2"}, event.InvitedUserIDs)
}

func TestCreateDefaultsToPublic(t *testing.T) {
	svc := newTestService(newStubRepo())

	event, err := svc.Create(context.Background(), access.Authenticated("O", false), validInput())
	require.NoError(t, err)
	require.True(t, event.IsPublic)
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*EventInput)
		field string
	}{
		{name: "missing title", edit: func(in *EventInput) { in.Title = "   " }, field: "title"},
		{name: "end before start", edit: func(in *EventInput) { in.EndTime = in.StartTime.Add(-time.Hour) }, field: "end_time"},
		{name: "end equals start", edit: func(in *EventInput) { in.EndTime = in.StartTime }, field: "end_time"},
		{name: "missing start", edit: func(in *EventInput) { in.StartTime = time.Time{} }, field: "start_time"},
		{name: "title too long", edit: func(in *EventInput) { in.Title = strings.Repeat("a", 256) }, field: "title"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newStubRepo()
			svc := newTestService(repo)
			input := validInput()
			tt.edit(&input)

			_, err := svc.Create(context.Background(), access.Authenticated("O", false), input)
			require.ErrorIs(t, err, apperr.ErrInvalidArgument)
			var fieldErr apperr.FieldError
			require.ErrorAs(t, err, &fieldErr)
			require.Equal(t, tt.field, fieldErr.Field)
			require.Zero(t, repo.writes)
		})
	}
}

func TestUpdateOrganizerOnly(t *testing.T) {
	repo := newStubRepo()
	event := privateFixture(repo)
	svc := newTestService(repo)
	title := "Chess night"

	_, err := svc.Update(context.Background(), access.Authenticated("A", false), event.ID, EventPatch{Title: &title})
	require.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = svc.Update(context.Background(), access.Anonymous(), event.ID, EventPatch{Title: &title})
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)
	require.Zero(t, repo.writes)

	updated, err := svc.Update(context.Background(), access.Authenticated("O", false), event.ID, EventPatch{Title: &title})
	require.NoError(t, err)
	require.Equal(t, "Chess night", updated.Title)
	require.Equal(t, event.StartTime, updated.StartTime)
}

func TestUpdateRevalidatesMergedTimes(t *testing.T) {
	repo := newStubRepo()
	event := privateFixture(repo)
	svc := newTestService(repo)
	end := event.StartTime.Add(-time.Minute)

	_, err := svc.Update(context.Background(), access.Authenticated("O", false), event.ID, EventPatch{EndTime: &end})
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
	require.Zero(t, repo.writes)
}

func TestSetInviteesGrantsVisibility(t *testing.T) {
	repo := newStubRepo()
	event := privateFixture(repo)
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.SetInvitees(ctx, access.Authenticated("A", false), event.ID, []string{"B"})
	require.ErrorIs(t, err, apperr.ErrForbidden)

	updated, err := svc.SetInvitees(ctx, access.Authenticated("O", false), event.ID, []string{"B", "B", "O", " "})
	require.NoError(t, err)
	require.Equal(t, []string{"B"}, updated.InvitedUserIDs)

	visible, err := svc.IsVisible(ctx, access.Authenticated("B", false), event.ID)
	require.NoError(t, err)
	require.True(t, visible)

	visible, err = svc.IsVisible(ctx, access.Authenticated("A", false), event.ID)
	require.NoError(t, err)
	require.False(t, visible)
}

func TestDeleteOrganizerOnly(t *testing.T) {
	repo := newStubRepo()
	event := privateFixture(repo)
	svc := newTestService(repo)
	ctx := context.Background()

	require.ErrorIs(t, svc.Delete(ctx, access.Authenticated("S", true), event.ID), apperr.ErrForbidden)
	require.NoError(t, svc.Delete(ctx, access.Authenticated("O", false), event.ID))
	require.ErrorIs(t, svc.Delete(ctx, access.Authenticated("O", false), event.ID), apperr.ErrNotFound)
}

func TestParseFilters(t *testing.T) {
	filters, page, err := ParseFilters(url.Values{
		"q":         {" jazz "},
		"location":  {"Toronto"},
		"is_public": {"false"},
		"limit":     {"25"},
	})
	require.NoError(t, err)
	require.Equal(t, "jazz", filters.Query)
	require.Equal(t, "Toronto", filters.Location)
	require.NotNil(t, filters.IsPublic)
	require.False(t, *filters.IsPublic)
	require.Equal(t, 25, page.Limit)

	_, page, err = ParseFilters(url.Values{})
	require.NoError(t, err)
	require.Equal(t, 10, page.Limit)

	for _, values := range []url.Values{
		{"limit": {"0"}},
		{"limit": {"abc"}},
		{"limit": {"101"}},
		{"is_public": {"maybe"}},
		{"after": {"not-a-cursor"}},
	} {
		_, _, err := ParseFilters(values)
		require.ErrorIs(t, err, apperr.ErrInvalidArgument, "values: %v", values)
	}
}
