package rsvps

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/domain/access"
	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/Togather-Foundation/gatherings/internal/domain/events"
	"github.com/Togather-Foundation/gatherings/internal/domain/ids"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type eventReader map[string]events.Event

func (r eventReader) GetEvent(_ context.Context, id string) (*events.Event, error) {
	e, ok := r[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &e, nil
}

type memoryStore struct {
	mu      sync.Mutex
	records map[Key]RSVP
	upserts int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[Key]RSVP{}}
}

func (m *memoryStore) UpsertRSVP(_ context.Context, key Key, status Status, at time.Time) (RSVP, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	existing, ok := m.records[key]
	if !ok {
		rec := RSVP{EventID: key.EventID, UserID: key.UserID, Status: status, CreatedAt: at, UpdatedAt: at}
		m.records[key] = rec
		return rec, true, nil
	}
	existing.Status = status
	existing.UpdatedAt = at
	m.records[key] = existing
	return existing, false, nil
}

func (m *memoryStore) GetRSVP(_ context.Context, key Key) (*RSVP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &rec, nil
}

func (m *memoryStore) ListRSVPsByEvent(_ context.Context, eventID string) ([]RSVP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RSVP
	for key, rec := range m.records {
		if key.EventID == eventID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *memoryStore) ListRSVPsByUser(_ context.Context, userID string) ([]RSVP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RSVP
	for key, rec := range m.records {
		if userID == "" || key.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memoryStore) CountRSVPs(_ context.Context, eventID string, status Status) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key, rec := range m.records {
		if key.EventID == eventID && rec.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) DeleteRSVP(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[key]; !ok {
		return apperr.ErrNotFound
	}
	delete(m.records, key)
	return nil
}

func (m *memoryStore) count(eventID string) int {
	recs, _ := m.ListRSVPsByEvent(context.Background(), eventID)
	return len(recs)
}

type fixture struct {
	store   *memoryStore
	svc     *Service
	private events.Event
	public  events.Event
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	privateID, err := ids.NewULID()
	require.NoError(t, err)
	publicID, err := ids.NewULID()
	require.NoError(t, err)

	private := events.Event{ID: privateID, OrganizerID: "O", IsPublic: false, InvitedUserIDs: []string{"U1"}}
	public := events.Event{ID: publicID, OrganizerID: "O", IsPublic: true}
	store := newMemoryStore()
	svc := NewService(store, eventReader{privateID: private, publicID: public}, zerolog.Nop(), nil)
	return fixture{store: store, svc: svc, private: private, public: public}
}

func TestParseStatus(t *testing.T) {
	for _, raw := range []string{"going", "Maybe", " NOT_GOING "} {
		status, err := ParseStatus(raw)
		require.NoError(t, err)
		require.True(t, status.Valid())
	}
	for _, raw := range []string{"", "yes", "not going", "interested"} {
		_, err := ParseStatus(raw)
		require.ErrorIs(t, err, apperr.ErrInvalidArgument, raw)
	}
}

func TestUpsertCreatesThenUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u1 := access.Authenticated("U1", false)

	rsvp, created, err := f.svc.Upsert(ctx, u1, f.private.ID, "going")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, StatusGoing, rsvp.Status)

	rsvp, created, err = f.svc.Upsert(ctx, u1, f.private.ID, "maybe")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, StatusMaybe, rsvp.Status)

	require.Equal(t, 1, f.store.count(f.private.ID))
	stored, err := f.store.GetRSVP(ctx, Key{EventID: f.private.ID, UserID: "U1"})
	require.NoError(t, err)
	require.Equal(t, StatusMaybe, stored.Status)
}

func TestUpsertSequenceKeepsLastStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u1 := access.Authenticated("U1", false)
	sequence := []string{"going", "not_going", "maybe", "maybe", "going", "not_going"}

	for _, status := range sequence {
		_, _, err := f.svc.Upsert(ctx, u1, f.public.ID, status)
		require.NoError(t, err)
	}

	require.Equal(t, 1, f.store.count(f.public.ID))
	stored, err := f.store.GetRSVP(ctx, Key{EventID: f.public.ID, UserID: "U1"})
	require.NoError(t, err)
	require.Equal(t, StatusNotGoing, stored.Status)
}

func TestUpsertConcurrentSameKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u1 := access.Authenticated("U1", false)
	statuses := []string{"going", "maybe", "not_going"}

	const workers = 30
	created := make(chan bool, workers)
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(status string) {
			defer wg.Done()
			_, wasCreated, err := f.svc.Upsert(ctx, u1, f.public.ID, status)
			errs <- err
			created <- wasCreated
		}(statuses[i%len(statuses)])
	}
	wg.Wait()
	close(errs)
	close(created)

	for err := range errs {
		require.NoError(t, err)
	}
	createdCount := 0
	for wasCreated := range created {
		if wasCreated {
			createdCount++
		}
	}
	require.Equal(t, 1, createdCount)
	require.Equal(t, 1, f.store.count(f.public.ID))
	stored, err := f.store.GetRSVP(ctx, Key{EventID: f.public.ID, UserID: "U1"})
	require.NoError(t, err)
	require.True(t, stored.Status.Valid())
}

func TestUpsertRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	unknown, err := ids.NewULID()
	require.NoError(t, err)

	tests := []struct {
		name     string
		identity access.Identity
		eventID  string
		status   string
		want     error
	}{
		{name: "anonymous", identity: access.Anonymous(), eventID: f.public.ID, status: "going", want: apperr.ErrUnauthenticated},
		{name: "bad status", identity: access.Authenticated("U1", false), eventID: f.public.ID, status: "yes", want: apperr.ErrInvalidArgument},
		{name: "unknown event", identity: access.Authenticated("U1", false), eventID: unknown, status: "going", want: apperr.ErrNotFound},
		{name: "private stranger", identity: access.Authenticated("B", false), eventID: f.private.ID, status: "going", want: apperr.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.svc.Upsert(ctx, tt.identity, tt.eventID, tt.status)
			require.ErrorIs(t, err, tt.want)
		})
	}
	require.Zero(t, f.store.upserts)
}

func TestListScopedByRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, user := range []string{"U1", "U2", "U3"} {
		_, _, err := f.svc.Upsert(ctx, access.Authenticated(user, false), f.public.ID, "going")
		require.NoError(t, err)
	}

	all, err := f.svc.List(ctx, access.Authenticated("O", false), f.public.ID)
	require.NoError(t, err)
	require.Len(t, all, 3)

	all, err = f.svc.List(ctx, access.Authenticated("S", true), f.public.ID)
	require.NoError(t, err)
	require.Len(t, all, 3)

	own, err := f.svc.List(ctx, access.Authenticated("U2", false), f.public.ID)
	require.NoError(t, err)
	require.Len(t, own, 1)
	require.Equal(t, "U2", own[0].UserID)

	none, err := f.svc.List(ctx, access.Authenticated("U9", false), f.public.ID)
	require.NoError(t, err)
	require.Empty(t, none)

	anon, err := f.svc.List(ctx, access.Anonymous(), f.public.ID)
	require.NoError(t, err)
	require.NotNil(t, anon)
	require.Empty(t, anon)

	_, err = f.svc.List(ctx, access.Anonymous(), f.private.ID)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.List(ctx, access.Authenticated("B", false), f.private.ID)
	require.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestDeleteOwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.svc.Upsert(ctx, access.Authenticated("U1", false), f.public.ID, "going")
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.Delete(ctx, access.Authenticated("U2", false), f.public.ID, "U1"), apperr.ErrForbidden)
	require.ErrorIs(t, f.svc.Delete(ctx, access.Authenticated("S", true), f.public.ID, "U1"), apperr.ErrForbidden)
	require.ErrorIs(t, f.svc.Delete(ctx, access.Anonymous(), f.public.ID, "U1"), apperr.ErrUnauthenticated)
	require.Equal(t, 1, f.store.count(f.public.ID))

	require.NoError(t, f.svc.Delete(ctx, access.Authenticated("U1", false), f.public.ID, "U1"))
	require.Zero(t, f.store.count(f.public.ID))
	require.ErrorIs(t, f.svc.Delete(ctx, access.Authenticated("U1", false), f.public.ID, "U1"), apperr.ErrNotFound)
}

func TestGoingCountAndStatusFor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.svc.Upsert(ctx, access.Authenticated("U1", false), f.public.ID, "going")
	require.NoError(t, err)
	_, _, err = f.svc.Upsert(ctx, access.Authenticated("U2", false), f.public.ID, "maybe")
	require.NoError(t, err)
	_, _, err = f.svc.Upsert(ctx, access.Authenticated("U3", false), f.public.ID, "going")
	require.NoError(t, err)

	count, err := f.svc.GoingCount(ctx, f.public.ID)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	status, err := f.svc.StatusFor(ctx, access.Authenticated("U2", false), f.public.ID)
	require.NoError(t, err)
	require.Equal(t, StatusMaybe, status)

	status, err = f.svc.StatusFor(ctx, access.Anonymous(), f.public.ID)
	require.NoError(t, err)
	require.Empty(t, status)
}

func TestListMine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u1 := access.Authenticated("U1", false)
	_, _, err := f.svc.Upsert(ctx, u1, f.public.ID, "going")
	require.NoError(t, err)
	_, _, err = f.svc.Upsert(ctx, u1, f.private.ID, "maybe")
	require.NoError(t, err)
	_, _, err = f.svc.Upsert(ctx, access.Authenticated("U2", false), f.public.ID, "maybe")
	require.NoError(t, err)

	mine, err := f.svc.ListMine(ctx, u1)
	require.NoError(t, err)
	require.Len(t, mine, 2)

	all, err := f.svc.ListMine(ctx, access.Authenticated("S", true))
	require.NoError(t, err)
	require.Len(t, all, 3)

	_, err = f.svc.ListMine(ctx, access.Anonymous())
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)
}
