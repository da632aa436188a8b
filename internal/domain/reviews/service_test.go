package reviews

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
	records map[Key]Review
	inserts int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[Key]Review{}}
}

func (m *memoryStore) InsertReviewIfAbsent(_ context.Context, review Review) (Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if _, ok := m.records[review.Key()]; ok {
		return Review{}, apperr.ErrAlreadyExists
	}
	m.records[review.Key()] = review
	return review, nil
}

func (m *memoryStore) GetReview(_ context.Context, key Key) (*Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &rec, nil
}

func (m *memoryStore) ListReviewsByEvent(_ context.Context, eventID string, page Pagination) (ListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Review
	for key, rec := range m.records {
		if key.EventID == eventID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	if page.Limit > 0 && len(out) > page.Limit {
		out = out[:page.Limit]
	}
	return ListResult{Reviews: out}, nil
}

func (m *memoryStore) AverageRating(_ context.Context, eventID string) (*float64, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum, count := 0, 0
	for key, rec := range m.records {
		if key.EventID == eventID {
			sum += rec.Rating
			count++
		}
	}
	if count == 0 {
		return nil, 0, nil
	}
	avg := float64(sum) / float64(count)
	return &avg, count, nil
}

func (m *memoryStore) UpdateReview(_ context.Context, key Key, rating int, comment string, at time.Time) (*Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	rec.Rating, rec.Comment, rec.UpdatedAt = rating, comment, at
	m.records[key] = rec
	return &rec, nil
}

func (m *memoryStore) DeleteReview(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[key]; !ok {
		return apperr.ErrNotFound
	}
	delete(m.records, key)
	return nil
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

func TestCreateRatingBoundsAndDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u1 := access.Authenticated("U1", false)

	_, err := f.svc.Create(ctx, u1, f.private.ID, 6, "x")
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = f.svc.Create(ctx, u1, f.private.ID, 0, "x")
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
	require.Zero(t, f.store.inserts)

	review, err := f.svc.Create(ctx, u1, f.private.ID, 4, "ok")
	require.NoError(t, err)
	require.Equal(t, 4, review.Rating)
	require.Equal(t, "ok", review.Comment)

	_, err = f.svc.Create(ctx, u1, f.private.ID, 4, "ok")
	require.ErrorIs(t, err, apperr.ErrAlreadyExists)

	stored, err := f.store.GetReview(ctx, Key{EventID: f.private.ID, UserID: "U1"})
	require.NoError(t, err)
	require.Equal(t, 4, stored.Rating)
}

func TestCreateDuplicateDoesNotOverwrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u1 := access.Authenticated("U1", false)

	_, err := f.svc.Create(ctx, u1, f.public.ID, 2, "meh")
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, u1, f.public.ID, 5, "changed my mind")
	require.ErrorIs(t, err, apperr.ErrAlreadyExists)

	stored, err := f.store.GetReview(ctx, Key{EventID: f.public.ID, UserID: "U1"})
	require.NoError(t, err)
	require.Equal(t, 2, stored.Rating)
	require.Equal(t, "meh", stored.Comment)
}

func TestCreateConcurrentSameKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u1 := access.Authenticated("U1", false)

	const workers = 20
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(rating int) {
			defer wg.Done()
			_, err := f.svc.Create(ctx, u1, f.public.ID, rating, "")
			errs <- err
		}(i%5 + 1)
	}
	wg.Wait()
	close(errs)

	successes, duplicates := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case err == apperr.ErrAlreadyExists:
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, successes)
	require.Equal(t, workers-1, duplicates)
}

func TestCreateRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, access.Anonymous(), f.public.ID, 3, "")
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)

	_, err = f.svc.Create(ctx, access.Authenticated("B", false), f.private.ID, 3, "")
	require.ErrorIs(t, err, apperr.ErrForbidden)

	unknown, err := ids.NewULID()
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, access.Authenticated("B", false), unknown, 3, "")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	require.Zero(t, f.store.inserts)
}

func TestCreateSanitizesComment(t *testing.T) {
	f := newFixture(t)

	review, err := f.svc.Create(context.Background(), access.Authenticated("U1", false), f.public.ID, 5, "  <script>alert(1)</script>Great  ")
	require.NoError(t, err)
	require.Equal(t, "Great", review.Comment)
}

func TestAverageRating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	avg, err := f.svc.AverageRating(ctx, f.public.ID)
	require.NoError(t, err)
	require.Nil(t, avg)

	for i, rating := range []int{5, 3, 4} {
		user := access.Authenticated(string(rune('A'+i)), false)
		_, err := f.svc.Create(ctx, user, f.public.ID, rating, "")
		require.NoError(t, err)
	}

	avg, err = f.svc.AverageRating(ctx, f.public.ID)
	require.NoError(t, err)
	require.NotNil(t, avg)
	require.Equal(t, 4.0, *avg)
}

func TestAverageRatingRoundsToTwoDecimals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i, rating := range []int{5, 4, 4} {
		_, err := f.svc.Create(ctx, access.Authenticated(string(rune('A'+i)), false), f.public.ID, rating, "")
		require.NoError(t, err)
	}

	summary, err := f.svc.RatingSummary(ctx, access.Anonymous(), f.public.ID)
	require.NoError(t, err)
	require.Equal(t, 3, summary.Count)
	require.NotNil(t, summary.Average)
	require.Equal(t, 4.33, *summary.Average)

	_, err = f.svc.RatingSummary(ctx, access.Anonymous(), f.private.ID)
	require.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestListRequiresVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, access.Authenticated("U1", false), f.private.ID, 5, "")
	require.NoError(t, err)

	result, err := f.svc.List(ctx, access.Authenticated("O", false), f.private.ID, Pagination{Limit: 10})
	require.NoError(t, err)
	require.Len(t, result.Reviews, 1)

	_, err = f.svc.List(ctx, access.Authenticated("B", false), f.private.ID, Pagination{Limit: 10})
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.List(ctx, access.Authenticated("O", false), f.private.ID, Pagination{Limit: 10, After: "%%%"})
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestUpdateAndDeleteOwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, access.Authenticated("U1", false), f.public.ID, 3, "fine")
	require.NoError(t, err)
	five := 5
	six := 6

	_, err = f.svc.Update(ctx, access.Authenticated("U2", false), f.public.ID, "U1", Patch{Rating: &five})
	require.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.Update(ctx, access.Authenticated("S", true), f.public.ID, "U1", Patch{Rating: &five})
	require.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.Update(ctx, access.Authenticated("U1", false), f.public.ID, "U1", Patch{Rating: &six})
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)

	updated, err := f.svc.Update(ctx, access.Authenticated("U1", false), f.public.ID, "U1", Patch{Rating: &five})
	require.NoError(t, err)
	require.Equal(t, 5, updated.Rating)
	require.Equal(t, "fine", updated.Comment)

	require.ErrorIs(t, f.svc.Delete(ctx, access.Authenticated("O", false), f.public.ID, "U1"), apperr.ErrForbidden)
	require.ErrorIs(t, f.svc.Delete(ctx, access.Anonymous(), f.public.ID, "U1"), apperr.ErrUnauthenticated)
	require.NoError(t, f.svc.Delete(ctx, access.Authenticated("U1", false), f.public.ID, "U1"))
	require.ErrorIs(t, f.svc.Delete(ctx, access.Authenticated("U1", false), f.public.ID, "U1"), apperr.ErrNotFound)
}
