// Package storagetest holds the behavioural suite every storage backend must
// pass. Backend packages call Run from their own tests with a factory that
// returns an empty, migrated repository.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/domain/access"
	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/Togather-Foundation/gatherings/internal/domain/events"
	"github.com/Togather-Foundation/gatherings/internal/domain/ids"
	"github.com/Togather-Foundation/gatherings/internal/domain/reviews"
	"github.com/Togather-Foundation/gatherings/internal/domain/rsvps"
	"github.com/Togather-Foundation/gatherings/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty repository for one subtest.
type Factory func(t *testing.T) storage.Repository

func Run(t *testing.T, newRepo Factory) {
	t.Run("EventRoundTrip", func(t *testing.T) { testEventRoundTrip(t, newRepo(t)) })
	t.Run("ListEventsScopeAndPaging", func(t *testing.T) { testListEventsScope(t, newRepo(t)) })
	t.Run("ReplaceInvitees", func(t *testing.T) { testReplaceInvitees(t, newRepo(t)) })
	t.Run("DeleteEventCascades", func(t *testing.T) { testDeleteCascades(t, newRepo(t)) })
	t.Run("RSVPUpsertSequence", func(t *testing.T) { testRSVPUpsertSequence(t, newRepo(t)) })
	t.Run("RSVPUpsertConcurrent", func(t *testing.T) { testRSVPUpsertConcurrent(t, newRepo(t)) })
	t.Run("RSVPQueries", func(t *testing.T) { testRSVPQueries(t, newRepo(t)) })
	t.Run("ReviewInsertIfAbsent", func(t *testing.T) { testReviewInsertIfAbsent(t, newRepo(t)) })
	t.Run("ReviewInsertConcurrent", func(t *testing.T) { testReviewInsertConcurrent(t, newRepo(t)) })
	t.Run("ReviewAverageAndPaging", func(t *testing.T) { testReviewAverageAndPaging(t, newRepo(t)) })
	t.Run("WithTxRollsBack", func(t *testing.T) { testWithTxRollsBack(t, newRepo(t)) })
	t.Run("EndToEndInvitedRSVP", func(t *testing.T) { testEndToEndInvitedRSVP(t, newRepo(t)) })
}

var baseTime = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func newID(t *testing.T) string {
	t.Helper()
	id, err := ids.NewULID()
	require.NoError(t, err)
	return id
}

func createEvent(t *testing.T, repo storage.Repository, organizer string, public bool, start time.Time, invitees ...string) *events.Event {
	t.Helper()
	event, err := repo.Events().CreateEvent(context.Background(), events.CreateParams{
		ID:             newID(t),
		OrganizerID:    organizer,
		Title:          "Meetup " + organizer,
		Description:    "Talks and snacks",
		Location:       "Community Hall",
		StartTime:      start,
		EndTime:        start.Add(2 * time.Hour),
		IsPublic:       public,
		InvitedUserIDs: invitees,
	})
	require.NoError(t, err)
	return event
}

func eventIDs(items []events.Event) []string {
	out := make([]string, 0, len(items))
	for _, e := range items {
		out = append(out, e.ID)
	}
	return out
}

func testEventRoundTrip(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	created := createEvent(t, repo, "O", false, baseTime, "U2", "U1")

	got, err := repo.Events().GetEvent(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "O", got.OrganizerID)
	require.False(t, got.IsPublic)
	require.True(t, got.StartTime.Equal(baseTime))
	require.ElementsMatch(t, []string{"U1", "U2"}, got.InvitedUserIDs)
	require.False(t, got.CreatedAt.IsZero())

	updated, err := repo.Events().UpdateEvent(ctx, created.ID, events.UpdateParams{
		Title:       "Renamed",
		Description: got.Description,
		Location:    "Rooftop",
		StartTime:   got.StartTime,
		EndTime:     got.EndTime.Add(time.Hour),
		IsPublic:    true,
	})
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Title)
	require.Equal(t, "Rooftop", updated.Location)
	require.True(t, updated.IsPublic)
	require.ElementsMatch(t, []string{"U1", "U2"}, updated.InvitedUserIDs)

	_, err = repo.Events().GetEvent(ctx, newID(t))
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = repo.Events().UpdateEvent(ctx, newID(t), events.UpdateParams{Title: "x", StartTime: baseTime, EndTime: baseTime.Add(time.Hour)})
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func testListEventsScope(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	public := createEvent(t, repo, "X", true, baseTime)
	own := createEvent(t, repo, "A", false, baseTime.Add(time.Hour))
	invited := createEvent(t, repo, "O", false, baseTime.Add(2*time.Hour), "A", "B")
	hidden := createEvent(t, repo, "Z", false, baseTime.Add(3*time.Hour))
	// Matches the public, organizer and invited clauses at once.
	overlap := createEvent(t, repo, "A", true, baseTime.Add(4*time.Hour), "A")

	anon, err := repo.Events().ListEvents(ctx, events.Scope{}, events.Filters{}, events.Pagination{Limit: 50})
	require.NoError(t, err)
	require.Equal(t, []string{overlap.ID, public.ID}, eventIDs(anon.Events))

	userA, err := repo.Events().ListEvents(ctx, events.Scope{ViewerID: "A"}, events.Filters{}, events.Pagination{Limit: 50})
	require.NoError(t, err)
	require.Equal(t, []string{overlap.ID, invited.ID, own.ID, public.ID}, eventIDs(userA.Events))

	staff, err := repo.Events().ListEvents(ctx, events.Scope{ViewerID: "S", All: true}, events.Filters{}, events.Pagination{Limit: 50})
	require.NoError(t, err)
	require.Equal(t, []string{overlap.ID, hidden.ID, invited.ID, own.ID, public.ID}, eventIDs(staff.Events))

	page1, err := repo.Events().ListEvents(ctx, events.Scope{ViewerID: "A"}, events.Filters{}, events.Pagination{Limit: 3})
	require.NoError(t, err)
	require.Equal(t, []string{overlap.ID, invited.ID, own.ID}, eventIDs(page1.Events))
	require.NotEmpty(t, page1.NextCursor)

	page2, err := repo.Events().ListEvents(ctx, events.Scope{ViewerID: "A"}, events.Filters{}, events.Pagination{Limit: 3, After: page1.NextCursor})
	require.NoError(t, err)
	require.Equal(t, []string{public.ID}, eventIDs(page2.Events))
	require.Empty(t, page2.NextCursor)

	isPublic := false
	privateOnly, err := repo.Events().ListEvents(ctx, events.Scope{ViewerID: "A"}, events.Filters{IsPublic: &isPublic, OrganizerID: "A"}, events.Pagination{Limit: 50})
	require.NoError(t, err)
	require.Equal(t, []string{own.ID}, eventIDs(privateOnly.Events))

	searched, err := repo.Events().ListEvents(ctx, events.Scope{All: true, ViewerID: "S"}, events.Filters{Query: "meetup z"}, events.Pagination{Limit: 50})
	require.NoError(t, err)
	require.Equal(t, []string{hidden.ID}, eventIDs(searched.Events))

	wildcard, err := repo.Events().ListEvents(ctx, events.Scope{All: true, ViewerID: "S"}, events.Filters{Location: "%"}, events.Pagination{Limit: 50})
	require.NoError(t, err)
	require.Empty(t, wildcard.Events)
}

func testReplaceInvitees(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	event := createEvent(t, repo, "O", false, baseTime, "A")

	require.NoError(t, repo.Events().ReplaceInvitees(ctx, event.ID, []string{"B", "C"}))
	got, err := repo.Events().GetEvent(ctx, event.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"B", "C"}, got.InvitedUserIDs)

	require.NoError(t, repo.Events().ReplaceInvitees(ctx, event.ID, nil))
	got, err = repo.Events().GetEvent(ctx, event.ID)
	require.NoError(t, err)
	require.Empty(t, got.InvitedUserIDs)

	require.ErrorIs(t, repo.Events().ReplaceInvitees(ctx, newID(t), []string{"B"}), apperr.ErrNotFound)
}

func testDeleteCascades(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	event := createEvent(t, repo, "O", true, baseTime, "A")
	_, _, err := repo.RSVPs().UpsertRSVP(ctx, rsvps.Key{EventID: event.ID, UserID: "A"}, rsvps.StatusGoing, baseTime)
	require.NoError(t, err)
	_, err = repo.Reviews().InsertReviewIfAbsent(ctx, reviews.Review{EventID: event.ID, UserID: "A", Rating: 5, CreatedAt: baseTime, UpdatedAt: baseTime})
	require.NoError(t, err)

	require.NoError(t, repo.Events().DeleteEvent(ctx, event.ID))
	require.ErrorIs(t, repo.Events().DeleteEvent(ctx, event.ID), apperr.ErrNotFound)

	_, err = repo.RSVPs().GetRSVP(ctx, rsvps.Key{EventID: event.ID, UserID: "A"})
	require.ErrorIs(t, err, apperr.ErrNotFound)
	avg, count, err := repo.Reviews().AverageRating(ctx, event.ID)
	require.NoError(t, err)
	require.Nil(t, avg)
	require.Zero(t, count)
}

func testRSVPUpsertSequence(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	event := createEvent(t, repo, "O", true, baseTime)
	key := rsvps.Key{EventID: event.ID, UserID: "U1"}

	first, created, err := repo.RSVPs().UpsertRSVP(ctx, key, rsvps.StatusGoing, baseTime)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, rsvps.StatusGoing, first.Status)

	statuses := []rsvps.Status{rsvps.StatusMaybe, rsvps.StatusNotGoing, rsvps.StatusGoing, rsvps.StatusMaybe}
	for i, status := range statuses {
		got, created, err := repo.RSVPs().UpsertRSVP(ctx, key, status, baseTime.Add(time.Duration(i+1)*time.Minute))
		require.NoError(t, err)
		require.False(t, created)
		require.Equal(t, status, got.Status)
		require.True(t, got.CreatedAt.Equal(first.CreatedAt))
	}

	all, err := repo.RSVPs().ListRSVPsByEvent(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, rsvps.StatusMaybe, all[0].Status)
	require.True(t, all[0].UpdatedAt.Equal(baseTime.Add(4*time.Minute)))

	_, _, err = repo.RSVPs().UpsertRSVP(ctx, rsvps.Key{EventID: newID(t), UserID: "U1"}, rsvps.StatusGoing, baseTime)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func testRSVPUpsertConcurrent(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	event := createEvent(t, repo, "O", true, baseTime)
	key := rsvps.Key{EventID: event.ID, UserID: "U1"}
	statuses := []rsvps.Status{rsvps.StatusGoing, rsvps.StatusMaybe, rsvps.StatusNotGoing}

	const workers = 16
	type outcome struct {
		created bool
		err     error
	}
	results := make(chan outcome, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(status rsvps.Status) {
			defer wg.Done()
			_, created, err := repo.RSVPs().UpsertRSVP(ctx, key, status, time.Now().UTC())
			results <- outcome{created: created, err: err}
		}(statuses[i%len(statuses)])
	}
	wg.Wait()
	close(results)

	created := 0
	for res := range results {
		require.NoError(t, res.err)
		if res.created {
			created++
		}
	}
	require.Equal(t, 1, created)

	all, err := repo.RSVPs().ListRSVPsByEvent(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.True(t, all[0].Status.Valid())
}

func testRSVPQueries(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	first := createEvent(t, repo, "O", true, baseTime)
	second := createEvent(t, repo, "O", true, baseTime.Add(time.Hour))

	upsert := func(eventID, user string, status rsvps.Status, at time.Time) {
		_, _, err := repo.RSVPs().UpsertRSVP(ctx, rsvps.Key{EventID: eventID, UserID: user}, status, at)
		require.NoError(t, err)
	}
	upsert(first.ID, "U1", rsvps.StatusGoing, baseTime)
	upsert(first.ID, "U2", rsvps.StatusGoing, baseTime.Add(time.Minute))
	upsert(first.ID, "U3", rsvps.StatusMaybe, baseTime.Add(2*time.Minute))
	upsert(second.ID, "U1", rsvps.StatusNotGoing, baseTime.Add(3*time.Minute))

	going, err := repo.RSVPs().CountRSVPs(ctx, first.ID, rsvps.StatusGoing)
	require.NoError(t, err)
	require.Equal(t, 2, going)

	mine, err := repo.RSVPs().ListRSVPsByUser(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	require.Equal(t, second.ID, mine[0].EventID)

	all, err := repo.RSVPs().ListRSVPsByUser(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 4)

	require.NoError(t, repo.RSVPs().DeleteRSVP(ctx, rsvps.Key{EventID: first.ID, UserID: "U2"}))
	require.ErrorIs(t, repo.RSVPs().DeleteRSVP(ctx, rsvps.Key{EventID: first.ID, UserID: "U2"}), apperr.ErrNotFound)
	going, err = repo.RSVPs().CountRSVPs(ctx, first.ID, rsvps.StatusGoing)
	require.NoError(t, err)
	require.Equal(t, 1, going)
}

func testReviewInsertIfAbsent(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	event := createEvent(t, repo, "O", true, baseTime)
	review := reviews.Review{EventID: event.ID, UserID: "U1", Rating: 4, Comment: "ok", CreatedAt: baseTime, UpdatedAt: baseTime}

	stored, err := repo.Reviews().InsertReviewIfAbsent(ctx, review)
	require.NoError(t, err)
	require.Equal(t, 4, stored.Rating)

	review.Rating = 1
	review.Comment = "overwrite attempt"
	_, err = repo.Reviews().InsertReviewIfAbsent(ctx, review)
	require.ErrorIs(t, err, apperr.ErrAlreadyExists)

	got, err := repo.Reviews().GetReview(ctx, reviews.Key{EventID: event.ID, UserID: "U1"})
	require.NoError(t, err)
	require.Equal(t, 4, got.Rating)
	require.Equal(t, "ok", got.Comment)

	updated, err := repo.Reviews().UpdateReview(ctx, got.Key(), 2, "changed", baseTime.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 2, updated.Rating)
	require.True(t, updated.UpdatedAt.Equal(baseTime.Add(time.Hour)))

	require.NoError(t, repo.Reviews().DeleteReview(ctx, got.Key()))
	require.ErrorIs(t, repo.Reviews().DeleteReview(ctx, got.Key()), apperr.ErrNotFound)
	_, err = repo.Reviews().UpdateReview(ctx, got.Key(), 3, "", baseTime)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func testReviewInsertConcurrent(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	event := createEvent(t, repo, "O", true, baseTime)

	const workers = 12
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(rating int) {
			defer wg.Done()
			_, err := repo.Reviews().InsertReviewIfAbsent(ctx, reviews.Review{
				EventID: event.ID, UserID: "U1", Rating: rating, CreatedAt: baseTime, UpdatedAt: baseTime,
			})
			errs <- err
		}(i%5 + 1)
	}
	wg.Wait()
	close(errs)

	successes := 0
	for err := range errs {
		if err == nil {
			successes++
			continue
		}
		require.ErrorIs(t, err, apperr.ErrAlreadyExists)
	}
	require.Equal(t, 1, successes)
}

func testReviewAverageAndPaging(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	event := createEvent(t, repo, "O", true, baseTime)

	avg, count, err := repo.Reviews().AverageRating(ctx, event.ID)
	require.NoError(t, err)
	require.Nil(t, avg)
	require.Zero(t, count)

	for i, rating := range []int{5, 3, 4} {
		at := baseTime.Add(time.Duration(i) * time.Minute)
		_, err := repo.Reviews().InsertReviewIfAbsent(ctx, reviews.Review{
			EventID: event.ID, UserID: string(rune('A' + i)), Rating: rating, CreatedAt: at, UpdatedAt: at,
		})
		require.NoError(t, err)
	}

	avg, count, err = repo.Reviews().AverageRating(ctx, event.ID)
	require.NoError(t, err)
	require.NotNil(t, avg)
	require.InDelta(t, 4.0, *avg, 1e-9)
	require.Equal(t, 3, count)

	page1, err := repo.Reviews().ListReviewsByEvent(ctx, event.ID, reviews.Pagination{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page1.Reviews, 2)
	require.Equal(t, "C", page1.Reviews[0].UserID)
	require.Equal(t, "B", page1.Reviews[1].UserID)
	require.NotEmpty(t, page1.NextCursor)

	page2, err := repo.Reviews().ListReviewsByEvent(ctx, event.ID, reviews.Pagination{Limit: 2, After: page1.NextCursor})
	require.NoError(t, err)
	require.Len(t, page2.Reviews, 1)
	require.Equal(t, "A", page2.Reviews[0].UserID)
	require.Empty(t, page2.NextCursor)
}

func testWithTxRollsBack(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	event := createEvent(t, repo, "O", true, baseTime)
	boom := errors.New("boom")

	err := repo.WithTx(ctx, func(ctx context.Context, tx storage.Repository) error {
		if _, _, err := tx.RSVPs().UpsertRSVP(ctx, rsvps.Key{EventID: event.ID, UserID: "U1"}, rsvps.StatusGoing, baseTime); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = repo.RSVPs().GetRSVP(ctx, rsvps.Key{EventID: event.ID, UserID: "U1"})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	err = repo.WithTx(ctx, func(ctx context.Context, tx storage.Repository) error {
		_, _, err := tx.RSVPs().UpsertRSVP(ctx, rsvps.Key{EventID: event.ID, UserID: "U1"}, rsvps.StatusMaybe, baseTime)
		return err
	})
	require.NoError(t, err)
	got, err := repo.RSVPs().GetRSVP(ctx, rsvps.Key{EventID: event.ID, UserID: "U1"})
	require.NoError(t, err)
	require.Equal(t, rsvps.StatusMaybe, got.Status)
}

// testEndToEndInvitedRSVP drives the services over the real store: an invited
// user RSVPs to a private event twice and exactly one record remains.
func testEndToEndInvitedRSVP(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	logger := zerolog.Nop()
	eventSvc := events.NewService(repo.Events(), logger, nil)
	rsvpSvc := rsvps.NewService(repo.RSVPs(), repo.Events(), logger, nil)
	reviewSvc := reviews.NewService(repo.Reviews(), repo.Events(), logger, nil)

	private := false
	organizer := access.Authenticated("O", false)
	u1 := access.Authenticated("U1", false)
	event, err := eventSvc.Create(ctx, organizer, events.EventInput{
		Title:          "Private dinner",
		Description:    "Invite only",
		Location:       "Home",
		StartTime:      baseTime,
		EndTime:        baseTime.Add(3 * time.Hour),
		IsPublic:       &private,
		InvitedUserIDs: []string{"U1"},
	})
	require.NoError(t, err)

	rsvp, created, err := rsvpSvc.Upsert(ctx, u1, event.ID, "going")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, rsvps.StatusGoing, rsvp.Status)

	rsvp, created, err = rsvpSvc.Upsert(ctx, u1, event.ID, "maybe")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, rsvps.StatusMaybe, rsvp.Status)

	all, err := rsvpSvc.List(ctx, organizer, event.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "U1", all[0].UserID)
	require.Equal(t, rsvps.StatusMaybe, all[0].Status)

	_, _, err = rsvpSvc.Upsert(ctx, access.Authenticated("B", false), event.ID, "going")
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = reviewSvc.Create(ctx, u1, event.ID, 6, "x")
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = reviewSvc.Create(ctx, u1, event.ID, 4, "ok")
	require.NoError(t, err)
	_, err = reviewSvc.Create(ctx, u1, event.ID, 4, "ok")
	require.ErrorIs(t, err, apperr.ErrAlreadyExists)

	avg, err := reviewSvc.AverageRating(ctx, event.ID)
	require.NoError(t, err)
	require.NotNil(t, avg)
	require.Equal(t, 4.0, *avg)
}
