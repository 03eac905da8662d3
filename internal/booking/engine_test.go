package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusrent/campusrent/internal/apperr"
	"github.com/campusrent/campusrent/internal/auth"
	"github.com/campusrent/campusrent/internal/db"
	"github.com/campusrent/campusrent/internal/model"
	"github.com/campusrent/campusrent/internal/notify"
	"github.com/campusrent/campusrent/internal/store"
)

var base = time.Date(2030, time.March, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time { return base.AddDate(0, 0, n) }

type recorder struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (r *recorder) Notify(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
}

func (r *recorder) kinds(userID int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []string
	for _, n := range r.got {
		if n.UserID == userID {
			kinds = append(kinds, n.Kind)
		}
	}
	return kinds
}

type fixture struct {
	engine   *Engine
	notes    *recorder
	now      time.Time
	owner    *auth.Identity
	borrower *auth.Identity
	stranger *auth.Identity
	item     *model.Item
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database := db.NewTestDB(t)
	ctx := context.Background()

	f := &fixture{notes: &recorder{}, now: day(0).Add(9 * time.Hour)}
	f.engine = &Engine{DB: database, Notifier: f.notes, Now: func() time.Time { return f.now }}

	identity := func(name string) *auth.Identity {
		u, err := store.CreateUser(ctx, database, store.NewUser{Username: name, Email: name + "@campus.test", PasswordHash: "h"})
		require.NoError(t, err)
		return &auth.Identity{UserID: u.ID, Username: u.Username, Role: u.Role}
	}
	f.owner = identity("owner")
	f.borrower = identity("borrower")
	f.stranger = identity("stranger")

	item, err := store.CreateItem(ctx, database, f.owner.UserID, store.ItemFields{Title: "Projector", DailyRate: 100})
	require.NoError(t, err)
	f.item = item
	return f
}

func (f *fixture) create(t *testing.T, who *auth.Identity, from, to int) *model.LendingRequest {
	t.Helper()
	r, err := f.engine.Create(context.Background(), who, CreateInput{ItemID: f.item.ID, StartDate: day(from), EndDate: day(to)})
	require.NoError(t, err)
	return r
}

func TestCreateCostAndOverlapConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.create(t, f.borrower, 1, 4)
	assert.Equal(t, model.StatusPending, r.Status)
	assert.Equal(t, 300.0, r.TotalCost)
	assert.Equal(t, f.owner.UserID, r.LenderID)

	_, err := f.engine.Create(ctx, f.stranger, CreateInput{ItemID: f.item.ID, StartDate: day(3), EndDate: day(5)})
	require.ErrorIs(t, err, apperr.ErrConflict)

	assert.Equal(t, []string{notify.KindRequestCreated}, f.notes.kinds(f.owner.UserID))
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		who  *auth.Identity
		in   CreateInput
		want error
	}{
		{"end before start", f.borrower, CreateInput{ItemID: f.item.ID, StartDate: day(3), EndDate: day(2)}, apperr.ErrValidation},
		{"empty range", f.borrower, CreateInput{ItemID: f.item.ID, StartDate: day(3), EndDate: day(3)}, apperr.ErrValidation},
		{"in the past", f.borrower, CreateInput{ItemID: f.item.ID, StartDate: day(-1), EndDate: day(2)}, apperr.ErrValidation},
		{"own item", f.owner, CreateInput{ItemID: f.item.ID, StartDate: day(1), EndDate: day(2)}, apperr.ErrValidation},
		{"missing item", f.borrower, CreateInput{ItemID: 999, StartDate: day(1), EndDate: day(2)}, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Create(ctx, tt.who, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// Today is allowed even though the day has already begun.
	f.create(t, f.borrower, 0, 1)
}

func TestCreateOnPausedItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := store.UpdateItem(ctx, f.engine.DB, f.item.ID, f.owner.UserID, store.ItemFields{
		Title: "Projector", DailyRate: 100, Availability: model.AvailabilityUnavailable,
	})
	require.NoError(t, err)

	_, err = f.engine.Create(ctx, f.borrower, CreateInput{ItemID: f.item.ID, StartDate: day(1), EndDate: day(2)})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestConcurrentCreateSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		who := f.borrower
		if i%2 == 1 {
			who = f.stranger
		}
		wg.Add(1)
		go func(i int, who *auth.Identity) {
			defer wg.Done()
			_, errs[i] = f.engine.Create(ctx, who, CreateInput{ItemID: f.item.ID, StartDate: day(2), EndDate: day(5)})
		}(i, who)
	}
	wg.Wait()

	ok, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.KindOf(err) == apperr.KindConflict:
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflicts)
}

func TestAcceptAndReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.create(t, f.borrower, 1, 3)

	_, err := f.engine.Accept(ctx, f.borrower, r.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.engine.Accept(ctx, f.stranger, r.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	accepted, err := f.engine.Accept(ctx, f.owner, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, accepted.Status)
	assert.Greater(t, accepted.Version, r.Version)

	_, err = f.engine.Reject(ctx, f.owner, r.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	r2 := f.create(t, f.stranger, 5, 6)
	rejected, err := f.engine.Reject(ctx, f.owner, r2.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, rejected.Status)

	assert.Equal(t, []string{notify.KindRequestAccepted}, f.notes.kinds(f.borrower.UserID))
	assert.Equal(t, []string{notify.KindRequestRejected}, f.notes.kinds(f.stranger.UserID))
}

func TestConcurrentAcceptsOnOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Overlapping pending rows cannot be created through the engine, so the
	// second one is written directly.
	a := f.create(t, f.borrower, 1, 4)
	_, err := f.engine.DB.ExecContext(ctx,
		`INSERT INTO lending_requests (item_id, borrower_id, lender_id, start_date, end_date, total_cost)
		 VALUES (?, ?, ?, ?, ?, 200)`,
		f.item.ID, f.stranger.UserID, f.owner.UserID, day(3).Unix(), day(5).Unix())
	require.NoError(t, err)
	var bID int64
	require.NoError(t, f.engine.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM lending_requests`).Scan(&bID))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []int64{a.ID, bID} {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			_, errs[i] = f.engine.Accept(ctx, f.owner, id)
		}(i, id)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, apperr.ErrConflict)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.create(t, f.borrower, 1, 3)

	_, err := f.engine.Cancel(ctx, f.stranger, r.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	cancelled, err := f.engine.Cancel(ctx, f.borrower, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledBy)
	assert.Equal(t, f.borrower.UserID, *cancelled.CancelledBy)
	assert.Contains(t, f.notes.kinds(f.owner.UserID), notify.KindRequestCancelled)

	_, err = f.engine.Cancel(ctx, f.owner, r.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	// The dates are free again.
	f.create(t, f.stranger, 1, 3)
}

func TestLenderCanCancelAccepted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.create(t, f.borrower, 1, 3)
	_, err := f.engine.Accept(ctx, f.owner, r.ID)
	require.NoError(t, err)

	cancelled, err := f.engine.Cancel(ctx, f.owner, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
}

func TestActivateAndComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.create(t, f.borrower, 1, 3)
	_, err := f.engine.Accept(ctx, f.owner, r.ID)
	require.NoError(t, err)

	_, err = f.engine.Activate(ctx, f.owner, r.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState, "activation before the start date")

	f.now = day(1).Add(time.Hour)
	_, err = f.engine.Activate(ctx, f.borrower, r.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	active, err := f.engine.Activate(ctx, f.owner, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, active.Status)

	_, err = f.engine.Cancel(ctx, f.borrower, r.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState, "active rentals cannot be cancelled by users")

	_, err = f.engine.Complete(ctx, f.owner, r.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState, "completion before the end date")

	f.now = day(3)
	done, err := f.engine.Complete(ctx, f.owner, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, done.Status)

	assert.Contains(t, f.notes.kinds(f.borrower.UserID), notify.KindRequestCompleted)
	assert.Contains(t, f.notes.kinds(f.owner.UserID), notify.KindRequestCompleted)

	_, err = f.engine.Complete(ctx, f.owner, r.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestGetAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.create(t, f.borrower, 1, 3)
	f.create(t, f.stranger, 4, 5)

	_, err := f.engine.Get(ctx, f.stranger, r.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.engine.Get(ctx, f.owner, 999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	got, err := f.engine.Get(ctx, f.owner, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	lending, err := f.engine.List(ctx, f.owner, ListFilter{Role: "lender"})
	require.NoError(t, err)
	assert.Len(t, lending, 2)

	borrowing, err := f.engine.List(ctx, f.owner, ListFilter{Role: "borrower"})
	require.NoError(t, err)
	assert.Empty(t, borrowing)

	_, err = f.engine.List(ctx, f.owner, ListFilter{Statuses: []model.RequestStatus{"bogus"}})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.engine.ListForItem(ctx, f.borrower, f.item.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	onItem, err := f.engine.ListForItem(ctx, f.owner, f.item.ID, nil)
	require.NoError(t, err)
	assert.Len(t, onItem, 2)

	cal, err := f.engine.Calendar(ctx, f.item.ID)
	require.NoError(t, err)
	require.Len(t, cal, 2)
	assert.True(t, cal[0].Start.Equal(day(1)))
}

func TestSweeper(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := &Sweeper{Engine: f.engine}

	r := f.create(t, f.borrower, 1, 3)
	_, err := f.engine.Accept(ctx, f.owner, r.ID)
	require.NoError(t, err)

	n, err := s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.now = day(1)
	n, err = s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f.now = day(3)
	n, err = s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.engine.Get(ctx, f.owner, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Contains(t, f.notes.kinds(f.borrower.UserID), notify.KindRequestActive)
	assert.Contains(t, f.notes.kinds(f.owner.UserID), notify.KindRequestCompleted)
}

func TestSweeperPurgesRevocations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := &Sweeper{Engine: f.engine}

	require.NoError(t, store.RevokeToken(ctx, f.engine.DB, "expired", f.now.Add(-time.Minute)))
	require.NoError(t, store.RevokeToken(ctx, f.engine.DB, "current", f.now.Add(time.Hour)))

	n, err := s.PurgeRevocations(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	revoked, err := store.IsTokenRevoked(ctx, f.engine.DB, "expired")
	require.NoError(t, err)
	assert.False(t, revoked)
	revoked, err = store.IsTokenRevoked(ctx, f.engine.DB, "current")
	require.NoError(t, err)
	assert.True(t, revoked, "a revoked token must stay denied until it expires")
}

func TestAnnounceCancelled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.create(t, f.borrower, 1, 3)
	cancelled, ok, err := store.DeleteItem(ctx, f.engine.DB, f.item.ID, f.owner.UserID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, cancelled, 1)
	assert.Equal(t, r.ID, cancelled[0].ID)

	f.engine.AnnounceCancelled(cancelled, SourceOwner, f.owner.UserID)
	assert.Contains(t, f.notes.kinds(f.borrower.UserID), notify.KindRequestCancelled)
	assert.NotContains(t, f.notes.kinds(f.owner.UserID), notify.KindRequestCancelled)
}

func TestSweeperRunStopsWithContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		(&Sweeper{Engine: f.engine, Interval: time.Millisecond}).Run(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
