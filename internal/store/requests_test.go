package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/campusrent/campusrent/internal/db"
	"github.com/campusrent/campusrent/internal/model"
)

func TestCreateLendingRequest(t *testing.T) {
	database := db.NewTestDB(t)

	owner := mustUser(t, database, "owner", model.RoleUser)
	borrower := mustUser(t, database, "borrower", model.RoleUser)
	item := mustItem(t, database, owner.ID, 100)

	r := mustRequest(t, database, item.ID, borrower.ID, 0, 3)
	if r.Status != model.StatusPending {
		t.Errorf("expected pending, got %s", r.Status)
	}
	if r.LenderID != owner.ID {
		t.Errorf("expected lender %d, got %d", owner.ID, r.LenderID)
	}
	if r.TotalCost != 300 {
		t.Errorf("expected total cost 300, got %v", r.TotalCost)
	}
	if !r.StartDate.Equal(day(0)) || !r.EndDate.Equal(day(3)) {
		t.Errorf("dates not round-tripped: %v..%v", r.StartDate, r.EndDate)
	}
	if r.ItemTitle != "Tent" || r.BorrowerName != "borrower" || r.LenderName != "owner" {
		t.Errorf("joined fields missing: %+v", r)
	}
}

func TestCreateLendingRequestUsesCurrentRate(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	owner := mustUser(t, database, "owner", model.RoleUser)
	borrower := mustUser(t, database, "borrower", model.RoleUser)
	item := mustItem(t, database, owner.ID, 10)

	first := mustRequest(t, database, item.ID, borrower.ID, 0, 2)
	if ok, err := UpdateItem(ctx, database, item.ID, owner.ID, ItemFields{
		Title: "Tent", DailyRate: 12.5, Availability: model.AvailabilityAvailable,
	}); err != nil || !ok {
		t.Fatalf("UpdateItem: ok=%v err=%v", ok, err)
	}
	second := mustRequest(t, database, item.ID, borrower.ID, 4, 7)

	if first.TotalCost != 20 {
		t.Errorf("first request cost %v, want 20", first.TotalCost)
	}
	if second.TotalCost != 37.5 {
		t.Errorf("second request cost %v, want 37.5 at the new rate", second.TotalCost)
	}
}

func TestCreateLendingRequestRejections(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	owner := mustUser(t, database, "owner", model.RoleUser)
	borrower := mustUser(t, database, "borrower", model.RoleUser)
	item := mustItem(t, database, owner.ID, 10)

	mustRequest(t, database, item.ID, borrower.ID, 2, 5)

	tests := []struct {
		name     string
		itemID   int64
		borrower int64
		from, to int
		want     error
	}{
		{"overlap inside", item.ID, borrower.ID, 3, 4, ErrBookingConflict},
		{"overlap left edge", item.ID, borrower.ID, 1, 3, ErrBookingConflict},
		{"own item", item.ID, owner.ID, 10, 11, ErrItemNotBookable},
		{"missing item", 9999, borrower.ID, 10, 11, ErrItemNotBookable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateLendingRequest(ctx, database, NewLendingRequest{
				ItemID: tt.itemID, BorrowerID: tt.borrower, StartDate: day(tt.from), EndDate: day(tt.to),
			})
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	// Touching ranges do not overlap.
	mustRequest(t, database, item.ID, borrower.ID, 5, 7)
	mustRequest(t, database, item.ID, borrower.ID, 0, 2)
}

func TestCreateLendingRequestPausedItem(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	owner := mustUser(t, database, "owner", model.RoleUser)
	borrower := mustUser(t, database, "borrower", model.RoleUser)
	item := mustItem(t, database, owner.ID, 10)

	UpdateItem(ctx, database, item.ID, owner.ID, ItemFields{Title: "Tent", DailyRate: 10, Availability: model.AvailabilityUnavailable})

	_, err := CreateLendingRequest(ctx, database, NewLendingRequest{
		ItemID: item.ID, BorrowerID: borrower.ID, StartDate: day(1), EndDate: day(2),
	})
	if !errors.Is(err, ErrItemNotBookable) {
		t.Errorf("expected ErrItemNotBookable, got %v", err)
	}
}

func TestTerminalRequestsFreeTheRange(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	owner := mustUser(t, database, "owner", model.RoleUser)
	borrower := mustUser(t, database, "borrower", model.RoleUser)
	item := mustItem(t, database, owner.ID, 10)

	r := mustRequest(t, database, item.ID, borrower.ID, 1, 3)
	if ok, err := TransitionLendingRequest(ctx, database, r.ID, model.StatusPending, model.StatusRejected, nil); err != nil || !ok {
		t.Fatalf("reject: ok=%v err=%v", ok, err)
	}
	mustRequest(t, database, item.ID, borrower.ID, 1, 3)
}

func TestConcurrentCreateNoDoubleBooking(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	owner := mustUser(t, database, "owner", model.RoleUser)
	item := mustItem(t, database, owner.ID, 10)

	const n = 10
	borrowers := make([]int64, n)
	for i := range borrowers {
		borrowers[i] = mustUser(t, database, "b"+string(rune('a'+i)), model.RoleUser).ID
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	created, conflicts := 0, 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(borrowerID int64) {
			defer wg.Done()
			_, err := CreateLendingRequest(ctx, database, NewLendingRequest{
				ItemID: item.ID, BorrowerID: borrowerID, StartDate: day(1), EndDate: day(4),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrBookingConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(borrowers[i])
	}
	wg.Wait()

	if created != 1 || conflicts != n-1 {
		t.Errorf("expected 1 created and %d conflicts, got %d and %d", n-1, created, conflicts)
	}
}

func TestAcceptLendingRequest(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	owner := mustUser(t, database, "owner", model.RoleUser)
	borrower := mustUser(t, database, "borrower", model.RoleUser)
	item := mustItem(t, database, owner.ID, 10)
	r := mustRequest(t, database, item.ID, borrower.ID, 1, 3)

	if ok, _ := AcceptLendingRequest(ctx, database, r.ID, borrower.ID); ok {
		t.Error("borrower must not be able to accept")
	}

	ok, err := AcceptLendingRequest(ctx, database, r.ID, owner.ID)
	if err != nil || !ok {
		t.Fatalf("AcceptLendingRequest: ok=%v err=%v", ok, err)
	}
	got, _ := GetLendingRequest(ctx, database, r.ID)
	if got.Status != model.StatusAccepted {
		t.Errorf("expected accepted, got %s", got.Status)
	}
	if got.Version != r.Version+1 {
		t.Errorf("expected version %d, got %d", r.Version+1, got.Version)
	}

	if ok, _ := AcceptLendingRequest(ctx, database, r.ID, owner.ID); ok {
		t.Error("accepting twice should report false")
	}
}

func TestAcceptRefusesOverlapWithAccepted(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	owner := mustUser(t, database, "owner", model.RoleUser)
	borrower := mustUser(t, database, "borrower", model.RoleUser)
	item := mustItem(t, database, owner.ID, 10)

	// Two overlapping pending rows can only exist if written directly.
	a := mustRequest(t, database, item.ID, borrower.ID, 1, 3)
	if _, err := database.ExecContext(ctx,
		`INSERT INTO lending_requests (item_id, borrower_id, lender_id, start_date, end_date, total_cost)
		 VALUES (?, ?, ?, ?, ?, 20)`,
		item.ID, borrower.ID, owner.ID, day(2).Unix(), day(4).Unix(),
	); err != nil {
		t.Fatalf("inserting overlapping row: %v", err)
	}
	var bID int64
	database.QueryRowContext(ctx, `SELECT MAX(id) FROM lending_requests`).Scan(&bID)

	if ok, err := AcceptLendingRequest(ctx, database, a.ID, owner.ID); err != nil || !ok {
		t.Fatalf("accept a: ok=%v err=%v", ok, err)
	}
	if ok, _ := AcceptLendingRequest(ctx, database, bID, owner.ID); ok {
		t.Error("accepting an overlapping request should be refused")
	}
	overlap, err := HasAcceptedOverlap(ctx, database, bID)
	if err != nil {
		t.Fatalf("HasAcceptedOverlap: %v", err)
	}
	if !overlap {
		t.Error("expected accepted overlap to be reported")
	}
}

func TestTransitionLendingRequestRecordsCanceller(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	owner := mustUser(t, database, "owner", model.RoleUser)
	borrower := mustUser(t, database, "borrower", model.RoleUser)
	item := mustItem(t, database, owner.ID, 10)
	r := mustRequest(t, database, item.ID, borrower.ID, 1, 3)

	if ok, _ := TransitionLendingRequest(ctx, database, r.ID, model.StatusAccepted, model.StatusCancelled, &borrower.ID); ok {
		t.Error("transition from a stale status should report false")
	}

	ok, err := TransitionLendingRequest(ctx, database, r.ID, model.StatusPending, model.StatusCancelled, &borrower.ID)
	if err != nil || !ok {
		t.Fatalf("cancel: ok=%v err=%v", ok, err)
	}
	got, _ := GetLendingRequest(ctx, database, r.ID)
	if got.CancelledBy == nil || *got.CancelledBy != borrower.ID {
		t.Errorf("expected cancelled_by %d, got %v", borrower.ID, got.CancelledBy)
	}
}

func TestListLendingRequestsAndBlockedRanges(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	owner := mustUser(t, database, "owner", model.RoleUser)
	borrower := mustUser(t, database, "borrower", model.RoleUser)
	item := mustItem(t, database, owner.ID, 10)

	r1 := mustRequest(t, database, item.ID, borrower.ID, 1, 3)
	mustRequest(t, database, item.ID, borrower.ID, 5, 6)
	TransitionLendingRequest(ctx, database, r1.ID, model.StatusPending, model.StatusRejected, nil)

	mine, err := ListLendingRequests(ctx, database, RequestFilter{PartyID: owner.ID})
	if err != nil {
		t.Fatalf("ListLendingRequests: %v", err)
	}
	if len(mine) != 2 {
		t.Errorf("expected 2 requests for owner, got %d", len(mine))
	}

	pending, err := ListLendingRequests(ctx, database, RequestFilter{
		BorrowerID: borrower.ID, Statuses: []model.RequestStatus{model.StatusPending},
	})
	if err != nil {
		t.Fatalf("ListLendingRequests: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("expected 1 pending request, got %d", len(pending))
	}

	ranges, err := BlockedRanges(ctx, database, item.ID, day(0))
	if err != nil {
		t.Fatalf("BlockedRanges: %v", err)
	}
	if len(ranges) != 1 || !ranges[0].Start.Equal(day(5)) {
		t.Errorf("unexpected blocked ranges: %+v", ranges)
	}
}

func TestSweepLendingRequests(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	owner := mustUser(t, database, "owner", model.RoleUser)
	borrower := mustUser(t, database, "borrower", model.RoleUser)
	item := mustItem(t, database, owner.ID, 10)

	started := mustRequest(t, database, item.ID, borrower.ID, 1, 3)
	future := mustRequest(t, database, item.ID, borrower.ID, 10, 12)
	pending := mustRequest(t, database, item.ID, borrower.ID, 20, 21)
	AcceptLendingRequest(ctx, database, started.ID, owner.ID)
	AcceptLendingRequest(ctx, database, future.ID, owner.ID)

	swept, err := SweepLendingRequests(ctx, database, day(2))
	if err != nil {
		t.Fatalf("SweepLendingRequests: %v", err)
	}
	if len(swept) != 1 || swept[0].ID != started.ID || swept[0].Status != model.StatusActive {
		t.Fatalf("unexpected first sweep: %+v", swept)
	}

	swept, err = SweepLendingRequests(ctx, database, day(3))
	if err != nil {
		t.Fatalf("SweepLendingRequests: %v", err)
	}
	if len(swept) != 1 || swept[0].Status != model.StatusCompleted {
		t.Fatalf("unexpected second sweep: %+v", swept)
	}

	for id, want := range map[int64]model.RequestStatus{
		started.ID: model.StatusCompleted,
		future.ID:  model.StatusAccepted,
		pending.ID: model.StatusPending,
	} {
		got, _ := GetLendingRequest(ctx, database, id)
		if got.Status != want {
			t.Errorf("request %d: expected %s, got %s", id, want, got.Status)
		}
	}
}
