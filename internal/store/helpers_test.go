package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/campusrent/campusrent/internal/model"
)

func mustUser(t *testing.T, db *sql.DB, username, role string) *model.User {
	t.Helper()
	u, err := CreateUser(context.Background(), db, NewUser{
		Username:     username,
		Email:        username + "@campus.test",
		PasswordHash: "hash",
		Role:         role,
	})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return u
}

func mustItem(t *testing.T, db *sql.DB, ownerID int64, rate float64) *model.Item {
	t.Helper()
	item, err := CreateItem(context.Background(), db, ownerID, ItemFields{
		Title:     "Tent",
		Category:  "outdoor",
		DailyRate: rate,
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	return item
}

func day(n int) time.Time {
	return time.Date(2030, time.March, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func mustRequest(t *testing.T, db *sql.DB, itemID, borrowerID int64, from, to int) *model.LendingRequest {
	t.Helper()
	r, err := CreateLendingRequest(context.Background(), db, NewLendingRequest{
		ItemID:     itemID,
		BorrowerID: borrowerID,
		StartDate:  day(from),
		EndDate:    day(to),
	})
	if err != nil {
		t.Fatalf("CreateLendingRequest(%d..%d): %v", from, to, err)
	}
	return r
}

// mustComplete walks a pending request through to completed.
func mustComplete(t *testing.T, db *sql.DB, r *model.LendingRequest) {
	t.Helper()
	ctx := context.Background()
	ok, err := AcceptLendingRequest(ctx, db, r.ID, r.LenderID)
	if err != nil || !ok {
		t.Fatalf("AcceptLendingRequest: ok=%v err=%v", ok, err)
	}
	for _, step := range [][2]model.RequestStatus{
		{model.StatusAccepted, model.StatusActive},
		{model.StatusActive, model.StatusCompleted},
	} {
		ok, err := TransitionLendingRequest(ctx, db, r.ID, step[0], step[1], nil)
		if err != nil || !ok {
			t.Fatalf("TransitionLendingRequest %s->%s: ok=%v err=%v", step[0], step[1], ok, err)
		}
	}
}
