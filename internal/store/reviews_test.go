package store

import (
	"context"
	"errors"
	"testing"

	"github.com/campusrent/campusrent/internal/db"
	"github.com/campusrent/campusrent/internal/model"
)

func TestCreateReviewRecomputesRating(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	lender := mustUser(t, database, "lender", model.RoleUser)
	b1 := mustUser(t, database, "b1", model.RoleUser)
	b2 := mustUser(t, database, "b2", model.RoleUser)
	item := mustItem(t, database, lender.ID, 10)

	r1 := mustRequest(t, database, item.ID, b1.ID, 1, 2)
	r2 := mustRequest(t, database, item.ID, b2.ID, 3, 4)
	mustComplete(t, database, r1)
	mustComplete(t, database, r2)

	rv, err := CreateReview(ctx, database, NewReview{
		LendingRequestID: r1.ID, ReviewerID: b1.ID, RevieweeID: lender.ID,
		Rating: 4, Comment: "good", Type: model.ReviewOfLender,
	})
	if err != nil {
		t.Fatalf("CreateReview: %v", err)
	}
	if rv.ReviewerName != "b1" || rv.Type != model.ReviewOfLender {
		t.Errorf("unexpected review: %+v", rv)
	}

	u, _ := GetUser(ctx, database, lender.ID)
	if u.Rating != 4.0 || u.ReviewCount != 1 {
		t.Errorf("expected rating 4.0 over 1, got %v over %d", u.Rating, u.ReviewCount)
	}

	if _, err := CreateReview(ctx, database, NewReview{
		LendingRequestID: r2.ID, ReviewerID: b2.ID, RevieweeID: lender.ID,
		Rating: 5, Type: model.ReviewOfLender,
	}); err != nil {
		t.Fatalf("CreateReview: %v", err)
	}

	u, _ = GetUser(ctx, database, lender.ID)
	if u.Rating != 4.5 || u.ReviewCount != 2 {
		t.Errorf("expected rating 4.5 over 2, got %v over %d", u.Rating, u.ReviewCount)
	}

	reviews, err := ListReviewsForUser(ctx, database, lender.ID)
	if err != nil {
		t.Fatalf("ListReviewsForUser: %v", err)
	}
	if len(reviews) != 2 || reviews[0].Rating != 5 {
		t.Errorf("unexpected reviews: %+v", reviews)
	}

	ok, err := DeleteReview(ctx, database, reviews[0].ID)
	if err != nil || !ok {
		t.Fatalf("DeleteReview: ok=%v err=%v", ok, err)
	}
	u, _ = GetUser(ctx, database, lender.ID)
	if u.Rating != 4.0 || u.ReviewCount != 1 {
		t.Errorf("expected rating 4.0 over 1 after delete, got %v over %d", u.Rating, u.ReviewCount)
	}

	ok, _ = DeleteReview(ctx, database, rv.ID)
	if !ok {
		t.Fatal("expected second delete to succeed")
	}
	u, _ = GetUser(ctx, database, lender.ID)
	if u.Rating != 0 || u.ReviewCount != 0 {
		t.Errorf("expected rating reset to 0, got %v over %d", u.Rating, u.ReviewCount)
	}

	if ok, _ := DeleteReview(ctx, database, rv.ID); ok {
		t.Error("deleting a missing review should report false")
	}
}

func TestCreateReviewRoundsToOneDecimal(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	lender := mustUser(t, database, "lender", model.RoleUser)
	item := mustItem(t, database, lender.ID, 10)

	for i, rating := range []int{5, 4, 4} {
		b := mustUser(t, database, "b"+string(rune('a'+i)), model.RoleUser)
		r := mustRequest(t, database, item.ID, b.ID, i*2, i*2+1)
		mustComplete(t, database, r)
		if _, err := CreateReview(ctx, database, NewReview{
			LendingRequestID: r.ID, ReviewerID: b.ID, RevieweeID: lender.ID, Rating: rating, Type: model.ReviewOfLender,
		}); err != nil {
			t.Fatalf("CreateReview: %v", err)
		}
	}

	u, _ := GetUser(ctx, database, lender.ID)
	if u.Rating != 4.3 {
		t.Errorf("expected 4.3, got %v", u.Rating)
	}
}

func TestCreateReviewRejections(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	lender := mustUser(t, database, "lender", model.RoleUser)
	borrower := mustUser(t, database, "borrower", model.RoleUser)
	item := mustItem(t, database, lender.ID, 10)

	open := mustRequest(t, database, item.ID, borrower.ID, 1, 2)
	_, err := CreateReview(ctx, database, NewReview{
		LendingRequestID: open.ID, ReviewerID: borrower.ID, RevieweeID: lender.ID, Rating: 5, Type: model.ReviewOfLender,
	})
	if !errors.Is(err, ErrRequestNotCompleted) {
		t.Errorf("expected ErrRequestNotCompleted, got %v", err)
	}

	mustComplete(t, database, open)
	nr := NewReview{LendingRequestID: open.ID, ReviewerID: borrower.ID, RevieweeID: lender.ID, Rating: 5, Type: model.ReviewOfLender}
	if _, err := CreateReview(ctx, database, nr); err != nil {
		t.Fatalf("CreateReview: %v", err)
	}
	_, err = CreateReview(ctx, database, nr)
	if !errors.Is(err, ErrDuplicateReview) {
		t.Errorf("expected ErrDuplicateReview, got %v", err)
	}

	// The other side may still review.
	if _, err := CreateReview(ctx, database, NewReview{
		LendingRequestID: open.ID, ReviewerID: lender.ID, RevieweeID: borrower.ID, Rating: 3, Type: model.ReviewOfBorrower,
	}); err != nil {
		t.Errorf("lender review: %v", err)
	}

	u, _ := GetUser(ctx, database, lender.ID)
	if u.ReviewCount != 1 {
		t.Errorf("duplicate must not change the count, got %d", u.ReviewCount)
	}
}
