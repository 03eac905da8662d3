// Package review accepts reviews of completed rentals and keeps users'
// ratings in step with them.
package review

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/campusrent/campusrent/internal/apperr"
	"github.com/campusrent/campusrent/internal/auth"
	"github.com/campusrent/campusrent/internal/model"
	"github.com/campusrent/campusrent/internal/notify"
	"github.com/campusrent/campusrent/internal/store"
)

// MaxCommentLength bounds a review comment.
const MaxCommentLength = 1000

// Aggregator writes reviews. Ratings are recomputed from the full review set
// in the same transaction as every insert or delete.
type Aggregator struct {
	DB       *sql.DB
	Notifier notify.Notifier
	Logger   *slog.Logger
}

// SubmitInput is a review submission.
type SubmitInput struct {
	LendingRequestID int64
	// RevieweeID is optional; it must be the other party if set.
	RevieweeID int64
	Rating     int
	Comment    string
}

// Submit records the caller's review of the other party of a completed
// request. A second review of the same request by the same reviewer is a
// Conflict.
func (a *Aggregator) Submit(ctx context.Context, actor *auth.Identity, in SubmitInput) (*model.Review, error) {
	if in.Rating < model.MinRating || in.Rating > model.MaxRating {
		return nil, apperr.Validation("rating must be between %d and %d", model.MinRating, model.MaxRating)
	}
	comment := strings.TrimSpace(in.Comment)
	if len(comment) > MaxCommentLength {
		return nil, apperr.Validation("comment must be at most %d characters", MaxCommentLength)
	}

	r, err := store.GetLendingRequest(ctx, a.DB, in.LendingRequestID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if r == nil {
		return nil, apperr.NotFound("lending_request")
	}
	if !r.IsParty(actor.UserID) {
		return nil, apperr.Forbidden("not_participant", "only the borrower and lender can review this rental")
	}
	reviewee := r.Counterpart(actor.UserID)
	if in.RevieweeID != 0 && in.RevieweeID != reviewee {
		return nil, apperr.Validation("you can only review the other party of the rental")
	}
	if r.Status != model.StatusCompleted {
		return nil, apperr.InvalidState("only completed rentals can be reviewed")
	}

	rv, err := store.CreateReview(ctx, a.DB, store.NewReview{
		LendingRequestID: r.ID,
		ReviewerID:       actor.UserID,
		RevieweeID:       reviewee,
		Rating:           in.Rating,
		Comment:          comment,
		Type:             model.ReviewType(r, actor.UserID),
	})
	switch {
	case errors.Is(err, store.ErrDuplicateReview):
		return nil, apperr.Conflict("duplicate_review", "you already reviewed this rental")
	case errors.Is(err, store.ErrRequestNotCompleted):
		return nil, apperr.InvalidState("only completed rentals can be reviewed")
	case err != nil:
		return nil, apperr.Store(err)
	}

	a.logger().Info("review submitted",
		"review_id", rv.ID, "lending_request_id", r.ID, "reviewee_id", reviewee, "rating", rv.Rating)
	a.notifier().Notify(notify.Notification{
		UserID: reviewee,
		Kind:   notify.KindNewReview,
		Title:  "New review",
		Body:   fmt.Sprintf("%s rated you %d/5", rv.ReviewerName, rv.Rating),
		Data: map[string]string{
			"review_id":          strconv.FormatInt(rv.ID, 10),
			"lending_request_id": strconv.FormatInt(r.ID, 10),
		},
	})
	return rv, nil
}

// Delete removes a review and recomputes the reviewee's rating.
func (a *Aggregator) Delete(ctx context.Context, id int64) error {
	ok, err := store.DeleteReview(ctx, a.DB, id)
	if err != nil {
		return apperr.Store(err)
	}
	if !ok {
		return apperr.NotFound("review")
	}
	a.logger().Info("review deleted", "review_id", id)
	return nil
}

// ListByUser returns the reviews a live user received, newest first.
func (a *Aggregator) ListByUser(ctx context.Context, userID int64) ([]model.Review, error) {
	u, err := store.GetUser(ctx, a.DB, userID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if u == nil || u.DeletedAt != nil {
		return nil, apperr.NotFound("user")
	}

	reviews, err := store.ListReviewsForUser(ctx, a.DB, userID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return reviews, nil
}

func (a *Aggregator) notifier() notify.Notifier {
	if a.Notifier == nil {
		return notify.Discard{}
	}
	return a.Notifier
}

func (a *Aggregator) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}
