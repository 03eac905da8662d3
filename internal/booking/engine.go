// Package booking runs the lending request lifecycle: creation with conflict
// checks, the lender's decision, cancellation, hand-over and completion.
package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/campusrent/campusrent/internal/apperr"
	"github.com/campusrent/campusrent/internal/auth"
	"github.com/campusrent/campusrent/internal/metrics"
	"github.com/campusrent/campusrent/internal/model"
	"github.com/campusrent/campusrent/internal/notify"
	"github.com/campusrent/campusrent/internal/store"
)

// MaxMessageLength bounds the borrower's note on a request.
const MaxMessageLength = 2000

// Engine applies booking operations on behalf of users.
type Engine struct {
	DB       *sql.DB
	Notifier notify.Notifier
	Logger   *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *Engine) notifier() notify.Notifier {
	if e.Notifier == nil {
		return notify.Discard{}
	}
	return e.Notifier
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// CreateInput is a borrower's booking request.
type CreateInput struct {
	ItemID    int64
	StartDate time.Time
	EndDate   time.Time
	Message   string
}

// Create files a pending request for the caller. The overlap check happens
// inside the insert, so of several concurrent requests for the same dates
// exactly one succeeds and the rest get a Conflict.
func (e *Engine) Create(ctx context.Context, actor *auth.Identity, in CreateInput) (*model.LendingRequest, error) {
	start, end := in.StartDate.UTC(), in.EndDate.UTC()
	if !start.Before(end) {
		return nil, apperr.Validation("start date must be before end date")
	}
	today := e.now().Truncate(24 * time.Hour)
	if start.Before(today) {
		return nil, apperr.Validation("start date must not be in the past")
	}
	if len(in.Message) > MaxMessageLength {
		return nil, apperr.Validation("message must be at most %d characters", MaxMessageLength)
	}

	item, err := store.GetItem(ctx, e.DB, in.ItemID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if item == nil || !item.Listed() {
		return nil, apperr.NotFound("item")
	}
	if item.OwnerID == actor.UserID {
		return nil, apperr.Validation("you cannot borrow your own item")
	}
	if !item.Bookable() {
		return nil, apperr.InvalidState("item is not available for booking")
	}

	r, err := store.CreateLendingRequest(ctx, e.DB, store.NewLendingRequest{
		ItemID:     in.ItemID,
		BorrowerID: actor.UserID,
		StartDate:  start,
		EndDate:    end,
		Message:    in.Message,
	})
	switch {
	case errors.Is(err, store.ErrBookingConflict):
		metrics.BookingConflicts.Inc()
		return nil, apperr.Conflict("booking_conflict", "the item is already booked for some of these dates")
	case errors.Is(err, store.ErrItemNotBookable):
		return nil, apperr.InvalidState("item is not available for booking")
	case err != nil:
		return nil, apperr.Store(err)
	}

	metrics.BookingTransitions.WithLabelValues(string(model.StatusPending), "user").Inc()
	e.logger().Info("lending request created",
		"request_id", r.ID, "item_id", r.ItemID, "borrower_id", r.BorrowerID)
	e.notify(r, r.LenderID, notify.KindRequestCreated, "New booking request",
		fmt.Sprintf("%s wants to borrow %s", r.BorrowerName, r.ItemTitle))
	return r, nil
}

// Get returns a request the caller is a party to.
func (e *Engine) Get(ctx context.Context, actor *auth.Identity, id int64) (*model.LendingRequest, error) {
	r, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.IsParty(actor.UserID) {
		return nil, apperr.Forbidden("not_participant", "you are not a party to this request")
	}
	return r, nil
}

// Accept moves a pending request to accepted. Only the lender may accept.
// The overlap check is repeated in the same UPDATE that flips the status.
func (e *Engine) Accept(ctx context.Context, actor *auth.Identity, id int64) (*model.LendingRequest, error) {
	r, err := e.lenderRequest(ctx, actor, id, model.StatusAccepted)
	if err != nil {
		return nil, err
	}

	ok, err := store.AcceptLendingRequest(ctx, e.DB, id, actor.UserID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if !ok {
		return nil, e.explainFailedAccept(ctx, id)
	}

	return e.finish(ctx, id, actor.UserID, notify.KindRequestAccepted, "Booking accepted",
		fmt.Sprintf("Your request for %s was accepted", r.ItemTitle))
}

func (e *Engine) explainFailedAccept(ctx context.Context, id int64) error {
	current, err := e.load(ctx, id)
	if err != nil {
		return err
	}
	if current.Status != model.StatusPending {
		return invalidTransition(current.Status, model.StatusAccepted)
	}
	overlap, err := store.HasAcceptedOverlap(ctx, e.DB, id)
	if err != nil {
		return apperr.Store(err)
	}
	if overlap {
		metrics.BookingConflicts.Inc()
		return apperr.Conflict("booking_conflict", "another booking for these dates was already accepted")
	}
	return apperr.InvalidState("item is no longer available")
}

// Reject moves a pending request to rejected. Only the lender may reject.
func (e *Engine) Reject(ctx context.Context, actor *auth.Identity, id int64) (*model.LendingRequest, error) {
	r, err := e.lenderRequest(ctx, actor, id, model.StatusRejected)
	if err != nil {
		return nil, err
	}
	if err := e.transition(ctx, id, r.Status, model.StatusRejected, nil); err != nil {
		return nil, err
	}
	return e.finish(ctx, id, actor.UserID, notify.KindRequestRejected, "Booking declined",
		fmt.Sprintf("Your request for %s was declined", r.ItemTitle))
}

// Cancel withdraws a pending or accepted request. Either party may cancel.
func (e *Engine) Cancel(ctx context.Context, actor *auth.Identity, id int64) (*model.LendingRequest, error) {
	r, err := e.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if r.Status != model.StatusPending && r.Status != model.StatusAccepted {
		return nil, invalidTransition(r.Status, model.StatusCancelled)
	}
	if err := e.transition(ctx, id, r.Status, model.StatusCancelled, &actor.UserID); err != nil {
		return nil, err
	}
	return e.finish(ctx, id, actor.UserID, notify.KindRequestCancelled, "Booking cancelled",
		fmt.Sprintf("The booking for %s was cancelled", r.ItemTitle))
}

// Activate records the hand-over of an accepted request. Only the lender may
// activate, and not before the start date.
func (e *Engine) Activate(ctx context.Context, actor *auth.Identity, id int64) (*model.LendingRequest, error) {
	r, err := e.lenderRequest(ctx, actor, id, model.StatusActive)
	if err != nil {
		return nil, err
	}
	if e.now().Before(r.StartDate) {
		return nil, apperr.InvalidState("the rental has not started yet")
	}
	if err := e.transition(ctx, id, r.Status, model.StatusActive, nil); err != nil {
		return nil, err
	}
	return e.finish(ctx, id, actor.UserID, notify.KindRequestActive, "Rental started",
		fmt.Sprintf("The rental of %s has started", r.ItemTitle))
}

// Complete closes an active request once its end date has passed. Only the
// lender may complete by hand; the sweeper completes the rest.
func (e *Engine) Complete(ctx context.Context, actor *auth.Identity, id int64) (*model.LendingRequest, error) {
	r, err := e.lenderRequest(ctx, actor, id, model.StatusCompleted)
	if err != nil {
		return nil, err
	}
	if e.now().Before(r.EndDate) {
		return nil, apperr.InvalidState("the rental period has not ended yet")
	}
	if err := e.transition(ctx, id, r.Status, model.StatusCompleted, nil); err != nil {
		return nil, err
	}

	done, err := e.finish(ctx, id, actor.UserID, notify.KindRequestCompleted, "Rental completed",
		fmt.Sprintf("The rental of %s is complete. Leave a review!", r.ItemTitle))
	if err != nil {
		return nil, err
	}
	// finish notified the borrower; the lender gets the review prompt too.
	e.notify(done, done.LenderID, notify.KindRequestCompleted, "Rental completed",
		fmt.Sprintf("The rental of %s is complete. Leave a review!", done.ItemTitle))
	return done, nil
}

// ListFilter narrows List.
type ListFilter struct {
	// Role is "borrower", "lender" or empty for both.
	Role     string
	Statuses []model.RequestStatus
	Limit    int
	Offset   int
}

// List returns the caller's requests.
func (e *Engine) List(ctx context.Context, actor *auth.Identity, f ListFilter) ([]model.LendingRequest, error) {
	sf := store.RequestFilter{Statuses: f.Statuses, Limit: f.Limit, Offset: f.Offset}
	switch f.Role {
	case "borrower":
		sf.BorrowerID = actor.UserID
	case "lender":
		sf.LenderID = actor.UserID
	case "":
		sf.PartyID = actor.UserID
	default:
		return nil, apperr.Validation("role must be borrower or lender")
	}
	for _, s := range f.Statuses {
		if !s.Valid() {
			return nil, apperr.Validation("unknown status %q", s)
		}
	}

	requests, err := store.ListLendingRequests(ctx, e.DB, sf)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return requests, nil
}

// ListForItem returns every request on an item. Only the owner may list them.
func (e *Engine) ListForItem(ctx context.Context, actor *auth.Identity, itemID int64, statuses []model.RequestStatus) ([]model.LendingRequest, error) {
	item, err := store.GetItem(ctx, e.DB, itemID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if item == nil || item.DeletedAt != nil {
		return nil, apperr.NotFound("item")
	}
	if item.OwnerID != actor.UserID {
		return nil, apperr.Forbidden("not_owner", "only the owner can see an item's requests")
	}

	requests, err := store.ListLendingRequests(ctx, e.DB, store.RequestFilter{ItemID: itemID, Statuses: statuses})
	if err != nil {
		return nil, apperr.Store(err)
	}
	return requests, nil
}

// Calendar returns the date ranges reserved on a listed item from today on.
func (e *Engine) Calendar(ctx context.Context, itemID int64) ([]model.DateRange, error) {
	item, err := store.GetItem(ctx, e.DB, itemID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if item == nil || !item.Listed() {
		return nil, apperr.NotFound("item")
	}

	ranges, err := store.BlockedRanges(ctx, e.DB, itemID, e.now().Truncate(24*time.Hour))
	if err != nil {
		return nil, apperr.Store(err)
	}
	return ranges, nil
}

func (e *Engine) load(ctx context.Context, id int64) (*model.LendingRequest, error) {
	r, err := store.GetLendingRequest(ctx, e.DB, id)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if r == nil {
		return nil, apperr.NotFound("lending_request")
	}
	return r, nil
}

// lenderRequest loads a request for a lender-only action and checks that the
// move to `to` is allowed from its current status.
func (e *Engine) lenderRequest(ctx context.Context, actor *auth.Identity, id int64, to model.RequestStatus) (*model.LendingRequest, error) {
	r, err := e.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if r.LenderID != actor.UserID {
		return nil, apperr.Forbidden("not_lender", "only the lender can do this")
	}
	if !model.CanTransition(r.Status, to) {
		return nil, invalidTransition(r.Status, to)
	}
	return r, nil
}

// transition applies a status change conditioned on the status read earlier.
// Losing a race to another writer is reported as InvalidState.
func (e *Engine) transition(ctx context.Context, id int64, from, to model.RequestStatus, cancelledBy *int64) error {
	ok, err := store.TransitionLendingRequest(ctx, e.DB, id, from, to, cancelledBy)
	if err != nil {
		return apperr.Store(err)
	}
	if !ok {
		current, err := e.load(ctx, id)
		if err != nil {
			return err
		}
		return invalidTransition(current.Status, to)
	}
	return nil
}

// finish reloads a request after a successful transition, records it and
// tells the other party.
func (e *Engine) finish(ctx context.Context, id, actorID int64, kind, title, body string) (*model.LendingRequest, error) {
	r, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	metrics.BookingTransitions.WithLabelValues(string(r.Status), "user").Inc()
	e.logger().Info("lending request transitioned",
		"request_id", r.ID, "status", r.Status, "actor_id", actorID)
	e.notify(r, r.Counterpart(actorID), kind, title, body)
	return r, nil
}

// Metric sources for requests cancelled by a cascade.
const (
	SourceOwner     = "owner"
	SourceModerator = "moderator"
)

// AnnounceCancelled records requests cancelled by an item removal or an
// account deletion and tells their parties, except the users in skip.
func (e *Engine) AnnounceCancelled(cancelled []store.MovedRequest, source string, skip ...int64) {
	for _, c := range cancelled {
		metrics.BookingTransitions.WithLabelValues(string(model.StatusCancelled), source).Inc()
		r := &model.LendingRequest{ID: c.ID, ItemID: c.ItemID, Status: model.StatusCancelled}
		for _, uid := range []int64{c.BorrowerID, c.LenderID} {
			if slices.Contains(skip, uid) {
				continue
			}
			e.notify(r, uid, notify.KindRequestCancelled, "Booking cancelled",
				"The booking was cancelled because the item or an account was removed")
		}
	}
	if len(cancelled) > 0 {
		e.logger().Info("lending requests cancelled", "count", len(cancelled), "source", source)
	}
}

func (e *Engine) notify(r *model.LendingRequest, userID int64, kind, title, body string) {
	if userID == 0 {
		return
	}
	e.notifier().Notify(notify.Notification{
		UserID: userID,
		Kind:   kind,
		Title:  title,
		Body:   body,
		Data: map[string]string{
			"lending_request_id": strconv.FormatInt(r.ID, 10),
			"item_id":            strconv.FormatInt(r.ItemID, 10),
			"status":             string(r.Status),
		},
	})
}

func invalidTransition(from, to model.RequestStatus) error {
	return apperr.InvalidState("cannot move a %s request to %s", from, to)
}
