// Package moderation implements the admin and manager actions on accounts,
// items, reviews and reports.
package moderation

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/campusrent/campusrent/internal/apperr"
	"github.com/campusrent/campusrent/internal/auth"
	"github.com/campusrent/campusrent/internal/booking"
	"github.com/campusrent/campusrent/internal/metrics"
	"github.com/campusrent/campusrent/internal/model"
	"github.com/campusrent/campusrent/internal/policy"
	"github.com/campusrent/campusrent/internal/review"
	"github.com/campusrent/campusrent/internal/store"
)

// Length limits for free-text moderation input.
const (
	MaxReasonLength  = 200
	MaxDetailsLength = 2000
)

// Service performs moderation actions. Every account action is checked
// against the policy table with the target's current role, and the store's
// last-holder guards make the final decision at write time.
type Service struct {
	DB      *sql.DB
	Reviews *review.Aggregator
	// Bookings announces requests cancelled by item and account removal.
	Bookings *booking.Engine
	Logger   *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

func requireModerator(actor *auth.Identity) error {
	if !policy.CanModerate(actor.Role) {
		return apperr.Forbidden("insufficient_role", "moderator access required")
	}
	return nil
}

// target loads a live user and checks that actor may perform action on it.
func (s *Service) target(ctx context.Context, actor *auth.Identity, id int64, action policy.Action) (*model.User, error) {
	if err := requireModerator(actor); err != nil {
		return nil, err
	}
	u, err := store.GetUser(ctx, s.DB, id)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if u == nil || u.DeletedAt != nil {
		return nil, apperr.NotFound("user")
	}
	if !policy.Allowed(actor.UserID, actor.Role, u.ID, u.Role, action) {
		return nil, apperr.Forbidden("action_not_allowed", "you may not "+strings.ReplaceAll(string(action), "_", " ")+" this account")
	}
	return u, nil
}

// refused explains why a guarded account update changed nothing.
func (s *Service) refused(ctx context.Context, id int64) error {
	u, err := store.GetUser(ctx, s.DB, id)
	if err != nil {
		return apperr.Store(err)
	}
	if u == nil || u.DeletedAt != nil {
		return apperr.NotFound("user")
	}
	if model.IsPrivileged(u.Role) {
		n, err := store.CountRoleHolders(ctx, s.DB, u.Role, s.now())
		if err != nil {
			return apperr.Store(err)
		}
		if n <= 1 {
			return apperr.InvariantViolation("%s is the last active %s", u.Username, u.Role)
		}
	}
	return apperr.Conflict("concurrent_update", "the account changed, try again")
}

// apply runs a guarded account update for action and returns the reloaded
// user.
func (s *Service) apply(ctx context.Context, actor *auth.Identity, u *model.User, action policy.Action, update func() (bool, error)) (*model.User, error) {
	ok, err := update()
	if err != nil {
		return nil, apperr.Store(err)
	}
	if !ok {
		return nil, s.refused(ctx, u.ID)
	}

	s.record(actor, string(action), "user_id", u.ID)
	updated, err := store.GetUser(ctx, s.DB, u.ID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return updated, nil
}

// ChangeRole sets a user's role. Demoting the last active manager is an
// InvariantViolation.
func (s *Service) ChangeRole(ctx context.Context, actor *auth.Identity, id int64, role string) (*model.User, error) {
	if !model.ValidRole(role) {
		return nil, apperr.Validation("invalid role %q", role)
	}
	u, err := s.target(ctx, actor, id, policy.ChangeRole)
	if err != nil {
		return nil, err
	}
	if u.Role == role {
		return u, nil
	}
	return s.apply(ctx, actor, u, policy.ChangeRole, func() (bool, error) {
		return store.ChangeRole(ctx, s.DB, id, role, s.now())
	})
}

// BanInput is a ban order. A nil Until bans until lifted.
type BanInput struct {
	Reason string
	Until  *time.Time
}

// Ban bans a user.
func (s *Service) Ban(ctx context.Context, actor *auth.Identity, id int64, in BanInput) (*model.User, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, apperr.Validation("a ban reason is required")
	}
	if len(reason) > MaxReasonLength {
		return nil, apperr.Validation("reason must be at most %d characters", MaxReasonLength)
	}
	if in.Until != nil && !in.Until.After(s.now()) {
		return nil, apperr.Validation("ban end must be in the future")
	}

	u, err := s.target(ctx, actor, id, policy.Ban)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, actor, u, policy.Ban, func() (bool, error) {
		return store.BanUser(ctx, s.DB, id, in.Until, reason, s.now())
	})
}

// Unban lifts a ban.
func (s *Service) Unban(ctx context.Context, actor *auth.Identity, id int64) (*model.User, error) {
	u, err := s.target(ctx, actor, id, policy.Unban)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, actor, u, policy.Unban, func() (bool, error) {
		return store.UnbanUser(ctx, s.DB, id)
	})
}

// SetVerified verifies or unverifies a user.
func (s *Service) SetVerified(ctx context.Context, actor *auth.Identity, id int64, verified bool) (*model.User, error) {
	u, err := s.target(ctx, actor, id, policy.Verify)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, actor, u, policy.Verify, func() (bool, error) {
		return store.SetVerified(ctx, s.DB, id, verified)
	})
}

// SetActive activates or deactivates an account.
func (s *Service) SetActive(ctx context.Context, actor *auth.Identity, id int64, active bool) (*model.User, error) {
	action := policy.Deactivate
	if active {
		action = policy.Activate
	}
	u, err := s.target(ctx, actor, id, action)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, actor, u, action, func() (bool, error) {
		return store.SetUserActive(ctx, s.DB, id, active, s.now())
	})
}

// DeleteUser soft-deletes an account with the usual cascade. The other
// party of every cancelled request is told.
func (s *Service) DeleteUser(ctx context.Context, actor *auth.Identity, id int64) error {
	u, err := s.target(ctx, actor, id, policy.Delete)
	if err != nil {
		return err
	}
	var cancelled []store.MovedRequest
	_, err = s.apply(ctx, actor, u, policy.Delete, func() (ok bool, err error) {
		cancelled, ok, err = store.DeleteUser(ctx, s.DB, id, s.now())
		return ok, err
	})
	if err != nil {
		return err
	}
	s.bookings().AnnounceCancelled(cancelled, booking.SourceModerator, id, actor.UserID)
	return nil
}

// ListUsers lists live accounts.
func (s *Service) ListUsers(ctx context.Context, actor *auth.Identity, f store.UserFilter) ([]model.User, error) {
	if err := requireModerator(actor); err != nil {
		return nil, err
	}
	if f.Role != "" && !model.ValidRole(f.Role) {
		return nil, apperr.Validation("invalid role %q", f.Role)
	}
	users, err := store.ListUsers(ctx, s.DB, f)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return users, nil
}

// ListItems lists non-deleted items, deactivated ones included.
func (s *Service) ListItems(ctx context.Context, actor *auth.Identity, f store.ItemFilter) ([]model.Item, error) {
	if err := requireModerator(actor); err != nil {
		return nil, err
	}
	f.IncludeInactive = true
	items, err := store.ListItems(ctx, s.DB, f)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return items, nil
}

// DeactivateItem hides an item and cancels its blocking requests.
func (s *Service) DeactivateItem(ctx context.Context, actor *auth.Identity, id int64) (*model.Item, error) {
	if err := requireModerator(actor); err != nil {
		return nil, err
	}
	cancelled, ok, err := store.DeactivateItem(ctx, s.DB, id, actor.UserID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if !ok {
		return nil, apperr.NotFound("item")
	}
	s.record(actor, "deactivate_item", "item_id", id)
	s.bookings().AnnounceCancelled(cancelled, booking.SourceModerator, actor.UserID)
	return s.item(ctx, id)
}

// RestoreItem re-activates a deactivated item. Cancelled requests stay
// cancelled.
func (s *Service) RestoreItem(ctx context.Context, actor *auth.Identity, id int64) (*model.Item, error) {
	if err := requireModerator(actor); err != nil {
		return nil, err
	}
	ok, err := store.RestoreItem(ctx, s.DB, id)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if !ok {
		item, err := s.item(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, apperr.InvalidState("item %d is already active", item.ID)
	}
	s.record(actor, "restore_item", "item_id", id)
	return s.item(ctx, id)
}

func (s *Service) item(ctx context.Context, id int64) (*model.Item, error) {
	item, err := store.GetItem(ctx, s.DB, id)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if item == nil || item.DeletedAt != nil {
		return nil, apperr.NotFound("item")
	}
	return item, nil
}

// DeleteReview removes a review; the reviewee's rating is recomputed.
func (s *Service) DeleteReview(ctx context.Context, actor *auth.Identity, id int64) error {
	if err := requireModerator(actor); err != nil {
		return err
	}
	if err := s.Reviews.Delete(ctx, id); err != nil {
		return err
	}
	s.record(actor, "delete_review", "review_id", id)
	return nil
}

// ReportInput is a user's report. Exactly one of ItemID and UserID is set.
type ReportInput struct {
	ItemID  *int64
	UserID  *int64
	Reason  string
	Details string
}

// CreateReport files a report on an item or another user.
func (s *Service) CreateReport(ctx context.Context, actor *auth.Identity, in ReportInput) (*model.Report, error) {
	if (in.ItemID == nil) == (in.UserID == nil) {
		return nil, apperr.Validation("report exactly one of an item or a user")
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, apperr.Validation("a reason is required")
	}
	if len(reason) > MaxReasonLength {
		return nil, apperr.Validation("reason must be at most %d characters", MaxReasonLength)
	}
	if len(in.Details) > MaxDetailsLength {
		return nil, apperr.Validation("details must be at most %d characters", MaxDetailsLength)
	}

	if in.UserID != nil {
		if *in.UserID == actor.UserID {
			return nil, apperr.Validation("you cannot report yourself")
		}
		u, err := store.GetUser(ctx, s.DB, *in.UserID)
		if err != nil {
			return nil, apperr.Store(err)
		}
		if u == nil || u.DeletedAt != nil {
			return nil, apperr.NotFound("user")
		}
	} else {
		item, err := s.item(ctx, *in.ItemID)
		if err != nil {
			return nil, err
		}
		if item.OwnerID == actor.UserID {
			return nil, apperr.Validation("you cannot report your own item")
		}
	}

	r, err := store.CreateReport(ctx, s.DB, store.NewReport{
		ReporterID:     actor.UserID,
		ReportedItemID: in.ItemID,
		ReportedUserID: in.UserID,
		Reason:         reason,
		Details:        strings.TrimSpace(in.Details),
	})
	if err != nil {
		return nil, apperr.Store(err)
	}
	s.logger().Info("report filed", "report_id", r.ID, "reporter_id", actor.UserID)
	return r, nil
}

// ListReports lists reports, optionally by status.
func (s *Service) ListReports(ctx context.Context, actor *auth.Identity, status string, limit, offset int) ([]model.Report, error) {
	if err := requireModerator(actor); err != nil {
		return nil, err
	}
	switch status {
	case "", model.ReportPending, model.ReportReviewing, model.ReportResolved, model.ReportDismissed:
	default:
		return nil, apperr.Validation("invalid report status %q", status)
	}
	reports, err := store.ListReports(ctx, s.DB, status, limit, offset)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return reports, nil
}

// TransitionReport moves a report along pending → reviewing → resolved or
// dismissed.
func (s *Service) TransitionReport(ctx context.Context, actor *auth.Identity, id int64, status, notes string) (*model.Report, error) {
	if err := requireModerator(actor); err != nil {
		return nil, err
	}
	from := model.ReportSources(status)
	if from == nil {
		return nil, apperr.Validation("invalid report status %q", status)
	}
	if len(notes) > MaxDetailsLength {
		return nil, apperr.Validation("notes must be at most %d characters", MaxDetailsLength)
	}

	ok, err := store.TransitionReport(ctx, s.DB, id, from, status, strings.TrimSpace(notes), actor.UserID, s.now())
	if err != nil {
		return nil, apperr.Store(err)
	}
	if !ok {
		r, err := store.GetReport(ctx, s.DB, id)
		if err != nil {
			return nil, apperr.Store(err)
		}
		if r == nil {
			return nil, apperr.NotFound("report")
		}
		return nil, apperr.InvalidState("cannot move a %s report to %s", r.Status, status)
	}
	s.record(actor, "report_"+status, "report_id", id)

	r, err := store.GetReport(ctx, s.DB, id)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return r, nil
}

// Stats returns the dashboard counts.
func (s *Service) Stats(ctx context.Context, actor *auth.Identity) (*store.Stats, error) {
	if err := requireModerator(actor); err != nil {
		return nil, err
	}
	stats, err := store.GetStats(ctx, s.DB)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return stats, nil
}

func (s *Service) record(actor *auth.Identity, action, key string, id int64) {
	metrics.ModerationActions.WithLabelValues(action).Inc()
	s.logger().Info("moderation action", "action", action, "actor_id", actor.UserID, key, id)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Service) bookings() *booking.Engine {
	if s.Bookings == nil {
		return &booking.Engine{DB: s.DB, Logger: s.Logger}
	}
	return s.Bookings
}
