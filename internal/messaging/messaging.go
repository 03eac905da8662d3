// Package messaging implements participant-only conversation threads: one
// per lending request and one per (item, prospective borrower) inquiry.
package messaging

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/campusrent/campusrent/internal/apperr"
	"github.com/campusrent/campusrent/internal/auth"
	"github.com/campusrent/campusrent/internal/model"
	"github.com/campusrent/campusrent/internal/notify"
	"github.com/campusrent/campusrent/internal/store"
)

// MaxContentLength bounds a single message.
const MaxContentLength = 5000

// Service reads and writes threads.
type Service struct {
	DB       *sql.DB
	Notifier notify.Notifier
	// RequireVerified restricts messaging to verified accounts.
	RequireVerified bool
	// Now defaults to time.Now.
	Now func() time.Time
}

// participants describes who may use a thread and whether it is open for
// new messages.
type participants struct {
	a, b     int64
	writable bool
	closed   string
}

func (p participants) includes(userID int64) bool {
	return userID == p.a || userID == p.b
}

func (p participants) other(userID int64) int64 {
	if userID == p.a {
		return p.b
	}
	return p.a
}

func (s *Service) gate(actor *auth.Identity) error {
	if s.RequireVerified && !actor.IsVerified {
		return apperr.Forbidden("verification_required", "verify your account to use messaging")
	}
	return nil
}

// resolve loads whatever a thread hangs off and checks that actor takes part.
func (s *Service) resolve(ctx context.Context, actor *auth.Identity, t model.Thread) (participants, error) {
	if err := s.gate(actor); err != nil {
		return participants{}, err
	}

	var p participants
	switch th := t.(type) {
	case model.BookingThread:
		r, err := store.GetLendingRequest(ctx, s.DB, th.LendingRequestID)
		if err != nil {
			return p, apperr.Store(err)
		}
		if r == nil {
			return p, apperr.NotFound("lending_request")
		}
		p = participants{a: r.BorrowerID, b: r.LenderID}
		switch r.Status {
		case model.StatusAccepted, model.StatusActive, model.StatusCompleted:
			p.writable = true
		default:
			p.closed = fmt.Sprintf("messaging is not open for a %s request", r.Status)
		}

	case model.InquiryThread:
		item, err := store.GetItem(ctx, s.DB, th.ItemID)
		if err != nil {
			return p, apperr.Store(err)
		}
		if item == nil || item.DeletedAt != nil {
			return p, apperr.NotFound("item")
		}
		if th.InquirerID == item.OwnerID {
			return p, apperr.Validation("owners cannot open an inquiry on their own item")
		}
		p = participants{a: th.InquirerID, b: item.OwnerID, writable: item.Listed()}
		if !p.writable {
			p.closed = "the item is no longer listed"
		}

	default:
		return p, apperr.Validation("unknown thread")
	}

	if !p.includes(actor.UserID) {
		return p, apperr.Forbidden("not_participant", "you are not a participant of this thread")
	}
	return p, nil
}

// ListThreads returns the caller's threads, most recent first.
func (s *Service) ListThreads(ctx context.Context, actor *auth.Identity) ([]model.ThreadSummary, error) {
	if err := s.gate(actor); err != nil {
		return nil, err
	}
	threads, err := store.ListThreads(ctx, s.DB, actor.UserID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return threads, nil
}

// Messages returns a thread's messages oldest first and marks the ones
// addressed to the caller as read.
func (s *Service) Messages(ctx context.Context, actor *auth.Identity, t model.Thread) ([]model.Message, error) {
	if _, err := s.resolve(ctx, actor, t); err != nil {
		return nil, err
	}

	if _, err := store.MarkThreadRead(ctx, s.DB, t, actor.UserID, s.now()); err != nil {
		return nil, apperr.Store(err)
	}

	messages, err := store.ListThreadMessages(ctx, s.DB, t)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return messages, nil
}

// Post adds a message from the caller to the other participant.
func (s *Service) Post(ctx context.Context, actor *auth.Identity, t model.Thread, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation("message must not be empty")
	}
	if len(content) > MaxContentLength {
		return nil, apperr.Validation("message must be at most %d characters", MaxContentLength)
	}

	p, err := s.resolve(ctx, actor, t)
	if err != nil {
		return nil, err
	}
	if !p.writable {
		return nil, apperr.InvalidState("%s", p.closed)
	}

	recipientID := p.other(actor.UserID)
	recipient, err := store.GetUser(ctx, s.DB, recipientID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if recipient == nil || recipient.DeletedAt != nil {
		return nil, apperr.InvalidState("the other participant's account no longer exists")
	}

	m, err := store.CreateMessage(ctx, s.DB, t, actor.UserID, recipientID, content)
	if err != nil {
		return nil, apperr.Store(err)
	}

	s.notifier().Notify(notify.Notification{
		UserID: recipientID,
		Kind:   notify.KindNewMessage,
		Title:  "New message from " + actor.Username,
		Body:   preview(content),
		Data:   threadData(t),
	})
	return m, nil
}

// UnreadCount returns how many messages wait for the caller.
func (s *Service) UnreadCount(ctx context.Context, actor *auth.Identity) (int, error) {
	if err := s.gate(actor); err != nil {
		return 0, err
	}
	n, err := store.CountUnread(ctx, s.DB, actor.UserID)
	if err != nil {
		return 0, apperr.Store(err)
	}
	return n, nil
}

func preview(content string) string {
	const n = 80
	r := []rune(content)
	if len(r) <= n {
		return content
	}
	return string(r[:n]) + "…"
}

func threadData(t model.Thread) map[string]string {
	data := map[string]string{"kind": string(t.Kind())}
	switch th := t.(type) {
	case model.BookingThread:
		data["lending_request_id"] = strconv.FormatInt(th.LendingRequestID, 10)
	case model.InquiryThread:
		data["item_id"] = strconv.FormatInt(th.ItemID, 10)
		data["inquirer_id"] = strconv.FormatInt(th.InquirerID, 10)
	}
	return data
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) notifier() notify.Notifier {
	if s.Notifier == nil {
		return notify.Discard{}
	}
	return s.Notifier
}
