package store

import (
	"context"
	"testing"
	"time"

	"github.com/campusrent/campusrent/internal/db"
	"github.com/campusrent/campusrent/internal/model"
)

func TestBookingThreadMessages(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	owner := mustUser(t, database, "owner", model.RoleUser)
	borrower := mustUser(t, database, "borrower", model.RoleUser)
	item := mustItem(t, database, owner.ID, 10)
	r := mustRequest(t, database, item.ID, borrower.ID, 1, 3)

	thread := model.BookingThread{LendingRequestID: r.ID}

	m, err := CreateMessage(ctx, database, thread, borrower.ID, owner.ID, "hi")
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if m.Thread != thread {
		t.Errorf("expected thread %+v, got %+v", thread, m.Thread)
	}
	if m.IsRead {
		t.Error("new message should be unread")
	}
	CreateMessage(ctx, database, thread, owner.ID, borrower.ID, "hello")
	CreateMessage(ctx, database, thread, borrower.ID, owner.ID, "still there?")

	msgs, err := ListThreadMessages(ctx, database, thread)
	if err != nil {
		t.Fatalf("ListThreadMessages: %v", err)
	}
	if len(msgs) != 3 || msgs[0].Content != "hi" || msgs[2].Content != "still there?" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}

	n, err := CountUnread(ctx, database, owner.ID)
	if err != nil {
		t.Fatalf("CountUnread: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 unread for owner, got %d", n)
	}

	changed, err := MarkThreadRead(ctx, database, thread, owner.ID, time.Now())
	if err != nil {
		t.Fatalf("MarkThreadRead: %v", err)
	}
	if changed != 2 {
		t.Errorf("expected 2 messages marked read, got %d", changed)
	}

	n, _ = CountUnread(ctx, database, owner.ID)
	if n != 0 {
		t.Errorf("expected 0 unread for owner, got %d", n)
	}
	n, _ = CountUnread(ctx, database, borrower.ID)
	if n != 1 {
		t.Errorf("reading must not touch the other side, expected 1 unread for borrower, got %d", n)
	}
}

func TestInquiryThreadsAreSeparate(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	owner := mustUser(t, database, "owner", model.RoleUser)
	ana := mustUser(t, database, "ana", model.RoleUser)
	bor := mustUser(t, database, "bor", model.RoleUser)
	item := mustItem(t, database, owner.ID, 10)

	anaThread := model.InquiryThread{ItemID: item.ID, InquirerID: ana.ID}
	borThread := model.InquiryThread{ItemID: item.ID, InquirerID: bor.ID}

	CreateMessage(ctx, database, anaThread, ana.ID, owner.ID, "is it free?")
	CreateMessage(ctx, database, borThread, bor.ID, owner.ID, "price?")
	CreateMessage(ctx, database, anaThread, owner.ID, ana.ID, "yes")

	msgs, err := ListThreadMessages(ctx, database, anaThread)
	if err != nil {
		t.Fatalf("ListThreadMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("expected 2 messages in ana's thread, got %d", len(msgs))
	}

	threads, err := ListThreads(ctx, database, owner.ID)
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if len(threads) != 2 {
		t.Fatalf("expected 2 threads for owner, got %d", len(threads))
	}
	if threads[0].Thread != anaThread || threads[0].LastMessage != "yes" || threads[0].OtherUserID != ana.ID {
		t.Errorf("unexpected latest thread: %+v", threads[0])
	}
	if threads[0].UnreadCount != 0 {
		t.Errorf("owner sent the last message in ana's thread, expected 0 unread, got %d", threads[0].UnreadCount)
	}
	if threads[1].Thread != borThread || threads[1].UnreadCount != 1 {
		t.Errorf("unexpected second thread: %+v", threads[1])
	}

	anaThreads, _ := ListThreads(ctx, database, ana.ID)
	if len(anaThreads) != 1 || anaThreads[0].UnreadCount != 1 {
		t.Errorf("unexpected threads for ana: %+v", anaThreads)
	}
}

func TestMessageThreadConstraint(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	owner := mustUser(t, database, "owner", model.RoleUser)
	ana := mustUser(t, database, "ana", model.RoleUser)

	_, err := database.ExecContext(ctx,
		`INSERT INTO messages (kind, lending_request_id, item_id, inquirer_id, sender_id, recipient_id, content)
		 VALUES ('booking', NULL, NULL, NULL, ?, ?, 'x')`,
		ana.ID, owner.ID,
	)
	if err == nil {
		t.Error("booking message without a request should violate the thread check")
	}
}
