package model

import (
	"encoding/json"
	"time"
)

// ThreadKind tells booking threads and item inquiries apart.
type ThreadKind string

// Thread kinds.
const (
	ThreadBooking ThreadKind = "booking"
	ThreadInquiry ThreadKind = "inquiry"
)

// Thread identifies a conversation. It is either a BookingThread or an
// InquiryThread.
type Thread interface {
	Kind() ThreadKind
	isThread()
}

// BookingThread is the conversation attached to one lending request.
type BookingThread struct {
	LendingRequestID int64
}

// InquiryThread is the conversation between an item's owner and one
// prospective borrower before any booking exists.
type InquiryThread struct {
	ItemID     int64
	InquirerID int64
}

func (BookingThread) Kind() ThreadKind { return ThreadBooking }
func (InquiryThread) Kind() ThreadKind { return ThreadInquiry }
func (BookingThread) isThread()        {}
func (InquiryThread) isThread()        {}

// Message is one entry in a thread.
type Message struct {
	ID          int64
	Thread      Thread
	SenderID    int64
	RecipientID int64
	Content     string
	IsRead      bool
	ReadAt      *time.Time
	CreatedAt   time.Time
}

type messageJSON struct {
	ID               int64      `json:"id"`
	Kind             ThreadKind `json:"kind"`
	LendingRequestID int64      `json:"lending_request_id,omitempty"`
	ItemID           int64      `json:"item_id,omitempty"`
	InquirerID       int64      `json:"inquirer_id,omitempty"`
	SenderID         int64      `json:"sender_id"`
	RecipientID      int64      `json:"recipient_id"`
	Content          string     `json:"content"`
	IsRead           bool       `json:"is_read"`
	ReadAt           *time.Time `json:"read_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// MarshalJSON flattens the thread reference into the message object.
func (m Message) MarshalJSON() ([]byte, error) {
	out := messageJSON{
		ID:          m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Content:     m.Content,
		IsRead:      m.IsRead,
		ReadAt:      m.ReadAt,
		CreatedAt:   m.CreatedAt,
	}
	fillThreadJSON(m.Thread, &out.Kind, &out.LendingRequestID, &out.ItemID, &out.InquirerID)
	return json.Marshal(out)
}

// ThreadSummary is one row of a user's conversation list.
type ThreadSummary struct {
	Thread        Thread
	OtherUserID   int64
	LastMessage   string
	LastMessageAt time.Time
	UnreadCount   int
}

type threadSummaryJSON struct {
	Kind             ThreadKind `json:"kind"`
	LendingRequestID int64      `json:"lending_request_id,omitempty"`
	ItemID           int64      `json:"item_id,omitempty"`
	InquirerID       int64      `json:"inquirer_id,omitempty"`
	OtherUserID      int64      `json:"other_user_id"`
	LastMessage      string     `json:"last_message"`
	LastMessageAt    time.Time  `json:"last_message_at"`
	UnreadCount      int        `json:"unread_count"`
}

// MarshalJSON flattens the thread reference into the summary object.
func (s ThreadSummary) MarshalJSON() ([]byte, error) {
	out := threadSummaryJSON{
		OtherUserID:   s.OtherUserID,
		LastMessage:   s.LastMessage,
		LastMessageAt: s.LastMessageAt,
		UnreadCount:   s.UnreadCount,
	}
	fillThreadJSON(s.Thread, &out.Kind, &out.LendingRequestID, &out.ItemID, &out.InquirerID)
	return json.Marshal(out)
}

func fillThreadJSON(t Thread, kind *ThreadKind, requestID, itemID, inquirerID *int64) {
	switch th := t.(type) {
	case BookingThread:
		*kind = ThreadBooking
		*requestID = th.LendingRequestID
	case InquiryThread:
		*kind = ThreadInquiry
		*itemID = th.ItemID
		*inquirerID = th.InquirerID
	}
}
