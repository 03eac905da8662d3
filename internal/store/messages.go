package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/campusrent/campusrent/internal/model"
)

const messageColumns = `m.id, m.kind, m.lending_request_id, m.item_id, m.inquirer_id,
	m.sender_id, m.recipient_id, m.content, m.is_read, m.read_at, m.created_at`

func scanMessage(s rowScanner) (*model.Message, error) {
	m := &model.Message{}
	var kind string
	var requestID, itemID, inquirerID sql.NullInt64
	err := s.Scan(&m.ID, &kind, &requestID, &itemID, &inquirerID,
		&m.SenderID, &m.RecipientID, &m.Content, &m.IsRead, &m.ReadAt, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.Thread = threadFromColumns(kind, requestID, itemID, inquirerID)
	return m, nil
}

func threadFromColumns(kind string, requestID, itemID, inquirerID sql.NullInt64) model.Thread {
	if model.ThreadKind(kind) == model.ThreadBooking {
		return model.BookingThread{LendingRequestID: requestID.Int64}
	}
	return model.InquiryThread{ItemID: itemID.Int64, InquirerID: inquirerID.Int64}
}

// threadWhere returns the predicate selecting one thread's messages.
func threadWhere(t model.Thread) (string, []any) {
	switch th := t.(type) {
	case model.BookingThread:
		return `m.kind = 'booking' AND m.lending_request_id = ?`, []any{th.LendingRequestID}
	case model.InquiryThread:
		return `m.kind = 'inquiry' AND m.item_id = ? AND m.inquirer_id = ?`, []any{th.ItemID, th.InquirerID}
	}
	return `0`, nil
}

// CreateMessage stores a message in its thread.
func CreateMessage(ctx context.Context, db *sql.DB, t model.Thread, senderID, recipientID int64, content string) (*model.Message, error) {
	var requestID, itemID, inquirerID any
	switch th := t.(type) {
	case model.BookingThread:
		requestID = th.LendingRequestID
	case model.InquiryThread:
		itemID, inquirerID = th.ItemID, th.InquirerID
	default:
		return nil, fmt.Errorf("creating message: unknown thread %T", t)
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO messages (kind, lending_request_id, item_id, inquirer_id, sender_id, recipient_id, content)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(t.Kind()), requestID, itemID, inquirerID, senderID, recipientID, content,
	)
	if err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting message id: %w", err)
	}

	m, err := scanMessage(db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages m WHERE m.id = ?`, id,
	))
	if err != nil {
		return nil, fmt.Errorf("getting message: %w", err)
	}
	return m, nil
}

// ListThreadMessages returns a thread's messages, oldest first.
func ListThreadMessages(ctx context.Context, db *sql.DB, t model.Thread) ([]model.Message, error) {
	where, args := threadWhere(t)
	rows, err := db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages m WHERE `+where+` ORDER BY m.id`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

// MarkThreadRead marks every unread message addressed to readerID in the
// thread as read and returns how many changed.
func MarkThreadRead(ctx context.Context, db *sql.DB, t model.Thread, readerID int64, at time.Time) (int64, error) {
	where, args := threadWhere(t)
	args = append([]any{at.UTC()}, args...)
	args = append(args, readerID)
	result, err := db.ExecContext(ctx,
		`UPDATE messages AS m SET is_read = 1, read_at = ?
		 WHERE `+where+` AND m.recipient_id = ? AND m.is_read = 0`, args...,
	)
	if err != nil {
		return 0, fmt.Errorf("marking messages read: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// CountUnread counts unread messages addressed to userID.
func CountUnread(ctx context.Context, db *sql.DB, userID int64) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE recipient_id = ? AND is_read = 0`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting unread messages: %w", err)
	}
	return n, nil
}

// ListThreads returns the threads userID has taken part in, most recently
// active first.
func ListThreads(ctx context.Context, db *sql.DB, userID int64) ([]model.ThreadSummary, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT m.kind, m.lending_request_id, m.item_id, m.inquirer_id,
		        CASE WHEN m.sender_id = ? THEN m.recipient_id ELSE m.sender_id END,
		        m.content, m.created_at, t.unread
		 FROM (
		     SELECT MAX(id) AS last_id,
		            SUM(CASE WHEN recipient_id = ? AND is_read = 0 THEN 1 ELSE 0 END) AS unread
		     FROM messages
		     WHERE sender_id = ? OR recipient_id = ?
		     GROUP BY kind, lending_request_id, item_id, inquirer_id
		 ) t
		 JOIN messages m ON m.id = t.last_id
		 ORDER BY m.id DESC`,
		userID, userID, userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	defer rows.Close()

	var threads []model.ThreadSummary
	for rows.Next() {
		var s model.ThreadSummary
		var kind string
		var requestID, itemID, inquirerID sql.NullInt64
		if err := rows.Scan(&kind, &requestID, &itemID, &inquirerID,
			&s.OtherUserID, &s.LastMessage, &s.LastMessageAt, &s.UnreadCount); err != nil {
			return nil, fmt.Errorf("scanning thread: %w", err)
		}
		s.Thread = threadFromColumns(kind, requestID, itemID, inquirerID)
		threads = append(threads, s)
	}
	return threads, rows.Err()
}
