package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/campusrent/campusrent/internal/model"
)

// Booking write outcomes that are not driver failures.
var (
	// ErrBookingConflict means a blocking request on the same item overlaps.
	ErrBookingConflict = errors.New("overlapping booking exists")
	// ErrItemNotBookable means the item vanished, was deactivated or paused,
	// or belongs to the borrower.
	ErrItemNotBookable = errors.New("item not bookable")
)

const requestColumns = `r.id, r.item_id, r.borrower_id, r.lender_id, r.start_date, r.end_date,
	r.total_cost, r.message, r.status, r.cancelled_by, r.version, r.created_at, r.updated_at,
	i.title, b.username, l.username`

const requestFrom = ` FROM lending_requests r
	JOIN items i ON i.id = r.item_id
	JOIN users b ON b.id = r.borrower_id
	JOIN users l ON l.id = r.lender_id`

// overlapClause matches a blocking request on item_id that overlaps [?, ?).
// Bind order: item id, new end, new start.
const overlapClause = `SELECT 1 FROM lending_requests o
	WHERE o.item_id = ? AND o.status IN ('pending', 'accepted', 'active')
	  AND o.start_date < ? AND ? < o.end_date`

func scanRequest(s rowScanner) (*model.LendingRequest, error) {
	r := &model.LendingRequest{}
	var start, end int64
	var status string
	err := s.Scan(&r.ID, &r.ItemID, &r.BorrowerID, &r.LenderID, &start, &end,
		&r.TotalCost, &r.Message, &status, &r.CancelledBy, &r.Version, &r.CreatedAt, &r.UpdatedAt,
		&r.ItemTitle, &r.BorrowerName, &r.LenderName)
	if err != nil {
		return nil, err
	}
	r.StartDate = time.Unix(start, 0).UTC()
	r.EndDate = time.Unix(end, 0).UTC()
	r.Status = model.RequestStatus(status)
	return r, nil
}

// NewLendingRequest holds the borrower's input for a booking.
type NewLendingRequest struct {
	ItemID     int64
	BorrowerID int64
	StartDate  time.Time
	EndDate    time.Time
	Message    string
}

// CreateLendingRequest inserts a pending request in a single conditional
// statement: the row is written only if the item is bookable, not owned by
// the borrower, and no blocking request overlaps the range. The lender and
// total cost are taken from the item row as it is at insert time.
func CreateLendingRequest(ctx context.Context, db *sql.DB, nr NewLendingRequest) (*model.LendingRequest, error) {
	start, end := nr.StartDate.Unix(), nr.EndDate.Unix()
	days := model.BillableDays(nr.StartDate, nr.EndDate)

	result, err := db.ExecContext(ctx,
		`INSERT INTO lending_requests (item_id, borrower_id, lender_id, start_date, end_date, total_cost, message, status)
		 SELECT i.id, ?, i.owner_id, ?, ?, i.daily_rate * ?, ?, 'pending'
		 FROM items i
		 WHERE i.id = ? AND i.is_active = 1 AND i.deleted_at IS NULL
		   AND i.availability = 'available' AND i.owner_id <> ?
		   AND NOT EXISTS (`+overlapClause+`)`,
		nr.BorrowerID, start, end, days, nr.Message,
		nr.ItemID, nr.BorrowerID,
		nr.ItemID, end, start,
	)
	if err != nil {
		return nil, fmt.Errorf("creating lending request: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("creating lending request: %w", err)
	}
	if n == 0 {
		overlap, err := hasOverlap(ctx, db, nr.ItemID, 0, nr.StartDate, nr.EndDate)
		if err != nil {
			return nil, err
		}
		if overlap {
			return nil, ErrBookingConflict
		}
		return nil, ErrItemNotBookable
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting lending request id: %w", err)
	}
	return GetLendingRequest(ctx, db, id)
}

func hasOverlap(ctx context.Context, db *sql.DB, itemID, excludeID int64, start, end time.Time) (bool, error) {
	var exists int
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (`+overlapClause+` AND o.id <> ?)`,
		itemID, end.Unix(), start.Unix(), excludeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking overlap: %w", err)
	}
	return exists == 1, nil
}

// GetLendingRequest returns a request by ID.
func GetLendingRequest(ctx context.Context, db *sql.DB, id int64) (*model.LendingRequest, error) {
	r, err := scanRequest(db.QueryRowContext(ctx,
		`SELECT `+requestColumns+requestFrom+` WHERE r.id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting lending request: %w", err)
	}
	return r, nil
}

// RequestFilter narrows ListLendingRequests.
type RequestFilter struct {
	ItemID     int64
	BorrowerID int64
	LenderID   int64
	// PartyID matches requests where the user is either side.
	PartyID  int64
	Statuses []model.RequestStatus
	Limit    int
	Offset   int
}

// ListLendingRequests returns requests matching f, newest first.
func ListLendingRequests(ctx context.Context, db *sql.DB, f RequestFilter) ([]model.LendingRequest, error) {
	query := `SELECT ` + requestColumns + requestFrom + ` WHERE 1=1`
	var args []any

	if f.ItemID > 0 {
		query += ` AND r.item_id = ?`
		args = append(args, f.ItemID)
	}
	if f.BorrowerID > 0 {
		query += ` AND r.borrower_id = ?`
		args = append(args, f.BorrowerID)
	}
	if f.LenderID > 0 {
		query += ` AND r.lender_id = ?`
		args = append(args, f.LenderID)
	}
	if f.PartyID > 0 {
		query += ` AND (r.borrower_id = ? OR r.lender_id = ?)`
		args = append(args, f.PartyID, f.PartyID)
	}
	if len(f.Statuses) > 0 {
		query += ` AND r.status IN (` + placeholders(len(f.Statuses)) + `)`
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	query += ` ORDER BY r.created_at DESC, r.id DESC`
	query, args = paginate(query, args, f.Limit, f.Offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing lending requests: %w", err)
	}
	defer rows.Close()

	var requests []model.LendingRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning lending request: %w", err)
		}
		requests = append(requests, *r)
	}
	return requests, rows.Err()
}

// BlockedRanges returns the date ranges reserved on an item, ordered by start.
func BlockedRanges(ctx context.Context, db *sql.DB, itemID int64, from time.Time) ([]model.DateRange, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT start_date, end_date FROM lending_requests
		 WHERE item_id = ? AND status IN ('pending', 'accepted', 'active') AND end_date > ?
		 ORDER BY start_date`,
		itemID, from.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("listing blocked ranges: %w", err)
	}
	defer rows.Close()

	var ranges []model.DateRange
	for rows.Next() {
		var start, end int64
		if err := rows.Scan(&start, &end); err != nil {
			return nil, fmt.Errorf("scanning blocked range: %w", err)
		}
		ranges = append(ranges, model.DateRange{Start: time.Unix(start, 0).UTC(), End: time.Unix(end, 0).UTC()})
	}
	return ranges, rows.Err()
}

// AcceptLendingRequest moves a pending request to accepted. The overlap check
// is repeated inside the UPDATE against accepted and active requests, so of
// two racing accepts on overlapping requests only one can match. It reports
// false when the request was not pending, not the lender's, its item is no
// longer active, or an overlap now exists.
func AcceptLendingRequest(ctx context.Context, db *sql.DB, id, lenderID int64) (bool, error) {
	return execGuarded(ctx, db, "accepting lending request",
		`UPDATE lending_requests
		 SET status = 'accepted', version = version + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND lender_id = ? AND status = 'pending'
		   AND EXISTS (SELECT 1 FROM items i
		               WHERE i.id = lending_requests.item_id AND i.is_active = 1 AND i.deleted_at IS NULL)
		   AND NOT EXISTS (SELECT 1 FROM lending_requests o
		                   WHERE o.item_id = lending_requests.item_id AND o.id <> lending_requests.id
		                     AND o.status IN ('accepted', 'active')
		                     AND o.start_date < lending_requests.end_date
		                     AND lending_requests.start_date < o.end_date)`,
		id, lenderID,
	)
}

// HasAcceptedOverlap reports whether an accepted or active request other than
// id overlaps id's range.
func HasAcceptedOverlap(ctx context.Context, db *sql.DB, id int64) (bool, error) {
	var exists int
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM lending_requests r JOIN lending_requests o ON o.item_id = r.item_id
		   WHERE r.id = ? AND o.id <> r.id AND o.status IN ('accepted', 'active')
		     AND o.start_date < r.end_date AND r.start_date < o.end_date)`, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking accepted overlap: %w", err)
	}
	return exists == 1, nil
}

// TransitionLendingRequest moves a request to `to` only if its status is
// still `from`. cancelledBy is recorded for cancellations. It reports false
// when the status had already moved on.
func TransitionLendingRequest(ctx context.Context, db *sql.DB, id int64, from, to model.RequestStatus, cancelledBy *int64) (bool, error) {
	return execGuarded(ctx, db, "transitioning lending request",
		`UPDATE lending_requests
		 SET status = ?, cancelled_by = COALESCE(?, cancelled_by), version = version + 1,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		string(to), cancelledBy, id, string(from),
	)
}

// MovedRequest identifies a request moved by a bulk update: the sweep or a
// cascading cancellation.
type MovedRequest struct {
	ID         int64
	ItemID     int64
	BorrowerID int64
	LenderID   int64
	Status     model.RequestStatus
}

// SweepLendingRequests activates accepted requests whose start has arrived
// and completes active requests whose end has passed. Each step is a single
// conditional UPDATE, so the sweep is safe to run alongside user actions.
func SweepLendingRequests(ctx context.Context, db *sql.DB, now time.Time) ([]MovedRequest, error) {
	var swept []MovedRequest

	steps := []struct {
		from, to model.RequestStatus
		column   string
	}{
		{model.StatusAccepted, model.StatusActive, "start_date"},
		{model.StatusActive, model.StatusCompleted, "end_date"},
	}

	for _, step := range steps {
		rows, err := db.QueryContext(ctx,
			`UPDATE lending_requests
			 SET status = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
			 WHERE status = ? AND `+step.column+` <= ?
			 RETURNING id, item_id, borrower_id, lender_id`,
			string(step.to), string(step.from), now.Unix(),
		)
		if err != nil {
			return swept, fmt.Errorf("sweeping %s requests: %w", step.from, err)
		}
		moved, err := scanMoved(rows, step.to)
		swept = append(swept, moved...)
		if err != nil {
			return swept, fmt.Errorf("sweeping %s requests: %w", step.from, err)
		}
	}
	return swept, nil
}

// cancelBlocking cancels the pending, accepted and active requests matching
// where, recording actorID as the canceller.
func cancelBlocking(ctx context.Context, tx *sql.Tx, actorID int64, where string, args ...any) ([]MovedRequest, error) {
	rows, err := tx.QueryContext(ctx,
		`UPDATE lending_requests
		 SET status = 'cancelled', cancelled_by = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE (`+where+`) AND status IN ('pending', 'accepted', 'active')
		 RETURNING id, item_id, borrower_id, lender_id`,
		append([]any{actorID}, args...)...,
	)
	if err != nil {
		return nil, err
	}
	return scanMoved(rows, model.StatusCancelled)
}

// scanMoved reads RETURNING id, item_id, borrower_id, lender_id rows and
// closes them.
func scanMoved(rows *sql.Rows, status model.RequestStatus) ([]MovedRequest, error) {
	defer rows.Close()
	var moved []MovedRequest
	for rows.Next() {
		m := MovedRequest{Status: status}
		if err := rows.Scan(&m.ID, &m.ItemID, &m.BorrowerID, &m.LenderID); err != nil {
			return moved, fmt.Errorf("scanning moved request: %w", err)
		}
		moved = append(moved, m)
	}
	return moved, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, 2*n-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}
