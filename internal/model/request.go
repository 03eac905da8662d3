package model

import (
	"math"
	"time"
)

// RequestStatus is the lifecycle state of a lending request.
type RequestStatus string

// Lending request statuses.
const (
	StatusPending   RequestStatus = "pending"
	StatusAccepted  RequestStatus = "accepted"
	StatusRejected  RequestStatus = "rejected"
	StatusCancelled RequestStatus = "cancelled"
	StatusActive    RequestStatus = "active"
	StatusCompleted RequestStatus = "completed"
)

var transitions = map[RequestStatus]map[RequestStatus]struct{}{
	StatusPending:  {StatusAccepted: {}, StatusRejected: {}, StatusCancelled: {}},
	StatusAccepted: {StatusActive: {}, StatusCancelled: {}},
	StatusActive:   {StatusCompleted: {}, StatusCancelled: {}},
}

// BlockingStatuses reserve the item's calendar for the request's date range.
var BlockingStatuses = []RequestStatus{StatusPending, StatusAccepted, StatusActive}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to RequestStatus) bool {
	_, ok := transitions[from][to]
	return ok
}

// Blocking reports whether s reserves the item's calendar.
func (s RequestStatus) Blocking() bool {
	return s == StatusPending || s == StatusAccepted || s == StatusActive
}

// Terminal reports whether no transition leaves s.
func (s RequestStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// Valid reports whether s is a known status.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusCancelled, StatusActive, StatusCompleted:
		return true
	}
	return false
}

// LendingRequest is a booking of an item for a date range.
type LendingRequest struct {
	ID          int64         `json:"id"`
	ItemID      int64         `json:"item_id"`
	BorrowerID  int64         `json:"borrower_id"`
	LenderID    int64         `json:"lender_id"`
	StartDate   time.Time     `json:"start_date"`
	EndDate     time.Time     `json:"end_date"`
	TotalCost   float64       `json:"total_cost"`
	Message     string        `json:"message,omitempty"`
	Status      RequestStatus `json:"status"`
	CancelledBy *int64        `json:"cancelled_by,omitempty"`
	Version     int64         `json:"version"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`

	// Joined fields (not always populated).
	ItemTitle    string `json:"item_title,omitempty"`
	BorrowerName string `json:"borrower_name,omitempty"`
	LenderName   string `json:"lender_name,omitempty"`
}

// Range returns the booked interval.
func (r *LendingRequest) Range() DateRange {
	return DateRange{Start: r.StartDate, End: r.EndDate}
}

// IsParty reports whether userID is the borrower or the lender.
func (r *LendingRequest) IsParty(userID int64) bool {
	return userID == r.BorrowerID || userID == r.LenderID
}

// Counterpart returns the other party of the request, or 0 if userID is not a
// party.
func (r *LendingRequest) Counterpart(userID int64) int64 {
	switch userID {
	case r.BorrowerID:
		return r.LenderID
	case r.LenderID:
		return r.BorrowerID
	}
	return 0
}

// BillableDays returns the number of started days between start and end.
// A request costs the item's daily rate times this count; the multiplication
// happens in the insert so it uses the rate stored at that moment.
func BillableDays(start, end time.Time) int {
	d := end.Sub(start)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}
