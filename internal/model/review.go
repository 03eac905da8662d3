package model

import "time"

// Review types name the role the reviewee played in the booking.
const (
	ReviewOfBorrower = "borrower"
	ReviewOfLender   = "lender"
)

// Rating bounds.
const (
	MinRating = 1
	MaxRating = 5
)

// Review is one party's rating of the other after a completed booking.
type Review struct {
	ID               int64     `json:"id"`
	LendingRequestID int64     `json:"lending_request_id"`
	ReviewerID       int64     `json:"reviewer_id"`
	RevieweeID       int64     `json:"reviewee_id"`
	Rating           int       `json:"rating"`
	Comment          string    `json:"comment,omitempty"`
	Type             string    `json:"type"`
	CreatedAt        time.Time `json:"created_at"`

	// Joined fields (not always populated).
	ReviewerName string `json:"reviewer_name,omitempty"`
}

// ReviewType derives the review type from the reviewer's side of the request.
// A borrower reviews the lender and vice versa.
func ReviewType(r *LendingRequest, reviewerID int64) string {
	if reviewerID == r.BorrowerID {
		return ReviewOfLender
	}
	return ReviewOfBorrower
}
