package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/campusrent/campusrent/internal/model"
)

// Review write outcomes that are not driver failures.
var (
	// ErrDuplicateReview means the reviewer already reviewed this request.
	ErrDuplicateReview = errors.New("review already exists")
	// ErrRequestNotCompleted means the request is not (or no longer) completed.
	ErrRequestNotCompleted = errors.New("lending request not completed")
)

// recomputeRating rebuilds the cached rating fields of one user from the full
// set of reviews they received.
const recomputeRating = `UPDATE users SET
	rating = COALESCE((SELECT ROUND(AVG(rating), 1) FROM reviews WHERE reviewee_id = ?), 0),
	review_count = (SELECT COUNT(*) FROM reviews WHERE reviewee_id = ?),
	version = version + 1
	WHERE id = ?`

const reviewColumns = `rv.id, rv.lending_request_id, rv.reviewer_id, rv.reviewee_id, rv.rating,
	rv.comment, rv.type, rv.created_at, u.username`

func scanReview(s rowScanner) (*model.Review, error) {
	rv := &model.Review{}
	err := s.Scan(&rv.ID, &rv.LendingRequestID, &rv.ReviewerID, &rv.RevieweeID, &rv.Rating,
		&rv.Comment, &rv.Type, &rv.CreatedAt, &rv.ReviewerName)
	if err != nil {
		return nil, err
	}
	return rv, nil
}

// NewReview holds a review submission.
type NewReview struct {
	LendingRequestID int64
	ReviewerID       int64
	RevieweeID       int64
	Rating           int
	Comment          string
	Type             string
}

// CreateReview inserts a review and recomputes the reviewee's rating in one
// transaction. The request must still be completed when the transaction runs.
func CreateReview(ctx context.Context, db *sql.DB, nr NewReview) (*model.Review, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO reviews (lending_request_id, reviewer_id, reviewee_id, rating, comment, type)
		 SELECT r.id, ?, ?, ?, ?, ?
		 FROM lending_requests r
		 WHERE r.id = ? AND r.status = 'completed'
		 ON CONFLICT (lending_request_id, reviewer_id) DO NOTHING`,
		nr.ReviewerID, nr.RevieweeID, nr.Rating, nr.Comment, nr.Type, nr.LendingRequestID,
	)
	if err != nil {
		return nil, fmt.Errorf("creating review: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM reviews WHERE lending_request_id = ? AND reviewer_id = ?)`,
			nr.LendingRequestID, nr.ReviewerID,
		).Scan(&exists); err != nil {
			return nil, fmt.Errorf("checking existing review: %w", err)
		}
		if exists == 1 {
			return nil, ErrDuplicateReview
		}
		return nil, ErrRequestNotCompleted
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting review id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, recomputeRating, nr.RevieweeID, nr.RevieweeID, nr.RevieweeID); err != nil {
		return nil, fmt.Errorf("recomputing rating: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing review: %w", err)
	}

	return GetReview(ctx, db, id)
}

// GetReview returns a review by ID.
func GetReview(ctx context.Context, db *sql.DB, id int64) (*model.Review, error) {
	rv, err := scanReview(db.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews rv JOIN users u ON u.id = rv.reviewer_id WHERE rv.id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting review: %w", err)
	}
	return rv, nil
}

// DeleteReview removes a review and recomputes the reviewee's rating in one
// transaction. It reports false if the review did not exist.
func DeleteReview(ctx context.Context, db *sql.DB, id int64) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var revieweeID int64
	err = tx.QueryRowContext(ctx,
		`DELETE FROM reviews WHERE id = ? RETURNING reviewee_id`, id,
	).Scan(&revieweeID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("deleting review: %w", err)
	}

	if _, err := tx.ExecContext(ctx, recomputeRating, revieweeID, revieweeID, revieweeID); err != nil {
		return false, fmt.Errorf("recomputing rating: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing review deletion: %w", err)
	}
	return true, nil
}

// ListReviewsForUser returns the reviews a user received, newest first.
func ListReviewsForUser(ctx context.Context, db *sql.DB, userID int64) ([]model.Review, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews rv JOIN users u ON u.id = rv.reviewer_id
		 WHERE rv.reviewee_id = ? ORDER BY rv.id DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing reviews: %w", err)
	}
	defer rows.Close()

	var reviews []model.Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning review: %w", err)
		}
		reviews = append(reviews, *rv)
	}
	return reviews, rows.Err()
}
