package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/campusrent/campusrent/internal/model"
)

const reportColumns = `id, reporter_id, reported_item_id, reported_user_id, reason, details, status,
	admin_notes, resolved_by, resolved_at, created_at, updated_at`

func scanReport(s rowScanner) (*model.Report, error) {
	r := &model.Report{}
	err := s.Scan(&r.ID, &r.ReporterID, &r.ReportedItemID, &r.ReportedUserID, &r.Reason, &r.Details,
		&r.Status, &r.AdminNotes, &r.ResolvedBy, &r.ResolvedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// NewReport holds a report submission. Exactly one target must be set.
type NewReport struct {
	ReporterID     int64
	ReportedItemID *int64
	ReportedUserID *int64
	Reason         string
	Details        string
}

// CreateReport files a pending report.
func CreateReport(ctx context.Context, db *sql.DB, nr NewReport) (*model.Report, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO reports (reporter_id, reported_item_id, reported_user_id, reason, details)
		 VALUES (?, ?, ?, ?, ?)`,
		nr.ReporterID, nr.ReportedItemID, nr.ReportedUserID, nr.Reason, nr.Details,
	)
	if err != nil {
		return nil, fmt.Errorf("creating report: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting report id: %w", err)
	}
	return GetReport(ctx, db, id)
}

// GetReport returns a report by ID.
func GetReport(ctx context.Context, db *sql.DB, id int64) (*model.Report, error) {
	r, err := scanReport(db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting report: %w", err)
	}
	return r, nil
}

// ListReports returns reports, optionally filtered by status, oldest first.
func ListReports(ctx context.Context, db *sql.DB, status string, limit, offset int) ([]model.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id`
	query, args = paginate(query, args, limit, offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	defer rows.Close()

	var reports []model.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

// TransitionReport moves a report to status `to` if it is currently in one
// of `from`. Closing statuses record the moderator and time. It reports
// false when the report is missing or in another status.
func TransitionReport(ctx context.Context, db *sql.DB, id int64, from []string, to, notes string, moderatorID int64, at time.Time) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}

	var resolvedBy, resolvedAt any
	if model.ReportClosed(to) {
		resolvedBy, resolvedAt = moderatorID, at.UTC()
	}

	args := []any{to, notes, resolvedBy, resolvedAt, id}
	for _, s := range from {
		args = append(args, s)
	}
	return execGuarded(ctx, db, "transitioning report",
		`UPDATE reports
		 SET status = ?, admin_notes = ?, resolved_by = ?, resolved_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status IN (`+placeholders(len(from))+`)`,
		args...,
	)
}
