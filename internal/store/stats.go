package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Stats is the moderation dashboard summary.
type Stats struct {
	Users          int `json:"users"`
	BannedUsers    int `json:"banned_users"`
	VerifiedUsers  int `json:"verified_users"`
	Items          int `json:"items"`
	ActiveItems    int `json:"active_items"`
	Requests       int `json:"requests"`
	OpenRequests   int `json:"open_requests"`
	Completed      int `json:"completed_requests"`
	Reviews        int `json:"reviews"`
	PendingReports int `json:"pending_reports"`
}

// GetStats counts the platform's main entities.
func GetStats(ctx context.Context, db *sql.DB) (*Stats, error) {
	s := &Stats{}
	err := db.QueryRowContext(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM users WHERE deleted_at IS NULL),
		   (SELECT COUNT(*) FROM users WHERE deleted_at IS NULL AND is_banned = 1),
		   (SELECT COUNT(*) FROM users WHERE deleted_at IS NULL AND is_verified = 1),
		   (SELECT COUNT(*) FROM items WHERE deleted_at IS NULL),
		   (SELECT COUNT(*) FROM items WHERE deleted_at IS NULL AND is_active = 1),
		   (SELECT COUNT(*) FROM lending_requests),
		   (SELECT COUNT(*) FROM lending_requests WHERE status IN ('pending', 'accepted', 'active')),
		   (SELECT COUNT(*) FROM lending_requests WHERE status = 'completed'),
		   (SELECT COUNT(*) FROM reviews),
		   (SELECT COUNT(*) FROM reports WHERE status IN ('pending', 'reviewing'))`,
	).Scan(&s.Users, &s.BannedUsers, &s.VerifiedUsers, &s.Items, &s.ActiveItems,
		&s.Requests, &s.OpenRequests, &s.Completed, &s.Reviews, &s.PendingReports)
	if err != nil {
		return nil, fmt.Errorf("counting stats: %w", err)
	}
	return s, nil
}
