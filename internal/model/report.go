package model

import "time"

// Report statuses.
const (
	ReportPending   = "pending"
	ReportReviewing = "reviewing"
	ReportResolved  = "resolved"
	ReportDismissed = "dismissed"
)

// Report flags an item or a user for moderator attention. Exactly one of
// ReportedItemID and ReportedUserID is set.
type Report struct {
	ID             int64      `json:"id"`
	ReporterID     int64      `json:"reporter_id"`
	ReportedItemID *int64     `json:"reported_item_id,omitempty"`
	ReportedUserID *int64     `json:"reported_user_id,omitempty"`
	Reason         string     `json:"reason"`
	Details        string     `json:"details,omitempty"`
	Status         string     `json:"status"`
	AdminNotes     string     `json:"admin_notes,omitempty"`
	ResolvedBy     *int64     `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ReportSources lists the statuses a report may move to target from.
// Reviewing is optional, so resolved and dismissed are reachable from pending.
func ReportSources(target string) []string {
	switch target {
	case ReportReviewing:
		return []string{ReportPending}
	case ReportResolved, ReportDismissed:
		return []string{ReportPending, ReportReviewing}
	}
	return nil
}

// ReportClosed reports whether status is final.
func ReportClosed(status string) bool {
	return status == ReportResolved || status == ReportDismissed
}
