package model

import "time"

// Item is a listing owned by a single user.
type Item struct {
	ID            int64      `json:"id"`
	OwnerID       int64      `json:"owner_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Category      string     `json:"category,omitempty"`
	Campus        string     `json:"campus,omitempty"`
	DailyRate     float64    `json:"daily_rate"`
	Availability  string     `json:"availability"`
	IsActive      bool       `json:"is_active"`
	ImageURL      string     `json:"image_url,omitempty"`
	ViewCount     int        `json:"view_count"`
	FavoriteCount int        `json:"favorite_count"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`

	// Joined fields (not always populated).
	OwnerName string `json:"owner_name,omitempty"`
}

// Item availability. Unavailable is the owner's pause switch; booked date
// ranges are tracked by lending requests, not by this flag.
const (
	AvailabilityAvailable   = "available"
	AvailabilityUnavailable = "unavailable"
)

// Listed reports whether the item may appear in public listings.
func (i *Item) Listed() bool {
	return i.IsActive && i.DeletedAt == nil
}

// Bookable reports whether new lending requests may be created for the item.
func (i *Item) Bookable() bool {
	return i.Listed() && i.Availability == AvailabilityAvailable
}

// DateRange is a half-open [Start, End) interval.
type DateRange struct {
	Start time.Time `json:"start_date"`
	End   time.Time `json:"end_date"`
}

// Overlaps reports whether r and o share any instant.
func (r DateRange) Overlaps(o DateRange) bool {
	return r.Start.Before(o.End) && o.Start.Before(r.End)
}
