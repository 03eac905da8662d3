package model

import (
	"fmt"
	"time"
)

// User is a marketplace account. Rating and ReviewCount are derived from the
// reviews the user received and are only written by the review store.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email,omitempty"`
	FullName     string     `json:"full_name,omitempty"`
	Campus       string     `json:"campus,omitempty"`
	AvatarURL    string     `json:"avatar_url,omitempty"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	IsActive     bool       `json:"is_active"`
	IsBanned     bool       `json:"is_banned"`
	BannedUntil  *time.Time `json:"banned_until,omitempty"`
	BanReason    string     `json:"ban_reason,omitempty"`
	IsVerified   bool       `json:"is_verified"`
	Rating       float64    `json:"rating"`
	ReviewCount  int        `json:"review_count"`
	Version      int64      `json:"-"`
	LastActive   *time.Time `json:"last_active,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Roles.
const (
	RoleManager = "manager"
	RoleAdmin   = "admin"
	RoleUser    = "user"
)

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	return role == RoleManager || role == RoleAdmin || role == RoleUser
}

// RoleAtLeast checks if role meets or exceeds the minimum required role.
// Managers sit above admins.
func RoleAtLeast(role, minimum string) bool {
	levels := map[string]int{
		RoleManager: 3,
		RoleAdmin:   2,
		RoleUser:    1,
	}
	return levels[role] > 0 && levels[role] >= levels[minimum]
}

// IsPrivileged reports whether role carries moderation rights.
func IsPrivileged(role string) bool {
	return role == RoleAdmin || role == RoleManager
}

// BanActive reports whether the ban on u is in force at now. A ban without an
// end date lasts until it is lifted.
func (u *User) BanActive(now time.Time) bool {
	if !u.IsBanned {
		return false
	}
	return u.BannedUntil == nil || u.BannedUntil.After(now)
}

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 8

// ValidatePassword checks password strength requirements.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}
