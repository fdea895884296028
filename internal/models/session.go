package models

import "time"

// Session is one device's refresh-token record. A user owns zero or more
// sessions; rotation replaces a session's record atomically so at most one
// valid refresh token exists per record at any time.
type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash []byte
	IPAddress        string
	UserAgent        string
	CreatedAt        time.Time
	LastSeenAt       time.Time
	ExpiresAt        time.Time
}
