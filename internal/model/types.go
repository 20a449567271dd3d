package model

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account in the user directory.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Session represents one authenticated device/client login. Raw tokens are
// never stored; only their fingerprints are.
type Session struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	AccessFingerprint  string
	RefreshFingerprint string
	UserAgent          string
	IP                 string
	CreatedAt          time.Time
	ExpiresAt          time.Time
	LastUsedAt         time.Time
}

// Expired reports whether the session's validity window has passed.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionMetadata carries optional device/client details recorded at login.
type SessionMetadata struct {
	UserAgent string
	IP        string
}
