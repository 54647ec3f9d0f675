package domain

import (
	"time"
)

// SessionLifetime is how long a login session and its cookie stay valid.
const SessionLifetime = 24 * time.Hour

// Session binds an account to the access token issued at login.
// At most one session is stored per account.
type Session struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
