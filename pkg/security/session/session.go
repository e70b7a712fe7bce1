package session

import (
	"time"

	"github.com/resourcekeep/keep/pkg/user"
)

// RefreshTokenLength is the refresh token size in raw bytes before
// hex encoding
const RefreshTokenLength = 32

// Session binds a short-lived session id to a snapshot of its owner
// WARNING: the session must never be shared with the client as a
// whole, because it carries the refresh token
type Session struct {
	ID           string    `json:"id"`
	RefreshToken string    `json:"refresh_token"`
	User         user.User `json:"user"`

	CreatedAt   time.Time `json:"created_at"`
	RefreshedAt time.Time `json:"refreshed_at"`
	ExpireAt    time.Time `json:"expire_at"`
}

// IsExpired tests whether this session has outlived its expiry at a
// given moment
func (s Session) IsExpired(now time.Time) bool {
	return !s.ExpireAt.After(now)
}
