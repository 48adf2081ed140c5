package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session binds an issued token to a user. Several may coexist per user.
type Session struct {
	ID        uuid.UUID `cbor:"1,keyasint" json:"id"`
	UserID    UserID    `cbor:"2,keyasint" json:"user_id"`
	CreatedAt time.Time `cbor:"3,keyasint" json:"created_at"`
	ExpiresAt time.Time `cbor:"4,keyasint" json:"expires_at"`
}

func NewSession(userID UserID, now time.Time, ttl time.Duration) Session {
	return Session{
		ID:        uuid.New(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Wellformed checks that expiry is strictly after creation.
func (s Session) Wellformed() bool {
	return s.ExpiresAt.After(s.CreatedAt)
}

func (s Session) ValidAt(now time.Time) bool {
	return s.Wellformed() && now.Before(s.ExpiresAt)
}
