// Package domain contains core concepts of the chat system.
// No runtime, network, or storage logic should be added here.
package domain

import (
	"strings"
	"time"
)

type UserID int64

// User is immutable once created except for its credential hash.
type User struct {
	ID           UserID    `cbor:"1,keyasint"`
	Email        string    `cbor:"2,keyasint"`
	PasswordHash string    `cbor:"3,keyasint"`
	CreatedAt    time.Time `cbor:"4,keyasint"`
}

// PublicUser is the display identity shared with other users.
type PublicUser struct {
	ID    UserID `json:"id"`
	Email string `json:"email"`
}

func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
