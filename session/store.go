//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_session_store.go -package=mocks
package session

import (
	"chatto/domain"
	"context"
	"fmt"
	"time"
)

// Store keeps issued sessions until they expire or are revoked.
type Store interface {
	Create(ctx context.Context, s domain.Session) error
	Get(ctx context.Context, id string) (domain.Session, error)
	Delete(ctx context.Context, id string) error
}

// ttl validates the session and returns the time it still has to live.
func ttl(s domain.Session, now time.Time) (time.Duration, error) {
	if !s.Wellformed() {
		return 0, fmt.Errorf("session: expires_at must be after created_at")
	}
	remaining := s.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0, fmt.Errorf("session: expires_at must be in the future")
	}
	return remaining, nil
}
