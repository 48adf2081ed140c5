package domain

import "github.com/google/uuid"

// ConnectionID identifies one live client link. Runtime only, never persisted.
type ConnectionID string

func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}
