package domain

import "time"

// Participant is the membership edge between a conversation and a user,
// unique per (conversation, user).
type Participant struct {
	ConversationID ConversationID `cbor:"1,keyasint"`
	UserID         UserID         `cbor:"2,keyasint"`
	JoinedAt       time.Time      `cbor:"3,keyasint"`
}
