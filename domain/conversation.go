package domain

import (
	"strings"
	"time"
)

type ConversationID int64

type ConversationKind uint8

const (
	DirectConversation ConversationKind = iota + 1
	GroupConversation
)

// Conversation is either direct (two participants, no name) or group (named).
type Conversation struct {
	ID        ConversationID   `cbor:"1,keyasint"`
	Kind      ConversationKind `cbor:"2,keyasint"`
	Name      string           `cbor:"3,keyasint,omitempty"`
	CreatedBy UserID           `cbor:"4,keyasint"`
	CreatedAt time.Time        `cbor:"5,keyasint"`
}

func (c Conversation) IsGroup() bool { return c.Kind == GroupConversation }

func NormalizeGroupName(name string) string { return strings.TrimSpace(name) }

// ConversationView is the conversation as seen by one participant.
type ConversationView struct {
	ID           ConversationID `json:"id"`
	Name         string         `json:"name,omitempty"`
	IsGroup      bool           `json:"is_group"`
	DisplayName  string         `json:"display_name"`
	CreatedAt    time.Time      `json:"created_at"`
	Participants []PublicUser   `json:"participants"`
	LastMessage  *MessageView   `json:"last_message,omitempty"`
}

// DisplayName resolves the name shown to viewer: the stored name for a group,
// the other participant's email for a direct conversation.
func DisplayName(c Conversation, participants []PublicUser, viewer UserID) string {
	if c.IsGroup() {
		return c.Name
	}
	for _, p := range participants {
		if p.ID != viewer {
			return p.Email
		}
	}
	return ""
}

// LastActivity is the ordering key of listForUser. Conversations without
// messages report false and sort last.
func (v ConversationView) LastActivity() (time.Time, bool) {
	if v.LastMessage == nil {
		return time.Time{}, false
	}
	return v.LastMessage.CreatedAt, true
}

// DirectPair returns the unordered pair in canonical order.
func DirectPair(a, b UserID) (UserID, UserID) {
	if a < b {
		return a, b
	}
	return b, a
}
