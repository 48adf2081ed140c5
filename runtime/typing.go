package runtime

import (
	"chatto/domain"
	"sync"
	"time"
)

type typingKey struct {
	conversation domain.ConversationID
	connection   domain.ConnectionID
}

// TypingState is one connection typing in one conversation.
type TypingState struct {
	ConversationID domain.ConversationID
	ConnectionID   domain.ConnectionID
	User           domain.PublicUser
	LastSeen       time.Time
}

// TypingTracker remembers who is typing where so that a stop can be emitted
// when a client goes quiet or disconnects without sending one.
type TypingTracker struct {
	mu      sync.Mutex
	timeout time.Duration
	active  map[typingKey]TypingState
}

func NewTypingTracker(timeout time.Duration) *TypingTracker {
	return &TypingTracker{timeout: timeout, active: make(map[typingKey]TypingState)}
}

func (t *TypingTracker) Timeout() time.Duration { return t.timeout }

// Touch records activity and reports whether the connection just started typing.
func (t *TypingTracker) Touch(conversation domain.ConversationID, conn domain.ConnectionID, user domain.PublicUser, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := typingKey{conversation: conversation, connection: conn}
	_, already := t.active[key]
	t.active[key] = TypingState{ConversationID: conversation, ConnectionID: conn, User: user, LastSeen: now}
	return !already
}

// Stop reports whether the connection was typing.
func (t *TypingTracker) Stop(conversation domain.ConversationID, conn domain.ConnectionID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := typingKey{conversation: conversation, connection: conn}
	_, ok := t.active[key]
	delete(t.active, key)
	return ok
}

// Expire removes and returns the states idle for longer than the timeout.
func (t *TypingTracker) Expire(now time.Time) []TypingState {
	t.mu.Lock()
	defer t.mu.Unlock()
	var expired []TypingState
	for key, state := range t.active {
		if now.Sub(state.LastSeen) >= t.timeout {
			expired = append(expired, state)
			delete(t.active, key)
		}
	}
	return expired
}

// Forget removes and returns every state of a disconnecting connection.
func (t *TypingTracker) Forget(conn domain.ConnectionID) []TypingState {
	t.mu.Lock()
	defer t.mu.Unlock()
	var forgotten []TypingState
	for key, state := range t.active {
		if key.connection == conn {
			forgotten = append(forgotten, state)
			delete(t.active, key)
		}
	}
	return forgotten
}
