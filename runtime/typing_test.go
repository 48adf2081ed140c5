package runtime

import (
	"chatto/domain"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTypingTracker(t *testing.T) {
	req := require.New(t)
	tracker := NewTypingTracker(2 * time.Second)
	now := time.Now()
	alice := domain.PublicUser{ID: 1, Email: "alice@example.com"}

	// Given alice typing in two conversations
	req.True(tracker.Touch(1, "c1", alice, now))
	req.False(tracker.Touch(1, "c1", alice, now.Add(time.Second)))
	req.True(tracker.Touch(2, "c1", alice, now))

	t.Run("should expire idle typing only", func(t *testing.T) {
		expired := tracker.Expire(now.Add(2500 * time.Millisecond))
		require.Len(t, expired, 1)
		require.Equal(t, domain.ConversationID(2), expired[0].ConversationID)
	})

	t.Run("should stop explicitly once", func(t *testing.T) {
		require.True(t, tracker.Stop(1, "c1"))
		require.False(t, tracker.Stop(1, "c1"))
	})

	t.Run("should forget a disconnecting connection", func(t *testing.T) {
		tracker.Touch(3, "c2", alice, now)
		tracker.Touch(4, "c2", alice, now)
		tracker.Touch(4, "c3", alice, now)
		require.Len(t, tracker.Forget("c2"), 2)
		require.Empty(t, tracker.Forget("c2"))
		require.Len(t, tracker.Expire(now.Add(time.Hour)), 1)
	})
}
