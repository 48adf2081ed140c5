package services

import (
	"chatto/contract"
	"chatto/domain"
	"chatto/domain/event"
	"chatto/moderation"
	"chatto/repositories"
	"fmt"
	"log/slog"
	"testing"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

var testChatConfig = ChatConfig{
	DefaultPageSize:  50,
	MaxPageSize:      100,
	MaxContentLength: 200,
	SearchLimit:      50,
	UserSearchLimit:  10,
}

type chatFixture struct {
	users         *repositories.UserRepository
	conversations *repositories.ConversationRepository
	messages      *repositories.MessageRepository
	index         *repositories.MessageIndex
	service       *ChatService
}

func newChatFixture(t *testing.T, dispatcher contract.IDispatcher, indexer contract.IMessageIndexer) *chatFixture {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	ids := repositories.NewIDGenerator(db)
	writer, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = writer.Close()
		_ = ids.Release()
		_ = db.Close()
	})

	f := &chatFixture{
		users:         repositories.NewUserRepository(db, ids),
		conversations: repositories.NewConversationRepository(db, ids),
		messages:      repositories.NewMessageRepository(db, ids, log),
		index:         repositories.NewMessageIndex(writer, log),
	}
	f.service = NewChatService(log, f.users, f.conversations, f.messages, f.index, indexer, dispatcher, moderation.Passthrough{}, testChatConfig)
	return f
}

func (f *chatFixture) user(t *testing.T, name string) domain.PublicUser {
	t.Helper()
	user, err := f.users.CreateUser(name+"@example.com", "hash")
	require.NoError(t, err)
	return user.Public()
}

func (f *chatFixture) participantIDs(t *testing.T, id domain.ConversationID) []domain.UserID {
	t.Helper()
	participants, err := f.conversations.Participants(id)
	require.NoError(t, err)
	ids := make([]domain.UserID, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// kind matches an event.Event by its type.
type kind event.Kind

func (k kind) Matches(x any) bool {
	e, ok := x.(event.Event)
	return ok && e.Type == event.Kind(k)
}

func (k kind) String() string { return fmt.Sprintf("event of kind %q", string(k)) }

// firstMessage matches a new_message event by its first-message flag.
type firstMessage bool

func (f firstMessage) Matches(x any) bool {
	e, ok := x.(event.Event)
	if !ok || e.Type != event.NewMessage {
		return false
	}
	payload, ok := e.Data.(event.MessagePayload)
	return ok && payload.IsFirstMessage == bool(f)
}

func (f firstMessage) String() string { return fmt.Sprintf("new_message with is_first_message=%t", bool(f)) }
