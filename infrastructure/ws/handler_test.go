package ws

import (
	"chatto/auth"
	"chatto/domain"
	"chatto/domain/event"
	"chatto/errors"
	"chatto/mocks"
	"chatto/observability"
	"chatto/runtime"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var (
	alice = domain.PublicUser{ID: 1, Email: "alice@example.com"}
	bob   = domain.PublicUser{ID: 2, Email: "bob@example.com"}
)

type fixture struct {
	server     *httptest.Server
	registry   *runtime.Registry
	dispatcher *runtime.Dispatcher
	auth       *mocks.MockAuthenticator
	sender     *mocks.MockMessageSender
	membership *mocks.MockMembershipReader
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	f := &fixture{
		registry:   runtime.NewRegistry(),
		auth:       mocks.NewMockAuthenticator(ctrl),
		sender:     mocks.NewMockMessageSender(ctrl),
		membership: mocks.NewMockMembershipReader(ctrl),
	}
	f.dispatcher = runtime.NewDispatcher(f.registry, observability.NewMonitoringManager(log), log)
	handler := NewHandler(
		log,
		f.auth,
		f.sender,
		f.registry,
		runtime.NewSynchronizer(f.registry, f.membership, log),
		f.dispatcher,
		runtime.NewTypingTracker(time.Minute),
		Config{BufferSize: 16, WriteTimeout: time.Second, PingInterval: time.Minute},
	)
	f.server = httptest.NewServer(handler)
	t.Cleanup(f.server.Close)
	return f
}

// member makes user a participant of conversation 7 reachable with token.
func (f *fixture) member(token string, user domain.PublicUser) {
	f.auth.EXPECT().Authenticate(gomock.Any(), token).
		Return(auth.Identity{User: user, SessionID: token}, nil).AnyTimes()
	f.membership.EXPECT().ConversationsOf(user.ID).
		Return([]domain.ConversationID{7}, nil).AnyTimes()
}

func (f *fixture) dial(t *testing.T, token string) *websocket.Conn {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, f.url()+"?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func (f *fixture) url() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http")
}

func (f *fixture) waitForMembers(t *testing.T, n int) {
	require.Eventually(t, func() bool {
		return len(f.registry.MembersOf(domain.ConversationRoom(7))) == n
	}, 2*time.Second, 10*time.Millisecond)
}

func send(t *testing.T, conn *websocket.Conn, kind event.Kind, data any) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(ctx, conn, event.Inbound{Type: kind, Data: raw}))
}

func receive(t *testing.T, conn *websocket.Conn) event.Inbound {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var frame event.Inbound
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	return frame
}

func errorMessage(t *testing.T, frame event.Inbound) string {
	require.Equal(t, event.Error, frame.Type)
	var payload event.ErrorPayload
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	return payload.Message
}

func ref(id domain.ConversationID) event.ConversationRef {
	return event.ConversationRef{ConversationID: id}
}

func TestHandler_Handshake(t *testing.T) {
	t.Run("should reject a missing token before upgrading", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)

		// When a client dials without any token
		_, resp, err := websocket.Dial(context.Background(), f.url(), nil)

		// Then the handshake fails with 401 and nothing is registered
		req.Error(err)
		req.NotNil(resp)
		req.Equal(http.StatusUnauthorized, resp.StatusCode)
		connections, _ := f.registry.Stats()
		req.Zero(connections)
	})

	t.Run("should reject an invalid token before upgrading", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		f.auth.EXPECT().Authenticate(gomock.Any(), "forged").Return(auth.Identity{}, errors.ErrInvalidToken)

		_, resp, err := websocket.Dial(context.Background(), f.url()+"?token=forged", nil)

		req.Error(err)
		req.NotNil(resp)
		req.Equal(http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("should accept a bearer header", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		f.member("alice-token", alice)

		header := http.Header{}
		header.Set("Authorization", "Bearer alice-token")
		conn, _, err := websocket.Dial(context.Background(), f.url(), &websocket.DialOptions{HTTPHeader: header})
		req.NoError(err)
		defer conn.Close(websocket.StatusNormalClosure, "")

		f.waitForMembers(t, 1)
	})
}

func TestHandler_SubscribesOnConnect(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.member("alice-token", alice)

	// Given alice connected
	conn := f.dial(t, "alice-token")
	f.waitForMembers(t, 1)

	// When the conversation room receives a broadcast
	f.dispatcher.BroadcastToRoom(context.Background(), domain.ConversationRoom(7), event.NewJoinRoomInstruction(7))

	// Then alice's socket gets the frame
	frame := receive(t, conn)
	req.Equal(event.JoinRoomInstruction, frame.Type)
	req.JSONEq(`{"conversation_id":7}`, string(frame.Data))
}

func TestHandler_Typing(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.member("alice-token", alice)
	f.member("bob-token", bob)

	// Given alice and bob both subscribed to conversation 7
	aliceConn := f.dial(t, "alice-token")
	bobConn := f.dial(t, "bob-token")
	f.waitForMembers(t, 2)

	// When alice types twice
	send(t, aliceConn, event.Typing, ref(7))
	send(t, aliceConn, event.Typing, ref(7))

	// Then bob sees a single typing_started carrying alice
	frame := receive(t, bobConn)
	req.Equal(event.TypingStarted, frame.Type)
	var payload event.TypingPayload
	req.NoError(json.Unmarshal(frame.Data, &payload))
	req.Equal(domain.ConversationID(7), payload.ConversationID)
	req.Equal(alice, payload.User)

	// When alice stops typing
	send(t, aliceConn, event.StopTyping, ref(7))

	// Then bob sees typing_stopped next
	req.Equal(event.TypingStopped, receive(t, bobConn).Type)

	t.Run("should not echo typing to the typist", func(t *testing.T) {
		// An unknown event is answered in order, so it is the first frame alice gets
		send(t, aliceConn, "dance", nil)
		req.Equal("validation error: unknown event type", errorMessage(t, receive(t, aliceConn)))
	})
}

func TestHandler_RejectedEvents(t *testing.T) {
	f := newFixture(t)
	f.member("alice-token", alice)
	conn := f.dial(t, "alice-token")
	f.waitForMembers(t, 1)

	t.Run("should refuse typing in a conversation the connection is not in", func(t *testing.T) {
		send(t, conn, event.Typing, ref(99))
		require.Contains(t, errorMessage(t, receive(t, conn)), "not a participant")
	})

	t.Run("should refuse a malformed conversation id", func(t *testing.T) {
		send(t, conn, event.JoinChat, ref(0))
		require.Equal(t, "validation error: invalid conversation id", errorMessage(t, receive(t, conn)))
	})

	t.Run("should refuse joining a conversation the user is not in", func(t *testing.T) {
		f.membership.EXPECT().IsParticipant(domain.ConversationID(42), alice.ID).Return(false, nil)
		send(t, conn, event.JoinChat, ref(42))
		require.Contains(t, errorMessage(t, receive(t, conn)), "not a participant")
	})
}

func TestHandler_SendMessage(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.member("alice-token", alice)
	conn := f.dial(t, "alice-token")
	f.waitForMembers(t, 1)

	sent := make(chan string, 1)
	f.sender.EXPECT().SendMessage(gomock.Any(), alice, domain.ConversationID(7), "hello").
		DoAndReturn(func(_ context.Context, _ domain.PublicUser, _ domain.ConversationID, content string) (domain.MessageView, error) {
			sent <- content
			return domain.MessageView{}, nil
		})
	f.sender.EXPECT().SendMessage(gomock.Any(), alice, domain.ConversationID(7), "").
		Return(domain.MessageView{}, errors.ErrEmptyContent)

	// When alice posts over the socket
	send(t, conn, event.SendMessage, event.SendMessagePayload{ConversationID: 7, Content: "hello"})

	// Then the message goes through the chat service
	select {
	case content := <-sent:
		req.Equal("hello", content)
	case <-time.After(2 * time.Second):
		req.Fail("message was not sent")
	}

	t.Run("should answer service errors with an error frame", func(t *testing.T) {
		send(t, conn, event.SendMessage, event.SendMessagePayload{ConversationID: 7})
		require.Equal(t, errors.ErrEmptyContent.Error(), errorMessage(t, receive(t, conn)))
	})
}

func TestHandler_Disconnect(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.member("alice-token", alice)
	f.member("bob-token", bob)

	aliceConn := f.dial(t, "alice-token")
	bobConn := f.dial(t, "bob-token")
	f.waitForMembers(t, 2)

	// Given alice typing
	send(t, aliceConn, event.Typing, ref(7))
	req.Equal(event.TypingStarted, receive(t, bobConn).Type)

	// When alice closes her socket
	req.NoError(aliceConn.Close(websocket.StatusNormalClosure, "bye"))

	// Then bob is told she stopped and only his connection remains
	req.Equal(event.TypingStopped, receive(t, bobConn).Type)
	f.waitForMembers(t, 1)
	req.Empty(f.registry.ConnectionsOf(alice.ID))
}

func TestHandler_RemovalLeavesRoom(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	var removed atomic.Bool
	f.auth.EXPECT().Authenticate(gomock.Any(), "alice-token").
		Return(auth.Identity{User: alice, SessionID: "alice-token"}, nil)
	f.membership.EXPECT().ConversationsOf(alice.ID).DoAndReturn(func(domain.UserID) ([]domain.ConversationID, error) {
		if removed.Load() {
			return nil, nil
		}
		return []domain.ConversationID{7}, nil
	}).AnyTimes()

	// Given alice subscribed to conversation 7
	conn := f.dial(t, "alice-token")
	f.waitForMembers(t, 1)

	// When she is removed from it and told so
	removed.Store(true)
	f.dispatcher.BroadcastToUser(context.Background(), alice.ID, event.NewRemovedFromConversationEvent(7))

	// Then she gets the notice and her connection leaves the room without asking
	req.Equal(event.RemovedFromConversation, receive(t, conn).Type)
	f.waitForMembers(t, 0)
}
