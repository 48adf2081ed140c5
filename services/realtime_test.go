package services

import (
	"chatto/domain"
	"chatto/domain/event"
	"chatto/mocks"
	"chatto/observability"
	"chatto/runtime"
	"context"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type realtime struct {
	registry     *runtime.Registry
	synchronizer *runtime.Synchronizer
	fixture      *chatFixture
}

func newRealtime(t *testing.T) *realtime {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	indexer := mocks.NewMockIMessageIndexer(ctrl)
	indexer.EXPECT().Enqueue(gomock.Any()).Return(true).AnyTimes()

	registry := runtime.NewRegistry()
	dispatcher := runtime.NewDispatcher(registry, observability.NewMonitoringManager(log), log)
	f := newChatFixture(t, dispatcher, indexer)
	return &realtime{
		registry:     registry,
		synchronizer: runtime.NewSynchronizer(registry, f.conversations, log),
		fixture:      f,
	}
}

func (r *realtime) connect(t *testing.T, user domain.PublicUser) *runtime.Connection {
	t.Helper()
	conn := runtime.NewConnection(user, 32)
	require.True(t, r.registry.Register(conn))
	require.NoError(t, r.synchronizer.Resync(context.Background(), conn.ID))
	return conn
}

func received(conn *runtime.Connection) []event.Event {
	var events []event.Event
	for {
		select {
		case e := <-conn.Outbox():
			events = append(events, e)
		default:
			return events
		}
	}
}

func kinds(events []event.Event) []event.Kind {
	out := make([]event.Kind, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func TestRealtime_FirstMessageScenario(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	rt := newRealtime(t)
	svc := rt.fixture.service
	alice, bob := rt.fixture.user(t, "alice"), rt.fixture.user(t, "bob")
	aliceConn, bobConn := rt.connect(t, alice), rt.connect(t, bob)

	// Given alice creating a direct chat with bob
	direct, err := svc.CreateDirect(ctx, alice.ID, bob.ID)
	req.NoError(err)

	// Then bob hears nothing yet
	req.Empty(received(bobConn))

	// When alice joins the room and says hello
	req.NoError(rt.synchronizer.Join(ctx, aliceConn.ID, direct.ID))
	_, err = svc.SendMessage(ctx, alice, direct.ID, "hello")
	req.NoError(err)

	// Then bob's user room gets the handshake in order
	req.Equal([]event.Kind{event.NewConversation, event.JoinRoomInstruction}, kinds(received(bobConn)))

	// And alice's connection gets the message flagged as first
	events := received(aliceConn)
	req.Len(events, 1)
	payload, ok := events[0].Data.(event.MessagePayload)
	req.True(ok)
	req.Equal("hello", payload.Content)
	req.True(payload.IsFirstMessage)
}

func TestRealtime_SlowJoinCatchesUpOnResync(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	rt := newRealtime(t)
	svc := rt.fixture.service
	alice, bob := rt.fixture.user(t, "alice"), rt.fixture.user(t, "bob")
	bobConn := rt.connect(t, bob)

	direct, err := svc.CreateDirect(ctx, alice.ID, bob.ID)
	req.NoError(err)

	// Given bob's connection never processing its join_room_instruction
	_, err = svc.SendMessage(ctx, alice, direct.ID, "hello")
	req.NoError(err)
	req.Equal([]event.Kind{event.NewConversation, event.JoinRoomInstruction}, kinds(received(bobConn)))
	req.False(rt.registry.IsSubscribed(bobConn.ID, domain.ConversationRoom(direct.ID)))

	// When bob resyncs, twice
	req.NoError(rt.synchronizer.Resync(ctx, bobConn.ID))
	req.NoError(rt.synchronizer.Resync(ctx, bobConn.ID))

	// Then the history has the missed message
	history, err := svc.GetMessages(ctx, bob.ID, direct.ID, domain.Page{})
	req.NoError(err)
	req.Len(history, 1)
	req.Equal("hello", history[0].Content)

	// And following messages reach bob exactly once
	_, err = svc.SendMessage(ctx, alice, direct.ID, "still there?")
	req.NoError(err)
	events := received(bobConn)
	req.Equal([]event.Kind{event.NewMessage}, kinds(events))
	payload := events[0].Data.(event.MessagePayload)
	req.False(payload.IsFirstMessage)
}

func TestRealtime_RemovedMemberDropsOnResync(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	rt := newRealtime(t)
	svc := rt.fixture.service
	alice, bob, carol := rt.fixture.user(t, "alice"), rt.fixture.user(t, "bob"), rt.fixture.user(t, "carol")

	group, err := svc.CreateGroup(ctx, alice.ID, "Team", []domain.UserID{bob.ID, carol.ID})
	req.NoError(err)
	carolConn := rt.connect(t, carol)
	room := domain.ConversationRoom(group.ID)
	req.True(rt.registry.IsSubscribed(carolConn.ID, room))

	// When carol is removed
	_, err = svc.RemoveMember(ctx, alice.ID, group.ID, carol.ID)
	req.NoError(err)

	// Then she is told so, and her socket leaves the room on the next resync
	req.Equal([]event.Kind{event.RemovedFromConversation}, kinds(received(carolConn)))
	req.True(rt.registry.IsSubscribed(carolConn.ID, room))
	req.NoError(rt.synchronizer.Resync(ctx, carolConn.ID))
	req.False(rt.registry.IsSubscribed(carolConn.ID, room))
}

func TestRealtime_DeliveryOutlivesSenderContext(t *testing.T) {
	req := require.New(t)
	rt := newRealtime(t)
	svc := rt.fixture.service
	alice, bob, carol := rt.fixture.user(t, "alice"), rt.fixture.user(t, "bob"), rt.fixture.user(t, "carol")
	aliceConn, bobConn, carolConn := rt.connect(t, alice), rt.connect(t, bob), rt.connect(t, carol)

	direct, err := svc.CreateDirect(context.Background(), alice.ID, bob.ID)
	req.NoError(err)
	req.NoError(rt.synchronizer.Join(context.Background(), aliceConn.ID, direct.ID))

	// Given a sender whose request is already gone
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	t.Run("should still run the first message handshake", func(t *testing.T) {
		// When alice's first message is stored
		sent, err := svc.SendMessage(ctx, alice, direct.ID, "hello")
		require.NoError(t, err)

		// Then bob gets the handshake showing that very message
		events := received(bobConn)
		require.Equal(t, []event.Kind{event.NewConversation, event.JoinRoomInstruction}, kinds(events))
		view, ok := events[0].Data.(domain.ConversationView)
		require.True(t, ok)
		require.NotNil(t, view.LastMessage)
		require.Equal(t, sent.ID, view.LastMessage.ID)

		// And the room gets the message
		require.Equal(t, []event.Kind{event.NewMessage}, kinds(received(aliceConn)))
	})

	t.Run("should still notify membership changes", func(t *testing.T) {
		group, err := svc.CreateGroup(context.Background(), alice.ID, "Team", []domain.UserID{bob.ID})
		require.NoError(t, err)
		received(bobConn)

		_, err = svc.AddMember(ctx, alice.ID, group.ID, carol.ID)
		require.NoError(t, err)
		require.Contains(t, kinds(received(carolConn)), event.JoinRoomInstruction)

		_, err = svc.RemoveMember(ctx, alice.ID, group.ID, carol.ID)
		require.NoError(t, err)
		require.Contains(t, kinds(received(carolConn)), event.RemovedFromConversation)
	})
}
