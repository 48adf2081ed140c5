package runtime

import (
	"chatto/domain"
	"chatto/domain/event"
	"chatto/observability"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newDispatcher(registry *Registry) (*Dispatcher, *observability.MonitoringManager) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	monitor := observability.NewMonitoringManager(log)
	return NewDispatcher(registry, monitor, log), monitor
}

func drain(conn *Connection) []event.Event {
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

func TestDispatcher_BroadcastToRoom(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := NewRegistry()
	dispatcher, monitor := newDispatcher(registry)

	alice, bob, carol := newConn(1), newConn(2), newConn(3)
	for _, conn := range []*Connection{alice, bob, carol} {
		registry.Register(conn)
	}
	room := domain.ConversationRoom(7)
	registry.Subscribe(alice.ID, room)
	registry.Subscribe(bob.ID, room)

	// When an event is broadcast to the conversation room
	delivered := dispatcher.BroadcastToRoom(ctx, room, event.NewJoinRoomInstruction(7))

	// Then only subscribers receive it, exactly once
	req.Equal(2, delivered)
	req.Len(drain(alice), 1)
	req.Len(drain(bob), 1)
	req.Empty(drain(carol))
	req.Equal(uint64(2), monitor.GetLatest().Delivered)

	t.Run("should skip the excluded connection", func(t *testing.T) {
		delivered := dispatcher.BroadcastToRoomExcept(ctx, room, event.NewErrorEvent("x"), alice.ID)
		require.Equal(t, 1, delivered)
		require.Empty(t, drain(alice))
		require.Len(t, drain(bob), 1)
	})
}

func TestDispatcher_BroadcastToUser_ReachesEveryDevice(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	dispatcher, _ := newDispatcher(registry)

	phone, laptop, other := newConn(1), newConn(1), newConn(2)
	for _, conn := range []*Connection{phone, laptop, other} {
		registry.Register(conn)
	}

	req.Equal(2, dispatcher.BroadcastToUser(context.Background(), 1, event.NewRemovedFromConversationEvent(3)))
	req.Len(drain(phone), 1)
	req.Len(drain(laptop), 1)
	req.Empty(drain(other))
}

func TestDispatcher_SlowConnectionDoesNotStallOthers(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	dispatcher, monitor := newDispatcher(registry)

	slow := NewConnection(domain.PublicUser{ID: 1}, 1)
	fast := NewConnection(domain.PublicUser{ID: 2}, 16)
	room := domain.ConversationRoom(1)
	for _, conn := range []*Connection{slow, fast} {
		registry.Register(conn)
		registry.Subscribe(conn.ID, room)
	}

	// Given the slow connection never drains its outbox
	for i := 0; i < 5; i++ {
		dispatcher.BroadcastToRoom(context.Background(), room, event.NewJoinRoomInstruction(1))
	}

	// Then the fast one still got every event and the slow one kept the first
	req.Len(drain(fast), 5)
	req.Len(drain(slow), 1)
	req.Equal(uint64(4), monitor.GetLatest().Dropped)
}

func TestDispatcher_Unicast(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	dispatcher, _ := newDispatcher(registry)
	conn := newConn(1)
	registry.Register(conn)

	req.True(dispatcher.Unicast(context.Background(), conn.ID, event.NewErrorEvent("bad")))
	req.False(dispatcher.Unicast(context.Background(), "missing", event.NewErrorEvent("bad")))

	events := drain(conn)
	req.Len(events, 1)
	req.Equal(event.Error, events[0].Type)
}

func TestDispatcher_NoDeliveryAfterUnregister(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	dispatcher, _ := newDispatcher(registry)
	room := domain.ConversationRoom(1)

	conn := NewConnection(domain.PublicUser{ID: 1}, 10_000)
	registry.Register(conn)
	registry.Subscribe(conn.ID, room)

	// Given broadcasts running while the connection unregisters
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					dispatcher.BroadcastToRoom(context.Background(), room, event.NewJoinRoomInstruction(1))
				}
			}
		}()
	}

	registry.Unregister(conn.ID)
	queued := len(conn.Outbox())

	// Then nothing is enqueued once Unregister returned
	for i := 0; i < 100; i++ {
		dispatcher.BroadcastToRoom(context.Background(), room, event.NewJoinRoomInstruction(1))
	}
	close(stop)
	wg.Wait()
	req.Equal(queued, len(conn.Outbox()))
}
