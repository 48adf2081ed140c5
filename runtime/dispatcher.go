package runtime

import (
	"chatto/contract"
	"chatto/domain"
	"chatto/domain/event"
	"chatto/observability"
	"context"
	"log/slog"
)

var _ contract.IDispatcher = (*Dispatcher)(nil)

// Dispatcher fans events out to a snapshot of room members. Delivery to each
// connection is a non-blocking enqueue, so a slow client never stalls others.
type Dispatcher struct {
	registry *Registry
	monitor  *observability.MonitoringManager
	log      *slog.Logger
}

func NewDispatcher(registry *Registry, monitor *observability.MonitoringManager, log *slog.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, monitor: monitor, log: log}
}

func (d *Dispatcher) BroadcastToRoom(ctx context.Context, room domain.Room, e event.Event) int {
	return d.deliver(ctx, room, e, "")
}

// BroadcastToRoomExcept skips one connection, typically the sender's.
func (d *Dispatcher) BroadcastToRoomExcept(ctx context.Context, room domain.Room, e event.Event, except domain.ConnectionID) int {
	return d.deliver(ctx, room, e, except)
}

// BroadcastToUser reaches every live connection of the user.
func (d *Dispatcher) BroadcastToUser(ctx context.Context, user domain.UserID, e event.Event) int {
	return d.deliver(ctx, domain.UserRoom(user), e, "")
}

func (d *Dispatcher) Unicast(ctx context.Context, id domain.ConnectionID, e event.Event) bool {
	conn, ok := d.registry.Get(id)
	if !ok {
		return false
	}
	if err := conn.Consume(ctx, e); err != nil {
		d.log.Debug("Unicast dropped", "connection_id", id, "type", e.Type, "error", err)
		d.monitor.RecordBroadcast(0, 1)
		return false
	}
	d.monitor.RecordBroadcast(1, 0)
	return true
}

func (d *Dispatcher) deliver(ctx context.Context, room domain.Room, e event.Event, except domain.ConnectionID) int {
	delivered, dropped := 0, 0
	for _, conn := range d.registry.MembersOf(room) {
		if conn.ID == except {
			continue
		}
		if err := conn.Consume(ctx, e); err != nil {
			dropped++
			d.log.Debug("Delivery dropped",
				"room", room.String(),
				"connection_id", conn.ID,
				"type", e.Type,
				"error", err,
			)
			continue
		}
		delivered++
	}
	d.monitor.RecordBroadcast(delivered, dropped)
	return delivered
}
