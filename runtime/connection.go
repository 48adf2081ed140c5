package runtime

import (
	"chatto/contract"
	"chatto/domain"
	"chatto/domain/event"
	"chatto/errors"
	"context"
	"sync"
)

var _ contract.EventSink = (*Connection)(nil)

// Connection is the sink of one live client link. Events are queued in a
// bounded outbox drained by the transport's write loop.
type Connection struct {
	ID   domain.ConnectionID
	User domain.PublicUser

	mu     sync.Mutex
	closed bool
	outbox chan event.Event
	done   chan struct{}
}

func NewConnection(user domain.PublicUser, bufferSize int) *Connection {
	return &Connection{
		ID:     domain.NewConnectionID(),
		User:   user,
		outbox: make(chan event.Event, bufferSize),
		done:   make(chan struct{}),
	}
}

// Consume enqueues without blocking. A full outbox drops the event for this
// connection only. Nothing is enqueued once Close has returned.
func (c *Connection) Consume(ctx context.Context, e event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.ErrConnectionClosed
	}
	select {
	case c.outbox <- e:
		return nil
	default:
		return errors.ErrOutboxFull
	}
}

func (c *Connection) Outbox() <-chan event.Event { return c.outbox }

// Done is closed once the connection is unregistered.
func (c *Connection) Done() <-chan struct{} { return c.done }

func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
