//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chatto/domain"
	"chatto/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives events for one live connection. Consume never blocks.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// IDispatcher delivers events to the live connections of a room snapshot.
// Per-connection failures are swallowed and only reduce the returned count.
type IDispatcher interface {
	BroadcastToRoom(ctx context.Context, room domain.Room, e event.Event) int
	BroadcastToRoomExcept(ctx context.Context, room domain.Room, e event.Event, except domain.ConnectionID) int
	BroadcastToUser(ctx context.Context, user domain.UserID, e event.Event) int
	Unicast(ctx context.Context, connection domain.ConnectionID, e event.Event) bool
}

// IMessageIndexer accepts stored messages for asynchronous indexing.
type IMessageIndexer interface {
	Enqueue(message domain.Message) bool
}
