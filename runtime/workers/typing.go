package workers

import (
	"chatto/contract"
	"chatto/domain"
	"chatto/domain/event"
	"chatto/runtime"
	"context"
	"log/slog"
	"time"
)

// TypingWorker emits typing_stopped for clients that went quiet without sending stop_typing.
type TypingWorker struct {
	log        *slog.Logger
	tracker    *runtime.TypingTracker
	dispatcher contract.IDispatcher
	interval   time.Duration
	now        func() time.Time
}

func NewTypingWorker(log *slog.Logger, tracker *runtime.TypingTracker, dispatcher contract.IDispatcher, interval time.Duration) *TypingWorker {
	return &TypingWorker{log: log, tracker: tracker, dispatcher: dispatcher, interval: interval, now: time.Now}
}

func (w *TypingWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *TypingWorker) sweep(ctx context.Context) {
	for _, state := range w.tracker.Expire(w.now()) {
		e := event.NewTypingEvent(event.TypingStopped, state.ConversationID, state.User)
		w.dispatcher.BroadcastToRoomExcept(ctx, domain.ConversationRoom(state.ConversationID), e, state.ConnectionID)
	}
}
