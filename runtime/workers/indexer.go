package workers

import (
	"chatto/contract"
	"chatto/domain"
	"chatto/observability"
	"chatto/repositories"
	"context"
	"log/slog"
)

var _ contract.IMessageIndexer = (*IndexWorker)(nil)

// IndexWorker feeds stored messages to the full text index off the request path.
// A full queue drops the message from search; the message itself stays stored.
type IndexWorker struct {
	log       *slog.Logger
	index     repositories.IMessageIndex
	monitor   *observability.MonitoringManager
	queue     chan domain.Message
	batchSize int
}

func NewIndexWorker(log *slog.Logger, index repositories.IMessageIndex, monitor *observability.MonitoringManager, queueSize, batchSize int) *IndexWorker {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &IndexWorker{
		log:       log,
		index:     index,
		monitor:   monitor,
		queue:     make(chan domain.Message, queueSize),
		batchSize: batchSize,
	}
}

func (w *IndexWorker) Enqueue(message domain.Message) bool {
	select {
	case w.queue <- message:
		return true
	default:
		w.monitor.IncrIndexDrops()
		w.log.Warn("Index queue full, message not indexed", "message_id", message.ID)
		return false
	}
}

func (w *IndexWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil
		case first := <-w.queue:
			w.flush(w.collect(first))
		}
	}
}

// collect takes what is already queued, up to one batch.
func (w *IndexWorker) collect(first domain.Message) []domain.Message {
	batch := []domain.Message{first}
	for len(batch) < w.batchSize {
		select {
		case m := <-w.queue:
			batch = append(batch, m)
		default:
			return batch
		}
	}
	return batch
}

func (w *IndexWorker) drain() {
	for {
		select {
		case m := <-w.queue:
			w.flush(w.collect(m))
		default:
			return
		}
	}
}

func (w *IndexWorker) flush(batch []domain.Message) {
	if err := w.index.Index(batch...); err != nil {
		w.log.Error("Failed to index messages", "count", len(batch), "error", err)
		return
	}
	w.monitor.IncrIndexed(len(batch))
}
