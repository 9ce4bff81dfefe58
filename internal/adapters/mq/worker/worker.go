// Package worker fans ingestion events out to the counter store and the
// debounced recompute scheduler.
package worker

import (
	"context"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/pulse/internal/domain/category"
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()
	workerShutdownTimeout   = 5 * time.Second
)

// Event abstracts what workers read off the queue.
type Event = model.ItemEvent

// Sink receives the per-category fan-out of one ingestion event.
type Sink interface {
	// RecordEvent updates the counters covering the event timestamp.
	RecordEvent(ctx context.Context, itemID string, cat category.Category, ts time.Time) error

	// Schedule marks the item for a debounced score recomputation.
	Schedule(itemID string, cat category.Category)

	// RememberTag backfills the metadata caches with the event's display
	// tag. Best effort.
	RememberTag(ctx context.Context, itemID string, cat category.Category, tag string)
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker processes ingestion events off the queue.
type Worker struct {
	queue Queue
	sink  Sink
	name  string

	done chan struct{}

	logger logger.Logger
}

// NewWorker creates a worker with configuration options.
func NewWorker(queue Queue, sink Sink, opts ...Option) *Worker {
	w := &Worker{
		queue:  queue,
		sink:   sink,
		name:   "worker",
		done:   make(chan struct{}),
		logger: logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run starts the worker loop until ctx is canceled or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			w.processEvent(ctx, event)
		}
	}
}

// processEvent fans one event out to every listed category. The
// personalized category never has counters of its own and is skipped.
func (w *Worker) processEvent(ctx context.Context, event Event) {
	for _, cat := range event.Categories {
		if cat == category.Personalized {
			continue
		}

		if event.Tag != "" {
			w.sink.RememberTag(ctx, event.ItemID, cat, event.Tag)
		}

		if err := w.sink.RecordEvent(ctx, event.ItemID, cat, event.OccurredAt); err != nil {
			metrics.RecordErrorByComponent("worker", "record_event")
			w.logger.Error(ctx, "recording event failed",
				logger.String("eventID", event.EventID),
				logger.String("itemID", event.ItemID),
				logger.String("category", string(cat)),
				logger.Error(err),
			)
			continue
		}

		w.sink.Schedule(event.ItemID, cat)
	}
	metrics.RecordEventIngested()
}

// Pool manages multiple workers.
type Pool struct {
	workers []*Worker
	logger  logger.Logger
}

// NewPool creates a worker pool over the queue and sink.
func NewPool(workerCount int, queue Queue, sink Sink) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool{
		workers: make([]*Worker, workerCount),
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		p.workers[i] = NewWorker(queue, sink, WithName("worker-"+strconv.Itoa(i)))
	}
	return p
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Stop waits for all workers to drain, bounded per worker.
func (p *Pool) Stop() {
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-time.After(workerShutdownTimeout):
			p.logger.Warn(context.Background(), "worker shutdown timed out",
				logger.String("worker", w.name))
		}
	}
}
