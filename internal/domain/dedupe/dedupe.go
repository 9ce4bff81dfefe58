// Package dedupe defines the interface for idempotency tracking.
package dedupe

import (
	"context"
	"sync"
)

// Deduper records seen event IDs. At-least-once delivery is acceptable
// downstream, so this is a cheap guard against obvious redelivery, not
// an exactly-once promise.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord removes an ID from the seen list, allowing it to be retried.
	// Used when an event was recorded but failed to enqueue.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

const defaultMaxSize = 50000

// Option applies a configuration option to the deduper.
type Option func(*fifoDeduper)

// WithMaxSize bounds the number of IDs kept in memory.
func WithMaxSize(size int) Option {
	return func(d *fifoDeduper) {
		if size > 0 {
			d.maxSize = size
		}
	}
}

// fifoDeduper implements Deduper with a map for lookup and a FIFO queue
// for eviction: when full, the oldest recorded id is dropped. Unrecorded
// ids leave tombstones in the queue that eviction skips over.
type fifoDeduper struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	queue   []string
	maxSize int
}

// New creates a bounded in-memory deduper.
func New(opts ...Option) Deduper {
	d := &fifoDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]struct{}, d.maxSize)
	return d
}

func (d *fifoDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}

	for len(d.seen) >= d.maxSize && len(d.queue) > 0 {
		oldest := d.queue[0]
		d.queue = d.queue[1:]
		if _, live := d.seen[oldest]; live {
			delete(d.seen, oldest)
			break
		}
	}

	d.seen[id] = struct{}{}
	d.queue = append(d.queue, id)
	return false
}

func (d *fifoDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
}

func (d *fifoDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
