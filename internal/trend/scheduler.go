package trend

import (
	"context"
	"sync"
	"time"

	"github.com/okian/pulse/internal/domain/category"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
)

// Scheduler defaults.
const defaultQuietPeriod = 5 * time.Second

// Recomputer is the scheduler's downstream: anything that can rescore
// one item in one category.
type Recomputer interface {
	Recompute(ctx context.Context, itemID string, cat category.Category) error
}

// Scheduler coalesces recompute requests per category. Every Schedule
// call adds the item to the category's pending set and restarts the
// category's quiet-period timer; only when a category has seen no new
// events for the full quiet period does the pending set drain. A burst
// of N events for one item therefore costs one recompute, not N.
type Scheduler struct {
	rec   Recomputer
	quiet time.Duration

	mu      sync.Mutex
	pending map[category.Category]map[string]struct{}
	timers  map[category.Category]*time.Timer
	stopped bool

	wg     sync.WaitGroup
	logger logger.Logger
}

// SchedulerOption applies a configuration option to the Scheduler.
type SchedulerOption func(*Scheduler)

// WithQuietPeriod sets the debounce window.
func WithQuietPeriod(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.quiet = d
		}
	}
}

// NewScheduler creates a debounced scheduler draining into rec.
func NewScheduler(rec Recomputer, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		rec:     rec,
		quiet:   defaultQuietPeriod,
		pending: make(map[category.Category]map[string]struct{}),
		timers:  make(map[category.Category]*time.Timer),
		logger:  logger.Get().Named("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule marks the item dirty in the category and restarts the
// category's debounce timer.
func (s *Scheduler) Schedule(itemID string, cat category.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	set, ok := s.pending[cat]
	if !ok {
		set = make(map[string]struct{})
		s.pending[cat] = set
	}
	set[itemID] = struct{}{}
	metrics.UpdateSchedulerPending(string(cat), len(set))

	if timer, ok := s.timers[cat]; ok {
		timer.Reset(s.quiet)
		return
	}
	s.timers[cat] = time.AfterFunc(s.quiet, func() {
		s.flush(cat)
	})
}

// flush drains the category's pending set and recomputes every item in
// it concurrently.
func (s *Scheduler) flush(cat category.Category) {
	s.mu.Lock()
	set := s.pending[cat]
	delete(s.pending, cat)
	delete(s.timers, cat)
	if s.stopped || len(set) == 0 {
		s.mu.Unlock()
		metrics.UpdateSchedulerPending(string(cat), 0)
		return
	}
	// Register in-flight work under the lock so Stop's Wait covers
	// recomputes that are still starting.
	s.wg.Add(len(set))
	s.mu.Unlock()

	metrics.UpdateSchedulerPending(string(cat), 0)
	metrics.RecordSchedulerFlush(string(cat))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for itemID := range set {
		wg.Add(1)
		go func(itemID string) {
			defer wg.Done()
			defer s.wg.Done()
			if err := s.rec.Recompute(ctx, itemID, cat); err != nil {
				metrics.RecordErrorByComponent("scheduler", "recompute")
				s.logger.Error(ctx, "scheduled recompute failed",
					logger.String("itemID", itemID),
					logger.String("category", string(cat)),
					logger.Error(err),
				)
			}
		}(itemID)
	}
	wg.Wait()
}

// Stop cancels pending timers and waits for in-flight recomputes.
// Pending items that never fired are dropped; their counters survive in
// the fast store and the next event or sync pass will rescore them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for cat, timer := range s.timers {
		timer.Stop()
		delete(s.timers, cat)
		delete(s.pending, cat)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// PendingCount reports how many items are awaiting recompute across all
// categories. Diagnostic only.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, set := range s.pending {
		n += len(set)
	}
	return n
}
