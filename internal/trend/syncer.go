package trend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/pulse/internal/adapters/durable"
	"github.com/okian/pulse/internal/adapters/faststore"
	"github.com/okian/pulse/internal/domain/category"
	"github.com/okian/pulse/internal/domain/scoring"
	"github.com/okian/pulse/internal/domain/types"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
)

// Syncer defaults.
const (
	defaultSyncInterval = 15 * time.Minute
	defaultSyncLimit    = 100
	defaultSyncBatch    = 10
)

// Syncer periodically snapshots the top of each category's ranked set
// into durable storage so reads survive a fast-store wipe. Sync writes
// bypass the read-path breaker; if the fast store is down the pass
// simply fails and the previous snapshot stands.
type Syncer struct {
	fast    faststore.Store
	durable durable.Store

	interval time.Duration
	limit    int
	batch    int
	now      func() time.Time

	logger logger.Logger
}

// SyncerOption applies a configuration option to the Syncer.
type SyncerOption func(*Syncer)

// WithSyncInterval sets the cadence of the periodic pass.
func WithSyncInterval(d time.Duration) SyncerOption {
	return func(s *Syncer) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSyncLimit sets how many top items are snapshotted per category.
func WithSyncLimit(n int) SyncerOption {
	return func(s *Syncer) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithSyncBatch sets how many items are upserted concurrently.
func WithSyncBatch(n int) SyncerOption {
	return func(s *Syncer) {
		if n > 0 {
			s.batch = n
		}
	}
}

// WithSyncClock overrides the time source. Test hook.
func WithSyncClock(now func() time.Time) SyncerOption {
	return func(s *Syncer) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSyncer creates a syncer between the fast store and durable storage.
func NewSyncer(fast faststore.Store, store durable.Store, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		fast:     fast,
		durable:  store,
		interval: defaultSyncInterval,
		limit:    defaultSyncLimit,
		batch:    defaultSyncBatch,
		now:      time.Now,
		logger:   logger.Get().Named("syncer"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync snapshots one category: reads the ranked top, recomputes each
// item's counts and score fresh, and upserts the records in batches.
// One failing item does not abort the pass; the error reports how many
// items failed. Cached result lists for the category are invalidated
// afterwards so readers see the resynced state.
func (s *Syncer) Sync(ctx context.Context, cat category.Category) error {
	start := time.Now()
	defer func() {
		metrics.RecordSyncDuration(float64(time.Since(start).Milliseconds()))
	}()
	metrics.RecordSyncRun(string(cat))

	scored, err := s.fast.TopScores(ctx, cat, s.limit)
	if err != nil {
		return fmt.Errorf("read ranked set: %w", err)
	}

	var failures int
	for offset := 0; offset < len(scored); offset += s.batch {
		end := offset + s.batch
		if end > len(scored) {
			end = len(scored)
		}
		failures += s.syncBatch(ctx, cat, scored[offset:end])
	}

	if err := s.fast.DeletePrefix(ctx, resultPrefix(cat)); err != nil {
		s.logger.Warn(ctx, "result cache invalidation failed",
			logger.String("category", string(cat)), logger.Error(err))
	}

	if failures > 0 {
		return fmt.Errorf("sync %s: %d of %d items failed", cat, failures, len(scored))
	}
	return nil
}

func (s *Syncer) syncBatch(ctx context.Context, cat category.Category, scored []types.ScoredItem) int {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures int
	)
	for _, entry := range scored {
		wg.Add(1)
		go func(itemID string) {
			defer wg.Done()
			if err := s.syncItem(ctx, cat, itemID); err != nil {
				metrics.RecordSyncItemFailure(string(cat))
				s.logger.Error(ctx, "sync item failed",
					logger.String("itemID", itemID),
					logger.String("category", string(cat)),
					logger.Error(err),
				)
				mu.Lock()
				failures++
				mu.Unlock()
			}
		}(entry.ItemID)
	}
	wg.Wait()
	return failures
}

// syncItem recomputes the item fresh rather than trusting the possibly
// stale ranked score, so the durable record is internally consistent.
func (s *Syncer) syncItem(ctx context.Context, cat category.Category, itemID string) error {
	counts, err := s.fast.WindowCounts(ctx, itemID, cat)
	if err != nil {
		return fmt.Errorf("window counts: %w", err)
	}
	record := durable.TrendRecord{
		ItemID:       itemID,
		Category:     cat,
		Counts:       counts,
		Score:        scoring.Score(counts),
		CalculatedAt: s.now().UTC(),
	}
	if err := s.durable.UpsertRecord(ctx, record); err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

// SyncAll runs one pass over every syncable category. Per-category
// errors are joined, not short-circuited.
func (s *Syncer) SyncAll(ctx context.Context) error {
	var errs []error
	for _, cat := range category.Syncable() {
		if err := s.Sync(ctx, cat); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run executes sync passes on the configured interval until ctx is
// canceled.
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SyncAll(ctx); err != nil {
				metrics.RecordErrorByComponent("syncer", "pass")
				s.logger.Error(ctx, "sync pass incomplete", logger.Error(err))
			}
		}
	}
}
