package trend

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/pulse/internal/adapters/faststore"
	"github.com/okian/pulse/internal/domain/category"
	"github.com/okian/pulse/internal/domain/scoring"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
)

// Aggregator defaults.
const (
	defaultRankedKeep    = 1000
	defaultCountsTTL     = 5 * time.Minute
	defaultBatchParallel = 8
)

// Aggregator turns an item's raw window counts into a score and keeps
// the per-category ranked sets bounded. Writes go straight to the fast
// store; the read-path breaker does not gate recomputation.
type Aggregator struct {
	store faststore.Store

	rankedKeep    int
	countsTTL     time.Duration
	batchParallel int

	wg     sync.WaitGroup
	logger logger.Logger
}

// AggregatorOption applies a configuration option to the Aggregator.
type AggregatorOption func(*Aggregator)

// WithRankedKeep bounds how many entries a ranked set retains after a
// recompute.
func WithRankedKeep(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.rankedKeep = n
		}
	}
}

// WithCountsTTL sets how long refreshed window counts stay cached.
func WithCountsTTL(d time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if d > 0 {
			a.countsTTL = d
		}
	}
}

// WithBatchParallelism bounds concurrent recomputes in a batch.
func WithBatchParallelism(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.batchParallel = n
		}
	}
}

// NewAggregator creates an aggregator over the fast store.
func NewAggregator(store faststore.Store, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		store:         store,
		rankedKeep:    defaultRankedKeep,
		countsTTL:     defaultCountsTTL,
		batchParallel: defaultBatchParallel,
		logger:        logger.Get().Named("aggregator"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Recompute reads the item's current window counts, rescores it, and
// updates the category's ranked set. Items whose score drops to zero
// leave the set. The cached counts entry is refreshed so the read path
// sees the same numbers the score was derived from.
func (a *Aggregator) Recompute(ctx context.Context, itemID string, cat category.Category) error {
	start := time.Now()
	defer func() {
		metrics.RecordRecomputeLatency(float64(time.Since(start).Milliseconds()))
	}()

	counts, err := a.store.WindowCounts(ctx, itemID, cat)
	if err != nil {
		metrics.RecordRecomputeFailure()
		return err
	}

	score := scoring.Score(counts)
	if score > 0 {
		if err := a.store.UpsertScore(ctx, cat, itemID, score); err != nil {
			metrics.RecordRecomputeFailure()
			return err
		}
		if err := a.store.TrimScores(ctx, cat, a.rankedKeep); err != nil {
			metrics.RecordRecomputeFailure()
			return err
		}
	} else {
		if err := a.store.RemoveScore(ctx, cat, itemID); err != nil {
			metrics.RecordRecomputeFailure()
			return err
		}
	}

	if err := a.store.SetJSON(ctx, countsKey(cat, itemID), counts, a.countsTTL); err != nil {
		a.logger.Warn(ctx, "counts cache refresh failed",
			logger.String("itemID", itemID),
			logger.String("category", string(cat)),
			logger.Error(err),
		)
	}

	a.pruneAsync(itemID, cat)

	metrics.RecordRecompute()
	return nil
}

// pruneAsync trims the item's event log outside the recompute's
// latency path. Log entries self-expire anyway; this just reclaims
// space earlier.
func (a *Aggregator) pruneAsync(itemID string, cat category.Category) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := a.store.PruneEventLog(ctx, itemID, cat); err != nil {
			a.logger.Debug(ctx, "event log prune failed",
				logger.String("itemID", itemID),
				logger.String("category", string(cat)),
				logger.Error(err),
			)
		}
	}()
}

// RecomputeBatch recomputes a set of items concurrently. A failing item
// does not stop the batch; the counts of processed and failed items are
// returned.
func (a *Aggregator) RecomputeBatch(ctx context.Context, cat category.Category, itemIDs []string) (processed, failed int) {
	var (
		wg   sync.WaitGroup
		ok   atomic.Int64
		bad  atomic.Int64
		slot = make(chan struct{}, a.batchParallel)
	)
	for _, id := range itemIDs {
		wg.Add(1)
		slot <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-slot }()
			if err := a.Recompute(ctx, id, cat); err != nil {
				bad.Add(1)
				a.logger.Error(ctx, "recompute failed",
					logger.String("itemID", id),
					logger.String("category", string(cat)),
					logger.Error(err),
				)
				return
			}
			ok.Add(1)
		}(id)
	}
	wg.Wait()
	return int(ok.Load()), int(bad.Load())
}

// RecomputeCategory discovers every item with live events in the
// category and recomputes all of them. Used for cold-start refresh and
// the operational recalculate endpoint.
func (a *Aggregator) RecomputeCategory(ctx context.Context, cat category.Category) (processed, failed int, err error) {
	items, err := a.store.LogItems(ctx, cat)
	if err != nil {
		return 0, 0, err
	}
	processed, failed = a.RecomputeBatch(ctx, cat, items)
	return processed, failed, nil
}

// Wait blocks until detached prunes have finished. Called on shutdown.
func (a *Aggregator) Wait() {
	a.wg.Wait()
}
