package trend

import (
	"context"
	"sync"
	"time"

	"github.com/okian/pulse/internal/adapters/durable"
	"github.com/okian/pulse/internal/domain/category"
	"github.com/okian/pulse/internal/domain/types"
	"github.com/okian/pulse/internal/trend/metacache"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
)

// Reader defaults.
const (
	defaultResultTTL      = 5 * time.Minute
	defaultFallbackWindow = 24 * time.Hour

	resultTier = "result"
	countsTier = "counts"
)

// Reader serves trending lists. Every branch of the read path has a
// fallback; a request never surfaces a storage error to the caller,
// only a possibly stale or empty list.
type Reader struct {
	guard   *Guard
	durable durable.Store
	meta    *metacache.Cache
	agg     *Aggregator

	resultTTL      time.Duration
	fallbackWindow time.Duration

	mu         sync.Mutex
	refreshing map[category.Category]bool
	refreshWG  sync.WaitGroup

	logger logger.Logger
}

// ReaderOption applies a configuration option to the Reader.
type ReaderOption func(*Reader)

// WithResultTTL sets how long assembled result lists stay cached.
func WithResultTTL(d time.Duration) ReaderOption {
	return func(r *Reader) {
		if d > 0 {
			r.resultTTL = d
		}
	}
}

// WithFallbackWindow bounds how old a durable snapshot may be and still
// be served.
func WithFallbackWindow(d time.Duration) ReaderOption {
	return func(r *Reader) {
		if d > 0 {
			r.fallbackWindow = d
		}
	}
}

// NewReader creates a reader over the guarded fast store and the
// durable fallback.
func NewReader(guard *Guard, store durable.Store, meta *metacache.Cache, agg *Aggregator, opts ...ReaderOption) *Reader {
	r := &Reader{
		guard:          guard,
		durable:        store,
		meta:           meta,
		agg:            agg,
		resultTTL:      defaultResultTTL,
		fallbackWindow: defaultFallbackWindow,
		refreshing:     make(map[category.Category]bool),
		logger:         logger.Get().Named("reader"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TopTrending returns up to limit trending items for the category,
// best first. Result cache, then ranked set, then durable snapshot;
// the list may be empty but the call never fails.
func (r *Reader) TopTrending(ctx context.Context, cat category.Category, limit int) []types.TrendingItem {
	if limit < 1 {
		return []types.TrendingItem{}
	}

	if !r.guard.Available() {
		metrics.RecordBreakerRejected("faststore")
		return r.fromDurable(ctx, cat, limit, false)
	}

	key := resultKey(cat, limit)
	var cached []types.TrendingItem
	found, err := r.guard.GetJSON(ctx, key, &cached)
	if err == nil && found {
		metrics.RecordCacheHit(resultTier)
		return cached
	}
	if err != nil {
		return r.fromDurable(ctx, cat, limit, false)
	}
	metrics.RecordCacheMiss(resultTier)

	scored, err := r.guard.TopScores(ctx, cat, limit)
	if err != nil {
		return r.fromDurable(ctx, cat, limit, false)
	}
	if len(scored) == 0 {
		// Cold start: scores live only in process memory, so a restart
		// empties the ranked sets while counters and logs survive.
		return r.fromDurable(ctx, cat, limit, true)
	}

	items := r.Assemble(ctx, cat, scored)
	if err := r.guard.SetJSON(ctx, key, items, r.resultTTL); err != nil {
		r.logger.Debug(ctx, "result cache write failed",
			logger.String("key", key), logger.Error(err))
	}
	return items
}

// Assemble turns ranked entries into response items: resolve each
// item's display tag and window counts, dropping items whose tag is
// gone. Counts failures degrade to zero rather than dropping the item.
func (r *Reader) Assemble(ctx context.Context, cat category.Category, scored []types.ScoredItem) []types.TrendingItem {
	items := make([]types.TrendingItem, 0, len(scored))
	for _, entry := range scored {
		tag, ok := r.meta.Tag(ctx, entry.ItemID, cat)
		if !ok {
			continue
		}
		counts := r.counts(ctx, cat, entry.ItemID)
		items = append(items, types.TrendingItem{
			Tag:        tag,
			TotalPosts: counts.Week,
			Score:      entry.Score,
		})
	}
	return items
}

// counts resolves an item's window counts through the counts cache with
// a fast-store fallback.
func (r *Reader) counts(ctx context.Context, cat category.Category, itemID string) types.WindowCounts {
	key := countsKey(cat, itemID)

	var cached types.WindowCounts
	found, err := r.guard.GetJSON(ctx, key, &cached)
	if err == nil && found {
		metrics.RecordCacheHit(countsTier)
		return cached
	}
	if err != nil {
		return types.WindowCounts{}
	}
	metrics.RecordCacheMiss(countsTier)

	counts, err := r.guard.WindowCounts(ctx, itemID, cat)
	if err != nil {
		return types.WindowCounts{}
	}
	if serr := r.guard.SetJSON(ctx, key, counts, defaultCountsTTL); serr != nil {
		r.logger.Debug(ctx, "counts cache write failed",
			logger.String("key", key), logger.Error(serr))
	}
	return counts
}

// fromDurable serves the most recent durable snapshot. When the ranked
// set was merely empty (rather than the breaker open) a background
// category recompute is kicked off so the next read is fresh.
func (r *Reader) fromDurable(ctx context.Context, cat category.Category, limit int, refresh bool) []types.TrendingItem {
	if refresh {
		r.refreshAsync(cat)
	}

	metrics.RecordFallbackRead(string(cat))
	records, err := r.durable.TopRecent(ctx, cat, limit, r.fallbackWindow)
	if err != nil {
		metrics.RecordErrorByComponent("reader", "durable_fallback")
		r.logger.Error(ctx, "durable fallback failed",
			logger.String("category", string(cat)),
			logger.Error(err),
		)
		return []types.TrendingItem{}
	}

	items := make([]types.TrendingItem, 0, len(records))
	for _, rec := range records {
		tag, ok := r.meta.Tag(ctx, rec.ItemID, cat)
		if !ok {
			continue
		}
		items = append(items, types.TrendingItem{
			Tag:        tag,
			TotalPosts: rec.Counts.Week,
			Score:      rec.Score,
		})
	}
	return items
}

// refreshAsync rebuilds the category's ranked set from the event log in
// the background, at most once at a time per category.
func (r *Reader) refreshAsync(cat category.Category) {
	r.mu.Lock()
	if r.refreshing[cat] {
		r.mu.Unlock()
		return
	}
	r.refreshing[cat] = true
	r.mu.Unlock()

	r.refreshWG.Add(1)
	go func() {
		defer r.refreshWG.Done()
		defer func() {
			r.mu.Lock()
			r.refreshing[cat] = false
			r.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		processed, failed, err := r.agg.RecomputeCategory(ctx, cat)
		if err != nil {
			r.logger.Error(ctx, "background category refresh failed",
				logger.String("category", string(cat)),
				logger.Error(err),
			)
			return
		}
		r.logger.Info(ctx, "ranked set rebuilt from event log",
			logger.String("category", string(cat)),
			logger.Int("processed", processed),
			logger.Int("failed", failed),
		)
	}()
}

// Wait blocks until background refreshes finish. Called on shutdown
// and by tests.
func (r *Reader) Wait() {
	r.refreshWG.Wait()
}
