// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/pulse/internal/adapters/durable"
	"github.com/okian/pulse/internal/adapters/faststore"
	eventqueue "github.com/okian/pulse/internal/adapters/mq/queue"
	workerpool "github.com/okian/pulse/internal/adapters/mq/worker"
	"github.com/okian/pulse/internal/domain/category"
	"github.com/okian/pulse/internal/domain/dedupe"
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/types"
	"github.com/okian/pulse/internal/trend"
	"github.com/okian/pulse/internal/trend/metacache"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
)

// noInterests is the default interest resolver: every user degrades to
// the general list until a real profile service is wired in.
type noInterests struct{}

func (noInterests) Interests(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

// Service implements the API dependencies for the trending system.
type Service struct {
	mu sync.RWMutex

	// Core components
	fast      faststore.Store
	durable   durable.Store
	deduper   dedupe.Deduper
	queue     eventqueue.Queue
	pool      *workerpool.Pool
	guard     *trend.Guard
	agg       *trend.Aggregator
	scheduler *trend.Scheduler
	reader    *trend.Reader
	blender   *trend.Blender
	syncer    *trend.Syncer
	meta      *metacache.Cache
	resolver  trend.InterestResolver

	// Configuration
	workerCount      int
	queueSize        int
	dedupeSize       int
	badgerDir        string
	postgresDSN      string
	rankedKeep       int
	quietPeriod      time.Duration
	syncInterval     time.Duration
	syncLimit        int
	breakerThreshold uint32
	breakerCooldown  time.Duration
	resultTTL        time.Duration
	countsTTL        time.Duration
	personalTTL      time.Duration
	metaLocalTTL     time.Duration
	metaLocalCap     int

	// State
	started    bool
	cancelSync context.CancelFunc

	// Logging
	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:      runtime.NumCPU() * 4,
		queueSize:        100000,
		dedupeSize:       50000,
		rankedKeep:       1000,
		quietPeriod:      5 * time.Second,
		syncInterval:     15 * time.Minute,
		syncLimit:        100,
		breakerThreshold: 3,
		breakerCooldown:  30 * time.Second,
		resultTTL:        5 * time.Minute,
		countsTTL:        5 * time.Minute,
		personalTTL:      5 * time.Minute,
		metaLocalTTL:     time.Minute,
		metaLocalCap:     1000,
		resolver:         noInterests{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting trending service...")

	var fastOpts []faststore.Option
	if s.badgerDir != "" {
		fastOpts = append(fastOpts, faststore.WithDir(s.badgerDir))
	}
	fast, err := faststore.New(ctx, fastOpts...)
	if err != nil {
		return err
	}
	s.fast = fast

	if s.durable == nil {
		if s.postgresDSN != "" {
			store, err := durable.NewPostgres(ctx, s.postgresDSN)
			if err != nil {
				_ = s.fast.Close()
				return err
			}
			s.durable = store
			s.logger.Info(ctx, "using postgres durable store")
		} else {
			s.durable = durable.NewInMemory()
			s.logger.Warn(ctx, "no postgres dsn; durable snapshots are process-local")
		}
	}

	s.deduper = dedupe.New(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))

	s.guard = trend.NewGuard(s.fast,
		trend.WithFailureThreshold(s.breakerThreshold),
		trend.WithCooldown(s.breakerCooldown),
	)
	s.meta = metacache.New(s.guard, s.durable,
		metacache.WithLocalTTL(s.metaLocalTTL),
		metacache.WithLocalCap(s.metaLocalCap),
	)
	s.agg = trend.NewAggregator(s.fast,
		trend.WithRankedKeep(s.rankedKeep),
		trend.WithCountsTTL(s.countsTTL),
	)
	s.scheduler = trend.NewScheduler(s.agg,
		trend.WithQuietPeriod(s.quietPeriod),
	)
	s.reader = trend.NewReader(s.guard, s.durable, s.meta, s.agg,
		trend.WithResultTTL(s.resultTTL),
	)
	s.blender = trend.NewBlender(s.guard, s.reader, s.resolver,
		trend.WithPersonalTTL(s.personalTTL),
	)
	s.syncer = trend.NewSyncer(s.fast, s.durable,
		trend.WithSyncInterval(s.syncInterval),
		trend.WithSyncLimit(s.syncLimit),
	)

	s.pool = workerpool.NewPool(s.workerCount, s.queue, s)
	s.pool.Start(ctx)

	syncCtx, cancel := context.WithCancel(context.Background())
	s.cancelSync = cancel
	go s.syncer.Run(syncCtx)

	s.started = true
	s.logger.Info(ctx, "trending service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping trending service...")

	if s.cancelSync != nil {
		s.cancelSync()
	}
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.pool != nil {
		s.pool.Stop()
	}
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.reader != nil {
		s.reader.Wait()
	}
	if s.agg != nil {
		s.agg.Wait()
	}
	if s.fast != nil {
		_ = s.fast.Close()
	}
	if s.durable != nil {
		_ = s.durable.Close()
	}

	s.started = false
	s.logger.Info(ctx, "trending service stopped")
}

// SeenAndRecord atomically checks if an event id was seen and records it if not.
// Returns true if the event was already seen, false if it was newly recorded.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	seen := s.deduper.SeenAndRecord(ctx, id)
	if seen {
		metrics.RecordEventDuplicate()
	}
	return seen
}

// Unrecord removes an event ID from the seen list, allowing it to be retried.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.deduper.Unrecord(ctx, id)
}

// Size returns the current number of entries in the deduper.
func (s *Service) Size() int64 {
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}

// Enqueue submits an event for asynchronous processing. Events arriving
// without an id (programmatic callers) get one assigned.
func (s *Service) Enqueue(ctx context.Context, e model.ItemEvent) bool {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	ok := s.queue.Enqueue(ctx, e)
	if !ok {
		metrics.RecordEventDropped()
		s.logger.Warn(ctx, "event rejected on backpressure",
			logger.String("eventID", e.EventID),
			logger.String("itemID", e.ItemID),
		)
	}
	return ok
}

// RecordEvent implements the worker sink: counter updates go straight
// to the fast store.
func (s *Service) RecordEvent(ctx context.Context, itemID string, cat category.Category, ts time.Time) error {
	return s.fast.RecordEvent(ctx, itemID, cat, ts)
}

// Schedule implements the worker sink: mark the item for a debounced
// recompute.
func (s *Service) Schedule(itemID string, cat category.Category) {
	s.scheduler.Schedule(itemID, cat)
}

// RememberTag implements the worker sink: backfill the metadata caches
// and the durable tag table.
func (s *Service) RememberTag(ctx context.Context, itemID string, cat category.Category, tag string) {
	s.meta.Remember(ctx, itemID, cat, tag)
	if err := s.durable.UpsertTag(ctx, itemID, cat, tag); err != nil {
		metrics.RecordErrorByComponent("service", "upsert_tag")
		s.logger.Debug(ctx, "durable tag upsert failed",
			logger.String("itemID", itemID),
			logger.String("category", string(cat)),
			logger.Error(err),
		)
	}
}

// TopTrending returns the current trending list for a category.
func (s *Service) TopTrending(ctx context.Context, cat category.Category, limit int) []types.TrendingItem {
	return s.reader.TopTrending(ctx, cat, limit)
}

// PersonalizedTop returns a blended trending list for the user.
func (s *Service) PersonalizedTop(ctx context.Context, userID string, limit int) []types.TrendingItem {
	return s.blender.PersonalizedTop(ctx, userID, limit)
}

// Recalculate rescores the given items, or the whole category when no
// ids are supplied.
func (s *Service) Recalculate(ctx context.Context, cat category.Category, itemIDs []string) (processed, failed int, err error) {
	if len(itemIDs) > 0 {
		processed, failed = s.agg.RecomputeBatch(ctx, cat, itemIDs)
		return processed, failed, nil
	}
	return s.agg.RecomputeCategory(ctx, cat)
}

// SyncCategory runs one durable sync pass for the category.
func (s *Service) SyncCategory(ctx context.Context, cat category.Category) error {
	return s.syncer.Sync(ctx, cat)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}

	if s.started {
		stats["queueLength"] = s.queue.Len(ctx)
		stats["dedupeEntries"] = s.deduper.Size()
		stats["fastStoreAvailable"] = s.guard.Available()
		stats["pendingRecomputes"] = s.scheduler.PendingCount()

		ranked := map[string]int{}
		for _, cat := range category.Syncable() {
			if n, err := s.fast.ScoreCount(ctx, cat); err == nil {
				ranked[string(cat)] = n
			}
		}
		stats["rankedSizes"] = ranked
	}

	return stats
}
