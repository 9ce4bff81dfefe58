package service

import (
	"time"

	"github.com/okian/pulse/internal/adapters/durable"
	"github.com/okian/pulse/internal/trend"
	"github.com/okian/pulse/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of ingestion workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the event queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithBadgerDir points the fast store at an on-disk badger.
func WithBadgerDir(dir string) Option {
	return func(s *Service) {
		s.badgerDir = dir
	}
}

// WithPostgresDSN configures durable storage.
func WithPostgresDSN(dsn string) Option {
	return func(s *Service) {
		s.postgresDSN = dsn
	}
}

// WithDurableStore injects a durable store directly. Test hook; also
// overrides WithPostgresDSN.
func WithDurableStore(store durable.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.durable = store
		}
	}
}

// WithRankedKeep bounds each category's ranked set.
func WithRankedKeep(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.rankedKeep = n
		}
	}
}

// WithQuietPeriod sets the recompute debounce window.
func WithQuietPeriod(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.quietPeriod = d
		}
	}
}

// WithSyncInterval sets the cadence of the durable sync pass.
func WithSyncInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.syncInterval = d
		}
	}
}

// WithSyncLimit sets how many top items each sync pass snapshots.
func WithSyncLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.syncLimit = n
		}
	}
}

// WithBreaker tunes the fast-store circuit breaker.
func WithBreaker(threshold int, cooldown time.Duration) Option {
	return func(s *Service) {
		if threshold > 0 {
			s.breakerThreshold = uint32(threshold)
		}
		if cooldown > 0 {
			s.breakerCooldown = cooldown
		}
	}
}

// WithCacheTTLs bounds read-path cache staleness.
func WithCacheTTLs(result, counts, personal time.Duration) Option {
	return func(s *Service) {
		if result > 0 {
			s.resultTTL = result
		}
		if counts > 0 {
			s.countsTTL = counts
		}
		if personal > 0 {
			s.personalTTL = personal
		}
	}
}

// WithMetaLocal tunes the in-process metadata tier.
func WithMetaLocal(ttl time.Duration, capacity int) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.metaLocalTTL = ttl
		}
		if capacity > 0 {
			s.metaLocalCap = capacity
		}
	}
}

// WithInterestResolver wires a user profile source for personalization.
func WithInterestResolver(r trend.InterestResolver) Option {
	return func(s *Service) {
		if r != nil {
			s.resolver = r
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
