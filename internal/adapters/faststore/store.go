// Package faststore provides the shared low-latency store: atomic
// expiring counters, per-item event logs, score-ranked sets per
// category, and a TTL'd key-value tier used by the read-path caches.
package faststore

import (
	"context"
	"time"

	"github.com/okian/pulse/internal/domain/category"
	"github.com/okian/pulse/internal/domain/types"
)

// Window lengths and horizons for counter buckets and the event log.
const (
	HourWindow  = time.Hour
	DayWindow   = 24 * time.Hour
	WeekHorizon = 7 * 24 * time.Hour
)

// Store is the contract every other trending component builds on. The
// implementation is treated as an external, potentially-unavailable
// service: all methods may fail and callers decide retry policy.
type Store interface {
	// RecordEvent increments the hourly and daily buckets covering ts,
	// appends to the item's event log, and refreshes expirations.
	// Safe for concurrent calls on the same item; at-least-once is
	// acceptable, idempotence is not required.
	RecordEvent(ctx context.Context, itemID string, cat category.Category, ts time.Time) error

	// WindowCounts returns the current hourly bucket, the current daily
	// bucket, and the event-log cardinality within the 7-day horizon.
	WindowCounts(ctx context.Context, itemID string, cat category.Category) (types.WindowCounts, error)

	// PruneEventLog deletes event-log entries older than the 7-day
	// horizon for one item. Returns the number of entries removed.
	PruneEventLog(ctx context.Context, itemID string, cat category.Category) (int, error)

	// LogItems returns the distinct item ids that have live event-log
	// entries in the category. Used for category-wide recomputes.
	LogItems(ctx context.Context, cat category.Category) ([]string, error)

	// Ranked-set operations. Ordering is score DESC then item id ASC.
	UpsertScore(ctx context.Context, cat category.Category, itemID string, score float64) error
	RemoveScore(ctx context.Context, cat category.Category, itemID string) error
	TopScores(ctx context.Context, cat category.Category, n int) ([]types.ScoredItem, error)
	TrimScores(ctx context.Context, cat category.Category, keep int) error
	ScoreCount(ctx context.Context, cat category.Category) (int, error)

	// KV tier with TTL, JSON-encoded values. GetJSON reports whether the
	// key was present and unexpired.
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, out any) (bool, error)
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error

	Close() error
}
