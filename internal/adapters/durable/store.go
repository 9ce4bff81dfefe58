// Package durable defines the persistent trend-record store: the slow
// but available fallback behind the fast store, written by the sync
// loop and read on cold start or while the circuit breaker is open.
package durable

import (
	"context"
	"time"

	"github.com/okian/pulse/internal/domain/category"
	"github.com/okian/pulse/internal/domain/types"
)

// TrendRecord is one durable snapshot row. UserID is empty for the
// shared, non-personalized snapshot; per-user rows are reserved in the
// schema but never written by the sync loop.
type TrendRecord struct {
	ItemID       string
	Category     category.Category
	UserID       string
	Counts       types.WindowCounts
	Score        float64
	CalculatedAt time.Time
}

// Store provides read/write access to durable trend state. Unlike the
// fast store it sits behind no circuit breaker: it is assumed slower
// but more available, and its errors surface to callers directly.
type Store interface {
	// UpsertRecord atomically inserts or updates a snapshot row keyed by
	// (item, category, user).
	UpsertRecord(ctx context.Context, rec TrendRecord) error

	// TopRecent returns up to limit shared (non-personalized) records
	// for a category calculated within the trailing window, ordered by
	// score descending.
	TopRecent(ctx context.Context, cat category.Category, limit int, within time.Duration) ([]TrendRecord, error)

	// TagFor resolves an item's display tag.
	// Returns ErrTagNotFound when the item is unknown (e.g. deleted).
	TagFor(ctx context.Context, itemID string, cat category.Category) (string, error)

	// UpsertTag records an item's display tag as learned from ingestion.
	UpsertTag(ctx context.Context, itemID string, cat category.Category, tag string) error

	Close() error
}
