// Package metacache resolves an item's display tag through two cache
// tiers backed by durable storage: a small in-process tier for hot
// items and a shared kv tier that outlives the process. Misses fall
// through to the durable tag table; an item with no tag anywhere is
// treated as deleted and dropped from responses.
package metacache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/pulse/internal/adapters/durable"
	"github.com/okian/pulse/internal/domain/category"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
)

// Tier TTLs and the in-process entry cap.
const (
	defaultLocalTTL  = time.Minute
	defaultLocalCap  = 1000
	defaultSharedTTL = 7 * 24 * time.Hour

	localTier  = "meta_local"
	sharedTier = "meta_shared"
)

// SharedTier is the kv surface the shared tier lives on. Reads and
// writes may fail; the cache degrades to durable lookups.
type SharedTier interface {
	GetJSON(ctx context.Context, key string, out any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// Resolver is the durable source of truth for tags.
type Resolver interface {
	TagFor(ctx context.Context, itemID string, cat category.Category) (string, error)
}

type localEntry struct {
	tag     string
	expires time.Time
}

// Cache is the two-tier tag cache. The local tier is a bounded map
// with FIFO eviction; the shared tier is written through on every
// resolve so other processes skip the durable lookup.
type Cache struct {
	shared   SharedTier
	resolver Resolver

	localTTL  time.Duration
	localCap  int
	sharedTTL time.Duration
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]localEntry
	order   []string

	logger logger.Logger
}

// Option applies a configuration option to the Cache.
type Option func(*Cache)

// WithLocalTTL sets the in-process entry lifetime.
func WithLocalTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.localTTL = d
		}
	}
}

// WithLocalCap bounds the in-process tier.
func WithLocalCap(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.localCap = n
		}
	}
}

// WithSharedTTL sets the shared-tier entry lifetime.
func WithSharedTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.sharedTTL = d
		}
	}
}

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a tag cache over the shared tier and durable resolver.
func New(shared SharedTier, resolver Resolver, opts ...Option) *Cache {
	c := &Cache{
		shared:    shared,
		resolver:  resolver,
		localTTL:  defaultLocalTTL,
		localCap:  defaultLocalCap,
		sharedTTL: defaultSharedTTL,
		now:       time.Now,
		entries:   make(map[string]localEntry),
		logger:    logger.Get().Named("metacache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func metaKey(itemID string, cat category.Category) string {
	return fmt.Sprintf("meta:%s:%s", cat, itemID)
}

// Tag resolves the item's display tag: local tier, then shared tier,
// then durable. The second return is false when the item has no tag
// anywhere, which callers treat as a deleted item.
func (c *Cache) Tag(ctx context.Context, itemID string, cat category.Category) (string, bool) {
	key := metaKey(itemID, cat)

	if tag, ok := c.localGet(key); ok {
		metrics.RecordCacheHit(localTier)
		return tag, true
	}
	metrics.RecordCacheMiss(localTier)

	var tag string
	found, err := c.shared.GetJSON(ctx, key, &tag)
	if err != nil {
		c.logger.Debug(ctx, "shared tag read failed",
			logger.String("key", key), logger.Error(err))
	}
	if found && tag != "" {
		metrics.RecordCacheHit(sharedTier)
		c.localPut(key, tag)
		return tag, true
	}
	metrics.RecordCacheMiss(sharedTier)

	tag, err = c.resolver.TagFor(ctx, itemID, cat)
	if err != nil {
		if !errors.Is(err, durable.ErrTagNotFound) {
			metrics.RecordErrorByComponent("metacache", "durable_lookup")
			c.logger.Warn(ctx, "durable tag lookup failed",
				logger.String("itemID", itemID),
				logger.String("category", string(cat)),
				logger.Error(err),
			)
		}
		return "", false
	}

	c.localPut(key, tag)
	if serr := c.shared.SetJSON(ctx, key, tag, c.sharedTTL); serr != nil {
		c.logger.Debug(ctx, "shared tag write failed",
			logger.String("key", key), logger.Error(serr))
	}
	return tag, true
}

// Remember writes a known tag through both tiers without consulting
// durable storage. Called on the ingestion path.
func (c *Cache) Remember(ctx context.Context, itemID string, cat category.Category, tag string) {
	if tag == "" {
		return
	}
	key := metaKey(itemID, cat)
	c.localPut(key, tag)
	if err := c.shared.SetJSON(ctx, key, tag, c.sharedTTL); err != nil {
		c.logger.Debug(ctx, "shared tag write failed",
			logger.String("key", key), logger.Error(err))
	}
}

func (c *Cache) localGet(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.now().After(entry.expires) {
		delete(c.entries, key)
		c.dropFromOrder(key)
		return "", false
	}
	return entry.tag, true
}

func (c *Cache) dropFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// localPut inserts with FIFO eviction. The order slice holds exactly
// the keys in entries, so evicting the front never touches a live
// entry queued elsewhere.
func (c *Cache) localPut(key, tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		for len(c.entries) >= c.localCap && len(c.order) > 0 {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = localEntry{tag: tag, expires: c.now().Add(c.localTTL)}
}

// Len reports the in-process tier's size. Diagnostic only.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
