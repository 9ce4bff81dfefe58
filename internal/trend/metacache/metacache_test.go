package metacache_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/pulse/internal/adapters/durable"
	"github.com/okian/pulse/internal/domain/category"
	"github.com/okian/pulse/internal/trend/metacache"
	"github.com/okian/pulse/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

// fakeShared is an in-memory kv tier with call counters and a failure
// toggle.
type fakeShared struct {
	mu     sync.Mutex
	data   map[string][]byte
	gets   int
	sets   int
	broken bool
}

func newFakeShared() *fakeShared {
	return &fakeShared{data: make(map[string][]byte)}
}

func (f *fakeShared) GetJSON(_ context.Context, key string, out any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.broken {
		return false, errors.New("shared tier down")
	}
	raw, ok := f.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

func (f *fakeShared) SetJSON(_ context.Context, key string, v any, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.broken {
		return errors.New("shared tier down")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.data[key] = raw
	return nil
}

func (f *fakeShared) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

// fakeResolver counts durable lookups.
type fakeResolver struct {
	mu      sync.Mutex
	tags    map[string]string
	lookups int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{tags: make(map[string]string)}
}

func (f *fakeResolver) TagFor(_ context.Context, itemID string, cat category.Category) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	tag, ok := f.tags[itemID+"/"+string(cat)]
	if !ok {
		return "", durable.ErrTagNotFound
	}
	return tag, nil
}

func (f *fakeResolver) set(itemID string, cat category.Category, tag string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags[itemID+"/"+string(cat)] = tag
}

func (f *fakeResolver) lookupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups
}

func TestTagResolution(t *testing.T) {
	convey.Convey("Given a two-tier tag cache", t, func() {
		ctx := context.Background()
		shared := newFakeShared()
		resolver := newFakeResolver()

		convey.Convey("When the tag only exists in durable storage", func() {
			resolver.set("video-1", category.General, "finale")
			c := metacache.New(shared, resolver)

			tag, ok := c.Tag(ctx, "video-1", category.General)

			convey.Convey("Then it resolves and backfills both tiers", func() {
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(tag, convey.ShouldEqual, "finale")
				convey.So(c.Len(), convey.ShouldEqual, 1)

				var stored string
				found, err := shared.GetJSON(ctx, "meta:general:video-1", &stored)
				convey.So(err, convey.ShouldBeNil)
				convey.So(found, convey.ShouldBeTrue)
				convey.So(stored, convey.ShouldEqual, "finale")
			})

			convey.Convey("Then a repeat resolve stays in process", func() {
				before := resolver.lookupCount()
				sharedBefore := shared.getCount()

				tag, ok := c.Tag(ctx, "video-1", category.General)

				convey.So(ok, convey.ShouldBeTrue)
				convey.So(tag, convey.ShouldEqual, "finale")
				convey.So(resolver.lookupCount(), convey.ShouldEqual, before)
				convey.So(shared.getCount(), convey.ShouldEqual, sharedBefore)
			})
		})

		convey.Convey("When the tag sits in the shared tier only", func() {
			convey.So(shared.SetJSON(ctx, "meta:news:video-2", "breaking", time.Hour), convey.ShouldBeNil)
			c := metacache.New(shared, resolver)

			tag, ok := c.Tag(ctx, "video-2", category.News)

			convey.Convey("Then durable storage is never consulted", func() {
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(tag, convey.ShouldEqual, "breaking")
				convey.So(resolver.lookupCount(), convey.ShouldEqual, 0)
				convey.So(c.Len(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When the item has no tag anywhere", func() {
			c := metacache.New(shared, resolver)

			tag, ok := c.Tag(ctx, "deleted", category.General)

			convey.Convey("Then the item reads as deleted", func() {
				convey.So(ok, convey.ShouldBeFalse)
				convey.So(tag, convey.ShouldBeEmpty)
				convey.So(c.Len(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the shared tier is failing", func() {
			resolver.set("video-3", category.Sports, "derby")
			shared.broken = true
			c := metacache.New(shared, resolver)

			tag, ok := c.Tag(ctx, "video-3", category.Sports)

			convey.Convey("Then resolution degrades to durable storage", func() {
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(tag, convey.ShouldEqual, "derby")
			})
		})
	})
}

func TestRemember(t *testing.T) {
	convey.Convey("Given a tag learned on the ingestion path", t, func() {
		ctx := context.Background()
		shared := newFakeShared()
		resolver := newFakeResolver()
		c := metacache.New(shared, resolver)

		c.Remember(ctx, "video-1", category.General, "finale")

		convey.Convey("Then both tiers serve it without a durable lookup", func() {
			tag, ok := c.Tag(ctx, "video-1", category.General)
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(tag, convey.ShouldEqual, "finale")
			convey.So(resolver.lookupCount(), convey.ShouldEqual, 0)

			var stored string
			found, err := shared.GetJSON(ctx, "meta:general:video-1", &stored)
			convey.So(err, convey.ShouldBeNil)
			convey.So(found, convey.ShouldBeTrue)
			convey.So(stored, convey.ShouldEqual, "finale")
		})

		convey.Convey("Then an empty tag is ignored", func() {
			c.Remember(ctx, "video-2", category.General, "")
			convey.So(c.Len(), convey.ShouldEqual, 1)
		})
	})
}

func TestLocalTier(t *testing.T) {
	convey.Convey("Given a bounded local tier", t, func() {
		ctx := context.Background()

		convey.Convey("When more items than the cap are remembered", func() {
			shared := newFakeShared()
			resolver := newFakeResolver()
			c := metacache.New(shared, resolver, metacache.WithLocalCap(2))

			c.Remember(ctx, "a", category.General, "tag-a")
			c.Remember(ctx, "b", category.General, "tag-b")
			c.Remember(ctx, "c", category.General, "tag-c")

			convey.Convey("Then the oldest entry is evicted first", func() {
				convey.So(c.Len(), convey.ShouldEqual, 2)

				// "a" fell out of the local tier but survives in the
				// shared tier, so it still resolves.
				before := shared.getCount()
				tag, ok := c.Tag(ctx, "a", category.General)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(tag, convey.ShouldEqual, "tag-a")
				convey.So(shared.getCount(), convey.ShouldEqual, before+1)
			})
		})

		convey.Convey("When local entries expire", func() {
			now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
			clock := now
			shared := newFakeShared()
			resolver := newFakeResolver()
			c := metacache.New(shared, resolver,
				metacache.WithLocalTTL(time.Minute),
				metacache.WithClock(func() time.Time { return clock }),
			)

			c.Remember(ctx, "a", category.General, "tag-a")
			clock = now.Add(2 * time.Minute)

			convey.Convey("Then resolution falls back to the shared tier", func() {
				before := shared.getCount()
				tag, ok := c.Tag(ctx, "a", category.General)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(tag, convey.ShouldEqual, "tag-a")
				convey.So(shared.getCount(), convey.ShouldEqual, before+1)
			})
		})

		convey.Convey("When an expired key is remembered again after other inserts", func() {
			now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
			clock := now
			shared := newFakeShared()
			resolver := newFakeResolver()
			c := metacache.New(shared, resolver,
				metacache.WithLocalCap(2),
				metacache.WithLocalTTL(time.Minute),
				metacache.WithClock(func() time.Time { return clock }),
			)

			c.Remember(ctx, "a", category.General, "tag-a")
			clock = now.Add(2 * time.Minute)

			// A full miss purges the expired entry from the local tier.
			shared.broken = true
			_, ok := c.Tag(ctx, "a", category.General)
			convey.So(ok, convey.ShouldBeFalse)
			shared.broken = false

			c.Remember(ctx, "b", category.General, "tag-b")
			c.Remember(ctx, "a", category.General, "tag-a")
			c.Remember(ctx, "c", category.General, "tag-c")

			convey.Convey("Then eviction hits the oldest insert, not the re-remembered key", func() {
				convey.So(c.Len(), convey.ShouldEqual, 2)

				before := shared.getCount()
				tag, ok := c.Tag(ctx, "a", category.General)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(tag, convey.ShouldEqual, "tag-a")
				convey.So(shared.getCount(), convey.ShouldEqual, before)
			})
		})
	})
}
