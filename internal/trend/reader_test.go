package trend_test

import (
	"context"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/pulse/internal/adapters/durable"
	"github.com/okian/pulse/internal/adapters/faststore"
	"github.com/okian/pulse/internal/domain/category"
	"github.com/okian/pulse/internal/domain/types"
	"github.com/okian/pulse/internal/trend"
	"github.com/okian/pulse/internal/trend/metacache"
)

// readerEnv wires a reader over a live fast store and an in-memory
// durable store.
type readerEnv struct {
	fast    faststore.Store
	durable *durable.InMemoryStore
	guard   *trend.Guard
	meta    *metacache.Cache
	agg     *trend.Aggregator
	reader  *trend.Reader
}

func newReaderEnv(t *testing.T, fast faststore.Store) *readerEnv {
	t.Helper()
	db := durable.NewInMemory()
	guard := trend.NewGuard(fast)
	meta := metacache.New(fast, db)
	agg := trend.NewAggregator(fast)
	reader := trend.NewReader(guard, db, meta, agg)
	t.Cleanup(func() {
		reader.Wait()
		agg.Wait()
	})
	return &readerEnv{fast: fast, durable: db, guard: guard, meta: meta, agg: agg, reader: reader}
}

func (e *readerEnv) seed(ctx context.Context, t *testing.T, cat category.Category, itemID, tag string, events int, now time.Time) {
	t.Helper()
	for i := 0; i < events; i++ {
		if err := e.fast.RecordEvent(ctx, itemID, cat, now.Add(-time.Minute)); err != nil {
			t.Fatalf("record event: %v", err)
		}
	}
	if tag != "" {
		if err := e.durable.UpsertTag(ctx, itemID, cat, tag); err != nil {
			t.Fatalf("upsert tag: %v", err)
		}
	}
	if err := e.agg.Recompute(ctx, itemID, cat); err != nil {
		t.Fatalf("recompute: %v", err)
	}
}

func TestTopTrending(t *testing.T) {
	convey.Convey("Given a reader over a populated ranked set", t, func() {
		ctx := context.Background()
		now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
		fast := newFastStore(t, now)
		env := newReaderEnv(t, fast)

		env.seed(ctx, t, category.General, "second", "silver", 2, now)
		env.seed(ctx, t, category.General, "first", "gold", 5, now)

		convey.Convey("When reading the trending list", func() {
			items := env.reader.TopTrending(ctx, category.General, 10)

			convey.Convey("Then items come back best first with metadata", func() {
				convey.So(items, convey.ShouldHaveLength, 2)
				convey.So(items[0].Tag, convey.ShouldEqual, "gold")
				convey.So(items[1].Tag, convey.ShouldEqual, "silver")
				convey.So(items[0].Score, convey.ShouldBeGreaterThan, items[1].Score)
				convey.So(items[0].TotalPosts, convey.ShouldEqual, 5)
			})
		})

		convey.Convey("When an item's metadata is gone", func() {
			env.seed(ctx, t, category.General, "ghost", "", 9, now)

			items := env.reader.TopTrending(ctx, category.General, 10)

			convey.Convey("Then the item is dropped from the response", func() {
				convey.So(items, convey.ShouldHaveLength, 2)
				convey.So(items[0].Tag, convey.ShouldEqual, "gold")
			})
		})

		convey.Convey("When the list was served once", func() {
			first := env.reader.TopTrending(ctx, category.General, 10)
			convey.So(first, convey.ShouldHaveLength, 2)

			// A score change after the first read is not visible until the
			// result cache entry expires or is invalidated.
			env.seed(ctx, t, category.General, "newcomer", "bronze", 20, now)
			second := env.reader.TopTrending(ctx, category.General, 10)

			convey.Convey("Then repeat reads serve the cached result", func() {
				convey.So(second, convey.ShouldHaveLength, 2)
			})
		})

		convey.Convey("When asking for a non-positive limit", func() {
			items := env.reader.TopTrending(ctx, category.General, 0)

			convey.Convey("Then the list is empty, not an error", func() {
				convey.So(items, convey.ShouldBeEmpty)
			})
		})
	})
}

func TestTopTrendingColdStart(t *testing.T) {
	convey.Convey("Given a fast store whose ranked sets were wiped", t, func() {
		ctx := context.Background()
		now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
		fast := newFastStore(t, now)
		env := newReaderEnv(t, fast)

		// Counters and logs survive the restart; scores do not. The
		// durable snapshot is the only immediately-servable list.
		for i := 0; i < 3; i++ {
			convey.So(fast.RecordEvent(ctx, "survivor", category.General, now.Add(-time.Minute)), convey.ShouldBeNil)
		}
		convey.So(env.durable.UpsertTag(ctx, "survivor", category.General, "resilient"), convey.ShouldBeNil)
		convey.So(env.durable.UpsertRecord(ctx, durable.TrendRecord{
			ItemID:       "survivor",
			Category:     category.General,
			Counts:       types.WindowCounts{Hour: 3, Day: 3, Week: 3},
			Score:        37.5,
			CalculatedAt: time.Now().Add(-time.Minute),
		}), convey.ShouldBeNil)

		convey.Convey("When the first read hits the empty ranked set", func() {
			items := env.reader.TopTrending(ctx, category.General, 10)

			convey.Convey("Then the durable snapshot is served immediately", func() {
				convey.So(items, convey.ShouldHaveLength, 1)
				convey.So(items[0].Tag, convey.ShouldEqual, "resilient")
				convey.So(items[0].Score, convey.ShouldEqual, 37.5)
			})

			convey.Convey("Then the ranked set is rebuilt in the background", func() {
				env.reader.Wait()

				top, err := env.fast.TopScores(ctx, category.General, 5)
				convey.So(err, convey.ShouldBeNil)
				convey.So(top, convey.ShouldHaveLength, 1)
				convey.So(top[0].ItemID, convey.ShouldEqual, "survivor")
			})
		})
	})
}

func TestTopTrendingDegraded(t *testing.T) {
	convey.Convey("Given a fast store that is down", t, func() {
		ctx := context.Background()
		store := newStubStore()
		store.setFailing(true)

		db := durable.NewInMemory()
		guard := trend.NewGuard(store, trend.WithFailureThreshold(1))
		meta := metacache.New(store, db)
		agg := trend.NewAggregator(store)
		reader := trend.NewReader(guard, db, meta, agg)
		defer reader.Wait()

		convey.So(db.UpsertTag(ctx, "archived", category.General, "still-here"), convey.ShouldBeNil)
		convey.So(db.UpsertRecord(ctx, durable.TrendRecord{
			ItemID:       "archived",
			Category:     category.General,
			Score:        10,
			CalculatedAt: time.Now(),
		}), convey.ShouldBeNil)

		convey.Convey("When reads keep coming", func() {
			first := reader.TopTrending(ctx, category.General, 10)
			second := reader.TopTrending(ctx, category.General, 10)

			convey.Convey("Then every read serves the durable snapshot", func() {
				convey.So(first, convey.ShouldHaveLength, 1)
				convey.So(first[0].Tag, convey.ShouldEqual, "still-here")
				convey.So(second, convey.ShouldHaveLength, 1)
			})

			convey.Convey("Then the breaker is open after the first failure", func() {
				convey.So(guard.Available(), convey.ShouldBeFalse)
			})
		})

		convey.Convey("When durable storage is down as well", func() {
			convey.So(db.Close(), convey.ShouldBeNil)

			items := reader.TopTrending(ctx, category.General, 10)

			convey.Convey("Then the reader degrades to an empty list", func() {
				convey.So(items, convey.ShouldNotBeNil)
				convey.So(items, convey.ShouldBeEmpty)
			})
		})
	})
}
