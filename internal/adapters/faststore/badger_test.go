package faststore_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/pulse/internal/adapters/faststore"
	"github.com/okian/pulse/internal/domain/category"
	"github.com/okian/pulse/internal/domain/scoring"
)

// testClock is a settable wall clock for pinning window boundaries.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(now time.Time) *testClock {
	return &testClock{now: now}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func openStore(t *testing.T, clock *testClock) *faststore.BadgerStore {
	t.Helper()
	s, err := faststore.New(context.Background(), faststore.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWindowCounts(t *testing.T) {
	convey.Convey("Given events spread across the ranking windows", t, func() {
		ctx := context.Background()
		now := time.Date(2025, 3, 10, 23, 50, 0, 0, time.UTC)
		clock := newTestClock(now)
		s := openStore(t, clock)

		// Two events inside the current hour, one earlier the same day,
		// one six days back. Window counts must nest: 2 / 3 / 4.
		stamps := []time.Time{
			time.Date(2025, 3, 10, 23, 10, 0, 0, time.UTC),
			time.Date(2025, 3, 10, 23, 20, 0, 0, time.UTC),
			time.Date(2025, 3, 10, 3, 30, 0, 0, time.UTC),
			time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC),
		}
		for _, ts := range stamps {
			convey.So(s.RecordEvent(ctx, "video-1", category.General, ts), convey.ShouldBeNil)
		}

		convey.Convey("When reading the item's window counts", func() {
			counts, err := s.WindowCounts(ctx, "video-1", category.General)

			convey.Convey("Then each window reports its own tally", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(counts.Hour, convey.ShouldEqual, 2)
				convey.So(counts.Day, convey.ShouldEqual, 3)
				convey.So(counts.Week, convey.ShouldEqual, 4)
				convey.So(scoring.Score(counts), convey.ShouldEqual, 28)
			})
		})

		convey.Convey("When reading an item with no events", func() {
			counts, err := s.WindowCounts(ctx, "silent", category.General)

			convey.Convey("Then every window is zero", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(counts.Hour, convey.ShouldEqual, 0)
				convey.So(counts.Day, convey.ShouldEqual, 0)
				convey.So(counts.Week, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the same item lives in another category", func() {
			convey.So(s.RecordEvent(ctx, "video-1", category.Sports, now.Add(-time.Minute)), convey.ShouldBeNil)
			counts, err := s.WindowCounts(ctx, "video-1", category.Sports)

			convey.Convey("Then the categories do not bleed into each other", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(counts.Week, convey.ShouldEqual, 1)
			})
		})
	})
}

func TestEventLog(t *testing.T) {
	convey.Convey("Given a store with a populated event log", t, func() {
		ctx := context.Background()
		start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
		clock := newTestClock(start)
		s := openStore(t, clock)

		convey.So(s.RecordEvent(ctx, "a", category.News, start), convey.ShouldBeNil)
		convey.So(s.RecordEvent(ctx, "b", category.News, start), convey.ShouldBeNil)
		convey.So(s.RecordEvent(ctx, "a", category.News, start.Add(time.Minute)), convey.ShouldBeNil)
		convey.So(s.RecordEvent(ctx, "c", category.Sports, start), convey.ShouldBeNil)

		convey.Convey("When listing the category's items", func() {
			items, err := s.LogItems(ctx, category.News)

			convey.Convey("Then each item appears once", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(items, convey.ShouldHaveLength, 2)
				convey.So(items, convey.ShouldContain, "a")
				convey.So(items, convey.ShouldContain, "b")
			})
		})

		convey.Convey("When the clock moves past the retention horizon", func() {
			clock.Set(start.Add(6 * 24 * time.Hour))
			convey.So(s.RecordEvent(ctx, "a", category.News, clock.Now()), convey.ShouldBeNil)
			clock.Set(start.Add(8 * 24 * time.Hour))

			removed, err := s.PruneEventLog(ctx, "a", category.News)

			convey.Convey("Then only stale entries are pruned", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(removed, convey.ShouldEqual, 2)

				counts, cerr := s.WindowCounts(ctx, "a", category.News)
				convey.So(cerr, convey.ShouldBeNil)
				convey.So(counts.Week, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When there is nothing stale to prune", func() {
			removed, err := s.PruneEventLog(ctx, "b", category.News)

			convey.Convey("Then the prune is a no-op", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(removed, convey.ShouldEqual, 0)
			})
		})
	})
}

func TestRankedScores(t *testing.T) {
	convey.Convey("Given a store with ranked scores", t, func() {
		ctx := context.Background()
		clock := newTestClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
		s := openStore(t, clock)

		convey.So(s.UpsertScore(ctx, category.General, "b", 20), convey.ShouldBeNil)
		convey.So(s.UpsertScore(ctx, category.General, "a", 30), convey.ShouldBeNil)
		convey.So(s.UpsertScore(ctx, category.General, "c", 10), convey.ShouldBeNil)

		convey.Convey("When reading the top of the set", func() {
			top, err := s.TopScores(ctx, category.General, 2)

			convey.Convey("Then entries come back in rank order", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(top, convey.ShouldHaveLength, 2)
				convey.So(top[0].ItemID, convey.ShouldEqual, "a")
				convey.So(top[1].ItemID, convey.ShouldEqual, "b")
			})
		})

		convey.Convey("When asking for a non-positive limit", func() {
			_, err := s.TopScores(ctx, category.General, 0)

			convey.Convey("Then the limit is rejected", func() {
				convey.So(errors.Is(err, faststore.ErrInvalidLimit), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When removing and trimming", func() {
			convey.So(s.RemoveScore(ctx, category.General, "a"), convey.ShouldBeNil)
			convey.So(s.TrimScores(ctx, category.General, 1), convey.ShouldBeNil)

			convey.Convey("Then only the best survivor remains", func() {
				n, err := s.ScoreCount(ctx, category.General)
				convey.So(err, convey.ShouldBeNil)
				convey.So(n, convey.ShouldEqual, 1)

				top, err := s.TopScores(ctx, category.General, 5)
				convey.So(err, convey.ShouldBeNil)
				convey.So(top[0].ItemID, convey.ShouldEqual, "b")
			})
		})
	})
}

func TestKVTier(t *testing.T) {
	convey.Convey("Given the store's kv tier", t, func() {
		ctx := context.Background()
		clock := newTestClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
		s := openStore(t, clock)

		type payload struct {
			Name  string `json:"name"`
			Count int    `json:"count"`
		}

		convey.Convey("When setting and getting a value", func() {
			convey.So(s.SetJSON(ctx, "trending:general:10", payload{Name: "x", Count: 3}, time.Minute), convey.ShouldBeNil)

			var got payload
			found, err := s.GetJSON(ctx, "trending:general:10", &got)

			convey.Convey("Then the value round-trips", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(found, convey.ShouldBeTrue)
				convey.So(got, convey.ShouldResemble, payload{Name: "x", Count: 3})
			})
		})

		convey.Convey("When getting a missing key", func() {
			var got payload
			found, err := s.GetJSON(ctx, "missing", &got)

			convey.Convey("Then absence is not an error", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(found, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When deleting a key", func() {
			convey.So(s.SetJSON(ctx, "doomed", payload{}, 0), convey.ShouldBeNil)
			convey.So(s.Delete(ctx, "doomed"), convey.ShouldBeNil)

			var got payload
			found, err := s.GetJSON(ctx, "doomed", &got)
			convey.So(err, convey.ShouldBeNil)
			convey.So(found, convey.ShouldBeFalse)
		})

		convey.Convey("When deleting by prefix", func() {
			convey.So(s.SetJSON(ctx, "trending:news:10", payload{Count: 1}, 0), convey.ShouldBeNil)
			convey.So(s.SetJSON(ctx, "trending:news:50", payload{Count: 2}, 0), convey.ShouldBeNil)
			convey.So(s.SetJSON(ctx, "trending:sports:10", payload{Count: 3}, 0), convey.ShouldBeNil)

			convey.So(s.DeletePrefix(ctx, "trending:news:"), convey.ShouldBeNil)

			convey.Convey("Then only keys under the prefix are gone", func() {
				var got payload
				found, err := s.GetJSON(ctx, "trending:news:10", &got)
				convey.So(err, convey.ShouldBeNil)
				convey.So(found, convey.ShouldBeFalse)

				found, err = s.GetJSON(ctx, "trending:sports:10", &got)
				convey.So(err, convey.ShouldBeNil)
				convey.So(found, convey.ShouldBeTrue)
			})
		})
	})
}

func TestClosedStore(t *testing.T) {
	convey.Convey("Given a closed store", t, func() {
		ctx := context.Background()
		clock := newTestClock(time.Now())
		s, err := faststore.New(ctx, faststore.WithClock(clock.Now))
		convey.So(err, convey.ShouldBeNil)
		convey.So(s.Close(), convey.ShouldBeNil)

		convey.Convey("Then every operation reports the closed state", func() {
			convey.So(errors.Is(s.RecordEvent(ctx, "a", category.General, time.Now()), faststore.ErrClosed), convey.ShouldBeTrue)
			_, err := s.WindowCounts(ctx, "a", category.General)
			convey.So(errors.Is(err, faststore.ErrClosed), convey.ShouldBeTrue)
			_, err = s.TopScores(ctx, category.General, 1)
			convey.So(errors.Is(err, faststore.ErrClosed), convey.ShouldBeTrue)
			convey.So(errors.Is(s.SetJSON(ctx, "k", 1, 0), faststore.ErrClosed), convey.ShouldBeTrue)
		})

		convey.Convey("Then a second close is a no-op", func() {
			convey.So(s.Close(), convey.ShouldBeNil)
		})
	})
}
