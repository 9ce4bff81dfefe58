package trend_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/pulse/internal/domain/category"
	"github.com/okian/pulse/internal/trend"
)

// fakeInterests maps user ids to interest slugs.
type fakeInterests struct {
	mu    sync.Mutex
	slugs map[string][]string
	err   error
}

func newFakeInterests() *fakeInterests {
	return &fakeInterests{slugs: make(map[string][]string)}
}

func (f *fakeInterests) Interests(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.slugs[userID], nil
}

type blenderEnv struct {
	*readerEnv
	interests *fakeInterests
	blender   *trend.Blender
}

func newBlenderEnv(t *testing.T, now time.Time) *blenderEnv {
	t.Helper()
	fast := newFastStore(t, now)
	env := newReaderEnv(t, fast)
	interests := newFakeInterests()
	blender := trend.NewBlender(env.guard, env.reader, interests)
	return &blenderEnv{readerEnv: env, interests: interests, blender: blender}
}

func TestPersonalizedTop(t *testing.T) {
	convey.Convey("Given ranked sets for a sports fan to blend", t, func() {
		ctx := context.Background()
		now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
		env := newBlenderEnv(t, now)
		env.interests.slugs["fan"] = []string{"sports"}

		// Scores: general carries "headline" (50) and "crossover" (20);
		// sports carries "derby" (30) and "crossover" (10).
		seedScore := func(cat category.Category, itemID, tag string, score float64) {
			convey.So(env.fast.UpsertScore(ctx, cat, itemID, score), convey.ShouldBeNil)
			convey.So(env.durable.UpsertTag(ctx, itemID, cat, tag), convey.ShouldBeNil)
		}
		seedScore(category.General, "headline", "headline", 50)
		seedScore(category.General, "crossover", "crossover", 20)
		seedScore(category.Sports, "derby", "derby", 30)
		seedScore(category.Sports, "crossover", "crossover", 10)

		convey.Convey("When blending for the fan", func() {
			items := env.blender.PersonalizedTop(ctx, "fan", 10)

			convey.Convey("Then interest categories outweigh the general pool", func() {
				// headline 50x0.5=25, crossover 20x0.5+10x1=20, derby 30x1=30.
				convey.So(items, convey.ShouldHaveLength, 3)
				convey.So(items[0].Tag, convey.ShouldEqual, "derby")
				convey.So(items[0].Score, convey.ShouldEqual, 30)
				convey.So(items[1].Tag, convey.ShouldEqual, "headline")
				convey.So(items[1].Score, convey.ShouldEqual, 25)
				convey.So(items[2].Tag, convey.ShouldEqual, "crossover")
				convey.So(items[2].Score, convey.ShouldEqual, 20)
			})
		})

		convey.Convey("When the blend was served once", func() {
			first := env.blender.PersonalizedTop(ctx, "fan", 10)
			convey.So(first, convey.ShouldHaveLength, 3)

			seedScore(category.Sports, "latecomer", "latecomer", 99)
			second := env.blender.PersonalizedTop(ctx, "fan", 10)

			convey.Convey("Then repeat requests hit the per-user cache", func() {
				convey.So(second, convey.ShouldHaveLength, 3)
			})
		})

		convey.Convey("When the limit is smaller than the candidate pool", func() {
			items := env.blender.PersonalizedTop(ctx, "fan", 2)

			convey.Convey("Then only the best blended items return", func() {
				convey.So(items, convey.ShouldHaveLength, 2)
				convey.So(items[0].Tag, convey.ShouldEqual, "derby")
				convey.So(items[1].Tag, convey.ShouldEqual, "headline")
			})
		})

		convey.Convey("When the requester is anonymous", func() {
			items := env.blender.PersonalizedTop(ctx, "", 10)

			convey.Convey("Then the general list is served unblended", func() {
				convey.So(items, convey.ShouldHaveLength, 2)
				convey.So(items[0].Tag, convey.ShouldEqual, "headline")
				convey.So(items[0].Score, convey.ShouldEqual, 50)
			})
		})

		convey.Convey("When the user has no mappable interests", func() {
			env.interests.slugs["tourist"] = []string{"cooking"}

			items := env.blender.PersonalizedTop(ctx, "tourist", 10)

			convey.Convey("Then the general list is served unblended", func() {
				convey.So(items, convey.ShouldHaveLength, 2)
				convey.So(items[0].Tag, convey.ShouldEqual, "headline")
			})
		})

		convey.Convey("When the interest lookup fails", func() {
			env.interests.err = errors.New("profile service down")

			items := env.blender.PersonalizedTop(ctx, "fan", 10)

			convey.Convey("Then personalization degrades to the general list", func() {
				convey.So(items, convey.ShouldHaveLength, 2)
				convey.So(items[0].Tag, convey.ShouldEqual, "headline")
			})
		})
	})
}
