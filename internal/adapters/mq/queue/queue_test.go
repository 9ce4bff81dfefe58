package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/pulse/internal/adapters/mq/queue"
	"github.com/okian/pulse/internal/domain/category"
)

func TestInMemoryQueue(t *testing.T) {
	convey.Convey("Given a bounded in-memory queue", t, func() {
		ctx := context.Background()

		convey.Convey("When enqueuing within capacity", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(4))
			defer func() { _ = q.Close() }()

			ok := q.Enqueue(ctx, queue.Event{EventID: "e1", ItemID: "i1"})

			convey.Convey("Then the event is accepted", func() {
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(q.Len(ctx), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When the queue is full", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(1))
			defer func() { _ = q.Close() }()

			convey.So(q.Enqueue(ctx, queue.Event{EventID: "e1"}), convey.ShouldBeTrue)
			ok := q.Enqueue(ctx, queue.Event{EventID: "e2"})

			convey.Convey("Then backpressure is reported instead of blocking", func() {
				convey.So(ok, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When dequeuing", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(4))

			event := queue.Event{
				EventID:    "e1",
				ItemID:     "i1",
				Categories: []category.Category{category.News},
			}
			convey.So(q.Enqueue(ctx, event), convey.ShouldBeTrue)

			out := q.Dequeue(ctx)

			convey.Convey("Then the event arrives on the channel", func() {
				select {
				case got := <-out:
					convey.So(got.EventID, convey.ShouldEqual, "e1")
					convey.So(got.Categories, convey.ShouldResemble, event.Categories)
				case <-time.After(time.Second):
					convey.So("timeout", convey.ShouldBeEmpty)
				}
			})

			_ = q.Close()
		})

		convey.Convey("When the queue is closed", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(4))
			convey.So(q.Close(), convey.ShouldBeNil)

			convey.Convey("Then enqueues are rejected and close is idempotent", func() {
				convey.So(q.Enqueue(ctx, queue.Event{EventID: "e1"}), convey.ShouldBeFalse)
				convey.So(q.Close(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the queue closes with events in flight", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(4))
			convey.So(q.Enqueue(ctx, queue.Event{EventID: "e1"}), convey.ShouldBeTrue)
			_ = q.Close()

			out := q.Dequeue(ctx)

			convey.Convey("Then buffered events drain before the channel closes", func() {
				select {
				case got, ok := <-out:
					convey.So(ok, convey.ShouldBeTrue)
					convey.So(got.EventID, convey.ShouldEqual, "e1")
				case <-time.After(time.Second):
					convey.So("timeout", convey.ShouldBeEmpty)
				}

				select {
				case _, ok := <-out:
					convey.So(ok, convey.ShouldBeFalse)
				case <-time.After(time.Second):
					convey.So("timeout", convey.ShouldBeEmpty)
				}
			})
		})
	})
}
