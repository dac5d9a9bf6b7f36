package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	dedupe "github.com/okian/pcarank/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestPendingSet(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new pending set", t, func() {
		s := dedupe.NewPendingSet()
		So(s.Size(), ShouldEqual, int64(0))

		Convey("When a key is claimed twice", func() {
			first := s.Claim(ctx, "regional:cebu")
			second := s.Claim(ctx, "regional:cebu")

			Convey("Then only the first claim wins", func() {
				So(first, ShouldBeTrue)
				So(second, ShouldBeFalse)
				So(s.Size(), ShouldEqual, int64(1))
			})
		})

		Convey("When a claimed key is released", func() {
			s.Claim(ctx, "national:-")
			s.Release(ctx, "national:-")

			Convey("Then it can be claimed again", func() {
				So(s.Size(), ShouldEqual, int64(0))
				So(s.Claim(ctx, "national:-"), ShouldBeTrue)
			})
		})

		Convey("When releasing an unknown key", func() {
			s.Release(ctx, "nope")

			Convey("Then nothing changes", func() {
				So(s.Size(), ShouldEqual, int64(0))
			})
		})
	})

	Convey("Given a bounded pending set", t, func() {
		s := dedupe.NewPendingSet(dedupe.WithMaxSize(2))
		s.Claim(ctx, "a")
		s.Claim(ctx, "b")

		Convey("When a third key is claimed", func() {
			So(s.Claim(ctx, "c"), ShouldBeTrue)

			Convey("Then the oldest claim is dropped", func() {
				So(s.Size(), ShouldEqual, int64(2))
				So(s.Claim(ctx, "a"), ShouldBeTrue)
				So(s.Claim(ctx, "c"), ShouldBeFalse)
			})
		})
	})

	Convey("Given an unbounded pending set", t, func() {
		s := dedupe.NewPendingSet(dedupe.WithMaxSize(0))
		for i := 0; i < 10000; i++ {
			s.Claim(ctx, fmt.Sprintf("local:%d", i))
		}
		So(s.Size(), ShouldEqual, int64(10000))
	})
}

func TestPendingSetConcurrency(t *testing.T) {
	ctx := context.Background()

	Convey("Given many goroutines claiming the same keys", t, func() {
		s := dedupe.NewPendingSet()

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					if s.Claim(ctx, fmt.Sprintf("k%d", i)) {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then each key is won exactly once", func() {
			So(wins, ShouldEqual, 100)
			So(s.Size(), ShouldEqual, int64(100))
		})
	})
}
