package cache

import (
	"context"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/okian/pcarank/internal/domain/model"
	"github.com/okian/pcarank/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRankingKey(t *testing.T) {
	Convey("Given ranking queries", t, func() {
		q := model.RankingQuery{EventID: "333", RankType: model.Single, Level: model.Regional, Area: "  NCR ", Limit: 50}

		Convey("Then the key carries the dataset and every parameter with a folded area", func() {
			So(RankingKey(model.DatasetA, q), ShouldEqual, "ranking:A:333:single:regional:ncr:50")
		})

		Convey("Then logically equal queries share a key", func() {
			other := q
			other.Area = "ncr"
			So(RankingKey(model.DatasetA, other), ShouldEqual, RankingKey(model.DatasetA, q))
		})

		Convey("Then the same query against the other dataset has its own key", func() {
			So(RankingKey(model.DatasetB, q), ShouldNotEqual, RankingKey(model.DatasetA, q))
			So(RankingKey(model.DatasetB, q), ShouldStartWith, DatasetPrefix(model.DatasetB))
		})

		Convey("Then national ignores the area", func() {
			n := model.RankingQuery{EventID: "333", RankType: model.Average, Level: model.National, Area: "whatever", Limit: 10}
			So(RankingKey(model.DatasetB, n), ShouldEqual, "ranking:B:333:average:national:-:10")
		})

		Convey("Then an empty area normalizes to a dash", func() {
			So(NormalizeArea(" "), ShouldEqual, "-")
		})
	})
}

func TestMemoryBackend(t *testing.T) {
	ctx := context.Background()

	Convey("Given a memory backend on a test clock", t, func() {
		clk := testclock.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		m := NewMemory(WithClock(clk))

		Convey("When a value is stored without ttl", func() {
			So(m.Put(ctx, "a", []byte("1"), 0), ShouldBeNil)
			clk.Advance(24 * time.Hour)

			Convey("Then it never expires", func() {
				v, ok, err := m.Get(ctx, "a")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(string(v), ShouldEqual, "1")
			})
		})

		Convey("When a value is stored with a ttl", func() {
			So(m.Put(ctx, "b", []byte("2"), time.Minute), ShouldBeNil)

			Convey("Then it is served before the deadline", func() {
				clk.Advance(59 * time.Second)
				_, ok, _ := m.Get(ctx, "b")
				So(ok, ShouldBeTrue)
			})

			Convey("Then it is gone at the deadline", func() {
				clk.Advance(time.Minute)
				_, ok, _ := m.Get(ctx, "b")
				So(ok, ShouldBeFalse)
				n, _ := m.Len(ctx)
				So(n, ShouldEqual, 0)
			})
		})

		Convey("When invalidating by prefix", func() {
			_ = m.Put(ctx, "ranking:333:single:national:-:10", []byte("x"), 0)
			_ = m.Put(ctx, "ranking:222:single:national:-:10", []byte("x"), 0)
			_ = m.Put(ctx, RegistryKey, []byte("x"), 0)

			n, err := m.InvalidatePrefix(ctx, RankingPrefix)

			Convey("Then only matching keys are removed", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
				left, _ := m.Len(ctx)
				So(left, ShouldEqual, 1)
			})
		})

		Convey("When the stored slice is mutated by the caller", func() {
			buf := []byte("abc")
			_ = m.Put(ctx, "k", buf, 0)
			buf[0] = 'z'

			Convey("Then the cached copy is unaffected", func() {
				v, _, _ := m.Get(ctx, "k")
				So(string(v), ShouldEqual, "abc")
			})
		})

		Convey("When the key is empty", func() {
			So(m.Put(ctx, "", []byte("x"), 0), ShouldEqual, ErrEmptyKey)
		})

		Convey("When the backend is closed", func() {
			So(m.Close(), ShouldBeNil)
			_, _, err := m.Get(ctx, "a")
			So(err, ShouldEqual, ErrClosed)
		})
	})
}

func TestNoneBackend(t *testing.T) {
	ctx := context.Background()

	Convey("Given the none backend", t, func() {
		b, err := OpenBackend(ctx, KindNone, "")
		So(err, ShouldBeNil)
		So(b.Put(ctx, "k", []byte("v"), 0), ShouldBeNil)

		_, ok, err := b.Get(ctx, "k")
		So(err, ShouldBeNil)
		So(ok, ShouldBeFalse)
	})

	Convey("Given an unknown backend kind", t, func() {
		_, err := OpenBackend(ctx, Kind("redis"), "")
		So(err, ShouldNotBeNil)
	})
}

func TestTypedCache(t *testing.T) {
	ctx := context.Background()

	Convey("Given a typed cache over memory", t, func() {
		clk := testclock.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		c := New(NewMemory(WithClock(clk)), WithLogger(logger.Discard()))
		q := model.RankingQuery{EventID: "333", RankType: model.Single, Level: model.National, Limit: 2}

		Convey("When rankings are missing", func() {
			_, ok, err := c.Rankings(ctx, model.DatasetA, q)
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})

		Convey("When rankings are stored", func() {
			rows := []model.RankingRow{
				{Rank: 1, EventID: "333", Value: "6.90", PersonID: "2015CRUZ01", PersonName: "Ana Cruz", Raw: 690},
				{Rank: 2, EventID: "333", Value: "7.10", PersonID: "2016REYE01", PersonName: "Ben Reyes", Raw: 710},
			}
			So(c.PutRankings(ctx, model.DatasetA, q, rows), ShouldBeNil)

			Convey("Then they round-trip", func() {
				got, ok, err := c.Rankings(ctx, model.DatasetA, q)
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(got, ShouldResemble, rows)
			})

			Convey("Then a read against the other dataset misses", func() {
				_, ok, err := c.Rankings(ctx, model.DatasetB, q)
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When an empty ranking is stored", func() {
			So(c.PutRankings(ctx, model.DatasetA, q, nil), ShouldBeNil)

			Convey("Then it is a hit with no rows", func() {
				got, ok, err := c.Rankings(ctx, model.DatasetA, q)
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(got, ShouldBeEmpty)
			})
		})

		Convey("When the registry is cached and invalidated", func() {
			st := model.RegistryState{Active: model.DatasetB, Inactive: model.DatasetA}
			So(c.PutRegistry(ctx, st), ShouldBeNil)

			got, ok, err := c.Registry(ctx)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(got, ShouldResemble, st)

			So(c.Invalidate(ctx, RegistryKey), ShouldBeNil)
			_, ok, _ = c.Registry(ctx)
			So(ok, ShouldBeFalse)
		})

		Convey("When the registry is cached", func() {
			st := model.RegistryState{Active: model.DatasetA, Inactive: model.DatasetB}
			So(c.PutRegistry(ctx, st), ShouldBeNil)

			Convey("Then it expires after the registry ttl", func() {
				clk.Advance(DefaultRegistryTTL - time.Second)
				_, ok, _ := c.Registry(ctx)
				So(ok, ShouldBeTrue)

				clk.Advance(time.Second)
				_, ok, _ = c.Registry(ctx)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When a garbage value sits under a typed key", func() {
			So(c.Backend().Put(ctx, RegistryKey, []byte{0xc1}, 0), ShouldBeNil)

			Convey("Then it reads as a miss and is dropped", func() {
				_, ok, err := c.Registry(ctx)
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
				n, _ := c.Len(ctx)
				So(n, ShouldEqual, 0)
			})
		})

		Convey("When competitions are cached with the standard ttl", func() {
			comps := []model.UpcomingCompetition{{ID: "PhilOpen2025", Name: "Philippine Open 2025", City: "Manila"}}
			So(c.PutCompetitions(ctx, comps, CompetitionsTTL), ShouldBeNil)

			got, ok, _ := c.Competitions(ctx)
			So(ok, ShouldBeTrue)
			So(got, ShouldResemble, comps)

			clk.Advance(CompetitionsTTL)
			_, ok, _ = c.Competitions(ctx)
			So(ok, ShouldBeFalse)
		})
	})
}
