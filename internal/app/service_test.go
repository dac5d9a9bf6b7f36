package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	service "github.com/okian/pcarank/internal/app"
	"github.com/okian/pcarank/internal/config"
	"github.com/okian/pcarank/internal/domain/model"
	"github.com/okian/pcarank/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func memoryConfig() *config.Config {
	cfg := config.New()
	cfg.StoreBackend = "memory"
	cfg.StoreDSN = ""
	cfg.CacheBackend = "memory"
	cfg.ExportURL = ""
	return cfg
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should have sensible defaults", func() {
			So(svc, ShouldNotBeNil)
			So(svc.DefaultLimit(), ShouldEqual, 10)
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(
			service.WithConfig(memoryConfig()),
			service.WithWorkerCount(8),
			service.WithQueueSize(50),
		)

		Convey("Then the options are reflected in its stats", func() {
			stats := svc.GetStats()
			So(stats["workerCount"], ShouldEqual, 8)
			So(stats["queueSize"], ShouldEqual, 50)
			So(stats["started"], ShouldEqual, false)
		})
	})
}

func TestService_NotStarted(t *testing.T) {
	Convey("Given a service that was never started", t, func() {
		svc := service.New(service.WithConfig(memoryConfig()))
		ctx := context.Background()

		Convey("Then every operation reports it", func() {
			_, err := svc.GetRankings(ctx, model.RankingQuery{EventID: "333", RankType: model.Single, Level: model.National})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)

			_, err = svc.EnqueueRecompute(ctx, model.National, "", 10)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)

			So(errors.Is(svc.CancelCutover(), service.ErrNotStarted), ShouldBeTrue)

			_, err = svc.ActiveDataset(ctx)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})

		Convey("And Stop is a no-op", func() {
			So(func() { svc.Stop() }, ShouldNotPanic)
		})
	})
}

func TestService_Start(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(service.WithConfig(memoryConfig()), service.WithWorkerCount(2))
		// Ensure service is stopped after test
		defer svc.Stop()

		Convey("When starting the service", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err := svc.Start(ctx)

			Convey("Then it should start successfully", func() {
				So(err, ShouldBeNil)
			})

			Convey("And it should be marked as started", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["workers"], ShouldEqual, 2)
				So(stats["cutoverState"], ShouldEqual, "IDLE")
				So(stats["activeDataset"], ShouldEqual, "A")
			})

			Convey("And starting twice is harmless", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})
		})
	})

	Convey("Given a configuration naming an unknown cache backend", t, func() {
		cfg := memoryConfig()
		cfg.CacheBackend = "redis"
		svc := service.New(service.WithConfig(cfg))

		Convey("Then Start fails", func() {
			err := svc.Start(context.Background())
			So(err, ShouldNotBeNil)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})
}

func TestService_Stop(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := service.New(service.WithConfig(memoryConfig()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := svc.Start(ctx)
		So(err, ShouldBeNil)

		Convey("When stopping the service", func() {
			svc.Stop()

			Convey("Then it should be marked as stopped", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, false)
			})

			Convey("And stopping again is harmless", func() {
				So(func() { svc.Stop() }, ShouldNotPanic)
			})
		})
	})
}
