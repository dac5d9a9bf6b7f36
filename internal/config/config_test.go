package config_test

import (
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/okian/pcarank/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.HomeCountry, convey.ShouldEqual, "Philippines")
			convey.So(cfg.DefaultLimit, convey.ShouldEqual, 10)
			convey.So(cfg.MaxLimit, convey.ShouldEqual, 1000)
			convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.CompetitionsTTL, convey.ShouldEqual, 600*time.Second)
			convey.So(cfg.RegistryTTL, convey.ShouldEqual, 30*time.Second)
			convey.So(cfg.CutoverInterval, convey.ShouldEqual, time.Duration(0))
			convey.So(cfg.RecomputeAfterCutover, convey.ShouldBeFalse)
			convey.So(cfg.InvalidateAfterCutover, convey.ShouldBeFalse)
		})

		convey.Convey("Then the defaults validate", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a config with several problems", t, func() {
		cfg := config.New()
		cfg.Addr = ""
		cfg.DefaultLimit = 0
		cfg.StoreBackend = "oracle"
		cfg.CacheBackend = "postgres"
		cfg.CacheDSN = ""

		err := cfg.Validate()

		convey.Convey("Then every problem is reported", func() {
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			msg := err.Error()
			convey.So(msg, convey.ShouldContainSubstring, "addr must not be empty")
			convey.So(msg, convey.ShouldContainSubstring, "default_limit must be positive")
			convey.So(msg, convey.ShouldContainSubstring, `store_backend "oracle"`)
			convey.So(msg, convey.ShouldContainSubstring, "cache_dsn is required")
		})
	})

	convey.Convey("Given a max limit below the default", t, func() {
		cfg := config.New()
		cfg.MaxLimit = 5

		err := cfg.Validate()
		convey.So(err, convey.ShouldNotBeNil)
		convey.So(strings.Contains(err.Error(), "max_limit 5 is below default_limit 10"), convey.ShouldBeTrue)
	})

	convey.Convey("Given the memory store and no cache", t, func() {
		cfg := config.New()
		cfg.StoreBackend = "memory"
		cfg.StoreDSN = ""
		cfg.CacheBackend = "none"

		convey.So(cfg.Validate(), convey.ShouldBeNil)
	})
}
