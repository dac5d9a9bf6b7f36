package rankctl_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/pcarank/internal/adapters/http/api"
	service "github.com/okian/pcarank/internal/app"
	"github.com/okian/pcarank/internal/cutover"
	"github.com/okian/pcarank/internal/domain/model"
	"github.com/okian/pcarank/internal/rankctl"
	"github.com/okian/pcarank/pkg/logger"
)

func TestRunLoadTest(t *testing.T) {
	Convey("Given a server over an imported dataset", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		h := newHarness(t)
		svc := service.New(
			service.WithConfig(h.cfg),
			service.WithLogger(logger.Discard()),
			service.WithStore(h.store),
			service.WithDownloader(localExport{}),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		_, err := svc.RunCutover(ctx, cutover.Options{Download: true})
		So(err, ShouldBeNil)

		mux := http.NewServeMux()
		api.NewServer(svc, logger.Discard()).Register(ctx, mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		cfg := rankctl.LoadTestConfig{
			BaseURL:  srv.URL,
			Requests: 40,
			Workers:  4,
			Timeout:  5 * time.Second,
			Level:    model.National,
			Limit:    10,
			Events:   []string{"333", "444"},
		}

		Convey("When concurrent reads are issued", func() {
			stats, err := rankctl.RunLoadTest(ctx, cfg, logger.Discard())

			Convey("Then every answer is ordered and consistent", func() {
				So(err, ShouldBeNil)
				So(stats.Requests, ShouldEqual, 40)
				So(stats.Succeeded, ShouldEqual, 40)
				So(stats.Inconsistent, ShouldEqual, 0)
				So(stats.Statuses[http.StatusOK], ShouldEqual, 40)
			})
		})

		Convey("When a regional read has no area", func() {
			cfg.Level = model.Regional
			stats, err := rankctl.RunLoadTest(ctx, cfg, logger.Discard())

			Convey("Then the bad requests are counted as failures", func() {
				So(errors.Is(err, rankctl.ErrLoadTest), ShouldBeTrue)
				So(stats.Failed, ShouldEqual, 40)
				So(stats.Statuses[http.StatusBadRequest], ShouldEqual, 40)
			})
		})

		Convey("When the load test runs through the CLI", func() {
			err := h.run("loadtest", "--url", srv.URL, "--requests", "8", "--workers", "2", "--event", "333")

			Convey("Then a passing summary is printed", func() {
				So(err, ShouldBeNil)
				So(h.out.String(), ShouldContainSubstring, "succeeded")
				So(h.out.String(), ShouldContainSubstring, "PASS")
			})
		})
	})

	Convey("Given a server that is down", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := rankctl.RunLoadTest(context.Background(), rankctl.LoadTestConfig{
			BaseURL: srv.URL, Requests: 1, Workers: 1, Timeout: time.Second, Level: model.National, Limit: 1,
		}, logger.Discard())

		Convey("Then the health check stops the run", func() {
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "health check")
		})
	})
}
