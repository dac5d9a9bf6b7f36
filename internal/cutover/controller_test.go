package cutover_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/pcarank/internal/adapters/cache"
	"github.com/okian/pcarank/internal/adapters/repository"
	"github.com/okian/pcarank/internal/cutover"
	"github.com/okian/pcarank/internal/domain/model"
	"github.com/okian/pcarank/internal/registry"
	"github.com/okian/pcarank/pkg/logger"
)

type harness struct {
	store    *repository.MemStore
	cache    *cache.Cache
	registry *registry.Registry
	dataDir  string
	liteDir  string
}

func newHarness(t *testing.T) *harness {
	ctx := context.Background()
	store := repository.NewMemStore(repository.WithLogger(logger.Discard()))
	c := cache.New(cache.NewMemory(), cache.WithLogger(logger.Discard()))
	reg := registry.New(store, c, registry.WithLogger(logger.Discard()))
	if _, err := reg.Init(ctx); err != nil {
		t.Fatal(err)
	}
	root := t.TempDir()
	return &harness{
		store:    store,
		cache:    c,
		registry: reg,
		dataDir:  filepath.Join(root, "extracted"),
		liteDir:  filepath.Join(root, "lite"),
	}
}

func (h *harness) controller(importer cutover.Importer, opts ...cutover.Option) *cutover.Controller {
	if importer == nil {
		importer = cutover.NewTSVImporter(h.store, "Philippines", 0, logger.Discard())
	}
	base := []cutover.Option{
		cutover.WithLogger(logger.Discard()),
		cutover.WithDataDir(h.dataDir),
		cutover.WithLiteDir(h.liteDir),
	}
	return cutover.New(h.registry, h.store, importer, cutover.NewDatasetValidator(h.store), append(base, opts...)...)
}

func (h *harness) active() model.DatasetHandle {
	ds, _ := h.registry.Active(context.Background())
	return ds
}

// blockingImporter waits for its context, so a run can be observed in IMPORTING.
type blockingImporter struct{ entered chan struct{} }

func (b *blockingImporter) Import(ctx context.Context, _ model.DatasetHandle, _ string) (cutover.ImportStats, error) {
	close(b.entered)
	<-ctx.Done()
	return cutover.ImportStats{}, ctx.Err()
}

type countingRecomputer struct{ calls atomic.Int32 }

func (r *countingRecomputer) RecomputeAll(_ context.Context, limit int) ([]string, error) {
	r.calls.Add(1)
	return []string{"task-1"}, nil
}

func zipExport(t *testing.T, files map[string]string) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create("WCA_export/" + name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestControllerRun(t *testing.T) {
	ctx := context.Background()

	Convey("Given an extracted export and an initialised registry", t, func() {
		h := newHarness(t)
		writeExport(t, h.dataDir, exportFiles("2026-10-01T00:00:00Z"))
		ctrl := h.controller(nil)

		Convey("When a cutover runs", func() {
			rep, err := ctrl.Run(ctx, cutover.Options{})
			So(err, ShouldBeNil)

			Convey("Then the inactive dataset becomes active", func() {
				So(rep.Target, ShouldEqual, model.DatasetB)
				So(rep.Active, ShouldEqual, model.DatasetB)
				So(h.active(), ShouldEqual, model.DatasetB)
				So(rep.Imported.Results, ShouldEqual, 2)
			})

			Convey("Then the export is recorded as imported", func() {
				last, ok, err := h.store.LastExport(ctx)
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(last.ExportDate, ShouldEqual, "2026-10-01T00:00:00Z")
			})

			Convey("Then the controller is idle with a report", func() {
				st := ctrl.Status()
				So(st.State, ShouldEqual, cutover.Idle)
				So(st.Last, ShouldNotBeNil)
				So(st.Last.RunID, ShouldEqual, rep.RunID)
			})

			Convey("Then the same export is skipped next time", func() {
				rep, err := ctrl.Run(ctx, cutover.Options{})
				So(err, ShouldBeNil)
				So(rep.Skipped, ShouldBeTrue)
				So(h.active(), ShouldEqual, model.DatasetB)
			})

			Convey("Then force imports it again into the other dataset", func() {
				rep, err := ctrl.Run(ctx, cutover.Options{Force: true})
				So(err, ShouldBeNil)
				So(rep.Skipped, ShouldBeFalse)
				So(h.active(), ShouldEqual, model.DatasetA)
			})
		})

		Convey("When validation rejects the import", func() {
			files := exportFiles("2026-10-02T00:00:00Z")
			files[cutover.ResultsFile] = lines(
				"id\t"+resultsHeader,
				"7\tManilaOpen2019\t333\tf\t1\t651\t702\tJuan Dela Cruz\t2019DELA01\tPhilippines\ta\t651\t702\t800\t-1\t690\t\t",
				"7\tManilaOpen2019\t333\tf\t2\t720\t760\tJuan Dela Cruz\t2019DELA01\tPhilippines\ta\t720\t760\t780\t740\t770\t\t",
			)
			writeExport(t, h.dataDir, files)

			_, err := ctrl.Run(ctx, cutover.Options{})

			Convey("Then the registry is untouched and the error is an import error", func() {
				So(errors.Is(err, cutover.ErrImport), ShouldBeTrue)
				So(h.active(), ShouldEqual, model.DatasetA)
				_, ok, _ := h.store.LastExport(ctx)
				So(ok, ShouldBeFalse)
			})

			Convey("Then the partial dataset is kept for diagnosis", func() {
				ids, _ := h.store.ResultIDStats(ctx, model.DatasetB)
				So(ids.Rows, ShouldEqual, int64(2))
			})
		})

		Convey("When running in test mode", func() {
			files := exportFiles("lite")
			files[cutover.ResultsFile] = lines(resultsHeader)
			writeExport(t, h.liteDir, files)

			rep, err := ctrl.Run(ctx, cutover.Options{TestMode: true, Download: true})

			Convey("Then the lite export is imported without downloading", func() {
				So(err, ShouldBeNil)
				So(rep.Imported.Results, ShouldEqual, 0)
				So(h.active(), ShouldEqual, model.DatasetB)
			})
		})

		Convey("When post-swap policies are enabled", func() {
			q := model.RankingQuery{EventID: "333", RankType: model.Single, Level: model.National, Limit: 10}
			So(h.cache.PutRankings(ctx, model.DatasetA, q, []model.RankingRow{{Rank: 1}}), ShouldBeNil)

			rec := &countingRecomputer{}
			ctrl := h.controller(nil, cutover.WithRankingInvalidation(h.cache), cutover.WithRecomputeAfterSwap(rec, 100))
			rep, err := ctrl.Run(ctx, cutover.Options{})
			So(err, ShouldBeNil)

			Convey("Then cached rankings are dropped and a recompute is scheduled", func() {
				So(rep.Invalidated, ShouldEqual, 1)
				_, ok, _ := h.cache.Rankings(ctx, model.DatasetA, q)
				So(ok, ShouldBeFalse)
				So(rec.calls.Load(), ShouldEqual, int32(1))
				So(rep.RecomputeTasks, ShouldResemble, []string{"task-1"})
			})
		})

		Convey("When only the ranking cache is wired", func() {
			q := model.RankingQuery{EventID: "333", RankType: model.Single, Level: model.National, Limit: 10}
			So(h.cache.PutRankings(ctx, model.DatasetA, q, []model.RankingRow{{Rank: 1}}), ShouldBeNil)
			So(h.cache.PutRankings(ctx, model.DatasetB, q, []model.RankingRow{{Rank: 9}}), ShouldBeNil)

			ctrl := h.controller(nil, cutover.WithRankingCache(h.cache))
			rep, err := ctrl.Run(ctx, cutover.Options{})
			So(err, ShouldBeNil)

			Convey("Then leftovers of the reloaded dataset are dropped before the import", func() {
				So(rep.Target, ShouldEqual, model.DatasetB)
				_, ok, _ := h.cache.Rankings(ctx, model.DatasetB, q)
				So(ok, ShouldBeFalse)
			})

			Convey("Then the previous dataset's rankings stay under its own key", func() {
				_, ok, _ := h.cache.Rankings(ctx, model.DatasetA, q)
				So(ok, ShouldBeTrue)
				So(rep.Invalidated, ShouldEqual, 0)
			})
		})
	})
}

func TestControllerDownload(t *testing.T) {
	ctx := context.Background()

	Convey("Given an export server", t, func() {
		h := newHarness(t)
		archive := zipExport(t, exportFiles("2026-10-03T00:00:00Z"))
		var fail atomic.Bool
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if fail.Load() {
				http.Error(w, "maintenance", http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write(archive)
		}))
		defer srv.Close()

		dl := cutover.NewHTTPDownloader(srv.URL, srv.Client(), logger.Discard())
		ctrl := h.controller(nil, cutover.WithDownloader(dl))

		Convey("When downloading succeeds", func() {
			rep, err := ctrl.Run(ctx, cutover.Options{Download: true})

			Convey("Then the extracted export is imported and activated", func() {
				So(err, ShouldBeNil)
				So(rep.Export.ExportDate, ShouldEqual, "2026-10-03T00:00:00Z")
				So(h.active(), ShouldEqual, model.DatasetB)
			})
		})

		Convey("When the server fails", func() {
			fail.Store(true)
			_, err := ctrl.Run(ctx, cutover.Options{Download: true})

			Convey("Then the run aborts and stays on the prior dataset", func() {
				So(errors.Is(err, cutover.ErrDownload), ShouldBeTrue)
				So(h.active(), ShouldEqual, model.DatasetA)
				So(ctrl.Status().State, ShouldEqual, cutover.Idle)
			})
		})
	})

	Convey("Given no downloader", t, func() {
		h := newHarness(t)
		_, err := h.controller(nil).Run(ctx, cutover.Options{Download: true})
		So(errors.Is(err, cutover.ErrDownload), ShouldBeTrue)
	})
}

func TestControllerCancel(t *testing.T) {
	ctx := context.Background()

	Convey("Given an idle controller", t, func() {
		h := newHarness(t)
		So(errors.Is(h.controller(nil).Cancel(), cutover.ErrNotCancellable), ShouldBeTrue)
	})

	Convey("Given a run blocked in IMPORTING", t, func() {
		h := newHarness(t)
		writeExport(t, h.dataDir, exportFiles("2026-10-04T00:00:00Z"))
		im := &blockingImporter{entered: make(chan struct{})}
		ctrl := h.controller(im)

		id, err := ctrl.Start(ctx, cutover.Options{})
		So(err, ShouldBeNil)
		So(id, ShouldNotBeEmpty)

		select {
		case <-im.entered:
		case <-time.After(2 * time.Second):
			t.Fatal("import never started")
		}

		Convey("A second run is rejected", func() {
			_, err := ctrl.Run(ctx, cutover.Options{})
			So(errors.Is(err, cutover.ErrInProgress), ShouldBeTrue)
			So(ctrl.Status().State, ShouldEqual, cutover.Importing)
			So(ctrl.Status().RunID, ShouldEqual, id)
			So(ctrl.Cancel(), ShouldBeNil)
		})

		Convey("A manual toggle is refused until the run ends", func() {
			_, err := ctrl.Toggle(ctx)
			So(errors.Is(err, cutover.ErrInProgress), ShouldBeTrue)
			So(h.active(), ShouldEqual, model.DatasetA)
			So(ctrl.Cancel(), ShouldBeNil)
		})

		Convey("Cancel aborts the run without swapping", func() {
			So(ctrl.Cancel(), ShouldBeNil)

			deadline := time.Now().Add(2 * time.Second)
			for ctrl.Status().Last == nil && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			st := ctrl.Status()
			So(st.State, ShouldEqual, cutover.Idle)
			So(st.Last, ShouldNotBeNil)
			So(st.Last.Cancelled, ShouldBeTrue)
			So(st.Last.Error, ShouldEqual, cutover.ErrCancelled.Error())
			So(h.active(), ShouldEqual, model.DatasetA)
		})
	})
}

// foreignSwapImporter imports normally, then swaps the registry row behind
// the controller's back the way a second process would.
type foreignSwapImporter struct {
	cutover.Importer
	store *repository.MemStore
}

func (f foreignSwapImporter) Import(ctx context.Context, ds model.DatasetHandle, dir string) (cutover.ImportStats, error) {
	stats, err := f.Importer.Import(ctx, ds, dir)
	if err != nil {
		return stats, err
	}
	_, err = f.store.SwapRegistry(ctx)
	return stats, err
}

func TestControllerRegistryChanges(t *testing.T) {
	ctx := context.Background()

	Convey("Given a cached registry row that another process has since swapped", t, func() {
		h := newHarness(t)
		writeExport(t, h.dataDir, exportFiles("2026-10-05T00:00:00Z"))

		st, err := h.registry.Snapshot(ctx)
		So(err, ShouldBeNil)
		So(st.Active, ShouldEqual, model.DatasetA)
		_, err = h.store.SwapRegistry(ctx)
		So(err, ShouldBeNil)

		stale, _ := h.registry.Snapshot(ctx)
		So(stale.Active, ShouldEqual, model.DatasetA)

		Convey("When a cutover runs", func() {
			rep, err := h.controller(nil).Run(ctx, cutover.Options{})

			Convey("Then it loads the dataset that is really inactive", func() {
				So(err, ShouldBeNil)
				So(rep.Target, ShouldEqual, model.DatasetA)
				So(rep.Active, ShouldEqual, model.DatasetA)

				truth, _ := h.store.Registry(ctx)
				So(truth.Active, ShouldEqual, model.DatasetA)
			})
		})
	})

	Convey("Given a swap by another process while the import runs", t, func() {
		h := newHarness(t)
		writeExport(t, h.dataDir, exportFiles("2026-10-06T00:00:00Z"))
		im := foreignSwapImporter{
			Importer: cutover.NewTSVImporter(h.store, "Philippines", 0, logger.Discard()),
			store:    h.store,
		}

		rep, err := h.controller(im).Run(ctx, cutover.Options{})

		Convey("Then the run fails instead of activating the wrong dataset", func() {
			So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
			So(rep.Target, ShouldEqual, model.DatasetB)

			truth, _ := h.store.Registry(ctx)
			So(truth.Active, ShouldEqual, model.DatasetB)
			_, ok, _ := h.store.LastExport(ctx)
			So(ok, ShouldBeFalse)
		})
	})

	Convey("Given an idle controller", t, func() {
		h := newHarness(t)
		ctrl := h.controller(nil)

		Convey("A manual toggle swaps the datasets", func() {
			active, err := ctrl.Toggle(ctx)
			So(err, ShouldBeNil)
			So(active, ShouldEqual, model.DatasetB)
			So(h.active(), ShouldEqual, model.DatasetB)
		})
	})
}
