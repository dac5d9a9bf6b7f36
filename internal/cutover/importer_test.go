package cutover_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/pcarank/internal/adapters/repository"
	"github.com/okian/pcarank/internal/cutover"
	"github.com/okian/pcarank/internal/domain/model"
	"github.com/okian/pcarank/pkg/logger"
)

func TestTSVImporter(t *testing.T) {
	ctx := context.Background()

	Convey("Given an extracted export", t, func() {
		dir := writeExport(t, t.TempDir(), exportFiles("2026-10-01T00:00:00Z"))
		store := repository.NewMemStore(repository.WithLogger(logger.Discard()))
		im := cutover.NewTSVImporter(store, "Philippines", 1, logger.Discard())

		Convey("When importing into dataset B", func() {
			st, err := im.Import(ctx, model.DatasetB, dir)
			So(err, ShouldBeNil)

			Convey("Then only home-country competitors are loaded", func() {
				So(st.Persons, ShouldEqual, 1)
				So(st.Ranks, ShouldEqual, 2)
				So(st.Results, ShouldEqual, 2)
				So(st.Events, ShouldEqual, 1)
				So(st.Competitions, ShouldEqual, 1)

				p, err := store.Person(ctx, model.DatasetB, "2019DELA01")
				So(err, ShouldBeNil)
				So(p.Name, ShouldEqual, "Juan Dela Cruz")

				_, err = store.Person(ctx, model.DatasetB, "2018SMIT01")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})

			Convey("Then result ids are synthesised in file order", func() {
				So(st.SyntheticIDs, ShouldBeTrue)
				ids, err := store.ResultIDStats(ctx, model.DatasetB)
				So(err, ShouldBeNil)
				So(ids.Rows, ShouldEqual, int64(2))
				So(ids.Distinct, ShouldEqual, int64(2))
				So(ids.Missing, ShouldEqual, int64(0))
			})

			Convey("Then attempts and lookups are parsed", func() {
				var got []model.Result
				err := store.ForEachResult(ctx, repository.ResultFilter{
					Dataset: model.DatasetB, EventID: "333", RankType: model.Single, CountryID: "Philippines",
				}, func(r model.Result) error {
					got = append(got, r)
					return nil
				})
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 2)
				So(got[0].ID, ShouldEqual, int64(1))
				So(got[0].Values, ShouldResemble, [5]int64{651, 702, 800, -1, 690})
				So(got[0].RegionalSingleRecord, ShouldEqual, "NR")

				f, err := store.Format(ctx, model.DatasetB, "a")
				So(err, ShouldBeNil)
				So(f.TrimmedMeanOfFive(), ShouldBeTrue)
			})

			Convey("Then the other dataset is untouched", func() {
				ids, err := store.ResultIDStats(ctx, model.DatasetA)
				So(err, ShouldBeNil)
				So(ids.Rows, ShouldEqual, int64(0))
			})

			Convey("Then a reimport replaces the dataset", func() {
				st, err := im.Import(ctx, model.DatasetB, dir)
				So(err, ShouldBeNil)
				So(st.Results, ShouldEqual, 2)
				ids, _ := store.ResultIDStats(ctx, model.DatasetB)
				So(ids.Rows, ShouldEqual, int64(2))
			})
		})

		Convey("When the results file carries ids", func() {
			files := exportFiles("x")
			files[cutover.ResultsFile] = lines(
				"id\t"+resultsHeader,
				"42\tManilaOpen2019\t333\tf\t1\t651\t702\tJuan Dela Cruz\t2019DELA01\tPhilippines\ta\t651\t702\t800\t-1\t690\t\t",
			)
			writeExport(t, dir, files)

			st, err := im.Import(ctx, model.DatasetA, dir)
			So(err, ShouldBeNil)
			So(st.SyntheticIDs, ShouldBeFalse)

			var ids []int64
			_ = store.ForEachResult(ctx, repository.ResultFilter{
				Dataset: model.DatasetA, EventID: "333", RankType: model.Single, CountryID: "Philippines",
			}, func(r model.Result) error {
				ids = append(ids, r.ID)
				return nil
			})
			So(ids, ShouldResemble, []int64{42})
		})

		Convey("When a file is missing", func() {
			So(os.Remove(filepath.Join(dir, cutover.RanksAverageFile)), ShouldBeNil)
			_, err := im.Import(ctx, model.DatasetB, dir)

			Convey("Then an import error names the entity", func() {
				So(errors.Is(err, cutover.ErrImport), ShouldBeTrue)
				var ie *cutover.ImportError
				So(errors.As(err, &ie), ShouldBeTrue)
				So(ie.Entity, ShouldEqual, "ranks_average")
			})
		})

		Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := im.Import(cctx, model.DatasetB, dir)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}

func TestDatasetValidator(t *testing.T) {
	ctx := context.Background()

	Convey("Given a dataset validator", t, func() {
		store := repository.NewMemStore(repository.WithLogger(logger.Discard()))
		v := cutover.NewDatasetValidator(store)
		_ = store.InsertEvents(ctx, model.DatasetB, []model.Event{{ID: "333", Name: "3x3x3 Cube", Format: "time"}})

		Convey("An empty dataset fails outside test mode", func() {
			So(errors.Is(v.Validate(ctx, model.DatasetB, false), cutover.ErrImport), ShouldBeTrue)
			So(v.Validate(ctx, model.DatasetB, true), ShouldBeNil)
		})

		Convey("Unique ids and known events pass", func() {
			_ = store.InsertResults(ctx, model.DatasetB, []model.Result{
				{ID: 1, EventID: "333", PersonID: "p1", Best: 700},
				{ID: 2, EventID: "333", PersonID: "p2", Best: 800},
			})
			So(v.Validate(ctx, model.DatasetB, false), ShouldBeNil)
		})

		Convey("Duplicate ids fail", func() {
			_ = store.InsertResults(ctx, model.DatasetB, []model.Result{
				{ID: 1, EventID: "333", PersonID: "p1", Best: 700},
				{ID: 1, EventID: "333", PersonID: "p2", Best: 800},
			})
			err := v.Validate(ctx, model.DatasetB, false)
			So(errors.Is(err, cutover.ErrImport), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "duplicate")
		})

		Convey("Missing ids fail", func() {
			_ = store.InsertResults(ctx, model.DatasetB, []model.Result{{EventID: "333", PersonID: "p1", Best: 700}})
			So(errors.Is(v.Validate(ctx, model.DatasetB, false), cutover.ErrImport), ShouldBeTrue)
		})

		Convey("Results of unknown events fail", func() {
			_ = store.InsertResults(ctx, model.DatasetB, []model.Result{{ID: 1, EventID: "magic", PersonID: "p1", Best: 700}})
			err := v.Validate(ctx, model.DatasetB, false)
			So(errors.Is(err, cutover.ErrImport), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "magic")
		})
	})
}

func TestTSVImporterRejectsBadCells(t *testing.T) {
	ctx := context.Background()

	Convey("Given a results file with a malformed outcome", t, func() {
		files := exportFiles("2026-10-07T00:00:00Z")
		files[cutover.ResultsFile] = lines(
			resultsHeader,
			"ManilaOpen2019\t333\tf\t1\t651\t702\tJuan Dela Cruz\t2019DELA01\tPhilippines\ta\t651\t702\t800\t-1\t690\tNR\t",
			"ManilaOpen2019\t333\tf\t2\t6.51\tabc\tJuan Dela Cruz\t2019DELA01\tPhilippines\ta\t651\t702\t800\t-1\t690\t\t",
		)
		dir := writeExport(t, t.TempDir(), files)
		store := repository.NewMemStore(repository.WithLogger(logger.Discard()))
		im := cutover.NewTSVImporter(store, "Philippines", 1, logger.Discard())

		_, err := im.Import(ctx, model.DatasetB, dir)

		Convey("Then the import fails and names the cell", func() {
			So(errors.Is(err, cutover.ErrImport), ShouldBeTrue)

			var perr *cutover.ParseError
			So(errors.As(err, &perr), ShouldBeTrue)
			So(perr.File, ShouldEqual, cutover.ResultsFile)
			So(perr.Line, ShouldEqual, 3)
			So(perr.Column, ShouldEqual, "best")
			So(perr.Value, ShouldEqual, "6.51")
		})
	})

	Convey("Given a malformed cell of a foreign competitor", t, func() {
		files := exportFiles("2026-10-07T00:00:00Z")
		files[cutover.ResultsFile] = lines(
			resultsHeader,
			"ManilaOpen2019\t333\tf\t1\t651\t702\tJuan Dela Cruz\t2019DELA01\tPhilippines\ta\t651\t702\t800\t-1\t690\tNR\t",
			"ManilaOpen2019\t333\tf\t2\toops\t550\tAlice Smith\t2018SMIT01\tUSA\ta\t500\t550\t560\t540\t600\t\t",
		)
		dir := writeExport(t, t.TempDir(), files)
		store := repository.NewMemStore(repository.WithLogger(logger.Discard()))

		st, err := cutover.NewTSVImporter(store, "Philippines", 1, logger.Discard()).Import(ctx, model.DatasetB, dir)

		Convey("Then the filtered row does not fail the import", func() {
			So(err, ShouldBeNil)
			So(st.Results, ShouldEqual, 1)
		})
	})

	Convey("Given NULL and empty numeric cells", t, func() {
		files := exportFiles("2026-10-07T00:00:00Z")
		files[cutover.ResultsFile] = lines(
			resultsHeader,
			"ManilaOpen2019\t333\tf\t1\t651\tNULL\tJuan Dela Cruz\t2019DELA01\tPhilippines\ta\t651\t\t\t\t\tNR\t",
		)
		dir := writeExport(t, t.TempDir(), files)
		store := repository.NewMemStore(repository.WithLogger(logger.Discard()))

		st, err := cutover.NewTSVImporter(store, "Philippines", 1, logger.Discard()).Import(ctx, model.DatasetB, dir)

		Convey("Then they load as no result", func() {
			So(err, ShouldBeNil)
			So(st.Results, ShouldEqual, 1)

			var average []model.Result
			So(store.ForEachResult(ctx, repository.ResultFilter{
				Dataset: model.DatasetB, EventID: "333", RankType: model.Average, CountryID: "Philippines",
			}, func(r model.Result) error {
				average = append(average, r)
				return nil
			}), ShouldBeNil)
			So(average, ShouldBeEmpty)
		})
	})

	Convey("Given a results header without the average column", t, func() {
		files := exportFiles("2026-10-07T00:00:00Z")
		files[cutover.ResultsFile] = lines(
			"competitionId\teventId\troundTypeId\tpos\tbest\tpersonName\tpersonId\tpersonCountryId\tformatId\tvalue1\tvalue2\tvalue3\tvalue4\tvalue5",
			"ManilaOpen2019\t333\tf\t1\t651\tJuan Dela Cruz\t2019DELA01\tPhilippines\ta\t651\t702\t800\t-1\t690",
		)
		dir := writeExport(t, t.TempDir(), files)
		store := repository.NewMemStore(repository.WithLogger(logger.Discard()))

		_, err := cutover.NewTSVImporter(store, "Philippines", 1, logger.Discard()).Import(ctx, model.DatasetB, dir)

		Convey("Then the import fails before loading any result", func() {
			So(errors.Is(err, cutover.ErrImport), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "missing columns average")

			ids, _ := store.ResultIDStats(ctx, model.DatasetB)
			So(ids.Rows, ShouldEqual, int64(0))
		})
	})
}

func TestControllerRejectsMalformedExport(t *testing.T) {
	ctx := context.Background()

	Convey("Given an export whose results carry a non-numeric average", t, func() {
		h := newHarness(t)
		files := exportFiles("2026-10-08T00:00:00Z")
		files[cutover.ResultsFile] = lines(
			resultsHeader,
			"ManilaOpen2019\t333\tf\t1\t651\tabc\tJuan Dela Cruz\t2019DELA01\tPhilippines\ta\t651\t702\t800\t-1\t690\tNR\t",
		)
		writeExport(t, h.dataDir, files)

		_, err := h.controller(nil).Run(ctx, cutover.Options{})

		Convey("Then nothing is swapped in", func() {
			var perr *cutover.ParseError
			So(errors.As(err, &perr), ShouldBeTrue)
			So(perr.Column, ShouldEqual, "average")
			So(h.active(), ShouldEqual, model.DatasetA)
			_, ok, _ := h.store.LastExport(ctx)
			So(ok, ShouldBeFalse)
		})
	})
}
