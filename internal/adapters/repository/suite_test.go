package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/pcarank/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedResults() []model.Result {
	return []model.Result{
		{ID: 3, CompetitionID: "PhilOpen2023", EventID: "333", RoundTypeID: "f", Best: 700, Average: 810,
			PersonName: "Ana Cruz", PersonID: "2015CRUZ01", CountryID: "Philippines", FormatID: "a",
			Values: [5]int64{700, 800, 820, 810, 900}},
		{ID: 1, CompetitionID: "ManilaCube2022", EventID: "333", RoundTypeID: "1", Best: 710, Average: 790,
			PersonName: "Ben Reyes", PersonID: "2016REYE01", CountryID: "Philippines", FormatID: "a",
			Values: [5]int64{710, 780, 790, 800, -1}},
		{ID: 2, CompetitionID: "ManilaCube2022", EventID: "333", RoundTypeID: "f", Best: 690, Average: 0,
			PersonName: "Ana Cruz", PersonID: "2015CRUZ01", CountryID: "Philippines", FormatID: "a",
			Values: [5]int64{690, -1, -1, 0, 0}},
		{ID: 4, CompetitionID: "Tokyo2023", EventID: "333", RoundTypeID: "f", Best: 500, Average: 600,
			PersonName: "Kenji", PersonID: "2010KENJ01", CountryID: "Japan", FormatID: "a"},
		{ID: 5, CompetitionID: "PhilOpen2023", EventID: "222", RoundTypeID: "f", Best: 150, Average: 0,
			PersonName: "Ana Cruz", PersonID: "2015CRUZ01", CountryID: "Philippines", FormatID: "a"},
	}
}

func collect(t *testing.T, s Store, f ResultFilter) []int64 {
	t.Helper()
	var ids []int64
	require.NoError(t, s.ForEachResult(context.Background(), f, func(r model.Result) error {
		ids = append(ids, r.ID)
		return nil
	}))
	return ids
}

// runStoreSuite checks behaviour every Store implementation must share.
func runStoreSuite(t *testing.T, s Store) {
	ctx := context.Background()
	ds := model.DatasetB

	t.Run("registry", func(t *testing.T) {
		_, err := s.Registry(ctx)
		assert.True(t, errors.Is(err, ErrConfig))

		_, err = s.SwapRegistry(ctx)
		assert.True(t, errors.Is(err, ErrConfig))

		st, err := s.InitRegistry(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.DatasetA, st.Active)

		_, err = s.InitRegistry(ctx)
		assert.True(t, errors.Is(err, ErrInvariantViolation))

		st, err = s.SwapRegistry(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.RegistryState{Active: model.DatasetB, Inactive: model.DatasetA}, st)

		st, err = s.Registry(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.DatasetB, st.Active)

		st, err = s.SwapRegistry(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.DatasetA, st.Active)

		// Promoting the active dataset is a lost race, not a swap.
		_, err = s.PromoteRegistry(ctx, model.DatasetA)
		assert.True(t, errors.Is(err, ErrConflict))
		st, err = s.Registry(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.DatasetA, st.Active)

		st, err = s.PromoteRegistry(ctx, model.DatasetB)
		require.NoError(t, err)
		assert.Equal(t, model.RegistryState{Active: model.DatasetB, Inactive: model.DatasetA}, st)

		st, err = s.SwapRegistry(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.DatasetA, st.Active)
	})

	t.Run("load and read results", func(t *testing.T) {
		require.NoError(t, s.Truncate(ctx, ds))
		require.NoError(t, s.InsertEvents(ctx, ds, []model.Event{
			{ID: "333", Name: "3x3x3 Cube", Rank: 10, Format: "time", CellName: "3x3x3"},
			{ID: "222", Name: "2x2x2 Cube", Rank: 20, Format: "time", CellName: "2x2x2"},
		}))
		require.NoError(t, s.InsertFormats(ctx, ds, []model.Format{
			{ID: "a", Name: "Average of 5", SortBy: "average", SortBySecond: "single", ExpectedSolveCount: 5, TrimFastestN: 1, TrimSlowestN: 1},
		}))
		require.NoError(t, s.InsertResults(ctx, ds, seedResults()))

		single := ResultFilter{Dataset: ds, EventID: "333", RankType: model.Single, CountryID: "Philippines"}
		assert.Equal(t, []int64{2, 3, 1}, collect(t, s, single))

		average := single
		average.RankType = model.Average
		assert.Equal(t, []int64{1, 3}, collect(t, s, average))

		restricted := single
		restricted.PersonIDs = []string{"2016REYE01"}
		assert.Equal(t, []int64{1}, collect(t, s, restricted))

		restricted.PersonIDs = []string{}
		assert.Empty(t, collect(t, s, restricted))

		var seen int
		require.NoError(t, s.ForEachResult(ctx, single, func(model.Result) error {
			seen++
			return ErrStop
		}))
		assert.Equal(t, 1, seen)

		boom := errors.New("boom")
		err := s.ForEachResult(ctx, single, func(model.Result) error { return boom })
		assert.True(t, errors.Is(err, boom))

		// Other dataset is untouched.
		assert.Empty(t, collect(t, s, ResultFilter{Dataset: model.DatasetA, EventID: "333", RankType: model.Single}))
	})

	t.Run("catalog", func(t *testing.T) {
		e, err := s.Event(ctx, ds, "333")
		require.NoError(t, err)
		assert.Equal(t, "time", e.Format)

		_, err = s.Event(ctx, ds, "magic")
		assert.True(t, errors.Is(err, ErrNotFound))

		events, err := s.Events(ctx, ds)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "333", events[0].ID)

		f, err := s.Format(ctx, ds, "a")
		require.NoError(t, err)
		assert.True(t, f.TrimmedMeanOfFive())

		require.NoError(t, s.InsertPersons(ctx, ds, []model.Person{{ID: "2015CRUZ01", Name: "Ana Cruz", CountryID: "Philippines", Gender: "f"}}))
		p, err := s.Person(ctx, ds, "2015CRUZ01")
		require.NoError(t, err)
		assert.Equal(t, "Ana Cruz", p.Name)

		_, err = s.Person(ctx, ds, "nobody")
		assert.True(t, errors.Is(err, ErrNotFound))

		require.NoError(t, s.InsertRanks(ctx, ds, []model.PersonalRank{
			{PersonID: "2015CRUZ01", EventID: "333", RankType: model.Single, Best: 690, WorldRank: 5000, ContinentRank: 900, CountryRank: 3},
			{PersonID: "2015CRUZ01", EventID: "333", RankType: model.Average, Best: 810, WorldRank: 6000, ContinentRank: 1000, CountryRank: 4},
		}))
		ranks, err := s.PersonalRanks(ctx, ds, "2015CRUZ01")
		require.NoError(t, err)
		assert.Len(t, ranks, 2)
	})

	t.Run("career stats", func(t *testing.T) {
		other := model.DatasetA
		require.NoError(t, s.Truncate(ctx, other))
		require.NoError(t, s.InsertRoundTypes(ctx, other, []model.RoundType{
			{ID: "1", Name: "First round"},
			{ID: "f", Name: "Final", Final: true},
		}))
		require.NoError(t, s.InsertResults(ctx, other, []model.Result{
			{ID: 1, CompetitionID: "ManilaCube2022", EventID: "333", RoundTypeID: "f", Pos: 1, Best: 650,
				PersonID: "2019DELA01", CountryID: "Philippines", Values: [5]int64{650, 700, -1, 0, 720},
				RegionalSingleRecord: "NR", RegionalAverageRecord: "AsR"},
			{ID: 2, CompetitionID: "ManilaCube2022", EventID: "222", RoundTypeID: "1", Pos: 2, Best: 200,
				PersonID: "2019DELA01", CountryID: "Philippines", Values: [5]int64{200, 210, 220, 230, 240}},
			{ID: 3, CompetitionID: "PhilOpen2023", EventID: "333", RoundTypeID: "f", Pos: 3, Best: 640,
				PersonID: "2019DELA01", CountryID: "Philippines", Values: [5]int64{640, -2, 0, 0, 0},
				RegionalSingleRecord: "WR"},
			{ID: 4, CompetitionID: "PhilOpen2023", EventID: "333bf", RoundTypeID: "f", Pos: 2, Best: -1,
				PersonID: "2019DELA01", CountryID: "Philippines", Values: [5]int64{-1, -1, -1, 0, 0}},
			{ID: 5, CompetitionID: "PhilOpen2023", EventID: "333", RoundTypeID: "f", Pos: 1, Best: 600,
				PersonID: "2015CRUZ01", CountryID: "Philippines", Values: [5]int64{600, 610, 620, 630, 640},
				RegionalSingleRecord: "NR", RegionalAverageRecord: "NR"},
		}))

		st, err := s.CareerStats(ctx, other, "2019DELA01")
		require.NoError(t, err)
		assert.Equal(t, model.CareerStats{
			Competitions:       2,
			Solves:             9,
			NationalRecords:    1,
			ContinentalRecords: 1,
			WorldRecords:       1,
			Gold:               1,
			Bronze:             1,
		}, st)

		st, err = s.CareerStats(ctx, other, "nobody")
		require.NoError(t, err)
		assert.Equal(t, model.CareerStats{}, st)

		_, err = s.CareerStats(ctx, model.DatasetHandle("C"), "2019DELA01")
		assert.True(t, errors.Is(err, ErrInvalidDataset))

		require.NoError(t, s.Truncate(ctx, other))
	})

	t.Run("validation helpers", func(t *testing.T) {
		st, err := s.ResultIDStats(ctx, ds)
		require.NoError(t, err)
		assert.Equal(t, IDStats{Rows: 5, Distinct: 5, Missing: 0}, st)

		orphans, err := s.OrphanEvents(ctx, ds)
		require.NoError(t, err)
		assert.Empty(t, orphans)

		require.NoError(t, s.InsertResults(ctx, ds, []model.Result{
			{ID: 5, EventID: "clock", PersonID: "2015CRUZ01", CountryID: "Philippines", Best: 900},
		}))
		st, err = s.ResultIDStats(ctx, ds)
		require.NoError(t, err)
		assert.Equal(t, int64(6), st.Rows)
		assert.Equal(t, int64(5), st.Distinct)

		orphans, err = s.OrphanEvents(ctx, ds)
		require.NoError(t, err)
		assert.Equal(t, []string{"clock"}, orphans)

		require.NoError(t, s.Truncate(ctx, ds))
		st, err = s.ResultIDStats(ctx, ds)
		require.NoError(t, err)
		assert.Equal(t, IDStats{}, st)
	})

	t.Run("export metadata", func(t *testing.T) {
		_, ok, err := s.LastExport(ctx)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.RecordExport(ctx, model.ExportMetadata{ExportDate: "2024-01-01T00:00:00Z", ExportFormatVersion: "1.0.0"}))
		require.NoError(t, s.RecordExport(ctx, model.ExportMetadata{ExportDate: "2024-02-01T00:00:00Z", ExportFormatVersion: "1.0.0"}))

		meta, ok, err := s.LastExport(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "2024-02-01T00:00:00Z", meta.ExportDate)
		assert.False(t, meta.ImportedAt.IsZero())
	})

	t.Run("profiles", func(t *testing.T) {
		require.NoError(t, s.PutProfile(ctx, model.Profile{PersonID: "2015CRUZ01", Region: "NCR", CityProvince: "Quezon City"}))
		require.NoError(t, s.PutProfile(ctx, model.Profile{PersonID: "2016REYE01", Region: "ncr ", CityProvince: "Manila"}))
		require.NoError(t, s.PutProfile(ctx, model.Profile{PersonID: "2017LIMM01", Region: "Central Visayas"}))
		require.NoError(t, s.PutProfile(ctx, model.Profile{PersonID: "2017LIMM01", Region: "Central Visayas", CityProvince: "Cebu"}))

		ids, err := s.PersonIDsByArea(ctx, model.Regional, "NCR")
		require.NoError(t, err)
		assert.Equal(t, []string{"2015CRUZ01", "2016REYE01"}, ids)

		ids, err = s.PersonIDsByArea(ctx, model.Local, "atlantis")
		require.NoError(t, err)
		assert.Empty(t, ids)

		areas, err := s.Areas(ctx, model.Regional)
		require.NoError(t, err)
		assert.Equal(t, []string{"central visayas", "ncr"}, areas)

		areas, err = s.Areas(ctx, model.Local)
		require.NoError(t, err)
		assert.Equal(t, []string{"cebu", "manila", "quezon city"}, areas)

		p, err := s.Profile(ctx, "2017LIMM01")
		require.NoError(t, err)
		assert.Equal(t, "Cebu", p.CityProvince)

		_, err = s.Profile(ctx, "nobody")
		assert.True(t, errors.Is(err, ErrNotFound))

		_, err = s.Areas(ctx, model.National)
		assert.Error(t, err)
	})
}
