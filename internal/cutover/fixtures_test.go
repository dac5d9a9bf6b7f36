package cutover_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/pcarank/internal/cutover"
)

const resultsHeader = "competitionId\teventId\troundTypeId\tpos\tbest\taverage\tpersonName\tpersonId\tpersonCountryId\tformatId\tvalue1\tvalue2\tvalue3\tvalue4\tvalue5\tregionalSingleRecord\tregionalAverageRecord"

// exportFiles is a minimal export: one Filipino competitor with two
// results, plus a foreign competitor that must be filtered out.
func exportFiles(exportDate string) map[string]string {
	return map[string]string{
		cutover.EventsFile: lines(
			"id\tname\trank\tformat\tcellName",
			"333\t3x3x3 Cube\t10\ttime\t3x3x3 Cube",
		),
		cutover.FormatsFile: lines(
			"id\tname\tsort_by\tsort_by_second\texpected_solve_count\ttrim_fastest_n\ttrim_slowest_n",
			"a\tAverage of 5\taverage\tsingle\t5\t1\t1",
		),
		cutover.RoundTypesFile: lines(
			"id\trank\tname\tcellName\tfinal",
			"f\t599\tFinal\tFinal\t1",
		),
		cutover.CompetitionsFile: lines(
			"id\tname\tcityName\tcountryId\tyear\tmonth\tday",
			"ManilaOpen2019\tManila Open 2019\tManila\tPhilippines\t2019\t5\t4",
		),
		cutover.PersonsFile: lines(
			"id\tsubid\tname\tcountryId\tgender",
			"2019DELA01\t1\tJuan Dela Cruz\tPhilippines\tm",
			"2019DELA01\t2\tJuan D. Cruz\tPhilippines\tm",
			"2018SMIT01\t1\tAlice Smith\tUSA\tf",
		),
		cutover.RanksSingleFile: lines(
			"personId\teventId\tbest\tworldRank\tcontinentRank\tcountryRank",
			"2019DELA01\t333\t651\t900\t120\t3",
			"2018SMIT01\t333\t500\t50\t10\t1",
		),
		cutover.RanksAverageFile: lines(
			"personId\teventId\tbest\tworldRank\tcontinentRank\tcountryRank",
			"2019DELA01\t333\t702\t950\t130\t4",
		),
		cutover.ResultsFile: lines(
			resultsHeader,
			"ManilaOpen2019\t333\tf\t1\t651\t702\tJuan Dela Cruz\t2019DELA01\tPhilippines\ta\t651\t702\t800\t-1\t690\tNR\t",
			"ManilaOpen2019\t333\tf\t2\t500\t550\tAlice Smith\t2018SMIT01\tUSA\ta\t500\t550\t560\t540\t600\t\t",
			"ManilaOpen2019\t333\t1\t3\t720\t760\tJuan Dela Cruz\t2019DELA01\tPhilippines\ta\t720\t760\t780\t740\t770\t\t",
		),
		cutover.MetadataFile: `{"export_date":"` + exportDate + `","export_format_version":"1.0.0"}`,
	}
}

func lines(ls ...string) string { return strings.Join(ls, "\n") + "\n" }

func writeExport(t *testing.T, dir string, files map[string]string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}
