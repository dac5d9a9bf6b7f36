package cutover

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/okian/pcarank/internal/adapters/repository"
	"github.com/okian/pcarank/internal/domain/model"
	"github.com/okian/pcarank/pkg/logger"
	"github.com/okian/pcarank/pkg/metrics"
)

const defaultChunkSize = 1000

// resultColumns must be present in the results header; a missing outcome
// column would load every result as "no result".
var resultColumns = []string{
	"competitionid", "eventid", "personid", "personcountryid",
	"best", "average", "value1", "value2", "value3", "value4", "value5",
}

// Export file names.
const (
	EventsFile       = "WCA_export_Events.tsv"
	FormatsFile      = "WCA_export_Formats.tsv"
	RoundTypesFile   = "WCA_export_RoundTypes.tsv"
	CompetitionsFile = "WCA_export_Competitions.tsv"
	PersonsFile      = "WCA_export_Persons.tsv"
	RanksSingleFile  = "WCA_export_RanksSingle.tsv"
	RanksAverageFile = "WCA_export_RanksAverage.tsv"
	ResultsFile      = "WCA_export_Results.tsv"
)

// ImportStats counts the rows loaded per entity.
type ImportStats struct {
	Events       int `json:"events"`
	Formats      int `json:"formats"`
	RoundTypes   int `json:"round_types"`
	Competitions int `json:"competitions"`
	Persons      int `json:"persons"`
	Ranks        int `json:"ranks"`
	Results      int `json:"results"`
	// SyntheticIDs is set when the results file carried no id column.
	SyntheticIDs bool `json:"synthetic_ids"`
}

// Importer loads an extracted export into one dataset.
type Importer interface {
	Import(ctx context.Context, ds model.DatasetHandle, dir string) (ImportStats, error)
}

// TSVImporter reads the tab-separated export files. Persons, ranks and
// results are restricted to the home country.
type TSVImporter struct {
	loader      repository.Loader
	homeCountry string
	chunkSize   int
	log         logger.Logger
}

// NewTSVImporter returns an importer writing through loader.
func NewTSVImporter(loader repository.Loader, homeCountry string, chunkSize int, log logger.Logger) *TSVImporter {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if log == nil {
		log = logger.Get().Named("importer")
	}
	return &TSVImporter{loader: loader, homeCountry: homeCountry, chunkSize: chunkSize, log: log}
}

// Import truncates ds and loads every export file from dir. On failure the
// partially loaded dataset is left as is.
func (im *TSVImporter) Import(ctx context.Context, ds model.DatasetHandle, dir string) (ImportStats, error) {
	var st ImportStats
	if err := im.loader.Truncate(ctx, ds); err != nil {
		return st, importErr("truncate", string(ds), err)
	}

	rankCols := []string{"personid", "eventid", "best"}
	steps := []struct {
		entity   string
		file     string
		required []string
		run      func(context.Context, *importRun, *tsvReader) error
	}{
		{"events", EventsFile, []string{"id", "format"}, im.importEvents},
		{"formats", FormatsFile, []string{"id"}, im.importFormats},
		{"round_types", RoundTypesFile, []string{"id", "final"}, im.importRoundTypes},
		{"competitions", CompetitionsFile, []string{"id"}, im.importCompetitions},
		{"persons", PersonsFile, []string{"id", "countryid"}, im.importPersons},
		{"ranks_single", RanksSingleFile, rankCols, im.rankImporter(model.Single)},
		{"ranks_average", RanksAverageFile, rankCols, im.rankImporter(model.Average)},
		{"results", ResultsFile, resultColumns, im.importResults},
	}

	run := &importRun{ds: ds, stats: &st, persons: make(map[string]struct{})}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		r, err := openTSV(filepath.Join(dir, step.file))
		if err != nil {
			return st, importErr("open", step.entity, err)
		}
		if err := r.require(step.required...); err != nil {
			_ = r.Close()
			return st, importErr("open", step.entity, err)
		}
		im.log.Info(ctx, "importing", logger.String("entity", step.entity), logger.String("dataset", string(ds)))
		err = step.run(ctx, run, r)
		_ = r.Close()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return st, err
			}
			return st, importErr("load", step.entity, err)
		}
	}

	for entity, n := range map[string]int{
		"events": st.Events, "formats": st.Formats, "round_types": st.RoundTypes,
		"competitions": st.Competitions, "persons": st.Persons, "ranks": st.Ranks, "results": st.Results,
	} {
		metrics.RecordImportedRows(entity, n)
	}
	return st, nil
}

func (im *TSVImporter) importEvents(ctx context.Context, run *importRun, r *tsvReader) error {
	var batch []model.Event
	insert := func(rows []model.Event) error { return im.loader.InsertEvents(ctx, run.ds, rows) }
	return r.each(func(row *tsvRow) error {
		batch = append(batch, model.Event{
			ID:       row.str("id"),
			Name:     row.str("name"),
			Rank:     row.int("rank"),
			Format:   row.str("format"),
			CellName: row.str("cellname"),
		})
		if err := row.Err(); err != nil {
			return err
		}
		run.stats.Events++
		return flushChunk(ctx, im.chunkSize, &batch, false, insert)
	}, func() error { return flushChunk(ctx, im.chunkSize, &batch, true, insert) })
}

func (im *TSVImporter) importFormats(ctx context.Context, run *importRun, r *tsvReader) error {
	var batch []model.Format
	insert := func(rows []model.Format) error { return im.loader.InsertFormats(ctx, run.ds, rows) }
	return r.each(func(row *tsvRow) error {
		batch = append(batch, model.Format{
			ID:                 row.str("id"),
			Name:               row.str("name"),
			SortBy:             row.str("sortby"),
			SortBySecond:       row.str("sortbysecond"),
			ExpectedSolveCount: row.int("expectedsolvecount"),
			TrimFastestN:       row.int("trimfastestn"),
			TrimSlowestN:       row.int("trimslowestn"),
		})
		if err := row.Err(); err != nil {
			return err
		}
		run.stats.Formats++
		return flushChunk(ctx, im.chunkSize, &batch, false, insert)
	}, func() error { return flushChunk(ctx, im.chunkSize, &batch, true, insert) })
}

func (im *TSVImporter) importRoundTypes(ctx context.Context, run *importRun, r *tsvReader) error {
	var batch []model.RoundType
	insert := func(rows []model.RoundType) error { return im.loader.InsertRoundTypes(ctx, run.ds, rows) }
	return r.each(func(row *tsvRow) error {
		batch = append(batch, model.RoundType{
			ID:       row.str("id"),
			Rank:     row.int("rank"),
			Name:     row.str("name"),
			CellName: row.str("cellname"),
			Final:    row.bool("final"),
		})
		if err := row.Err(); err != nil {
			return err
		}
		run.stats.RoundTypes++
		return flushChunk(ctx, im.chunkSize, &batch, false, insert)
	}, func() error { return flushChunk(ctx, im.chunkSize, &batch, true, insert) })
}

func (im *TSVImporter) importCompetitions(ctx context.Context, run *importRun, r *tsvReader) error {
	var batch []model.Competition
	insert := func(rows []model.Competition) error { return im.loader.InsertCompetitions(ctx, run.ds, rows) }
	return r.each(func(row *tsvRow) error {
		batch = append(batch, model.Competition{
			ID:        row.str("id"),
			Name:      row.str("name"),
			CityName:  row.str("cityname"),
			CountryID: row.str("countryid"),
			Year:      row.int("year"),
			Month:     row.int("month"),
			Day:       row.int("day"),
		})
		if err := row.Err(); err != nil {
			return err
		}
		run.stats.Competitions++
		return flushChunk(ctx, im.chunkSize, &batch, false, insert)
	}, func() error { return flushChunk(ctx, im.chunkSize, &batch, true, insert) })
}

func (im *TSVImporter) importPersons(ctx context.Context, run *importRun, r *tsvReader) error {
	seen := run.persons
	var batch []model.Person
	insert := func(rows []model.Person) error { return im.loader.InsertPersons(ctx, run.ds, rows) }
	return r.each(func(row *tsvRow) error {
		if row.str("countryid") != im.homeCountry {
			return nil
		}
		id := row.str("id")
		// Later sub-ids of a person record former names.
		if _, dup := seen[id]; dup {
			return nil
		}
		seen[id] = struct{}{}
		batch = append(batch, model.Person{
			ID:        id,
			Name:      row.str("name"),
			CountryID: row.str("countryid"),
			Gender:    row.str("gender"),
		})
		if err := row.Err(); err != nil {
			return err
		}
		run.stats.Persons++
		return flushChunk(ctx, im.chunkSize, &batch, false, insert)
	}, func() error { return flushChunk(ctx, im.chunkSize, &batch, true, insert) })
}

func (im *TSVImporter) rankImporter(rt model.RankType) func(context.Context, *importRun, *tsvReader) error {
	return func(ctx context.Context, run *importRun, r *tsvReader) error {
		persons := run.persons
		var batch []model.PersonalRank
		insert := func(rows []model.PersonalRank) error { return im.loader.InsertRanks(ctx, run.ds, rows) }
		return r.each(func(row *tsvRow) error {
			pid := row.str("personid")
			if _, ok := persons[pid]; !ok {
				return nil
			}
			batch = append(batch, model.PersonalRank{
				PersonID:      pid,
				EventID:       row.str("eventid"),
				RankType:      rt,
				Best:          row.int64("best"),
				WorldRank:     row.int("worldrank"),
				ContinentRank: row.int("continentrank"),
				CountryRank:   row.int("countryrank"),
			})
			if err := row.Err(); err != nil {
				return err
			}
			run.stats.Ranks++
			return flushChunk(ctx, im.chunkSize, &batch, false, insert)
		}, func() error { return flushChunk(ctx, im.chunkSize, &batch, true, insert) })
	}
}

func (im *TSVImporter) importResults(ctx context.Context, run *importRun, r *tsvReader) error {
	hasID := r.has("id")
	run.stats.SyntheticIDs = !hasID

	var (
		batch []model.Result
		next  int64
	)
	insert := func(rows []model.Result) error { return im.loader.InsertResults(ctx, run.ds, rows) }
	return r.each(func(row *tsvRow) error {
		if row.str("personcountryid") != im.homeCountry {
			return nil
		}
		next++
		res := model.Result{
			ID:                    next,
			CompetitionID:         row.str("competitionid"),
			EventID:               row.str("eventid"),
			RoundTypeID:           row.str("roundtypeid"),
			Pos:                   row.int("pos"),
			Best:                  row.int64("best"),
			Average:               row.int64("average"),
			PersonName:            row.str("personname"),
			PersonID:              row.str("personid"),
			CountryID:             row.str("personcountryid"),
			FormatID:              row.str("formatid"),
			RegionalSingleRecord:  row.str("regionalsinglerecord"),
			RegionalAverageRecord: row.str("regionalaveragerecord"),
		}
		if hasID {
			res.ID = row.int64("id")
		}
		for i := range res.Values {
			res.Values[i] = row.int64("value" + strconv.Itoa(i+1))
		}
		batch = append(batch, res)
		if err := row.Err(); err != nil {
			return err
		}
		run.stats.Results++
		return flushChunk(ctx, im.chunkSize, &batch, false, insert)
	}, func() error { return flushChunk(ctx, im.chunkSize, &batch, true, insert) })
}

// flushChunk writes batch once it reaches the chunk size, or unconditionally when
// final is set. Every chunk is its own transaction.
func flushChunk[T any](ctx context.Context, chunkSize int, batch *[]T, final bool, insert func([]T) error) error {
	if len(*batch) == 0 || (!final && len(*batch) < chunkSize) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := insert(*batch); err != nil {
		return err
	}
	*batch = (*batch)[:0]
	return nil
}

// importRun is the state shared by the steps of one Import call.
type importRun struct {
	ds    model.DatasetHandle
	stats *ImportStats
	// persons holds the ids of imported competitors; ranks are limited to them.
	persons map[string]struct{}
}

// tsvReader walks a tab-separated file whose first line names the columns.
// Column lookup ignores case and underscores so camelCase and snake_case
// exports both load.
type tsvReader struct {
	f      *os.File
	name   string
	r      *csv.Reader
	header map[string]int
	// names keeps the header as written, for error messages.
	names map[string]string
}

// ParseError reports a cell that is not a valid number. Empty and NULL
// cells are not errors; they read as zero.
type ParseError struct {
	File   string
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: column %s: invalid value %q: %v", e.File, e.Line, e.Column, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func openTSV(path string) (*tsvReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(f)
	r.Comma = '\t'
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	head, err := r.Read()
	if err != nil {
		_ = f.Close()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: missing header", filepath.Base(path))
		}
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	header := make(map[string]int, len(head))
	names := make(map[string]string, len(head))
	for i, h := range head {
		k := columnKey(h)
		header[k] = i
		names[k] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	return &tsvReader{f: f, name: filepath.Base(path), r: r, header: header, names: names}, nil
}

// require fails when any of cols is missing from the header.
func (t *tsvReader) require(cols ...string) error {
	var missing []string
	for _, c := range cols {
		if !t.has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: missing columns %s", t.name, strings.Join(missing, ", "))
	}
	return nil
}

func (t *tsvReader) Close() error { return t.f.Close() }

func (t *tsvReader) has(col string) bool {
	_, ok := t.header[col]
	return ok
}

// each calls fn for every data row and done after the last one. An error
// from fn stops the walk.
func (t *tsvReader) each(fn func(*tsvRow) error, done func() error) error {
	for {
		rec, err := t.r.Read()
		if errors.Is(err, io.EOF) {
			return done()
		}
		if err != nil {
			return err
		}
		line, _ := t.r.FieldPos(0)
		row := &tsvRow{reader: t, rec: rec, line: line}
		if err := fn(row); err != nil {
			return err
		}
	}
}

// tsvRow is one data line. Numeric getters record the first parse failure
// in err; callers check Err before keeping the row.
type tsvRow struct {
	reader *tsvReader
	rec    []string
	line   int
	err    error
}

// Err returns the first numeric parse failure on the row.
func (r *tsvRow) Err() error { return r.err }

func (r *tsvRow) str(col string) string {
	i, ok := r.reader.header[col]
	if !ok || i >= len(r.rec) {
		return ""
	}
	v := strings.TrimSpace(r.rec[i])
	if v == "NULL" {
		return ""
	}
	return v
}

func (r *tsvRow) int64(col string) int64 {
	v := r.str(col)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil && r.err == nil {
		r.err = &ParseError{File: r.reader.name, Line: r.line, Column: r.reader.names[col], Value: v, Err: err}
	}
	return n
}

func (r *tsvRow) int(col string) int { return int(r.int64(col)) }

func (r *tsvRow) bool(col string) bool {
	switch strings.ToLower(r.str(col)) {
	case "1", "true", "t", "yes":
		return true
	default:
		return false
	}
}

func columnKey(h string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), "_", ""))
}
