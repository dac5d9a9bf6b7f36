package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	// Registered database/sql drivers.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/okian/pcarank/internal/domain/model"
	"github.com/okian/pcarank/pkg/logger"
)

const registryRowID = 1

const resultColumns = `id, competition_id, event_id, round_type_id, pos, best, average,
	person_name, person_id, country_id, format_id,
	value1, value2, value3, value4, value5,
	regional_single_record, regional_average_record`

// datasetTables are truncated together when a dataset is reloaded.
var datasetTables = []string{
	"results", "events", "formats", "round_types",
	"competitions", "persons", "ranks_single", "ranks_average",
}

// SQLStore is a Store over database/sql. Each dataset owns a table set
// suffixed with its handle, e.g. results_a and results_b.
type SQLStore struct {
	db      *sql.DB
	backend Backend
	opts    options
	log     logger.Logger
}

// OpenSQL connects to dsn and optionally migrates the schema.
func OpenSQL(ctx context.Context, backend Backend, dsn string, opts ...Option) (*SQLStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	driver, err := driverName(backend)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", backend, err)
	}
	if backend == BackendSQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(o.maxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", backend, err)
	}

	s := &SQLStore{db: db, backend: backend, opts: o, log: o.namedLogger()}
	if o.autoMigrate {
		res, err := Migrate(backend, db, -1)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		s.log.Info(ctx, "schema migrated",
			logger.String("backend", string(backend)),
			logger.Int("from", int(res.From)),
			logger.Int("to", int(res.To)),
			logger.Bool("changed", res.Changed))
	}
	return s, nil
}

// NewSQLStore wraps an existing connection.
func NewSQLStore(db *sql.DB, backend Backend, opts ...Option) *SQLStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &SQLStore{db: db, backend: backend, opts: o, log: o.namedLogger()}
}

func driverName(backend Backend) (string, error) {
	switch backend {
	case BackendSQLite:
		return "sqlite", nil
	case BackendMySQL:
		return "mysql", nil
	case BackendPostgres:
		return "pgx", nil
	default:
		return "", fmt.Errorf("store backend %q: %w", backend, ErrUnsupportedBackend)
	}
}

// DB exposes the underlying pool for migrations and diagnostics.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Close implements Store.
func (s *SQLStore) Close() error { return s.db.Close() }

// rebind rewrites ? placeholders as $n for postgres.
func (s *SQLStore) rebind(query string) string {
	return Rebind(s.backend, query)
}

// Rebind rewrites ? placeholders for backend.
func Rebind(backend Backend, query string) string {
	if backend != BackendPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func table(name string, ds model.DatasetHandle) (string, error) {
	if !ds.Valid() {
		return "", fmt.Errorf("dataset %q: %w", ds, ErrInvalidDataset)
	}
	return name + "_" + ds.Suffix(), nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// ForEachResult implements ResultReader.
func (s *SQLStore) ForEachResult(ctx context.Context, f ResultFilter, fn func(model.Result) error) error {
	if err := f.validate(); err != nil {
		return err
	}
	if f.PersonIDs != nil && len(f.PersonIDs) == 0 {
		return nil
	}
	tbl, err := table("results", f.Dataset)
	if err != nil {
		return err
	}
	col := f.RankType.Column()

	var q strings.Builder
	args := make([]any, 0, 2+len(f.PersonIDs))
	fmt.Fprintf(&q, "SELECT %s FROM %s WHERE event_id = ? AND %s > 0", resultColumns, tbl, col)
	args = append(args, f.EventID)
	if f.CountryID != "" {
		q.WriteString(" AND country_id = ?")
		args = append(args, f.CountryID)
	}
	if f.PersonIDs != nil {
		fmt.Fprintf(&q, " AND person_id IN (%s)", placeholders(len(f.PersonIDs)))
		for _, id := range f.PersonIDs {
			args = append(args, id)
		}
	}
	fmt.Fprintf(&q, " ORDER BY %s ASC, id ASC", col)

	rows, err := s.db.QueryContext(ctx, s.rebind(q.String()), args...)
	if err != nil {
		return fmt.Errorf("query %s: %w", tbl, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var r model.Result
		if err := rows.Scan(
			&r.ID, &r.CompetitionID, &r.EventID, &r.RoundTypeID, &r.Pos, &r.Best, &r.Average,
			&r.PersonName, &r.PersonID, &r.CountryID, &r.FormatID,
			&r.Values[0], &r.Values[1], &r.Values[2], &r.Values[3], &r.Values[4],
			&r.RegionalSingleRecord, &r.RegionalAverageRecord,
		); err != nil {
			return fmt.Errorf("scan %s: %w", tbl, err)
		}
		if err := fn(r); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	return rows.Err()
}

// Event implements Catalog.
func (s *SQLStore) Event(ctx context.Context, ds model.DatasetHandle, id string) (model.Event, error) {
	tbl, err := table("events", ds)
	if err != nil {
		return model.Event{}, err
	}
	var e model.Event
	err = s.db.QueryRowContext(ctx,
		s.rebind("SELECT id, name, sort_rank, format_kind, cell_name FROM "+tbl+" WHERE id = ?"), id,
	).Scan(&e.ID, &e.Name, &e.Rank, &e.Format, &e.CellName)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, fmt.Errorf("event %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("query %s: %w", tbl, err)
	}
	return e, nil
}

// Events implements Catalog.
func (s *SQLStore) Events(ctx context.Context, ds model.DatasetHandle) ([]model.Event, error) {
	tbl, err := table("events", ds)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, sort_rank, format_kind, cell_name FROM "+tbl+" ORDER BY sort_rank, id")
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", tbl, err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.Name, &e.Rank, &e.Format, &e.CellName); err != nil {
			return nil, fmt.Errorf("scan %s: %w", tbl, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Format implements Catalog.
func (s *SQLStore) Format(ctx context.Context, ds model.DatasetHandle, id string) (model.Format, error) {
	tbl, err := table("formats", ds)
	if err != nil {
		return model.Format{}, err
	}
	var f model.Format
	err = s.db.QueryRowContext(ctx, s.rebind(`SELECT id, name, sort_by, sort_by_second,
		expected_solve_count, trim_fastest_n, trim_slowest_n FROM `+tbl+` WHERE id = ?`), id,
	).Scan(&f.ID, &f.Name, &f.SortBy, &f.SortBySecond, &f.ExpectedSolveCount, &f.TrimFastestN, &f.TrimSlowestN)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Format{}, fmt.Errorf("format %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Format{}, fmt.Errorf("query %s: %w", tbl, err)
	}
	return f, nil
}

// Person implements Catalog.
func (s *SQLStore) Person(ctx context.Context, ds model.DatasetHandle, id string) (model.Person, error) {
	tbl, err := table("persons", ds)
	if err != nil {
		return model.Person{}, err
	}
	var p model.Person
	err = s.db.QueryRowContext(ctx,
		s.rebind("SELECT id, name, country_id, gender FROM "+tbl+" WHERE id = ?"), id,
	).Scan(&p.ID, &p.Name, &p.CountryID, &p.Gender)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Person{}, fmt.Errorf("person %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Person{}, fmt.Errorf("query %s: %w", tbl, err)
	}
	return p, nil
}

// PersonalRanks implements Catalog.
func (s *SQLStore) PersonalRanks(ctx context.Context, ds model.DatasetHandle, personID string) ([]model.PersonalRank, error) {
	var out []model.PersonalRank
	for _, rt := range model.RankTypes {
		tbl, err := table("ranks_"+string(rt), ds)
		if err != nil {
			return nil, err
		}
		rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT person_id, event_id, best,
			world_rank, continent_rank, country_rank FROM `+tbl+` WHERE person_id = ? ORDER BY event_id`), personID)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", tbl, err)
		}
		for rows.Next() {
			r := model.PersonalRank{RankType: rt}
			if err := rows.Scan(&r.PersonID, &r.EventID, &r.Best, &r.WorldRank, &r.ContinentRank, &r.CountryRank); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("scan %s: %w", tbl, err)
			}
			out = append(out, r)
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CareerStats implements CareerReader.
func (s *SQLStore) CareerStats(ctx context.Context, ds model.DatasetHandle, personID string) (model.CareerStats, error) {
	results, err := table("results", ds)
	if err != nil {
		return model.CareerStats{}, err
	}
	rounds, _ := table("round_types", ds)

	var st model.CareerStats
	err = s.db.QueryRowContext(ctx, s.rebind(fmt.Sprintf(`SELECT
		COUNT(DISTINCT r.competition_id),
		COALESCE(SUM(
			CASE WHEN r.value1 > 0 THEN 1 ELSE 0 END + CASE WHEN r.value2 > 0 THEN 1 ELSE 0 END +
			CASE WHEN r.value3 > 0 THEN 1 ELSE 0 END + CASE WHEN r.value4 > 0 THEN 1 ELSE 0 END +
			CASE WHEN r.value5 > 0 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(%[3]s), 0),
		COALESCE(SUM(%[4]s), 0),
		COALESCE(SUM(%[5]s), 0),
		COALESCE(SUM(CASE WHEN rt.is_final = 1 AND r.best > 0 AND r.pos = 1 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN rt.is_final = 1 AND r.best > 0 AND r.pos = 2 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN rt.is_final = 1 AND r.best > 0 AND r.pos = 3 THEN 1 ELSE 0 END), 0)
		FROM %[1]s r LEFT JOIN %[2]s rt ON rt.id = r.round_type_id
		WHERE r.person_id = ?`,
		results, rounds,
		markCount("= 'NR'"),
		markCount("NOT IN ('', 'NR', 'WR')"),
		markCount("= 'WR'"),
	)), personID).Scan(
		&st.Competitions, &st.Solves,
		&st.NationalRecords, &st.ContinentalRecords, &st.WorldRecords,
		&st.Gold, &st.Silver, &st.Bronze,
	)
	if err != nil {
		return model.CareerStats{}, fmt.Errorf("query %s career of %s: %w", results, personID, err)
	}
	return st, nil
}

// markCount sums both record columns matching cond.
func markCount(cond string) string {
	return "CASE WHEN r.regional_single_record " + cond + " THEN 1 ELSE 0 END + " +
		"CASE WHEN r.regional_average_record " + cond + " THEN 1 ELSE 0 END"
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLStore) readRegistry(ctx context.Context, q queryer) (model.RegistryState, error) {
	rows, err := q.QueryContext(ctx, "SELECT active, inactive FROM dataset_registry")
	if err != nil {
		return model.RegistryState{}, fmt.Errorf("query dataset_registry: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		st model.RegistryState
		n  int
	)
	for rows.Next() {
		n++
		var active, inactive string
		if err := rows.Scan(&active, &inactive); err != nil {
			return model.RegistryState{}, fmt.Errorf("scan dataset_registry: %w", err)
		}
		st = model.RegistryState{Active: model.DatasetHandle(active), Inactive: model.DatasetHandle(inactive)}
	}
	if err := rows.Err(); err != nil {
		return model.RegistryState{}, err
	}
	switch {
	case n == 0:
		return model.RegistryState{}, fmt.Errorf("no registry row: %w", ErrConfig)
	case n > 1:
		return model.RegistryState{}, fmt.Errorf("%d registry rows: %w", n, ErrConfig)
	case !st.Valid():
		return model.RegistryState{}, fmt.Errorf("registry row %+v: %w", st, ErrConfig)
	}
	return st, nil
}

// Registry implements RegistryStore.
func (s *SQLStore) Registry(ctx context.Context) (model.RegistryState, error) {
	return s.readRegistry(ctx, s.db)
}

// InitRegistry implements RegistryStore.
func (s *SQLStore) InitRegistry(ctx context.Context) (model.RegistryState, error) {
	st := model.RegistryState{Active: model.DatasetA, Inactive: model.DatasetB}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM dataset_registry").Scan(&n); err != nil {
			return fmt.Errorf("count dataset_registry: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("registry row already exists: %w", ErrInvariantViolation)
		}
		_, err := tx.ExecContext(ctx,
			s.rebind("INSERT INTO dataset_registry (id, active, inactive) VALUES (?, ?, ?)"),
			registryRowID, string(st.Active), string(st.Inactive))
		if err != nil {
			return fmt.Errorf("insert dataset_registry: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.RegistryState{}, err
	}
	return st, nil
}

// SwapRegistry implements RegistryStore. The update is conditional on the
// active handle read inside the same transaction.
func (s *SQLStore) SwapRegistry(ctx context.Context) (model.RegistryState, error) {
	var next model.RegistryState
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := s.readRegistry(ctx, tx)
		if err != nil {
			return err
		}
		next = model.RegistryState{Active: cur.Inactive, Inactive: cur.Active}
		res, err := tx.ExecContext(ctx,
			s.rebind("UPDATE dataset_registry SET active = ?, inactive = ? WHERE active = ?"),
			string(next.Active), string(next.Inactive), string(cur.Active))
		if err != nil {
			return fmt.Errorf("update dataset_registry: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n != 1 {
			return ErrConflict
		}
		return nil
	})
	if err != nil {
		return model.RegistryState{}, err
	}
	return next, nil
}

// PromoteRegistry implements RegistryStore. The WHERE clause makes the
// update a compare-and-set on the inactive column.
func (s *SQLStore) PromoteRegistry(ctx context.Context, target model.DatasetHandle) (model.RegistryState, error) {
	if !target.Valid() {
		return model.RegistryState{}, fmt.Errorf("%w: %q", ErrInvalidDataset, target)
	}
	var next model.RegistryState
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := s.readRegistry(ctx, tx)
		if err != nil {
			return err
		}
		if cur.Inactive != target {
			return fmt.Errorf("%w: %s is not the inactive dataset", ErrConflict, target)
		}
		next = model.RegistryState{Active: cur.Inactive, Inactive: cur.Active}
		res, err := tx.ExecContext(ctx,
			s.rebind("UPDATE dataset_registry SET active = ?, inactive = ? WHERE inactive = ?"),
			string(next.Active), string(next.Inactive), string(target))
		if err != nil {
			return fmt.Errorf("update dataset_registry: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n != 1 {
			return ErrConflict
		}
		return nil
	})
	if err != nil {
		return model.RegistryState{}, err
	}
	return next, nil
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Truncate implements Loader. DELETE keeps it portable to SQLite.
func (s *SQLStore) Truncate(ctx context.Context, ds model.DatasetHandle) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, name := range datasetTables {
			tbl, err := table(name, ds)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+tbl); err != nil {
				return fmt.Errorf("truncate %s: %w", tbl, err)
			}
		}
		return nil
	})
}

// insertRows inserts n rows in one transaction using a prepared statement.
func (s *SQLStore) insertRows(ctx context.Context, tbl, columns string, ncols, n int, args func(i int) []any) error {
	if n == 0 {
		return nil
	}
	query := s.rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", tbl, columns, placeholders(ncols)))
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", tbl, err)
		}
		defer func() { _ = stmt.Close() }()
		for i := 0; i < n; i++ {
			if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
				return fmt.Errorf("insert %s row %d: %w", tbl, i, err)
			}
		}
		return nil
	})
}

// InsertEvents implements Loader.
func (s *SQLStore) InsertEvents(ctx context.Context, ds model.DatasetHandle, rows []model.Event) error {
	tbl, err := table("events", ds)
	if err != nil {
		return err
	}
	return s.insertRows(ctx, tbl, "id, name, sort_rank, format_kind, cell_name", 5, len(rows), func(i int) []any {
		e := rows[i]
		return []any{e.ID, e.Name, e.Rank, e.Format, e.CellName}
	})
}

// InsertFormats implements Loader.
func (s *SQLStore) InsertFormats(ctx context.Context, ds model.DatasetHandle, rows []model.Format) error {
	tbl, err := table("formats", ds)
	if err != nil {
		return err
	}
	return s.insertRows(ctx, tbl,
		"id, name, sort_by, sort_by_second, expected_solve_count, trim_fastest_n, trim_slowest_n", 7, len(rows),
		func(i int) []any {
			f := rows[i]
			return []any{f.ID, f.Name, f.SortBy, f.SortBySecond, f.ExpectedSolveCount, f.TrimFastestN, f.TrimSlowestN}
		})
}

// InsertRoundTypes implements Loader.
func (s *SQLStore) InsertRoundTypes(ctx context.Context, ds model.DatasetHandle, rows []model.RoundType) error {
	tbl, err := table("round_types", ds)
	if err != nil {
		return err
	}
	return s.insertRows(ctx, tbl, "id, sort_rank, name, cell_name, is_final", 5, len(rows), func(i int) []any {
		r := rows[i]
		final := 0
		if r.Final {
			final = 1
		}
		return []any{r.ID, r.Rank, r.Name, r.CellName, final}
	})
}

// InsertCompetitions implements Loader.
func (s *SQLStore) InsertCompetitions(ctx context.Context, ds model.DatasetHandle, rows []model.Competition) error {
	tbl, err := table("competitions", ds)
	if err != nil {
		return err
	}
	return s.insertRows(ctx, tbl, "id, name, city_name, country_id, year, month, day", 7, len(rows), func(i int) []any {
		c := rows[i]
		return []any{c.ID, c.Name, c.CityName, c.CountryID, c.Year, c.Month, c.Day}
	})
}

// InsertPersons implements Loader.
func (s *SQLStore) InsertPersons(ctx context.Context, ds model.DatasetHandle, rows []model.Person) error {
	tbl, err := table("persons", ds)
	if err != nil {
		return err
	}
	return s.insertRows(ctx, tbl, "id, name, country_id, gender", 4, len(rows), func(i int) []any {
		p := rows[i]
		return []any{p.ID, p.Name, p.CountryID, p.Gender}
	})
}

// InsertRanks implements Loader. Rows are routed by rank type.
func (s *SQLStore) InsertRanks(ctx context.Context, ds model.DatasetHandle, rows []model.PersonalRank) error {
	for _, rt := range model.RankTypes {
		tbl, err := table("ranks_"+string(rt), ds)
		if err != nil {
			return err
		}
		subset := make([]model.PersonalRank, 0, len(rows))
		for _, r := range rows {
			if r.RankType == rt {
				subset = append(subset, r)
			}
		}
		err = s.insertRows(ctx, tbl, "person_id, event_id, best, world_rank, continent_rank, country_rank", 6, len(subset),
			func(i int) []any {
				r := subset[i]
				return []any{r.PersonID, r.EventID, r.Best, r.WorldRank, r.ContinentRank, r.CountryRank}
			})
		if err != nil {
			return err
		}
	}
	return nil
}

// InsertResults implements Loader.
func (s *SQLStore) InsertResults(ctx context.Context, ds model.DatasetHandle, rows []model.Result) error {
	tbl, err := table("results", ds)
	if err != nil {
		return err
	}
	return s.insertRows(ctx, tbl, resultColumns, 18, len(rows), func(i int) []any {
		r := rows[i]
		return []any{
			r.ID, r.CompetitionID, r.EventID, r.RoundTypeID, r.Pos, r.Best, r.Average,
			r.PersonName, r.PersonID, r.CountryID, r.FormatID,
			r.Values[0], r.Values[1], r.Values[2], r.Values[3], r.Values[4],
			r.RegionalSingleRecord, r.RegionalAverageRecord,
		}
	})
}

// ResultIDStats implements Loader.
func (s *SQLStore) ResultIDStats(ctx context.Context, ds model.DatasetHandle) (IDStats, error) {
	tbl, err := table("results", ds)
	if err != nil {
		return IDStats{}, err
	}
	var st IDStats
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*), COUNT(DISTINCT id),
		COALESCE(SUM(CASE WHEN id IS NULL OR id = 0 THEN 1 ELSE 0 END), 0) FROM `+tbl,
	).Scan(&st.Rows, &st.Distinct, &st.Missing)
	if err != nil {
		return IDStats{}, fmt.Errorf("query %s id stats: %w", tbl, err)
	}
	return st, nil
}

// OrphanEvents implements Loader.
func (s *SQLStore) OrphanEvents(ctx context.Context, ds model.DatasetHandle) ([]string, error) {
	results, err := table("results", ds)
	if err != nil {
		return nil, err
	}
	events, _ := table("events", ds)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT DISTINCT r.event_id FROM %s r
		LEFT JOIN %s e ON e.id = r.event_id WHERE e.id IS NULL ORDER BY r.event_id`, results, events))
	if err != nil {
		return nil, fmt.Errorf("query orphan events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// LastExport implements ExportStore.
func (s *SQLStore) LastExport(ctx context.Context) (model.ExportMetadata, bool, error) {
	var (
		meta model.ExportMetadata
		at   int64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(
		"SELECT export_date, export_format_version, imported_at FROM import_metadata WHERE id = ?"), registryRowID,
	).Scan(&meta.ExportDate, &meta.ExportFormatVersion, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ExportMetadata{}, false, nil
	}
	if err != nil {
		return model.ExportMetadata{}, false, fmt.Errorf("query import_metadata: %w", err)
	}
	meta.ImportedAt = unixTime(at)
	return meta, true, nil
}

// RecordExport implements ExportStore.
func (s *SQLStore) RecordExport(ctx context.Context, meta model.ExportMetadata) error {
	if meta.ImportedAt.IsZero() {
		meta.ImportedAt = s.opts.clock.Now().UTC()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM import_metadata WHERE id = ?"), registryRowID); err != nil {
			return fmt.Errorf("clear import_metadata: %w", err)
		}
		_, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO import_metadata
			(id, export_date, export_format_version, imported_at) VALUES (?, ?, ?, ?)`),
			registryRowID, meta.ExportDate, meta.ExportFormatVersion, meta.ImportedAt.Unix())
		if err != nil {
			return fmt.Errorf("insert import_metadata: %w", err)
		}
		return nil
	})
}

// Profile implements ProfileStore.
func (s *SQLStore) Profile(ctx context.Context, personID string) (model.Profile, error) {
	var p model.Profile
	err := s.db.QueryRowContext(ctx,
		s.rebind("SELECT person_id, region, city_province FROM profiles WHERE person_id = ?"), personID,
	).Scan(&p.PersonID, &p.Region, &p.CityProvince)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Profile{}, fmt.Errorf("profile %q: %w", personID, ErrNotFound)
	}
	if err != nil {
		return model.Profile{}, fmt.Errorf("query profiles: %w", err)
	}
	return p, nil
}

// PutProfile implements ProfileStore.
func (s *SQLStore) PutProfile(ctx context.Context, p model.Profile) error {
	if p.PersonID == "" {
		return fmt.Errorf("profile without person id: %w", ErrInvariantViolation)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM profiles WHERE person_id = ?"), p.PersonID); err != nil {
			return fmt.Errorf("clear profile: %w", err)
		}
		_, err := tx.ExecContext(ctx,
			s.rebind("INSERT INTO profiles (person_id, region, city_province) VALUES (?, ?, ?)"),
			p.PersonID, p.Region, p.CityProvince)
		if err != nil {
			return fmt.Errorf("insert profile: %w", err)
		}
		return nil
	})
}

func areaColumn(level model.AreaLevel) (string, error) {
	switch level {
	case model.Regional:
		return "region", nil
	case model.Local:
		return "city_province", nil
	default:
		return "", fmt.Errorf("area level %q has no profile column: %w", level, model.ErrUnknownValue)
	}
}

// PersonIDsByArea implements ProfileStore.
func (s *SQLStore) PersonIDsByArea(ctx context.Context, level model.AreaLevel, area string) ([]string, error) {
	col, err := areaColumn(level)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(fmt.Sprintf(
		"SELECT person_id FROM profiles WHERE %s <> '' AND LOWER(TRIM(%s)) = ? ORDER BY person_id", col, col)),
		foldArea(area))
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Areas implements ProfileStore.
func (s *SQLStore) Areas(ctx context.Context, level model.AreaLevel) ([]string, error) {
	col, err := areaColumn(level)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT DISTINCT LOWER(TRIM(%s)) AS area FROM profiles WHERE %s <> '' ORDER BY area", col, col))
	if err != nil {
		return nil, fmt.Errorf("query profile areas: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func unixTime(sec int64) time.Time { return time.Unix(sec, 0).UTC() }
