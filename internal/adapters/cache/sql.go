package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	// Registered database/sql drivers.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/juju/clock"
)

const tableName = "cache_entries"

// likeEscape is the LIKE escape character used for prefix deletes.
const likeEscape = "!"

// SQL is a Backend stored in a cache_entries table.
type SQL struct {
	db    *sql.DB
	kind  Kind
	clock clock.Clock
}

// OpenSQL connects to dsn and creates the cache table if needed.
func OpenSQL(ctx context.Context, kind Kind, dsn string, opts ...Option) (*SQL, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	var driver string
	switch kind {
	case KindSQLite:
		driver = "sqlite"
	case KindMySQL:
		driver = "mysql"
	case KindPostgres:
		driver = "pgx"
	default:
		return nil, fmt.Errorf("cache backend %q: %w", kind, ErrUnsupportedBackend)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s cache: %w", kind, err)
	}
	if kind == KindSQLite {
		// Limit SQLite to a single open connection to avoid "database is locked".
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s cache: %w", kind, err)
	}

	s := &SQL{db: db, kind: kind, clock: o.clock}
	if _, err := db.ExecContext(ctx, s.createTableQuery()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create table %s: %w", tableName, err)
	}
	return s, nil
}

func (s *SQL) createTableQuery() string {
	switch s.kind {
	case KindMySQL:
		return `CREATE TABLE IF NOT EXISTS cache_entries (
			cache_key VARCHAR(255) PRIMARY KEY,
			cache_value LONGBLOB NOT NULL,
			expires_at BIGINT NOT NULL
		)`
	case KindPostgres:
		return `CREATE TABLE IF NOT EXISTS cache_entries (
			cache_key TEXT PRIMARY KEY,
			cache_value BYTEA NOT NULL,
			expires_at BIGINT NOT NULL
		)`
	default:
		return `CREATE TABLE IF NOT EXISTS cache_entries (
			cache_key TEXT PRIMARY KEY,
			cache_value BLOB NOT NULL,
			expires_at INTEGER NOT NULL
		)`
	}
}

// ph returns the n-th (1-based) placeholder.
func (s *SQL) ph(n int) string {
	if s.kind == KindPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQL) upsertQuery() string {
	switch s.kind {
	case KindMySQL:
		return `INSERT INTO cache_entries (cache_key, cache_value, expires_at) VALUES (?, ?, ?) AS new
			ON DUPLICATE KEY UPDATE cache_value = new.cache_value, expires_at = new.expires_at`
	case KindPostgres:
		return `INSERT INTO cache_entries (cache_key, cache_value, expires_at) VALUES ($1, $2, $3)
			ON CONFLICT (cache_key) DO UPDATE SET cache_value = EXCLUDED.cache_value, expires_at = EXCLUDED.expires_at`
	default:
		return `INSERT OR REPLACE INTO cache_entries (cache_key, cache_value, expires_at) VALUES (?, ?, ?)`
	}
}

// Get implements Backend.
func (s *SQL) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value   []byte
		expires int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT cache_value, expires_at FROM cache_entries WHERE cache_key = "+s.ph(1), key,
	).Scan(&value, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	if expires > 0 && s.clock.Now().UnixNano() >= expires {
		_ = s.Invalidate(ctx, key)
		return nil, false, nil
	}
	return value, true, nil
}

// Put implements Backend.
func (s *SQL) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	var expires int64
	if ttl > 0 {
		expires = s.clock.Now().Add(ttl).UnixNano()
	}
	if _, err := s.db.ExecContext(ctx, s.upsertQuery(), key, value, expires); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Invalidate implements Backend.
func (s *SQL) Invalidate(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE cache_key = "+s.ph(1), key); err != nil {
		return fmt.Errorf("invalidate %s: %w", key, err)
	}
	return nil
}

// InvalidatePrefix implements Backend.
func (s *SQL) InvalidatePrefix(ctx context.Context, prefix string) (int, error) {
	pattern := escapeLike(prefix) + "%"
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM cache_entries WHERE cache_key LIKE "+s.ph(1)+" ESCAPE '"+likeEscape+"'", pattern)
	if err != nil {
		return 0, fmt.Errorf("invalidate prefix %s: %w", prefix, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

// Len implements Backend. Expired rows are not counted.
func (s *SQL) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM cache_entries WHERE expires_at = 0 OR expires_at > "+s.ph(1),
		s.clock.Now().UnixNano(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return n, nil
}

// Close implements Backend.
func (s *SQL) Close() error { return s.db.Close() }

func escapeLike(s string) string {
	r := strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_")
	return r.Replace(s)
}
