package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/okian/pcarank/internal/domain/model"
	"github.com/okian/pcarank/pkg/logger"
	"github.com/okian/pcarank/pkg/metrics"
)

// Reserved keys.
const (
	RegistryKey     = "db_config"
	CompetitionsKey = "competitions"

	// RankingPrefix starts every ranking key.
	RankingPrefix = "ranking:"

	// CompetitionsTTL is how long the competitions listing is kept.
	CompetitionsTTL = 600 * time.Second
)

const (
	kindRankings     = "rankings"
	kindRegistry     = "registry"
	kindCompetitions = "competitions"
)

// NormalizeArea folds an area filter for use in keys. Empty becomes "-".
func NormalizeArea(area string) string {
	a := strings.ToLower(strings.TrimSpace(area))
	if a == "" {
		return "-"
	}
	return a
}

// DatasetPrefix starts every ranking key computed from ds.
func DatasetPrefix(ds model.DatasetHandle) string {
	return RankingPrefix + string(ds) + ":"
}

// RankingKey is the cache key for q computed from dataset ds. Logically
// equal queries against the same dataset share a key; a swap makes the
// previous dataset's entries unreachable.
func RankingKey(ds model.DatasetHandle, q model.RankingQuery) string {
	var b strings.Builder
	b.Grow(64)
	b.WriteString(DatasetPrefix(ds))
	b.WriteString(q.EventID)
	b.WriteByte(':')
	b.WriteString(string(q.RankType))
	b.WriteByte(':')
	b.WriteString(string(q.Level))
	b.WriteByte(':')
	if q.Level == model.National {
		b.WriteByte('-')
	} else {
		b.WriteString(NormalizeArea(q.Area))
	}
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(q.Limit))
	return b.String()
}

// Cache is the typed view of a Backend. Writes are last-writer-wins.
type Cache struct {
	backend     Backend
	log         logger.Logger
	rankingTTL  time.Duration
	registryTTL time.Duration
}

// New wraps backend.
func New(backend Backend, opts ...Option) *Cache {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Get().Named("cache")
	}
	return &Cache{backend: backend, log: o.log, rankingTTL: o.rankingTTL, registryTTL: o.registryTTL}
}

// Backend returns the underlying store.
func (c *Cache) Backend() Backend { return c.backend }

func (c *Cache) load(ctx context.Context, kind, key string, out any) (bool, error) {
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		metrics.RecordCacheError(kind)
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if !ok {
		metrics.RecordCacheMiss(kind)
		return false, nil
	}
	if err := msgpack.Unmarshal(raw, out); err != nil {
		// A value we cannot decode is treated as a miss and dropped.
		metrics.RecordCacheError(kind)
		c.log.Warn(ctx, "dropping undecodable cache entry", logger.String("key", key), logger.Error(err))
		_ = c.backend.Invalidate(ctx, key)
		return false, nil
	}
	metrics.RecordCacheHit(kind)
	return true, nil
}

func (c *Cache) store(ctx context.Context, kind, key string, v any, ttl time.Duration) error {
	raw, err := msgpack.Marshal(v)
	if err != nil {
		metrics.RecordCacheError(kind)
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.backend.Put(ctx, key, raw, ttl); err != nil {
		metrics.RecordCacheError(kind)
		return fmt.Errorf("cache put %s: %w", key, err)
	}
	metrics.RecordCacheWrite(kind)
	return nil
}

// Rankings returns the rows cached for q against ds.
func (c *Cache) Rankings(ctx context.Context, ds model.DatasetHandle, q model.RankingQuery) ([]model.RankingRow, bool, error) {
	var rows []model.RankingRow
	ok, err := c.load(ctx, kindRankings, RankingKey(ds, q), &rows)
	if err != nil || !ok {
		return nil, false, err
	}
	if rows == nil {
		rows = []model.RankingRow{}
	}
	return rows, true, nil
}

// PutRankings stores rows computed for q against ds.
func (c *Cache) PutRankings(ctx context.Context, ds model.DatasetHandle, q model.RankingQuery, rows []model.RankingRow) error {
	if rows == nil {
		rows = []model.RankingRow{}
	}
	return c.store(ctx, kindRankings, RankingKey(ds, q), rows, c.rankingTTL)
}

// Registry returns the cached registry state.
func (c *Cache) Registry(ctx context.Context) (model.RegistryState, bool, error) {
	var st model.RegistryState
	ok, err := c.load(ctx, kindRegistry, RegistryKey, &st)
	if err != nil || !ok {
		return model.RegistryState{}, false, err
	}
	if !st.Valid() {
		c.log.Warn(ctx, "ignoring invalid cached registry", logger.Any("state", st))
		return model.RegistryState{}, false, nil
	}
	return st, true, nil
}

// PutRegistry caches st for the registry TTL.
func (c *Cache) PutRegistry(ctx context.Context, st model.RegistryState) error {
	return c.store(ctx, kindRegistry, RegistryKey, st, c.registryTTL)
}

// Competitions returns the cached competitions listing.
func (c *Cache) Competitions(ctx context.Context) ([]model.UpcomingCompetition, bool, error) {
	var out []model.UpcomingCompetition
	ok, err := c.load(ctx, kindCompetitions, CompetitionsKey, &out)
	if err != nil || !ok {
		return nil, false, err
	}
	return out, true, nil
}

// PutCompetitions caches the listing for ttl.
func (c *Cache) PutCompetitions(ctx context.Context, comps []model.UpcomingCompetition, ttl time.Duration) error {
	return c.store(ctx, kindCompetitions, CompetitionsKey, comps, ttl)
}

// Invalidate removes key.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if err := c.backend.Invalidate(ctx, key); err != nil {
		metrics.RecordCacheError("invalidate")
		return fmt.Errorf("invalidate %s: %w", key, err)
	}
	metrics.RecordCacheInvalidation("key", 1)
	return nil
}

// InvalidatePrefix removes every key under prefix.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) (int, error) {
	n, err := c.backend.InvalidatePrefix(ctx, prefix)
	if err != nil {
		metrics.RecordCacheError("invalidate")
		return 0, fmt.Errorf("invalidate prefix %s: %w", prefix, err)
	}
	metrics.RecordCacheInvalidation("prefix", n)
	return n, nil
}

// Len reports the number of live entries and updates the entries gauge.
func (c *Cache) Len(ctx context.Context) (int, error) {
	n, err := c.backend.Len(ctx)
	if err != nil {
		return 0, err
	}
	metrics.UpdateCacheEntries(n)
	return n, nil
}

// Close closes the backend.
func (c *Cache) Close() error { return c.backend.Close() }
