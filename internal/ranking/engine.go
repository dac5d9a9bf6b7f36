// Package ranking computes top-N rankings from the active results dataset.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/pcarank/internal/adapters/repository"
	"github.com/okian/pcarank/internal/domain/codec"
	"github.com/okian/pcarank/internal/domain/model"
	"github.com/okian/pcarank/pkg/logger"
	"github.com/okian/pcarank/pkg/metrics"
)

// ActiveDataset resolves the dataset reads go to.
type ActiveDataset interface {
	Active(ctx context.Context) (model.DatasetHandle, error)
}

// Source is the slice of the store the engine reads.
type Source interface {
	repository.ResultReader
	Event(ctx context.Context, ds model.DatasetHandle, id string) (model.Event, error)
	Format(ctx context.Context, ds model.DatasetHandle, id string) (model.Format, error)
}

// Members lists the competitors registered in an area.
type Members interface {
	PersonIDsByArea(ctx context.Context, level model.AreaLevel, area string) ([]string, error)
}

// Engine answers ranking queries.
type Engine struct {
	registry    ActiveDataset
	source      Source
	members     Members
	log         logger.Logger
	homeCountry string
	maxLimit    int
}

// NewEngine returns an Engine.
func NewEngine(registry ActiveDataset, source Source, members Members, opts ...Option) *Engine {
	e := &Engine{
		registry:    registry,
		source:      source,
		members:     members,
		homeCountry: DefaultHomeCountry,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.Get().Named("ranking")
	}
	return e
}

// HomeCountry is the country rankings are scoped to.
func (e *Engine) HomeCountry() string { return e.homeCountry }

// Validate checks q without touching any store.
func (e *Engine) Validate(q model.RankingQuery) error {
	switch {
	case strings.TrimSpace(q.EventID) == "":
		return fmt.Errorf("%w: event is required", ErrInvalidQuery)
	case !q.RankType.Valid():
		return fmt.Errorf("%w: rank type %q", ErrInvalidQuery, q.RankType)
	case !q.Level.Valid():
		return fmt.Errorf("%w: area level %q", ErrInvalidQuery, q.Level)
	case q.Limit <= 0:
		return fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidQuery, q.Limit)
	case e.maxLimit > 0 && q.Limit > e.maxLimit:
		return fmt.Errorf("%w: limit %d exceeds %d", ErrInvalidQuery, q.Limit, e.maxLimit)
	case q.Level != model.National && strings.TrimSpace(q.Area) == "":
		return fmt.Errorf("%w: %s rankings need an area", ErrInvalidQuery, q.Level)
	}
	return nil
}

// Active returns the dataset queries currently read from.
func (e *Engine) Active(ctx context.Context) (model.DatasetHandle, error) {
	return e.registry.Active(ctx)
}

// Query returns at most q.Limit rows, one per competitor, best first, from
// the active dataset. Ties keep the order of the underlying result ids.
func (e *Engine) Query(ctx context.Context, q model.RankingQuery) ([]model.RankingRow, error) {
	if err := e.Validate(q); err != nil {
		return nil, err
	}
	ds, err := e.registry.Active(ctx)
	if err != nil {
		return nil, err
	}
	return e.QueryDataset(ctx, ds, q)
}

// QueryDataset is Query against a dataset the caller already resolved, so
// the caller can cache the rows under that same dataset.
func (e *Engine) QueryDataset(ctx context.Context, ds model.DatasetHandle, q model.RankingQuery) ([]model.RankingRow, error) {
	start := time.Now()
	rows, err := e.query(ctx, ds, q)

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case len(rows) == 0:
		outcome = "empty"
	}
	metrics.RecordRankingQuery(string(q.RankType), string(q.Level), outcome)
	metrics.RecordRankingQueryLatency(string(q.RankType), float64(time.Since(start).Nanoseconds())/1e6)
	if err == nil {
		metrics.RecordRankingRows(len(rows))
	}
	return rows, err
}

func (e *Engine) query(ctx context.Context, ds model.DatasetHandle, q model.RankingQuery) ([]model.RankingRow, error) {
	if err := e.Validate(q); err != nil {
		return nil, err
	}
	if !ds.Valid() {
		return nil, fmt.Errorf("%w: dataset %q", ErrInvalidQuery, ds)
	}

	filter := repository.ResultFilter{
		Dataset:   ds,
		EventID:   q.EventID,
		RankType:  q.RankType,
		CountryID: e.homeCountry,
	}
	if q.Level != model.National {
		ids, err := e.members.PersonIDsByArea(ctx, q.Level, q.Area)
		if err != nil {
			return nil, fmt.Errorf("resolve %s area %q: %w", q.Level, q.Area, err)
		}
		if len(ids) == 0 {
			return []model.RankingRow{}, nil
		}
		filter.PersonIDs = ids
	}

	kind := e.eventKind(ctx, ds, q.EventID)
	trimmed := make(map[string]bool)
	seen := make(map[string]struct{}, q.Limit)
	rows := make([]model.RankingRow, 0, q.Limit)

	err := e.source.ForEachResult(ctx, filter, func(r model.Result) error {
		if _, dup := seen[r.PersonID]; dup {
			return nil
		}
		seen[r.PersonID] = struct{}{}

		rows = append(rows, e.render(ctx, ds, len(rows)+1, r, kind, q.RankType, trimmed))
		if len(rows) >= q.Limit {
			return repository.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s results: %w", q.EventID, err)
	}
	return rows, nil
}

// eventKind reads the event's format from the dataset, falling back to the
// static universe table.
func (e *Engine) eventKind(ctx context.Context, ds model.DatasetHandle, eventID string) codec.FormatKind {
	ev, err := e.source.Event(ctx, ds, eventID)
	if err == nil {
		if kind, perr := codec.ParseFormatKind(ev.Format); perr == nil {
			return kind
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		e.log.Warn(ctx, "event lookup failed", logger.String("event", eventID), logger.Error(err))
	}
	if info, ok := LookupEvent(eventID); ok {
		return info.Kind
	}
	return codec.Time
}

// isTrimmed reports whether formatID is a trimmed mean of five, memoised
// per query in cache.
func (e *Engine) isTrimmed(ctx context.Context, ds model.DatasetHandle, formatID string, cache map[string]bool) bool {
	if v, ok := cache[formatID]; ok {
		return v
	}
	f, err := e.source.Format(ctx, ds, formatID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		e.log.Warn(ctx, "format lookup failed", logger.String("format", formatID), logger.Error(err))
	}
	v := err == nil && f.TrimmedMeanOfFive()
	cache[formatID] = v
	return v
}

func (e *Engine) render(ctx context.Context, ds model.DatasetHandle, rank int, r model.Result,
	kind codec.FormatKind, rt model.RankType, trimmed map[string]bool) model.RankingRow {
	raw := r.Outcome(rt)
	row := model.RankingRow{
		Rank:          rank,
		CompetitionID: r.CompetitionID,
		EventID:       r.EventID,
		PersonName:    r.PersonName,
		PersonID:      r.PersonID,
		Raw:           raw,
	}

	value, _, err := codec.FormatValue(raw, kind, rt)
	if err != nil {
		metrics.RecordCodecError(kind.String())
		e.log.Debug(ctx, "unrenderable ranking value",
			logger.Int64("result_id", r.ID), logger.Int64("raw", raw), logger.Error(err))
		value = codec.Placeholder(raw)
	}
	row.Value = value

	trim := rt == model.Average && e.isTrimmed(ctx, ds, r.FormatID, trimmed)
	solves, err := codec.FormatSolves(r.Values, kind, trim)
	if err != nil {
		metrics.RecordCodecError(kind.String())
		e.log.Debug(ctx, "unrenderable attempt", logger.Int64("result_id", r.ID), logger.Error(err))
	}
	row.Solves = solves
	return row
}
