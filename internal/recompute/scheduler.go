// Package recompute rebuilds cached rankings in the background.
//
// Callers enqueue a task naming an area; a worker later runs Handle, which
// recomputes single and average rankings for every event of the universe
// and writes them to the ranking cache.
package recompute

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"

	"github.com/okian/pcarank/internal/adapters/cache"
	"github.com/okian/pcarank/internal/adapters/mq/queue"
	"github.com/okian/pcarank/internal/domain/dedupe"
	"github.com/okian/pcarank/internal/domain/model"
	"github.com/okian/pcarank/internal/ranking"
	"github.com/okian/pcarank/pkg/logger"
	"github.com/okian/pcarank/pkg/metrics"
)

// Enqueuer is the producer side of the task queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, t queue.Task) error
}

// Querier computes one ranking against a resolved dataset.
type Querier interface {
	Active(ctx context.Context) (model.DatasetHandle, error)
	QueryDataset(ctx context.Context, ds model.DatasetHandle, q model.RankingQuery) ([]model.RankingRow, error)
}

// Writer stores a ranking computed from ds.
type Writer interface {
	PutRankings(ctx context.Context, ds model.DatasetHandle, q model.RankingQuery, rows []model.RankingRow) error
}

// AreaLister enumerates the areas competitors are registered in.
type AreaLister interface {
	Areas(ctx context.Context, level model.AreaLevel) ([]string, error)
}

// Scheduler enqueues recompute tasks and handles them on the worker side.
type Scheduler struct {
	queue   Enqueuer
	engine  Querier
	writer  Writer
	areas   AreaLister
	pending dedupe.Set

	// claimMu makes claiming a key and recording its task id one step, so
	// a coalesced caller always finds the id.
	claimMu sync.Mutex
	// pendingIDs maps a coalescing key to the id of the queued task.
	pendingIDs map[string]string

	events      []string
	parallelism int
	clock       clock.Clock
	log         logger.Logger
}

// New returns a Scheduler.
func New(q Enqueuer, engine Querier, writer Writer, areas AreaLister, opts ...Option) *Scheduler {
	s := &Scheduler{
		queue:       q,
		engine:      engine,
		writer:      writer,
		areas:       areas,
		events:      ranking.EventIDs(),
		parallelism: defaultParallelism,
		clock:       clock.WallClock,
		pendingIDs:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pending == nil {
		s.pending = dedupe.NewPendingSet()
	}
	if s.log == nil {
		s.log = logger.Get().Named("recompute")
	}
	return s
}

// Enqueue schedules a recompute of every ranking for one area and returns
// the task id. When an identical task is still waiting in the queue its id
// is returned instead of queuing another.
func (s *Scheduler) Enqueue(ctx context.Context, level model.AreaLevel, area string, limit int, reason string) (string, error) {
	t, err := s.newTask(level, area, limit, reason)
	if err != nil {
		return "", err
	}

	key := pendingKey(t.Level, t.Area, t.Limit)

	// The queue never blocks on Enqueue, so it is safe under claimMu.
	s.claimMu.Lock()
	if !s.pending.Claim(ctx, key) {
		id := s.pendingIDs[key]
		s.claimMu.Unlock()
		metrics.RecordRecomputeTask("coalesced")
		return id, nil
	}
	s.pendingIDs[key] = t.ID
	err = s.queue.Enqueue(ctx, t)
	if err != nil {
		delete(s.pendingIDs, key)
		s.pending.Release(ctx, key)
	}
	s.claimMu.Unlock()

	if err != nil {
		metrics.RecordRecomputeTask("rejected")
		if errors.Is(err, queue.ErrFull) {
			return "", ErrQueueFull
		}
		return "", fmt.Errorf("enqueue recompute: %w", err)
	}

	metrics.RecordRecomputeTask("enqueued")
	s.log.Debug(ctx, "recompute enqueued",
		logger.String("task_id", t.ID),
		logger.String("level", string(t.Level)),
		logger.String("area", t.Area),
		logger.Int("limit", t.Limit),
		logger.String("reason", reason),
	)
	return t.ID, nil
}

// Run recomputes one area in the calling goroutine, bypassing the queue.
func (s *Scheduler) Run(ctx context.Context, level model.AreaLevel, area string, limit int, reason string) error {
	t, err := s.newTask(level, area, limit, reason)
	if err != nil {
		return err
	}
	return s.Handle(ctx, t)
}

func (s *Scheduler) newTask(level model.AreaLevel, area string, limit int, reason string) (queue.Task, error) {
	if !level.Valid() {
		return queue.Task{}, fmt.Errorf("%w: area level %q", ErrInvalidTask, level)
	}
	if level == model.National {
		area = ""
	}
	area = strings.TrimSpace(area)
	if level != model.National && area == "" {
		return queue.Task{}, fmt.Errorf("%w: %s recompute needs an area", ErrInvalidTask, level)
	}
	if limit <= 0 {
		return queue.Task{}, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidTask, limit)
	}
	return queue.Task{
		ID:         uuid.NewString(),
		Level:      level,
		Area:       area,
		Limit:      limit,
		Reason:     reason,
		EnqueuedAt: s.clock.Now(),
	}, nil
}

// AreaChanged schedules recomputes for both the area a competitor left and
// the one they joined. Empty values are skipped and equal values collapse
// into one task.
func (s *Scheduler) AreaChanged(ctx context.Context, level model.AreaLevel, oldArea, newArea string, limit int) ([]string, error) {
	if level == model.National {
		return nil, fmt.Errorf("%w: national rankings have no area", ErrInvalidTask)
	}

	var (
		ids    []string
		result *multierror.Error
	)
	seen := make(map[string]bool, 2)
	for _, area := range []string{oldArea, newArea} {
		if strings.TrimSpace(area) == "" {
			continue
		}
		norm := cache.NormalizeArea(area)
		if seen[norm] {
			continue
		}
		seen[norm] = true

		id, err := s.Enqueue(ctx, level, area, limit, "area_changed")
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("area %q: %w", area, err))
			continue
		}
		ids = append(ids, id)
	}
	return ids, result.ErrorOrNil()
}

// RecomputeAll schedules the national ranking plus every regional and local
// area known to the account directory.
func (s *Scheduler) RecomputeAll(ctx context.Context, limit int) ([]string, error) {
	var result *multierror.Error

	ids := make([]string, 0, 1)
	id, err := s.Enqueue(ctx, model.National, "", limit, "recompute_all")
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("national: %w", err))
	} else {
		ids = append(ids, id)
	}

	for _, level := range []model.AreaLevel{model.Regional, model.Local} {
		areas, err := s.areas.Areas(ctx, level)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("list %s areas: %w", level, err))
			continue
		}
		for _, area := range areas {
			id, err := s.Enqueue(ctx, level, area, limit, "recompute_all")
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("%s %q: %w", level, area, err))
				continue
			}
			ids = append(ids, id)
		}
	}
	return ids, result.ErrorOrNil()
}

// Handle runs a task. Every event and rank type is an independent unit; a
// failing unit is logged and collected while the rest carry on. The
// aggregate error is returned for the worker to report.
func (s *Scheduler) Handle(ctx context.Context, t queue.Task) error { //nolint:gocritic // hugeParam: tasks travel by value
	key := pendingKey(t.Level, t.Area, t.Limit)
	s.claimMu.Lock()
	if s.pendingIDs[key] == t.ID {
		delete(s.pendingIDs, key)
		s.pending.Release(ctx, key)
	}
	s.claimMu.Unlock()

	// Every unit reads and writes the same dataset even if a swap lands
	// halfway through.
	ds, err := s.engine.Active(ctx)
	if err != nil {
		metrics.RecordRecomputeTask("failed")
		return fmt.Errorf("resolve active dataset: %w", err)
	}

	start := s.clock.Now()
	var (
		mu     sync.Mutex
		result *multierror.Error
		wg     sync.WaitGroup
	)
	sem := make(chan struct{}, s.parallelism)

	for _, eventID := range s.events {
		for _, rt := range model.RankTypes {
			q := model.RankingQuery{EventID: eventID, RankType: rt, Level: t.Level, Area: t.Area, Limit: t.Limit}

			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()

				if err := s.unit(ctx, ds, q); err != nil {
					metrics.RecordRecomputeUnit(string(q.RankType), "error")
					s.log.Warn(ctx, "recompute unit failed",
						logger.String("task_id", t.ID),
						logger.String("event", q.EventID),
						logger.String("rank_type", string(q.RankType)),
						logger.Error(err),
					)
					mu.Lock()
					result = multierror.Append(result, fmt.Errorf("%s %s: %w", q.RankType, q.EventID, err))
					mu.Unlock()
					return
				}
				metrics.RecordRecomputeUnit(string(q.RankType), "ok")
			}()
		}
	}
	wg.Wait()

	elapsed := s.clock.Now().Sub(start)
	metrics.RecordRecomputeDuration(float64(elapsed) / float64(time.Millisecond))

	err = result.ErrorOrNil()
	outcome, failed := "done", 0
	if err != nil {
		outcome, failed = "partial", len(result.Errors)
	}
	metrics.RecordRecomputeTask(outcome)
	s.log.Info(ctx, "recompute finished",
		logger.String("task_id", t.ID),
		logger.String("level", string(t.Level)),
		logger.String("area", t.Area),
		logger.Int("failed_units", failed),
		logger.Duration("elapsed", elapsed),
	)
	return err
}

func (s *Scheduler) unit(ctx context.Context, ds model.DatasetHandle, q model.RankingQuery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rows, err := s.engine.QueryDataset(ctx, ds, q)
	if err != nil {
		return err
	}
	return s.writer.PutRankings(ctx, ds, q, rows)
}

func pendingKey(level model.AreaLevel, area string, limit int) string {
	return string(level) + ":" + cache.NormalizeArea(area) + ":" + strconv.Itoa(limit)
}

