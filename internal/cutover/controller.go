// Package cutover replaces the active results dataset with a fresh export.
//
// A run downloads the export, loads it into the inactive dataset, validates
// it and then flips the dataset registry. Readers keep using the active
// dataset until the flip, so they never see a half-loaded one.
package cutover

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/okian/pcarank/internal/adapters/cache"
	"github.com/okian/pcarank/internal/adapters/repository"
	"github.com/okian/pcarank/internal/domain/model"
	"github.com/okian/pcarank/pkg/logger"
	"github.com/okian/pcarank/pkg/metrics"
)

const (
	defaultDataDir = "data/extracted"
	defaultLiteDir = "data/lite"
)

// Registry is the dataset registry as seen by the controller. Current
// must read the store, never a cache.
type Registry interface {
	Current(ctx context.Context) (model.RegistryState, error)
	Promote(ctx context.Context, target model.DatasetHandle) (model.DatasetHandle, error)
	Swap(ctx context.Context) (model.DatasetHandle, error)
}

// Recomputer schedules a recompute of every cached ranking.
type Recomputer interface {
	RecomputeAll(ctx context.Context, limit int) ([]string, error)
}

// Invalidator drops cache entries by key prefix.
type Invalidator interface {
	InvalidatePrefix(ctx context.Context, prefix string) (int, error)
}

// Controller runs the cutover state machine. At most one run is active.
type Controller struct {
	registry   Registry
	exports    repository.ExportStore
	importer   Importer
	validator  Validator
	downloader Downloader

	recompute      Recomputer
	recomputeLimit int
	invalidator    Invalidator
	invalidateAll  bool

	dataDir string
	liteDir string
	clock   clock.Clock
	log     logger.Logger

	mu        sync.Mutex
	running   bool
	state     State
	runID     string
	startedAt time.Time
	cancel    context.CancelFunc
	cancelled bool
	last      *Report
}

// New returns an idle Controller.
func New(registry Registry, exports repository.ExportStore, importer Importer, validator Validator, opts ...Option) *Controller {
	c := &Controller{
		registry:  registry,
		exports:   exports,
		importer:  importer,
		validator: validator,
		dataDir:   defaultDataDir,
		liteDir:   defaultLiteDir,
		clock:     clock.WallClock,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Get().Named("cutover")
	}
	metrics.UpdateCutoverState(int(Idle))
	return c
}

// Run executes a cutover and blocks until it finishes.
func (c *Controller) Run(ctx context.Context, opts Options) (Report, error) {
	runCtx, rep, err := c.begin(ctx, opts)
	if err != nil {
		return Report{}, err
	}
	return c.execute(runCtx, opts, rep)
}

// Start begins a cutover in the background and returns its run id. The run
// outlives ctx; use Cancel to stop it.
func (c *Controller) Start(ctx context.Context, opts Options) (string, error) {
	runCtx, rep, err := c.begin(context.WithoutCancel(ctx), opts)
	if err != nil {
		return "", err
	}
	go func() {
		_, _ = c.execute(runCtx, opts, rep)
	}()
	return rep.RunID, nil
}

// Cancel aborts the current run. Only DOWNLOADING and IMPORTING can be
// cancelled; once validation starts the run completes.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || !c.state.Cancellable() {
		return fmt.Errorf("%w: state %s", ErrNotCancellable, c.state)
	}
	c.cancelled = true
	c.cancel()
	c.log.Info(context.Background(), "cutover cancel requested",
		logger.String("run_id", c.runID), logger.String("state", c.state.String()))
	return nil
}

// Toggle swaps the datasets without importing. It is refused while a run
// is in progress; holding the run lock keeps a concurrent Start out until
// the swap commits.
func (c *Controller) Toggle(ctx context.Context) (model.DatasetHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return "", fmt.Errorf("%w: run %s is %s", ErrInProgress, c.runID, c.state)
	}
	active, err := c.registry.Swap(ctx)
	if err != nil {
		return "", err
	}
	if c.invalidateAll {
		c.dropRankings(ctx, cache.RankingPrefix, nil)
	}
	return active, nil
}

// Status returns the current state and the report of the last finished run.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{State: c.state}
	if c.running {
		st.RunID = c.runID
		st.StartedAt = c.startedAt
	}
	if c.last != nil {
		last := *c.last
		st.Last = &last
	}
	return st
}

func (c *Controller) begin(ctx context.Context, opts Options) (context.Context, Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil, Report{}, fmt.Errorf("%w: run %s is %s", ErrInProgress, c.runID, c.state)
	}
	if opts.Download && !opts.TestMode && c.downloader == nil {
		return nil, Report{}, fmt.Errorf("%w: no downloader configured", ErrDownload)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.running = true
	c.cancelled = false
	c.cancel = cancel
	c.runID = uuid.NewString()
	c.startedAt = c.clock.Now()

	return runCtx, Report{RunID: c.runID, StartedAt: c.startedAt, Options: opts}, nil
}

func (c *Controller) execute(ctx context.Context, opts Options, rep Report) (Report, error) {
	c.log.Info(ctx, "cutover started",
		logger.String("run_id", rep.RunID),
		logger.Bool("download", opts.Download),
		logger.Bool("test_mode", opts.TestMode),
		logger.Bool("force", opts.Force),
	)
	err := c.run(ctx, opts, &rep)
	return c.finish(rep, err)
}

func (c *Controller) run(ctx context.Context, opts Options, rep *Report) error {
	dir := c.dataDir
	if opts.TestMode {
		dir = c.liteDir
	}

	if opts.Download && !opts.TestMode {
		if err := c.stage(ctx, Downloading, true, func() error {
			return c.downloader.Fetch(ctx, dir)
		}); err != nil {
			return err
		}
	}

	var meta model.ExportMetadata
	err := c.stage(ctx, Importing, true, func() error {
		var found bool
		var err error
		meta, found, err = ReadMetadata(dir)
		if err != nil {
			return importErr("metadata", "", err)
		}
		rep.Export = meta

		if found && !opts.Force {
			last, ok, err := c.exports.LastExport(ctx)
			if err != nil {
				return fmt.Errorf("read last export: %w", err)
			}
			if ok && upToDate(meta, last) {
				rep.Skipped = true
				return nil
			}
		}

		st, err := c.registry.Current(ctx)
		if err != nil {
			return err
		}
		rep.Target = st.Inactive
		// Entries left over from the last time this dataset was active
		// would become reachable again after the promote.
		c.dropRankings(ctx, cache.DatasetPrefix(st.Inactive), rep)

		stats, err := c.importer.Import(ctx, st.Inactive, dir)
		rep.Imported = stats
		return err
	})
	if err != nil || rep.Skipped {
		return err
	}

	if err := c.stage(ctx, Validating, true, func() error {
		return c.validator.Validate(ctx, rep.Target, opts.TestMode)
	}); err != nil {
		return err
	}

	// The flip is a single transaction; it runs to completion even if the
	// caller goes away.
	swapCtx := context.WithoutCancel(ctx)
	if err := c.stage(swapCtx, Swapping, false, func() error {
		active, err := c.registry.Promote(swapCtx, rep.Target)
		rep.Active = active
		return err
	}); err != nil {
		return err
	}

	c.afterSwap(swapCtx, meta, rep)
	return nil
}

// stage moves to s and runs fn. When checkCancel is set the transition is
// refused once the run has been cancelled, which makes Cancel and leaving a
// cancellable state mutually exclusive.
func (c *Controller) stage(ctx context.Context, s State, checkCancel bool, fn func() error) error {
	c.mu.Lock()
	if checkCancel {
		if err := ctx.Err(); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	c.state = s
	c.mu.Unlock()

	metrics.UpdateCutoverState(int(s))
	c.log.Info(ctx, "cutover stage", logger.String("run_id", c.currentRunID()), logger.String("state", s.String()))

	start := c.clock.Now()
	err := fn()
	metrics.RecordCutoverStageDuration(s.String(), float64(c.clock.Now().Sub(start))/float64(time.Millisecond))
	return err
}

func (c *Controller) afterSwap(ctx context.Context, meta model.ExportMetadata, rep *Report) {
	if meta.ExportDate != "" {
		meta.ImportedAt = c.clock.Now().UTC()
		if err := c.exports.RecordExport(ctx, meta); err != nil {
			rep.Warnings = append(rep.Warnings, "record export metadata: "+err.Error())
		}
	}

	if c.invalidateAll {
		rep.Invalidated += c.dropRankings(ctx, cache.RankingPrefix, rep)
	}

	if c.recompute != nil {
		ids, err := c.recompute.RecomputeAll(ctx, c.recomputeLimit)
		if err != nil {
			rep.Warnings = append(rep.Warnings, "schedule recompute: "+err.Error())
		}
		rep.RecomputeTasks = ids
	}
}

// dropRankings removes cached rankings under prefix. Failures become report
// warnings when rep is set.
func (c *Controller) dropRankings(ctx context.Context, prefix string, rep *Report) int {
	if c.invalidator == nil {
		return 0
	}
	n, err := c.invalidator.InvalidatePrefix(ctx, prefix)
	if err != nil {
		c.log.Warn(ctx, "failed to drop cached rankings", logger.String("prefix", prefix), logger.Error(err))
		if rep != nil {
			rep.Warnings = append(rep.Warnings, "invalidate rankings: "+err.Error())
		}
	}
	return n
}

func (c *Controller) finish(rep Report, err error) (Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancel()
	if err != nil && c.cancelled && errors.Is(err, context.Canceled) {
		rep.Cancelled = true
		err = ErrCancelled
	}
	rep.FinishedAt = c.clock.Now()
	if err != nil {
		rep.Error = err.Error()
	}

	outcome := "ok"
	switch {
	case rep.Cancelled:
		outcome = "cancelled"
	case err != nil:
		outcome = "failed"
	case rep.Skipped:
		outcome = "skipped"
	}
	metrics.RecordCutoverRun(outcome)
	metrics.UpdateCutoverState(int(Idle))

	fields := []logger.Field{
		logger.String("run_id", rep.RunID),
		logger.String("outcome", outcome),
		logger.String("failed_in", c.state.String()),
		logger.Duration("elapsed", rep.FinishedAt.Sub(rep.StartedAt)),
	}
	if err != nil {
		c.log.Error(context.Background(), "cutover failed", append(fields, logger.Error(err))...)
	} else {
		c.log.Info(context.Background(), "cutover finished",
			logger.String("run_id", rep.RunID),
			logger.String("outcome", outcome),
			logger.String("active", string(rep.Active)),
			logger.Int("results", rep.Imported.Results),
			logger.Duration("elapsed", rep.FinishedAt.Sub(rep.StartedAt)),
		)
	}
	for _, w := range rep.Warnings {
		c.log.Warn(context.Background(), "cutover warning", logger.String("run_id", rep.RunID), logger.String("warning", w))
	}

	c.running = false
	c.state = Idle
	last := rep
	c.last = &last
	return rep, err
}

func (c *Controller) currentRunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID
}
