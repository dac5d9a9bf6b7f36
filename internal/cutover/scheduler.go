package cutover

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"

	"github.com/okian/pcarank/pkg/logger"
)

// Runner is what the Scheduler triggers.
type Runner interface {
	Run(ctx context.Context, opts Options) (Report, error)
}

// Scheduler triggers a cutover every interval. Runs that find the export
// unchanged are skipped by the controller's freshness check.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	opts     Options
	clock    clock.Clock
	log      logger.Logger

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewScheduler returns a scheduler. A non-positive interval disables it.
func NewScheduler(runner Runner, interval time.Duration, opts Options, clk clock.Clock, log logger.Logger) *Scheduler {
	if clk == nil {
		clk = clock.WallClock
	}
	if log == nil {
		log = logger.Get().Named("cutover-scheduler")
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		opts:     opts,
		clock:    clk,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Enabled reports whether Start will schedule anything.
func (s *Scheduler) Enabled() bool { return s.interval > 0 }

// Start launches the loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.Enabled() || !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.loop(ctx)
}

// Stop ends the loop and waits for a run in flight to return.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.started.Load() {
		<-s.done
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	s.log.Info(ctx, "cutover schedule started", logger.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-s.clock.After(s.interval):
		}

		rep, err := s.runner.Run(ctx, s.opts)
		switch {
		case errors.Is(err, ErrInProgress):
			s.log.Debug(ctx, "scheduled cutover skipped, run in progress")
		case err != nil:
			s.log.Error(ctx, "scheduled cutover failed", logger.Error(err))
		case rep.Skipped:
			s.log.Debug(ctx, "scheduled cutover found export up to date", logger.String("export_date", rep.Export.ExportDate))
		default:
			s.log.Info(ctx, "scheduled cutover completed", logger.String("active", string(rep.Active)))
		}
	}
}
