package recompute

import (
	"github.com/juju/clock"

	"github.com/okian/pcarank/internal/domain/dedupe"
	"github.com/okian/pcarank/pkg/logger"
)

const defaultParallelism = 4

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock sets the clock used to stamp tasks.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithParallelism bounds how many event units of one task run at once.
func WithParallelism(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// WithPending replaces the set used to coalesce identical pending tasks.
func WithPending(set dedupe.Set) Option {
	return func(s *Scheduler) {
		if set != nil {
			s.pending = set
		}
	}
}

// WithEvents overrides the event universe recomputed per task.
func WithEvents(ids []string) Option {
	return func(s *Scheduler) {
		if len(ids) > 0 {
			s.events = append([]string(nil), ids...)
		}
	}
}
