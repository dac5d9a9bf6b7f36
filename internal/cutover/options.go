package cutover

import (
	"github.com/juju/clock"

	"github.com/okian/pcarank/pkg/logger"
)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithClock sets the clock used for run timestamps and stage timings.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithDownloader enables the DOWNLOADING stage.
func WithDownloader(d Downloader) Option {
	return func(c *Controller) {
		if d != nil {
			c.downloader = d
		}
	}
}

// WithDataDir sets where the full export is extracted and read from.
func WithDataDir(dir string) Option {
	return func(c *Controller) {
		if dir != "" {
			c.dataDir = dir
		}
	}
}

// WithLiteDir sets the export directory imported in test mode.
func WithLiteDir(dir string) Option {
	return func(c *Controller) {
		if dir != "" {
			c.liteDir = dir
		}
	}
}

// WithRecomputeAfterSwap enqueues a full recompute at limit once a new
// dataset is active.
func WithRecomputeAfterSwap(r Recomputer, limit int) Option {
	return func(c *Controller) {
		if r != nil && limit > 0 {
			c.recompute = r
			c.recomputeLimit = limit
		}
	}
}

// WithRankingCache gives the controller the ranking cache. Before a
// dataset is reloaded its cached rankings are dropped.
func WithRankingCache(inv Invalidator) Option {
	return func(c *Controller) {
		if inv != nil {
			c.invalidator = inv
		}
	}
}

// WithRankingInvalidation sets the ranking cache and also drops every cached
// ranking once a new dataset is active.
func WithRankingInvalidation(inv Invalidator) Option {
	return func(c *Controller) {
		if inv != nil {
			c.invalidator = inv
			c.invalidateAll = true
		}
	}
}
