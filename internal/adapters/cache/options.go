package cache

import (
	"time"

	"github.com/juju/clock"
	"github.com/okian/pcarank/pkg/logger"
)

type options struct {
	clock      clock.Clock
	log        logger.Logger
	rankingTTL  time.Duration
	registryTTL time.Duration
}

// DefaultRegistryTTL bounds how long a process trusts its cached registry
// after another process swapped the datasets.
const DefaultRegistryTTL = 30 * time.Second

func defaultOptions() options {
	return options{clock: clock.WallClock, registryTTL: DefaultRegistryTTL}
}

// Option applies a configuration option to a cache or backend.
type Option func(*options)

// WithClock sets the clock used for expiry.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the cache logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithRankingTTL expires ranking entries after ttl. Zero keeps them until
// they are overwritten or invalidated.
func WithRankingTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl >= 0 {
			o.rankingTTL = ttl
		}
	}
}

// WithRegistryTTL expires the cached registry row after ttl. Zero keeps it
// until the next swap in this process.
func WithRegistryTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl >= 0 {
			o.registryTTL = ttl
		}
	}
}
