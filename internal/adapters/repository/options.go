package repository

import (
	"github.com/juju/clock"
	"github.com/okian/pcarank/pkg/logger"
)

type options struct {
	log          logger.Logger
	clock        clock.Clock
	maxOpenConns int
	autoMigrate  bool
}

func defaultOptions() options {
	return options{
		clock:        clock.WallClock,
		maxOpenConns: 10,
	}
}

func (o *options) namedLogger() logger.Logger {
	if o.log == nil {
		return logger.Get().Named("repository")
	}
	return o.log
}

// Option applies a configuration option to a Store.
type Option func(*options)

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock sets the clock used to stamp export imports.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithMaxOpenConns caps the SQL connection pool. SQLite always uses one.
func WithMaxOpenConns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxOpenConns = n
		}
	}
}

// WithAutoMigrate runs the embedded migrations when the SQL store opens.
func WithAutoMigrate(enabled bool) Option {
	return func(o *options) {
		o.autoMigrate = enabled
	}
}
