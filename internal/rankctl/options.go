package rankctl

import (
	"io"

	service "github.com/okian/pcarank/internal/app"
	"github.com/okian/pcarank/internal/config"
	"github.com/okian/pcarank/pkg/logger"
)

// Option configures a CLI.
type Option func(*CLI)

// WithOutput sets the writers for command output and errors.
func WithOutput(out, errOut io.Writer) Option {
	return func(c *CLI) {
		c.out, c.errOut = out, errOut
	}
}

// WithConfig skips loading configuration from file and environment.
func WithConfig(cfg *config.Config) Option {
	return func(c *CLI) {
		cp := *cfg
		c.cfg = &cp
	}
}

// WithLogger skips global logger initialization.
func WithLogger(l logger.Logger) Option {
	return func(c *CLI) {
		c.log = l
	}
}

// WithServiceOptions appends options to every service the CLI starts.
func WithServiceOptions(opts ...service.Option) Option {
	return func(c *CLI) {
		c.svcOpts = append(c.svcOpts, opts...)
	}
}
