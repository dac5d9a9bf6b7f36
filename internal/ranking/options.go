package ranking

import "github.com/okian/pcarank/pkg/logger"

// DefaultHomeCountry is the country every ranking is scoped to.
const DefaultHomeCountry = "Philippines"

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithHomeCountry sets the country filter.
func WithHomeCountry(country string) Option {
	return func(e *Engine) {
		if country != "" {
			e.homeCountry = country
		}
	}
}

// WithMaxLimit rejects queries asking for more than n rows. Zero disables.
func WithMaxLimit(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxLimit = n
		}
	}
}
