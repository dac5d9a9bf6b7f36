package service

import (
	"github.com/juju/clock"

	"github.com/okian/pcarank/internal/adapters/cache"
	"github.com/okian/pcarank/internal/adapters/repository"
	"github.com/okian/pcarank/internal/adapters/wca"
	"github.com/okian/pcarank/internal/config"
	"github.com/okian/pcarank/internal/cutover"
	"github.com/okian/pcarank/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			c := *cfg
			s.cfg = &c
		}
	}
}

// WithWorkerCount sets the number of recompute workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.cfg.WorkerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the recompute queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.cfg.QueueSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock sets the clock shared by the cache, store and schedulers.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithStore uses store instead of opening one from the configuration.
// The caller keeps ownership and closes it.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithCache uses c instead of opening one from the configuration.
// The caller keeps ownership and closes it.
func WithCache(c *cache.Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithDownloader replaces the HTTP export downloader.
func WithDownloader(d cutover.Downloader) Option {
	return func(s *Service) {
		s.downloader = d
	}
}

// WithCompetitionsAPI replaces the WCA competitions client.
func WithCompetitionsAPI(api wca.Competitions) Option {
	return func(s *Service) {
		s.competitionsAPI = api
	}
}
