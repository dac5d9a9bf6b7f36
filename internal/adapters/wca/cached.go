package wca

import (
	"context"
	"time"

	"github.com/okian/pcarank/internal/domain/model"
	"github.com/okian/pcarank/pkg/logger"
)

// CompetitionsCache stores the competitions listing.
type CompetitionsCache interface {
	Competitions(ctx context.Context) ([]model.UpcomingCompetition, bool, error)
	PutCompetitions(ctx context.Context, comps []model.UpcomingCompetition, ttl time.Duration) error
}

// Cached serves the listing from a cache and refreshes it from the API once
// the entry has expired.
type Cached struct {
	next  Competitions
	cache CompetitionsCache
	ttl   time.Duration
	log   logger.Logger
}

// NewCached wraps next with cache.
func NewCached(next Competitions, cache CompetitionsCache, ttl time.Duration, log logger.Logger) *Cached {
	if log == nil {
		log = logger.Get().Named("wca")
	}
	return &Cached{next: next, cache: cache, ttl: ttl, log: log}
}

// Competitions implements Competitions. Cache failures fall through to the API.
func (c *Cached) Competitions(ctx context.Context) ([]model.UpcomingCompetition, error) {
	comps, ok, err := c.cache.Competitions(ctx)
	if err != nil {
		c.log.Warn(ctx, "competitions cache read failed", logger.Error(err))
	}
	if ok {
		return comps, nil
	}

	comps, err = c.next.Competitions(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.cache.PutCompetitions(ctx, comps, c.ttl); err != nil {
		c.log.Warn(ctx, "competitions cache write failed", logger.Error(err))
	}
	return comps, nil
}
