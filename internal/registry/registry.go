// Package registry tracks which dataset table set serves reads.
package registry

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/okian/pcarank/internal/adapters/cache"
	"github.com/okian/pcarank/internal/adapters/repository"
	"github.com/okian/pcarank/internal/domain/model"
	"github.com/okian/pcarank/pkg/logger"
	"github.com/okian/pcarank/pkg/metrics"
)

// Registry resolves and swaps the active dataset. Reads go through the
// cache under cache.RegistryKey.
type Registry struct {
	store repository.RegistryStore
	cache *cache.Cache
	log   logger.Logger

	// gen is bumped after every committed change. A cache fill that saw a
	// different generation may hold a pre-change row and is dropped.
	gen atomic.Uint64
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// New returns a Registry over store and c.
func New(store repository.RegistryStore, c *cache.Cache, opts ...Option) *Registry {
	r := &Registry{store: store, cache: c}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Get().Named("registry")
	}
	return r
}

// Active returns the dataset currently serving reads.
func (r *Registry) Active(ctx context.Context) (model.DatasetHandle, error) {
	st, err := r.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	return st.Active, nil
}

// Snapshot returns the active and inactive handles, from the cache when
// possible. It can lag a swap made by another process by the registry TTL.
func (r *Registry) Snapshot(ctx context.Context) (model.RegistryState, error) {
	if st, ok, err := r.cache.Registry(ctx); err != nil {
		r.log.Warn(ctx, "registry cache read failed", logger.Error(err))
	} else if ok {
		return st, nil
	}
	return r.Current(ctx)
}

// Current reads the registry row from the store and refreshes the cache.
// Decisions that must not act on a stale row, such as picking the dataset
// to overwrite, use Current instead of Snapshot.
func (r *Registry) Current(ctx context.Context) (model.RegistryState, error) {
	gen := r.gen.Load()
	st, err := r.store.Registry(ctx)
	if err != nil {
		return model.RegistryState{}, fmt.Errorf("load dataset registry: %w", err)
	}
	if err := r.cache.PutRegistry(ctx, st); err != nil {
		r.log.Warn(ctx, "registry cache write failed", logger.Error(err))
	}
	if r.gen.Load() != gen {
		// A change committed while we were reading; st may predate it.
		r.dropCached(ctx)
		return st, nil
	}
	metrics.UpdateActiveDataset(string(st.Active), datasetNames()...)
	return st, nil
}

// Swap exchanges the active and inactive datasets and returns the new
// active one. The cached state is dropped after the store commits.
func (r *Registry) Swap(ctx context.Context) (model.DatasetHandle, error) {
	st, err := r.store.SwapRegistry(ctx)
	if err != nil {
		return "", fmt.Errorf("swap dataset registry: %w", err)
	}
	r.changed(ctx, st)
	return st.Active, nil
}

// Promote makes target active. It fails with repository.ErrConflict when
// target is not the inactive dataset, which happens when another process
// swapped the registry after target was chosen.
func (r *Registry) Promote(ctx context.Context, target model.DatasetHandle) (model.DatasetHandle, error) {
	st, err := r.store.PromoteRegistry(ctx, target)
	if err != nil {
		// Whatever we have cached is suspect now.
		r.dropCached(ctx)
		return "", fmt.Errorf("promote dataset %s: %w", target, err)
	}
	r.changed(ctx, st)
	return st.Active, nil
}

func (r *Registry) changed(ctx context.Context, st model.RegistryState) {
	r.gen.Add(1)
	r.dropCached(ctx)
	metrics.UpdateActiveDataset(string(st.Active), datasetNames()...)
	r.log.Info(ctx, "active dataset swapped",
		logger.String("active", string(st.Active)),
		logger.String("inactive", string(st.Inactive)))
}

func (r *Registry) dropCached(ctx context.Context) {
	if err := r.cache.Invalidate(ctx, cache.RegistryKey); err != nil {
		r.log.Error(ctx, "failed to invalidate cached registry", logger.Error(err))
	}
}

// Init creates the registry row. Calling it twice is an invariant violation.
func (r *Registry) Init(ctx context.Context) (model.RegistryState, error) {
	st, err := r.store.InitRegistry(ctx)
	if err != nil {
		return model.RegistryState{}, fmt.Errorf("init dataset registry: %w", err)
	}
	r.gen.Add(1)
	r.dropCached(ctx)
	return st, nil
}

func datasetNames() []string {
	out := make([]string, len(model.Datasets))
	for i, d := range model.Datasets {
		out[i] = string(d)
	}
	return out
}
