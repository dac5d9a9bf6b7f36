// Package service wires the ranking components together and implements the
// operations exposed by the HTTP API and the admin CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"

	"github.com/okian/pcarank/internal/adapters/accounts"
	"github.com/okian/pcarank/internal/adapters/cache"
	"github.com/okian/pcarank/internal/adapters/mq/queue"
	"github.com/okian/pcarank/internal/adapters/mq/worker"
	"github.com/okian/pcarank/internal/adapters/repository"
	"github.com/okian/pcarank/internal/adapters/wca"
	"github.com/okian/pcarank/internal/config"
	"github.com/okian/pcarank/internal/cutover"
	"github.com/okian/pcarank/internal/domain/dedupe"
	"github.com/okian/pcarank/internal/domain/model"
	"github.com/okian/pcarank/internal/ranking"
	"github.com/okian/pcarank/internal/recompute"
	"github.com/okian/pcarank/internal/registry"
	"github.com/okian/pcarank/pkg/logger"
	"github.com/okian/pcarank/pkg/metrics"
)

const stopTimeout = 30 * time.Second

// Service implements the API dependencies for the ranking system.
type Service struct {
	mu sync.RWMutex

	cfg   *config.Config
	clock clock.Clock
	log   logger.Logger

	// Injected or opened on Start.
	store           repository.Store
	cache           *cache.Cache
	downloader      cutover.Downloader
	competitionsAPI wca.Competitions
	ownsStore       bool
	ownsCache       bool

	// Core components
	registry     *registry.Registry
	directory    *accounts.ProfileDirectory
	engine       *ranking.Engine
	records      *ranking.Records
	queue        *queue.InMemoryQueue
	pool         *worker.Pool
	recompute    *recompute.Scheduler
	cutover      *cutover.Controller
	schedule     *cutover.Scheduler
	competitions *wca.Cached

	// State
	started bool
	cancel  context.CancelFunc
}

// New constructs a new Service. Nothing is opened until Start.
func New(opts ...Option) *Service {
	s := &Service{
		cfg:   config.New(),
		clock: clock.WallClock,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store and cache unless injected, then starts the recompute
// workers and the cutover schedule.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.log == nil {
		s.log = logger.Get().Named("service")
	}
	cfg := s.cfg
	s.log.Info(ctx, "starting ranking service...",
		logger.String("store", cfg.StoreBackend),
		logger.String("cache", cfg.CacheBackend))

	if err := s.openStorage(ctx); err != nil {
		return err
	}

	s.registry = registry.New(s.store, s.cache, registry.WithLogger(s.log.Named("registry")))
	if s.ownsStore && cfg.StoreBackend == string(repository.BackendMemory) {
		// A fresh memory store has no registry row and nothing else creates one.
		if _, err := s.registry.Init(ctx); err != nil {
			s.closeStorage()
			return err
		}
	}

	s.directory = accounts.NewProfileDirectory(s.store)
	s.engine = ranking.NewEngine(s.registry, s.store, s.directory,
		ranking.WithLogger(s.log.Named("ranking")),
		ranking.WithHomeCountry(cfg.HomeCountry),
		ranking.WithMaxLimit(cfg.MaxLimit),
	)
	s.records = ranking.NewRecords(s.registry, s.store, s.log.Named("records"))

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(cfg.QueueSize))
	s.recompute = recompute.New(s.queue, s.engine, s.cache, s.directory,
		recompute.WithLogger(s.log.Named("recompute")),
		recompute.WithClock(s.clock),
		recompute.WithParallelism(cfg.RecomputeParallelism),
		recompute.WithPending(dedupe.NewPendingSet(dedupe.WithMaxSize(cfg.PendingSize))),
	)

	// Workers and the schedule outlive the start request.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.pool = worker.NewPool(cfg.WorkerCount, s.queue, s.recompute, worker.WithLogger(s.log.Named("worker")))
	s.pool.Start(runCtx)

	s.cutover = s.newCutover()
	s.schedule = cutover.NewScheduler(s.cutover, cfg.CutoverInterval, cutover.Options{Download: true},
		s.clock, s.log.Named("cutover-scheduler"))
	s.schedule.Start(runCtx)

	api := s.competitionsAPI
	if api == nil {
		api = wca.NewClient(
			wca.WithURL(cfg.CompetitionsURL),
			wca.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
			wca.WithLogger(s.log.Named("wca")),
		)
	}
	s.competitions = wca.NewCached(api, s.cache, cfg.CompetitionsTTL, s.log.Named("wca"))

	metrics.UpdateQueueCapacity(cfg.QueueSize)
	metrics.UpdateWorkerActiveCount(s.pool.Size())

	s.started = true
	s.log.Info(ctx, "ranking service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", cfg.QueueSize),
		logger.Bool("cutoverScheduled", s.schedule.Enabled()),
	)
	return nil
}

func (s *Service) openStorage(ctx context.Context) error {
	cfg := s.cfg
	if s.store == nil {
		store, err := repository.Open(ctx, repository.Backend(cfg.StoreBackend), cfg.StoreDSN,
			repository.WithLogger(s.log.Named("repository")),
			repository.WithClock(s.clock),
			repository.WithAutoMigrate(cfg.AutoMigrate),
		)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		s.store, s.ownsStore = store, true
	}

	if s.cache == nil {
		cacheOpts := []cache.Option{
			cache.WithClock(s.clock),
			cache.WithLogger(s.log.Named("cache")),
			cache.WithRankingTTL(cfg.RankingTTL),
			cache.WithRegistryTTL(cfg.RegistryTTL),
		}
		backend, err := cache.OpenBackend(ctx, cache.Kind(cfg.CacheBackend), cfg.CacheDSN, cacheOpts...)
		if err != nil {
			s.closeStorage()
			return fmt.Errorf("open cache: %w", err)
		}
		s.cache, s.ownsCache = cache.New(backend, cacheOpts...), true
	}
	return nil
}

func (s *Service) newCutover() *cutover.Controller {
	cfg := s.cfg
	log := s.log.Named("cutover")

	downloader := s.downloader
	if downloader == nil && cfg.ExportURL != "" {
		// Exports are large; the download is bounded by its context only.
		downloader = cutover.NewHTTPDownloader(cfg.ExportURL, &http.Client{}, log)
	}

	opts := []cutover.Option{
		cutover.WithLogger(log),
		cutover.WithClock(s.clock),
		cutover.WithDataDir(cfg.DataDir),
		cutover.WithLiteDir(cfg.LiteDir),
	}
	if downloader != nil {
		opts = append(opts, cutover.WithDownloader(downloader))
	}
	if cfg.RecomputeAfterCutover {
		opts = append(opts, cutover.WithRecomputeAfterSwap(s.recompute, cfg.DefaultLimit))
	}
	if cfg.InvalidateAfterCutover {
		opts = append(opts, cutover.WithRankingInvalidation(s.cache))
	} else {
		opts = append(opts, cutover.WithRankingCache(s.cache))
	}

	return cutover.New(s.registry, s.store,
		cutover.NewTSVImporter(s.store, cfg.HomeCountry, 0, log),
		cutover.NewDatasetValidator(s.store),
		opts...,
	)
}

// Stop gracefully shuts down the service. Running recompute tasks finish;
// tasks still waiting in the queue are dropped.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	s.log.Info(ctx, "stopping ranking service...")

	s.schedule.Stop()
	if err := s.cutover.Cancel(); err != nil && !errors.Is(err, cutover.ErrNotCancellable) {
		s.log.Warn(ctx, "cancel cutover", logger.Error(err))
	}
	if err := s.pool.Shutdown(ctx); err != nil {
		s.log.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}
	s.cancel()
	s.closeStorage()

	s.started = false
	metrics.UpdateWorkerActiveCount(0)
	s.log.Info(ctx, "ranking service stopped")
}

func (s *Service) closeStorage() {
	if s.ownsCache && s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.log.Warn(context.Background(), "close cache", logger.Error(err))
		}
		s.cache, s.ownsCache = nil, false
	}
	if s.ownsStore && s.store != nil {
		if err := s.store.Close(); err != nil {
			s.log.Warn(context.Background(), "close store", logger.Error(err))
		}
		s.store, s.ownsStore = nil, false
	}
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// DefaultLimit is the limit used when a request names none.
func (s *Service) DefaultLimit() int { return s.cfg.DefaultLimit }

// GetRankings serves q from the cache, computing and caching it on a miss.
// Cache failures degrade to a direct query.
func (s *Service) GetRankings(ctx context.Context, q model.RankingQuery) ([]model.RankingRow, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if q.Limit == 0 {
		q.Limit = s.cfg.DefaultLimit
	}
	if err := s.engine.Validate(q); err != nil {
		return nil, err
	}

	// The rows are read from and cached under one resolved dataset, so a
	// miss that races a swap lands under the old dataset's key.
	ds, err := s.engine.Active(ctx)
	if err != nil {
		return nil, err
	}
	key := cache.RankingKey(ds, q)

	rows, hit, err := s.cache.Rankings(ctx, ds, q)
	if err != nil {
		s.log.Warn(ctx, "ranking cache read failed", logger.String("key", key), logger.Error(err))
	} else if hit {
		return rows, nil
	}

	rows, err = s.engine.QueryDataset(ctx, ds, q)
	if err != nil {
		return nil, err
	}
	if err := s.cache.PutRankings(ctx, ds, q, rows); err != nil {
		s.log.Warn(ctx, "ranking cache write failed", logger.String("key", key), logger.Error(err))
	}
	return rows, nil
}

// GetAllRankings returns every event of the universe for both rank types,
// keyed "single_<event>" and "average_<event>".
func (s *Service) GetAllRankings(ctx context.Context, level model.AreaLevel, area string, limit int) (map[string][]model.RankingRow, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	out := make(map[string][]model.RankingRow, 2*len(ranking.Events))
	for _, ev := range ranking.EventIDs() {
		for _, rt := range model.RankTypes {
			rows, err := s.GetRankings(ctx, model.RankingQuery{
				EventID: ev, RankType: rt, Level: level, Area: area, Limit: limit,
			})
			if err != nil {
				return nil, fmt.Errorf("%s %s: %w", rt, ev, err)
			}
			out[string(rt)+"_"+ev] = rows
		}
	}
	return out, nil
}

// EnqueueRecompute schedules a rebuild of every cached ranking of one area.
func (s *Service) EnqueueRecompute(ctx context.Context, level model.AreaLevel, area string, limit int) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	if limit == 0 {
		limit = s.cfg.DefaultLimit
	}
	return s.recompute.Enqueue(ctx, level, area, limit, "manual")
}

// Recompute rebuilds every cached ranking of one area before returning.
func (s *Service) Recompute(ctx context.Context, level model.AreaLevel, area string, limit int) error {
	if err := s.ready(); err != nil {
		return err
	}
	if limit == 0 {
		limit = s.cfg.DefaultLimit
	}
	return s.recompute.Run(ctx, level, area, limit, "cli")
}

// AreaChanged schedules recomputes for both sides of an area move.
func (s *Service) AreaChanged(ctx context.Context, level model.AreaLevel, oldArea, newArea string) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.recompute.AreaChanged(ctx, level, oldArea, newArea, s.cfg.DefaultLimit)
}

// UpdateProfile stores p and schedules recomputes for every area it left
// or joined.
func (s *Service) UpdateProfile(ctx context.Context, p model.Profile) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if p.PersonID == "" {
		return nil, fmt.Errorf("%w: profile needs a wca id", ranking.ErrInvalidQuery)
	}
	changed, err := s.directory.Update(ctx, p)
	if err != nil {
		return nil, err
	}

	var (
		ids    []string
		result *multierror.Error
	)
	for _, level := range []model.AreaLevel{model.Regional, model.Local} {
		pair, ok := changed[level]
		if !ok {
			continue
		}
		got, err := s.recompute.AreaChanged(ctx, level, pair[0], pair[1], s.cfg.DefaultLimit)
		ids = append(ids, got...)
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return ids, result.ErrorOrNil()
}

// TriggerCutover starts a cutover in the background and returns its run id.
func (s *Service) TriggerCutover(ctx context.Context, opts cutover.Options) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	return s.cutover.Start(ctx, opts)
}

// RunCutover runs a cutover to completion.
func (s *Service) RunCutover(ctx context.Context, opts cutover.Options) (cutover.Report, error) {
	if err := s.ready(); err != nil {
		return cutover.Report{}, err
	}
	return s.cutover.Run(ctx, opts)
}

// CancelCutover aborts a cutover that has not reached validation.
func (s *Service) CancelCutover() error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.cutover.Cancel()
}

// CutoverStatus reports the controller state and the last finished run.
func (s *Service) CutoverStatus() (cutover.Status, error) {
	if err := s.ready(); err != nil {
		return cutover.Status{}, err
	}
	return s.cutover.Status(), nil
}

// ActiveDataset returns the active and inactive handles as stored.
func (s *Service) ActiveDataset(ctx context.Context) (model.RegistryState, error) {
	if err := s.ready(); err != nil {
		return model.RegistryState{}, err
	}
	return s.registry.Current(ctx)
}

// ToggleActiveDataset swaps the datasets without importing anything.
func (s *Service) ToggleActiveDataset(ctx context.Context) (model.DatasetHandle, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	return s.cutover.Toggle(ctx)
}

// InitDataset creates the registry row on an empty store.
func (s *Service) InitDataset(ctx context.Context) (model.RegistryState, error) {
	if err := s.ready(); err != nil {
		return model.RegistryState{}, err
	}
	return s.registry.Init(ctx)
}

// Event returns one event of the active dataset.
func (s *Service) Event(ctx context.Context, id string) (model.Event, error) {
	if err := s.ready(); err != nil {
		return model.Event{}, err
	}
	ds, err := s.registry.Active(ctx)
	if err != nil {
		return model.Event{}, err
	}
	return s.store.Event(ctx, ds, id)
}

// PersonalRecords returns a competitor's records from the active dataset.
func (s *Service) PersonalRecords(ctx context.Context, personID string) ([]model.PersonalRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.records.PersonalRecords(ctx, personID)
}

// Career returns a competitor's career summary from the active dataset.
func (s *Service) Career(ctx context.Context, personID string) (model.Career, error) {
	if err := s.ready(); err != nil {
		return model.Career{}, err
	}
	return s.records.Career(ctx, personID)
}

// Areas lists the areas competitors have registered at level.
func (s *Service) Areas(ctx context.Context, level model.AreaLevel) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.directory.Areas(ctx, level)
}

// Competitions lists upcoming competitions, cached for the configured TTL.
func (s *Service) Competitions(ctx context.Context) ([]model.UpcomingCompetition, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.competitions.Competitions(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.cfg.WorkerCount,
		"queueSize":   s.cfg.QueueSize,
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["workers"] = s.pool.Size()
		stats["cutoverState"] = s.cutover.Status().State.String()
		if n, err := s.cache.Len(ctx); err == nil {
			stats["cacheEntries"] = n
			metrics.UpdateCacheEntries(n)
		}
		if st, err := s.registry.Snapshot(ctx); err == nil {
			stats["activeDataset"] = string(st.Active)
		}

		metrics.UpdateQueueSize(queueLen)
	}

	return stats
}
