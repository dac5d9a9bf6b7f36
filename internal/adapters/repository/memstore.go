package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/okian/pcarank/internal/domain/model"
)

// dataset is one in-memory table set.
type dataset struct {
	results      []model.Result
	events       map[string]model.Event
	formats      map[string]model.Format
	roundTypes   map[string]model.RoundType
	competitions map[string]model.Competition
	persons      map[string]model.Person
	ranks        map[string][]model.PersonalRank
}

func newDataset() *dataset {
	return &dataset{
		events:       make(map[string]model.Event),
		formats:      make(map[string]model.Format),
		roundTypes:   make(map[string]model.RoundType),
		competitions: make(map[string]model.Competition),
		persons:      make(map[string]model.Person),
		ranks:        make(map[string][]model.PersonalRank),
	}
}

// MemStore is an in-memory Store used by tests and the memory backend.
type MemStore struct {
	opts options

	mu       sync.RWMutex
	datasets map[model.DatasetHandle]*dataset
	registry []model.RegistryState
	export   *model.ExportMetadata
	profiles map[string]model.Profile
}

// NewMemStore returns an empty MemStore. The registry is not initialised.
func NewMemStore(opts ...Option) *MemStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemStore{
		opts: o,
		datasets: map[model.DatasetHandle]*dataset{
			model.DatasetA: newDataset(),
			model.DatasetB: newDataset(),
		},
		profiles: make(map[string]model.Profile),
	}
}

func (s *MemStore) dataset(ds model.DatasetHandle) (*dataset, error) {
	d, ok := s.datasets[ds]
	if !ok {
		return nil, fmt.Errorf("dataset %q: %w", ds, ErrInvalidDataset)
	}
	return d, nil
}

// ForEachResult implements ResultReader.
func (s *MemStore) ForEachResult(ctx context.Context, f ResultFilter, fn func(model.Result) error) error {
	if err := f.validate(); err != nil {
		return err
	}

	var allowed map[string]struct{}
	if f.PersonIDs != nil {
		allowed = make(map[string]struct{}, len(f.PersonIDs))
		for _, id := range f.PersonIDs {
			allowed[id] = struct{}{}
		}
	}

	s.mu.RLock()
	d, err := s.dataset(f.Dataset)
	if err != nil {
		s.mu.RUnlock()
		return err
	}
	matched := make([]model.Result, 0, 64)
	for _, r := range d.results {
		if r.EventID != f.EventID || r.Outcome(f.RankType) <= 0 {
			continue
		}
		if f.CountryID != "" && r.CountryID != f.CountryID {
			continue
		}
		if allowed != nil {
			if _, ok := allowed[r.PersonID]; !ok {
				continue
			}
		}
		matched = append(matched, r)
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i].Outcome(f.RankType), matched[j].Outcome(f.RankType)
		if a != b {
			return a < b
		}
		return matched[i].ID < matched[j].ID
	})

	for _, r := range matched {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(r); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	return nil
}

// Event implements Catalog.
func (s *MemStore) Event(_ context.Context, ds model.DatasetHandle, id string) (model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, err := s.dataset(ds)
	if err != nil {
		return model.Event{}, err
	}
	e, ok := d.events[id]
	if !ok {
		return model.Event{}, fmt.Errorf("event %q: %w", id, ErrNotFound)
	}
	return e, nil
}

// Events implements Catalog, ordered by rank then id.
func (s *MemStore) Events(_ context.Context, ds model.DatasetHandle) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, err := s.dataset(ds)
	if err != nil {
		return nil, err
	}
	out := make([]model.Event, 0, len(d.events))
	for _, e := range d.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Format implements Catalog.
func (s *MemStore) Format(_ context.Context, ds model.DatasetHandle, id string) (model.Format, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, err := s.dataset(ds)
	if err != nil {
		return model.Format{}, err
	}
	f, ok := d.formats[id]
	if !ok {
		return model.Format{}, fmt.Errorf("format %q: %w", id, ErrNotFound)
	}
	return f, nil
}

// Person implements Catalog.
func (s *MemStore) Person(_ context.Context, ds model.DatasetHandle, id string) (model.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, err := s.dataset(ds)
	if err != nil {
		return model.Person{}, err
	}
	p, ok := d.persons[id]
	if !ok {
		return model.Person{}, fmt.Errorf("person %q: %w", id, ErrNotFound)
	}
	return p, nil
}

// CareerStats implements CareerReader.
func (s *MemStore) CareerStats(_ context.Context, ds model.DatasetHandle, personID string) (model.CareerStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, err := s.dataset(ds)
	if err != nil {
		return model.CareerStats{}, err
	}

	var st model.CareerStats
	comps := make(map[string]struct{})
	for _, r := range d.results {
		if r.PersonID != personID {
			continue
		}
		comps[r.CompetitionID] = struct{}{}
		for _, v := range r.Values {
			if v > 0 {
				st.Solves++
			}
		}
		for _, mark := range []string{r.RegionalSingleRecord, r.RegionalAverageRecord} {
			switch model.RecordKind(mark) {
			case "national":
				st.NationalRecords++
			case "continental":
				st.ContinentalRecords++
			case "world":
				st.WorldRecords++
			}
		}
		if r.Best <= 0 || !d.roundTypes[r.RoundTypeID].Final {
			continue
		}
		switch r.Pos {
		case 1:
			st.Gold++
		case 2:
			st.Silver++
		case 3:
			st.Bronze++
		}
	}
	st.Competitions = len(comps)
	return st, nil
}

// PersonalRanks implements Catalog.
func (s *MemStore) PersonalRanks(_ context.Context, ds model.DatasetHandle, personID string) ([]model.PersonalRank, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, err := s.dataset(ds)
	if err != nil {
		return nil, err
	}
	ranks := d.ranks[personID]
	out := make([]model.PersonalRank, len(ranks))
	copy(out, ranks)
	return out, nil
}

// Registry implements RegistryStore.
func (s *MemStore) Registry(_ context.Context) (model.RegistryState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registryLocked()
}

func (s *MemStore) registryLocked() (model.RegistryState, error) {
	switch len(s.registry) {
	case 0:
		return model.RegistryState{}, fmt.Errorf("no registry row: %w", ErrConfig)
	case 1:
		st := s.registry[0]
		if !st.Valid() {
			return model.RegistryState{}, fmt.Errorf("registry row %+v: %w", st, ErrConfig)
		}
		return st, nil
	default:
		return model.RegistryState{}, fmt.Errorf("%d registry rows: %w", len(s.registry), ErrConfig)
	}
}

// InitRegistry implements RegistryStore.
func (s *MemStore) InitRegistry(_ context.Context) (model.RegistryState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.registry) > 0 {
		return model.RegistryState{}, fmt.Errorf("registry row already exists: %w", ErrInvariantViolation)
	}
	st := model.RegistryState{Active: model.DatasetA, Inactive: model.DatasetB}
	s.registry = append(s.registry, st)
	return st, nil
}

// SwapRegistry implements RegistryStore.
func (s *MemStore) SwapRegistry(_ context.Context) (model.RegistryState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.registryLocked()
	if err != nil {
		return model.RegistryState{}, err
	}
	next := model.RegistryState{Active: cur.Inactive, Inactive: cur.Active}
	s.registry[0] = next
	return next, nil
}

// PromoteRegistry implements RegistryStore.
func (s *MemStore) PromoteRegistry(_ context.Context, target model.DatasetHandle) (model.RegistryState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.registryLocked()
	if err != nil {
		return model.RegistryState{}, err
	}
	if cur.Inactive != target {
		return model.RegistryState{}, fmt.Errorf("%w: %s is not the inactive dataset", ErrConflict, target)
	}
	next := model.RegistryState{Active: cur.Inactive, Inactive: cur.Active}
	s.registry[0] = next
	return next, nil
}

// Truncate implements Loader.
func (s *MemStore) Truncate(_ context.Context, ds model.DatasetHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.dataset(ds); err != nil {
		return err
	}
	s.datasets[ds] = newDataset()
	return nil
}

func (s *MemStore) insert(ds model.DatasetHandle, apply func(d *dataset)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.dataset(ds)
	if err != nil {
		return err
	}
	apply(d)
	return nil
}

// InsertEvents implements Loader.
func (s *MemStore) InsertEvents(_ context.Context, ds model.DatasetHandle, rows []model.Event) error {
	return s.insert(ds, func(d *dataset) {
		for _, r := range rows {
			d.events[r.ID] = r
		}
	})
}

// InsertFormats implements Loader.
func (s *MemStore) InsertFormats(_ context.Context, ds model.DatasetHandle, rows []model.Format) error {
	return s.insert(ds, func(d *dataset) {
		for _, r := range rows {
			d.formats[r.ID] = r
		}
	})
}

// InsertRoundTypes implements Loader.
func (s *MemStore) InsertRoundTypes(_ context.Context, ds model.DatasetHandle, rows []model.RoundType) error {
	return s.insert(ds, func(d *dataset) {
		for _, r := range rows {
			d.roundTypes[r.ID] = r
		}
	})
}

// InsertCompetitions implements Loader.
func (s *MemStore) InsertCompetitions(_ context.Context, ds model.DatasetHandle, rows []model.Competition) error {
	return s.insert(ds, func(d *dataset) {
		for _, r := range rows {
			d.competitions[r.ID] = r
		}
	})
}

// InsertPersons implements Loader.
func (s *MemStore) InsertPersons(_ context.Context, ds model.DatasetHandle, rows []model.Person) error {
	return s.insert(ds, func(d *dataset) {
		for _, r := range rows {
			d.persons[r.ID] = r
		}
	})
}

// InsertRanks implements Loader.
func (s *MemStore) InsertRanks(_ context.Context, ds model.DatasetHandle, rows []model.PersonalRank) error {
	return s.insert(ds, func(d *dataset) {
		for _, r := range rows {
			d.ranks[r.PersonID] = append(d.ranks[r.PersonID], r)
		}
	})
}

// InsertResults implements Loader.
func (s *MemStore) InsertResults(_ context.Context, ds model.DatasetHandle, rows []model.Result) error {
	return s.insert(ds, func(d *dataset) {
		d.results = append(d.results, rows...)
	})
}

// ResultIDStats implements Loader.
func (s *MemStore) ResultIDStats(_ context.Context, ds model.DatasetHandle) (IDStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, err := s.dataset(ds)
	if err != nil {
		return IDStats{}, err
	}
	seen := make(map[int64]struct{}, len(d.results))
	var st IDStats
	for _, r := range d.results {
		st.Rows++
		if r.ID == 0 {
			st.Missing++
		}
		seen[r.ID] = struct{}{}
	}
	st.Distinct = int64(len(seen))
	return st, nil
}

// OrphanEvents implements Loader.
func (s *MemStore) OrphanEvents(_ context.Context, ds model.DatasetHandle) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, err := s.dataset(ds)
	if err != nil {
		return nil, err
	}
	missing := make(map[string]struct{})
	for _, r := range d.results {
		if _, ok := d.events[r.EventID]; !ok {
			missing[r.EventID] = struct{}{}
		}
	}
	return sortedKeys(missing), nil
}

// LastExport implements ExportStore.
func (s *MemStore) LastExport(_ context.Context) (model.ExportMetadata, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.export == nil {
		return model.ExportMetadata{}, false, nil
	}
	return *s.export, true, nil
}

// RecordExport implements ExportStore.
func (s *MemStore) RecordExport(_ context.Context, meta model.ExportMetadata) error {
	if meta.ImportedAt.IsZero() {
		meta.ImportedAt = s.opts.clock.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.export = &meta
	return nil
}

// Profile implements ProfileStore.
func (s *MemStore) Profile(_ context.Context, personID string) (model.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[personID]
	if !ok {
		return model.Profile{}, fmt.Errorf("profile %q: %w", personID, ErrNotFound)
	}
	return p, nil
}

// PutProfile implements ProfileStore.
func (s *MemStore) PutProfile(_ context.Context, p model.Profile) error {
	if p.PersonID == "" {
		return fmt.Errorf("profile without person id: %w", ErrInvariantViolation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.PersonID] = p
	return nil
}

// PersonIDsByArea implements ProfileStore.
func (s *MemStore) PersonIDsByArea(_ context.Context, level model.AreaLevel, area string) ([]string, error) {
	if _, err := areaColumn(level); err != nil {
		return nil, err
	}
	want := foldArea(area)
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0)
	for id, p := range s.profiles {
		if a := p.Area(level); a != "" && foldArea(a) == want {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Areas implements ProfileStore.
func (s *MemStore) Areas(_ context.Context, level model.AreaLevel) ([]string, error) {
	if _, err := areaColumn(level); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := make(map[string]struct{})
	for _, p := range s.profiles {
		if a := p.Area(level); a != "" {
			set[foldArea(a)] = struct{}{}
		}
	}
	return sortedKeys(set), nil
}

// Close implements Store.
func (s *MemStore) Close() error { return nil }

func foldArea(a string) string { return strings.ToLower(strings.TrimSpace(a)) }

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
