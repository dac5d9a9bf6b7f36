// Package repository persists the two results datasets, the dataset registry
// and the account profiles used by area rankings.
package repository

import (
	"context"

	"github.com/okian/pcarank/internal/domain/model"
)

// ResultFilter selects the rows a ranking walks over.
type ResultFilter struct {
	Dataset   model.DatasetHandle
	EventID   string
	RankType  model.RankType
	CountryID string
	// PersonIDs restricts rows to these competitors when non-nil. An empty
	// non-nil slice matches nothing.
	PersonIDs []string
}

func (f ResultFilter) validate() error {
	if !f.Dataset.Valid() {
		return ErrInvalidDataset
	}
	if f.EventID == "" || !f.RankType.Valid() {
		return ErrInvalidResultFilter
	}
	return nil
}

// IDStats summarises result ids for validation.
type IDStats struct {
	Rows     int64
	Distinct int64
	// Missing counts rows whose id is NULL or zero.
	Missing int64
}

// ResultReader streams results.
type ResultReader interface {
	// ForEachResult calls fn for every result matching f whose ranked outcome
	// is positive, ordered by (outcome ASC, id ASC).
	ForEachResult(ctx context.Context, f ResultFilter, fn func(model.Result) error) error
}

// Catalog reads the lookup tables of a dataset.
type Catalog interface {
	Event(ctx context.Context, ds model.DatasetHandle, id string) (model.Event, error)
	Events(ctx context.Context, ds model.DatasetHandle) ([]model.Event, error)
	Format(ctx context.Context, ds model.DatasetHandle, id string) (model.Format, error)
	Person(ctx context.Context, ds model.DatasetHandle, id string) (model.Person, error)
	PersonalRanks(ctx context.Context, ds model.DatasetHandle, personID string) ([]model.PersonalRank, error)
}

// CareerReader aggregates a competitor's results.
type CareerReader interface {
	// CareerStats counts over every result of personID. A person without
	// results has zero stats.
	CareerStats(ctx context.Context, ds model.DatasetHandle, personID string) (model.CareerStats, error)
}

// RegistryStore owns the singleton active/inactive row.
type RegistryStore interface {
	// Registry returns the row. No row, or more than one, is ErrConfig.
	Registry(ctx context.Context) (model.RegistryState, error)
	// InitRegistry creates {A, B}. A second row is ErrInvariantViolation.
	InitRegistry(ctx context.Context) (model.RegistryState, error)
	// SwapRegistry exchanges active and inactive in one transaction.
	SwapRegistry(ctx context.Context) (model.RegistryState, error)
	// PromoteRegistry makes target active in one transaction. It fails with
	// ErrConflict unless target is the inactive dataset at commit time.
	PromoteRegistry(ctx context.Context, target model.DatasetHandle) (model.RegistryState, error)
}

// Loader bulk-loads a dataset during cutover.
type Loader interface {
	Truncate(ctx context.Context, ds model.DatasetHandle) error
	InsertEvents(ctx context.Context, ds model.DatasetHandle, rows []model.Event) error
	InsertFormats(ctx context.Context, ds model.DatasetHandle, rows []model.Format) error
	InsertRoundTypes(ctx context.Context, ds model.DatasetHandle, rows []model.RoundType) error
	InsertCompetitions(ctx context.Context, ds model.DatasetHandle, rows []model.Competition) error
	InsertPersons(ctx context.Context, ds model.DatasetHandle, rows []model.Person) error
	InsertRanks(ctx context.Context, ds model.DatasetHandle, rows []model.PersonalRank) error
	InsertResults(ctx context.Context, ds model.DatasetHandle, rows []model.Result) error

	ResultIDStats(ctx context.Context, ds model.DatasetHandle) (IDStats, error)
	// OrphanEvents lists event ids referenced by results but absent from events.
	OrphanEvents(ctx context.Context, ds model.DatasetHandle) ([]string, error)
}

// ExportStore remembers which export was imported last.
type ExportStore interface {
	LastExport(ctx context.Context) (model.ExportMetadata, bool, error)
	RecordExport(ctx context.Context, meta model.ExportMetadata) error
}

// ProfileStore keeps the area of each competitor. Areas compare
// case-insensitively.
type ProfileStore interface {
	Profile(ctx context.Context, personID string) (model.Profile, error)
	PutProfile(ctx context.Context, p model.Profile) error
	PersonIDsByArea(ctx context.Context, level model.AreaLevel, area string) ([]string, error)
	Areas(ctx context.Context, level model.AreaLevel) ([]string, error)
}

// Store is the full persistence surface.
type Store interface {
	ResultReader
	Catalog
	CareerReader
	RegistryStore
	Loader
	ExportStore
	ProfileStore

	Close() error
}

// Backend names a Store implementation.
type Backend string

// Store backends.
const (
	BackendMemory   Backend = "memory"
	BackendSQLite   Backend = "sqlite"
	BackendMySQL    Backend = "mysql"
	BackendPostgres Backend = "postgres"
)

// Open returns the Store for backend. The memory backend ignores dsn.
func Open(ctx context.Context, backend Backend, dsn string, opts ...Option) (Store, error) {
	if backend == BackendMemory {
		return NewMemStore(opts...), nil
	}
	return OpenSQL(ctx, backend, dsn, opts...)
}
