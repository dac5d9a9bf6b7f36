package repository

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationResult reports what Migrate did.
type MigrationResult struct {
	From    uint
	To      uint
	Changed bool
}

// Migrate brings the schema of db to targetVersion.
//   - targetVersion < 0 migrates to the latest version.
//   - targetVersion == 0 rolls every migration back.
//   - targetVersion > 0 migrates to that version.
//
// MySQL DSNs must enable multiStatements.
func Migrate(backend Backend, db *sql.DB, targetVersion int) (MigrationResult, error) {
	var (
		driver database.Driver
		err    error
	)
	switch backend {
	case BackendSQLite:
		driver, err = sqlite.WithInstance(db, &sqlite.Config{})
	case BackendMySQL:
		driver, err = mysql.WithInstance(db, &mysql.Config{})
	case BackendPostgres:
		driver, err = postgres.WithInstance(db, &postgres.Config{})
	default:
		return MigrationResult{}, fmt.Errorf("migrate %q: %w", backend, ErrUnsupportedBackend)
	}
	if err != nil {
		return MigrationResult{}, fmt.Errorf("failed to create %s migrate driver: %w", backend, err)
	}

	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return MigrationResult{}, fmt.Errorf("failed to access migrations directory: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return MigrationResult{}, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, string(backend), driver)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	current, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return MigrationResult{}, fmt.Errorf("failed to get current migration version: %w", err)
	}
	if dirty {
		return MigrationResult{}, fmt.Errorf("database is dirty at version %d; fix manually or force the version", current)
	}

	switch {
	case targetVersion < 0:
		err = m.Up()
	case targetVersion == 0:
		err = m.Down()
	default:
		err = m.Migrate(uint(targetVersion))
	}
	res := MigrationResult{From: current, To: current}
	if errors.Is(err, migrate.ErrNoChange) {
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("failed to migrate to version %d: %w", targetVersion, err)
	}

	res.Changed = true
	if v, _, verr := m.Version(); verr == nil {
		res.To = v
	} else if errors.Is(verr, migrate.ErrNilVersion) {
		res.To = 0
	}
	return res, nil
}
