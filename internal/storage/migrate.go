package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationStatus is the schema version after a migration run.
type MigrationStatus struct {
	Version uint
	Dirty   bool
	Changed bool
}

// RunMigrations brings the fetch log schema at dbPath up to date.
func RunMigrations(dbPath string) error {
	_, err := Migrate(dbPath)
	return err
}

// Migrate applies pending up migrations and reports the resulting version.
func Migrate(dbPath string) (MigrationStatus, error) {
	// Separate connection so the migrator's Close does not affect the repository's pool.
	migrateDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	driver, err := sqlite.WithInstance(migrateDB, &sqlite.Config{})
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("create sqlite driver: %w", err)
	}

	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, "sqlite", driver)
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	status := MigrationStatus{Changed: true}
	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return MigrationStatus{}, fmt.Errorf("run migrations: %w", err)
		}
		status.Changed = false
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return MigrationStatus{}, fmt.Errorf("read schema version: %w", err)
	}
	status.Version = version
	status.Dirty = dirty
	return status, nil
}
