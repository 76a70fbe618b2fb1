package store

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/matheus3301/tgrag/internal/store/migrations"
)

// ErrDirtySchema means an earlier migration stopped halfway. The history file
// has to be removed by hand; it only holds past job records.
var ErrDirtySchema = errors.New("history schema is dirty")

// MigrateResult reports the schema version before and after Migrate.
type MigrateResult struct {
	From uint
	To   uint
}

// Changed reports whether any migration ran.
func (r MigrateResult) Changed() bool { return r.From != r.To }

// Migrate brings the job history schema up to the embedded version.
func (db *DB) Migrate() (MigrateResult, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return MigrateResult{}, fmt.Errorf("migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return MigrateResult{}, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return MigrateResult{}, fmt.Errorf("migration instance: %w", err)
	}

	var res MigrateResult
	if res.From, err = schemaVersion(m); err != nil {
		return res, err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return res, fmt.Errorf("migrate history from version %d: %w", res.From, err)
	}
	res.To, err = schemaVersion(m)
	return res, err
}

// schemaVersion is the applied version, 0 for a fresh file.
func schemaVersion(m *migrate.Migrate) (uint, error) {
	v, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("migration version: %w", err)
	case dirty:
		return v, fmt.Errorf("%w at version %d", ErrDirtySchema, v)
	}
	return v, nil
}
