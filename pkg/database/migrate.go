package database

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// NewMigrator opens a migrator for the schema files at dir within source,
// targeting the database cfg describes. The caller closes it.
func NewMigrator(cfg *Config, source fs.FS, dir string) (*migrate.Migrate, error) {
	return NewMigratorURL(cfg.URL(), source, dir)
}

// NewMigratorURL is NewMigrator for an explicit postgres:// URL.
func NewMigratorURL(dbURL string, source fs.FS, dir string) (*migrate.Migrate, error) {
	src, err := iofs.New(source, dir)
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return nil, fmt.Errorf("open migrator: %w", err)
	}
	return m, nil
}

// MigrateUp applies every pending migration. An up-to-date schema is not
// an error.
func MigrateUp(m *migrate.Migrate) error {
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
