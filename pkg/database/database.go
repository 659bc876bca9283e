// Package database manages a PostgreSQL connection pool under lifecycle
// coordination.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/JaimeStill/arbiter/pkg/lifecycle"
)

// System manages the connection pool.
type System interface {
	// Connection returns the pool. It is usable once startup succeeds.
	Connection() *sql.DB
	// Start registers the connect and close hooks with lc.
	Start(lc *lifecycle.Coordinator) error
}

type database struct {
	conn       *sql.DB
	cfg        *Config
	migrations fs.FS
	logger     *slog.Logger
}

// New opens a lazy pool for cfg; no connection is made until Start. When
// cfg.AutoMigrate is set, migrations (a directory of numbered SQL files) are
// applied after the first successful ping.
func New(cfg *Config, migrations fs.FS, logger *slog.Logger) (System, error) {
	db, err := sql.Open("pgx", cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetimeDuration())

	return &database{
		conn:       db,
		cfg:        cfg,
		migrations: migrations,
		logger:     logger.With("system", "database"),
	}, nil
}

func (d *database) Connection() *sql.DB {
	return d.conn
}

func (d *database) Start(lc *lifecycle.Coordinator) error {
	if d.cfg.AutoMigrate && d.migrations == nil {
		return ErrNoMigrations
	}

	d.logger.Info("starting database connection", "url", d.cfg.Redacted())

	lc.OnStartup("database", func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, d.cfg.ConnTimeoutDuration())
		defer cancel()

		if err := d.conn.PingContext(pingCtx); err != nil {
			d.logger.Error("database ping failed", "error", err)
			return err
		}
		d.logger.Info("database connection established")

		if d.cfg.AutoMigrate {
			return d.migrate()
		}
		return nil
	})

	lc.OnShutdown("database", func(context.Context) error {
		d.logger.Info("closing database connection")

		if err := d.conn.Close(); err != nil {
			d.logger.Error("database close failed", "error", err)
			return err
		}

		d.logger.Info("database connection closed")
		return nil
	})

	return nil
}

func (d *database) migrate() error {
	m, err := NewMigrator(d.cfg, d.migrations, ".")
	if err != nil {
		return err
	}
	defer m.Close()

	if err := MigrateUp(m); err != nil {
		d.logger.Error("schema migration failed", "error", err)
		return fmt.Errorf("migrate: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("migration version: %w", err)
	}
	d.logger.Info("schema up to date", "version", version, "dirty", dirty)
	return nil
}
