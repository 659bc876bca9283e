package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"

	"github.com/JaimeStill/arbiter/internal/config"
	"github.com/JaimeStill/arbiter/internal/requests/migrations"
	"github.com/JaimeStill/arbiter/pkg/database"
)

const envDSN = "ARBITER_DB_DSN"

func main() {
	var (
		dsn     = flag.String("dsn", "", "Database URL; defaults to "+envDSN+", then the [database] config")
		up      = flag.Bool("up", false, "Run all up migrations")
		down    = flag.Bool("down", false, "Run all down migrations")
		steps   = flag.Int("steps", 0, "Number of migrations (positive=up, negative=down)")
		version = flag.Bool("version", false, "Print current migration version")
		force   = flag.Int("force", -1, "Force set version (use with caution)")
	)
	flag.Parse()

	forceSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "force" {
			forceSet = true
		}
	})

	m, err := openMigrator(*dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	switch {
	case *version:
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("no migrations applied")
			return
		}
		if err != nil {
			log.Fatalf("failed to get version: %v", err)
		}
		fmt.Printf("version: %d, dirty: %v\n", v, dirty)
	case forceSet:
		if err := m.Force(*force); err != nil {
			log.Fatalf("failed to force version: %v", err)
		}
		fmt.Printf("forced to version %d\n", *force)
	case *up:
		if err := database.MigrateUp(m); err != nil {
			log.Fatalf("failed to run up migrations: %v", err)
		}
		fmt.Println("migrations applied")
	case *down:
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("failed to run down migrations: %v", err)
		}
		fmt.Println("migrations reverted")
	case *steps != 0:
		if err := m.Steps(*steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("failed to run migrations: %v", err)
		}
		fmt.Printf("applied %d migration steps\n", *steps)
	default:
		fmt.Println("usage: migrate [-dsn <url>] -up|-down|-steps N|-version|-force N")
		flag.PrintDefaults()
	}
}

// openMigrator resolves the target database from the flag, the environment,
// or the service config, in that order.
func openMigrator(dsn string) (*migrate.Migrate, error) {
	if dsn == "" {
		dsn = os.Getenv(envDSN)
	}
	if dsn != "" {
		return database.NewMigratorURL(dsn, migrations.FS, ".")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Workflow.Store != config.StorePostgres {
		return nil, fmt.Errorf("workflow store is %q; set -dsn or %s", cfg.Workflow.Store, envDSN)
	}
	return database.NewMigrator(&cfg.Database, migrations.FS, ".")
}
