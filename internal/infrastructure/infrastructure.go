// Package infrastructure provides core service initialization for application startup.
// It assembles common dependencies (logging, database, storage, redis) that domain systems require.
package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JaimeStill/arbiter/internal/config"
	"github.com/JaimeStill/arbiter/internal/requests/migrations"
	"github.com/JaimeStill/arbiter/pkg/database"
	"github.com/JaimeStill/arbiter/pkg/lifecycle"
	"github.com/JaimeStill/arbiter/pkg/logging"
	"github.com/JaimeStill/arbiter/pkg/storage"
)

const redisPingTimeout = 5 * time.Second

// Infrastructure holds the core systems required by all domain modules.
// Database is nil unless the workflow store is postgres; Redis is nil unless
// the lock backend is redis.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	Storage   storage.System
	Redis     redis.UniversalClient
}

// New creates an Infrastructure from the application configuration.
// It initializes all systems but does not start them; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	lc := lifecycle.New()
	logger := logging.New(&cfg.Logging, os.Stderr)

	infra := &Infrastructure{
		Lifecycle: lc,
		Logger:    logger,
	}

	if cfg.Workflow.Store == config.StorePostgres {
		db, err := database.New(&cfg.Database, migrations.FS, logger)
		if err != nil {
			return nil, fmt.Errorf("database init failed: %w", err)
		}
		infra.Database = db
	}

	store, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}
	infra.Storage = store

	if cfg.Workflow.Lock.Backend == config.LockRedis {
		infra.Redis = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Workflow.Lock.Redis.Addr},
			Password: cfg.Workflow.Lock.Redis.Password,
			DB:       cfg.Workflow.Lock.Redis.DB,
		})
	}

	return infra, nil
}

// Start registers all infrastructure systems with the lifecycle coordinator.
func (i *Infrastructure) Start() error {
	if i.Database != nil {
		if err := i.Database.Start(i.Lifecycle); err != nil {
			return fmt.Errorf("database start failed: %w", err)
		}
	}
	if err := i.Storage.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("storage start failed: %w", err)
	}
	if i.Redis != nil {
		i.startRedis()
	}
	return nil
}

func (i *Infrastructure) startRedis() {
	logger := i.Logger.With("system", "redis")
	logger.Info("starting redis client")

	i.Lifecycle.OnStartup("redis", func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()

		if err := i.Redis.Ping(ctx).Err(); err != nil {
			logger.Error("redis ping failed", "error", err)
			return err
		}
		logger.Info("redis connection established")
		return nil
	})

	i.Lifecycle.OnShutdown("redis", func(context.Context) error {
		logger.Info("closing redis client")

		if err := i.Redis.Close(); err != nil {
			logger.Error("redis close failed", "error", err)
			return err
		}
		logger.Info("redis client closed")
		return nil
	})
}

// Scoped returns a shallow copy whose logger is tagged with module. The
// systems themselves are shared.
func (i *Infrastructure) Scoped(module string) *Infrastructure {
	scoped := *i
	scoped.Logger = i.Logger.With("module", module)
	return &scoped
}
