package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/JaimeStill/arbiter/internal/evidence"
	"github.com/JaimeStill/arbiter/internal/executor"
	"github.com/JaimeStill/arbiter/internal/verification"
	"github.com/JaimeStill/arbiter/pkg/database"
	"github.com/JaimeStill/arbiter/pkg/logging"
	"github.com/JaimeStill/arbiter/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvArbiterEnv             = "ARBITER_ENV"
	EnvArbiterShutdownTimeout = "ARBITER_SHUTDOWN_TIMEOUT"
	EnvArbiterVersion         = "ARBITER_VERSION"
)

var databaseEnv = &database.Env{
	Host:            "ARBITER_DB_HOST",
	Port:            "ARBITER_DB_PORT",
	Name:            "ARBITER_DB_NAME",
	User:            "ARBITER_DB_USER",
	Password:        "ARBITER_DB_PASSWORD",
	SSLMode:         "ARBITER_DB_SSL_MODE",
	AppName:         "ARBITER_DB_APP_NAME",
	MaxOpenConns:    "ARBITER_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "ARBITER_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "ARBITER_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "ARBITER_DB_CONN_TIMEOUT",
	AutoMigrate:     "ARBITER_DB_AUTO_MIGRATE",
}

var storageEnv = &storage.Env{
	Backend:          "ARBITER_STORAGE_BACKEND",
	ContainerName:    "ARBITER_STORAGE_CONTAINER_NAME",
	ConnectionString: "ARBITER_STORAGE_CONNECTION_STRING",
	ServiceURL:       "ARBITER_STORAGE_SERVICE_URL",
	MaxListSize:      "ARBITER_STORAGE_MAX_LIST_SIZE",
	MaxRetries:       "ARBITER_STORAGE_MAX_RETRIES",
}

var loggingEnv = &logging.Env{
	Level:  "ARBITER_LOG_LEVEL",
	Format: "ARBITER_LOG_FORMAT",
}

var evidenceEnv = &evidence.Env{
	BaseURL:         "ARBITER_EVIDENCE_BASE_URL",
	FixturePath:     "ARBITER_EVIDENCE_FIXTURE_PATH",
	Timeout:         "ARBITER_EVIDENCE_TIMEOUT",
	MaxAttempts:     "ARBITER_EVIDENCE_MAX_ATTEMPTS",
	InitialInterval: "ARBITER_EVIDENCE_INITIAL_INTERVAL",
	MaxInterval:     "ARBITER_EVIDENCE_MAX_INTERVAL",
	RateLimit:       "ARBITER_EVIDENCE_RATE_LIMIT",
	RateBurst:       "ARBITER_EVIDENCE_RATE_BURST",
	PolicyLimit:     "ARBITER_EVIDENCE_POLICY_LIMIT",
}

var verificationEnv = &verification.Env{
	Mode:    "ARBITER_VERIFICATION_MODE",
	BaseURL: "ARBITER_VERIFICATION_BASE_URL",
	Timeout: "ARBITER_VERIFICATION_TIMEOUT",
}

var executorEnv = &executor.Env{
	Mode:        "ARBITER_EXECUTOR_MODE",
	BaseURL:     "ARBITER_EXECUTOR_BASE_URL",
	Timeout:     "ARBITER_EXECUTOR_TIMEOUT",
	MaxAttempts: "ARBITER_EXECUTOR_MAX_ATTEMPTS",
}

// Config is the root configuration for the Arbiter service.
type Config struct {
	Server          ServerConfig        `toml:"server"`
	Logging         logging.Config      `toml:"logging"`
	Database        database.Config     `toml:"database"`
	Storage         storage.Config      `toml:"storage"`
	API             APIConfig           `toml:"api"`
	Evidence        evidence.Config     `toml:"evidence"`
	Verification    verification.Config `toml:"verification"`
	Executor        executor.Config     `toml:"executor"`
	Workflow        WorkflowConfig      `toml:"workflow"`
	ShutdownTimeout string              `toml:"shutdown_timeout"`
	Version         string              `toml:"version"`
}

// Env returns the ARBITER_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvArbiterEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(BaseConfigFile); err == nil {
		loaded, err := load(BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Parse decodes a TOML document and finalizes it without reading any files.
// Environment variable overrides still apply.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}
	return &cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Logging.Merge(&overlay.Logging)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.API.Merge(&overlay.API)
	c.Evidence.Merge(&overlay.Evidence)
	c.Verification.Merge(&overlay.Verification)
	c.Executor.Merge(&overlay.Executor)
	c.Workflow.Merge(&overlay.Workflow)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Logging.Finalize(loggingEnv); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Workflow.Finalize(); err != nil {
		return fmt.Errorf("workflow: %w", err)
	}
	if c.Workflow.Store == StorePostgres {
		if err := c.Database.Finalize(databaseEnv); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if err := c.Storage.Finalize(storageEnv); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if err := c.Evidence.Finalize(evidenceEnv); err != nil {
		return fmt.Errorf("evidence: %w", err)
	}
	if err := c.Verification.Finalize(verificationEnv); err != nil {
		return fmt.Errorf("verification: %w", err)
	}
	if err := c.Executor.Finalize(executorEnv); err != nil {
		return fmt.Errorf("executor: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvArbiterShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvArbiterVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvArbiterEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
