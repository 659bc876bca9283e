package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/JaimeStill/arbiter/internal/fraud"
	"github.com/JaimeStill/arbiter/internal/trust"
)

const (
	EnvWorkflowStore    = "ARBITER_WORKFLOW_STORE"
	EnvLockBackend      = "ARBITER_LOCK_BACKEND"
	EnvLockPrefix       = "ARBITER_LOCK_PREFIX"
	EnvLockTTL          = "ARBITER_LOCK_TTL"
	EnvLockWait         = "ARBITER_LOCK_WAIT"
	EnvRedisAddr        = "ARBITER_REDIS_ADDR"
	EnvRedisPassword    = "ARBITER_REDIS_PASSWORD"
	EnvRedisDB          = "ARBITER_REDIS_DB"
	EnvReminderAfter    = "ARBITER_REMINDER_AFTER"
	EnvReminderInterval = "ARBITER_REMINDER_INTERVAL"
)

var fraudEnv = &fraud.Env{
	DistanceThresholdMiles: "ARBITER_FRAUD_DISTANCE_THRESHOLD_MILES",
	VelocityThreshold:      "ARBITER_FRAUD_VELOCITY_THRESHOLD",
	VelocityWindow:         "ARBITER_FRAUD_VELOCITY_WINDOW",
}

var trustEnv = &trust.Env{
	DefaultWeight: "ARBITER_TRUST_DEFAULT_WEIGHT",
	Tiers:         "ARBITER_TRUST_TIERS",
}

// StoreBackend selects where workflow records persist.
type StoreBackend string

const (
	StorePostgres StoreBackend = "postgres"
	StoreMemory   StoreBackend = "memory"
)

// LockBackend selects how per-request leases are held.
type LockBackend string

const (
	LockLocal LockBackend = "local"
	LockRedis LockBackend = "redis"
)

// WorkflowConfig holds the state machine settings and the risk policy it applies.
type WorkflowConfig struct {
	Store     StoreBackend   `toml:"store"`
	Fraud     fraud.Config   `toml:"fraud"`
	Trust     trust.Config   `toml:"trust"`
	Lock      LockConfig     `toml:"lock"`
	Reminders ReminderConfig `toml:"reminders"`
}

// LockConfig configures request leases. TTL applies to redis leases only.
type LockConfig struct {
	Backend LockBackend `toml:"backend"`
	Prefix  string      `toml:"prefix"`
	TTL     string      `toml:"ttl"`
	Wait    string      `toml:"wait"`
	Redis   RedisConfig `toml:"redis"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// ReminderConfig controls the stale suspension sweep. An After of "0s" disables it.
type ReminderConfig struct {
	After    string `toml:"after"`
	Interval string `toml:"interval"`
}

func (c *LockConfig) TTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.TTL)
	return d
}

func (c *LockConfig) WaitDuration() time.Duration {
	d, _ := time.ParseDuration(c.Wait)
	return d
}

func (c *ReminderConfig) AfterDuration() time.Duration {
	d, _ := time.ParseDuration(c.After)
	return d
}

func (c *ReminderConfig) IntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.Interval)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation,
// then finalizes the fraud and trust policies. Expression rule weights seed
// trust weights for kinds the trust section leaves unset.
func (c *WorkflowConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Fraud.Finalize(fraudEnv); err != nil {
		return fmt.Errorf("fraud: %w", err)
	}

	if c.Trust.Weights == nil {
		c.Trust.Weights = make(map[string]float64)
	}
	for _, expr := range c.Fraud.Expressions {
		if _, ok := c.Trust.Weights[expr.Kind]; !ok && expr.Weight > 0 {
			c.Trust.Weights[expr.Kind] = expr.Weight
		}
	}

	if err := c.Trust.Finalize(trustEnv); err != nil {
		return fmt.Errorf("trust: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay across nested configs.
func (c *WorkflowConfig) Merge(overlay *WorkflowConfig) {
	if overlay.Store != "" {
		c.Store = overlay.Store
	}
	c.Fraud.Merge(&overlay.Fraud)
	c.Trust.Merge(&overlay.Trust)

	if overlay.Lock.Backend != "" {
		c.Lock.Backend = overlay.Lock.Backend
	}
	if overlay.Lock.Prefix != "" {
		c.Lock.Prefix = overlay.Lock.Prefix
	}
	if overlay.Lock.TTL != "" {
		c.Lock.TTL = overlay.Lock.TTL
	}
	if overlay.Lock.Wait != "" {
		c.Lock.Wait = overlay.Lock.Wait
	}
	if overlay.Lock.Redis.Addr != "" {
		c.Lock.Redis.Addr = overlay.Lock.Redis.Addr
	}
	if overlay.Lock.Redis.Password != "" {
		c.Lock.Redis.Password = overlay.Lock.Redis.Password
	}
	if overlay.Lock.Redis.DB != 0 {
		c.Lock.Redis.DB = overlay.Lock.Redis.DB
	}

	if overlay.Reminders.After != "" {
		c.Reminders.After = overlay.Reminders.After
	}
	if overlay.Reminders.Interval != "" {
		c.Reminders.Interval = overlay.Reminders.Interval
	}
}

func (c *WorkflowConfig) loadDefaults() {
	if c.Store == "" {
		c.Store = StorePostgres
	}
	if c.Lock.Backend == "" {
		c.Lock.Backend = LockLocal
	}
	if c.Lock.Prefix == "" {
		c.Lock.Prefix = "arbiter:lease:"
	}
	if c.Lock.TTL == "" {
		c.Lock.TTL = "30s"
	}
	if c.Lock.Wait == "" {
		c.Lock.Wait = "5s"
	}
	if c.Lock.Backend == LockRedis && c.Lock.Redis.Addr == "" {
		c.Lock.Redis.Addr = "localhost:6379"
	}
	if c.Reminders.After == "" {
		c.Reminders.After = "24h"
	}
	if c.Reminders.Interval == "" {
		c.Reminders.Interval = "1h"
	}
}

func (c *WorkflowConfig) loadEnv() {
	if v := os.Getenv(EnvWorkflowStore); v != "" {
		c.Store = StoreBackend(v)
	}
	if v := os.Getenv(EnvLockBackend); v != "" {
		c.Lock.Backend = LockBackend(v)
	}
	if v := os.Getenv(EnvLockPrefix); v != "" {
		c.Lock.Prefix = v
	}
	if v := os.Getenv(EnvLockTTL); v != "" {
		c.Lock.TTL = v
	}
	if v := os.Getenv(EnvLockWait); v != "" {
		c.Lock.Wait = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Lock.Redis.Addr = v
	}
	if v := os.Getenv(EnvRedisPassword); v != "" {
		c.Lock.Redis.Password = v
	}
	if v := os.Getenv(EnvRedisDB); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Lock.Redis.DB = n
		}
	}
	if v := os.Getenv(EnvReminderAfter); v != "" {
		c.Reminders.After = v
	}
	if v := os.Getenv(EnvReminderInterval); v != "" {
		c.Reminders.Interval = v
	}
}

func (c *WorkflowConfig) validate() error {
	switch c.Store {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("unknown store: %s", c.Store)
	}

	switch c.Lock.Backend {
	case LockLocal:
	case LockRedis:
		if c.Lock.Redis.Addr == "" {
			return fmt.Errorf("lock.redis.addr required for redis backend")
		}
	default:
		return fmt.Errorf("unknown lock backend: %s", c.Lock.Backend)
	}

	durations := map[string]string{
		"lock.ttl":           c.Lock.TTL,
		"lock.wait":          c.Lock.Wait,
		"reminders.after":    c.Reminders.After,
		"reminders.interval": c.Reminders.Interval,
	}
	for name, v := range durations {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}
