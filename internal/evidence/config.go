package evidence

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds collaborator endpoints and the retry and rate limit policy.
// When FixturePath is set, evidence is served from a local YAML fixture file
// instead of the HTTP collaborators.
type Config struct {
	BaseURL         string  `toml:"base_url"`
	FixturePath     string  `toml:"fixture_path"`
	Timeout         string  `toml:"timeout"`
	MaxAttempts     int     `toml:"max_attempts"`
	InitialInterval string  `toml:"initial_interval"`
	MaxInterval     string  `toml:"max_interval"`
	RateLimit       float64 `toml:"rate_limit"`
	RateBurst       int     `toml:"rate_burst"`
	PolicyLimit     int     `toml:"policy_limit"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	BaseURL         string
	FixturePath     string
	Timeout         string
	MaxAttempts     string
	InitialInterval string
	MaxInterval     string
	RateLimit       string
	RateBurst       string
	PolicyLimit     string
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// InitialIntervalDuration returns InitialInterval as a time.Duration.
func (c *Config) InitialIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.InitialInterval)
	return d
}

// MaxIntervalDuration returns MaxInterval as a time.Duration.
func (c *Config) MaxIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.MaxInterval)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.BaseURL != "" {
		c.BaseURL = overlay.BaseURL
	}
	if overlay.FixturePath != "" {
		c.FixturePath = overlay.FixturePath
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
	if overlay.MaxAttempts != 0 {
		c.MaxAttempts = overlay.MaxAttempts
	}
	if overlay.InitialInterval != "" {
		c.InitialInterval = overlay.InitialInterval
	}
	if overlay.MaxInterval != "" {
		c.MaxInterval = overlay.MaxInterval
	}
	if overlay.RateLimit != 0 {
		c.RateLimit = overlay.RateLimit
	}
	if overlay.RateBurst != 0 {
		c.RateBurst = overlay.RateBurst
	}
	if overlay.PolicyLimit != 0 {
		c.PolicyLimit = overlay.PolicyLimit
	}
}

func (c *Config) loadDefaults() {
	if c.Timeout == "" {
		c.Timeout = "10s"
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 4
	}
	if c.InitialInterval == "" {
		c.InitialInterval = "200ms"
	}
	if c.MaxInterval == "" {
		c.MaxInterval = "5s"
	}
	if c.RateLimit == 0 {
		c.RateLimit = 50
	}
	if c.RateBurst == 0 {
		c.RateBurst = 10
	}
	if c.PolicyLimit == 0 {
		c.PolicyLimit = 5
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.BaseURL != "" {
		if v := os.Getenv(env.BaseURL); v != "" {
			c.BaseURL = v
		}
	}
	if env.FixturePath != "" {
		if v := os.Getenv(env.FixturePath); v != "" {
			c.FixturePath = v
		}
	}
	if env.Timeout != "" {
		if v := os.Getenv(env.Timeout); v != "" {
			c.Timeout = v
		}
	}
	if env.MaxAttempts != "" {
		if v := os.Getenv(env.MaxAttempts); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.MaxAttempts = n
			}
		}
	}
	if env.InitialInterval != "" {
		if v := os.Getenv(env.InitialInterval); v != "" {
			c.InitialInterval = v
		}
	}
	if env.MaxInterval != "" {
		if v := os.Getenv(env.MaxInterval); v != "" {
			c.MaxInterval = v
		}
	}
	if env.RateLimit != "" {
		if v := os.Getenv(env.RateLimit); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				c.RateLimit = f
			}
		}
	}
	if env.RateBurst != "" {
		if v := os.Getenv(env.RateBurst); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.RateBurst = n
			}
		}
	}
	if env.PolicyLimit != "" {
		if v := os.Getenv(env.PolicyLimit); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.PolicyLimit = n
			}
		}
	}
}

func (c *Config) validate() error {
	if c.BaseURL == "" && c.FixturePath == "" {
		return fmt.Errorf("base_url or fixture_path required")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be positive")
	}
	if c.RateLimit < 0 || c.RateBurst < 1 {
		return fmt.Errorf("invalid rate limit: %v/%d", c.RateLimit, c.RateBurst)
	}
	if c.PolicyLimit < 1 {
		return fmt.Errorf("policy_limit must be positive")
	}
	for name, v := range map[string]string{
		"timeout":          c.Timeout,
		"initial_interval": c.InitialInterval,
		"max_interval":     c.MaxInterval,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}
