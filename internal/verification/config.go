package verification

import (
	"fmt"
	"net/http"
	"os"
	"time"
)

// Mode selects the verifier implementation.
type Mode string

const (
	ModeCallback Mode = "callback"
	ModeHTTP     Mode = "http"
	ModeAuto     Mode = "auto"
)

// Config selects and configures the verifier.
type Config struct {
	Mode    Mode   `toml:"mode"`
	BaseURL string `toml:"base_url"`
	Timeout string `toml:"timeout"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Mode    string
	BaseURL string
	Timeout string
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
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
	if overlay.Mode != "" {
		c.Mode = overlay.Mode
	}
	if overlay.BaseURL != "" {
		c.BaseURL = overlay.BaseURL
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
}

// New builds the Verifier selected by cfg.
func New(cfg *Config) (Verifier, error) {
	switch cfg.Mode {
	case ModeCallback:
		return CallbackVerifier{}, nil
	case ModeAuto:
		return AutoVerifier{}, nil
	case ModeHTTP:
		return NewHTTPVerifier(cfg.BaseURL, &http.Client{Timeout: cfg.TimeoutDuration()})
	default:
		return nil, fmt.Errorf("unknown verification mode %q", cfg.Mode)
	}
}

func (c *Config) loadDefaults() {
	if c.Mode == "" {
		c.Mode = ModeCallback
	}
	if c.Timeout == "" {
		c.Timeout = "10s"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Mode != "" {
		if v := os.Getenv(env.Mode); v != "" {
			c.Mode = Mode(v)
		}
	}
	if env.BaseURL != "" {
		if v := os.Getenv(env.BaseURL); v != "" {
			c.BaseURL = v
		}
	}
	if env.Timeout != "" {
		if v := os.Getenv(env.Timeout); v != "" {
			c.Timeout = v
		}
	}
}

func (c *Config) validate() error {
	switch c.Mode {
	case ModeCallback, ModeAuto:
	case ModeHTTP:
		if c.BaseURL == "" {
			return fmt.Errorf("base_url required for http mode")
		}
	default:
		return fmt.Errorf("unknown verification mode %q", c.Mode)
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	return nil
}
