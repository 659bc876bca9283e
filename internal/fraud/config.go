package fraud

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds rule thresholds and operator-defined expression rules.
type Config struct {
	DistanceThresholdMiles float64            `toml:"distance_threshold_miles"`
	VelocityThreshold      int                `toml:"velocity_threshold"`
	VelocityWindow         string             `toml:"velocity_window"`
	Expressions            []ExpressionConfig `toml:"expressions"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	DistanceThresholdMiles string
	VelocityThreshold      string
	VelocityWindow         string
}

// VelocityWindowDuration returns VelocityWindow as a time.Duration.
func (c *Config) VelocityWindowDuration() time.Duration {
	d, _ := time.ParseDuration(c.VelocityWindow)
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

// Merge overwrites non-zero fields from overlay. Expression rules replace
// the base set when the overlay defines any.
func (c *Config) Merge(overlay *Config) {
	if overlay.DistanceThresholdMiles != 0 {
		c.DistanceThresholdMiles = overlay.DistanceThresholdMiles
	}
	if overlay.VelocityThreshold != 0 {
		c.VelocityThreshold = overlay.VelocityThreshold
	}
	if overlay.VelocityWindow != "" {
		c.VelocityWindow = overlay.VelocityWindow
	}
	if overlay.Expressions != nil {
		c.Expressions = overlay.Expressions
	}
}

func (c *Config) loadDefaults() {
	if c.DistanceThresholdMiles == 0 {
		c.DistanceThresholdMiles = 300
	}
	if c.VelocityThreshold == 0 {
		c.VelocityThreshold = 3
	}
	if c.VelocityWindow == "" {
		c.VelocityWindow = "720h"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.DistanceThresholdMiles != "" {
		if v := os.Getenv(env.DistanceThresholdMiles); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				c.DistanceThresholdMiles = f
			}
		}
	}
	if env.VelocityThreshold != "" {
		if v := os.Getenv(env.VelocityThreshold); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.VelocityThreshold = n
			}
		}
	}
	if env.VelocityWindow != "" {
		if v := os.Getenv(env.VelocityWindow); v != "" {
			c.VelocityWindow = v
		}
	}
}

func (c *Config) validate() error {
	if c.DistanceThresholdMiles <= 0 {
		return fmt.Errorf("distance_threshold_miles must be positive")
	}
	if c.VelocityThreshold < 0 {
		return fmt.Errorf("velocity_threshold must not be negative")
	}
	d, err := time.ParseDuration(c.VelocityWindow)
	if err != nil {
		return fmt.Errorf("invalid velocity_window: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("velocity_window must be positive")
	}
	seen := map[string]bool{
		string(KindDistanceDiscrepancy): true,
		string(KindRefundVelocity):      true,
		string(KindChargebackRisk):      true,
	}
	for _, e := range c.Expressions {
		if e.Kind == "" || e.Expression == "" {
			return fmt.Errorf("expression rules require kind and expression")
		}
		if seen[e.Kind] {
			return fmt.Errorf("duplicate rule kind %q", e.Kind)
		}
		seen[e.Kind] = true
	}
	return nil
}
