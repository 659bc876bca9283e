package trust

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/JaimeStill/arbiter/internal/fraud"
)

// Config holds per-kind weights and the {threshold: tier} boundary pairs.
// Kinds without an explicit weight use DefaultWeight.
type Config struct {
	Weights       map[string]float64 `toml:"weights"`
	DefaultWeight float64            `toml:"default_weight"`
	Tiers         map[string]string  `toml:"tiers"`
}

// Env maps config fields to environment variable names for override injection.
// Tiers is parsed as comma-separated threshold=tier pairs.
type Env struct {
	DefaultWeight string
	Tiers         string
}

// Boundaries parses Tiers into boundaries sorted by threshold.
func (c *Config) Boundaries() ([]Boundary, error) {
	return parseBoundaries(c.Tiers)
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overlays weights per kind; tiers are replaced as a whole.
func (c *Config) Merge(overlay *Config) {
	if len(overlay.Weights) > 0 {
		if c.Weights == nil {
			c.Weights = make(map[string]float64, len(overlay.Weights))
		}
		for k, w := range overlay.Weights {
			c.Weights[k] = w
		}
	}
	if overlay.DefaultWeight != 0 {
		c.DefaultWeight = overlay.DefaultWeight
	}
	if len(overlay.Tiers) > 0 {
		c.Tiers = overlay.Tiers
	}
}

func (c *Config) loadDefaults() {
	if c.Weights == nil {
		c.Weights = make(map[string]float64)
	}
	defaults := map[fraud.Kind]float64{
		fraud.KindDistanceDiscrepancy: 1,
		fraud.KindRefundVelocity:      1,
		fraud.KindChargebackRisk:      2,
	}
	for k, w := range defaults {
		if _, ok := c.Weights[string(k)]; !ok {
			c.Weights[string(k)] = w
		}
	}
	if c.DefaultWeight == 0 {
		c.DefaultWeight = 1
	}
	if len(c.Tiers) == 0 {
		c.Tiers = map[string]string{
			"0": string(TierFastTrack),
			"1": string(TierManualReview),
		}
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.DefaultWeight != "" {
		if v := os.Getenv(env.DefaultWeight); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				c.DefaultWeight = f
			}
		}
	}
	if env.Tiers != "" {
		if v := os.Getenv(env.Tiers); v != "" {
			tiers := make(map[string]string)
			for _, pair := range strings.Split(v, ",") {
				threshold, tier, ok := strings.Cut(strings.TrimSpace(pair), "=")
				if ok {
					tiers[strings.TrimSpace(threshold)] = strings.TrimSpace(tier)
				}
			}
			if len(tiers) > 0 {
				c.Tiers = tiers
			}
		}
	}
}

func (c *Config) validate() error {
	for k, w := range c.Weights {
		if w < 0 {
			return fmt.Errorf("weight for %s must not be negative", k)
		}
	}
	if c.DefaultWeight < 0 {
		return fmt.Errorf("default_weight must not be negative")
	}
	bounds, err := c.Boundaries()
	if err != nil {
		return err
	}
	if len(bounds) == 0 || bounds[0].Threshold > 0 {
		return fmt.Errorf("tiers must include a threshold at or below 0")
	}
	return nil
}
