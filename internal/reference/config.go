package reference

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the reference comparison parameters.
type Config struct {
	Enabled            *bool   `toml:"enabled"`
	MinSamplesPerClass int     `toml:"min_samples_per_class"`
	SimilarityWeight   float64 `toml:"similarity_weight"`
	KNeighbors         int     `toml:"k_neighbors"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Enabled            string
	MinSamplesPerClass string
	SimilarityWeight   string
	KNeighbors         string
}

// IsEnabled reports whether comparison is on. Unset means enabled.
func (c *Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
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
	if overlay.Enabled != nil {
		v := *overlay.Enabled
		c.Enabled = &v
	}
	if overlay.MinSamplesPerClass != 0 {
		c.MinSamplesPerClass = overlay.MinSamplesPerClass
	}
	if overlay.SimilarityWeight != 0 {
		c.SimilarityWeight = overlay.SimilarityWeight
	}
	if overlay.KNeighbors != 0 {
		c.KNeighbors = overlay.KNeighbors
	}
}

func (c *Config) loadDefaults() {
	if c.Enabled == nil {
		enabled := true
		c.Enabled = &enabled
	}
	if c.MinSamplesPerClass == 0 {
		c.MinSamplesPerClass = 3
	}
	if c.SimilarityWeight == 0 {
		c.SimilarityWeight = 0.3
	}
	if c.KNeighbors == 0 {
		c.KNeighbors = 5
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Enabled != "" {
		if v := os.Getenv(env.Enabled); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				c.Enabled = &b
			}
		}
	}
	if env.MinSamplesPerClass != "" {
		if v := os.Getenv(env.MinSamplesPerClass); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.MinSamplesPerClass = n
			}
		}
	}
	if env.SimilarityWeight != "" {
		if v := os.Getenv(env.SimilarityWeight); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				c.SimilarityWeight = f
			}
		}
	}
	if env.KNeighbors != "" {
		if v := os.Getenv(env.KNeighbors); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.KNeighbors = n
			}
		}
	}
}

func (c *Config) validate() error {
	if c.MinSamplesPerClass < 1 {
		return fmt.Errorf("min_samples_per_class must be positive")
	}
	if c.KNeighbors < 1 {
		return fmt.Errorf("k_neighbors must be positive")
	}
	if c.SimilarityWeight < 0 || c.SimilarityWeight > 1 {
		return fmt.Errorf("similarity_weight must be within [0, 1]")
	}
	return nil
}
