package thresholds

import (
	"fmt"
	"os"
	"strconv"

	"github.com/JaimeStill/sentio/internal/labels"
)

// Config holds the initial per-modality thresholds and the tuning parameters.
type Config struct {
	Enabled           *bool   `toml:"enabled"`
	VisionThreshold   float64 `toml:"vision_threshold"`
	AudioThreshold    float64 `toml:"audio_threshold"`
	MinSamples        int     `toml:"min_samples_before_update"`
	LearningRate      float64 `toml:"learning_rate"`
	BoundaryWidth     float64 `toml:"boundary_width"`
	Window            int     `toml:"window"`
	MinBoundaryErrors int     `toml:"min_boundary_errors"`
	MinThreshold      float64 `toml:"min_threshold"`
	MaxThreshold      float64 `toml:"max_threshold"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Enabled         string
	VisionThreshold string
	AudioThreshold  string
	MinSamples      string
	LearningRate    string
}

// IsEnabled reports whether feedback is recorded. Unset means enabled.
func (c *Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Threshold returns the configured starting threshold for m.
func (c *Config) Threshold(m labels.Modality) float64 {
	if m == labels.Audio {
		return c.AudioThreshold
	}
	return c.VisionThreshold
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
	if overlay.VisionThreshold != 0 {
		c.VisionThreshold = overlay.VisionThreshold
	}
	if overlay.AudioThreshold != 0 {
		c.AudioThreshold = overlay.AudioThreshold
	}
	if overlay.MinSamples != 0 {
		c.MinSamples = overlay.MinSamples
	}
	if overlay.LearningRate != 0 {
		c.LearningRate = overlay.LearningRate
	}
	if overlay.BoundaryWidth != 0 {
		c.BoundaryWidth = overlay.BoundaryWidth
	}
	if overlay.Window != 0 {
		c.Window = overlay.Window
	}
	if overlay.MinBoundaryErrors != 0 {
		c.MinBoundaryErrors = overlay.MinBoundaryErrors
	}
	if overlay.MinThreshold != 0 {
		c.MinThreshold = overlay.MinThreshold
	}
	if overlay.MaxThreshold != 0 {
		c.MaxThreshold = overlay.MaxThreshold
	}
}

func (c *Config) loadDefaults() {
	if c.Enabled == nil {
		enabled := true
		c.Enabled = &enabled
	}
	if c.VisionThreshold == 0 {
		c.VisionThreshold = 0.5
	}
	if c.AudioThreshold == 0 {
		c.AudioThreshold = 0.5
	}
	if c.MinSamples == 0 {
		c.MinSamples = 10
	}
	if c.LearningRate == 0 {
		c.LearningRate = 0.1
	}
	if c.BoundaryWidth == 0 {
		c.BoundaryWidth = 0.15
	}
	if c.Window == 0 {
		c.Window = 50
	}
	if c.MinBoundaryErrors == 0 {
		c.MinBoundaryErrors = 3
	}
	if c.MinThreshold == 0 {
		c.MinThreshold = 0.3
	}
	if c.MaxThreshold == 0 {
		c.MaxThreshold = 0.7
	}
}

func (c *Config) loadEnv(env *Env) {
	setFloat := func(name string, dst *float64) {
		if name == "" {
			return
		}
		if v := os.Getenv(name); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	if env.Enabled != "" {
		if v := os.Getenv(env.Enabled); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				c.Enabled = &b
			}
		}
	}
	setFloat(env.VisionThreshold, &c.VisionThreshold)
	setFloat(env.AudioThreshold, &c.AudioThreshold)
	setFloat(env.LearningRate, &c.LearningRate)
	if env.MinSamples != "" {
		if v := os.Getenv(env.MinSamples); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.MinSamples = n
			}
		}
	}
}

func (c *Config) validate() error {
	if c.MinThreshold >= c.MaxThreshold {
		return fmt.Errorf("min_threshold %v must be below max_threshold %v", c.MinThreshold, c.MaxThreshold)
	}
	for _, m := range labels.Modalities {
		if t := c.Threshold(m); t < 0 || t > 1 {
			return fmt.Errorf("%s threshold %v out of range [0, 1]", m, t)
		}
	}
	if c.MinSamples < 1 {
		return fmt.Errorf("min_samples_before_update must be positive")
	}
	if c.Window < 1 {
		return fmt.Errorf("window must be positive")
	}
	if c.LearningRate < 0 {
		return fmt.Errorf("learning_rate must not be negative")
	}
	return nil
}
