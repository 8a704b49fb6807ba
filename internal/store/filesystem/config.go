package filesystem

import (
	"fmt"
	"os"
	"time"
)

// Config locates the local record files.
type Config struct {
	DataRoot    string `toml:"data_root"`
	LockTimeout string `toml:"lock_timeout"`
	StaleLock   string `toml:"stale_lock"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	DataRoot    string
	LockTimeout string
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
	if overlay.DataRoot != "" {
		c.DataRoot = overlay.DataRoot
	}
	if overlay.LockTimeout != "" {
		c.LockTimeout = overlay.LockTimeout
	}
	if overlay.StaleLock != "" {
		c.StaleLock = overlay.StaleLock
	}
}

// LockTimeoutDuration parses LockTimeout. Call after Finalize.
func (c *Config) LockTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.LockTimeout)
	return d
}

// StaleLockDuration parses StaleLock. Call after Finalize.
func (c *Config) StaleLockDuration() time.Duration {
	d, _ := time.ParseDuration(c.StaleLock)
	return d
}

func (c *Config) loadDefaults() {
	if c.DataRoot == "" {
		c.DataRoot = "data"
	}
	if c.LockTimeout == "" {
		c.LockTimeout = "5s"
	}
	if c.StaleLock == "" {
		c.StaleLock = "2m"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.DataRoot != "" {
		if v := os.Getenv(env.DataRoot); v != "" {
			c.DataRoot = v
		}
	}
	if env.LockTimeout != "" {
		if v := os.Getenv(env.LockTimeout); v != "" {
			c.LockTimeout = v
		}
	}
}

func (c *Config) validate() error {
	lock, err := time.ParseDuration(c.LockTimeout)
	if err != nil {
		return fmt.Errorf("invalid lock_timeout: %w", err)
	}
	if lock <= 0 {
		return fmt.Errorf("lock_timeout must be positive")
	}
	stale, err := time.ParseDuration(c.StaleLock)
	if err != nil {
		return fmt.Errorf("invalid stale_lock: %w", err)
	}
	if stale <= lock {
		return fmt.Errorf("stale_lock must exceed lock_timeout")
	}
	return nil
}
