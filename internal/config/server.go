package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

const (
	EnvServerHost              = "SENTIO_SERVER_HOST"
	EnvServerPort              = "SENTIO_SERVER_PORT"
	EnvServerReadHeaderTimeout = "SENTIO_SERVER_READ_HEADER_TIMEOUT"
	EnvServerReadTimeout       = "SENTIO_SERVER_READ_TIMEOUT"
	EnvServerWriteTimeout      = "SENTIO_SERVER_WRITE_TIMEOUT"
	EnvServerIdleTimeout       = "SENTIO_SERVER_IDLE_TIMEOUT"
	EnvServerShutdownTimeout   = "SENTIO_SERVER_SHUTDOWN_TIMEOUT"
)

// ServerConfig holds HTTP server parameters. Write timeout covers file
// downloads from the staging folder, so keep it above the slowest expected
// transfer.
type ServerConfig struct {
	Host              string `toml:"host"`
	Port              int    `toml:"port"`
	ReadHeaderTimeout string `toml:"read_header_timeout"`
	ReadTimeout       string `toml:"read_timeout"`
	WriteTimeout      string `toml:"write_timeout"`
	IdleTimeout       string `toml:"idle_timeout"`
	ShutdownTimeout   string `toml:"shutdown_timeout"`
}

// Addr returns the host:port listen address.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *ServerConfig) ReadHeaderTimeoutDuration() time.Duration { return duration(c.ReadHeaderTimeout) }
func (c *ServerConfig) ReadTimeoutDuration() time.Duration       { return duration(c.ReadTimeout) }
func (c *ServerConfig) WriteTimeoutDuration() time.Duration      { return duration(c.WriteTimeout) }
func (c *ServerConfig) IdleTimeoutDuration() time.Duration       { return duration(c.IdleTimeout) }
func (c *ServerConfig) ShutdownTimeoutDuration() time.Duration   { return duration(c.ShutdownTimeout) }

// Finalize applies defaults, environment variable overrides, and validation.
func (c *ServerConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *ServerConfig) Merge(overlay *ServerConfig) {
	if overlay.Host != "" {
		c.Host = overlay.Host
	}
	if overlay.Port != 0 {
		c.Port = overlay.Port
	}
	for field, v := range c.timeouts() {
		if o := overlay.timeouts()[field]; *o != "" {
			*v = *o
		}
	}
}

// timeouts maps each duration field's TOML key to its value.
func (c *ServerConfig) timeouts() map[string]*string {
	return map[string]*string{
		"read_header_timeout": &c.ReadHeaderTimeout,
		"read_timeout":        &c.ReadTimeout,
		"write_timeout":       &c.WriteTimeout,
		"idle_timeout":        &c.IdleTimeout,
		"shutdown_timeout":    &c.ShutdownTimeout,
	}
}

func (c *ServerConfig) loadDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}

	defaults := map[string]string{
		"read_header_timeout": "10s",
		"read_timeout":        "1m",
		"write_timeout":       "5m",
		"idle_timeout":        "2m",
		"shutdown_timeout":    "30s",
	}
	for field, v := range c.timeouts() {
		if *v == "" {
			*v = defaults[field]
		}
	}
}

func (c *ServerConfig) loadEnv() {
	if v := os.Getenv(EnvServerHost); v != "" {
		c.Host = v
	}
	if v := os.Getenv(EnvServerPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}

	env := map[string]string{
		"read_header_timeout": EnvServerReadHeaderTimeout,
		"read_timeout":        EnvServerReadTimeout,
		"write_timeout":       EnvServerWriteTimeout,
		"idle_timeout":        EnvServerIdleTimeout,
		"shutdown_timeout":    EnvServerShutdownTimeout,
	}
	for field, v := range c.timeouts() {
		if s := os.Getenv(env[field]); s != "" {
			*v = s
		}
	}
}

func (c *ServerConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	for field, v := range c.timeouts() {
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", field, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid %s: must be positive", field)
		}
	}
	return nil
}

func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
