package storage

import (
	"fmt"
	"os"
	"time"
)

// Provider names the blob backend.
type Provider string

const (
	ProviderLocal Provider = "local"
	ProviderAzure Provider = "azure"
	ProviderGCS   Provider = "gcs"
)

// Config holds blob storage parameters for every provider.
// Only the fields of the selected provider are validated.
type Config struct {
	Provider         Provider `toml:"provider"`
	Root             string   `toml:"root"`
	ContainerName    string   `toml:"container_name"`
	ConnectionString string   `toml:"connection_string"`
	AccountURL       string   `toml:"account_url"`
	Bucket           string   `toml:"bucket"`
	CredentialsFile  string   `toml:"credentials_file"`
	URLTTL           string   `toml:"url_ttl"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Provider         string
	Root             string
	ContainerName    string
	ConnectionString string
	AccountURL       string
	Bucket           string
	CredentialsFile  string
	URLTTL           string
}

// URLTTLDuration returns URLTTL as a time.Duration.
func (c *Config) URLTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.URLTTL)
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
	if overlay.Provider != "" {
		c.Provider = overlay.Provider
	}
	if overlay.Root != "" {
		c.Root = overlay.Root
	}
	if overlay.ContainerName != "" {
		c.ContainerName = overlay.ContainerName
	}
	if overlay.ConnectionString != "" {
		c.ConnectionString = overlay.ConnectionString
	}
	if overlay.AccountURL != "" {
		c.AccountURL = overlay.AccountURL
	}
	if overlay.Bucket != "" {
		c.Bucket = overlay.Bucket
	}
	if overlay.CredentialsFile != "" {
		c.CredentialsFile = overlay.CredentialsFile
	}
	if overlay.URLTTL != "" {
		c.URLTTL = overlay.URLTTL
	}
}

func (c *Config) loadDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderLocal
	}
	if c.Root == "" {
		c.Root = "data/blobs"
	}
	if c.ContainerName == "" {
		c.ContainerName = "livestock"
	}
	if c.URLTTL == "" {
		c.URLTTL = "15m"
	}
}

func (c *Config) loadEnv(env *Env) {
	set := func(name string, dst *string) {
		if name == "" {
			return
		}
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	if env.Provider != "" {
		if v := os.Getenv(env.Provider); v != "" {
			c.Provider = Provider(v)
		}
	}
	set(env.Root, &c.Root)
	set(env.ContainerName, &c.ContainerName)
	set(env.ConnectionString, &c.ConnectionString)
	set(env.AccountURL, &c.AccountURL)
	set(env.Bucket, &c.Bucket)
	set(env.CredentialsFile, &c.CredentialsFile)
	set(env.URLTTL, &c.URLTTL)
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.URLTTL); err != nil {
		return fmt.Errorf("invalid url_ttl: %w", err)
	}

	switch c.Provider {
	case ProviderLocal:
		if c.Root == "" {
			return fmt.Errorf("root required for local provider")
		}
	case ProviderAzure:
		if c.ContainerName == "" {
			return fmt.Errorf("container_name required for azure provider")
		}
		if c.ConnectionString == "" && c.AccountURL == "" {
			return fmt.Errorf("connection_string or account_url required for azure provider")
		}
	case ProviderGCS:
		if c.Bucket == "" {
			return fmt.Errorf("bucket required for gcs provider")
		}
	default:
		return fmt.Errorf("unknown storage provider %q", c.Provider)
	}
	return nil
}
