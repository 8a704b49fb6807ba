package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/JaimeStill/sentio/internal/reference"
	"github.com/JaimeStill/sentio/internal/staging"
	"github.com/JaimeStill/sentio/internal/store/filesystem"
	"github.com/JaimeStill/sentio/internal/thresholds"
	"github.com/JaimeStill/sentio/pkg/database"
	"github.com/JaimeStill/sentio/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvSentioEnv             = "SENTIO_ENV"
	EnvSentioBackend         = "SENTIO_BACKEND"
	EnvSentioLogLevel        = "SENTIO_LOG_LEVEL"
	EnvSentioShutdownTimeout = "SENTIO_SHUTDOWN_TIMEOUT"
	EnvSentioVersion         = "SENTIO_VERSION"
)

// Backend selects the Record Store and Blob Store pair.
type Backend string

const (
	BackendLocal  Backend = "local"
	BackendRemote Backend = "remote"
)

var databaseEnv = &database.Env{
	Host:            "SENTIO_DB_HOST",
	Port:            "SENTIO_DB_PORT",
	Name:            "SENTIO_DB_NAME",
	User:            "SENTIO_DB_USER",
	Password:        "SENTIO_DB_PASSWORD",
	SSLMode:         "SENTIO_DB_SSL_MODE",
	MaxOpenConns:    "SENTIO_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "SENTIO_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "SENTIO_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "SENTIO_DB_CONN_TIMEOUT",
	QueryTimeout:    "SENTIO_DB_QUERY_TIMEOUT",
}

var storageEnv = &storage.Env{
	Provider:         "SENTIO_STORAGE_PROVIDER",
	Root:             "SENTIO_STORAGE_ROOT",
	ContainerName:    "SENTIO_STORAGE_CONTAINER_NAME",
	ConnectionString: "SENTIO_STORAGE_CONNECTION_STRING",
	AccountURL:       "SENTIO_STORAGE_ACCOUNT_URL",
	Bucket:           "SENTIO_STORAGE_BUCKET",
	CredentialsFile:  "SENTIO_STORAGE_CREDENTIALS_FILE",
	URLTTL:           "SENTIO_STORAGE_URL_TTL",
}

var localEnv = &filesystem.Env{
	DataRoot:    "SENTIO_LOCAL_DATA_ROOT",
	LockTimeout: "SENTIO_LOCAL_LOCK_TIMEOUT",
}

var pathsEnv = &staging.Env{
	StagingFolder:       "SENTIO_STAGING_FOLDER",
	HealthyImagesFolder: "SENTIO_HEALTHY_IMAGES_FOLDER",
	SickImagesFolder:    "SENTIO_SICK_IMAGES_FOLDER",
	HealthyAudioFolder:  "SENTIO_HEALTHY_AUDIO_FOLDER",
	SickAudioFolder:     "SENTIO_SICK_AUDIO_FOLDER",
	PreviewTTL:          "SENTIO_PREVIEW_TTL",
}

var referenceEnv = &reference.Env{
	Enabled:            "SENTIO_REFERENCE_ENABLED",
	MinSamplesPerClass: "SENTIO_REFERENCE_MIN_SAMPLES_PER_CLASS",
	SimilarityWeight:   "SENTIO_REFERENCE_SIMILARITY_WEIGHT",
	KNeighbors:         "SENTIO_REFERENCE_K_NEIGHBORS",
}

var tuningEnv = &thresholds.Env{
	Enabled:         "SENTIO_TUNING_ENABLED",
	VisionThreshold: "SENTIO_VISION_THRESHOLD",
	AudioThreshold:  "SENTIO_AUDIO_THRESHOLD",
	MinSamples:      "SENTIO_TUNING_MIN_SAMPLES",
	LearningRate:    "SENTIO_TUNING_LEARNING_RATE",
}

// Config is the root configuration for the sentio service.
type Config struct {
	Backend         Backend           `toml:"backend"`
	LogLevel        string            `toml:"log_level"`
	ShutdownTimeout string            `toml:"shutdown_timeout"`
	Version         string            `toml:"version"`
	Server          ServerConfig      `toml:"server"`
	Database        database.Config   `toml:"database"`
	Storage         storage.Config    `toml:"storage"`
	Local           filesystem.Config `toml:"local"`
	Paths           staging.Config    `toml:"paths"`
	Reference       reference.Config  `toml:"reference"`
	Tuning          thresholds.Config `toml:"tuning"`
	API             APIConfig         `toml:"api"`
}

// Env returns the SENTIO_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvSentioEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Level returns the parsed log level. Call after Load.
func (c *Config) Level() slog.Level {
	var level slog.Level
	level.UnmarshalText([]byte(c.LogLevel))
	return level
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(BaseConfigFile); err == nil {
		loaded, err := load(BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.Backend != "" {
		c.Backend = overlay.Backend
	}
	if overlay.LogLevel != "" {
		c.LogLevel = overlay.LogLevel
	}
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.Local.Merge(&overlay.Local)
	c.Paths.Merge(&overlay.Paths)
	c.Reference.Merge(&overlay.Reference)
	c.Tuning.Merge(&overlay.Tuning)
	c.API.Merge(&overlay.API)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Database.Finalize(databaseEnv); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Storage.Finalize(storageEnv); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Local.Finalize(localEnv); err != nil {
		return fmt.Errorf("local: %w", err)
	}
	if err := c.Paths.Finalize(pathsEnv); err != nil {
		return fmt.Errorf("paths: %w", err)
	}
	if err := c.Reference.Finalize(referenceEnv); err != nil {
		return fmt.Errorf("reference: %w", err)
	}
	if err := c.Tuning.Finalize(tuningEnv); err != nil {
		return fmt.Errorf("tuning: %w", err)
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return c.validateBackend()
}

func (c *Config) loadDefaults() {
	if c.Backend == "" {
		c.Backend = BackendLocal
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvSentioBackend); v != "" {
		c.Backend = Backend(v)
	}
	if v := os.Getenv(EnvSentioLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvSentioShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvSentioVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	return nil
}

// validateBackend runs after every section is finalized so provider
// defaults are visible.
func (c *Config) validateBackend() error {
	switch c.Backend {
	case BackendLocal:
		if c.Storage.Provider != storage.ProviderLocal {
			return fmt.Errorf("local backend requires the local storage provider, got %q", c.Storage.Provider)
		}
	case BackendRemote:
		if c.Storage.Provider == storage.ProviderLocal {
			return fmt.Errorf("remote backend requires the azure or gcs storage provider")
		}
		if err := c.Database.Validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvSentioEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
