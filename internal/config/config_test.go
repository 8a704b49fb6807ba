package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JaimeStill/sentio/internal/config"
	"github.com/JaimeStill/sentio/pkg/storage"
)

const baseConfig = `
backend = "local"
log_level = "debug"
shutdown_timeout = "30s"
version = "0.1.0"

[server]
host = "0.0.0.0"
port = 8080
read_timeout = "1m"
write_timeout = "15m"
shutdown_timeout = "30s"

[database]
host = "localhost"
port = 5432
name = "sentio"
user = "sentio"
query_timeout = "3s"

[storage]
provider = "local"
root = "data/blobs"

[local]
data_root = "data"
lock_timeout = "2s"

[paths]
staging_folder = "staging"
healthy_images_folder = "verified/healthy_images"
sick_images_folder = "verified/sick_images"
healthy_audio_folder = "verified/healthy_audio"
sick_audio_folder = "verified/sick_audio"

[reference]
enabled = true
min_samples_per_class = 3
similarity_weight = 0.15
k_neighbors = 5

[tuning]
vision_threshold = 0.5
audio_threshold = 0.45
min_samples_before_update = 10

[api]
base_path = "/api"
max_body_size = "2MB"

[api.cors]
enabled = false
`

const overlayConfig = `
[server]
port = 9090

[tuning]
audio_threshold = 0.6
`

const remoteConfig = `
backend = "remote"

[database]
name = "sentio"
user = "sentio"

[storage]
provider = "azure"
connection_string = "conn"
`

func writeConfig(t *testing.T, dir, filename, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", filename, err)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(orig) })
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", baseConfig)
	chdir(t, dir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Backend != config.BackendLocal {
		t.Errorf("backend: got %s, want local", cfg.Backend)
	}
	if cfg.Level() != slog.LevelDebug {
		t.Errorf("log level: got %v, want debug", cfg.Level())
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("server port: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.QueryTimeoutDuration() != 3*time.Second {
		t.Errorf("query timeout: got %v", cfg.Database.QueryTimeoutDuration())
	}
	if cfg.Local.LockTimeoutDuration() != 2*time.Second {
		t.Errorf("lock timeout: got %v", cfg.Local.LockTimeoutDuration())
	}
	if cfg.Paths.HealthyImagesFolder != "verified/healthy_images" {
		t.Errorf("healthy images: got %s", cfg.Paths.HealthyImagesFolder)
	}
	if cfg.Reference.KNeighbors != 5 {
		t.Errorf("k neighbors: got %d", cfg.Reference.KNeighbors)
	}
	if cfg.Tuning.AudioThreshold != 0.45 {
		t.Errorf("audio threshold: got %v", cfg.Tuning.AudioThreshold)
	}
	if got := cfg.API.MaxBodySizeBytes(); got != 2*1024*1024 {
		t.Errorf("max body size: got %d", got)
	}
}

func TestLoadWithOverlay(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", baseConfig)
	writeConfig(t, dir, "config.staging.toml", overlayConfig)
	chdir(t, dir)

	t.Setenv("SENTIO_ENV", "staging")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("server port: got %d, want 9090 (from overlay)", cfg.Server.Port)
	}
	if cfg.Tuning.AudioThreshold != 0.6 {
		t.Errorf("audio threshold: got %v, want 0.6 (from overlay)", cfg.Tuning.AudioThreshold)
	}
	if cfg.Tuning.VisionThreshold != 0.5 {
		t.Errorf("vision threshold: got %v, want 0.5 (from base)", cfg.Tuning.VisionThreshold)
	}
}

func TestLoadEnvVarOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", baseConfig)
	chdir(t, dir)

	t.Setenv("SENTIO_VERSION", "2.0.0")
	t.Setenv("SENTIO_SERVER_PORT", "3000")
	t.Setenv("SENTIO_VISION_THRESHOLD", "0.55")
	t.Setenv("SENTIO_REFERENCE_ENABLED", "false")
	t.Setenv("SENTIO_LOCAL_DATA_ROOT", "/srv/sentio")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Version != "2.0.0" {
		t.Errorf("version: got %s, want 2.0.0", cfg.Version)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("server port: got %d, want 3000", cfg.Server.Port)
	}
	if cfg.Tuning.VisionThreshold != 0.55 {
		t.Errorf("vision threshold: got %v, want 0.55", cfg.Tuning.VisionThreshold)
	}
	if cfg.Reference.IsEnabled() {
		t.Error("reference should be disabled by env")
	}
	if cfg.Local.DataRoot != "/srv/sentio" {
		t.Errorf("data root: got %s", cfg.Local.DataRoot)
	}
}

func TestLoadNoConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load without config.toml failed: %v", err)
	}

	if cfg.Backend != config.BackendLocal {
		t.Errorf("backend default: got %s", cfg.Backend)
	}
	if cfg.Storage.Provider != storage.ProviderLocal {
		t.Errorf("storage provider default: got %s", cfg.Storage.Provider)
	}
	if cfg.Level() != slog.LevelInfo {
		t.Errorf("log level default: got %v", cfg.Level())
	}
	if cfg.Tuning.Threshold("vision") != 0.5 {
		t.Errorf("vision threshold default: got %v", cfg.Tuning.Threshold("vision"))
	}
}

func TestLoadRemote(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", remoteConfig)
	chdir(t, dir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Backend != config.BackendRemote || cfg.Storage.Provider != storage.ProviderAzure {
		t.Errorf("backend: got %s with %s", cfg.Backend, cfg.Storage.Provider)
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", `backend = `)
	chdir(t, dir)

	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for invalid TOML")
	}
}

func TestEnvDefault(t *testing.T) {
	cfg := &config.Config{}
	if cfg.Env() != "local" {
		t.Errorf("env: got %s, want local", cfg.Env())
	}

	t.Setenv("SENTIO_ENV", "production")
	if cfg.Env() != "production" {
		t.Errorf("env: got %s, want production", cfg.Env())
	}
}

func TestShutdownTimeoutDuration(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", baseConfig)
	chdir(t, dir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if d := cfg.ShutdownTimeoutDuration(); d != 30*time.Second {
		t.Errorf("shutdown timeout: got %v, want 30s", d)
	}
	if addr := cfg.Server.Addr(); addr != "0.0.0.0:8080" {
		t.Errorf("addr: got %s, want 0.0.0.0:8080", addr)
	}
}

func TestMaxBodySizeBytes(t *testing.T) {
	tests := []struct {
		name string
		size string
		want int64
	}{
		{"valid 1MB", "1MB", 1024 * 1024},
		{"valid 512KB", "512KB", 512 * 1024},
		{"invalid falls back to 1MB", "bad", 1024 * 1024},
		{"empty falls back to 1MB", "", 1024 * 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.APIConfig{MaxBodySize: tt.size}
			if got := cfg.MaxBodySizeBytes(); got != tt.want {
				t.Errorf("MaxBodySizeBytes() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr string
	}{
		{
			name:    "invalid port",
			config:  "[server]\nport = 99999\n",
			wantErr: "invalid port",
		},
		{
			name:    "invalid log level",
			config:  "log_level = \"loud\"\n",
			wantErr: "invalid log_level",
		},
		{
			name:    "unknown backend",
			config:  "backend = \"cloud\"\n",
			wantErr: "unknown backend",
		},
		{
			name:    "local backend with remote blobs",
			config:  "[storage]\nprovider = \"gcs\"\nbucket = \"b\"\n",
			wantErr: "local storage provider",
		},
		{
			name:    "remote backend with local blobs",
			config:  "backend = \"remote\"\n[database]\nname = \"s\"\nuser = \"s\"\n",
			wantErr: "azure or gcs",
		},
		{
			name:    "remote backend without database",
			config:  "backend = \"remote\"\n[storage]\nprovider = \"gcs\"\nbucket = \"b\"\n",
			wantErr: "name required",
		},
		{
			name:    "inverted tuning bounds",
			config:  "[tuning]\nmin_threshold = 0.8\nmax_threshold = 0.2\n",
			wantErr: "tuning",
		},
		{
			name:    "duplicate verified folders",
			config:  "[paths]\nhealthy_images_folder = \"same\"\nsick_images_folder = \"same\"\n",
			wantErr: "paths",
		},
		{
			name:    "invalid body size",
			config:  "[api]\nmax_body_size = \"lots\"\n",
			wantErr: "max_body_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, "config.toml", tt.config)
			chdir(t, dir)

			_, err := config.Load()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestServerConfigTimeouts(t *testing.T) {
	t.Setenv(config.EnvServerIdleTimeout, "45s")

	cfg := &config.ServerConfig{WriteTimeout: "10m"}
	cfg.Merge(&config.ServerConfig{ReadHeaderTimeout: "3s"})
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"read header from overlay", cfg.ReadHeaderTimeoutDuration(), 3 * time.Second},
		{"read default", cfg.ReadTimeoutDuration(), time.Minute},
		{"write preserved", cfg.WriteTimeoutDuration(), 10 * time.Minute},
		{"idle from env", cfg.IdleTimeoutDuration(), 45 * time.Second},
		{"shutdown default", cfg.ShutdownTimeoutDuration(), 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %s, want %s", tt.got, tt.want)
			}
		})
	}

	bad := &config.ServerConfig{IdleTimeout: "0s"}
	if err := bad.Finalize(); err == nil || !strings.Contains(err.Error(), "idle_timeout") {
		t.Errorf("zero idle timeout: got %v", err)
	}
}
