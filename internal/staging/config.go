package staging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/JaimeStill/sentio/internal/labels"
)

// Config names the blob folders of the pipeline.
type Config struct {
	StagingFolder       string `toml:"staging_folder"`
	HealthyImagesFolder string `toml:"healthy_images_folder"`
	SickImagesFolder    string `toml:"sick_images_folder"`
	HealthyAudioFolder  string `toml:"healthy_audio_folder"`
	SickAudioFolder     string `toml:"sick_audio_folder"`
	PreviewTTL          string `toml:"preview_ttl"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	StagingFolder       string
	HealthyImagesFolder string
	SickImagesFolder    string
	HealthyAudioFolder  string
	SickAudioFolder     string
	PreviewTTL          string
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
	if overlay.StagingFolder != "" {
		c.StagingFolder = overlay.StagingFolder
	}
	if overlay.HealthyImagesFolder != "" {
		c.HealthyImagesFolder = overlay.HealthyImagesFolder
	}
	if overlay.SickImagesFolder != "" {
		c.SickImagesFolder = overlay.SickImagesFolder
	}
	if overlay.HealthyAudioFolder != "" {
		c.HealthyAudioFolder = overlay.HealthyAudioFolder
	}
	if overlay.SickAudioFolder != "" {
		c.SickAudioFolder = overlay.SickAudioFolder
	}
	if overlay.PreviewTTL != "" {
		c.PreviewTTL = overlay.PreviewTTL
	}
}

// Folders lists the staging folder followed by the four verified folders.
func (c *Config) Folders() []string {
	return []string{
		c.StagingFolder,
		c.HealthyImagesFolder,
		c.SickImagesFolder,
		c.HealthyAudioFolder,
		c.SickAudioFolder,
	}
}

// Destination returns the verified folder for a modality and final label.
func (c *Config) Destination(m labels.Modality, final labels.Label) string {
	healthy := labels.ClassOf(final) == labels.ClassHealthy
	switch {
	case m == labels.Audio && healthy:
		return c.HealthyAudioFolder
	case m == labels.Audio:
		return c.SickAudioFolder
	case healthy:
		return c.HealthyImagesFolder
	default:
		return c.SickImagesFolder
	}
}

// PreviewTTLDuration parses PreviewTTL. Call after Finalize.
func (c *Config) PreviewTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.PreviewTTL)
	return d
}

func (c *Config) loadDefaults() {
	if c.StagingFolder == "" {
		c.StagingFolder = "staging"
	}
	if c.HealthyImagesFolder == "" {
		c.HealthyImagesFolder = "healthy_images"
	}
	if c.SickImagesFolder == "" {
		c.SickImagesFolder = "sick_images"
	}
	if c.HealthyAudioFolder == "" {
		c.HealthyAudioFolder = "healthy_audio"
	}
	if c.SickAudioFolder == "" {
		c.SickAudioFolder = "sick_audio"
	}
	if c.PreviewTTL == "" {
		c.PreviewTTL = "15m"
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

	set(env.StagingFolder, &c.StagingFolder)
	set(env.HealthyImagesFolder, &c.HealthyImagesFolder)
	set(env.SickImagesFolder, &c.SickImagesFolder)
	set(env.HealthyAudioFolder, &c.HealthyAudioFolder)
	set(env.SickAudioFolder, &c.SickAudioFolder)
	set(env.PreviewTTL, &c.PreviewTTL)
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.PreviewTTL); err != nil {
		return fmt.Errorf("invalid preview_ttl: %w", err)
	}

	seen := make(map[string]bool, 5)
	for _, f := range c.Folders() {
		clean := strings.Trim(f, "/")
		if clean == "" || strings.Contains(clean, "..") {
			return fmt.Errorf("invalid folder %q", f)
		}
		if seen[clean] {
			return fmt.Errorf("folder %q used more than once", f)
		}
		seen[clean] = true
	}
	return nil
}
