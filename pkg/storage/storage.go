// Package storage provides blob storage for staged and verified artifacts
// with local filesystem, Azure Blob Storage, and Google Cloud Storage providers.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/JaimeStill/sentio/pkg/lifecycle"
)

// System manages blob storage operations and lifecycle coordination.
type System interface {
	// Start registers a startup hook that prepares the container, bucket, or root directory.
	Start(lc *lifecycle.Coordinator) error
	// Upload streams data to a blob at the given key with the specified content type.
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) error
	// Download returns a stream for the blob at the given key. The caller must close the reader.
	// Returns ErrNotFound if the blob does not exist.
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	// Move relocates a blob. Returns ErrExists instead of replacing an existing
	// destination and ErrNotFound if the source does not exist.
	Move(ctx context.Context, from, to string) error
	// Delete removes the blob at the given key. Returns ErrNotFound if the blob does not exist.
	Delete(ctx context.Context, key string) error
	// Exists reports whether a blob exists at the given key.
	Exists(ctx context.Context, key string) (bool, error)
	// SignedURL returns a time-limited read URL for the blob.
	// An empty string means the provider has no remote URL for it.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// New creates the storage system selected by cfg.Provider.
// Signed URLs are cached for a fraction of the configured TTL.
func New(ctx context.Context, cfg *Config, logger *slog.Logger) (System, error) {
	logger = logger.With("system", "storage", "provider", string(cfg.Provider))

	var (
		sys System
		err error
	)

	switch cfg.Provider {
	case ProviderLocal:
		sys, err = newLocal(cfg, logger)
	case ProviderAzure:
		sys, err = newAzure(cfg, logger)
	case ProviderGCS:
		sys, err = newGCS(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return NewURLCache(sys, cfg.URLTTLDuration()), nil
}

// Join builds a blob key from slash-separated segments.
func Join(parts ...string) string {
	return path.Join(parts...)
}

func validateKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if strings.Contains(key, "..") {
		return ErrInvalidKey
	}
	return nil
}
