// Package backend pairs a Record Store with a Blob Store. It is the only
// place that branches on the configured backend.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/JaimeStill/sentio/internal/config"
	"github.com/JaimeStill/sentio/internal/reference"
	"github.com/JaimeStill/sentio/internal/staging"
	"github.com/JaimeStill/sentio/internal/store/filesystem"
	"github.com/JaimeStill/sentio/internal/store/postgres"
	"github.com/JaimeStill/sentio/internal/thresholds"
	"github.com/JaimeStill/sentio/pkg/database"
	"github.com/JaimeStill/sentio/pkg/lifecycle"
	"github.com/JaimeStill/sentio/pkg/storage"
)

// Records is the full Record Store surface.
type Records interface {
	staging.Repository
	reference.Repository
	thresholds.Repository
}

// Backend holds the selected stores. Database is nil for the local backend.
type Backend struct {
	Kind     config.Backend
	Records  Records
	Blobs    storage.System
	Database database.System
}

// New builds the stores selected by cfg.Backend. The local backend creates
// the staging and verified folders under the blob root before returning.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	blobs, err := storage.New(ctx, &cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}

	b := &Backend{Kind: cfg.Backend, Blobs: blobs}

	switch cfg.Backend {
	case config.BackendLocal:
		if err := bootstrap(cfg.Storage.Root, cfg.Paths.Folders()); err != nil {
			return nil, err
		}
		store, err := filesystem.New(&cfg.Local, logger)
		if err != nil {
			return nil, fmt.Errorf("filesystem store init failed: %w", err)
		}
		b.Records = store
	case config.BackendRemote:
		db, err := database.New(&cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("database init failed: %w", err)
		}
		b.Database = db
		b.Records = postgres.New(db, logger)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	logger.Info("backend selected", "backend", cfg.Backend, "storage", cfg.Storage.Provider)
	return b, nil
}

// Start registers the database and blob store with the lifecycle coordinator.
func (b *Backend) Start(lc *lifecycle.Coordinator) error {
	if b.Database != nil {
		if err := b.Database.Start(lc); err != nil {
			return fmt.Errorf("database start failed: %w", err)
		}
	}
	if err := b.Blobs.Start(lc); err != nil {
		return fmt.Errorf("storage start failed: %w", err)
	}
	return nil
}

func bootstrap(root string, folders []string) error {
	for _, folder := range folders {
		dir := filepath.Join(root, filepath.FromSlash(folder))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create folder %s: %w", folder, err)
		}
	}
	return nil
}
