// Package postgres is the remote Record Store. Every call runs under the
// configured query timeout; an expired bound surfaces as a retryable error.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/JaimeStill/sentio/internal/reference"
	"github.com/JaimeStill/sentio/internal/staging"
	"github.com/JaimeStill/sentio/internal/thresholds"
	"github.com/JaimeStill/sentio/pkg/database"
	"github.com/JaimeStill/sentio/pkg/repository"
)

var (
	_ staging.Repository    = (*Store)(nil)
	_ reference.Repository  = (*Store)(nil)
	_ thresholds.Repository = (*Store)(nil)
)

// Store implements the staging, reference, and threshold repositories.
type Store struct {
	db      *sql.DB
	timeout time.Duration
	logger  *slog.Logger
}

func New(db database.System, logger *slog.Logger) *Store {
	return &Store{
		db:      db.Connection(),
		timeout: db.QueryTimeout(),
		logger:  logger.With("system", "postgres-store"),
	}
}

func (s *Store) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return repository.Bounded(ctx, s.timeout)
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if repository.IsRetryable(err) {
		return fmt.Errorf("%s: %w: %w", op, repository.ErrRetryable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
