// Package filesystem is the local Record Store. Staging records live in a
// CSV log; reference samples and threshold state live in JSON documents.
// Every write replaces its file through a temp file and rename, under an
// in-process mutex and a lock file shared with other processes.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/sentio/internal/reference"
	"github.com/JaimeStill/sentio/internal/staging"
	"github.com/JaimeStill/sentio/internal/thresholds"
	"github.com/JaimeStill/sentio/pkg/repository"
)

const (
	stagingLog       = "staging_log.csv"
	referenceFile    = "reference_features.json"
	thresholdFile    = "threshold_history.json"
	lockFile         = ".sentio.lock"
	lockPollInterval = 20 * time.Millisecond
)

// ErrBusy reports that the store lock could not be taken in time.
var ErrBusy = fmt.Errorf("%w: filesystem lock busy", repository.ErrRetryable)

var (
	_ staging.Repository    = (*Store)(nil)
	_ reference.Repository  = (*Store)(nil)
	_ thresholds.Repository = (*Store)(nil)
)

// Store implements the staging, reference, and threshold repositories over
// files in a single directory.
type Store struct {
	root        string
	lockTimeout time.Duration
	staleLock   time.Duration
	logger      *slog.Logger

	sem chan struct{}
}

// New resolves and creates the data root.
func New(cfg *Config, logger *slog.Logger) (*Store, error) {
	root, err := filepath.Abs(cfg.DataRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve data root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create data root: %w", err)
	}

	return &Store{
		root:        root,
		lockTimeout: cfg.LockTimeoutDuration(),
		staleLock:   cfg.StaleLockDuration(),
		logger:      logger.With("system", "filesystem-store"),
		sem:         make(chan struct{}, 1),
	}, nil
}

// Root returns the absolute data directory.
func (s *Store) Root() string {
	return s.root
}

// withLock runs fn while holding both locks. Waiting is bounded by the
// lock timeout and by ctx.
func (s *Store) withLock(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return s.waitErr(ctx)
	}
	defer func() { <-s.sem }()

	release, err := s.lockFile(ctx)
	if err != nil {
		return err
	}
	defer release()

	return fn()
}

// lockFile creates the shared lock file holding a token unique to this
// acquisition. Stale removal and release only delete the file while it
// still carries the token they observed.
func (s *Store) lockFile(ctx context.Context) (func(), error) {
	name := filepath.Join(s.root, lockFile)
	token := fmt.Sprintf("%d-%s", os.Getpid(), uuid.NewString())
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		f, err := os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := fmt.Fprintln(f, token)
			if cerr := f.Close(); werr == nil {
				werr = cerr
			}
			if werr != nil {
				os.Remove(name)
				return nil, fmt.Errorf("write lock file: %w", werr)
			}
			return func() { s.releaseLock(name, token) }, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}

		if s.removeStale(name) {
			continue
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, s.waitErr(ctx)
		}
	}
}

func (s *Store) releaseLock(name, token string) {
	held, err := readLockToken(name)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Warn("lock file already gone at release")
		return
	case err != nil:
		s.logger.Warn("lock file not read at release", "error", err)
		return
	case held != token:
		s.logger.Warn("lock file taken over by another holder, leaving it in place")
		return
	}
	if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("lock file not removed", "error", err)
	}
}

// removeStale deletes the lock file when it is older than the stale limit.
// The token is read before the age check and again just before removal so a
// lock recreated by another waiter in between is left alone.
func (s *Store) removeStale(name string) bool {
	seen, err := readLockToken(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(name)
	if err != nil || time.Since(info.ModTime()) <= s.staleLock {
		return false
	}
	if current, err := readLockToken(name); err != nil || current != seen {
		return false
	}

	s.logger.Warn("removing stale lock file", "age", time.Since(info.ModTime()), "holder", seen)
	if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("stale lock file not removed", "error", err)
		return false
	}
	return true
}

func readLockToken(name string) (string, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *Store) waitErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrBusy
	}
	return ctx.Err()
}

func (s *Store) path(name string) string {
	return filepath.Join(s.root, name)
}

// replace writes a file through a temp file in the same directory so
// readers see either the old or the new content.
func (s *Store) replace(name string, write func(w io.Writer) error) error {
	target := s.path(name)

	tmp, err := os.CreateTemp(s.root, "."+name+".*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

// open returns nil without error when the file does not exist yet.
func (s *Store) open(name string) (*os.File, error) {
	f, err := os.Open(s.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}
