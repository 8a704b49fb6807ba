package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/JaimeStill/sentio/pkg/lifecycle"
)

type local struct {
	root   string
	logger *slog.Logger
}

func newLocal(cfg *Config, logger *slog.Logger) (System, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	return &local{root: root, logger: logger}, nil
}

func (l *local) Start(lc *lifecycle.Coordinator) error {
	l.logger.Info("starting storage system")

	lc.OnStartup(func() {
		if err := os.MkdirAll(l.root, 0o755); err != nil {
			l.logger.Error("storage root initialization failed", "error", err)
			lc.Fail("storage", err)
			return
		}
		l.logger.Info("storage root ready", "root", l.root)
	})

	return nil
}

func (l *local) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	target := l.path(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("upload blob %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return fmt.Errorf("upload blob %s: %w", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, contextReader{ctx: ctx, r: reader}); err != nil {
		tmp.Close()
		return fmt.Errorf("upload blob %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("upload blob %s: %w", key, err)
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("upload blob %s: %w", key, err)
	}
	return nil
}

func (l *local) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	f, err := os.Open(l.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("download blob %s: %w", key, err)
	}
	return f, nil
}

// Move hard-links the destination before removing the source so an existing
// destination is never replaced. Filesystems without link support fall back
// to an exclusive-create copy.
func (l *local) Move(ctx context.Context, from, to string) error {
	if err := validateKey(from); err != nil {
		return err
	}
	if err := validateKey(to); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	src, dst := l.path(from), l.path(to)
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("move blob %s: %w", from, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("move blob %s: %w", from, err)
	}

	err := os.Link(src, dst)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrExist):
		return ErrExists
	default:
		if err := copyExclusive(ctx, src, dst); err != nil {
			return fmt.Errorf("move blob %s to %s: %w", from, to, err)
		}
	}

	if err := os.Remove(src); err != nil {
		l.logger.Warn("move left source behind", "from", from, "to", to, "error", err)
	}
	return nil
}

func (l *local) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	if err := os.Remove(l.path(key)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}

func (l *local) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	_, err := os.Stat(l.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("check blob existence %s: %w", key, err)
	}
	return true, nil
}

func (l *local) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return "", nil
}

func (l *local) path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

func copyExclusive(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrExists
		}
		return err
	}

	if _, err := io.Copy(out, contextReader{ctx: ctx, r: in}); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
