package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/JaimeStill/sentio/pkg/lifecycle"
)

type gcsBucket struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
	name   string
	logger *slog.Logger
}

func newGCS(ctx context.Context, cfg *Config, logger *slog.Logger) (System, error) {
	opts := []option.ClientOption{option.WithScopes(gcs.ScopeReadWrite)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &gcsBucket{
		client: client,
		bucket: client.Bucket(cfg.Bucket),
		name:   cfg.Bucket,
		logger: logger,
	}, nil
}

func (g *gcsBucket) Start(lc *lifecycle.Coordinator) error {
	g.logger.Info("starting storage system")

	lc.OnStartup(func() {
		if _, err := g.bucket.Attrs(lc.Context()); err != nil {
			g.logger.Error("storage bucket unavailable", "bucket", g.name, "error", err)
			lc.Fail("storage", err)
			return
		}
		g.logger.Info("storage bucket ready", "bucket", g.name)
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		if err := g.client.Close(); err != nil {
			g.logger.Error("storage client close failed", "error", err)
		}
	})

	return nil
}

func (g *gcsBucket) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	w := g.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, reader); err != nil {
		_ = w.Close()
		return fmt.Errorf("upload blob %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("upload blob %s: %w", key, err)
	}
	return nil
}

func (g *gcsBucket) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	r, err := g.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("download blob %s: %w", key, err)
	}
	return r, nil
}

// Move issues a server-side copy guarded by a does-not-exist precondition,
// then deletes the source.
func (g *gcsBucket) Move(ctx context.Context, from, to string) error {
	if err := validateKey(from); err != nil {
		return err
	}
	if err := validateKey(to); err != nil {
		return err
	}

	src := g.bucket.Object(from)
	dst := g.bucket.Object(to).If(gcs.Conditions{DoesNotExist: true})

	if _, err := dst.CopierFrom(src).Run(ctx); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return ErrNotFound
		}
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return ErrExists
		}
		return fmt.Errorf("move blob %s to %s: %w", from, to, err)
	}

	if err := src.Delete(ctx); err != nil {
		g.logger.Warn("move left source behind", "from", from, "to", to, "error", err)
	}
	return nil
}

func (g *gcsBucket) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	if err := g.bucket.Object(key).Delete(ctx); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}

func (g *gcsBucket) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	if _, err := g.bucket.Object(key).Attrs(ctx); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("check blob existence %s: %w", key, err)
	}
	return true, nil
}

func (g *gcsBucket) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	url, err := g.bucket.SignedURL(key, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("sign blob url %s: %w", key, err)
	}
	return url, nil
}
