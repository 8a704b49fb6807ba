package storage

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
)

// URLCache decorates a System so repeated SignedURL calls for the same key
// reuse a URL while it still has at least half its lifetime left.
// Mutating operations evict the affected keys.
type URLCache struct {
	System
	urls   *cache.Cache
	ttl    time.Duration
	misses atomic.Uint64
}

// NewURLCache wraps sys. ttl is the lifetime requested for signed URLs when
// callers pass a zero ttl. The cache runs without a janitor goroutine;
// expired entries are purged on misses.
func NewURLCache(sys System, ttl time.Duration) *URLCache {
	return &URLCache{
		System: sys,
		urls:   cache.New(ttl/2, 0),
		ttl:    ttl,
	}
}

func (c *URLCache) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = c.ttl
	}

	if v, ok := c.urls.Get(key); ok {
		return v.(string), nil
	}

	c.misses.Add(1)
	c.urls.DeleteExpired()

	url, err := c.System.SignedURL(ctx, key, ttl)
	if err != nil {
		return "", err
	}
	if url != "" {
		c.urls.Set(key, url, ttl/2)
	}
	return url, nil
}

func (c *URLCache) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	c.urls.Delete(key)
	return c.System.Upload(ctx, key, reader, contentType)
}

func (c *URLCache) Move(ctx context.Context, from, to string) error {
	c.urls.Delete(from)
	c.urls.Delete(to)
	return c.System.Move(ctx, from, to)
}

func (c *URLCache) Delete(ctx context.Context, key string) error {
	c.urls.Delete(key)
	return c.System.Delete(ctx, key)
}

// Misses reports how many SignedURL calls reached the wrapped System.
func (c *URLCache) Misses() uint64 {
	return c.misses.Load()
}
