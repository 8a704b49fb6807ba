package storage_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/JaimeStill/sentio/pkg/storage"
)

func newLocal(t *testing.T) storage.System {
	t.Helper()
	cfg := &storage.Config{Provider: storage.ProviderLocal, Root: t.TempDir()}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	sys, err := storage.New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return sys
}

func readBlob(t *testing.T, sys storage.System, key string) string {
	t.Helper()
	rc, err := sys.Download(context.Background(), key)
	if err != nil {
		t.Fatalf("download %s: %v", key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read %s: %v", key, err)
	}
	return string(data)
}

func TestLocalUploadDownload(t *testing.T) {
	sys := newLocal(t)
	ctx := context.Background()

	if err := sys.Upload(ctx, "staging/cow.jpg", strings.NewReader("pixels"), "image/jpeg"); err != nil {
		t.Fatalf("upload: %v", err)
	}

	if got := readBlob(t, sys, "staging/cow.jpg"); got != "pixels" {
		t.Errorf("content: got %q, want pixels", got)
	}

	ok, err := sys.Exists(ctx, "staging/cow.jpg")
	if err != nil || !ok {
		t.Errorf("exists: got %v, %v", ok, err)
	}
}

func TestLocalDownloadMissing(t *testing.T) {
	sys := newLocal(t)

	_, err := sys.Download(context.Background(), "staging/none.jpg")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestLocalMove(t *testing.T) {
	sys := newLocal(t)
	ctx := context.Background()

	if err := sys.Upload(ctx, "staging/a.jpg", strings.NewReader("a"), "image/jpeg"); err != nil {
		t.Fatal(err)
	}
	if err := sys.Move(ctx, "staging/a.jpg", "verified/healthy/a.jpg"); err != nil {
		t.Fatalf("move: %v", err)
	}

	if ok, _ := sys.Exists(ctx, "staging/a.jpg"); ok {
		t.Error("source should be gone after move")
	}
	if got := readBlob(t, sys, "verified/healthy/a.jpg"); got != "a" {
		t.Errorf("moved content: got %q", got)
	}
}

func TestLocalMoveNeverOverwrites(t *testing.T) {
	sys := newLocal(t)
	ctx := context.Background()

	sys.Upload(ctx, "staging/a.jpg", strings.NewReader("new"), "image/jpeg")
	sys.Upload(ctx, "verified/a.jpg", strings.NewReader("old"), "image/jpeg")

	err := sys.Move(ctx, "staging/a.jpg", "verified/a.jpg")
	if !errors.Is(err, storage.ErrExists) {
		t.Fatalf("got %v, want ErrExists", err)
	}

	if got := readBlob(t, sys, "verified/a.jpg"); got != "old" {
		t.Errorf("destination overwritten: got %q", got)
	}
	if got := readBlob(t, sys, "staging/a.jpg"); got != "new" {
		t.Errorf("source lost: got %q", got)
	}
}

func TestLocalMoveMissingSource(t *testing.T) {
	sys := newLocal(t)

	err := sys.Move(context.Background(), "staging/none.jpg", "verified/none.jpg")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestLocalDelete(t *testing.T) {
	sys := newLocal(t)
	ctx := context.Background()

	sys.Upload(ctx, "staging/a.jpg", strings.NewReader("a"), "image/jpeg")
	if err := sys.Delete(ctx, "staging/a.jpg"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := sys.Delete(ctx, "staging/a.jpg"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}
}

func TestLocalSignedURLEmpty(t *testing.T) {
	sys := newLocal(t)

	url, err := sys.SignedURL(context.Background(), "staging/a.jpg", 0)
	if err != nil {
		t.Fatalf("signed url: %v", err)
	}
	if url != "" {
		t.Errorf("local provider url: got %q, want empty", url)
	}
}

func TestKeyValidation(t *testing.T) {
	sys := newLocal(t)
	ctx := context.Background()

	tests := []struct {
		name string
		key  string
		want error
	}{
		{"empty", "", storage.ErrEmptyKey},
		{"traversal", "../etc/passwd", storage.ErrInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := sys.Upload(ctx, tt.key, strings.NewReader("x"), ""); !errors.Is(err, tt.want) {
				t.Errorf("upload: got %v, want %v", err, tt.want)
			}
			if _, err := sys.Exists(ctx, tt.key); !errors.Is(err, tt.want) {
				t.Errorf("exists: got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{storage.ErrNotFound, http.StatusNotFound},
		{storage.ErrExists, http.StatusConflict},
		{storage.ErrEmptyKey, http.StatusBadRequest},
		{storage.ErrInvalidKey, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := storage.MapHTTPStatus(tt.err); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}
