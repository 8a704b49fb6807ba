package filesystem_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/sentio/internal/features"
	"github.com/JaimeStill/sentio/internal/labels"
	"github.com/JaimeStill/sentio/internal/reference"
	"github.com/JaimeStill/sentio/internal/staging"
	"github.com/JaimeStill/sentio/internal/store/filesystem"
	"github.com/JaimeStill/sentio/internal/thresholds"
	"github.com/JaimeStill/sentio/pkg/repository"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T, root string, cfg filesystem.Config) *filesystem.Store {
	t.Helper()
	cfg.DataRoot = root
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("finalize config: %v", err)
	}
	s, err := filesystem.New(&cfg, discard())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func record(staged string) staging.Record {
	return staging.Record{
		ID:               uuid.New(),
		Timestamp:        time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		OriginalFile:     "cow.jpg",
		OriginalPath:     "/incoming/cow.jpg",
		StagedFile:       staged,
		StorageKey:       "staging/" + staged,
		Modality:         labels.Vision,
		AIClassification: labels.Healthy,
		Confidence:       0.8731,
		Features:         features.MustFromValues(map[string]any{"brightness": 142.5, "texture": map[string]any{"contrast": 0.3}}),
	}
}

func TestStagingLog(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := newStore(t, root, filesystem.Config{})

	if got, err := s.AllRecords(ctx); err != nil || len(got) != 0 {
		t.Fatalf("empty log: got %v, %v", got, err)
	}

	a, b := record("a.jpg"), record("b.jpg")
	for _, r := range []staging.Record{a, b} {
		if err := s.InsertRecord(ctx, r); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	found, err := s.FindPending(ctx, "a.jpg")
	if err != nil || found == nil {
		t.Fatalf("find pending: %v, %v", found, err)
	}
	if found.ID != a.ID || found.Confidence != a.Confidence || !found.Timestamp.Equal(a.Timestamp) {
		t.Errorf("round trip: got %+v", found)
	}
	if string(found.Features.Raw()) != string(a.Features.Raw()) {
		t.Errorf("features: got %s, want %s", found.Features.Raw(), a.Features.Raw())
	}

	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	updated, err := s.FinalizeRecord(ctx, staging.Validation{
		StagedFile:          "a.jpg",
		HumanAgrees:         false,
		FinalClassification: labels.Sick,
		ValidatedAt:         at,
	})
	if err != nil || updated == nil {
		t.Fatalf("finalize: %v, %v", updated, err)
	}
	if !updated.HumanValidated || *updated.HumanAgrees || *updated.FinalClassification != labels.Sick || !updated.ValidatedAt.Equal(at) {
		t.Errorf("finalized record: %+v", updated)
	}

	again, err := s.FinalizeRecord(ctx, staging.Validation{StagedFile: "a.jpg", HumanAgrees: true, FinalClassification: labels.Healthy, ValidatedAt: at})
	if err != nil || again != nil {
		t.Errorf("second finalize: got %v, %v", again, err)
	}

	pending, err := s.PendingRecords(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].StagedFile != "b.jpg" {
		t.Errorf("pending: got %+v", pending)
	}

	all, _ := s.AllRecords(ctx)
	if len(all) != 2 || all[0].StagedFile != "a.jpg" {
		t.Errorf("order: got %+v", all)
	}

	data, err := os.ReadFile(filepath.Join(root, "staging_log.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("csv lines: got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "id,timestamp,original_file") {
		t.Errorf("header: %s", lines[0])
	}
	if !strings.Contains(lines[1], ",True,False,SICK,") {
		t.Errorf("finalized row: %s", lines[1])
	}
	if !strings.HasSuffix(lines[2], ",False,,,") {
		t.Errorf("pending row: %s", lines[2])
	}
}

func TestStagingLogZonelessTimestamps(t *testing.T) {
	root := t.TempDir()
	legacy := "id,timestamp,original_file,original_path,staged_file,storage_key,modality,ai_classification,confidence,features,human_validated,human_agrees,final_classification,validated_at\n" +
		",2025-11-02T08:15:00.123456,cow.jpg,/in/cow.jpg,x.jpg,staging/x.jpg,vision,HEALTHY,0.9,{},False,,,\n"
	if err := os.WriteFile(filepath.Join(root, "staging_log.csv"), []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	s := newStore(t, root, filesystem.Config{})
	r, err := s.FindPending(context.Background(), "x.jpg")
	if err != nil || r == nil {
		t.Fatalf("find: %v, %v", r, err)
	}
	if r.Timestamp.Year() != 2025 || r.Timestamp.Nanosecond() != 123456000 {
		t.Errorf("timestamp: got %v", r.Timestamp)
	}
	if r.ID != uuid.Nil {
		t.Errorf("id: got %v", r.ID)
	}
}

func TestConcurrentFinalizeAcrossStores(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	first := newStore(t, root, filesystem.Config{})
	if err := first.InsertRecord(ctx, record("race.jpg")); err != nil {
		t.Fatal(err)
	}

	stores := []*filesystem.Store{first, newStore(t, root, filesystem.Config{})}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := range 8 {
		s := stores[i%2]
		wg.Go(func() {
			r, err := s.FinalizeRecord(ctx, staging.Validation{
				StagedFile:          "race.jpg",
				HumanAgrees:         true,
				FinalClassification: labels.Healthy,
				ValidatedAt:         time.Now(),
			})
			if err != nil {
				t.Errorf("finalize: %v", err)
				return
			}
			if r != nil {
				wins.Add(1)
			}
		})
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Errorf("winners: got %d, want 1", got)
	}
}

func TestReferenceSamples(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := newStore(t, root, filesystem.Config{})

	sample := reference.Sample{
		File:     "cow.jpg",
		Added:    time.Now().UTC(),
		Class:    labels.ClassHealthy,
		Features: reference.Vector{"brightness": 140},
	}

	added, err := s.AddReferenceSample(ctx, sample)
	if err != nil || !added {
		t.Fatalf("add: %v, %v", added, err)
	}
	added, err = s.AddReferenceSample(ctx, sample)
	if err != nil || added {
		t.Errorf("duplicate add: %v, %v", added, err)
	}

	sample.Class = labels.ClassSick
	if added, _ := s.AddReferenceSample(ctx, sample); !added {
		t.Error("same file in the other class should be added")
	}

	reopened := newStore(t, root, filesystem.Config{})
	healthy, err := reopened.ReferenceSamples(ctx, labels.ClassHealthy)
	if err != nil {
		t.Fatal(err)
	}
	if len(healthy) != 1 || healthy[0].Features["brightness"] != 140 || healthy[0].Class != labels.ClassHealthy {
		t.Errorf("healthy: got %+v", healthy)
	}
	sick, _ := reopened.ReferenceSamples(ctx, labels.ClassSick)
	if len(sick) != 1 {
		t.Errorf("sick: got %+v", sick)
	}
}

func TestThresholdHistory(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := newStore(t, root, filesystem.Config{})

	if got, err := s.ThresholdConfig(ctx, labels.Vision); err != nil || got != nil {
		t.Fatalf("empty config: %v, %v", got, err)
	}

	for i := range 3 {
		e := thresholds.Entry{
			Timestamp:        time.Now().UTC(),
			Score:            0.4 + float64(i)*0.1,
			AIPrediction:     labels.Healthy,
			HumanAgrees:      i%2 == 0,
			CurrentThreshold: 0.5,
		}
		if err := s.RecordFeedback(ctx, labels.Vision, e); err != nil {
			t.Fatal(err)
		}
	}

	suggested := 0.55
	if err := s.UpdateThresholdConfig(ctx, thresholds.Setting{
		Modality:           labels.Vision,
		CurrentThreshold:   0.5,
		SuggestedThreshold: &suggested,
	}); err != nil {
		t.Fatal(err)
	}

	reopened := newStore(t, root, filesystem.Config{})
	entries, err := reopened.Feedback(ctx, labels.Vision)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 || entries[1].HumanAgrees || entries[0].Score != 0.4 {
		t.Errorf("entries: got %+v", entries)
	}

	cfg, err := reopened.ThresholdConfig(ctx, labels.Vision)
	if err != nil || cfg == nil {
		t.Fatalf("config: %v, %v", cfg, err)
	}
	if cfg.CurrentThreshold != 0.5 || cfg.SuggestedThreshold == nil || *cfg.SuggestedThreshold != 0.55 {
		t.Errorf("config: got %+v", cfg)
	}

	if audio, _ := reopened.Feedback(ctx, labels.Audio); len(audio) != 0 {
		t.Errorf("audio feedback: got %+v", audio)
	}
}

func TestMalformedThresholdHistory(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"null document", "null"},
		{"null modality entry", `{"vision": null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			root := t.TempDir()
			if err := os.WriteFile(filepath.Join(root, "threshold_history.json"), []byte(tt.payload), 0o644); err != nil {
				t.Fatal(err)
			}
			s := newStore(t, root, filesystem.Config{})

			if entries, err := s.Feedback(ctx, labels.Vision); err != nil || len(entries) != 0 {
				t.Fatalf("feedback: got %+v, %v", entries, err)
			}
			if cfg, err := s.ThresholdConfig(ctx, labels.Vision); err != nil || cfg != nil {
				t.Fatalf("config: got %+v, %v", cfg, err)
			}

			e := thresholds.Entry{
				Timestamp:        time.Now().UTC(),
				Score:            0.7,
				AIPrediction:     labels.Healthy,
				HumanAgrees:      true,
				CurrentThreshold: 0.5,
			}
			if err := s.RecordFeedback(ctx, labels.Vision, e); err != nil {
				t.Fatalf("record feedback: %v", err)
			}
			if err := s.UpdateThresholdConfig(ctx, thresholds.Setting{Modality: labels.Vision, CurrentThreshold: 0.6}); err != nil {
				t.Fatalf("update config: %v", err)
			}

			entries, err := s.Feedback(ctx, labels.Vision)
			if err != nil || len(entries) != 1 || entries[0].Score != 0.7 {
				t.Errorf("feedback after write: got %+v, %v", entries, err)
			}
			cfg, err := s.ThresholdConfig(ctx, labels.Vision)
			if err != nil || cfg == nil || cfg.CurrentThreshold != 0.6 {
				t.Errorf("config after write: got %+v, %v", cfg, err)
			}
		})
	}
}

func TestHeldLockIsRetryable(t *testing.T) {
	root := t.TempDir()
	s := newStore(t, root, filesystem.Config{LockTimeout: "60ms", StaleLock: "1m"})

	if err := os.WriteFile(filepath.Join(root, ".sentio.lock"), []byte("1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := s.InsertRecord(context.Background(), record("held.jpg"))
	if !errors.Is(err, filesystem.ErrBusy) {
		t.Fatalf("got %v, want ErrBusy", err)
	}
	if !repository.IsRetryable(err) {
		t.Error("ErrBusy should be retryable")
	}
}

func TestStaleLockIsRemoved(t *testing.T) {
	root := t.TempDir()
	s := newStore(t, root, filesystem.Config{LockTimeout: "1s", StaleLock: "2s"})

	lock := filepath.Join(root, ".sentio.lock")
	if err := os.WriteFile(lock, []byte("1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(lock, old, old); err != nil {
		t.Fatal(err)
	}

	if err := s.InsertRecord(context.Background(), record("stale.jpg")); err != nil {
		t.Fatalf("insert after stale lock: %v", err)
	}
	if _, err := os.Stat(lock); !os.IsNotExist(err) {
		t.Errorf("lock file should be released, stat: %v", err)
	}
}

func TestReleaseKeepsTakenOverLock(t *testing.T) {
	root := t.TempDir()
	s := newStore(t, root, filesystem.Config{})
	lock := filepath.Join(root, ".sentio.lock")

	release, err := s.AcquireLockFile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(lock, []byte("4242-other\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	release()

	data, err := os.ReadFile(lock)
	if err != nil {
		t.Fatalf("lock held by another owner was removed: %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != "4242-other" {
		t.Errorf("lock token: got %q", got)
	}
}

func TestReleaseRemovesOwnLock(t *testing.T) {
	root := t.TempDir()
	s := newStore(t, root, filesystem.Config{})
	lock := filepath.Join(root, ".sentio.lock")

	release, err := s.AcquireLockFile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(lock)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), strconv.Itoa(os.Getpid())+"-") {
		t.Errorf("lock token should start with the pid: %q", data)
	}

	release()
	if _, err := os.Stat(lock); !os.IsNotExist(err) {
		t.Errorf("own lock should be removed, stat: %v", err)
	}
}

func TestCanceledContext(t *testing.T) {
	root := t.TempDir()
	s := newStore(t, root, filesystem.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.AllRecords(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  filesystem.Config
	}{
		{"bad lock timeout", filesystem.Config{LockTimeout: "soon"}},
		{"zero lock timeout", filesystem.Config{LockTimeout: "0s"}},
		{"stale below timeout", filesystem.Config{LockTimeout: "5s", StaleLock: "1s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Finalize(nil); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
