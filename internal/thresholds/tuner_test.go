package thresholds_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/JaimeStill/sentio/internal/labels"
	"github.com/JaimeStill/sentio/internal/thresholds"
)

type memRepo struct {
	mu        sync.Mutex
	feedback  map[labels.Modality][]thresholds.Entry
	settings  map[labels.Modality]thresholds.Setting
	failWrite error
	failApply error
}

func newRepo() *memRepo {
	return &memRepo{
		feedback: make(map[labels.Modality][]thresholds.Entry),
		settings: make(map[labels.Modality]thresholds.Setting),
	}
}

func (r *memRepo) RecordFeedback(_ context.Context, m labels.Modality, e thresholds.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrite != nil {
		return r.failWrite
	}
	r.feedback[m] = append(r.feedback[m], e)
	return nil
}

func (r *memRepo) Feedback(_ context.Context, m labels.Modality) ([]thresholds.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]thresholds.Entry(nil), r.feedback[m]...), nil
}

func (r *memRepo) ThresholdConfig(_ context.Context, m labels.Modality) (*thresholds.Setting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settings[m]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *memRepo) UpdateThresholdConfig(_ context.Context, s thresholds.Setting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failApply != nil {
		return r.failApply
	}
	r.settings[s.Modality] = s
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTuner(t *testing.T, repo thresholds.Repository, cfg thresholds.Config) *thresholds.Tuner {
	t.Helper()
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	tuner, err := thresholds.New(context.Background(), repo, cfg, discard(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tuner
}

func record(t *testing.T, tuner *thresholds.Tuner, m labels.Modality, n int, score float64, pred labels.Label, agrees bool) {
	t.Helper()
	for range n {
		if !tuner.RecordFeedback(context.Background(), m, score, pred, agrees) {
			t.Fatalf("feedback (%v, %v, %v) rejected", score, pred, agrees)
		}
	}
}

func TestValidateFeedback(t *testing.T) {
	tests := []struct {
		name       string
		modality   string
		score      float64
		prediction string
		field      string
	}{
		{"valid vision", "vision", 0.4, "HEALTHY", ""},
		{"valid audio", "audio", 1, "DISTRESS", ""},
		{"bad modality", "thermal", 0.4, "HEALTHY", "modality"},
		{"uppercase modality", "VISION", 0.4, "HEALTHY", "modality"},
		{"padded modality", " audio ", 0.4, "NORMAL", "modality"},
		{"lowercase prediction", "vision", 0.4, "healthy", "ai_prediction"},
		{"score below", "vision", -0.01, "SICK", "score"},
		{"score above", "vision", 1.01, "SICK", "score"},
		{"score nan", "audio", math.NaN(), "NORMAL", "score"},
		{"label of other modality", "vision", 0.5, "NORMAL", "ai_prediction"},
		{"unknown label", "audio", 0.5, "UNKNOWN", "ai_prediction"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := thresholds.ValidateFeedback(tt.modality, tt.score, tt.prediction)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			var verr *thresholds.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("got %v, want *ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field: got %q, want %q", verr.Field, tt.field)
			}
			if !errors.Is(err, thresholds.ErrInvalidFeedback) {
				t.Error("should match ErrInvalidFeedback")
			}
		})
	}
}

func TestSuggestionGating(t *testing.T) {
	tuner := newTuner(t, newRepo(), thresholds.Config{})

	record(t, tuner, labels.Vision, 9, 0.55, labels.Healthy, false)
	s, _ := tuner.Suggested(labels.Vision)
	if s.Suggested != nil {
		t.Fatalf("below min samples: got %v, want nil", *s.Suggested)
	}
	if s.Samples != 9 {
		t.Errorf("samples: got %d", s.Samples)
	}

	other := newTuner(t, newRepo(), thresholds.Config{})
	record(t, other, labels.Vision, 8, 0.55, labels.Healthy, true)
	record(t, other, labels.Vision, 2, 0.55, labels.Healthy, false)
	s, _ = other.Suggested(labels.Vision)
	if s.Suggested == nil || *s.Suggested != s.Current {
		t.Fatalf("few boundary errors: got %v, want current %v", s.Suggested, s.Current)
	}
}

func TestSuggestionRaisedByLenientErrors(t *testing.T) {
	tuner := newTuner(t, newRepo(), thresholds.Config{})
	record(t, tuner, labels.Vision, 10, 0.55, labels.Healthy, false)

	s, _ := tuner.Suggested(labels.Vision)
	if s.Suggested == nil || *s.Suggested <= 0.5 {
		t.Fatalf("got %v, want > 0.5", s.Suggested)
	}
	if *s.Suggested != 0.55 {
		t.Errorf("got %v, want 0.55", *s.Suggested)
	}
	if s.Current != 0.5 {
		t.Errorf("recording feedback changed current threshold to %v", s.Current)
	}
}

func TestSuggestionLoweredByStrictErrors(t *testing.T) {
	tuner := newTuner(t, newRepo(), thresholds.Config{})
	record(t, tuner, labels.Audio, 10, 0.4, labels.Distress, false)

	s, _ := tuner.Suggested(labels.Audio)
	if s.Suggested == nil || *s.Suggested != 0.4 {
		t.Fatalf("got %v, want 0.4", s.Suggested)
	}
}

func TestErrorsOutsideBoundaryIgnored(t *testing.T) {
	tuner := newTuner(t, newRepo(), thresholds.Config{})
	record(t, tuner, labels.Vision, 10, 0.9, labels.Healthy, false)
	record(t, tuner, labels.Vision, 10, 0.1, labels.Sick, false)

	s, _ := tuner.Suggested(labels.Vision)
	if s.Suggested == nil || *s.Suggested != 0.5 {
		t.Fatalf("got %v, want 0.5", s.Suggested)
	}
}

func TestSuggestionBounds(t *testing.T) {
	saturated := newTuner(t, newRepo(), thresholds.Config{})
	record(t, saturated, labels.Vision, 50, 0.64, labels.Healthy, false)
	if s, _ := saturated.Suggested(labels.Vision); *s.Suggested != 0.7 {
		t.Errorf("upper clamp: got %v, want 0.7", *s.Suggested)
	}

	floor := newTuner(t, newRepo(), thresholds.Config{})
	record(t, floor, labels.Vision, 50, 0.36, labels.Sick, false)
	if s, _ := floor.Suggested(labels.Vision); *s.Suggested != 0.3 {
		t.Errorf("lower clamp: got %v, want 0.3", *s.Suggested)
	}

	rng := rand.New(rand.NewPCG(7, 11))
	for run := range 20 {
		tuner := newTuner(t, newRepo(), thresholds.Config{})
		for range 60 {
			pred := labels.Healthy
			if rng.IntN(2) == 0 {
				pred = labels.Sick
			}
			tuner.RecordFeedback(context.Background(), labels.Vision, rng.Float64(), pred, rng.IntN(3) == 0)

			s, _ := tuner.Suggested(labels.Vision)
			if s.Suggested != nil && (*s.Suggested < 0.3 || *s.Suggested > 0.7) {
				t.Fatalf("run %d: suggestion %v out of bounds", run, *s.Suggested)
			}
		}
	}
}

func TestEntriesKeepThresholdInEffect(t *testing.T) {
	repo := newRepo()
	tuner := newTuner(t, repo, thresholds.Config{})
	ctx := context.Background()

	record(t, tuner, labels.Vision, 10, 0.55, labels.Healthy, false)
	applied, err := tuner.ApplyUpdate(ctx, labels.Vision)
	if err != nil || !applied {
		t.Fatalf("apply: %v %v", applied, err)
	}
	if got := tuner.Current(labels.Vision); got != 0.55 {
		t.Fatalf("current: got %v, want 0.55", got)
	}

	record(t, tuner, labels.Vision, 1, 0.6, labels.Healthy, true)

	log := repo.feedback[labels.Vision]
	if log[0].CurrentThreshold != 0.5 {
		t.Errorf("first entry threshold: got %v, want 0.5", log[0].CurrentThreshold)
	}
	if last := log[len(log)-1]; last.CurrentThreshold != 0.55 {
		t.Errorf("last entry threshold: got %v, want 0.55", last.CurrentThreshold)
	}
	if setting := repo.settings[labels.Vision]; setting.CurrentThreshold != 0.55 {
		t.Errorf("stored setting: got %v", setting.CurrentThreshold)
	}
}

func TestApplyUpdateNoop(t *testing.T) {
	ctx := context.Background()

	empty := newTuner(t, newRepo(), thresholds.Config{})
	if applied, err := empty.ApplyUpdate(ctx, labels.Vision); applied || err != nil {
		t.Errorf("no suggestion: got %v %v", applied, err)
	}

	unchanged := newTuner(t, newRepo(), thresholds.Config{})
	record(t, unchanged, labels.Vision, 10, 0.55, labels.Healthy, true)
	if applied, err := unchanged.ApplyUpdate(ctx, labels.Vision); applied || err != nil {
		t.Errorf("suggestion equals current: got %v %v", applied, err)
	}

	// three errors at 0.52 move the suggestion by 0.006
	small := newTuner(t, newRepo(), thresholds.Config{})
	record(t, small, labels.Vision, 7, 0.5, labels.Healthy, true)
	record(t, small, labels.Vision, 3, 0.52, labels.Healthy, false)
	if s, _ := small.Suggested(labels.Vision); s.Suggested == nil || *s.Suggested != 0.506 {
		t.Fatalf("suggestion: got %v, want 0.506", s.Suggested)
	}
	if applied, _ := small.ApplyUpdate(ctx, labels.Vision); applied {
		t.Error("difference below 0.01 should not apply")
	}
}

func TestApplyUpdatePersistenceFailure(t *testing.T) {
	repo := newRepo()
	tuner := newTuner(t, repo, thresholds.Config{})
	record(t, tuner, labels.Vision, 10, 0.55, labels.Healthy, false)

	repo.failApply = errors.New("connection reset")
	applied, err := tuner.ApplyUpdate(context.Background(), labels.Vision)
	if applied || !errors.Is(err, thresholds.ErrPersistence) {
		t.Fatalf("got %v %v, want ErrPersistence", applied, err)
	}
	if got := tuner.Current(labels.Vision); got != 0.5 {
		t.Errorf("current changed to %v after failed apply", got)
	}
}

func TestRecordFeedbackRejections(t *testing.T) {
	disabled := false
	ctx := context.Background()

	off := newTuner(t, newRepo(), thresholds.Config{Enabled: &disabled})
	if off.RecordFeedback(ctx, labels.Vision, 0.5, labels.Healthy, true) {
		t.Error("disabled tuner should not record")
	}

	repo := newRepo()
	tuner := newTuner(t, repo, thresholds.Config{})
	if tuner.RecordFeedback(ctx, labels.Vision, 1.5, labels.Healthy, true) {
		t.Error("out of range score should be rejected")
	}
	if tuner.RecordFeedback(ctx, labels.Audio, 0.5, labels.Sick, true) {
		t.Error("vision label for audio should be rejected")
	}
	if tuner.RecordFeedback(ctx, labels.Modality("thermal"), 0.5, labels.Sick, true) {
		t.Error("unknown modality should be rejected")
	}
	if len(repo.feedback) != 0 {
		t.Errorf("rejected feedback was stored: %v", repo.feedback)
	}

	repo.failWrite = errors.New("disk full")
	if tuner.RecordFeedback(ctx, labels.Vision, 0.5, labels.Healthy, true) {
		t.Error("failed write should report false")
	}
	if s, _ := tuner.Suggested(labels.Vision); s.Samples != 0 {
		t.Errorf("failed write mutated state: %d samples", s.Samples)
	}
}

func TestNewLoadsStoredState(t *testing.T) {
	repo := newRepo()
	repo.settings[labels.Audio] = thresholds.Setting{Modality: labels.Audio, CurrentThreshold: 0.6}
	for range 10 {
		repo.feedback[labels.Audio] = append(repo.feedback[labels.Audio], thresholds.Entry{
			Score: 0.6, AIPrediction: labels.Normal, HumanAgrees: true, CurrentThreshold: 0.6,
		})
	}

	tuner := newTuner(t, repo, thresholds.Config{AudioThreshold: 0.45})

	s, err := tuner.Suggested(labels.Audio)
	if err != nil {
		t.Fatal(err)
	}
	if s.Current != 0.6 || s.Samples != 10 {
		t.Errorf("got current %v samples %d", s.Current, s.Samples)
	}
	if s.Suggested == nil || *s.Suggested != 0.6 {
		t.Errorf("suggestion should be recomputed on load, got %v", s.Suggested)
	}
	if v, _ := tuner.Suggested(labels.Vision); v.Current != 0.5 {
		t.Errorf("vision should use configured default, got %v", v.Current)
	}
}

func TestStatistics(t *testing.T) {
	tuner := newTuner(t, newRepo(), thresholds.Config{})
	record(t, tuner, labels.Vision, 3, 0.8, labels.Sick, true)
	record(t, tuner, labels.Vision, 2, 0.6, labels.Healthy, false)
	record(t, tuner, labels.Vision, 1, 0.95, labels.Sick, false)

	stats, err := tuner.Statistics(labels.Vision)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalSamples != 6 || stats.Correct != 3 || stats.Incorrect != 3 {
		t.Errorf("counts: got %+v", stats)
	}
	if stats.Accuracy != 0.5 {
		t.Errorf("accuracy: got %v", stats.Accuracy)
	}
	if stats.BoundaryErrors != 2 {
		t.Errorf("boundary errors: got %d, want 2", stats.BoundaryErrors)
	}

	if _, err := tuner.Statistics(labels.Modality("thermal")); !errors.Is(err, thresholds.ErrUnknownModality) {
		t.Errorf("unknown modality: got %v", err)
	}
}

func TestStatisticsEmpty(t *testing.T) {
	tuner := newTuner(t, newRepo(), thresholds.Config{})
	stats, _ := tuner.Statistics(labels.Audio)
	if stats.TotalSamples != 0 || stats.Accuracy != 0 || stats.SuggestedThreshold != nil {
		t.Errorf("got %+v", stats)
	}
}
