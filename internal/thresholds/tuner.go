// Package thresholds learns per-modality decision thresholds from reviewer
// feedback. Only errors close to the active threshold move the suggestion;
// the active threshold changes only through ApplyUpdate.
package thresholds

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/sentio/internal/labels"
	"github.com/JaimeStill/sentio/internal/metrics"
)

// Entry is one reviewed prediction. CurrentThreshold is the threshold that
// was active when the entry was recorded.
type Entry struct {
	Timestamp        time.Time    `json:"timestamp"`
	Score            float64      `json:"score"`
	AIPrediction     labels.Label `json:"ai_prediction"`
	HumanAgrees      bool         `json:"human_agrees"`
	CurrentThreshold float64      `json:"current_threshold"`
}

// Setting is the persisted threshold state of one modality.
type Setting struct {
	Modality           labels.Modality `json:"modality"`
	CurrentThreshold   float64         `json:"current_threshold"`
	SuggestedThreshold *float64        `json:"suggested_threshold"`
	LastUpdated        *time.Time      `json:"last_updated"`
}

// Repository persists the feedback log and the threshold settings.
type Repository interface {
	RecordFeedback(ctx context.Context, modality labels.Modality, e Entry) error
	Feedback(ctx context.Context, modality labels.Modality) ([]Entry, error)
	// ThresholdConfig returns nil when no setting has been stored yet.
	ThresholdConfig(ctx context.Context, modality labels.Modality) (*Setting, error)
	UpdateThresholdConfig(ctx context.Context, s Setting) error
}

// Suggestion pairs the active threshold with the tuner's proposal.
type Suggestion struct {
	Modality  labels.Modality `json:"modality"`
	Current   float64         `json:"current_threshold"`
	Suggested *float64        `json:"suggested_threshold"`
	Samples   int             `json:"sample_count"`
}

// Statistics summarizes the feedback log of one modality.
type Statistics struct {
	TotalSamples       int      `json:"total_samples"`
	Correct            int      `json:"correct"`
	Incorrect          int      `json:"incorrect"`
	Accuracy           float64  `json:"accuracy"`
	BoundaryErrors     int      `json:"boundary_errors"`
	CurrentThreshold   float64  `json:"current_threshold"`
	SuggestedThreshold *float64 `json:"suggested_threshold"`
}

type state struct {
	current     float64
	suggested   *float64
	lastUpdated *time.Time
	feedback    []Entry
}

// Tuner holds the threshold state of every modality.
type Tuner struct {
	repo    Repository
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	states map[labels.Modality]*state
}

// New loads the feedback log and stored setting of each modality. A modality
// without a stored setting starts from the configured threshold.
func New(ctx context.Context, repo Repository, cfg Config, logger *slog.Logger, m *metrics.Metrics) (*Tuner, error) {
	t := &Tuner{
		repo:    repo,
		cfg:     cfg,
		logger:  logger.With("system", "thresholds"),
		metrics: m,
		states:  make(map[labels.Modality]*state, len(labels.Modalities)),
	}

	loaded := make([]*state, len(labels.Modalities))
	g, gctx := errgroup.WithContext(ctx)
	for i, mod := range labels.Modalities {
		g.Go(func() error {
			s, err := t.load(gctx, mod)
			if err != nil {
				return err
			}
			loaded[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, mod := range labels.Modalities {
		s := loaded[i]
		t.states[mod] = s
		t.recompute(s)
		t.metrics.SetThreshold(string(mod), s.current, s.suggested)
		t.logger.Info(
			"threshold state loaded",
			"modality", mod,
			"current", s.current,
			"feedback", len(s.feedback),
		)
	}

	return t, nil
}

func (t *Tuner) load(ctx context.Context, mod labels.Modality) (*state, error) {
	feedback, err := t.repo.Feedback(ctx, mod)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s feedback: %w", ErrPersistence, mod, err)
	}

	setting, err := t.repo.ThresholdConfig(ctx, mod)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s setting: %w", ErrPersistence, mod, err)
	}

	s := &state{
		current:  t.cfg.Threshold(mod),
		feedback: feedback,
	}
	if setting != nil {
		s.current = setting.CurrentThreshold
		s.lastUpdated = setting.LastUpdated
	}
	return s, nil
}

// ValidateFeedback checks a feedback triple without side effects. Modality
// and prediction must match exactly; no case folding is applied.
func ValidateFeedback(modality string, score float64, prediction string) error {
	mod := labels.Modality(modality)
	if !mod.Valid() {
		return &ValidationError{
			Field:   "modality",
			Message: fmt.Sprintf("invalid modality %q, must be vision or audio", modality),
		}
	}
	if math.IsNaN(score) || score < 0 || score > 1 {
		return &ValidationError{
			Field:   "score",
			Message: fmt.Sprintf("score %v out of range, must be between 0 and 1", score),
		}
	}
	if !mod.Accepts(labels.Label(prediction)) {
		return &ValidationError{
			Field:   "ai_prediction",
			Message: fmt.Sprintf("invalid prediction %q for %s, expected one of %v", prediction, mod, mod.Labels()),
		}
	}
	return nil
}

// RecordFeedback appends a reviewed prediction and recomputes the suggestion.
// It reports false, leaving state unchanged, when tuning is disabled, the
// input is invalid, or the entry cannot be stored. It never returns an error.
func (t *Tuner) RecordFeedback(ctx context.Context, modality labels.Modality, score float64, prediction labels.Label, agrees bool) bool {
	if !t.cfg.IsEnabled() {
		t.logger.Debug("feedback ignored, tuning disabled", "modality", modality)
		t.metrics.Feedback(string(modality), "disabled")
		return false
	}

	if err := ValidateFeedback(string(modality), score, string(prediction)); err != nil {
		t.logger.Warn("feedback validation failed", "error", err)
		t.metrics.Feedback(string(modality), "invalid")
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.states[modality]
	entry := Entry{
		Timestamp:        time.Now().UTC(),
		Score:            score,
		AIPrediction:     prediction,
		HumanAgrees:      agrees,
		CurrentThreshold: s.current,
	}

	if err := t.repo.RecordFeedback(ctx, modality, entry); err != nil {
		t.logger.Error("feedback not recorded", "modality", modality, "error", err)
		t.metrics.Feedback(string(modality), "error")
		return false
	}

	s.feedback = append(s.feedback, entry)
	t.recompute(s)

	if err := t.repo.UpdateThresholdConfig(ctx, s.setting(modality)); err != nil {
		t.logger.Warn("suggested threshold not persisted", "modality", modality, "error", err)
	}

	t.metrics.Feedback(string(modality), "recorded")
	t.metrics.SetThreshold(string(modality), s.current, s.suggested)
	return true
}

// recompute sets the suggestion from the most recent window of feedback.
// Callers hold t.mu or own s exclusively.
func (t *Tuner) recompute(s *state) {
	if len(s.feedback) < t.cfg.MinSamples {
		s.suggested = nil
		return
	}

	recent := s.feedback
	if len(recent) > t.cfg.Window {
		recent = recent[len(recent)-t.cfg.Window:]
	}

	low := s.current - t.cfg.BoundaryWidth
	high := s.current + t.cfg.BoundaryWidth

	var errs []Entry
	for _, e := range recent {
		if !e.HumanAgrees && e.Score >= low && e.Score <= high {
			errs = append(errs, e)
		}
	}

	if len(errs) < t.cfg.MinBoundaryErrors {
		current := s.current
		s.suggested = &current
		return
	}

	var adjustment float64
	for _, e := range errs {
		if e.AIPrediction.Low() {
			adjustment += (e.Score - s.current) * t.cfg.LearningRate
		} else {
			adjustment -= (s.current - e.Score) * t.cfg.LearningRate
		}
	}

	suggested := math.Max(t.cfg.MinThreshold, math.Min(t.cfg.MaxThreshold, s.current+adjustment))
	suggested = math.Round(suggested*1000) / 1000
	now := time.Now().UTC()

	s.suggested = &suggested
	s.lastUpdated = &now
}

// Suggested returns the active threshold, the current suggestion, and the
// number of feedback entries behind it.
func (t *Tuner) Suggested(modality labels.Modality) (Suggestion, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.states[modality]
	if !ok {
		return Suggestion{}, fmt.Errorf("%w: %s", ErrUnknownModality, modality)
	}

	return Suggestion{
		Modality:  modality,
		Current:   s.current,
		Suggested: copyFloat(s.suggested),
		Samples:   len(s.feedback),
	}, nil
}

// Current returns the active threshold of modality.
func (t *Tuner) Current(modality labels.Modality) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.states[modality]; ok {
		return s.current
	}
	return t.cfg.Threshold(modality)
}

// ApplyUpdate makes the suggestion the active threshold. It reports false
// when there is no suggestion or it differs from the active threshold by
// less than 0.01. The setting is stored before state changes.
func (t *Tuner) ApplyUpdate(ctx context.Context, modality labels.Modality) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.states[modality]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownModality, modality)
	}

	if s.suggested == nil || math.Abs(*s.suggested-s.current) < 0.01 {
		return false, nil
	}

	next := *s.suggested
	now := time.Now().UTC()
	setting := Setting{
		Modality:           modality,
		CurrentThreshold:   next,
		SuggestedThreshold: &next,
		LastUpdated:        &now,
	}

	if err := t.repo.UpdateThresholdConfig(ctx, setting); err != nil {
		return false, fmt.Errorf("%w: apply %s threshold: %w", ErrPersistence, modality, err)
	}

	previous := s.current
	s.current = next
	s.lastUpdated = &now

	t.metrics.Applied(string(modality))
	t.metrics.SetThreshold(string(modality), s.current, s.suggested)
	t.logger.Info("threshold applied", "modality", modality, "previous", previous, "current", next)
	return true, nil
}

// Statistics counts agreement over the whole log. Boundary errors here are
// disagreements strictly within the boundary width of the active threshold.
func (t *Tuner) Statistics(modality labels.Modality) (Statistics, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.states[modality]
	if !ok {
		return Statistics{}, fmt.Errorf("%w: %s", ErrUnknownModality, modality)
	}
	return t.statistics(s), nil
}

func (t *Tuner) statistics(s *state) Statistics {
	stats := Statistics{
		TotalSamples:       len(s.feedback),
		CurrentThreshold:   s.current,
		SuggestedThreshold: copyFloat(s.suggested),
	}

	for _, e := range s.feedback {
		if e.HumanAgrees {
			stats.Correct++
			continue
		}
		if math.Abs(e.Score-s.current) < t.cfg.BoundaryWidth {
			stats.BoundaryErrors++
		}
	}

	stats.Incorrect = stats.TotalSamples - stats.Correct
	if stats.TotalSamples > 0 {
		stats.Accuracy = float64(stats.Correct) / float64(stats.TotalSamples)
	}
	return stats
}

func (s *state) setting(modality labels.Modality) Setting {
	return Setting{
		Modality:           modality,
		CurrentThreshold:   s.current,
		SuggestedThreshold: copyFloat(s.suggested),
		LastUpdated:        s.lastUpdated,
	}
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
