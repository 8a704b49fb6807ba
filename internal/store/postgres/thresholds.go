package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/JaimeStill/sentio/internal/labels"
	"github.com/JaimeStill/sentio/internal/thresholds"
	"github.com/JaimeStill/sentio/pkg/repository"
)

func (s *Store) RecordFeedback(ctx context.Context, modality labels.Modality, e thresholds.Entry) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threshold_feedback(modality, recorded_at, score, ai_prediction, human_agrees, current_threshold)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(modality), e.Timestamp, e.Score, string(e.AIPrediction), e.HumanAgrees, e.CurrentThreshold,
	)
	return wrap("insert threshold feedback", err)
}

func (s *Store) Feedback(ctx context.Context, modality labels.Modality) ([]thresholds.Entry, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	q := `
		SELECT recorded_at, score, ai_prediction, human_agrees, current_threshold
		FROM threshold_feedback
		WHERE modality = $1
		ORDER BY id`

	entries, err := repository.QueryMany(ctx, s.db, q, []any{string(modality)}, scanEntry)
	if err != nil {
		return nil, wrap("query threshold feedback", err)
	}
	return entries, nil
}

func (s *Store) ThresholdConfig(ctx context.Context, modality labels.Modality) (*thresholds.Setting, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	q := `SELECT modality, current_threshold, suggested_threshold, last_updated FROM threshold_config WHERE modality = $1`
	setting, err := repository.QueryOne(ctx, s.db, q, []any{string(modality)}, scanSetting)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrap("query threshold config", err)
	}
	return &setting, nil
}

func (s *Store) UpdateThresholdConfig(ctx context.Context, setting thresholds.Setting) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	err := repository.ExecExpectOne(ctx, s.db, `
		INSERT INTO threshold_config(modality, current_threshold, suggested_threshold, last_updated)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (modality) DO UPDATE
		SET current_threshold = EXCLUDED.current_threshold,
			suggested_threshold = EXCLUDED.suggested_threshold,
			last_updated = EXCLUDED.last_updated`,
		string(setting.Modality),
		setting.CurrentThreshold,
		nullable(setting.SuggestedThreshold),
		nullable(setting.LastUpdated),
	)
	return wrap("upsert threshold config", err)
}
