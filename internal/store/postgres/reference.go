package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JaimeStill/sentio/internal/labels"
	"github.com/JaimeStill/sentio/internal/reference"
	"github.com/JaimeStill/sentio/pkg/repository"
)

func (s *Store) ReferenceSamples(ctx context.Context, class labels.Class) ([]reference.Sample, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	q := `SELECT file, class, features, added_at FROM reference_samples WHERE class = $1 ORDER BY id`
	samples, err := repository.QueryMany(ctx, s.db, q, []any{string(class)}, scanSample)
	if err != nil {
		return nil, wrap("query reference samples", err)
	}
	return samples, nil
}

func (s *Store) AddReferenceSample(ctx context.Context, sample reference.Sample) (bool, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	vec, err := json.Marshal(sample.Features)
	if err != nil {
		return false, fmt.Errorf("encode sample features: %w", err)
	}

	n, err := repository.ExecAffected(ctx, s.db, `
		INSERT INTO reference_samples(file, class, features, added_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (file, class) DO NOTHING`,
		sample.File, string(sample.Class), string(vec), sample.Added,
	)
	if err != nil {
		return false, wrap("insert reference sample", err)
	}
	return n == 1, nil
}
