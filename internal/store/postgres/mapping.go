package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/JaimeStill/sentio/internal/features"
	"github.com/JaimeStill/sentio/internal/labels"
	"github.com/JaimeStill/sentio/internal/reference"
	"github.com/JaimeStill/sentio/internal/staging"
	"github.com/JaimeStill/sentio/internal/thresholds"
	"github.com/JaimeStill/sentio/pkg/repository"
)

const recordColumns = `id, staged_at, original_file, original_path, staged_file, storage_key,
	modality, ai_classification, confidence, features,
	human_validated, human_agrees, final_classification, validated_at`

func scanRecord(s repository.Scanner) (staging.Record, error) {
	var (
		r        staging.Record
		modality string
		ai       string
		raw      []byte
		agrees   sql.NullBool
		final    sql.NullString
		at       sql.NullTime
	)

	err := s.Scan(
		&r.ID,
		&r.Timestamp,
		&r.OriginalFile,
		&r.OriginalPath,
		&r.StagedFile,
		&r.StorageKey,
		&modality,
		&ai,
		&r.Confidence,
		&raw,
		&r.HumanValidated,
		&agrees,
		&final,
		&at,
	)
	if err != nil {
		return r, err
	}

	r.Modality = labels.Modality(modality)
	r.AIClassification = labels.Label(ai)

	fm, err := features.Parse(raw)
	if err != nil {
		return r, fmt.Errorf("record %s features: %w", r.StagedFile, err)
	}
	r.Features = fm

	if agrees.Valid {
		v := agrees.Bool
		r.HumanAgrees = &v
	}
	if final.Valid {
		l := labels.Label(final.String)
		r.FinalClassification = &l
	}
	if at.Valid {
		t := at.Time
		r.ValidatedAt = &t
	}
	return r, nil
}

func scanSample(s repository.Scanner) (reference.Sample, error) {
	var (
		sample reference.Sample
		class  string
		raw    []byte
	)

	if err := s.Scan(&sample.File, &class, &raw, &sample.Added); err != nil {
		return sample, err
	}

	sample.Class = labels.Class(class)
	if err := json.Unmarshal(raw, &sample.Features); err != nil {
		return sample, fmt.Errorf("sample %s features: %w", sample.File, err)
	}
	return sample, nil
}

func scanEntry(s repository.Scanner) (thresholds.Entry, error) {
	var (
		e    thresholds.Entry
		pred string
	)

	err := s.Scan(&e.Timestamp, &e.Score, &pred, &e.HumanAgrees, &e.CurrentThreshold)
	if err != nil {
		return e, err
	}
	e.AIPrediction = labels.Label(pred)
	return e, nil
}

func scanSetting(s repository.Scanner) (thresholds.Setting, error) {
	var (
		setting   thresholds.Setting
		modality  string
		suggested sql.NullFloat64
		updated   sql.NullTime
	)

	if err := s.Scan(&modality, &setting.CurrentThreshold, &suggested, &updated); err != nil {
		return setting, err
	}

	setting.Modality = labels.Modality(modality)
	if suggested.Valid {
		v := suggested.Float64
		setting.SuggestedThreshold = &v
	}
	if updated.Valid {
		t := updated.Time
		setting.LastUpdated = &t
	}
	return setting, nil
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
