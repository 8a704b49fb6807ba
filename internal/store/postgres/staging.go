package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/JaimeStill/sentio/internal/staging"
	"github.com/JaimeStill/sentio/pkg/repository"
)

func (s *Store) InsertRecord(ctx context.Context, r staging.Record) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	q := `
		INSERT INTO staging_records(` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) (struct{}, error) {
		_, err := tx.ExecContext(ctx, q,
			r.ID,
			r.Timestamp,
			r.OriginalFile,
			r.OriginalPath,
			r.StagedFile,
			r.StorageKey,
			string(r.Modality),
			string(r.AIClassification),
			r.Confidence,
			string(r.Features.Raw()),
			r.HumanValidated,
			nullable(r.HumanAgrees),
			finalArg(r),
			nullable(r.ValidatedAt),
		)
		return struct{}{}, err
	})
	return wrap("insert staging record", repository.MapError(err, staging.ErrNotFound, staging.ErrDuplicate))
}

func (s *Store) PendingRecords(ctx context.Context) ([]staging.Record, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	q := `SELECT ` + recordColumns + ` FROM staging_records WHERE NOT human_validated ORDER BY staged_at, id`
	records, err := repository.QueryMany(ctx, s.db, q, nil, scanRecord)
	if err != nil {
		return nil, wrap("query pending records", err)
	}
	return records, nil
}

func (s *Store) FindPending(ctx context.Context, stagedFile string) (*staging.Record, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	q := `SELECT ` + recordColumns + ` FROM staging_records WHERE staged_file = $1 AND NOT human_validated`
	r, err := repository.QueryOne(ctx, s.db, q, []any{stagedFile}, scanRecord)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrap("find pending record", err)
	}
	return &r, nil
}

// FinalizeRecord is a single conditional update, so exactly one of several
// concurrent callers receives the row.
func (s *Store) FinalizeRecord(ctx context.Context, v staging.Validation) (*staging.Record, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	q := `
		UPDATE staging_records
		SET human_validated = TRUE, human_agrees = $2, final_classification = $3, validated_at = $4
		WHERE staged_file = $1 AND NOT human_validated
		RETURNING ` + recordColumns

	r, err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) (staging.Record, error) {
		return repository.QueryOne(ctx, tx, q,
			[]any{v.StagedFile, v.HumanAgrees, string(v.FinalClassification), v.ValidatedAt},
			scanRecord,
		)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrap("finalize staging record", err)
	}
	return &r, nil
}

func (s *Store) AllRecords(ctx context.Context) ([]staging.Record, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	q := `SELECT ` + recordColumns + ` FROM staging_records ORDER BY staged_at, id`
	records, err := repository.QueryMany(ctx, s.db, q, nil, scanRecord)
	if err != nil {
		return nil, wrap("query staging records", err)
	}
	return records, nil
}

func finalArg(r staging.Record) any {
	if r.FinalClassification == nil {
		return nil
	}
	return string(*r.FinalClassification)
}
