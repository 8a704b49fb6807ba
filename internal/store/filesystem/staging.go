package filesystem

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/sentio/internal/features"
	"github.com/JaimeStill/sentio/internal/labels"
	"github.com/JaimeStill/sentio/internal/staging"
)

var stagingHeader = []string{
	"id",
	"timestamp",
	"original_file",
	"original_path",
	"staged_file",
	"storage_key",
	"modality",
	"ai_classification",
	"confidence",
	"features",
	"human_validated",
	"human_agrees",
	"final_classification",
	"validated_at",
}

func (s *Store) InsertRecord(ctx context.Context, r staging.Record) error {
	return s.withLock(ctx, func() error {
		f, err := os.OpenFile(s.path(stagingLog), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open staging log: %w", err)
		}

		info, err := f.Stat()
		if err != nil {
			f.Close()
			return fmt.Errorf("stat staging log: %w", err)
		}

		w := csv.NewWriter(f)
		if info.Size() == 0 {
			w.Write(stagingHeader)
		}
		w.Write(encodeRecord(r))
		w.Flush()

		if err := w.Error(); err != nil {
			f.Close()
			return fmt.Errorf("append staging log: %w", err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return fmt.Errorf("sync staging log: %w", err)
		}
		return f.Close()
	})
}

func (s *Store) PendingRecords(ctx context.Context) ([]staging.Record, error) {
	all, err := s.AllRecords(ctx)
	if err != nil {
		return nil, err
	}

	pending := make([]staging.Record, 0, len(all))
	for _, r := range all {
		if !r.HumanValidated {
			pending = append(pending, r)
		}
	}
	return pending, nil
}

func (s *Store) FindPending(ctx context.Context, stagedFile string) (*staging.Record, error) {
	all, err := s.AllRecords(ctx)
	if err != nil {
		return nil, err
	}

	for _, r := range all {
		if r.StagedFile == stagedFile && !r.HumanValidated {
			return &r, nil
		}
	}
	return nil, nil
}

// FinalizeRecord rewrites the log with the first unvalidated match updated.
// The read and the rewrite happen under one lock hold.
func (s *Store) FinalizeRecord(ctx context.Context, v staging.Validation) (*staging.Record, error) {
	var updated *staging.Record

	err := s.withLock(ctx, func() error {
		records, err := s.readRecords()
		if err != nil {
			return err
		}

		idx := -1
		for i, r := range records {
			if r.StagedFile == v.StagedFile && !r.HumanValidated {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil
		}

		agrees, final, at := v.HumanAgrees, v.FinalClassification, v.ValidatedAt.UTC()
		r := &records[idx]
		r.HumanValidated = true
		r.HumanAgrees = &agrees
		r.FinalClassification = &final
		r.ValidatedAt = &at

		if err := s.replace(stagingLog, func(w io.Writer) error {
			return writeRecords(w, records)
		}); err != nil {
			return err
		}

		out := *r
		updated = &out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) AllRecords(ctx context.Context) ([]staging.Record, error) {
	var records []staging.Record
	err := s.withLock(ctx, func() error {
		var err error
		records, err = s.readRecords()
		return err
	})
	return records, err
}

func (s *Store) readRecords() ([]staging.Record, error) {
	f, err := s.open(stagingLog)
	if err != nil || f == nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read staging log: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cols := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		cols[name] = i
	}

	records := make([]staging.Record, 0, len(rows)-1)
	for n, row := range rows[1:] {
		r, err := decodeRecord(cols, row)
		if err != nil {
			return nil, fmt.Errorf("staging log row %d: %w", n+2, err)
		}
		records = append(records, r)
	}
	return records, nil
}

func writeRecords(w io.Writer, records []staging.Record) error {
	cw := csv.NewWriter(w)
	cw.Write(stagingHeader)
	for _, r := range records {
		cw.Write(encodeRecord(r))
	}
	cw.Flush()
	return cw.Error()
}

func encodeRecord(r staging.Record) []string {
	row := []string{
		r.ID.String(),
		r.Timestamp.UTC().Format(time.RFC3339Nano),
		r.OriginalFile,
		r.OriginalPath,
		r.StagedFile,
		r.StorageKey,
		string(r.Modality),
		string(r.AIClassification),
		strconv.FormatFloat(r.Confidence, 'f', -1, 64),
		string(r.Features.Raw()),
		pyBool(r.HumanValidated),
		"",
		"",
		"",
	}
	if r.HumanAgrees != nil {
		row[11] = pyBool(*r.HumanAgrees)
	}
	if r.FinalClassification != nil {
		row[12] = string(*r.FinalClassification)
	}
	if r.ValidatedAt != nil {
		row[13] = r.ValidatedAt.UTC().Format(time.RFC3339Nano)
	}
	return row
}

func decodeRecord(cols map[string]int, row []string) (staging.Record, error) {
	get := func(name string) string {
		if i, ok := cols[name]; ok && i < len(row) {
			return row[i]
		}
		return ""
	}

	var r staging.Record
	var err error

	if id := get("id"); id != "" {
		if r.ID, err = uuid.Parse(id); err != nil {
			return r, fmt.Errorf("id: %w", err)
		}
	}
	if r.Timestamp, err = parseTime(get("timestamp")); err != nil {
		return r, fmt.Errorf("timestamp: %w", err)
	}

	r.OriginalFile = get("original_file")
	r.OriginalPath = get("original_path")
	r.StagedFile = get("staged_file")
	r.StorageKey = get("storage_key")
	r.Modality = labels.Modality(get("modality"))
	r.AIClassification = labels.Label(get("ai_classification"))

	if c := get("confidence"); c != "" {
		if r.Confidence, err = strconv.ParseFloat(c, 64); err != nil {
			return r, fmt.Errorf("confidence: %w", err)
		}
	}

	// a corrupt payload should not hide the record from review
	if fm, err := features.Parse([]byte(get("features"))); err == nil {
		r.Features = fm
	}

	r.HumanValidated = get("human_validated") == "True"

	switch get("human_agrees") {
	case "True":
		v := true
		r.HumanAgrees = &v
	case "False":
		v := false
		r.HumanAgrees = &v
	}

	if fc := get("final_classification"); fc != "" {
		l := labels.Label(fc)
		r.FinalClassification = &l
	}

	if va := get("validated_at"); va != "" {
		t, err := parseTime(va)
		if err != nil {
			return r, fmt.Errorf("validated_at: %w", err)
		}
		r.ValidatedAt = &t
	}

	return r, nil
}

// parseTime accepts RFC 3339 and the zone-less ISO form of older logs.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02T15:04:05.999999", s)
	if err != nil {
		return time.Time{}, errors.New("unrecognized time format")
	}
	return t, nil
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
