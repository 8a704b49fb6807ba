package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/sentio/internal/labels"
	"github.com/JaimeStill/sentio/internal/metrics"
	"github.com/JaimeStill/sentio/pkg/storage"
)

const maxSuffix = 10000

type pipeline struct {
	repo     Repository
	blobs    storage.System
	refs     ReferenceSink
	feedback FeedbackSink
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New creates the review pipeline. refs and feedback may be nil, in which
// case finalize skips the corresponding step.
func New(
	repo Repository,
	blobs storage.System,
	refs ReferenceSink,
	feedback FeedbackSink,
	cfg Config,
	logger *slog.Logger,
	m *metrics.Metrics,
) System {
	return &pipeline{
		repo:     repo,
		blobs:    blobs,
		refs:     refs,
		feedback: feedback,
		cfg:      cfg,
		logger:   logger.With("system", "staging"),
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *pipeline) Handler() *Handler {
	return NewHandler(p, p.logger)
}

// Stage copies the source file into the staging folder and records it as
// pending. The copy is uploaded before the record is inserted; if the
// insert fails the copy is deleted on a best-effort basis.
func (p *pipeline) Stage(ctx context.Context, cmd StageCommand) (*Record, error) {
	mod, ok := labels.ParseModality(cmd.Modality)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidModality, cmd.Modality)
	}

	label := labels.Normalize(cmd.AIClassification)
	if !mod.Accepts(label) {
		return nil, fmt.Errorf("%w: %q for %s", ErrInvalidLabel, cmd.AIClassification, mod)
	}

	if math.IsNaN(cmd.Confidence) || cmd.Confidence < 0 || cmd.Confidence > 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfidence, cmd.Confidence)
	}

	source, err := filepath.Abs(cmd.FilePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, cmd.FilePath)
	}

	f, err := openRegular(source)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	now := p.now()
	id := uuid.New()
	original := filepath.Base(source)
	staged := stagedName(now, id, original)
	key := storage.Join(p.cfg.StagingFolder, staged)

	if err := p.blobs.Upload(ctx, key, f, contentType(original)); err != nil {
		return nil, fmt.Errorf("%w: copy to staging: %w", ErrPersistence, err)
	}

	rec := Record{
		ID:               id,
		Timestamp:        now,
		OriginalFile:     original,
		OriginalPath:     source,
		StagedFile:       staged,
		StorageKey:       key,
		Modality:         mod,
		AIClassification: label,
		Confidence:       math.Round(cmd.Confidence*10000) / 10000,
		Features:         cmd.Features,
	}

	if err := p.repo.InsertRecord(ctx, rec); err != nil {
		if delErr := p.blobs.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			p.logger.Warn("compensating blob delete failed", "key", key, "error", delErr)
		}
		return nil, fmt.Errorf("%w: insert record: %w", ErrPersistence, err)
	}

	p.metrics.Staged(string(mod))
	p.logger.Info(
		"file staged",
		"staged_file", staged,
		"modality", mod,
		"classification", label,
		"confidence", rec.Confidence,
	)
	return &rec, nil
}

func (p *pipeline) Pending(ctx context.Context) ([]Record, error) {
	records, err := p.repo.PendingRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list pending: %w", ErrPersistence, err)
	}
	return records, nil
}

// Finalize validates the pending record for cmd.StagedFile. Only the record
// update decides success. The blob move, reference sample, and threshold
// feedback that follow are logged on failure and never undo the update.
func (p *pipeline) Finalize(ctx context.Context, cmd FinalizeCommand) (*Finalization, error) {
	pending, err := p.repo.FindPending(ctx, cmd.StagedFile)
	if err != nil {
		return nil, fmt.Errorf("%w: find pending: %w", ErrPersistence, err)
	}
	if pending == nil {
		p.metrics.FinalizeMiss("not_found")
		return nil, fmt.Errorf("%w: %s", ErrNotFound, cmd.StagedFile)
	}

	var correction *labels.Label
	if !cmd.HumanAgrees && cmd.HumanClassification != nil && *cmd.HumanClassification != "" {
		l := labels.Normalize(*cmd.HumanClassification)
		if !pending.Modality.Accepts(l) {
			return nil, fmt.Errorf("%w: %q for %s", ErrInvalidLabel, *cmd.HumanClassification, pending.Modality)
		}
		correction = &l
	}

	final := labels.Final(pending.AIClassification, cmd.HumanAgrees, correction)

	rec, err := p.repo.FinalizeRecord(ctx, Validation{
		StagedFile:          cmd.StagedFile,
		HumanAgrees:         cmd.HumanAgrees,
		FinalClassification: final,
		ValidatedAt:         p.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: finalize record: %w", ErrPersistence, err)
	}
	if rec == nil {
		p.metrics.FinalizeMiss("lost_race")
		return nil, fmt.Errorf("%w: %s", ErrNotFound, cmd.StagedFile)
	}

	p.metrics.Finalized(string(rec.Modality), cmd.HumanAgrees)
	p.logger.Info(
		"record finalized",
		"staged_file", rec.StagedFile,
		"agrees", cmd.HumanAgrees,
		"final", final,
	)

	// side effects run to completion even if the caller goes away
	ctx = context.WithoutCancel(ctx)
	result := &Finalization{Record: rec}

	dest, err := p.moveToVerified(ctx, rec, final)
	if err != nil {
		p.metrics.SideEffectFailed("move")
		p.logger.Error("verified move failed", "staged_file", rec.StagedFile, "error", err)
	} else {
		result.Destination = dest
	}

	result.ReferenceAdded = p.addReference(ctx, rec, final)
	result.FeedbackRecorded = p.recordFeedback(ctx, rec, cmd.HumanAgrees)

	return result, nil
}

// moveToVerified moves the staged copy under the verified folder for
// (modality, final), suffixing the original name with _1, _2, ... until
// the destination is free.
func (p *pipeline) moveToVerified(ctx context.Context, rec *Record, final labels.Label) (string, error) {
	folder := p.cfg.Destination(rec.Modality, final)
	ext := path.Ext(rec.OriginalFile)
	stem := strings.TrimSuffix(rec.OriginalFile, ext)

	for n := 0; n < maxSuffix; n++ {
		name := rec.OriginalFile
		if n > 0 {
			name = fmt.Sprintf("%s_%d%s", stem, n, ext)
		}
		dest := storage.Join(folder, name)

		exists, err := p.blobs.Exists(ctx, dest)
		if err != nil {
			return "", err
		}
		if exists {
			continue
		}

		err = p.blobs.Move(ctx, rec.StorageKey, dest)
		switch {
		case err == nil:
			p.logger.Info("moved to verified", "from", rec.StorageKey, "to", dest)
			return dest, nil
		case errors.Is(err, storage.ErrExists):
			continue
		default:
			return "", err
		}
	}

	return "", fmt.Errorf("no free name for %s in %s", rec.OriginalFile, folder)
}

func (p *pipeline) addReference(ctx context.Context, rec *Record, final labels.Label) bool {
	if p.refs == nil || rec.Modality != labels.Vision {
		return false
	}
	if rec.Features.Empty() {
		p.logger.Warn("no features for reference sample", "file", rec.OriginalFile)
		return false
	}

	added, err := p.refs.AddSample(ctx, rec.Features, final, rec.OriginalFile)
	if err != nil {
		p.metrics.SideEffectFailed("reference")
		p.logger.Warn("reference sample not added", "file", rec.OriginalFile, "error", err)
		return false
	}
	return added
}

func (p *pipeline) recordFeedback(ctx context.Context, rec *Record, agrees bool) bool {
	if p.feedback == nil {
		return false
	}

	score, ok := rec.Features.Float(rec.Modality.ScoreKey())
	if !ok {
		p.logger.Debug("no score for threshold feedback", "file", rec.OriginalFile, "key", rec.Modality.ScoreKey())
		return false
	}

	return p.feedback.RecordFeedback(ctx, rec.Modality, score, rec.AIClassification, agrees)
}

func (p *pipeline) Statistics(ctx context.Context) (*Statistics, error) {
	records, err := p.repo.AllRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: scan records: %w", ErrPersistence, err)
	}
	stats := Compute(records)
	return &stats, nil
}

// Download opens the staged copy. It is only available while the record
// is pending; finalize moves the copy away.
func (p *pipeline) Download(ctx context.Context, stagedFile string) (io.ReadCloser, error) {
	key, err := p.stagedKey(stagedFile)
	if err != nil {
		return nil, err
	}

	rc, err := p.blobs.Download(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, stagedFile)
		}
		return nil, fmt.Errorf("%w: download: %w", ErrPersistence, err)
	}
	return rc, nil
}

// PreviewURL returns a time-limited URL for the staged copy, or "" when the
// blob store cannot sign URLs.
func (p *pipeline) PreviewURL(ctx context.Context, stagedFile string) (string, error) {
	key, err := p.stagedKey(stagedFile)
	if err != nil {
		return "", err
	}

	exists, err := p.blobs.Exists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("%w: check staged blob: %w", ErrPersistence, err)
	}
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrNotFound, stagedFile)
	}

	url, err := p.blobs.SignedURL(ctx, key, p.cfg.PreviewTTLDuration())
	if err != nil {
		return "", fmt.Errorf("%w: sign url: %w", ErrPersistence, err)
	}
	return url, nil
}

func (p *pipeline) stagedKey(stagedFile string) (string, error) {
	if stagedFile == "" || strings.ContainsAny(stagedFile, `/\`) || stagedFile == "." || stagedFile == ".." {
		return "", fmt.Errorf("%w: %q", ErrNotFound, stagedFile)
	}
	return storage.Join(p.cfg.StagingFolder, stagedFile), nil
}

// stagedName is <yyyymmdd_hhmmss>_<8 hex>_<original>.
func stagedName(at time.Time, id uuid.UUID, original string) string {
	return fmt.Sprintf("%s_%s_%s", at.Format("20060102_150405"), id.String()[:8], original)
}

func openRegular(name string) (*os.File, error) {
	f, err := os.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
		}
		return nil, fmt.Errorf("open source file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat source file: %w", err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrFileNotFound, name)
	}
	return f, nil
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
