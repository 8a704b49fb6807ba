package staging

import (
	"context"
	"io"
	"time"

	"github.com/JaimeStill/sentio/internal/features"
	"github.com/JaimeStill/sentio/internal/labels"
)

// System defines the public contract for the review pipeline.
type System interface {
	Handler() *Handler

	Stage(ctx context.Context, cmd StageCommand) (*Record, error)
	Pending(ctx context.Context) ([]Record, error)
	Finalize(ctx context.Context, cmd FinalizeCommand) (*Finalization, error)
	Statistics(ctx context.Context) (*Statistics, error)
	Download(ctx context.Context, stagedFile string) (io.ReadCloser, error)
	PreviewURL(ctx context.Context, stagedFile string) (string, error)
}

// Repository persists staging records.
type Repository interface {
	InsertRecord(ctx context.Context, r Record) error
	// PendingRecords returns unvalidated records in insertion order.
	PendingRecords(ctx context.Context) ([]Record, error)
	// FindPending returns nil when no unvalidated record has stagedFile.
	FindPending(ctx context.Context, stagedFile string) (*Record, error)
	// FinalizeRecord validates the record atomically and returns nil when no
	// unvalidated record matched, including when a concurrent call won.
	FinalizeRecord(ctx context.Context, u Validation) (*Record, error)
	AllRecords(ctx context.Context) ([]Record, error)
}

// Validation is the one-time update applied to a pending record.
type Validation struct {
	StagedFile          string
	HumanAgrees         bool
	FinalClassification labels.Label
	ValidatedAt         time.Time
}

// ReferenceSink receives confirmed vision samples.
type ReferenceSink interface {
	AddSample(ctx context.Context, fm features.Map, classification labels.Label, filename string) (bool, error)
}

// FeedbackSink receives reviewer agreement for threshold tuning.
type FeedbackSink interface {
	RecordFeedback(ctx context.Context, modality labels.Modality, score float64, prediction labels.Label, agrees bool) bool
}
