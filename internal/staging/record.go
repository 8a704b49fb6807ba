// Package staging implements the non-destructive review pipeline. A staged
// record holds a copy of the analyzed file until a reviewer confirms or
// corrects the prediction, at which point the copy moves to its verified
// folder and the decision feeds the reference database and threshold tuner.
package staging

import (
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/sentio/internal/features"
	"github.com/JaimeStill/sentio/internal/labels"
)

// Record is one file submitted for review. It moves from pending to
// validated exactly once.
type Record struct {
	ID                  uuid.UUID       `json:"id"`
	Timestamp           time.Time       `json:"timestamp"`
	OriginalFile        string          `json:"original_file"`
	OriginalPath        string          `json:"original_path"`
	StagedFile          string          `json:"staged_file"`
	StorageKey          string          `json:"storage_key"`
	Modality            labels.Modality `json:"modality"`
	AIClassification    labels.Label    `json:"ai_classification"`
	Confidence          float64         `json:"confidence"`
	Features            features.Map    `json:"features"`
	HumanValidated      bool            `json:"human_validated"`
	HumanAgrees         *bool           `json:"human_agrees"`
	FinalClassification *labels.Label   `json:"final_classification"`
	ValidatedAt         *time.Time      `json:"validated_at"`
}

// StageCommand carries one analyzer result to stage.
type StageCommand struct {
	FilePath         string       `json:"file_path"`
	Modality         string       `json:"modality"`
	AIClassification string       `json:"ai_classification"`
	Confidence       float64      `json:"confidence"`
	Features         features.Map `json:"features"`
}

// FinalizeCommand carries a reviewer decision. HumanClassification is only
// consulted when HumanAgrees is false.
type FinalizeCommand struct {
	StagedFile          string  `json:"-"`
	HumanAgrees         bool    `json:"human_agrees"`
	HumanClassification *string `json:"human_classification,omitempty"`
}

// Finalization reports a validated record and the outcome of the
// best-effort steps that followed it.
type Finalization struct {
	Record           *Record `json:"record"`
	Destination      string  `json:"destination,omitempty"`
	ReferenceAdded   bool    `json:"reference_added"`
	FeedbackRecorded bool    `json:"feedback_recorded"`
}

// ModalityCounts tallies records of one modality.
type ModalityCounts struct {
	Total   int `json:"total"`
	Correct int `json:"correct"`
}

// Statistics aggregates the whole staging log.
type Statistics struct {
	TotalStaged      int                                `json:"total_staged"`
	PendingReview    int                                `json:"pending_review"`
	Validated        int                                `json:"validated"`
	AICorrect        int                                `json:"ai_correct"`
	AIIncorrect      int                                `json:"ai_incorrect"`
	Accuracy         float64                            `json:"accuracy"`
	ByModality       map[labels.Modality]ModalityCounts `json:"by_modality"`
	ByClassification map[labels.Label]int               `json:"by_classification"`
}

// Compute tallies records into pipeline statistics.
func Compute(records []Record) Statistics {
	stats := Statistics{
		TotalStaged:      len(records),
		ByModality:       make(map[labels.Modality]ModalityCounts),
		ByClassification: make(map[labels.Label]int),
	}

	for _, r := range records {
		counts := stats.ByModality[r.Modality]
		counts.Total++

		if !r.HumanValidated {
			stats.PendingReview++
			stats.ByModality[r.Modality] = counts
			continue
		}

		stats.Validated++
		if r.HumanAgrees != nil && *r.HumanAgrees {
			stats.AICorrect++
			counts.Correct++
		} else {
			stats.AIIncorrect++
		}
		stats.ByModality[r.Modality] = counts

		final := labels.Unknown
		if r.FinalClassification != nil {
			final = *r.FinalClassification
		}
		stats.ByClassification[final]++
	}

	if stats.Validated > 0 {
		stats.Accuracy = float64(stats.AICorrect) / float64(stats.Validated)
	}
	return stats
}
