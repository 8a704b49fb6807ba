package thresholds

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/JaimeStill/sentio/internal/labels"
)

const (
	recentWindow  = 20
	rollingWindow = 5
)

var histogramEdges = []float64{0, 0.2, 0.4, 0.5, 0.6, 0.8, 1.0}

// Summary is an exportable report of the tuner state.
type Summary struct {
	ExportTimestamp time.Time                           `json:"export_timestamp"`
	Modalities      map[labels.Modality]ModalitySummary `json:"modalities"`
}

// ModalitySummary reports accuracy, error tendency, and threshold status.
type ModalitySummary struct {
	Statistics      Statistics      `json:"statistics"`
	TotalFeedback   int             `json:"total_feedback"`
	RecentAccuracy  float64         `json:"recent_accuracy"`
	ErrorAnalysis   ErrorAnalysis   `json:"error_analysis"`
	ThresholdStatus ThresholdStatus `json:"threshold_status"`
}

// ErrorAnalysis splits disagreements by the AI's predicted label. A false
// positive is a low-label prediction the reviewer rejected.
type ErrorAnalysis struct {
	TotalErrors    int    `json:"total_errors"`
	FalsePositives int    `json:"false_positives"`
	FalseNegatives int    `json:"false_negatives"`
	Tendency       string `json:"error_tendency"`
}

// ThresholdStatus reports whether applying the suggestion would change anything.
type ThresholdStatus struct {
	Current         float64    `json:"current"`
	Suggested       *float64   `json:"suggested"`
	LastUpdated     *time.Time `json:"last_updated"`
	NeedsAdjustment bool       `json:"needs_adjustment"`
}

// Visualization carries chart-ready series for one modality.
type Visualization struct {
	Timestamps        []time.Time      `json:"timestamps"`
	Scores            []float64        `json:"scores"`
	Predictions       []labels.Label   `json:"predictions"`
	Agreements        []bool           `json:"agreements"`
	Threshold         float64          `json:"threshold"`
	BoundaryLow       float64          `json:"boundary_low"`
	BoundaryHigh      float64          `json:"boundary_high"`
	RollingAccuracy   []float64        `json:"rolling_accuracy"`
	ScoreDistribution []Bin            `json:"score_distribution"`
	BoundaryAnalysis  BoundaryAnalysis `json:"boundary_analysis"`
}

// Bin is one histogram bucket. The last bucket includes its upper edge.
type Bin struct {
	Range string  `json:"range"`
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
	Count int     `json:"count"`
}

type BoundaryAnalysis struct {
	TotalInBoundary   int     `json:"total_in_boundary"`
	ErrorsInBoundary  int     `json:"errors_in_boundary"`
	BoundaryErrorRate float64 `json:"boundary_error_rate"`
}

// Summary reports on the given modalities, or all of them when none are given.
func (t *Tuner) Summary(modalities ...labels.Modality) (Summary, error) {
	if len(modalities) == 0 {
		modalities = labels.Modalities
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	summary := Summary{
		ExportTimestamp: time.Now().UTC(),
		Modalities:      make(map[labels.Modality]ModalitySummary, len(modalities)),
	}

	for _, mod := range modalities {
		s, ok := t.states[mod]
		if !ok {
			return Summary{}, fmt.Errorf("%w: %s", ErrUnknownModality, mod)
		}
		summary.Modalities[mod] = t.summarize(s)
	}

	return summary, nil
}

func (t *Tuner) summarize(s *state) ModalitySummary {
	recent := s.feedback
	if len(recent) > recentWindow {
		recent = recent[len(recent)-recentWindow:]
	}

	var recentCorrect int
	for _, e := range recent {
		if e.HumanAgrees {
			recentCorrect++
		}
	}

	var analysis ErrorAnalysis
	for _, e := range s.feedback {
		if e.HumanAgrees {
			continue
		}
		analysis.TotalErrors++
		if e.AIPrediction.Low() {
			analysis.FalsePositives++
		}
	}
	analysis.FalseNegatives = analysis.TotalErrors - analysis.FalsePositives

	switch {
	case analysis.FalsePositives > analysis.FalseNegatives:
		analysis.Tendency = "lenient"
	case analysis.FalseNegatives > analysis.FalsePositives:
		analysis.Tendency = "strict"
	default:
		analysis.Tendency = "balanced"
	}

	ms := ModalitySummary{
		Statistics:    t.statistics(s),
		TotalFeedback: len(s.feedback),
		ErrorAnalysis: analysis,
		ThresholdStatus: ThresholdStatus{
			Current:     s.current,
			Suggested:   copyFloat(s.suggested),
			LastUpdated: s.lastUpdated,
			NeedsAdjustment: s.suggested != nil &&
				math.Abs(*s.suggested-s.current) > 0.01,
		},
	}
	if len(recent) > 0 {
		ms.RecentAccuracy = round3(float64(recentCorrect) / float64(len(recent)))
	}
	return ms
}

// Visualization returns time series, rolling accuracy, a score histogram,
// and boundary-region figures for modality.
func (t *Tuner) Visualization(modality labels.Modality) (Visualization, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.states[modality]
	if !ok {
		return Visualization{}, fmt.Errorf("%w: %s", ErrUnknownModality, modality)
	}

	n := len(s.feedback)
	v := Visualization{
		Timestamps:        make([]time.Time, 0, n),
		Scores:            make([]float64, 0, n),
		Predictions:       make([]labels.Label, 0, n),
		Agreements:        make([]bool, 0, n),
		Threshold:         s.current,
		BoundaryLow:       s.current - t.cfg.BoundaryWidth,
		BoundaryHigh:      s.current + t.cfg.BoundaryWidth,
		RollingAccuracy:   make([]float64, 0, n),
		ScoreDistribution: newBins(),
	}

	var windowCorrect int
	for i, e := range s.feedback {
		v.Timestamps = append(v.Timestamps, e.Timestamp)
		v.Scores = append(v.Scores, e.Score)
		v.Predictions = append(v.Predictions, e.AIPrediction)
		v.Agreements = append(v.Agreements, e.HumanAgrees)

		if e.HumanAgrees {
			windowCorrect++
		}
		if i >= rollingWindow && s.feedback[i-rollingWindow].HumanAgrees {
			windowCorrect--
		}
		size := min(i+1, rollingWindow)
		v.RollingAccuracy = append(v.RollingAccuracy, round3(float64(windowCorrect)/float64(size)))

		bin(v.ScoreDistribution, e.Score)

		if e.Score >= v.BoundaryLow && e.Score <= v.BoundaryHigh {
			v.BoundaryAnalysis.TotalInBoundary++
			if !e.HumanAgrees {
				v.BoundaryAnalysis.ErrorsInBoundary++
			}
		}
	}

	if v.BoundaryAnalysis.TotalInBoundary > 0 {
		v.BoundaryAnalysis.BoundaryErrorRate = float64(v.BoundaryAnalysis.ErrorsInBoundary) /
			float64(v.BoundaryAnalysis.TotalInBoundary)
	}

	return v, nil
}

func newBins() []Bin {
	bins := make([]Bin, len(histogramEdges)-1)
	for i := range bins {
		lo, hi := histogramEdges[i], histogramEdges[i+1]
		bins[i] = Bin{
			Range: strconv.FormatFloat(lo, 'g', -1, 64) + "-" + strconv.FormatFloat(hi, 'g', -1, 64),
			Low:   lo,
			High:  hi,
		}
	}
	return bins
}

func bin(bins []Bin, score float64) {
	last := len(bins) - 1
	for i := range bins {
		if score >= bins[i].Low && (score < bins[i].High || (i == last && score == bins[i].High)) {
			bins[i].Count++
			return
		}
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
