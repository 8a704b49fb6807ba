// Package labels defines the modality and label vocabulary shared by the
// staging pipeline, the threshold tuner, and the reference database.
package labels

import (
	"slices"
	"strings"
)

// Modality names the sensor pipeline a record belongs to.
type Modality string

const (
	Vision Modality = "vision"
	Audio  Modality = "audio"
)

// Modalities lists every supported modality in a stable order.
var Modalities = []Modality{Vision, Audio}

// Valid reports whether m is a supported modality.
func (m Modality) Valid() bool {
	return m == Vision || m == Audio
}

// ParseModality accepts a modality name in any case.
func ParseModality(s string) (Modality, bool) {
	m := Modality(strings.ToLower(strings.TrimSpace(s)))
	return m, m.Valid()
}

// Label is a classifier output or a reviewer decision.
type Label string

const (
	Healthy  Label = "HEALTHY"
	Sick     Label = "SICK"
	Normal   Label = "NORMAL"
	Distress Label = "DISTRESS"
	Unknown  Label = "UNKNOWN"
)

// Labels returns the two labels the classifier for m can emit, low label first.
func (m Modality) Labels() []Label {
	switch m {
	case Vision:
		return []Label{Healthy, Sick}
	case Audio:
		return []Label{Normal, Distress}
	default:
		return nil
	}
}

// Accepts reports whether l is a valid prediction for m.
func (m Modality) Accepts(l Label) bool {
	return slices.Contains(m.Labels(), l)
}

// ScoreKey is the feature key carrying the classifier score for m.
func (m Modality) ScoreKey() string {
	if m == Audio {
		return "distress_score"
	}
	return "health_score"
}

// Low reports whether l is the low-score label of its modality.
// A wrong low prediction means the threshold sits too low.
func (l Label) Low() bool {
	return l == Healthy || l == Normal
}

// Flip returns the opposite label of the same modality, or Unknown
// for labels with no counterpart.
func (l Label) Flip() Label {
	switch l {
	case Healthy:
		return Sick
	case Sick:
		return Healthy
	case Normal:
		return Distress
	case Distress:
		return Normal
	default:
		return Unknown
	}
}

// Normalize upper-cases and trims a label read from an external source.
func Normalize(s string) Label {
	return Label(strings.ToUpper(strings.TrimSpace(s)))
}

// Final resolves the reviewer decision for a prediction. Agreement keeps
// the prediction. Otherwise an explicit correction wins, then the flip table.
func Final(ai Label, agrees bool, correction *Label) Label {
	if agrees {
		return ai
	}
	if correction != nil && *correction != "" {
		return *correction
	}
	return ai.Flip()
}

// Class is the binary grouping used by verified folders and reference samples.
type Class string

const (
	ClassHealthy Class = "healthy"
	ClassSick    Class = "sick"
)

// ClassOf maps HEALTHY and NORMAL to healthy, and everything else to sick.
func ClassOf(l Label) Class {
	if Normalize(string(l)).Low() {
		return ClassHealthy
	}
	return ClassSick
}

// Valid reports whether c is one of the two classes.
func (c Class) Valid() bool {
	return c == ClassHealthy || c == ClassSick
}
