// Package metrics provides Prometheus metrics for the staging pipeline,
// the threshold tuner, and the reference database.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector exported by the service.
// All recording methods are safe on a nil receiver.
type Metrics struct {
	StagedTotal      *prometheus.CounterVec
	FinalizedTotal   *prometheus.CounterVec
	FinalizeMisses   *prometheus.CounterVec
	SideEffectErrors *prometheus.CounterVec
	FeedbackTotal    *prometheus.CounterVec
	ReferenceSamples *prometheus.GaugeVec
	ThresholdCurrent *prometheus.GaugeVec
	ThresholdSuggest *prometheus.GaugeVec
	ThresholdApplied *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates the collectors and registers them with registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register sentio metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.StagedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentio_staged_total",
			Help: "Files staged for review, by modality.",
		},
		[]string{"modality"},
	)
	m.FinalizedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentio_finalized_total",
			Help: "Reviews finalized, by modality and whether the reviewer agreed with the classifier.",
		},
		[]string{"modality", "agreement"},
	)
	m.FinalizeMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentio_finalize_misses_total",
			Help: "Finalize calls that matched no pending record.",
		},
		[]string{"reason"},
	)
	m.SideEffectErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentio_side_effect_errors_total",
			Help: "Best-effort steps that failed after a successful record update.",
		},
		[]string{"step"},
	)
	m.FeedbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentio_threshold_feedback_total",
			Help: "Threshold feedback entries, by modality and result.",
		},
		[]string{"modality", "result"},
	)
	m.ReferenceSamples = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentio_reference_samples",
			Help: "Reference samples held in memory, by class.",
		},
		[]string{"class"},
	)
	m.ThresholdCurrent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentio_threshold_current",
			Help: "Active decision threshold, by modality.",
		},
		[]string{"modality"},
	)
	m.ThresholdSuggest = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentio_threshold_suggested",
			Help: "Suggested decision threshold, by modality. Unset until enough feedback exists.",
		},
		[]string{"modality"},
	)
	m.ThresholdApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentio_threshold_applied_total",
			Help: "Threshold suggestions applied, by modality.",
		},
		[]string{"modality"},
	)
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.StagedTotal,
		m.FinalizedTotal,
		m.FinalizeMisses,
		m.SideEffectErrors,
		m.FeedbackTotal,
		m.ReferenceSamples,
		m.ThresholdCurrent,
		m.ThresholdSuggest,
		m.ThresholdApplied,
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

func (m *Metrics) Staged(modality string) {
	if m == nil {
		return
	}
	m.StagedTotal.WithLabelValues(modality).Inc()
}

func (m *Metrics) Finalized(modality string, agrees bool) {
	if m == nil {
		return
	}
	agreement := "disagree"
	if agrees {
		agreement = "agree"
	}
	m.FinalizedTotal.WithLabelValues(modality, agreement).Inc()
}

// FinalizeMiss counts a finalize that found nothing to update.
// reason is "not_found" or "lost_race".
func (m *Metrics) FinalizeMiss(reason string) {
	if m == nil {
		return
	}
	m.FinalizeMisses.WithLabelValues(reason).Inc()
}

func (m *Metrics) SideEffectFailed(step string) {
	if m == nil {
		return
	}
	m.SideEffectErrors.WithLabelValues(step).Inc()
}

// Feedback counts a tuner feedback call. result is one of "recorded", "invalid", "disabled" or "error".
func (m *Metrics) Feedback(modality, result string) {
	if m == nil {
		return
	}
	m.FeedbackTotal.WithLabelValues(modality, result).Inc()
}

func (m *Metrics) SetReferenceSamples(healthy, sick int) {
	if m == nil {
		return
	}
	m.ReferenceSamples.WithLabelValues("healthy").Set(float64(healthy))
	m.ReferenceSamples.WithLabelValues("sick").Set(float64(sick))
}

// SetThreshold publishes the tuner state for a modality. A nil suggestion
// removes the suggested series.
func (m *Metrics) SetThreshold(modality string, current float64, suggested *float64) {
	if m == nil {
		return
	}
	m.ThresholdCurrent.WithLabelValues(modality).Set(current)
	if suggested == nil {
		m.ThresholdSuggest.DeleteLabelValues(modality)
		return
	}
	m.ThresholdSuggest.WithLabelValues(modality).Set(*suggested)
}

func (m *Metrics) Applied(modality string) {
	if m == nil {
		return
	}
	m.ThresholdApplied.WithLabelValues(modality).Inc()
}
