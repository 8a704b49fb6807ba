package reference

import (
	"math"

	"github.com/JaimeStill/sentio/internal/features"
)

// Feature is one dimension of the comparison space.
type Feature struct {
	Key    string
	Min    float64
	Max    float64
	Weight float64
}

// Table is the fixed comparison feature set. Ranges and weights must not
// change between runs or stored similarities stop being comparable.
var Table = []Feature{
	{Key: "aspect_ratio", Min: 0.3, Max: 2.0, Weight: 1.0},
	{Key: "avg_saturation", Min: 0, Max: 255, Weight: 1.0},
	{Key: "avg_brightness", Min: 0, Max: 255, Weight: 0.8},
	{Key: "texture_variance", Min: 0, Max: 5000, Weight: 0.6},
	{Key: "body_alignment", Min: 0, Max: 1.0, Weight: 1.2},
}

// Vector is the subset of Table keys present for one sample.
type Vector map[string]float64

// Keys returns the comparison feature names in table order.
func Keys() []string {
	keys := make([]string, len(Table))
	for i, f := range Table {
		keys[i] = f.Key
	}
	return keys
}

// Extract keeps only the comparison features from an analyzer payload.
func Extract(m features.Map) Vector {
	return Vector(m.Select(Keys()...))
}

// CalculateSimilarity returns 1 minus the weighted RMS distance between the
// normalized features present in both vectors. Values outside a feature's
// range saturate. Vectors with no common feature have similarity 0.
func CalculateSimilarity(a, b Vector) float64 {
	var total, distance float64

	for _, f := range Table {
		va, okA := a[f.Key]
		vb, okB := b[f.Key]
		if !okA || !okB {
			continue
		}

		span := f.Max - f.Min
		if span == 0 {
			continue
		}

		na := clamp01((va - f.Min) / span)
		nb := clamp01((vb - f.Min) / span)

		total += f.Weight
		distance += f.Weight * (na - nb) * (na - nb)
	}

	if total == 0 {
		return 0
	}

	return 1 - math.Min(math.Sqrt(distance/total), 1)
}

// AdjustScore applies a confidence adjustment and clamps the result to [0, 1].
func AdjustScore(base, adjustment float64) float64 {
	return clamp01(base + adjustment)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
