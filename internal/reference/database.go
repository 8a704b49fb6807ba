// Package reference keeps feature vectors of human-confirmed vision samples
// and uses their k nearest neighbors to adjust the confidence of new samples.
package reference

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/sentio/internal/features"
	"github.com/JaimeStill/sentio/internal/labels"
	"github.com/JaimeStill/sentio/internal/metrics"
)

// Sample is one confirmed sample contributed to the comparison pool.
type Sample struct {
	File     string       `json:"file"`
	Added    time.Time    `json:"added"`
	Class    labels.Class `json:"class"`
	Features Vector       `json:"features"`
}

// Repository persists reference samples.
type Repository interface {
	ReferenceSamples(ctx context.Context, class labels.Class) ([]Sample, error)
	// AddReferenceSample stores s and reports false when (File, Class) already exists.
	AddReferenceSample(ctx context.Context, s Sample) (bool, error)
}

// Neighbor is a stored sample ranked by similarity to a query.
type Neighbor struct {
	File       string       `json:"file"`
	Similarity float64      `json:"similarity"`
	Class      labels.Class `json:"class"`
}

// Details explains a confidence adjustment.
type Details struct {
	ReferenceUsed        bool       `json:"reference_used"`
	HealthySamples       int        `json:"healthy_samples"`
	SickSamples          int        `json:"sick_samples"`
	Neighbors            []Neighbor `json:"k_neighbors"`
	AvgHealthySimilarity float64    `json:"avg_healthy_similarity"`
	AvgSickSimilarity    float64    `json:"avg_sick_similarity"`
	Adjustment           float64    `json:"adjustment"`
	Reason               string     `json:"reason,omitempty"`
}

// Statistics summarizes the sample pool for display.
type Statistics struct {
	HealthySamples   int     `json:"healthy_samples"`
	SickSamples      int     `json:"sick_samples"`
	TotalSamples     int     `json:"total_samples"`
	IsActive         bool    `json:"is_active"`
	MinRequired      int     `json:"min_required"`
	SimilarityWeight float64 `json:"similarity_weight"`
	KNeighbors       int     `json:"k_neighbors"`
	StatusMessage    string  `json:"status_message"`
}

type sampleKey struct {
	file  string
	class labels.Class
}

// Database is the in-memory sample pool backed by a Repository.
// Reads take a snapshot, so a sample added during a scan may be missed.
type Database struct {
	repo    Repository
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	writeMu sync.Mutex
	mu      sync.RWMutex
	healthy []Sample
	sick    []Sample
	index   map[sampleKey]struct{}
}

// New loads both classes from repo.
func New(ctx context.Context, repo Repository, cfg Config, logger *slog.Logger, m *metrics.Metrics) (*Database, error) {
	d := &Database{
		repo:    repo,
		cfg:     cfg,
		logger:  logger.With("system", "reference"),
		metrics: m,
		index:   make(map[sampleKey]struct{}),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		samples, err := repo.ReferenceSamples(gctx, labels.ClassHealthy)
		if err != nil {
			return fmt.Errorf("%w: load healthy samples: %w", ErrPersistence, err)
		}
		d.healthy = samples
		return nil
	})
	g.Go(func() error {
		samples, err := repo.ReferenceSamples(gctx, labels.ClassSick)
		if err != nil {
			return fmt.Errorf("%w: load sick samples: %w", ErrPersistence, err)
		}
		d.sick = samples
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, s := range d.healthy {
		d.index[sampleKey{s.File, labels.ClassHealthy}] = struct{}{}
	}
	for _, s := range d.sick {
		d.index[sampleKey{s.File, labels.ClassSick}] = struct{}{}
	}

	d.metrics.SetReferenceSamples(len(d.healthy), len(d.sick))
	d.logger.Info("reference samples loaded", "healthy", len(d.healthy), "sick", len(d.sick))
	return d, nil
}

// AddSample stores the comparison features of a confirmed sample. It returns
// false without mutation when the payload has no comparison features or the
// (filename, class) pair already exists. The write is durable before return;
// on error the in-memory pool is untouched.
func (d *Database) AddSample(ctx context.Context, fm features.Map, classification labels.Label, filename string) (bool, error) {
	vec := Extract(fm)
	if len(vec) == 0 {
		d.logger.Debug("sample skipped, no comparison features", "file", filename)
		return false, nil
	}

	class := labels.ClassOf(classification)
	key := sampleKey{filename, class}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.mu.RLock()
	_, exists := d.index[key]
	d.mu.RUnlock()
	if exists {
		return false, nil
	}

	sample := Sample{
		File:     filename,
		Added:    time.Now().UTC(),
		Class:    class,
		Features: vec,
	}

	added, err := d.repo.AddReferenceSample(ctx, sample)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if !added {
		return false, nil
	}

	d.mu.Lock()
	if class == labels.ClassHealthy {
		d.healthy = append(d.healthy, sample)
	} else {
		d.sick = append(d.sick, sample)
	}
	d.index[key] = struct{}{}
	healthy, sick := len(d.healthy), len(d.sick)
	d.mu.Unlock()

	d.metrics.SetReferenceSamples(healthy, sick)
	d.logger.Info("reference sample added", "file", filename, "class", class, "features", len(vec))
	return true, nil
}

// Counts returns the number of healthy and sick samples.
func (d *Database) Counts() (int, int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.healthy), len(d.sick)
}

// FindKNearest ranks every stored sample by similarity to the payload's
// comparison features and returns the top k. A non-positive k uses the
// configured default. Ties keep healthy samples ahead of sick ones, each
// in insertion order.
func (d *Database) FindKNearest(fm features.Map, k int) []Neighbor {
	if k <= 0 {
		k = d.cfg.KNeighbors
	}

	query := Extract(fm)
	if len(query) == 0 {
		return nil
	}

	d.mu.RLock()
	healthy, sick := d.healthy, d.sick
	d.mu.RUnlock()

	all := make([]Neighbor, 0, len(healthy)+len(sick))
	for _, s := range healthy {
		all = append(all, Neighbor{File: s.File, Similarity: CalculateSimilarity(query, s.Features), Class: labels.ClassHealthy})
	}
	for _, s := range sick {
		all = append(all, Neighbor{File: s.File, Similarity: CalculateSimilarity(query, s.Features), Class: labels.ClassSick})
	}

	slices.SortStableFunc(all, func(a, b Neighbor) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		default:
			return 0
		}
	})

	if len(all) > k {
		all = all[:k]
	}
	return all
}

// ConfidenceAdjustment returns how far to move a base score toward healthy
// (positive) or sick (negative). It returns 0 when either class has fewer
// than the minimum samples, when comparison is disabled, or when the payload
// has no comparison features, in that order of precedence.
func (d *Database) ConfidenceAdjustment(fm features.Map) (float64, Details) {
	healthy, sick := d.Counts()
	details := Details{
		HealthySamples: healthy,
		SickSamples:    sick,
		Neighbors:      []Neighbor{},
	}

	if !d.sufficient(healthy, sick) {
		details.Reason = fmt.Sprintf(
			"Need %d samples per class. Have: %d healthy, %d sick",
			d.cfg.MinSamplesPerClass, healthy, sick,
		)
		return 0, details
	}

	if !d.cfg.IsEnabled() {
		details.Reason = "Reference comparison disabled in config"
		return 0, details
	}

	neighbors := d.FindKNearest(fm, 0)
	if len(neighbors) == 0 {
		details.Reason = "No valid features for comparison"
		return 0, details
	}

	details.ReferenceUsed = true

	var sumH, sumS float64
	var nH, nS int
	for _, n := range neighbors {
		if n.Class == labels.ClassHealthy {
			sumH += n.Similarity
			nH++
		} else {
			sumS += n.Similarity
			nS++
		}
		details.Neighbors = append(details.Neighbors, Neighbor{
			File:       n.File,
			Similarity: round(n.Similarity, 3),
			Class:      n.Class,
		})
	}

	var avgH, avgS float64
	if nH > 0 {
		avgH = sumH / float64(nH)
	}
	if nS > 0 {
		avgS = sumS / float64(nS)
	}

	adjustment := (avgH - avgS) * d.cfg.SimilarityWeight

	details.AvgHealthySimilarity = round(avgH, 3)
	details.AvgSickSimilarity = round(avgS, 3)
	details.Adjustment = round(adjustment, 4)

	d.logger.Debug(
		"reference adjustment",
		"adjustment", adjustment,
		"healthy_similarity", avgH,
		"sick_similarity", avgS,
	)

	return adjustment, details
}

// Statistics reports pool sizes and whether comparison is active.
func (d *Database) Statistics() Statistics {
	healthy, sick := d.Counts()
	return Statistics{
		HealthySamples:   healthy,
		SickSamples:      sick,
		TotalSamples:     healthy + sick,
		IsActive:         d.cfg.IsEnabled() && d.sufficient(healthy, sick),
		MinRequired:      d.cfg.MinSamplesPerClass,
		SimilarityWeight: d.cfg.SimilarityWeight,
		KNeighbors:       d.cfg.KNeighbors,
		StatusMessage:    d.statusMessage(healthy, sick),
	}
}

func (d *Database) sufficient(healthy, sick int) bool {
	return healthy >= d.cfg.MinSamplesPerClass && sick >= d.cfg.MinSamplesPerClass
}

func (d *Database) statusMessage(healthy, sick int) string {
	if !d.cfg.IsEnabled() {
		return "Reference comparison disabled"
	}
	if d.sufficient(healthy, sick) {
		return fmt.Sprintf("Active: Using %d verified samples", healthy+sick)
	}

	var parts []string
	if n := d.cfg.MinSamplesPerClass - healthy; n > 0 {
		parts = append(parts, fmt.Sprintf("%d more healthy", n))
	}
	if n := d.cfg.MinSamplesPerClass - sick; n > 0 {
		parts = append(parts, fmt.Sprintf("%d more sick", n))
	}
	return fmt.Sprintf("Need %s samples to activate", strings.Join(parts, " and "))
}
