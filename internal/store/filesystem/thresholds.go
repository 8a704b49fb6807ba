package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/JaimeStill/sentio/internal/labels"
	"github.com/JaimeStill/sentio/internal/thresholds"
)

type modalityHistory struct {
	Feedback []thresholds.Entry  `json:"feedback"`
	Config   *thresholds.Setting `json:"config"`
}

type thresholdDoc map[labels.Modality]*modalityHistory

func (d thresholdDoc) history(m labels.Modality) *modalityHistory {
	h, ok := d[m]
	if !ok || h == nil {
		h = &modalityHistory{Feedback: []thresholds.Entry{}}
		d[m] = h
	}
	return h
}

func (s *Store) RecordFeedback(ctx context.Context, modality labels.Modality, e thresholds.Entry) error {
	return s.updateThresholds(ctx, func(doc thresholdDoc) {
		h := doc.history(modality)
		h.Feedback = append(h.Feedback, e)
	})
}

func (s *Store) Feedback(ctx context.Context, modality labels.Modality) ([]thresholds.Entry, error) {
	var entries []thresholds.Entry
	err := s.withLock(ctx, func() error {
		doc, err := s.readThresholds()
		if err != nil {
			return err
		}
		if h := doc[modality]; h != nil {
			entries = h.Feedback
		}
		return nil
	})
	return entries, err
}

func (s *Store) ThresholdConfig(ctx context.Context, modality labels.Modality) (*thresholds.Setting, error) {
	var setting *thresholds.Setting
	err := s.withLock(ctx, func() error {
		doc, err := s.readThresholds()
		if err != nil {
			return err
		}
		if h := doc[modality]; h != nil && h.Config != nil {
			cfg := *h.Config
			cfg.Modality = modality
			setting = &cfg
		}
		return nil
	})
	return setting, err
}

func (s *Store) UpdateThresholdConfig(ctx context.Context, setting thresholds.Setting) error {
	return s.updateThresholds(ctx, func(doc thresholdDoc) {
		doc.history(setting.Modality).Config = &setting
	})
}

func (s *Store) updateThresholds(ctx context.Context, mutate func(thresholdDoc)) error {
	return s.withLock(ctx, func() error {
		doc, err := s.readThresholds()
		if err != nil {
			return err
		}
		mutate(doc)
		return s.replace(thresholdFile, func(w io.Writer) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(doc)
		})
	})
}

func (s *Store) readThresholds() (thresholdDoc, error) {
	doc := thresholdDoc{}

	f, err := s.open(thresholdFile)
	if err != nil || f == nil {
		return doc, err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", thresholdFile, err)
	}
	// A literal null decodes to a nil map.
	if doc == nil {
		doc = thresholdDoc{}
	}
	return doc, nil
}
