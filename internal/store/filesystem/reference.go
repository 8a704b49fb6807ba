package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/JaimeStill/sentio/internal/labels"
	"github.com/JaimeStill/sentio/internal/reference"
)

type referenceDoc struct {
	Healthy []reference.Sample `json:"healthy"`
	Sick    []reference.Sample `json:"sick"`
}

func (d *referenceDoc) class(c labels.Class) *[]reference.Sample {
	if c == labels.ClassSick {
		return &d.Sick
	}
	return &d.Healthy
}

func (s *Store) ReferenceSamples(ctx context.Context, class labels.Class) ([]reference.Sample, error) {
	var samples []reference.Sample
	err := s.withLock(ctx, func() error {
		doc, err := s.readReference()
		if err != nil {
			return err
		}
		samples = *doc.class(class)
		for i := range samples {
			samples[i].Class = class
		}
		return nil
	})
	return samples, err
}

func (s *Store) AddReferenceSample(ctx context.Context, sample reference.Sample) (bool, error) {
	var added bool
	err := s.withLock(ctx, func() error {
		doc, err := s.readReference()
		if err != nil {
			return err
		}

		list := doc.class(sample.Class)
		for _, existing := range *list {
			if existing.File == sample.File {
				return nil
			}
		}
		*list = append(*list, sample)

		if err := s.replace(referenceFile, func(w io.Writer) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(doc)
		}); err != nil {
			return err
		}
		added = true
		return nil
	})
	return added, err
}

func (s *Store) readReference() (*referenceDoc, error) {
	doc := &referenceDoc{}

	f, err := s.open(referenceFile)
	if err != nil || f == nil {
		return doc, err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", referenceFile, err)
	}
	return doc, nil
}
