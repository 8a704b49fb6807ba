package api

import (
	"context"
	"fmt"

	"github.com/JaimeStill/sentio/internal/reference"
	"github.com/JaimeStill/sentio/internal/staging"
	"github.com/JaimeStill/sentio/internal/thresholds"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Staging    staging.System
	Reference  *reference.Database
	Thresholds *thresholds.Tuner
}

// NewDomain loads the reference samples and tuner state, then wires both
// into the staging pipeline.
func NewDomain(ctx context.Context, runtime *Runtime) (*Domain, error) {
	records := runtime.Backend.Records

	refs, err := reference.New(ctx, records, runtime.Config.Reference, runtime.Logger, runtime.Metrics)
	if err != nil {
		return nil, fmt.Errorf("reference init failed: %w", err)
	}

	tuner, err := thresholds.New(ctx, records, runtime.Config.Tuning, runtime.Logger, runtime.Metrics)
	if err != nil {
		return nil, fmt.Errorf("tuner init failed: %w", err)
	}

	pipeline := staging.New(
		records,
		runtime.Backend.Blobs,
		refs,
		tuner,
		runtime.Config.Paths,
		runtime.Logger,
		runtime.Metrics,
	)

	return &Domain{
		Staging:    pipeline,
		Reference:  refs,
		Thresholds: tuner,
	}, nil
}
