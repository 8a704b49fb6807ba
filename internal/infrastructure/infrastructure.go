// Package infrastructure provides core service initialization for application startup.
// It assembles the dependencies every domain system requires: lifecycle,
// logging, metrics, and the selected backend.
package infrastructure

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/JaimeStill/sentio/internal/backend"
	"github.com/JaimeStill/sentio/internal/config"
	"github.com/JaimeStill/sentio/internal/metrics"
	"github.com/JaimeStill/sentio/pkg/lifecycle"
)

// Infrastructure holds the core systems required by all domain modules.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Backend   *backend.Backend
}

// New creates an Infrastructure from the application configuration.
// It initializes all systems but does not start them; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	lc := lifecycle.New()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m, err := metrics.New(registry)
	if err != nil {
		return nil, fmt.Errorf("metrics init failed: %w", err)
	}

	b, err := backend.New(lc.Context(), cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Infrastructure{
		Lifecycle: lc,
		Logger:    logger,
		Registry:  registry,
		Metrics:   m,
		Backend:   b,
	}, nil
}

// Start registers the backend systems with the lifecycle coordinator.
func (i *Infrastructure) Start() error {
	return i.Backend.Start(i.Lifecycle)
}
