package api

import (
	"github.com/JaimeStill/sentio/internal/config"
	"github.com/JaimeStill/sentio/internal/infrastructure"
)

// Runtime extends Infrastructure with API-specific configuration.
type Runtime struct {
	*infrastructure.Infrastructure
	Config *config.Config
}

// NewRuntime creates an API runtime with a module-scoped logger.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) *Runtime {
	return &Runtime{
		Infrastructure: &infrastructure.Infrastructure{
			Lifecycle: infra.Lifecycle,
			Logger:    infra.Logger.With("module", "api"),
			Registry:  infra.Registry,
			Metrics:   infra.Metrics,
			Backend:   infra.Backend,
		},
		Config: cfg,
	}
}
