// Package api assembles the API module with all domain systems and route registration.
package api

import (
	"context"
	"net/http"

	"github.com/JaimeStill/sentio/internal/config"
	"github.com/JaimeStill/sentio/internal/infrastructure"
	"github.com/JaimeStill/sentio/pkg/formatting"
	"github.com/JaimeStill/sentio/pkg/middleware"
	"github.com/JaimeStill/sentio/pkg/module"
)

// NewModule creates the API module with all domain handlers and middleware.
// Domain state is loaded from the backend under ctx.
func NewModule(ctx context.Context, cfg *config.Config, infra *infrastructure.Infrastructure) (*module.Module, *Domain, error) {
	runtime := NewRuntime(cfg, infra)

	domain, err := NewDomain(ctx, runtime)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	registerRoutes(mux, domain, runtime)

	limit := cfg.API.MaxBodySizeBytes()
	runtime.Logger.Info("api module ready", "base_path", cfg.API.BasePath, "max_body", formatting.FormatBytes(limit, 0))

	m := module.New(cfg.API.BasePath, mux)
	m.Use(middleware.Recover(runtime.Logger))
	m.Use(middleware.CORS(&cfg.API.CORS))
	m.Use(middleware.LimitBody(limit))
	m.Use(middleware.Logger(runtime.Logger))

	return m, domain, nil
}
