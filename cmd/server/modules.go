package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JaimeStill/sentio/internal/api"
	"github.com/JaimeStill/sentio/internal/config"
	"github.com/JaimeStill/sentio/internal/infrastructure"
	"github.com/JaimeStill/sentio/pkg/module"
)

type Modules struct {
	API    *module.Module
	Domain *api.Domain
}

func NewModules(ctx context.Context, infra *infrastructure.Infrastructure, cfg *config.Config) (*Modules, error) {
	apiModule, domain, err := api.NewModule(ctx, cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Modules{
		API:    apiModule,
		Domain: domain,
	}, nil
}

func (m *Modules) Mount(router *module.Router) {
	router.Mount(m.API)
}

func buildRouter(infra *infrastructure.Infrastructure) *module.Router {
	router := module.NewRouter()

	router.HandleNative("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	router.HandleNative("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !infra.Lifecycle.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]any{
				"status":   "not ready",
				"failures": infra.Lifecycle.Failures(),
			})
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})

	router.Handle("GET /metrics", promhttp.HandlerFor(infra.Registry, promhttp.HandlerOpts{}))

	return router
}
