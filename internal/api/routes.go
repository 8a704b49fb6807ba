package api

import (
	"net/http"

	"github.com/JaimeStill/sentio/internal/reference"
	"github.com/JaimeStill/sentio/internal/thresholds"
	"github.com/JaimeStill/sentio/pkg/routes"
)

func registerRoutes(mux *http.ServeMux, domain *Domain, runtime *Runtime) {
	routes.Register(
		mux,
		domain.Staging.Handler().Routes(),
		reference.NewHandler(domain.Reference, runtime.Logger).Routes(),
		thresholds.NewHandler(domain.Thresholds, runtime.Logger).Routes(),
	)
}
