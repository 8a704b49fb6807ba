package main

import (
	"time"

	"github.com/JaimeStill/sentio/internal/config"
	"github.com/JaimeStill/sentio/internal/infrastructure"
	"github.com/JaimeStill/sentio/internal/labels"
	"github.com/JaimeStill/sentio/pkg/repository"
)

// loadTimeout bounds reading reference samples and tuner state at startup.
const loadTimeout = time.Minute

type Server struct {
	infra   *infrastructure.Infrastructure
	modules *Modules
	http    *httpServer
}

func NewServer(cfg *config.Config) (*Server, error) {
	infra, err := infrastructure.New(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := repository.Bounded(infra.Lifecycle.Context(), loadTimeout)
	defer cancel()

	modules, err := NewModules(ctx, infra, cfg)
	if err != nil {
		return nil, err
	}

	router := buildRouter(infra)
	modules.Mount(router)

	healthy, sick := modules.Domain.Reference.Counts()
	infra.Logger.Info(
		"server initialized",
		"addr", cfg.Server.Addr(),
		"version", cfg.Version,
		"backend", infra.Backend.Kind,
		"reference_healthy", healthy,
		"reference_sick", sick,
		"vision_threshold", modules.Domain.Thresholds.Current(labels.Vision),
		"audio_threshold", modules.Domain.Thresholds.Current(labels.Audio),
	)

	return &Server{
		infra:   infra,
		modules: modules,
		http:    newHTTPServer(&cfg.Server, router, infra.Logger),
	}, nil
}

// Start launches the backend systems and the listener. Readiness is
// reported asynchronously once every startup hook has run.
func (s *Server) Start() error {
	s.infra.Logger.Info("starting service")

	if err := s.infra.Start(); err != nil {
		return err
	}

	if err := s.http.Start(s.infra.Lifecycle); err != nil {
		return err
	}

	go func() {
		lc := s.infra.Lifecycle
		lc.WaitForStartup()
		if !lc.Ready() {
			s.infra.Logger.Error("startup incomplete, readiness withheld", "failures", lc.Failures())
			return
		}
		s.infra.Logger.Info("all subsystems ready")
	}()

	return nil
}

func (s *Server) Shutdown(timeout time.Duration) error {
	s.infra.Logger.Info("initiating shutdown")
	return s.infra.Lifecycle.Shutdown(timeout)
}
