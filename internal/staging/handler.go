package staging

import (
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/JaimeStill/sentio/pkg/handlers"
	"github.com/JaimeStill/sentio/pkg/routes"
)

// Handler provides HTTP endpoints for the review pipeline.
type Handler struct {
	sys    System
	logger *slog.Logger
}

// NewHandler creates a Handler with the given system and logger.
func NewHandler(sys System, logger *slog.Logger) *Handler {
	return &Handler{
		sys:    sys,
		logger: logger.With("handler", "staging"),
	}
}

// Routes returns the route group definition for staging endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/staging",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "", Handler: h.Stage},
			{Method: "GET", Pattern: "/pending", Handler: h.Pending},
			{Method: "GET", Pattern: "/statistics", Handler: h.Statistics},
			{Method: "POST", Pattern: "/{ref}/finalize", Handler: h.Finalize},
			{Method: "GET", Pattern: "/{ref}/download", Handler: h.Download},
			{Method: "GET", Pattern: "/{ref}/url", Handler: h.PreviewURL},
		},
	}
}

// Stage records an analyzer result for a file readable by the server.
func (h *Handler) Stage(w http.ResponseWriter, r *http.Request) {
	cmd, err := handlers.DecodeJSON[StageCommand](r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	rec, err := h.sys.Stage(r.Context(), cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, rec)
}

func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	records, err := h.sys.Pending(r.Context())
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	if records == nil {
		records = []Record{}
	}

	handlers.RespondJSON(w, http.StatusOK, records)
}

func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.sys.Statistics(r.Context())
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, stats)
}

// Finalize applies a reviewer decision to the staged file named by {ref}.
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	cmd, err := handlers.DecodeJSON[FinalizeCommand](r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}
	cmd.StagedFile = r.PathValue("ref")

	result, err := h.sys.Finalize(r.Context(), cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Download streams the staged copy of a pending record.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("ref")

	rc, err := h.sys.Download(r.Context(), ref)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	defer rc.Close()

	ct := mime.TypeByExtension(filepath.Ext(ref))
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("download interrupted", "staged_file", ref, "error", err)
	}
}

// PreviewURL returns {"url": ...}. The url is empty when the blob store
// has no remote URLs; clients fall back to the download endpoint.
func (h *Handler) PreviewURL(w http.ResponseWriter, r *http.Request) {
	url, err := h.sys.PreviewURL(r.Context(), r.PathValue("ref"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, map[string]string{"url": url})
}
