package thresholds

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/JaimeStill/sentio/internal/labels"
	"github.com/JaimeStill/sentio/pkg/handlers"
	"github.com/JaimeStill/sentio/pkg/routes"
)

// FeedbackRequest is the body of a feedback post.
type FeedbackRequest struct {
	Score        float64      `json:"score"`
	AIPrediction labels.Label `json:"ai_prediction"`
	HumanAgrees  bool         `json:"human_agrees"`
}

// ValidateRequest is the body of a validation pre-check.
type ValidateRequest struct {
	Modality     string  `json:"modality"`
	Score        float64 `json:"score"`
	AIPrediction string  `json:"ai_prediction"`
}

// ValidateResponse reports the outcome of a validation pre-check.
type ValidateResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// Handler provides HTTP endpoints for the threshold tuner.
type Handler struct {
	tuner  *Tuner
	logger *slog.Logger
}

// NewHandler creates a Handler over tuner.
func NewHandler(tuner *Tuner, logger *slog.Logger) *Handler {
	return &Handler{
		tuner:  tuner,
		logger: logger.With("handler", "thresholds"),
	}
}

// Routes returns the route group definition for threshold endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/thresholds",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/summary", Handler: h.Summary},
			{Method: "POST", Pattern: "/validate", Handler: h.Validate},
			{Method: "GET", Pattern: "/{modality}", Handler: h.Suggested},
			{Method: "GET", Pattern: "/{modality}/statistics", Handler: h.Statistics},
			{Method: "GET", Pattern: "/{modality}/visualization", Handler: h.Visualization},
			{Method: "POST", Pattern: "/{modality}/feedback", Handler: h.Feedback},
			{Method: "POST", Pattern: "/{modality}/apply", Handler: h.Apply},
		},
	}
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	var mods []labels.Modality
	if q := r.URL.Query().Get("modality"); q != "" {
		mod, ok := labels.ParseModality(q)
		if !ok {
			handlers.RespondError(w, h.logger, http.StatusNotFound, fmt.Errorf("%w: %s", ErrUnknownModality, q))
			return
		}
		mods = append(mods, mod)
	}

	summary, err := h.tuner.Summary(mods...)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, summary)
}

// Validate runs ValidateFeedback without recording anything.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	req, err := handlers.DecodeJSON[ValidateRequest](r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	resp := ValidateResponse{Valid: true}
	if err := ValidateFeedback(req.Modality, req.Score, req.AIPrediction); err != nil {
		resp = ValidateResponse{Error: err.Error()}
	}
	handlers.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) Suggested(w http.ResponseWriter, r *http.Request) {
	mod, ok := h.modality(w, r)
	if !ok {
		return
	}

	suggestion, err := h.tuner.Suggested(mod)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, suggestion)
}

func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	mod, ok := h.modality(w, r)
	if !ok {
		return
	}

	stats, err := h.tuner.Statistics(mod)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, stats)
}

func (h *Handler) Visualization(w http.ResponseWriter, r *http.Request) {
	mod, ok := h.modality(w, r)
	if !ok {
		return
	}

	v, err := h.tuner.Visualization(mod)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, v)
}

// Feedback records one reviewed prediction. Rejected feedback is reported
// as recorded=false with status 200.
func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	mod, ok := h.modality(w, r)
	if !ok {
		return
	}

	req, err := handlers.DecodeJSON[FeedbackRequest](r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	recorded := h.tuner.RecordFeedback(r.Context(), mod, req.Score, req.AIPrediction, req.HumanAgrees)
	handlers.RespondJSON(w, http.StatusOK, map[string]bool{"recorded": recorded})
}

func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	mod, ok := h.modality(w, r)
	if !ok {
		return
	}

	applied, err := h.tuner.ApplyUpdate(r.Context(), mod)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	suggestion, _ := h.tuner.Suggested(mod)
	handlers.RespondJSON(w, http.StatusOK, map[string]any{
		"applied":   applied,
		"threshold": suggestion,
	})
}

func (h *Handler) modality(w http.ResponseWriter, r *http.Request) (labels.Modality, bool) {
	raw := r.PathValue("modality")
	mod, ok := labels.ParseModality(raw)
	if !ok {
		handlers.RespondError(w, h.logger, http.StatusNotFound, fmt.Errorf("%w: %s", ErrUnknownModality, raw))
	}
	return mod, ok
}
