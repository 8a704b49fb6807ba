package reference

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/JaimeStill/sentio/internal/features"
	"github.com/JaimeStill/sentio/pkg/handlers"
	"github.com/JaimeStill/sentio/pkg/routes"
)

// AdjustmentRequest asks for the adjustment of one analyzer payload.
// BaseScore, when given, is returned adjusted and clamped.
type AdjustmentRequest struct {
	Features  features.Map `json:"features"`
	BaseScore *float64     `json:"base_score,omitempty"`
}

// AdjustmentResponse carries the adjustment and its explanation.
type AdjustmentResponse struct {
	Adjustment    float64  `json:"adjustment"`
	Details       Details  `json:"details"`
	AdjustedScore *float64 `json:"adjusted_score,omitempty"`
}

// Handler provides HTTP endpoints for the reference database.
type Handler struct {
	db     *Database
	logger *slog.Logger
}

// NewHandler creates a Handler over db.
func NewHandler(db *Database, logger *slog.Logger) *Handler {
	return &Handler{
		db:     db,
		logger: logger.With("handler", "reference"),
	}
}

// Routes returns the route group definition for reference endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/reference",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/statistics", Handler: h.Statistics},
			{Method: "POST", Pattern: "/adjustment", Handler: h.Adjustment},
		},
	}
}

// Statistics returns pool sizes and the activation status message.
func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	handlers.RespondJSON(w, http.StatusOK, h.db.Statistics())
}

// Adjustment computes the confidence adjustment for the posted features.
func (h *Handler) Adjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	adjustment, details := h.db.ConfidenceAdjustment(req.Features)
	resp := AdjustmentResponse{
		Adjustment: adjustment,
		Details:    details,
	}
	if req.BaseScore != nil {
		score := AdjustScore(*req.BaseScore, adjustment)
		resp.AdjustedScore = &score
	}

	handlers.RespondJSON(w, http.StatusOK, resp)
}
