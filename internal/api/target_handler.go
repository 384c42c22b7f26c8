package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/scan2target/scan2target/internal/deliver"
	"github.com/scan2target/scan2target/internal/domain"
	"github.com/scan2target/scan2target/internal/store"
)

// TargetResponse is the target representation returned by the API. Config
// is omitted because it holds credentials.
type TargetResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

// TargetHandler handles delivery-target HTTP requests.
type TargetHandler struct {
	targets store.TargetStore
	manager *deliver.Manager
	logger  *slog.Logger
}

// NewTargetHandler creates a TargetHandler.
func NewTargetHandler(targets store.TargetStore, manager *deliver.Manager, logger *slog.Logger) *TargetHandler {
	return &TargetHandler{
		targets: targets,
		manager: manager,
		logger:  logger.With("component", "api"),
	}
}

// ListTargets handles GET /api/targets.
func (h *TargetHandler) ListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := h.targets.ListTargets(r.Context())
	if err != nil {
		h.logger.Error("failed to list targets", "error", err)
		RespondWithError(w, http.StatusInternalServerError, "failed to list targets")
		return
	}
	responses := make([]TargetResponse, 0, len(targets))
	for _, target := range targets {
		responses = append(responses, TargetResponse{
			ID:      target.ID,
			Name:    target.Name,
			Type:    string(target.Type),
			Enabled: target.Enabled,
		})
	}
	RespondWithJSON(w, http.StatusOK, responses)
}

// TestTarget handles POST /api/targets/{id}/test: a connectivity probe of a
// saved target.
func (h *TargetHandler) TestTarget(w http.ResponseWriter, r *http.Request) {
	result := h.manager.Test(r.Context(), chi.URLParam(r, "id"))
	RespondWithJSON(w, http.StatusOK, result)
}

// ValidateTarget handles POST /api/targets/validate: a probe of an unsaved
// target configuration.
func (h *TargetHandler) ValidateTarget(w http.ResponseWriter, r *http.Request) {
	var target domain.Target
	if err := DecodeJSON(r, &target); err != nil {
		RespondWithError(w, http.StatusBadRequest, "invalid request format")
		return
	}
	result := h.manager.Validate(r.Context(), &target)
	RespondWithJSON(w, http.StatusOK, result)
}
