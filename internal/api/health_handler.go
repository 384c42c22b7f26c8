package api

import (
	"net/http"

	"github.com/scan2target/scan2target/internal/health"
)

// HealthHandler serves the device reachability snapshot and the liveness
// endpoint.
type HealthHandler struct {
	monitor *health.Monitor
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(monitor *health.Monitor) *HealthHandler {
	return &HealthHandler{monitor: monitor}
}

// DeviceHealth handles GET /api/health/devices.
func (h *HealthHandler) DeviceHealth(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, h.monitor.Snapshot())
}

// Liveness handles GET /healthz.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
