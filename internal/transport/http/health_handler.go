package http

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	"bibliocli/pkg/contracts"
)

// HealthHandler answers liveness probes
type HealthHandler struct {
	version string
	started time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{version: version, started: time.Now()}
}

// HealthCheck handles GET /healthz
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"status":         "healthy",
		"version":        h.version,
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"build":          contracts.GetVersionInfo(),
	})
}
