package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ashureev/betterme/internal/store"
)

const healthCheckTimeout = 5 * time.Second

// Root answers liveness checks hitting the bare host.
func (h *Handler) Root(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "better-me-backend"})
}

// Health returns the health status of the API and its dependencies.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{"status": "healthy", "checks": checks}
	statusCode := http.StatusOK

	if err := h.deps.Repo.Ping(ctx); err != nil {
		h.deps.Logger.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if p, ok := h.deps.States.(store.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			h.deps.Logger.Error("State store health check failed", "error", err)
			status["status"] = "degraded"
			checks["state_store"] = "unreachable"
			statusCode = http.StatusServiceUnavailable
		} else {
			checks["state_store"] = "ok"
		}
	}

	JSON(w, statusCode, status)
}
