package handler

import (
	"net/http"

	"github.com/capitalize-ai/tutorchat/internal/model"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	session Session
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(session Session) *HealthHandler {
	return &HealthHandler{
		session: session,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready. The process is ready once the channel is open.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	status, err := h.session.Status(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "session stopped",
		})
		return
	}
	if status.State != model.StateConnected {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "channel " + string(status.State),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
