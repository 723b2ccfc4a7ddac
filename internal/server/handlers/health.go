package handlers

import (
	"net/http"
	"time"
)

// Liveness answers GET / and GET /webhook without touching dependencies.
func (h *Handlers) Liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   ServiceName,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// Health reports degraded when the record store cannot be reached.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("store ping failed", "error", err)
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{
		"status":    status,
		"service":   ServiceName,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}
