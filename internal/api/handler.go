// Package api serves the read-only status endpoints of a running job.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"cmutils/internal/health"
	"cmutils/internal/pipeline"
)

// ProgressSource supplies the current run snapshot.
type ProgressSource interface {
	Snapshot() pipeline.Snapshot
}

// Handler contains the status HTTP handlers.
type Handler struct {
	health   *health.Checker
	progress ProgressSource
}

// NewHandler creates a status handler.
func NewHandler(checker *health.Checker, progress ProgressSource) *Handler {
	return &Handler{health: checker, progress: progress}
}

// Livez handles GET /livez.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.health.Liveness(r.Context()))
}

// Readyz handles GET /readyz. It returns 503 when the runner is unavailable.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

// Status handles GET /status with the current run snapshot.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if h.progress == nil {
		writeError(w, http.StatusServiceUnavailable, "no run in progress")
		return
	}
	writeJSON(w, http.StatusOK, h.progress.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
