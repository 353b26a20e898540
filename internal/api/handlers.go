package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/maltedev/ever-scraper/internal/runner"
)

// StatusProvider reports the state of the current run.
type StatusProvider interface {
	Status() runner.Status
}

type Handlers struct {
	status StatusProvider
	logger *slog.Logger
}

func NewHandlers(status StatusProvider, logger *slog.Logger) *Handlers {
	return &Handlers{
		status: status,
		logger: logger,
	}
}

// Health reports liveness. An aborted run is reported but does not make the
// process unhealthy.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	st := h.status.Status()

	health := map[string]interface{}{
		"status":   "ok",
		"run_id":   st.RunID.String(),
		"finished": st.Finished,
	}
	if st.Error != "" {
		health["status"] = "degraded"
		health["message"] = st.Error
	}

	h.respondJSON(w, http.StatusOK, health)
}

// GetStatus returns the full run snapshot.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.status.Status())
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
