package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/predictionamm/internal/domain"
)

// PipelineHandler lets operators request an archive run outside the
// schedule.
type PipelineHandler struct {
	logger    *slog.Logger
	triggerCh chan<- struct{}
}

// NewPipelineHandler creates a PipelineHandler. Sending on triggerCh asks
// the archive loop for one run; a nil channel means archiving is disabled.
func NewPipelineHandler(triggerCh chan<- struct{}, logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{logger: logger, triggerCh: triggerCh}
}

// TriggerArchive enqueues one archive run. A trigger that is already
// pending absorbs this one.
// POST /api/archive/trigger
func (h *PipelineHandler) TriggerArchive(w http.ResponseWriter, r *http.Request) {
	if h.triggerCh == nil {
		writeError(w, http.StatusNotFound, domain.KindNotFound, "archiving not configured")
		return
	}
	h.logger.InfoContext(r.Context(), "handler: archive trigger requested")
	select {
	case h.triggerCh <- struct{}{}:
	default:
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
