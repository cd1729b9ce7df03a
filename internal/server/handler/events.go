package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/predictionamm/internal/domain"
)

// EventService lists the committed event log.
type EventService interface {
	ListEvents(ctx context.Context, from uint64, limit int) ([]domain.Event, error)
}

// EventHandler serves the audit trail.
type EventHandler struct {
	events EventService
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler. audit may be nil when no
// relational audit log is configured.
func NewEventHandler(events EventService, audit domain.AuditStore, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: events, audit: audit, logger: logger}
}

// ListEvents pages through ledger events by seq.
// GET /api/events?from=1&limit=50
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	from, err := queryUint(r, "from")
	if err != nil {
		writeEngineError(w, r, h.logger, "list events", err)
		return
	}
	events, err := h.events.ListEvents(r.Context(), from, queryLimit(r))
	if err != nil {
		writeEngineError(w, r, h.logger, "list events", err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// ListAudit queries the relational audit log by time range.
// GET /api/audit?since=RFC3339&until=RFC3339&limit=50&offset=0
func (h *EventHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusNotFound, domain.KindNotFound, "audit log not configured")
		return
	}
	opts := domain.ListOpts{Limit: effectiveLimit(queryLimit(r))}
	if off, err := queryUint(r, "offset"); err == nil {
		opts.Offset = int(off)
	}
	for name, dst := range map[string]**time.Time{"since": &opts.Since, "until": &opts.Until} {
		v := r.URL.Query().Get(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, domain.KindValidation, name+" must be RFC3339")
			return
		}
		*dst = &t
	}
	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		writeEngineError(w, r, h.logger, "list audit", err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
