package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/predictionamm/internal/engine"
	"github.com/alanyoungcy/predictionamm/internal/server/middleware"
)

// AdminService is the part of the engine the access control endpoints use.
type AdminService interface {
	Initialize(ctx context.Context, call engine.Call) error
	AddAdmin(ctx context.Context, call engine.Call, addr string) error
	RemoveAdmin(ctx context.Context, call engine.Call, addr string) error
	IsAdmin(ctx context.Context, addr string) (bool, error)
}

// AdminHandler serves initialization and admin management.
type AdminHandler struct {
	admins AdminService
	now    Clock
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(admins AdminService, now Clock, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{admins: admins, now: now, logger: logger}
}

// Initialize makes the caller the owner and funds the house.
// POST /api/init
func (h *AdminHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	c := call(r, h.now, 0)
	if err := h.admins.Initialize(r.Context(), c); err != nil {
		writeEngineError(w, r, h.logger, "initialize", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"owner": c.Caller})
}

type adminRequest struct {
	Address string `json:"address"`
}

// AddAdmin grants admin rights.
// POST /api/admins
func (h *AdminHandler) AddAdmin(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if err := decodeBody(r, &req); err != nil {
		writeEngineError(w, r, h.logger, "add admin", err)
		return
	}
	addr := middleware.NormalizeAddress(req.Address)
	if err := h.admins.AddAdmin(r.Context(), call(r, h.now, 0), addr); err != nil {
		writeEngineError(w, r, h.logger, "add admin", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": addr, "admin": true})
}

// RemoveAdmin revokes admin rights.
// DELETE /api/admins/{address}
func (h *AdminHandler) RemoveAdmin(w http.ResponseWriter, r *http.Request) {
	addr := middleware.NormalizeAddress(r.PathValue("address"))
	if err := h.admins.RemoveAdmin(r.Context(), call(r, h.now, 0), addr); err != nil {
		writeEngineError(w, r, h.logger, "remove admin", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": addr, "admin": false})
}

// IsAdmin reports whether an address holds admin rights.
// GET /api/admins/{address}
func (h *AdminHandler) IsAdmin(w http.ResponseWriter, r *http.Request) {
	addr := middleware.NormalizeAddress(r.PathValue("address"))
	ok, err := h.admins.IsAdmin(r.Context(), addr)
	if err != nil {
		writeEngineError(w, r, h.logger, "is admin", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": addr, "admin": ok})
}
