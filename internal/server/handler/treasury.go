package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/predictionamm/internal/domain"
	"github.com/alanyoungcy/predictionamm/internal/engine"
)

// TreasuryService is the part of the engine the house endpoints use.
type TreasuryService interface {
	AddHouseFunds(ctx context.Context, call engine.Call) (uint64, error)
	WithdrawHouseFunds(ctx context.Context, call engine.Call, amount uint64) (engine.Withdrawal, error)
	GetHouseStatus(ctx context.Context) (domain.HouseStatus, error)
}

// TreasuryHandler serves house balance endpoints.
type TreasuryHandler struct {
	house  TreasuryService
	now    Clock
	logger *slog.Logger
}

// NewTreasuryHandler creates a TreasuryHandler.
func NewTreasuryHandler(house TreasuryService, now Clock, logger *slog.Logger) *TreasuryHandler {
	return &TreasuryHandler{house: house, now: now, logger: logger}
}

type houseResponse struct {
	domain.HouseStatus
	BalanceCoins string `json:"balance_coins"`
}

// GetStatus reports the house balance and pricing constants.
// GET /api/house
func (h *TreasuryHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.house.GetHouseStatus(r.Context())
	if err != nil {
		writeEngineError(w, r, h.logger, "get house status", err)
		return
	}
	writeJSON(w, http.StatusOK, houseResponse{HouseStatus: st, BalanceCoins: coins(st.Balance)})
}

// Deposit credits the attached amount to the house.
// POST /api/house/deposit
func (h *TreasuryHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req Amount
	if err := decodeBody(r, &req); err != nil {
		writeEngineError(w, r, h.logger, "add house funds", err)
		return
	}
	amount, err := req.Value()
	if err != nil {
		writeEngineError(w, r, h.logger, "add house funds", err)
		return
	}
	balance, err := h.house.AddHouseFunds(r.Context(), call(r, h.now, amount))
	if err != nil {
		writeEngineError(w, r, h.logger, "add house funds", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance": balance, "balance_coins": coins(balance)})
}

// Withdraw transfers house funds to the caller.
// POST /api/house/withdraw
func (h *TreasuryHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req Amount
	if err := decodeBody(r, &req); err != nil {
		writeEngineError(w, r, h.logger, "withdraw house funds", err)
		return
	}
	amount, err := req.Value()
	if err != nil {
		writeEngineError(w, r, h.logger, "withdraw house funds", err)
		return
	}
	wd, err := h.house.WithdrawHouseFunds(r.Context(), call(r, h.now, 0), amount)
	if err != nil {
		writeEngineError(w, r, h.logger, "withdraw house funds", err)
		return
	}
	writeJSON(w, http.StatusOK, wd)
}
