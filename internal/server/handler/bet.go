package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/predictionamm/internal/domain"
	"github.com/alanyoungcy/predictionamm/internal/engine"
	"github.com/alanyoungcy/predictionamm/internal/server/middleware"
)

// BetService is the part of the engine the betting endpoints use.
type BetService interface {
	PlaceBet(ctx context.Context, call engine.Call, id uint64, side domain.Side) (engine.BetReceipt, error)
	ClaimWinnings(ctx context.Context, call engine.Call, id uint64) (engine.Claim, error)
	GetUserBet(ctx context.Context, id uint64, user string) (domain.UserBet, error)
}

// BetHandler serves bet placement and claims.
type BetHandler struct {
	bets   BetService
	now    Clock
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(bets BetService, now Clock, logger *slog.Logger) *BetHandler {
	return &BetHandler{bets: bets, now: now, logger: logger}
}

type placeBetRequest struct {
	Side string `json:"side"`
	Amount
}

type betResponse struct {
	engine.BetReceipt
	OddsDecimal string `json:"odds_decimal"`
	PayoutCoins string `json:"potential_payout_coins"`
}

// PlaceBet stakes the attached amount on one side.
// POST /api/markets/{id}/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeEngineError(w, r, h.logger, "place bet", err)
		return
	}
	var req placeBetRequest
	if err := decodeBody(r, &req); err != nil {
		writeEngineError(w, r, h.logger, "place bet", err)
		return
	}
	side, err := domain.ParseSide(req.Side)
	if err != nil {
		writeEngineError(w, r, h.logger, "place bet", err)
		return
	}
	attached, err := req.Value()
	if err != nil {
		writeEngineError(w, r, h.logger, "place bet", err)
		return
	}
	receipt, err := h.bets.PlaceBet(r.Context(), call(r, h.now, attached), id, side)
	if err != nil {
		writeEngineError(w, r, h.logger, "place bet", err)
		return
	}
	writeJSON(w, http.StatusCreated, betResponse{
		BetReceipt:  receipt,
		OddsDecimal: odds(float64(receipt.Payout) / float64(receipt.Stake)),
		PayoutCoins: coins(receipt.Payout),
	})
}

// ClaimWinnings pays the caller's winnings on a settled market.
// POST /api/markets/{id}/claim
func (h *BetHandler) ClaimWinnings(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeEngineError(w, r, h.logger, "claim winnings", err)
		return
	}
	c, err := h.bets.ClaimWinnings(r.Context(), call(r, h.now, 0), id)
	if err != nil {
		writeEngineError(w, r, h.logger, "claim winnings", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// GetUserBet returns one user's stakes on a market.
// GET /api/markets/{id}/bets/{user}
func (h *BetHandler) GetUserBet(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeEngineError(w, r, h.logger, "get user bet", err)
		return
	}
	ub, err := h.bets.GetUserBet(r.Context(), id, middleware.NormalizeAddress(r.PathValue("user")))
	if err != nil {
		writeEngineError(w, r, h.logger, "get user bet", err)
		return
	}
	writeJSON(w, http.StatusOK, ub)
}
