package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/predictionamm/internal/domain"
	"github.com/alanyoungcy/predictionamm/internal/engine"
)

// MarketService is the part of the engine the market endpoints use.
type MarketService interface {
	CreateMarket(ctx context.Context, call engine.Call, p engine.CreateMarketParams) (uint64, error)
	ResolveMarket(ctx context.Context, call engine.Call, id uint64, finalValue uint64) (engine.Settlement, error)
	GetMarketDetails(ctx context.Context, id uint64) (domain.Market, error)
	ListMarkets(ctx context.Context, from uint64, limit int) ([]domain.Market, error)
	GetAMMOdds(ctx context.Context, id uint64, stake uint64) (domain.OddsQuote, error)
}

// MarketHandler serves market lifecycle endpoints.
type MarketHandler struct {
	markets MarketService
	now     Clock
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketService, now Clock, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, now: now, logger: logger}
}

type createMarketRequest struct {
	Description    string `json:"description"`
	TargetValue    uint64 `json:"target_value"`
	DurationMs     int64  `json:"duration_ms"`
	CutoffOffsetMs int64  `json:"cutoff_offset_ms"`
}

// CreateMarket opens a market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeEngineError(w, r, h.logger, "create market", err)
		return
	}
	id, err := h.markets.CreateMarket(r.Context(), call(r, h.now, 0), engine.CreateMarketParams{
		Description:  req.Description,
		TargetValue:  req.TargetValue,
		Duration:     time.Duration(req.DurationMs) * time.Millisecond,
		CutoffOffset: time.Duration(req.CutoffOffsetMs) * time.Millisecond,
	})
	if err != nil {
		writeEngineError(w, r, h.logger, "create market", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"market_id": id})
}

type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Next    uint64          `json:"next,omitempty"`
}

// ListMarkets pages through markets by id.
// GET /api/markets?from=1&limit=50
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	from, err := queryUint(r, "from")
	if err != nil {
		writeEngineError(w, r, h.logger, "list markets", err)
		return
	}
	limit := queryLimit(r)
	markets, err := h.markets.ListMarkets(r.Context(), from, limit)
	if err != nil {
		writeEngineError(w, r, h.logger, "list markets", err)
		return
	}
	resp := listMarketsResponse{Markets: markets}
	if resp.Markets == nil {
		resp.Markets = []domain.Market{}
	}
	if n := len(markets); n > 0 && n == effectiveLimit(limit) {
		resp.Next = markets[n-1].ID + 1
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetMarket returns one market.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeEngineError(w, r, h.logger, "get market", err)
		return
	}
	m, err := h.markets.GetMarketDetails(r.Context(), id)
	if err != nil {
		writeEngineError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type oddsResponse struct {
	domain.OddsQuote
	YesOddsDecimal string `json:"yes_odds_decimal"`
	NoOddsDecimal  string `json:"no_odds_decimal"`
	YesPayoutCoins string `json:"yes_payout_coins"`
	NoPayoutCoins  string `json:"no_payout_coins"`
}

// GetOdds quotes both sides for a stake, defaulting to one coin.
// GET /api/markets/{id}/odds?stake=1000000000
func (h *MarketHandler) GetOdds(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeEngineError(w, r, h.logger, "get odds", err)
		return
	}
	stake, err := queryUint(r, "stake")
	if err != nil {
		writeEngineError(w, r, h.logger, "get odds", err)
		return
	}
	if stake == 0 {
		stake = domain.Coin
	}
	q, err := h.markets.GetAMMOdds(r.Context(), id, stake)
	if err != nil {
		writeEngineError(w, r, h.logger, "get odds", err)
		return
	}
	writeJSON(w, http.StatusOK, oddsResponse{
		OddsQuote:      q,
		YesOddsDecimal: odds(q.YesOdds),
		NoOddsDecimal:  odds(q.NoOdds),
		YesPayoutCoins: coins(q.YesPayout),
		NoPayoutCoins:  coins(q.NoPayout),
	})
}

type resolveRequest struct {
	FinalValue uint64 `json:"final_value"`
}

// ResolveMarket settles a market with the observed value.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeEngineError(w, r, h.logger, "resolve market", err)
		return
	}
	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		writeEngineError(w, r, h.logger, "resolve market", err)
		return
	}
	s, err := h.markets.ResolveMarket(r.Context(), call(r, h.now, 0), id, req.FinalValue)
	if err != nil {
		writeEngineError(w, r, h.logger, "resolve market", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func effectiveLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 500:
		return 500
	default:
		return limit
	}
}
