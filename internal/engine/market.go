package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/predictionamm/internal/amm"
	"github.com/alanyoungcy/predictionamm/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// CreateMarketParams describes a new market. Duration is measured from the
// call instant to the settlement deadline; CutoffOffset is how long before
// that deadline betting closes.
type CreateMarketParams struct {
	Description  string
	TargetValue  uint64
	Duration     time.Duration
	CutoffOffset time.Duration
}

// Settlement is the result of resolving a market.
type Settlement struct {
	MarketID      uint64 `json:"market_id"`
	YesWins       bool   `json:"yes_wins"`
	FinalValue    uint64 `json:"final_value"`
	PayoutDebited uint64 `json:"payout_debited"`
	HouseBalance  uint64 `json:"house_balance"`
	HousePnL      int64  `json:"house_pnl"`
}

// CreateMarket opens a new market and returns its id. Ids are assigned
// sequentially starting at 1. Owner or admin only.
func (e *Engine) CreateMarket(ctx context.Context, call Call, p CreateMarketParams) (uint64, error) {
	var id uint64
	err := e.update(ctx, "create_market", func(l *ledger) error {
		if err := authorize(l, call.Caller, true); err != nil {
			return err
		}

		desc := strings.TrimSpace(p.Description)
		if desc == "" {
			return domain.ErrEmptyDesc
		}
		durMs := p.Duration.Milliseconds()
		if durMs <= 0 {
			return domain.ErrBadDuration
		}
		offMs := p.CutoffOffset.Milliseconds()
		if offMs <= 0 {
			return domain.ErrBadCutoff
		}

		now := call.Now.UnixMilli()
		settleBy := now + durMs
		if settleBy < now {
			return fmt.Errorf("%w: settlement time", domain.ErrOverflow)
		}
		cutoff := settleBy - offMs
		if cutoff <= now {
			return domain.ErrCutoffInPast
		}

		counter, err := l.uint(keyMarketCounter)
		if err != nil {
			return err
		}
		id, err = add(counter, 1)
		if err != nil {
			return err
		}

		l.putMarket(domain.Market{
			ID:            id,
			CreatedAt:     now,
			SettleBy:      settleBy,
			BettingCutoff: cutoff,
			Description:   desc,
			TargetValue:   p.TargetValue,
			Status:        domain.MarketStatusActive,
		})
		l.setUint(keyMarketCounter, id)

		return l.emit(e.event(call, domain.EventMarketCreated, id,
			fmt.Sprintf("Market %d created: %q Target: %d, Ends: %d", id, desc, p.TargetValue, settleBy),
			map[string]any{
				"description":    desc,
				"target_value":   p.TargetValue,
				"settle_by":      settleBy,
				"betting_cutoff": cutoff,
			},
		))
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ResolveMarket settles market id against finalValue. YES wins when
// finalValue >= the market's target. The house is debited by the exposure
// accrued on the winning side, provided that side has any stake. Owner or
// admin only; resolution before the settlement deadline is permitted.
func (e *Engine) ResolveMarket(ctx context.Context, call Call, id uint64, finalValue uint64) (Settlement, error) {
	var out Settlement
	err := e.update(ctx, "resolve_market", func(l *ledger) error {
		if err := authorize(l, call.Caller, true); err != nil {
			return err
		}
		m, err := l.market(id)
		if err != nil {
			return err
		}
		if m.Status == domain.MarketStatusSettled {
			return domain.ErrAlreadySettled
		}

		m.YesWins = finalValue >= m.TargetValue
		m.FinalValue = finalValue
		m.Status = domain.MarketStatusSettled

		var payout uint64
		switch {
		case m.YesWins && m.YesPool > 0:
			payout = m.YesExposure
		case !m.YesWins && m.NoPool > 0:
			payout = m.NoExposure
		}

		before, err := l.uint(keyHouseBalance)
		if err != nil {
			return err
		}
		after := before
		if payout > 0 {
			if before < payout {
				return domain.ErrHousePayout
			}
			after = before - payout
		}
		l.setUint(keyHouseBalance, after)
		l.putMarket(m)

		// Wrapping arithmetic, reported as signed.
		pnl := int64(before + m.YesPool + m.NoPool - after - payout)

		out = Settlement{
			MarketID:      id,
			YesWins:       m.YesWins,
			FinalValue:    finalValue,
			PayoutDebited: payout,
			HouseBalance:  after,
			HousePnL:      pnl,
		}
		return l.emit(e.event(call, domain.EventMarketSettled, id,
			fmt.Sprintf("Market %d settled: Result %d, Winner %s, House P&L %d", id, finalValue, m.WinningSide(), pnl),
			map[string]any{
				"final_value":    finalValue,
				"yes_wins":       m.YesWins,
				"payout_debited": payout,
				"house_balance":  after,
				"house_pnl":      pnl,
			},
		))
	})
	if err != nil {
		return Settlement{}, err
	}
	return out, nil
}

// GetMarketDetails returns the full market record.
func (e *Engine) GetMarketDetails(ctx context.Context, id uint64) (domain.Market, error) {
	var m domain.Market
	err := e.view(ctx, "get_market", func(l *ledger) error {
		var err error
		m, err = l.market(id)
		return err
	})
	return m, err
}

// ListMarkets returns up to limit markets with id >= from in id order.
func (e *Engine) ListMarkets(ctx context.Context, from uint64, limit int) ([]domain.Market, error) {
	limit = clampLimit(limit)
	if from == 0 {
		from = 1
	}
	var out []domain.Market
	err := e.view(ctx, "list_markets", func(l *ledger) error {
		counter, err := l.uint(keyMarketCounter)
		if err != nil {
			return err
		}
		for id := from; id <= counter && len(out) < limit; id++ {
			m, err := l.market(id)
			if err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	return out, err
}

// GetAMMOdds previews both sides of market id for a hypothetical stake
// without mutating anything.
func (e *Engine) GetAMMOdds(ctx context.Context, id uint64, stake uint64) (domain.OddsQuote, error) {
	var q domain.OddsQuote
	err := e.view(ctx, "get_odds", func(l *ledger) error {
		m, err := l.market(id)
		if err != nil {
			return err
		}
		q, err = amm.Preview(m, stake)
		return err
	})
	return q, err
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// ParseMarketID parses a decimal market id.
func ParseMarketID(s string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: market id %q", domain.ErrInvalidInput, s)
	}
	return id, nil
}
