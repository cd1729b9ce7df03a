package engine

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/predictionamm/internal/amm"
	"github.com/alanyoungcy/predictionamm/internal/domain"
)

// BetReceipt is the result of a placed bet.
type BetReceipt struct {
	MarketID  uint64      `json:"market_id"`
	Side      domain.Side `json:"side"`
	Stake     uint64      `json:"stake"`
	Payout    uint64      `json:"potential_payout"`
	HouseRisk uint64      `json:"house_risk"`
}

// Claim is the result of a successful winnings claim.
type Claim struct {
	MarketID uint64          `json:"market_id"`
	Winnings uint64          `json:"winnings"`
	Transfer domain.Transfer `json:"transfer"`
}

// PlaceBet stakes call.Attached on side of market id. The payout is quoted
// from the pools as they stand before this bet, and the part of it not
// covered by the stake is added to the side's exposure. The bet is rejected
// when that exposure would exceed the whole house balance.
func (e *Engine) PlaceBet(ctx context.Context, call Call, id uint64, side domain.Side) (BetReceipt, error) {
	if err := requireCaller(call); err != nil {
		return BetReceipt{}, fmt.Errorf("engine: place bet: %w", err)
	}
	stake := call.Attached

	var out BetReceipt
	err := e.update(ctx, "place_bet", func(l *ledger) error {
		if stake < domain.MinBetAmount {
			return domain.ErrBelowMinBet
		}
		m, err := l.market(id)
		if err != nil {
			return err
		}
		if m.Status != domain.MarketStatusActive {
			return domain.ErrMarketInactive
		}
		if !m.BettingOpen(call.Now) {
			return domain.ErrBettingClosed
		}

		payout, err := amm.Quote(stake, side, m.YesPool, m.NoPool)
		if err != nil {
			return err
		}
		risk := amm.HouseRisk(stake, payout)

		balance, err := l.uint(keyHouseBalance)
		if err != nil {
			return err
		}
		exposure, err := add(m.Exposure(side), risk)
		if err != nil {
			return err
		}
		if exposure > balance {
			return domain.ErrHouseLiquidity
		}

		pool, err := add(m.Pool(side), stake)
		if err != nil {
			return err
		}
		if side == domain.SideYes {
			m.YesPool, m.YesExposure = pool, exposure
		} else {
			m.NoPool, m.NoExposure = pool, exposure
		}

		ub, _, err := l.bet(id, call.Caller)
		if err != nil {
			return err
		}
		if side == domain.SideYes {
			ub.YesStake, err = add(ub.YesStake, stake)
		} else {
			ub.NoStake, err = add(ub.NoStake, stake)
		}
		if err != nil {
			return err
		}

		newBalance, err := add(balance, stake)
		if err != nil {
			return err
		}
		custody, err := l.uint(keyCustody)
		if err != nil {
			return err
		}
		newCustody, err := add(custody, stake)
		if err != nil {
			return err
		}

		l.putMarket(m)
		l.putBet(ub)
		l.setUint(keyHouseBalance, newBalance)
		l.setUint(keyCustody, newCustody)

		out = BetReceipt{MarketID: id, Side: side, Stake: stake, Payout: payout, HouseRisk: risk}
		return l.emit(e.event(call, domain.EventBetPlaced, id,
			fmt.Sprintf("Bet placed: Market %d, User %s, %s, Amount %d, Potential payout %d", id, call.Caller, side, stake, payout),
			map[string]any{
				"side":             side,
				"stake":            stake,
				"potential_payout": payout,
				"house_risk":       risk,
			},
		))
	})
	if err != nil {
		return BetReceipt{}, err
	}
	return out, nil
}

// ClaimWinnings pays the caller's winnings on a settled market. Winnings
// are recomputed from the final pools with the caller's own winning stake
// taken back out, so they need not match the exposure debited at
// settlement. The payout leaves custody; the house balance is not touched.
func (e *Engine) ClaimWinnings(ctx context.Context, call Call, id uint64) (Claim, error) {
	if err := requireCaller(call); err != nil {
		return Claim{}, fmt.Errorf("engine: claim: %w", err)
	}

	var out Claim
	err := e.update(ctx, "claim_winnings", func(l *ledger) error {
		m, err := l.market(id)
		if err != nil {
			return err
		}
		if m.Status != domain.MarketStatusSettled {
			return domain.ErrNotSettled
		}
		ub, ok, err := l.bet(id, call.Caller)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrBetNotFound
		}

		win := m.WinningSide()
		stake := ub.Stake(win)
		if stake == 0 {
			return domain.ErrNoWinnings
		}
		yesPool, noPool := m.YesPool, m.NoPool
		if win == domain.SideYes {
			if yesPool < stake {
				return fmt.Errorf("engine: market %d yes pool %d below user stake %d", id, yesPool, stake)
			}
			yesPool -= stake
		} else {
			if noPool < stake {
				return fmt.Errorf("engine: market %d no pool %d below user stake %d", id, noPool, stake)
			}
			noPool -= stake
		}
		winnings, err := amm.Quote(stake, win, yesPool, noPool)
		if err != nil {
			return err
		}
		if winnings == 0 {
			return domain.ErrNoWinnings
		}

		claimed, err := l.claimed(id, call.Caller)
		if err != nil {
			return err
		}
		if claimed {
			return domain.ErrAlreadyClaimed
		}

		custody, err := l.uint(keyCustody)
		if err != nil {
			return err
		}
		if custody < winnings {
			return domain.ErrCustodyShortage
		}

		l.tx.Set(claimedKey(id, call.Caller), []byte("true"))
		l.setUint(keyCustody, custody-winnings)

		transfer := domain.Transfer{To: call.Caller, Amount: winnings}
		out = Claim{MarketID: id, Winnings: winnings, Transfer: transfer}
		return l.emit(e.event(call, domain.EventWinningsClaimed, id,
			fmt.Sprintf("Winnings claimed: Market %d, User %s, Amount %d", id, call.Caller, winnings),
			map[string]any{"winnings": winnings, "side": win, "stake": stake},
		))
	})
	if err != nil {
		return Claim{}, err
	}
	return out, nil
}

// GetUserBet returns user's stakes on market id. A user with no bet gets a
// zero record rather than an error.
func (e *Engine) GetUserBet(ctx context.Context, id uint64, user string) (domain.UserBet, error) {
	var ub domain.UserBet
	err := e.view(ctx, "get_user_bet", func(l *ledger) error {
		var err error
		ub, _, err = l.bet(id, user)
		if err != nil {
			return err
		}
		ub.Claimed, err = l.claimed(id, user)
		return err
	})
	return ub, err
}
