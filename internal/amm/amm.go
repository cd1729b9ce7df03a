// Package amm prices binary bets against the current pool totals.
//
// Every function here is pure. Each floating-point step is wrapped in an
// explicit float64 conversion so the compiler may not fuse operations, and
// the final payout is truncated toward zero.
package amm

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/alanyoungcy/predictionamm/internal/domain"
)

// maxPayout is 2^64; any product at or above it does not fit in a uint64.
const maxPayout float64 = 1 << 64

// retained is the share of fair odds paid to the bettor.
var retained = float64(1.0) - float64(domain.HouseEdge)

// Multiplier returns the clamped payout multiple for a bet on side given the
// pool totals before the bet is added.
func Multiplier(side domain.Side, poolYes, poolNo uint64) (float64, error) {
	adjYes, c1 := bits.Add64(poolYes, domain.VirtualLiquidity, 0)
	adjNo, c2 := bits.Add64(poolNo, domain.VirtualLiquidity, 0)
	total, c3 := bits.Add64(adjYes, adjNo, 0)
	if c1|c2|c3 != 0 {
		return 0, fmt.Errorf("amm: adjusted pools: %w", domain.ErrOverflow)
	}

	own := adjNo
	if side == domain.SideYes {
		own = adjYes
	}

	p := float64(float64(own) / float64(total))
	fair := float64(1.0 / p)
	house := float64(fair * retained)
	return math.Max(domain.MinOdds, math.Min(domain.MaxOdds, house)), nil
}

// Quote returns the payout a bet of stake on side would receive.
func Quote(stake uint64, side domain.Side, poolYes, poolNo uint64) (uint64, error) {
	m, err := Multiplier(side, poolYes, poolNo)
	if err != nil {
		return 0, err
	}
	payout := float64(float64(stake) * m)
	if payout >= maxPayout {
		return 0, fmt.Errorf("amm: payout for stake %d: %w", stake, domain.ErrOverflow)
	}
	return uint64(payout), nil
}

// HouseRisk is the part of a payout not covered by the stake itself.
func HouseRisk(stake, payout uint64) uint64 {
	if payout <= stake {
		return 0
	}
	return payout - stake
}

// Preview quotes both sides of a market for a hypothetical stake. The odds
// are payout divided by stake, so they reflect the integer truncation.
func Preview(m domain.Market, stake uint64) (domain.OddsQuote, error) {
	if stake == 0 {
		return domain.OddsQuote{}, fmt.Errorf("amm: preview: %w", domain.ErrZeroAmount)
	}
	yes, err := Quote(stake, domain.SideYes, m.YesPool, m.NoPool)
	if err != nil {
		return domain.OddsQuote{}, err
	}
	no, err := Quote(stake, domain.SideNo, m.YesPool, m.NoPool)
	if err != nil {
		return domain.OddsQuote{}, err
	}
	return domain.OddsQuote{
		MarketID:  m.ID,
		Stake:     stake,
		YesOdds:   float64(yes) / float64(stake),
		NoOdds:    float64(no) / float64(stake),
		YesPayout: yes,
		NoPayout:  no,
		YesPool:   m.YesPool,
		NoPool:    m.NoPool,
	}, nil
}
