package domain

import (
	"fmt"
	"strings"
	"time"
)

// Amounts are expressed in the smallest currency unit (1 coin = 1e9 units).
const (
	Coin uint64 = 1_000_000_000

	// MinBetAmount is the smallest stake accepted by PlaceBet.
	MinBetAmount = 1 * Coin
	// HouseInitialBalance is the genesis allocation of the house treasury.
	HouseInitialBalance = 100 * Coin
	// VirtualLiquidity is added to both pools before pricing.
	VirtualLiquidity = 1000 * Coin
	// MinReserve is the treasury floor enforced on withdrawals only.
	MinReserve = HouseInitialBalance / 10

	HouseEdge = 0.05
	MinOdds   = 1.1
	MaxOdds   = 5.0
)

// MarketStatus represents the lifecycle state of a market. The only
// transition is Active -> Settled.
type MarketStatus uint8

const (
	MarketStatusActive  MarketStatus = 0
	MarketStatusSettled MarketStatus = 1
)

func (s MarketStatus) String() string {
	switch s {
	case MarketStatusActive:
		return "active"
	case MarketStatusSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// MarshalText renders the status as its lowercase name.
func (s MarketStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the lowercase status name.
func (s *MarketStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "active":
		*s = MarketStatusActive
	case "settled":
		*s = MarketStatusSettled
	default:
		return fmt.Errorf("%w: unknown market status %q", ErrInvalidInput, b)
	}
	return nil
}

// Side is the outcome a bettor stakes on.
type Side bool

const (
	SideYes Side = true
	SideNo  Side = false
)

func (s Side) String() string {
	if s {
		return "YES/OVER"
	}
	return "NO/UNDER"
}

// MarshalText renders the side as "yes" or "no".
func (s Side) MarshalText() ([]byte, error) {
	if s {
		return []byte("yes"), nil
	}
	return []byte("no"), nil
}

// ParseSide accepts yes/over/true and no/under/false, case-insensitively.
func ParseSide(v string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "over", "up", "true":
		return SideYes, nil
	case "no", "under", "down", "false":
		return SideNo, nil
	default:
		return SideNo, ErrInvalidSide
	}
}

// Market is one binary prediction question. Timestamps are unix
// milliseconds so records encode identically on every backend.
type Market struct {
	ID            uint64       `json:"id"`
	CreatedAt     int64        `json:"created_at"`
	SettleBy      int64        `json:"settle_by"`
	BettingCutoff int64        `json:"betting_cutoff"`
	Description   string       `json:"description"`
	TargetValue   uint64       `json:"target_value"`
	FinalValue    uint64       `json:"final_value"`
	YesPool       uint64       `json:"yes_pool"`
	NoPool        uint64       `json:"no_pool"`
	YesExposure   uint64       `json:"yes_exposure"`
	NoExposure    uint64       `json:"no_exposure"`
	Status        MarketStatus `json:"status"`
	YesWins       bool         `json:"yes_wins"`
}

// Pool returns the stake pool for side.
func (m Market) Pool(side Side) uint64 {
	if side == SideYes {
		return m.YesPool
	}
	return m.NoPool
}

// Exposure returns the accrued house liability for side.
func (m Market) Exposure(side Side) uint64 {
	if side == SideYes {
		return m.YesExposure
	}
	return m.NoExposure
}

// WinningSide is meaningful only once the market is settled.
func (m Market) WinningSide() Side {
	return Side(m.YesWins)
}

// BettingOpen reports whether a bet placed at now is accepted.
func (m Market) BettingOpen(now time.Time) bool {
	return m.Status == MarketStatusActive && now.UnixMilli() <= m.BettingCutoff
}

// UserBet aggregates one user's stakes on one market.
type UserBet struct {
	MarketID uint64 `json:"market_id"`
	User     string `json:"user"`
	YesStake uint64 `json:"yes_stake"`
	NoStake  uint64 `json:"no_stake"`
	Claimed  bool   `json:"claimed"`
}

// Stake returns the user's stake on side.
func (b UserBet) Stake(side Side) uint64 {
	if side == SideYes {
		return b.YesStake
	}
	return b.NoStake
}

// HouseStatus is the aggregate treasury view.
type HouseStatus struct {
	Balance          uint64  `json:"balance"`
	CustodyBalance   uint64  `json:"custody_balance"`
	MarketCount      uint64  `json:"market_count"`
	HouseEdge        float64 `json:"house_edge"`
	MinBet           uint64  `json:"min_bet"`
	VirtualLiquidity uint64  `json:"virtual_liquidity"`
	MinReserve       uint64  `json:"min_reserve"`
	Owner            string  `json:"owner"`
}

// OddsQuote previews both sides of a market for a hypothetical stake.
type OddsQuote struct {
	MarketID  uint64  `json:"market_id"`
	Stake     uint64  `json:"stake"`
	YesOdds   float64 `json:"yes_odds"`
	NoOdds    float64 `json:"no_odds"`
	YesPayout uint64  `json:"yes_payout"`
	NoPayout  uint64  `json:"no_payout"`
	YesPool   uint64  `json:"yes_pool"`
	NoPool    uint64  `json:"no_pool"`
}

// Transfer is an outgoing coin movement from custody to an address.
type Transfer struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}
