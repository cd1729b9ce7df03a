package engine

import (
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/alanyoungcy/predictionamm/internal/amm"
	"github.com/alanyoungcy/predictionamm/internal/domain"
)

func TestResolveMarket_TieGoesToYes(t *testing.T) {
	h := newHarness(t)
	id := h.hourMarket(500)
	h.bet(alice, id, domain.SideYes, 100)

	s, err := h.eng.ResolveMarket(h.ctx, at(owner, t0.Add(2*time.Hour), 0), id, 500)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !s.YesWins || s.FinalValue != 500 || s.PayoutDebited != 90*domain.Coin {
		t.Fatalf("settlement=%+v", s)
	}
	if s.HouseBalance != 110*domain.Coin || s.HousePnL != int64(100*domain.Coin) {
		t.Fatalf("balance=%d pnl=%d", s.HouseBalance, s.HousePnL)
	}

	m := h.market(id)
	if m.Status != domain.MarketStatusSettled || !m.YesWins || m.FinalValue != 500 {
		t.Fatalf("market=%+v", m)
	}
	if hs := h.house(); hs.Balance != 110*domain.Coin || hs.CustodyBalance != 200*domain.Coin {
		t.Fatalf("balance=%d custody=%d", hs.Balance, hs.CustodyBalance)
	}
}

func TestResolveMarket_WinningSideWithoutStake(t *testing.T) {
	h := newHarness(t)
	id := h.hourMarket(500)
	h.bet(alice, id, domain.SideYes, 100)

	s, err := h.eng.ResolveMarket(h.ctx, at(owner, t0, 0), id, 499)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if s.YesWins || s.PayoutDebited != 0 || s.HouseBalance != 200*domain.Coin {
		t.Fatalf("settlement=%+v", s)
	}
}

func TestResolveMarket_Rejections(t *testing.T) {
	h := newHarness(t)
	id := h.hourMarket(500)

	h.unchanged(domain.ErrNotAdmin, func() error {
		_, err := h.eng.ResolveMarket(h.ctx, at(alice, t0, 0), id, 1)
		return err
	})
	h.unchanged(domain.ErrMarketNotFound, func() error {
		_, err := h.eng.ResolveMarket(h.ctx, at(owner, t0, 0), id+1, 1)
		return err
	})

	if _, err := h.eng.ResolveMarket(h.ctx, at(owner, t0, 0), id, 1); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	h.unchanged(domain.ErrAlreadySettled, func() error {
		_, err := h.eng.ResolveMarket(h.ctx, at(owner, t0, 0), id, 1000)
		return err
	})
	if m := h.market(id); m.FinalValue != 1 || m.YesWins {
		t.Fatalf("settled market changed: %+v", m)
	}
}

func TestResolveMarket_InsufficientBalance(t *testing.T) {
	h := newHarness(t)
	id := h.hourMarket(500)
	h.bet(alice, id, domain.SideYes, 100)

	// Draw the house down to its reserve after the exposure was accepted.
	w, err := h.eng.WithdrawHouseFunds(h.ctx, at(owner, t0, 0), 190*domain.Coin)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if w.Balance != domain.MinReserve {
		t.Fatalf("balance=%d want %d", w.Balance, domain.MinReserve)
	}

	h.unchanged(domain.ErrHousePayout, func() error {
		_, err := h.eng.ResolveMarket(h.ctx, at(owner, t0, 0), id, 900)
		if domain.KindOf(err) != domain.KindSolvency {
			t.Errorf("kind=%s want solvency", domain.KindOf(err))
		}
		return err
	})
	if m := h.market(id); m.Status != domain.MarketStatusActive {
		t.Fatalf("status=%s want active", m.Status)
	}
}

func TestClaimWinnings(t *testing.T) {
	h := newHarness(t)
	id := h.hourMarket(500)
	h.bet(alice, id, domain.SideYes, 100)
	h.bet(bob, id, domain.SideNo, 50)

	h.unchanged(domain.ErrNotSettled, func() error {
		_, err := h.eng.ClaimWinnings(h.ctx, at(alice, t0, 0), id)
		return err
	})

	if _, err := h.eng.ResolveMarket(h.ctx, at(owner, t0, 0), id, 777); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	balance := h.house().Balance
	custody := h.house().CustodyBalance

	want, err := amm.Quote(100*domain.Coin, domain.SideYes, 0, 50*domain.Coin)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	c, err := h.eng.ClaimWinnings(h.ctx, at(alice, t0, 0), id)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if c.Winnings != want || c.Transfer.To != alice || c.Transfer.Amount != want {
		t.Fatalf("claim=%+v want winnings %d", c, want)
	}

	hs := h.house()
	if hs.Balance != balance {
		t.Fatalf("claim moved the house balance from %d to %d", balance, hs.Balance)
	}
	if hs.CustodyBalance != custody-want {
		t.Fatalf("custody=%d want %d", hs.CustodyBalance, custody-want)
	}
	if ub, _ := h.eng.GetUserBet(h.ctx, id, alice); !ub.Claimed {
		t.Fatal("claimed flag not set")
	}

	h.unchanged(domain.ErrAlreadyClaimed, func() error {
		_, err := h.eng.ClaimWinnings(h.ctx, at(alice, t0, 0), id)
		if domain.KindOf(err) != domain.KindState {
			t.Errorf("kind=%s want state", domain.KindOf(err))
		}
		return err
	})
	h.unchanged(domain.ErrNoWinnings, func() error {
		_, err := h.eng.ClaimWinnings(h.ctx, at(bob, t0, 0), id)
		return err
	})
	h.unchanged(domain.ErrBetNotFound, func() error {
		_, err := h.eng.ClaimWinnings(h.ctx, at(carol, t0, 0), id)
		return err
	})
	h.unchanged(domain.ErrMarketNotFound, func() error {
		_, err := h.eng.ClaimWinnings(h.ctx, at(alice, t0, 0), id+1)
		return err
	})
}

// A caller whose name extends another caller's name must not share any
// record with them.
func TestClaimWinnings_SuffixedCallerIsSeparate(t *testing.T) {
	h := newHarness(t)
	id := h.hourMarket(500)
	lookalike := alice + "_claimed"
	h.bet(alice, id, domain.SideYes, 10)
	h.bet(lookalike, id, domain.SideNo, 1)

	if ub, err := h.eng.GetUserBet(h.ctx, id, alice); err != nil || ub.Claimed {
		t.Fatalf("alice before claim: bet=%+v err=%v", ub, err)
	}
	if _, err := h.eng.ResolveMarket(h.ctx, at(owner, t0, 0), id, 500); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	c, err := h.eng.ClaimWinnings(h.ctx, at(alice, t0, 0), id)
	if err != nil {
		t.Fatalf("alice claim: %v", err)
	}
	if c.Winnings == 0 {
		t.Fatalf("claim=%+v", c)
	}

	ub, err := h.eng.GetUserBet(h.ctx, id, lookalike)
	if err != nil {
		t.Fatalf("lookalike bet after alice claimed: %v", err)
	}
	if ub.NoStake != domain.Coin || ub.YesStake != 0 || ub.Claimed {
		t.Fatalf("lookalike bet=%+v", ub)
	}
	h.unchanged(domain.ErrNoWinnings, func() error {
		_, err := h.eng.ClaimWinnings(h.ctx, at(lookalike, t0, 0), id)
		return err
	})
}

func TestStorageKeysDoNotAlias(t *testing.T) {
	keys := map[string]string{}
	for _, user := range []string{alice, alice + "_claimed", "claimed", "1_" + alice} {
		for _, id := range []uint64{1, 11} {
			for _, k := range []string{betKey(id, user), claimedKey(id, user)} {
				tag := fmt.Sprintf("%d/%s", id, user)
				if prev, ok := keys[k]; ok {
					t.Fatalf("key %q used by %s and %s", k, prev, tag)
				}
				keys[k] = tag
			}
		}
	}
}

// Settlement debits the exposure accrued at bet time while each claim is
// quoted again from the final pools. The two figures are expected to
// disagree.
func TestSettlementAndClaimsDoNotReconcile(t *testing.T) {
	h := newHarness(t)
	if _, err := h.eng.AddHouseFunds(h.ctx, at(owner, t0, 200*domain.Coin)); err != nil {
		t.Fatalf("add funds: %v", err)
	}
	id := h.hourMarket(500)
	first := h.bet(alice, id, domain.SideYes, 100)
	second := h.bet(bob, id, domain.SideYes, 100)

	s, err := h.eng.ResolveMarket(h.ctx, at(owner, t0, 0), id, 600)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if s.PayoutDebited != first.HouseRisk+second.HouseRisk {
		t.Fatalf("debited=%d want accrued exposure %d", s.PayoutDebited, first.HouseRisk+second.HouseRisk)
	}

	ca, err := h.eng.ClaimWinnings(h.ctx, at(alice, t0, 0), id)
	if err != nil {
		t.Fatalf("alice claim: %v", err)
	}
	cb, err := h.eng.ClaimWinnings(h.ctx, at(bob, t0, 0), id)
	if err != nil {
		t.Fatalf("bob claim: %v", err)
	}

	// Alice was quoted against empty pools but is paid against the pool
	// that includes Bob's stake.
	if ca.Winnings == first.Payout {
		t.Fatalf("alice winnings %d unexpectedly equal the bet-time quote", ca.Winnings)
	}
	if ca.Winnings != cb.Winnings || cb.Winnings != second.Payout {
		t.Fatalf("winnings alice=%d bob=%d bob quote=%d", ca.Winnings, cb.Winnings, second.Payout)
	}
	paid := ca.Winnings + cb.Winnings
	if paid == s.PayoutDebited {
		t.Fatalf("claims %d reconcile with settlement debit", paid)
	}
}

// Every accepted bet adds its stake to the house and every settlement
// removes the winning side's exposure; rejected calls leave state as is.
func TestHouseBalanceAccounting(t *testing.T) {
	h := newHarness(t)
	rng := rand.New(rand.NewSource(7))
	users := []string{alice, bob, carol}

	expected := domain.HouseInitialBalance
	var open []uint64
	for round := 0; round < 200; round++ {
		switch op := rng.Intn(10); {
		case op < 2 || len(open) == 0:
			open = append(open, h.hourMarket(uint64(rng.Intn(1000))))
		case op < 8:
			id := open[rng.Intn(len(open))]
			side := domain.Side(rng.Intn(2) == 0)
			stake := uint64(1+rng.Intn(80)) * domain.Coin
			before := h.store.Snapshot()
			r, err := h.eng.PlaceBet(h.ctx, at(users[rng.Intn(len(users))], t0, stake), id, side)
			switch {
			case err == nil:
				expected += r.Stake
			case errors.Is(err, domain.ErrHouseLiquidity):
				if !reflect.DeepEqual(before, h.store.Snapshot()) {
					t.Fatalf("round %d: rejected bet changed state", round)
				}
			default:
				t.Fatalf("round %d: place bet: %v", round, err)
			}
		default:
			i := rng.Intn(len(open))
			s, err := h.eng.ResolveMarket(h.ctx, at(owner, t0, 0), open[i], uint64(rng.Intn(1000)))
			if errors.Is(err, domain.ErrHousePayout) {
				continue
			}
			if err != nil {
				t.Fatalf("round %d: resolve: %v", round, err)
			}
			expected -= s.PayoutDebited
			open = append(open[:i], open[i+1:]...)
		}

		if got := h.house().Balance; got != expected {
			t.Fatalf("round %d: balance=%d want %d", round, got, expected)
		}
	}
}
