package engine

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/predictionamm/internal/domain"
)

// Withdrawal is the result of a treasury withdrawal.
type Withdrawal struct {
	Balance  uint64          `json:"balance"`
	Transfer domain.Transfer `json:"transfer"`
}

// AddHouseFunds credits call.Attached to the house and returns the new
// balance. Owner or admin only.
func (e *Engine) AddHouseFunds(ctx context.Context, call Call) (uint64, error) {
	var balance uint64
	err := e.update(ctx, "add_house_funds", func(l *ledger) error {
		if err := authorize(l, call.Caller, true); err != nil {
			return err
		}
		if call.Attached == 0 {
			return domain.ErrZeroAmount
		}

		current, err := l.uint(keyHouseBalance)
		if err != nil {
			return err
		}
		balance, err = add(current, call.Attached)
		if err != nil {
			return err
		}
		custody, err := l.uint(keyCustody)
		if err != nil {
			return err
		}
		custody, err = add(custody, call.Attached)
		if err != nil {
			return err
		}
		l.setUint(keyHouseBalance, balance)
		l.setUint(keyCustody, custody)

		return l.emit(e.event(call, domain.EventHouseFundsAdded, 0,
			fmt.Sprintf("House funds added: %d, New balance: %d", call.Attached, balance),
			map[string]any{"amount": call.Attached, "balance": balance},
		))
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// WithdrawHouseFunds pays amount from the house to the caller. The house
// must keep at least MinReserve afterwards. Owner or admin only.
func (e *Engine) WithdrawHouseFunds(ctx context.Context, call Call, amount uint64) (Withdrawal, error) {
	var out Withdrawal
	err := e.update(ctx, "withdraw_house_funds", func(l *ledger) error {
		if err := authorize(l, call.Caller, true); err != nil {
			return err
		}
		if amount == 0 {
			return domain.ErrZeroAmount
		}

		current, err := l.uint(keyHouseBalance)
		if err != nil {
			return err
		}
		if amount > current {
			return domain.ErrHouseBalance
		}
		if current-amount < domain.MinReserve {
			return domain.ErrBelowReserve
		}
		custody, err := l.uint(keyCustody)
		if err != nil {
			return err
		}
		if custody < amount {
			return domain.ErrCustodyShortage
		}

		balance := current - amount
		l.setUint(keyHouseBalance, balance)
		l.setUint(keyCustody, custody-amount)

		out = Withdrawal{Balance: balance, Transfer: domain.Transfer{To: call.Caller, Amount: amount}}
		return l.emit(e.event(call, domain.EventHouseFundsWithdrawn, 0,
			fmt.Sprintf("House funds withdrawn: %d, Remaining balance: %d", amount, balance),
			map[string]any{"amount": amount, "balance": balance},
		))
	})
	if err != nil {
		return Withdrawal{}, err
	}
	return out, nil
}

// GetHouseStatus returns the aggregate treasury view.
func (e *Engine) GetHouseStatus(ctx context.Context) (domain.HouseStatus, error) {
	var hs domain.HouseStatus
	err := e.view(ctx, "get_house_status", func(l *ledger) error {
		owner, err := l.owner()
		if err != nil {
			return err
		}
		balance, err := l.uint(keyHouseBalance)
		if err != nil {
			return err
		}
		custody, err := l.uint(keyCustody)
		if err != nil {
			return err
		}
		count, err := l.uint(keyMarketCounter)
		if err != nil {
			return err
		}
		hs = domain.HouseStatus{
			Balance:          balance,
			CustodyBalance:   custody,
			MarketCount:      count,
			HouseEdge:        domain.HouseEdge,
			MinBet:           domain.MinBetAmount,
			VirtualLiquidity: domain.VirtualLiquidity,
			MinReserve:       domain.MinReserve,
			Owner:            owner,
		}
		return nil
	})
	return hs, err
}
