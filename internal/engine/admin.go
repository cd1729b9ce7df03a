package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alanyoungcy/predictionamm/internal/domain"
)

// Initialize records owner, zeroes the market counter and funds the house
// with its genesis allocation. It runs once per ledger.
func (e *Engine) Initialize(ctx context.Context, call Call) error {
	if err := requireCaller(call); err != nil {
		return fmt.Errorf("engine: initialize: %w", err)
	}
	return e.update(ctx, "initialize", func(l *ledger) error {
		_, err := l.owner()
		switch {
		case err == nil:
			return domain.ErrInitialized
		case !errors.Is(err, domain.ErrNotInitialized):
			return err
		}

		l.tx.Set(keyOwner, []byte(call.Caller))
		l.setUint(keyMarketCounter, 0)
		l.setUint(keyHouseBalance, domain.HouseInitialBalance)
		l.setUint(keyCustody, domain.HouseInitialBalance)

		return l.emit(e.event(call, domain.EventInitialized, 0,
			"Prediction market initialized",
			map[string]any{"owner": call.Caller, "house_balance": domain.HouseInitialBalance},
		))
	})
}

// AddAdmin grants addr permission to manage markets and the treasury.
// Owner only.
func (e *Engine) AddAdmin(ctx context.Context, call Call, addr string) error {
	addr = strings.TrimSpace(addr)
	return e.update(ctx, "add_admin", func(l *ledger) error {
		if err := authorize(l, call.Caller, false); err != nil {
			return err
		}
		if addr == "" {
			return domain.ErrEmptyAddress
		}
		l.tx.Set(adminKey(addr), []byte("true"))
		return l.emit(e.event(call, domain.EventAdminAdded, 0,
			"Admin added: "+addr, map[string]any{"address": addr}))
	})
}

// RemoveAdmin revokes addr. Removing an address that is not an admin
// succeeds and still records the event. Owner only.
func (e *Engine) RemoveAdmin(ctx context.Context, call Call, addr string) error {
	addr = strings.TrimSpace(addr)
	return e.update(ctx, "remove_admin", func(l *ledger) error {
		if err := authorize(l, call.Caller, false); err != nil {
			return err
		}
		if addr == "" {
			return domain.ErrEmptyAddress
		}
		l.tx.Delete(adminKey(addr))
		return l.emit(e.event(call, domain.EventAdminRemoved, 0,
			"Admin removed: "+addr, map[string]any{"address": addr}))
	})
}

// IsAdmin reports whether addr is in the admin set. The owner is not an
// admin unless explicitly added.
func (e *Engine) IsAdmin(ctx context.Context, addr string) (bool, error) {
	var ok bool
	err := e.view(ctx, "is_admin", func(l *ledger) error {
		var err error
		ok, err = l.isAdmin(addr)
		return err
	})
	return ok, err
}
