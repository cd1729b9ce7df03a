package engine

import (
	"context"
	"fmt"
	"math/bits"

	"github.com/alanyoungcy/predictionamm/internal/codec"
	"github.com/alanyoungcy/predictionamm/internal/domain"
)

// ledger wraps one KVTx with typed record accessors. Events appended during
// the invocation are collected so they can be published after commit.
type ledger struct {
	ctx    context.Context
	tx     domain.KVTx
	events []domain.Event
}

func (l *ledger) uint(key string) (uint64, error) {
	b, ok, err := l.tx.Get(l.ctx, key)
	if err != nil {
		return 0, fmt.Errorf("engine: read %s: %w", key, err)
	}
	if !ok {
		return 0, nil
	}
	v, err := codec.DecodeUint64(b)
	if err != nil {
		return 0, fmt.Errorf("engine: read %s: %w", key, err)
	}
	return v, nil
}

func (l *ledger) setUint(key string, v uint64) {
	l.tx.Set(key, codec.EncodeUint64(v))
}

func (l *ledger) owner() (string, error) {
	b, ok, err := l.tx.Get(l.ctx, keyOwner)
	if err != nil {
		return "", fmt.Errorf("engine: read owner: %w", err)
	}
	if !ok {
		return "", domain.ErrNotInitialized
	}
	return string(b), nil
}

func (l *ledger) isAdmin(addr string) (bool, error) {
	ok, err := l.tx.Has(l.ctx, adminKey(addr))
	if err != nil {
		return false, fmt.Errorf("engine: read admin: %w", err)
	}
	return ok, nil
}

func (l *ledger) market(id uint64) (domain.Market, error) {
	b, ok, err := l.tx.Get(l.ctx, marketKey(id))
	if err != nil {
		return domain.Market{}, fmt.Errorf("engine: read market %d: %w", id, err)
	}
	if !ok {
		return domain.Market{}, fmt.Errorf("%w: id %d", domain.ErrMarketNotFound, id)
	}
	m, err := codec.DecodeMarket(b)
	if err != nil {
		return domain.Market{}, fmt.Errorf("engine: read market %d: %w", id, err)
	}
	return m, nil
}

func (l *ledger) putMarket(m domain.Market) {
	l.tx.Set(marketKey(m.ID), codec.EncodeMarket(m))
}

// bet returns the stake aggregate and whether a record exists.
func (l *ledger) bet(marketID uint64, user string) (domain.UserBet, bool, error) {
	b, ok, err := l.tx.Get(l.ctx, betKey(marketID, user))
	if err != nil {
		return domain.UserBet{}, false, fmt.Errorf("engine: read bet: %w", err)
	}
	if !ok {
		return domain.UserBet{MarketID: marketID, User: user}, false, nil
	}
	ub, err := codec.DecodeUserBet(b)
	if err != nil {
		return domain.UserBet{}, false, fmt.Errorf("engine: read bet: %w", err)
	}
	return ub, true, nil
}

func (l *ledger) putBet(ub domain.UserBet) {
	l.tx.Set(betKey(ub.MarketID, ub.User), codec.EncodeUserBet(ub))
}

func (l *ledger) claimed(marketID uint64, user string) (bool, error) {
	ok, err := l.tx.Has(l.ctx, claimedKey(marketID, user))
	if err != nil {
		return false, fmt.Errorf("engine: read claimed flag: %w", err)
	}
	return ok, nil
}

// emit appends an event under the next sequence number.
func (l *ledger) emit(e domain.Event) error {
	seq, err := l.uint(keyEventCounter)
	if err != nil {
		return err
	}
	seq++
	e.Seq = seq
	b, err := codec.EncodeEvent(e)
	if err != nil {
		return fmt.Errorf("engine: emit %s: %w", e.Kind, err)
	}
	l.tx.Set(eventKey(seq), b)
	l.setUint(keyEventCounter, seq)
	l.events = append(l.events, e)
	return nil
}

func (l *ledger) event(seq uint64) (domain.Event, bool, error) {
	b, ok, err := l.tx.Get(l.ctx, eventKey(seq))
	if err != nil || !ok {
		return domain.Event{}, ok, err
	}
	e, err := codec.DecodeEvent(b)
	if err != nil {
		return domain.Event{}, false, fmt.Errorf("engine: read event %d: %w", seq, err)
	}
	return e, true, nil
}

func add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, domain.ErrOverflow
	}
	return sum, nil
}
