// Package engine implements the prediction market operations on top of an
// injected domain.KVStore.
//
// Every mutating operation runs inside a single KVStore.Update: it loads the
// records it needs, validates them, computes new values and writes them back.
// A rejected operation returns before anything is committed, so persisted
// state is exactly as it was before the call. Events recorded during the
// operation are committed with it and published to the configured sink only
// after the commit succeeds.
package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/predictionamm/internal/domain"
)

// Call carries the invocation context supplied by the environment: who is
// calling, the instant the call executes at, and the coins attached to it.
type Call struct {
	Caller   string
	Now      time.Time
	Attached uint64
}

// Observer is notified when an operation finishes.
type Observer interface {
	ObserveOperation(op string, kind domain.ErrorKind, elapsed time.Duration)
}

// Engine executes market operations.
type Engine struct {
	store    domain.KVStore
	sink     domain.EventSink
	observer Observer
	logger   *slog.Logger
	newID    func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithSink publishes committed events to sink.
func WithSink(sink domain.EventSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithObserver reports per-operation outcomes to o.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithIDFunc overrides event id generation.
func WithIDFunc(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// New creates an Engine backed by store.
func New(store domain.KVStore, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		logger: slog.Default(),
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// update runs fn in one store transaction and publishes the events it
// recorded once the transaction committed.
func (e *Engine) update(ctx context.Context, op string, fn func(l *ledger) error) (err error) {
	start := time.Now()
	defer func() { e.observe(ctx, op, start, err) }()

	var committed []domain.Event
	err = e.store.Update(ctx, func(tx domain.KVTx) error {
		l := &ledger{ctx: ctx, tx: tx}
		if err := fn(l); err != nil {
			return err
		}
		committed = l.events
		return nil
	})
	if err != nil {
		return err
	}
	e.publish(ctx, committed)
	return nil
}

// view runs fn against a read-only snapshot.
func (e *Engine) view(ctx context.Context, op string, fn func(l *ledger) error) (err error) {
	start := time.Now()
	defer func() { e.observe(ctx, op, start, err) }()

	return e.store.View(ctx, func(tx domain.KVTx) error {
		return fn(&ledger{ctx: ctx, tx: tx})
	})
}

func (e *Engine) observe(ctx context.Context, op string, start time.Time, err error) {
	kind := domain.KindOf(err)
	if e.observer != nil {
		e.observer.ObserveOperation(op, kind, time.Since(start))
	}
	if kind == domain.KindInternal {
		e.logger.ErrorContext(ctx, "engine: operation failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) publish(ctx context.Context, events []domain.Event) {
	for _, ev := range events {
		e.logger.InfoContext(ctx, ev.Message,
			slog.Uint64("seq", ev.Seq),
			slog.String("kind", string(ev.Kind)),
			slog.String("actor", ev.Actor),
		)
	}
	if e.sink == nil || len(events) == 0 {
		return
	}
	if err := e.sink.Publish(ctx, events); err != nil {
		e.logger.WarnContext(ctx, "engine: publish events failed",
			slog.String("sink", e.sink.Name()),
			slog.Int("count", len(events)),
			slog.String("error", err.Error()),
		)
	}
}

// event stamps a new event with the invocation's caller and clock.
func (e *Engine) event(call Call, kind domain.EventKind, marketID uint64, msg string, detail map[string]any) domain.Event {
	return domain.Event{
		ID:       e.newID(),
		Kind:     kind,
		MarketID: marketID,
		Actor:    call.Caller,
		At:       call.Now.UnixMilli(),
		Message:  msg,
		Detail:   detail,
	}
}

// authorize requires the caller to be the owner, or an admin when
// allowAdmin is set.
func authorize(l *ledger, caller string, allowAdmin bool) error {
	owner, err := l.owner()
	if err != nil {
		return err
	}
	if caller == owner {
		return nil
	}
	if !allowAdmin {
		return domain.ErrNotOwner
	}
	ok, err := l.isAdmin(caller)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotAdmin
	}
	return nil
}

func requireCaller(call Call) error {
	if strings.TrimSpace(call.Caller) == "" {
		return domain.ErrEmptyAddress
	}
	return nil
}
