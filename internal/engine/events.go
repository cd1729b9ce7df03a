package engine

import (
	"context"

	"github.com/alanyoungcy/predictionamm/internal/domain"
)

// ListEvents returns up to limit committed events with seq >= from.
func (e *Engine) ListEvents(ctx context.Context, from uint64, limit int) ([]domain.Event, error) {
	limit = clampLimit(limit)
	if from == 0 {
		from = 1
	}
	var out []domain.Event
	err := e.view(ctx, "list_events", func(l *ledger) error {
		last, err := l.uint(keyEventCounter)
		if err != nil {
			return err
		}
		for seq := from; seq <= last && len(out) < limit; seq++ {
			ev, ok, err := l.event(seq)
			if err != nil {
				return err
			}
			if ok {
				out = append(out, ev)
			}
		}
		return nil
	})
	return out, err
}
