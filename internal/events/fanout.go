// Package events delivers committed ledger events to every configured sink.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/predictionamm/internal/domain"
)

// Fanout is a domain.EventSink that forwards each batch to several sinks.
// A failing sink does not stop delivery to the others.
type Fanout struct {
	sinks  []domain.EventSink
	logger *slog.Logger
}

var _ domain.EventSink = (*Fanout)(nil)

// NewFanout creates a Fanout over sinks. Nil sinks are ignored.
func NewFanout(logger *slog.Logger, sinks ...domain.EventSink) *Fanout {
	f := &Fanout{logger: logger}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Add registers another sink.
func (f *Fanout) Add(s domain.EventSink) {
	if s != nil {
		f.sinks = append(f.sinks, s)
	}
}

// Name identifies the sink in logs.
func (f *Fanout) Name() string { return "fanout" }

// Len returns the number of registered sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

// Publish delivers events to every sink in registration order and returns
// the joined errors of the sinks that failed.
func (f *Fanout) Publish(ctx context.Context, events []domain.Event) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publish(ctx, events); err != nil {
			f.logger.WarnContext(ctx, "events: sink failed",
				slog.String("sink", s.Name()),
				slog.Int("count", len(events)),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
