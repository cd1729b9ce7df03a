// Package pipeline runs background jobs over the ledger.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/alanyoungcy/predictionamm/internal/domain"
)

// Archiver copies the event log and settled markets to cold storage, either
// once or on a cron schedule. It remembers where the previous run stopped;
// the first run resumes from what is already in the bucket.
type Archiver struct {
	blob   domain.Archiver
	logger *slog.Logger

	mu   sync.Mutex
	next uint64
}

// NewArchiver creates a new Archiver.
func NewArchiver(blob domain.Archiver, logger *slog.Logger) *Archiver {
	return &Archiver{
		blob:   blob,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// Run executes a single archive pass. Concurrent calls are serialized.
func (a *Archiver) Run(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	from := a.next
	a.logger.InfoContext(ctx, "starting archive run", slog.Uint64("from_seq", from))

	next, err := a.blob.ArchiveEvents(ctx, from)
	if next > a.next {
		a.next = next
	}
	if err != nil {
		return fmt.Errorf("pipeline: archive events from %d: %w", from, err)
	}

	markets, err := a.blob.ArchiveSettledMarkets(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: archive settled markets: %w", err)
	}

	a.logger.InfoContext(ctx, "archive run complete",
		slog.Uint64("next_seq", a.next),
		slog.Int64("markets_archived", markets),
	)
	return nil
}

// Next returns the seq the next run starts from. Zero means the cursor is
// recovered from storage.
func (a *Archiver) Next() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next
}

// RunCron runs the archiver on schedule until ctx is cancelled, plus once
// for every value received on trigger (which may be nil). schedule accepts
// the standard five-field syntax and descriptors such as "@every 10m". A
// failed run is logged and retried at the next tick.
func (a *Archiver) RunCron(ctx context.Context, schedule string, trigger <-chan struct{}) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() { a.runLogged(ctx) })
	if err != nil {
		return fmt.Errorf("pipeline: parse archive schedule %q: %w", schedule, err)
	}

	a.logger.InfoContext(ctx, "archiver cron started", slog.String("schedule", schedule))
	c.Start()
	defer func() {
		<-c.Stop().Done()
		a.logger.Info("archiver cron stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-trigger:
			a.runLogged(ctx)
		}
	}
}

func (a *Archiver) runLogged(ctx context.Context) {
	if err := a.Run(ctx); err != nil {
		a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
	}
}
