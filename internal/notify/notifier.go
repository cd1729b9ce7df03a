// Package notify forwards selected ledger events to chat channels so
// operators see settlements and treasury movements as they happen.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/predictionamm/internal/domain"
)

// Sender delivers one notification to a channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// DefaultKinds are the event kinds forwarded when none are configured.
var DefaultKinds = []domain.EventKind{
	domain.EventMarketSettled,
	domain.EventHouseFundsAdded,
	domain.EventHouseFundsWithdrawn,
}

// Notifier is a domain.EventSink that sends events of the allowed kinds to
// every sender.
type Notifier struct {
	senders []Sender
	kinds   map[domain.EventKind]bool
	logger  *slog.Logger
}

var _ domain.EventSink = (*Notifier)(nil)

// NewNotifier creates a Notifier. An empty kinds list selects DefaultKinds.
func NewNotifier(senders []Sender, kinds []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventKind]bool)
	for _, k := range kinds {
		if k = strings.TrimSpace(k); k != "" {
			allowed[domain.EventKind(k)] = true
		}
	}
	if len(allowed) == 0 {
		for _, k := range DefaultKinds {
			allowed[k] = true
		}
	}
	return &Notifier{
		senders: senders,
		kinds:   allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Name identifies the sink in logs.
func (n *Notifier) Name() string { return "notify" }

// Publish sends one notification per allowed event. A failing sender does
// not stop delivery to the others.
func (n *Notifier) Publish(ctx context.Context, events []domain.Event) error {
	if len(n.senders) == 0 {
		return nil
	}
	var errs []string
	for _, e := range events {
		if !n.kinds[e.Kind] {
			continue
		}
		if err := n.dispatch(ctx, title(e), e.Message); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var failed []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			failed = append(failed, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d sender(s) failed: %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}

func title(e domain.Event) string {
	switch e.Kind {
	case domain.EventMarketSettled:
		return fmt.Sprintf("Market %d settled", e.MarketID)
	case domain.EventHouseFundsAdded:
		return "House funds added"
	case domain.EventHouseFundsWithdrawn:
		return "House funds withdrawn"
	case domain.EventMarketCreated:
		return fmt.Sprintf("Market %d created", e.MarketID)
	default:
		return strings.ReplaceAll(string(e.Kind), "_", " ")
	}
}
