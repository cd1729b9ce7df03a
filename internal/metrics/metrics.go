// Package metrics exposes engine activity as Prometheus series.
package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/predictionamm/internal/domain"
)

// Recorder counts operations and committed events. It satisfies both the
// engine's observer hook and domain.EventSink.
type Recorder struct {
	registry *prometheus.Registry

	operations   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	events       *prometheus.CounterVec
	stakeVolume  prometheus.Counter
	claimVolume  prometheus.Counter
	houseBalance prometheus.Gauge
}

var _ domain.EventSink = (*Recorder)(nil)

// New creates a Recorder registered on its own registry, together with the
// Go runtime and process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "predmkt_operations_total",
			Help: "Engine operations by name and outcome kind.",
		}, []string{"op", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "predmkt_operation_duration_seconds",
			Help:    "Engine operation latency including storage round trips.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"op"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "predmkt_events_total",
			Help: "Committed ledger events by kind.",
		}, []string{"kind"}),
		stakeVolume: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "predmkt_stake_volume_units_total",
			Help: "Smallest units staked across all bets.",
		}),
		claimVolume: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "predmkt_claimed_units_total",
			Help: "Smallest units paid out through claims.",
		}),
		houseBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "predmkt_house_balance_units",
			Help: "House balance as of the last event that reported it.",
		}),
	}
	r.registry.MustRegister(
		r.operations, r.latency, r.events,
		r.stakeVolume, r.claimVolume, r.houseBalance,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the registry the series live on.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveOperation records one finished engine operation.
func (r *Recorder) ObserveOperation(op string, kind domain.ErrorKind, elapsed time.Duration) {
	outcome := string(kind)
	if kind == domain.KindNone {
		outcome = "ok"
	}
	r.operations.WithLabelValues(op, outcome).Inc()
	r.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Name identifies the sink in logs.
func (r *Recorder) Name() string { return "metrics" }

// Publish updates event counters and volume series. It never fails.
func (r *Recorder) Publish(_ context.Context, events []domain.Event) error {
	for _, e := range events {
		r.events.WithLabelValues(string(e.Kind)).Inc()
		switch e.Kind {
		case domain.EventBetPlaced:
			if v, ok := number(e.Detail["stake"]); ok {
				r.stakeVolume.Add(v)
			}
		case domain.EventWinningsClaimed:
			if v, ok := number(e.Detail["winnings"]); ok {
				r.claimVolume.Add(v)
			}
		case domain.EventInitialized, domain.EventMarketSettled:
			if v, ok := number(e.Detail["house_balance"]); ok {
				r.houseBalance.Set(v)
			}
		case domain.EventHouseFundsAdded, domain.EventHouseFundsWithdrawn:
			if v, ok := number(e.Detail["balance"]); ok {
				r.houseBalance.Set(v)
			}
		}
	}
	return nil
}

// number reads a detail value that is either a Go integer (fresh events) or
// a json.Number (events decoded from storage).
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case uint64:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
