package metrics

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/alanyoungcy/predictionamm/internal/domain"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	var m dto.Metric
	if err := (<-ch).Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return m.Gauge.GetValue()
}

func TestRecorder_ObserveOperation(t *testing.T) {
	r := New()
	r.ObserveOperation("place_bet", domain.KindNone, time.Millisecond)
	r.ObserveOperation("place_bet", domain.KindValidation, time.Millisecond)
	r.ObserveOperation("place_bet", domain.KindValidation, time.Millisecond)

	if got := counterValue(t, r.operations.WithLabelValues("place_bet", "ok")); got != 1 {
		t.Fatalf("ok=%v want 1", got)
	}
	if got := counterValue(t, r.operations.WithLabelValues("place_bet", "validation")); got != 2 {
		t.Fatalf("validation=%v want 2", got)
	}
}

func TestRecorder_Publish(t *testing.T) {
	r := New()
	err := r.Publish(context.Background(), []domain.Event{
		{Kind: domain.EventBetPlaced, Detail: map[string]any{"stake": uint64(100)}},
		{Kind: domain.EventBetPlaced, Detail: map[string]any{"stake": json.Number("50")}},
		{Kind: domain.EventHouseFundsAdded, Detail: map[string]any{"balance": uint64(700)}},
		{Kind: domain.EventWinningsClaimed, Detail: map[string]any{"winnings": uint64(190)}},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := counterValue(t, r.stakeVolume); got != 150 {
		t.Fatalf("stake volume=%v want 150", got)
	}
	if got := counterValue(t, r.claimVolume); got != 190 {
		t.Fatalf("claim volume=%v want 190", got)
	}
	if got := counterValue(t, r.houseBalance); got != 700 {
		t.Fatalf("house balance=%v want 700", got)
	}
	if got := counterValue(t, r.events.WithLabelValues(string(domain.EventBetPlaced))); got != 2 {
		t.Fatalf("bet events=%v want 2", got)
	}
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.ObserveOperation("create_market", domain.KindNone, time.Millisecond)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `predmkt_operations_total{op="create_market",outcome="ok"} 1`) {
		t.Fatalf("exposition missing operation counter:\n%s", body)
	}
}
