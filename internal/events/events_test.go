package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/predictionamm/internal/domain"
)

type stubSink struct {
	name string
	got  []domain.Event
	err  error
}

func (s *stubSink) Publish(_ context.Context, events []domain.Event) error {
	s.got = append(s.got, events...)
	return s.err
}

func (s *stubSink) Name() string { return s.name }

type stubWriter struct {
	msgs []kafka.Message
}

func (w *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *stubWriter) Close() error { return nil }

func TestFanout_DeliversToAllSinks(t *testing.T) {
	failing := &stubSink{name: "failing", err: errors.New("down")}
	healthy := &stubSink{name: "healthy"}
	f := NewFanout(slog.New(slog.NewTextHandler(io.Discard, nil)), failing, nil, healthy)
	if f.Len() != 2 {
		t.Fatalf("len=%d want 2", f.Len())
	}

	batch := []domain.Event{{Seq: 1, Kind: domain.EventBetPlaced}}
	err := f.Publish(context.Background(), batch)
	if err == nil || !errors.Is(err, failing.err) {
		t.Fatalf("err=%v want wrapped sink error", err)
	}
	if len(healthy.got) != 1 {
		t.Fatalf("healthy sink got %d events", len(healthy.got))
	}
}

func TestKafkaSink_Publish(t *testing.T) {
	w := &stubWriter{}
	k := &KafkaSink{writer: w, topic: "ledger-events"}

	err := k.Publish(context.Background(), []domain.Event{
		{Seq: 4, Kind: domain.EventMarketSettled, MarketID: 9, At: 1000},
		{Seq: 5, Kind: domain.EventWinningsClaimed, MarketID: 9, At: 2000},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("msgs=%d want 2", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "9" || string(w.msgs[1].Headers[1].Value) != "5" {
		t.Fatalf("msg=%+v", w.msgs[0])
	}
	var e domain.Event
	if err := json.Unmarshal(w.msgs[0].Value, &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Kind != domain.EventMarketSettled || e.Seq != 4 {
		t.Fatalf("event=%+v", e)
	}
	if k.Name() != "kafka:ledger-events" {
		t.Fatalf("name=%q", k.Name())
	}
}

func TestNewKafkaSink_RequiresBrokers(t *testing.T) {
	if _, err := NewKafkaSink(KafkaConfig{Topic: "x"}); err == nil {
		t.Fatal("expected error without brokers")
	}
}
