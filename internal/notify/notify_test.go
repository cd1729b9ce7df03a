package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alanyoungcy/predictionamm/internal/domain"
)

type captureSender struct {
	titles []string
	err    error
}

func (c *captureSender) Send(_ context.Context, title, _ string) error {
	c.titles = append(c.titles, title)
	return c.err
}

func (c *captureSender) Name() string { return "capture" }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_FiltersKinds(t *testing.T) {
	s := &captureSender{}
	n := NewNotifier([]Sender{s}, nil, quietLogger())

	err := n.Publish(context.Background(), []domain.Event{
		{Kind: domain.EventBetPlaced, MarketID: 1},
		{Kind: domain.EventMarketSettled, MarketID: 1, Message: "Market 1 settled"},
		{Kind: domain.EventHouseFundsWithdrawn},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(s.titles) != 2 || s.titles[0] != "Market 1 settled" || s.titles[1] != "House funds withdrawn" {
		t.Fatalf("titles=%v", s.titles)
	}
}

func TestNotifier_ConfiguredKinds(t *testing.T) {
	s := &captureSender{}
	n := NewNotifier([]Sender{s}, []string{" bet_placed "}, quietLogger())
	_ = n.Publish(context.Background(), []domain.Event{
		{Kind: domain.EventBetPlaced},
		{Kind: domain.EventMarketSettled},
	})
	if len(s.titles) != 1 || s.titles[0] != "bet placed" {
		t.Fatalf("titles=%v", s.titles)
	}
}

func TestNotifier_SenderFailure(t *testing.T) {
	bad := &captureSender{err: errors.New("boom")}
	good := &captureSender{}
	n := NewNotifier([]Sender{bad, good}, nil, quietLogger())

	err := n.Publish(context.Background(), []domain.Event{{Kind: domain.EventMarketSettled}})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err=%v", err)
	}
	if len(good.titles) != 1 {
		t.Fatal("healthy sender skipped")
	}
}

func TestDiscordSender_Send(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL, "")
	if err := d.Send(context.Background(), "Market 3 settled", "Result 42"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["content"] != "**Market 3 settled**\nResult 42" || got["username"] != "predictiond" {
		t.Fatalf("payload=%v", got)
	}
}

func TestTelegramSender_Send(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("chat not found"))
	}))
	defer srv.Close()

	tg := NewTelegramSender("tok", "chat")
	tg.apiBase = srv.URL
	err := tg.Send(context.Background(), "t", "m")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("err=%v", err)
	}
	if path != "/bottok/sendMessage" {
		t.Fatalf("path=%q", path)
	}
}
