package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/predictionamm/internal/engine"
	"github.com/alanyoungcy/predictionamm/internal/server/handler"
	"github.com/alanyoungcy/predictionamm/internal/store/memory"
)

const (
	ownerAddr = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	bettor    = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
	apiKey    = "test-key"
)

type apiClient struct {
	t   *testing.T
	srv *httptest.Server
}

func newTestServer(t *testing.T) *apiClient {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(memory.NewKVStore(), engine.WithLogger(logger))
	now := func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	h := Handlers{
		Health:   handler.NewHealthHandler("server", nil, logger),
		Admin:    handler.NewAdminHandler(eng, now, logger),
		Markets:  handler.NewMarketHandler(eng, now, logger),
		Bets:     handler.NewBetHandler(eng, now, logger),
		Treasury: handler.NewTreasuryHandler(eng, now, logger),
		Events:   handler.NewEventHandler(eng, nil, logger),
	}
	srv := httptest.NewServer(Routes(Config{APIKey: apiKey}, h, Deps{}, logger))
	t.Cleanup(srv.Close)
	return &apiClient{t: t, srv: srv}
}

func (c *apiClient) do(method, path, caller string, body any, out any) int {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.srv.URL+path, rd)
	if err != nil {
		c.t.Fatalf("request: %v", err)
	}
	req.Header.Set("X-API-Key", apiKey)
	if caller != "" {
		req.Header.Set("X-Caller", caller)
	}
	resp, err := c.srv.Client().Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestServer_MarketLifecycle(t *testing.T) {
	c := newTestServer(t)

	// Lowercase input is stored under the checksum form.
	if code := c.do("POST", "/api/init", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", nil, nil); code != http.StatusCreated {
		t.Fatalf("init status=%d", code)
	}

	var created struct {
		MarketID uint64 `json:"market_id"`
	}
	code := c.do("POST", "/api/markets", ownerAddr, map[string]any{
		"description":      "BTC above 100k",
		"target_value":     100000,
		"duration_ms":      3_600_000,
		"cutoff_offset_ms": 600_000,
	}, &created)
	if code != http.StatusCreated || created.MarketID != 1 {
		t.Fatalf("create status=%d id=%d", code, created.MarketID)
	}

	var odds map[string]any
	if code := c.do("GET", "/api/markets/1/odds?stake=100000000000", "", nil, &odds); code != http.StatusOK {
		t.Fatalf("odds status=%d", code)
	}
	if odds["yes_odds_decimal"] != "1.9000" || odds["yes_payout_coins"] != "190" {
		t.Fatalf("odds=%v", odds)
	}

	var bet map[string]any
	code = c.do("POST", "/api/markets/1/bets", bettor, map[string]any{"side": "yes", "amount_coins": "100"}, &bet)
	if code != http.StatusCreated {
		t.Fatalf("bet status=%d body=%v", code, bet)
	}
	if bet["potential_payout"].(float64) != 190e9 || bet["odds_decimal"] != "1.9000" {
		t.Fatalf("bet=%v", bet)
	}

	var errBody map[string]string
	if code := c.do("POST", "/api/markets/1/resolve", bettor, map[string]any{"final_value": 100000}, &errBody); code != http.StatusForbidden {
		t.Fatalf("resolve by bettor status=%d", code)
	}
	if errBody["kind"] != "unauthorized" {
		t.Fatalf("error body=%v", errBody)
	}

	var settled map[string]any
	if code := c.do("POST", "/api/markets/1/resolve", ownerAddr, map[string]any{"final_value": 100000}, &settled); code != http.StatusOK {
		t.Fatalf("resolve status=%d", code)
	}
	if settled["yes_wins"] != true {
		t.Fatalf("settlement=%v", settled)
	}

	var claim map[string]any
	if code := c.do("POST", "/api/markets/1/claim", bettor, nil, &claim); code != http.StatusOK {
		t.Fatalf("claim status=%d body=%v", code, claim)
	}
	if claim["winnings"].(float64) <= 0 {
		t.Fatalf("claim=%v", claim)
	}
	if code := c.do("POST", "/api/markets/1/claim", bettor, nil, nil); code != http.StatusConflict {
		t.Fatalf("second claim status=%d", code)
	}

	var ub map[string]any
	c.do("GET", "/api/markets/1/bets/"+bettor, "", nil, &ub)
	if ub["claimed"] != true || ub["yes_stake"].(float64) != 100e9 {
		t.Fatalf("user bet=%v", ub)
	}

	var events struct {
		Events []map[string]any `json:"events"`
	}
	c.do("GET", "/api/events?from=1&limit=10", "", nil, &events)
	if len(events.Events) != 5 {
		t.Fatalf("events=%d want 5", len(events.Events))
	}
}

func TestServer_Rejections(t *testing.T) {
	c := newTestServer(t)
	c.do("POST", "/api/init", ownerAddr, nil, nil)

	cases := []struct {
		name   string
		method string
		path   string
		caller string
		body   any
		want   int
	}{
		{"unknown market", "GET", "/api/markets/9", "", nil, http.StatusNotFound},
		{"bad id", "GET", "/api/markets/abc", "", nil, http.StatusBadRequest},
		{"bad side", "POST", "/api/markets/1/bets", bettor, map[string]any{"side": "maybe", "amount": "1000000000"}, http.StatusBadRequest},
		{"unknown field", "POST", "/api/house/withdraw", ownerAddr, map[string]any{"amount": "1", "extra": true}, http.StatusBadRequest},
		{"too precise", "POST", "/api/house/deposit", ownerAddr, map[string]any{"amount_coins": "0.0000000001"}, http.StatusBadRequest},
		{"below reserve", "POST", "/api/house/withdraw", ownerAddr, map[string]any{"amount_coins": "95"}, http.StatusUnprocessableEntity},
		{"double init", "POST", "/api/init", ownerAddr, nil, http.StatusConflict},
	}
	for _, tc := range cases {
		if code := c.do(tc.method, tc.path, tc.caller, tc.body, nil); code != tc.want {
			t.Fatalf("%s: status=%d want %d", tc.name, code, tc.want)
		}
	}
}

func TestServer_RequiresAPIKey(t *testing.T) {
	c := newTestServer(t)

	resp, err := c.srv.Client().Get(c.srv.URL + "/api/house")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status=%d", resp.StatusCode)
	}

	resp, err = c.srv.Client().Get(c.srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status=%d", resp.StatusCode)
	}
}
