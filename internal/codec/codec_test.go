package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alanyoungcy/predictionamm/internal/domain"
)

func TestMarketRoundTrip(t *testing.T) {
	in := domain.Market{
		ID:            42,
		CreatedAt:     1_700_000_000_000,
		SettleBy:      1_700_003_600_000,
		BettingCutoff: 1_700_003_000_000,
		Description:   "BTC above 100k?",
		TargetValue:   500,
		FinalValue:    501,
		YesPool:       100 * domain.Coin,
		NoPool:        3,
		YesExposure:   90 * domain.Coin,
		Status:        domain.MarketStatusSettled,
		YesWins:       true,
	}
	out, err := DecodeMarket(EncodeMarket(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != in {
		t.Fatalf("got %+v want %+v", out, in)
	}
}

func TestEncodeMarket_Deterministic(t *testing.T) {
	m := domain.Market{ID: 1, Description: "x", YesPool: 9}
	if !bytes.Equal(EncodeMarket(m), EncodeMarket(m)) {
		t.Fatal("encoding is not deterministic")
	}
	if got := EncodeMarket(domain.Market{}); len(got) != 0 {
		t.Fatalf("zero market encoded to %d bytes, want 0", len(got))
	}
}

func TestEventDetailKeepsPrecision(t *testing.T) {
	in := domain.Event{
		Seq:     3,
		ID:      "evt",
		Kind:    domain.EventBetPlaced,
		Actor:   "AU1",
		At:      12,
		Message: "bet",
		Detail:  map[string]any{"stake": uint64(18_446_744_073_709_551_615)},
	}
	b, err := EncodeEvent(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeEvent(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Seq != 3 || out.Kind != domain.EventBetPlaced || out.Message != "bet" {
		t.Fatalf("got %+v", out)
	}
	n, ok := out.Detail["stake"].(json.Number)
	if !ok || n.String() != "18446744073709551615" {
		t.Fatalf("stake=%v (%T)", out.Detail["stake"], out.Detail["stake"])
	}
}

func TestDecode_Malformed(t *testing.T) {
	if _, err := DecodeMarket([]byte{0x08}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err=%v want ErrMalformed", err)
	}
	if _, err := DecodeUint64([]byte{0x01, 0x02}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err=%v want ErrMalformed", err)
	}
}

func TestDecode_SkipsUnknownFields(t *testing.T) {
	b := EncodeUserBet(domain.UserBet{MarketID: 2, User: "AU1", NoStake: 5})
	// field 15, fixed32
	b = append(b, 0x7d, 1, 2, 3, 4)
	ub, err := DecodeUserBet(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ub.MarketID != 2 || ub.User != "AU1" || ub.NoStake != 5 {
		t.Fatalf("got %+v", ub)
	}
}
