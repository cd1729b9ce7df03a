package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/predictionamm/internal/domain"
	"github.com/alanyoungcy/predictionamm/internal/store/memory"
)

const (
	owner = "AU12owner"
	admin = "AU12admin"
	alice = "AU12alice"
	bob   = "AU12bob"
	carol = "AU12carol"
)

var t0 = time.UnixMilli(1_700_000_000_000).UTC()

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (s *recordingSink) Publish(_ context.Context, events []domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return s.err
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) kinds() []domain.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventKind, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Kind)
	}
	return out
}

type harness struct {
	t     *testing.T
	ctx   context.Context
	eng   *Engine
	store *memory.KVStore
	sink  *recordingSink
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := newBareHarness(t)
	if err := h.eng.Initialize(h.ctx, Call{Caller: owner, Now: t0}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return h
}

func newBareHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.NewKVStore()
	sink := &recordingSink{}
	seq := 0
	eng := New(store,
		WithSink(sink),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithIDFunc(func() string { seq++; return fmt.Sprintf("evt-%d", seq) }),
	)
	return &harness{t: t, ctx: context.Background(), eng: eng, store: store, sink: sink}
}

func at(caller string, now time.Time, attached uint64) Call {
	return Call{Caller: caller, Now: now, Attached: attached}
}

// hourMarket creates a market settling one hour after t0 with betting
// closing ten minutes before that.
func (h *harness) hourMarket(target uint64) uint64 {
	h.t.Helper()
	id, err := h.eng.CreateMarket(h.ctx, at(owner, t0, 0), CreateMarketParams{
		Description:  "Tweet 123 likes",
		TargetValue:  target,
		Duration:     time.Hour,
		CutoffOffset: 10 * time.Minute,
	})
	if err != nil {
		h.t.Fatalf("create market: %v", err)
	}
	return id
}

func (h *harness) bet(user string, id uint64, side domain.Side, coins uint64) BetReceipt {
	h.t.Helper()
	r, err := h.eng.PlaceBet(h.ctx, at(user, t0.Add(time.Minute), coins*domain.Coin), id, side)
	if err != nil {
		h.t.Fatalf("place bet %s %d coins on %s: %v", user, coins, side, err)
	}
	return r
}

func (h *harness) house() domain.HouseStatus {
	h.t.Helper()
	hs, err := h.eng.GetHouseStatus(h.ctx)
	if err != nil {
		h.t.Fatalf("house status: %v", err)
	}
	return hs
}

func (h *harness) market(id uint64) domain.Market {
	h.t.Helper()
	m, err := h.eng.GetMarketDetails(h.ctx, id)
	if err != nil {
		h.t.Fatalf("get market %d: %v", id, err)
	}
	return m
}

// unchanged runs fn, expects it to fail with want and asserts that no
// record and no published event changed.
func (h *harness) unchanged(want error, fn func() error) {
	h.t.Helper()
	before := h.store.Snapshot()
	published := len(h.sink.kinds())
	err := fn()
	if !errors.Is(err, want) {
		h.t.Fatalf("err=%v want %v", err, want)
	}
	if after := h.store.Snapshot(); !reflect.DeepEqual(before, after) {
		h.t.Fatalf("state changed by rejected call (%v)", err)
	}
	if got := len(h.sink.kinds()); got != published {
		h.t.Fatalf("rejected call published %d events", got-published)
	}
}

func TestInitialize(t *testing.T) {
	h := newHarness(t)

	hs := h.house()
	if hs.Balance != domain.HouseInitialBalance || hs.CustodyBalance != domain.HouseInitialBalance {
		t.Fatalf("balance=%d custody=%d want=%d", hs.Balance, hs.CustodyBalance, domain.HouseInitialBalance)
	}
	if hs.Owner != owner || hs.MarketCount != 0 {
		t.Fatalf("owner=%q count=%d", hs.Owner, hs.MarketCount)
	}
	if hs.MinBet != domain.MinBetAmount || hs.VirtualLiquidity != domain.VirtualLiquidity || hs.HouseEdge != 0.05 {
		t.Fatalf("constants=%+v", hs)
	}

	h.unchanged(domain.ErrInitialized, func() error {
		return h.eng.Initialize(h.ctx, at(alice, t0, 0))
	})
}

func TestOperationsRequireInitialization(t *testing.T) {
	h := newBareHarness(t)
	_, err := h.eng.CreateMarket(h.ctx, at(owner, t0, 0), CreateMarketParams{
		Description: "x", Duration: time.Hour, CutoffOffset: time.Minute,
	})
	if !errors.Is(err, domain.ErrNotInitialized) {
		t.Fatalf("err=%v want ErrNotInitialized", err)
	}
	if _, err := h.eng.GetHouseStatus(h.ctx); !errors.Is(err, domain.ErrNotInitialized) {
		t.Fatalf("err=%v want ErrNotInitialized", err)
	}
}

func TestAdminManagement(t *testing.T) {
	h := newHarness(t)

	h.unchanged(domain.ErrUnauthorized, func() error {
		return h.eng.AddAdmin(h.ctx, at(alice, t0, 0), admin)
	})
	if err := h.eng.AddAdmin(h.ctx, at(owner, t0, 0), admin); err != nil {
		t.Fatalf("add admin: %v", err)
	}
	if ok, _ := h.eng.IsAdmin(h.ctx, admin); !ok {
		t.Fatal("admin not recorded")
	}

	// Admins manage markets but not the admin set.
	if _, err := h.eng.CreateMarket(h.ctx, at(admin, t0, 0), CreateMarketParams{
		Description: "by admin", Duration: time.Hour, CutoffOffset: time.Minute,
	}); err != nil {
		t.Fatalf("admin create market: %v", err)
	}
	h.unchanged(domain.ErrNotOwner, func() error {
		return h.eng.AddAdmin(h.ctx, at(admin, t0, 0), bob)
	})

	if err := h.eng.RemoveAdmin(h.ctx, at(owner, t0, 0), admin); err != nil {
		t.Fatalf("remove admin: %v", err)
	}
	_, err := h.eng.CreateMarket(h.ctx, at(admin, t0, 0), CreateMarketParams{
		Description: "again", Duration: time.Hour, CutoffOffset: time.Minute,
	})
	if !errors.Is(err, domain.ErrNotAdmin) || domain.KindOf(err) != domain.KindUnauthorized {
		t.Fatalf("err=%v want ErrNotAdmin", err)
	}

	// Removing an address that never was an admin still records the event.
	if err := h.eng.RemoveAdmin(h.ctx, at(owner, t0, 0), carol); err != nil {
		t.Fatalf("remove non-admin: %v", err)
	}
	kinds := h.sink.kinds()
	if kinds[len(kinds)-1] != domain.EventAdminRemoved {
		t.Fatalf("last event=%s want %s", kinds[len(kinds)-1], domain.EventAdminRemoved)
	}

	if err := h.eng.AddAdmin(h.ctx, at(owner, t0, 0), "  "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err=%v want invalid input", err)
	}

	// A non-owner is refused before the address is looked at.
	h.unchanged(domain.ErrUnauthorized, func() error {
		return h.eng.AddAdmin(h.ctx, at(alice, t0, 0), "")
	})
	h.unchanged(domain.ErrUnauthorized, func() error {
		return h.eng.RemoveAdmin(h.ctx, at(alice, t0, 0), " ")
	})
}

func TestCreateMarket_SequentialIDs(t *testing.T) {
	h := newHarness(t)

	var prev uint64
	for i := 0; i < 5; i++ {
		id := h.hourMarket(uint64(100 * i))
		if id <= prev {
			t.Fatalf("id=%d not greater than previous %d", id, prev)
		}
		prev = id

		m := h.market(id)
		if m.BettingCutoff >= m.SettleBy || m.SettleBy <= m.CreatedAt {
			t.Fatalf("market %d times created=%d cutoff=%d settle=%d", id, m.CreatedAt, m.BettingCutoff, m.SettleBy)
		}
		if m.Status != domain.MarketStatusActive || m.TargetValue != uint64(100*i) {
			t.Fatalf("market=%+v", m)
		}
	}
	if prev != 1+4 {
		t.Fatalf("last id=%d want 5", prev)
	}

	m := h.market(1)
	if m.CreatedAt != t0.UnixMilli() ||
		m.SettleBy != t0.Add(time.Hour).UnixMilli() ||
		m.BettingCutoff != t0.Add(50*time.Minute).UnixMilli() {
		t.Fatalf("market 1 times=%+v", m)
	}
	if h.house().MarketCount != 5 {
		t.Fatalf("market count=%d want 5", h.house().MarketCount)
	}
}

func TestCreateMarket_Rejections(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		caller string
		params CreateMarketParams
		want   error
		kind   domain.ErrorKind
	}{
		{"not authorized", alice, CreateMarketParams{Description: "x", Duration: time.Hour, CutoffOffset: time.Minute}, domain.ErrNotAdmin, domain.KindUnauthorized},
		{"empty description", owner, CreateMarketParams{Description: "   ", Duration: time.Hour, CutoffOffset: time.Minute}, domain.ErrEmptyDesc, domain.KindValidation},
		{"zero duration", owner, CreateMarketParams{Description: "x", CutoffOffset: time.Minute}, domain.ErrBadDuration, domain.KindValidation},
		{"negative duration", owner, CreateMarketParams{Description: "x", Duration: -time.Hour, CutoffOffset: time.Minute}, domain.ErrBadDuration, domain.KindValidation},
		{"zero cutoff offset", owner, CreateMarketParams{Description: "x", Duration: time.Hour}, domain.ErrBadCutoff, domain.KindValidation},
		{"offset equals duration", owner, CreateMarketParams{Description: "x", Duration: time.Hour, CutoffOffset: time.Hour}, domain.ErrCutoffInPast, domain.KindValidation},
		{"offset exceeds duration", owner, CreateMarketParams{Description: "x", Duration: time.Hour, CutoffOffset: 2 * time.Hour}, domain.ErrCutoffInPast, domain.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.t = t
			h.unchanged(tt.want, func() error {
				_, err := h.eng.CreateMarket(h.ctx, at(tt.caller, t0, 0), tt.params)
				if kind := domain.KindOf(err); kind != tt.kind {
					t.Errorf("kind=%s want %s", kind, tt.kind)
				}
				return err
			})
		})
	}
}

func TestListMarkets(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 4; i++ {
		h.hourMarket(uint64(i))
	}

	got, err := h.eng.ListMarkets(h.ctx, 2, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != 2 || got[1].ID != 3 {
		t.Fatalf("got=%+v", got)
	}

	got, err = h.eng.ListMarkets(h.ctx, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("len=%d want 4", len(got))
	}
}

func TestGetMarketDetails_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.eng.GetMarketDetails(h.ctx, 99)
	if !errors.Is(err, domain.ErrMarketNotFound) || domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("err=%v want ErrMarketNotFound", err)
	}
}

func TestParseMarketID(t *testing.T) {
	if id, err := ParseMarketID(" 12 "); err != nil || id != 12 {
		t.Fatalf("id=%d err=%v", id, err)
	}
	for _, in := range []string{"", "0", "-1", "abc"} {
		if _, err := ParseMarketID(in); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("input %q: err=%v want invalid input", in, err)
		}
	}
}
