package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/predictionamm/internal/domain"
)

type memBlobs struct {
	objects map[string][]byte
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: map[string][]byte{}} }

func (m *memBlobs) Put(_ context.Context, p string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[p] = b
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, p string, data io.Reader, _ int64) error {
	return m.Put(ctx, p, data, "")
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, domain.BlobInfo{Path: k, Size: int64(len(v))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *memBlobs) Exists(_ context.Context, p string) (bool, error) {
	_, ok := m.objects[p]
	return ok, nil
}

type fakeLedger struct {
	events  []domain.Event
	markets []domain.Market
}

func (f *fakeLedger) ListEvents(_ context.Context, from uint64, limit int) ([]domain.Event, error) {
	var out []domain.Event
	for _, e := range f.events {
		if e.Seq >= from && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeLedger) ListMarkets(_ context.Context, from uint64, limit int) ([]domain.Market, error) {
	var out []domain.Market
	for _, m := range f.markets {
		if m.ID >= from && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

type memAudit struct{ entries []string }

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.entries = append(a.entries, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func seqEvents(n int) []domain.Event {
	out := make([]domain.Event, n)
	for i := range out {
		out[i] = domain.Event{Seq: uint64(i + 1), Kind: domain.EventBetPlaced, At: time.Now().UnixMilli()}
	}
	return out
}

func countLines(b []byte) int {
	n := 0
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		n++
	}
	return n
}

func TestArchiveEvents_BatchesAndResumes(t *testing.T) {
	blobs := newMemBlobs()
	ledger := &fakeLedger{events: seqEvents(pageSize + 3)}
	audit := &memAudit{}
	a := NewArchiver(blobs, blobs, ledger, ledger, audit)
	ctx := context.Background()

	next, err := a.ArchiveEvents(ctx, 0)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if next != pageSize+4 {
		t.Fatalf("next=%d want %d", next, pageSize+4)
	}
	if len(blobs.objects) != 2 {
		t.Fatalf("objects=%d want 2", len(blobs.objects))
	}
	if got := countLines(blobs.objects[eventsPath(1, pageSize)]); got != pageSize {
		t.Fatalf("first batch lines=%d", got)
	}
	if len(audit.entries) != 2 {
		t.Fatalf("audit entries=%d", len(audit.entries))
	}

	// A fresh archiver with no cursor resumes after the last batch.
	ledger.events = append(ledger.events, domain.Event{Seq: pageSize + 4})
	b := NewArchiver(blobs, blobs, ledger, ledger, nil)
	next, err = b.ArchiveEvents(ctx, 0)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if next != pageSize+5 {
		t.Fatalf("next=%d want %d", next, pageSize+5)
	}
	if _, ok := blobs.objects[eventsPath(pageSize+4, pageSize+4)]; !ok {
		t.Fatal("resumed batch missing")
	}
}

func TestArchiveEvents_NothingNew(t *testing.T) {
	blobs := newMemBlobs()
	a := NewArchiver(blobs, blobs, &fakeLedger{}, &fakeLedger{}, nil)
	next, err := a.ArchiveEvents(context.Background(), 7)
	if err != nil || next != 7 {
		t.Fatalf("next=%d err=%v", next, err)
	}
	if len(blobs.objects) != 0 {
		t.Fatal("unexpected upload")
	}
}

func TestArchiveSettledMarkets(t *testing.T) {
	blobs := newMemBlobs()
	ledger := &fakeLedger{markets: []domain.Market{
		{ID: 1, Status: domain.MarketStatusSettled},
		{ID: 2},
		{ID: 3, Status: domain.MarketStatusSettled},
	}}
	a := NewArchiver(blobs, blobs, ledger, ledger, nil)

	n, err := a.ArchiveSettledMarkets(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	n, err = a.ArchiveSettledMarkets(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("second run n=%d err=%v", n, err)
	}
}

func TestParseEventsPath(t *testing.T) {
	f, l, ok := parseEventsPath(eventsPath(12, 40))
	if !ok || f != 12 || l != 40 {
		t.Fatalf("f=%d l=%d ok=%v", f, l, ok)
	}
	if _, _, ok := parseEventsPath("archive/events/readme.txt"); ok {
		t.Fatal("parsed junk path")
	}
}

func TestNormalise(t *testing.T) {
	if got := normaliseEndpoint("minio:9000", false); got != "http://minio:9000" {
		t.Fatalf("endpoint=%q", got)
	}
	if got := normaliseEndpoint("https://e2.example", false); got != "https://e2.example" {
		t.Fatalf("endpoint=%q", got)
	}
	for in, want := range map[string]string{"": "", "/": "", "predmkt/prod": "predmkt/prod/", "/a/": "a/"} {
		if got := normalisePrefix(in); got != want {
			t.Fatalf("prefix(%q)=%q want %q", in, got, want)
		}
	}
}
