package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/alanyoungcy/predictionamm/internal/domain"
)

// EventSource pages through the committed event log.
type EventSource interface {
	ListEvents(ctx context.Context, from uint64, limit int) ([]domain.Event, error)
}

// MarketSource pages through markets by id.
type MarketSource interface {
	ListMarkets(ctx context.Context, from uint64, limit int) ([]domain.Market, error)
}

const (
	eventsPrefix  = "archive/events/"
	marketsPrefix = "archive/markets/"

	// pageSize matches the engine's maximum listing limit.
	pageSize = 500

	multipartThreshold = 8 * 1024 * 1024

	contentTypeJSONL = "application/x-ndjson"
	contentTypeJSON  = "application/json"
)

// ArchiveImpl implements domain.Archiver. Events are written as JSONL
// batches named by their seq range, settled markets as one JSON object per
// market. Nothing is ever removed from the ledger.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	reader  domain.BlobReader
	events  EventSource
	markets MarketSource
	audit   domain.AuditStore
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// NewArchiver creates an ArchiveImpl. audit may be nil.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	events EventSource,
	markets MarketSource,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		reader:  reader,
		events:  events,
		markets: markets,
		audit:   audit,
	}
}

// ArchiveEvents uploads every committed event with seq >= from, one object
// per page, and returns the seq following the last archived event.
func (a *ArchiveImpl) ArchiveEvents(ctx context.Context, from uint64) (uint64, error) {
	if from == 0 {
		next, err := a.resumePoint(ctx)
		if err != nil {
			return 0, err
		}
		from = next
	}

	next := from
	for {
		batch, err := a.events.ListEvents(ctx, next, pageSize)
		if err != nil {
			return next, fmt.Errorf("s3blob: archive events query: %w", err)
		}
		if len(batch) == 0 {
			return next, nil
		}

		buf, err := marshalJSONL(batch)
		if err != nil {
			return next, fmt.Errorf("s3blob: archive events marshal: %w", err)
		}
		first, last := batch[0].Seq, batch[len(batch)-1].Seq
		key := eventsPath(first, last)
		if err := a.upload(ctx, key, buf, contentTypeJSONL); err != nil {
			return next, fmt.Errorf("s3blob: archive events upload: %w", err)
		}
		a.logArchive(ctx, "archive.events", map[string]any{
			"path":  key,
			"count": len(batch),
			"first": first,
			"last":  last,
		})

		next = last + 1
		if len(batch) < pageSize {
			return next, nil
		}
	}
}

// ArchiveSettledMarkets uploads a snapshot of each settled market that has
// no snapshot yet and returns how many were written.
func (a *ArchiveImpl) ArchiveSettledMarkets(ctx context.Context) (int64, error) {
	var written int64
	from := uint64(1)
	for {
		page, err := a.markets.ListMarkets(ctx, from, pageSize)
		if err != nil {
			return written, fmt.Errorf("s3blob: archive markets query: %w", err)
		}
		for _, m := range page {
			if m.Status != domain.MarketStatusSettled {
				continue
			}
			key := marketPath(m.ID)
			ok, err := a.reader.Exists(ctx, key)
			if err != nil {
				return written, err
			}
			if ok {
				continue
			}
			buf, err := json.Marshal(m)
			if err != nil {
				return written, fmt.Errorf("s3blob: archive market %d marshal: %w", m.ID, err)
			}
			if err := a.upload(ctx, key, buf, contentTypeJSON); err != nil {
				return written, fmt.Errorf("s3blob: archive market %d upload: %w", m.ID, err)
			}
			written++
		}
		if len(page) < pageSize {
			break
		}
		from = page[len(page)-1].ID + 1
	}
	if written > 0 {
		a.logArchive(ctx, "archive.markets", map[string]any{"count": written})
	}
	return written, nil
}

// resumePoint finds the seq after the highest archived event batch.
func (a *ArchiveImpl) resumePoint(ctx context.Context) (uint64, error) {
	infos, err := a.reader.List(ctx, eventsPrefix)
	if err != nil {
		return 0, err
	}
	next := uint64(1)
	for _, info := range infos {
		if _, last, ok := parseEventsPath(info.Path); ok && last+1 > next {
			next = last + 1
		}
	}
	return next, nil
}

func (a *ArchiveImpl) upload(ctx context.Context, key string, data []byte, contentType string) error {
	if len(data) >= multipartThreshold {
		return a.writer.PutMultipart(ctx, key, bytes.NewReader(data), minPartSize)
	}
	return a.writer.Put(ctx, key, bytes.NewReader(data), contentType)
}

// logArchive records an archive run in the audit log. The upload already
// succeeded, so a failure here is not reported to the caller.
func (a *ArchiveImpl) logArchive(ctx context.Context, event string, detail map[string]any) {
	if a.audit == nil {
		return
	}
	_ = a.audit.Log(ctx, event, detail)
}

// eventsPath names an event batch by its zero-padded seq range so keys sort
// in log order:
//
//	archive/events/00000000000000000001-00000000000000000500.jsonl
func eventsPath(first, last uint64) string {
	return fmt.Sprintf("%s%020d-%020d.jsonl", eventsPrefix, first, last)
}

func parseEventsPath(p string) (first, last uint64, ok bool) {
	name := strings.TrimSuffix(path.Base(p), ".jsonl")
	lo, hi, found := strings.Cut(name, "-")
	if !found {
		return 0, 0, false
	}
	f, err1 := strconv.ParseUint(lo, 10, 64)
	l, err2 := strconv.ParseUint(hi, 10, 64)
	if err1 != nil || err2 != nil || l < f {
		return 0, 0, false
	}
	return f, l, true
}

func marketPath(id uint64) string {
	return fmt.Sprintf("%s%020d.json", marketsPrefix, id)
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
