package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo is one entry of a bucket listing. Path is relative to the
// client's key prefix.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobWriter uploads archive objects. PutMultipart is for payloads whose
// size is not known up front.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader lists and probes archive objects.
type BlobReader interface {
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver copies the committed event log and settled markets to cold
// storage. It only reads the ledger.
type Archiver interface {
	// ArchiveEvents uploads events with seq >= from and returns the seq the
	// next call should start from. from == 0 resumes after the newest batch
	// already in the bucket.
	ArchiveEvents(ctx context.Context, from uint64) (next uint64, err error)
	// ArchiveSettledMarkets writes a snapshot per settled market and
	// reports how many were written.
	ArchiveSettledMarkets(ctx context.Context) (int64, error)
}
