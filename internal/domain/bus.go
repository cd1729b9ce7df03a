package domain

import (
	"context"
	"time"
)

// SignalBus carries committed events between processes: Publish/Subscribe
// for live delivery, StreamAppend/StreamRead for an ordered copy that late
// subscribers can replay from a stream id.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// StreamMessage is one replayable bus entry.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// LockManager hands out leases shared by every replica. Acquire fails with
// ErrLockHeld instead of waiting.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter counts requests per key over a sliding window and reports
// whether one more is allowed.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
