package domain

import (
	"context"
	"time"
)

// KVTx is the view of the persistent store available to one invocation.
// Reads observe the invocation's own uncommitted writes.
type KVTx interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Has(ctx context.Context, key string) (bool, error)
	Set(key string, value []byte)
	Delete(key string)
}

// KVStore is the injected persistence capability. Update runs fn as one
// serialized, all-or-nothing transaction: writes are applied only when fn
// returns nil. View runs fn against a consistent read-only snapshot; writes
// made inside View are discarded.
type KVStore interface {
	View(ctx context.Context, fn func(tx KVTx) error) error
	Update(ctx context.Context, fn func(tx KVTx) error) error
}

// ListOpts pages through the audit log. Since and Until bound CreatedAt
// when set, both inclusively.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AuditEntry is one row of the operator audit log. Committed ledger events
// and archive runs both land here.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore is the append-only operator log. It sits outside the ledger:
// a failed Log never rolls back an operation.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
