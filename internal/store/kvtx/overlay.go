// Package kvtx provides the write buffer shared by every KVStore backend.
//
// An Overlay sits on top of a backend's read function. Writes stay in the
// overlay until the backend commits them, so a failed invocation is rolled
// back by simply dropping the overlay.
package kvtx

import (
	"context"
	"sort"

	"github.com/alanyoungcy/predictionamm/internal/domain"
)

// ReadFunc fetches a committed value from the backend.
type ReadFunc func(ctx context.Context, key string) ([]byte, bool, error)

// Op is one buffered write. A nil Value with Deleted set removes the key.
type Op struct {
	Key     string
	Value   []byte
	Deleted bool
}

// Overlay implements domain.KVTx over a ReadFunc.
type Overlay struct {
	read   ReadFunc
	writes map[string]Op
}

var _ domain.KVTx = (*Overlay)(nil)

// New returns an empty overlay reading through to read.
func New(read ReadFunc) *Overlay {
	return &Overlay{read: read, writes: make(map[string]Op)}
}

// Get returns the buffered value for key if there is one, otherwise the
// committed value.
func (o *Overlay) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if op, ok := o.writes[key]; ok {
		if op.Deleted {
			return nil, false, nil
		}
		return clone(op.Value), true, nil
	}
	return o.read(ctx, key)
}

// Has reports whether key currently holds a value.
func (o *Overlay) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := o.Get(ctx, key)
	return ok, err
}

// Set buffers a write of value to key.
func (o *Overlay) Set(key string, value []byte) {
	o.writes[key] = Op{Key: key, Value: clone(value)}
}

// Delete buffers removal of key.
func (o *Overlay) Delete(key string) {
	o.writes[key] = Op{Key: key, Deleted: true}
}

// Ops returns the buffered writes ordered by key.
func (o *Overlay) Ops() []Op {
	ops := make([]Op, 0, len(o.writes))
	for _, op := range o.writes {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Key < ops[j].Key })
	return ops
}

// Len returns the number of buffered writes.
func (o *Overlay) Len() int {
	return len(o.writes)
}

func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
