// Package memory implements domain.KVStore in process memory. It backs the
// engine in tests and in single-node deployments without a database.
package memory

import (
	"context"
	"sync"

	"github.com/alanyoungcy/predictionamm/internal/domain"
	"github.com/alanyoungcy/predictionamm/internal/store/kvtx"
)

// KVStore keeps committed records in a map guarded by a RWMutex. Update
// holds the write lock for the whole invocation.
type KVStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ domain.KVStore = (*KVStore)(nil)

// NewKVStore returns an empty store.
func NewKVStore() *KVStore {
	return &KVStore{data: make(map[string][]byte)}
}

// View runs fn against the committed state. Writes made by fn are dropped.
func (s *KVStore) View(ctx context.Context, fn func(tx domain.KVTx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(kvtx.New(s.read))
}

// Update runs fn and applies its writes only if it returns nil.
func (s *KVStore) Update(ctx context.Context, fn func(tx domain.KVTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := kvtx.New(s.read)
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, op := range tx.Ops() {
		if op.Deleted {
			delete(s.data, op.Key)
			continue
		}
		s.data[op.Key] = op.Value
	}
	return nil
}

// Snapshot returns a copy of every committed record.
func (s *KVStore) Snapshot() map[string][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]byte, len(s.data))
	for k, v := range s.data {
		out[k] = append([]byte(nil), v...)
	}
	return out
}

func (s *KVStore) read(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte{}, v...), true, nil
}
