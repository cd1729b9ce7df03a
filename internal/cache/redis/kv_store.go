package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/predictionamm/internal/domain"
	"github.com/alanyoungcy/predictionamm/internal/store/kvtx"
)

const (
	ledgerLock    = "ledger"
	ledgerLockTTL = 10 * time.Second
)

// ErrLockLost is returned when the ledger lock expired before the commit.
var ErrLockLost = errors.New("redis: ledger lock lost before commit")

// KVStore implements domain.KVStore on plain Redis string keys.
//
// Key schema:
//
//	{prefix}{key}  - record value
//	lock:ledger    - invocation lock holding the owner's token
//
// Every View and Update holds the ledger lock. Update commits with
// MULTI/EXEC while watching the lock key, so if the lock expired and was
// taken by another process the transaction aborts instead of applying.
type KVStore struct {
	rdb    *redis.Client
	locks  *LockManager
	prefix string
}

var _ domain.KVStore = (*KVStore)(nil)

// NewKVStore creates a KVStore storing records under prefix.
func NewKVStore(c *Client, locks *LockManager, prefix string) *KVStore {
	if prefix == "" {
		prefix = "ledger:"
	}
	return &KVStore{rdb: c.Underlying(), locks: locks, prefix: prefix}
}

// View runs fn against the committed records. Writes made by fn are dropped.
func (s *KVStore) View(ctx context.Context, fn func(tx domain.KVTx) error) error {
	_, unlock, err := s.locks.AcquireWait(ctx, ledgerLock, ledgerLockTTL)
	if err != nil {
		return err
	}
	defer unlock()
	return fn(kvtx.New(s.read))
}

// Update runs fn under the ledger lock and applies its writes atomically.
func (s *KVStore) Update(ctx context.Context, fn func(tx domain.KVTx) error) error {
	token, unlock, err := s.locks.AcquireWait(ctx, ledgerLock, ledgerLockTTL)
	if err != nil {
		return err
	}
	defer unlock()

	overlay := kvtx.New(s.read)
	if err := fn(overlay); err != nil {
		return err
	}
	if overlay.Len() == 0 {
		return nil
	}

	lk := lockKey(ledgerLock)
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		held, err := tx.Get(ctx, lk).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("redis: check ledger lock: %w", err)
		}
		if held != token {
			return ErrLockLost
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, op := range overlay.Ops() {
				if op.Deleted {
					pipe.Del(ctx, s.prefix+op.Key)
				} else {
					pipe.Set(ctx, s.prefix+op.Key, op.Value, 0)
				}
			}
			return nil
		})
		return err
	}, lk)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrLockLost
	}
	if err != nil {
		return fmt.Errorf("redis: commit ledger update: %w", err)
	}
	return nil
}

func (s *KVStore) read(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis: get %s: %w", key, err)
	}
	return v, true, nil
}
