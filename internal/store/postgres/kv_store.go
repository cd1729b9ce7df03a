package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predictionamm/internal/domain"
	"github.com/alanyoungcy/predictionamm/internal/store/kvtx"
)

// ledgerLockID is the advisory lock key that serializes ledger updates
// across every process sharing the database.
const ledgerLockID int64 = 0x707265646d6b74

// KVStore implements domain.KVStore on the kv_entries table. Each Update is
// one database transaction holding a transaction-scoped advisory lock, so
// invocations are serialized even across replicas.
type KVStore struct {
	pool *pgxpool.Pool
}

var _ domain.KVStore = (*KVStore)(nil)

// NewKVStore creates a new KVStore backed by the given connection pool.
func NewKVStore(pool *pgxpool.Pool) *KVStore {
	return &KVStore{pool: pool}
}

// View runs fn inside a read-only repeatable-read transaction.
func (s *KVStore) View(ctx context.Context, fn func(tx domain.KVTx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return fmt.Errorf("postgres: begin view: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	return fn(kvtx.New(reader(tx)))
}

// Update runs fn under the ledger lock and writes its buffered changes in a
// single batch. Nothing is written when fn fails.
func (s *KVStore) Update(ctx context.Context, fn func(tx domain.KVTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ledgerLockID); err != nil {
		return fmt.Errorf("postgres: acquire ledger lock: %w", err)
	}

	overlay := kvtx.New(reader(tx))
	if err := fn(overlay); err != nil {
		return err
	}

	ops := overlay.Ops()
	if len(ops) > 0 {
		const upsert = `
			INSERT INTO kv_entries (key, value, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
		const del = `DELETE FROM kv_entries WHERE key = $1`

		batch := &pgx.Batch{}
		for _, op := range ops {
			if op.Deleted {
				batch.Queue(del, op.Key)
			} else {
				batch.Queue(upsert, op.Key, op.Value)
			}
		}
		br := tx.SendBatch(ctx, batch)
		for _, op := range ops {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("postgres: write %s: %w", op.Key, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("postgres: close batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit update: %w", err)
	}
	return nil
}

func reader(tx pgx.Tx) kvtx.ReadFunc {
	return func(ctx context.Context, key string) ([]byte, bool, error) {
		var value []byte
		err := tx.QueryRow(ctx, `SELECT value FROM kv_entries WHERE key = $1`, key).Scan(&value)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("postgres: get %s: %w", key, err)
		}
		return value, true, nil
	}
}
