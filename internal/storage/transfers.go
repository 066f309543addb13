package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TransferRepository persists ingested Transfer events.
type TransferRepository struct {
	db *DB
}

// NewTransferRepository creates a new TransferRepository.
func NewTransferRepository(db *DB) *TransferRepository {
	return &TransferRepository{db: db}
}

// UpsertTransfers writes a batch of transfer rows in a single transaction.
// Conflicts on (block_hash, tx_hash, log_index) overwrite the row, so
// re-walking a block range after a reorg replaces stale data instead of
// duplicating it. A zero-length batch is a no-op.
func (r *TransferRepository) UpsertTransfers(ctx context.Context, transfers []TransferLog) error {
	if len(transfers) == 0 {
		return nil
	}

	sql := `
		INSERT INTO send_token_transfers (
			block_hash, block_number, block_timestamp,
			tx_hash, log_index, from_address, to_address, value
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (block_hash, tx_hash, log_index) DO UPDATE SET
			block_number = EXCLUDED.block_number,
			block_timestamp = EXCLUDED.block_timestamp,
			from_address = EXCLUDED.from_address,
			to_address = EXCLUDED.to_address,
			value = EXCLUDED.value
	`

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, t := range transfers {
			batch.Queue(sql,
				t.BlockHash,
				int64(t.BlockNumber),
				int64(t.BlockTimestamp),
				t.TxHash,
				int32(t.LogIndex),
				t.From,
				t.To,
				t.Value.String(),
			)
		}

		results := tx.SendBatch(ctx, batch)
		defer results.Close()

		for range transfers {
			if _, err := results.Exec(); err != nil {
				return fmt.Errorf("upsert transfer: %w", err)
			}
		}
		return results.Close()
	})
}

// MaxBlockNumber returns the highest ingested block number. The second
// return is false when the store is empty, in which case the worker falls
// back to the configured deployment block.
func (r *TransferRepository) MaxBlockNumber(ctx context.Context) (uint64, bool, error) {
	sql := `SELECT MAX(block_number) FROM send_token_transfers`

	var max *int64
	if err := r.db.pool.QueryRow(ctx, sql).Scan(&max); err != nil {
		return 0, false, fmt.Errorf("query max block number: %w", err)
	}
	if max == nil {
		return 0, false, nil
	}
	return uint64(*max), true, nil
}

// CountInRange returns the number of stored transfers in the inclusive
// block range. Used by tests and the admin surface.
func (r *TransferRepository) CountInRange(ctx context.Context, fromBlock, toBlock uint64) (int64, error) {
	sql := `SELECT COUNT(*) FROM send_token_transfers WHERE block_number BETWEEN $1 AND $2`

	var count int64
	if err := r.db.pool.QueryRow(ctx, sql, int64(fromBlock), int64(toBlock)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count transfers: %w", err)
	}
	return count, nil
}
