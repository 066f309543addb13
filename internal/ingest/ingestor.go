// Package ingest walks block ranges of the token contract's Transfer
// events and lands them in the transfer log. Ingestion is idempotent:
// rows are keyed by (block_hash, tx_hash, log_index) so re-walking a
// range after a crash or reorg produces no duplicates.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0xsend/sendapp-sub007/internal/chain"
	"github.com/0xsend/sendapp-sub007/internal/storage"
)

// TransferStore is the slice of the transfer repository the ingestor needs.
type TransferStore interface {
	UpsertTransfers(ctx context.Context, transfers []storage.TransferLog) error
}

// Mirror receives a best-effort copy of every ingested batch.
type Mirror interface {
	Publish(ctx context.Context, transfers []storage.TransferLog) error
}

// Ingestor fetches, decorates and persists Transfer events for a block
// range. It owns the timestamp cache and must only be driven from a
// single loop.
type Ingestor struct {
	client    chain.Client
	transfers TransferStore
	cache     *chain.TimestampCache
	mirror    Mirror
	logger    *slog.Logger
}

// New creates an Ingestor. mirror may be nil.
func New(client chain.Client, transfers TransferStore, mirror Mirror, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		client:    client,
		transfers: transfers,
		cache:     chain.NewTimestampCache(256),
		mirror:    mirror,
		logger:    logger,
	}
}

// BatchSize bounds RPC fan-out during header and balance fetches.
func BatchSize() int {
	n := runtime.GOMAXPROCS(0) - 1
	if n < 8 {
		n = 8
	}
	return n
}

// IngestRange fetches all Transfer events in the inclusive block range
// [fromBlock, toBlock], resolves their block timestamps and upserts them
// as a single batch. Returns the number of rows written; zero events is a
// no-op. Any error leaves the datastore untouched for this range.
func (i *Ingestor) IngestRange(ctx context.Context, fromBlock, toBlock uint64) (int, error) {
	transfers, err := i.client.FilterTransfers(ctx, fromBlock, toBlock)
	if err != nil {
		return 0, fmt.Errorf("filter transfers [%d, %d]: %w", fromBlock, toBlock, err)
	}
	if len(transfers) == 0 {
		return 0, nil
	}

	timestamps, err := i.resolveTimestamps(ctx, transfers)
	if err != nil {
		return 0, err
	}

	rows := make([]storage.TransferLog, 0, len(transfers))
	for _, t := range transfers {
		rows = append(rows, storage.TransferLog{
			BlockHash:      t.BlockHash.Hex(),
			BlockNumber:    t.BlockNumber,
			BlockTimestamp: timestamps[t.BlockHash],
			TxHash:         t.TxHash.Hex(),
			LogIndex:       t.LogIndex,
			From:           strings.ToLower(t.From.Hex()),
			To:             strings.ToLower(t.To.Hex()),
			Value:          t.Value,
		})
	}

	if err := i.transfers.UpsertTransfers(ctx, rows); err != nil {
		return 0, fmt.Errorf("upsert transfers [%d, %d]: %w", fromBlock, toBlock, err)
	}

	if i.mirror != nil {
		if err := i.mirror.Publish(ctx, rows); err != nil {
			i.logger.Warn("transfer mirror publish failed",
				"from_block", fromBlock, "to_block", toBlock, "error", err)
		}
	}

	i.logger.Info("ingested transfers",
		"from_block", fromBlock, "to_block", toBlock, "count", len(rows))
	return len(rows), nil
}

// resolveTimestamps returns the block timestamp for every transfer's block
// hash, serving repeats from the cache and fetching missing headers in
// bounded parallel batches. The cache is only written after all fetches
// complete, from this goroutine.
func (i *Ingestor) resolveTimestamps(ctx context.Context, transfers []chain.Transfer) (map[common.Hash]uint64, error) {
	out := make(map[common.Hash]uint64)
	var missing []common.Hash
	for _, t := range transfers {
		if _, seen := out[t.BlockHash]; seen {
			continue
		}
		if ts, ok := i.cache.Get(t.BlockHash); ok {
			out[t.BlockHash] = ts
			continue
		}
		out[t.BlockHash] = 0
		missing = append(missing, t.BlockHash)
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched := make(map[common.Hash]uint64, len(missing))
	var (
		mu       sync.Mutex
		firstErr error
	)
	batch := BatchSize()
	for start := 0; start < len(missing); start += batch {
		end := start + batch
		if end > len(missing) {
			end = len(missing)
		}

		var wg sync.WaitGroup
		for _, hash := range missing[start:end] {
			wg.Add(1)
			go func(h common.Hash) {
				defer wg.Done()
				header, err := i.client.HeaderByHash(ctx, h)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if firstErr == nil {
						firstErr = fmt.Errorf("resolve timestamp %s: %w", h.Hex(), err)
					}
					return
				}
				fetched[h] = header.Time
			}(hash)
		}
		wg.Wait()

		if firstErr != nil {
			return nil, firstErr
		}
	}

	for _, h := range missing {
		ts := fetched[h]
		i.cache.Put(h, ts)
		out[h] = ts
	}
	return out, nil
}
