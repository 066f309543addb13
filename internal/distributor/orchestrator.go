package distributor

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/0xsend/sendapp-sub007/internal/chain"
	"github.com/0xsend/sendapp-sub007/internal/ingest"
	"github.com/0xsend/sendapp-sub007/internal/notify"
	"github.com/0xsend/sendapp-sub007/internal/rewards"
	"github.com/0xsend/sendapp-sub007/internal/snapshot"
	"github.com/0xsend/sendapp-sub007/internal/storage"
)

// DistributionStore is the slice of the distribution repository the
// orchestrator consumes.
type DistributionStore interface {
	ActiveDistributions(ctx context.Context, now time.Time) ([]*storage.Distribution, error)
	Distribution(ctx context.Context, id int64) (*storage.Distribution, error)
	Verifications(ctx context.Context, distributionID int64) ([]storage.Verification, error)
	HodlerAddresses(ctx context.Context, distributionID int64) ([]storage.HodlerAddress, error)
	SharesByNumber(ctx context.Context, number int) ([]storage.Share, error)
	SendSlash(ctx context.Context, distributionID int64) (storage.SendSlash, error)
	ReplaceShares(ctx context.Context, distributionID int64, shares []storage.Share) error
}

// Notifier publishes a distribution-calculated event after persistence.
type Notifier interface {
	PublishCalculated(event notify.DistributionCalculated) error
}

// SnapshotStore writes audit snapshots of persisted share sets.
type SnapshotStore interface {
	WriteShares(ctx context.Context, d *storage.Distribution, shares []storage.Share, totalAmount, totalFixed string) error
}

// Orchestrator loads a distribution's inputs, runs the share calculator
// and persists the result. Notifications and snapshots are best-effort
// side effects of persistence.
type Orchestrator struct {
	repo      DistributionStore
	client    chain.Client
	notifier  Notifier
	snapshots SnapshotStore
	logger    *slog.Logger
}

// NewOrchestrator creates an orchestrator. notifier and snapshots may be nil.
func NewOrchestrator(repo DistributionStore, client chain.Client, notifier Notifier, snapshots SnapshotStore, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		repo:      repo,
		client:    client,
		notifier:  notifier,
		snapshots: snapshots,
		logger:    logger,
	}
}

// CalculateActive computes and persists shares for the distribution whose
// qualification window contains now. Zero open distributions is a logged
// no-op; more than one is a configuration error and the cycle is skipped.
// Returns the id of the processed distribution, or 0 when none was.
func (o *Orchestrator) CalculateActive(ctx context.Context, now time.Time) (int64, error) {
	distributions, err := o.repo.ActiveDistributions(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("fetch active distributions: %w", err)
	}
	if len(distributions) == 0 {
		o.logger.Info("no open distributions")
		return 0, nil
	}
	if len(distributions) > 1 {
		return 0, fmt.Errorf("found %d open distributions, only one is supported", len(distributions))
	}

	d := distributions[0]
	if err := o.CalculateAndPersist(ctx, d); err != nil {
		return 0, err
	}
	return d.ID, nil
}

// CalculateAndPersist runs the calculator for one distribution and
// replaces its share set. Empty inputs are logged no-ops and leave the
// previous share set intact.
func (o *Orchestrator) CalculateAndPersist(ctx context.Context, d *storage.Distribution) error {
	log := o.logger.With("distribution_id", d.ID, "distribution_number", d.Number)

	result, err := o.Calculate(ctx, d)
	if err != nil {
		return err
	}
	if result == nil || result.ZeroWeight {
		return nil
	}

	if err := o.repo.ReplaceShares(ctx, d.ID, result.Shares); err != nil {
		return fmt.Errorf("persist shares for distribution %d: %w", d.ID, err)
	}
	log.Info("persisted distribution shares",
		"shares", len(result.Shares),
		"total_amount", result.TotalAmount.String(),
		"total_hodler_pool_amount", result.TotalHodlerPoolAmount.String(),
		"total_bonus_pool_amount", result.TotalBonusPoolAmount.String(),
		"total_fixed_pool_amount", result.TotalFixedPoolAmount.String())

	if o.notifier != nil {
		err := o.notifier.PublishCalculated(notify.DistributionCalculated{
			DistributionID:   d.ID,
			Number:           d.Number,
			ShareCount:       len(result.Shares),
			TotalAmount:      result.TotalAmount.String(),
			TotalFixedAmount: result.TotalFixedPoolAmount.String(),
			CalculatedAt:     time.Now().UTC(),
		})
		if err != nil {
			log.Warn("distribution notification failed", "error", err)
		}
	}
	if o.snapshots != nil {
		err := o.snapshots.WriteShares(ctx, d, result.Shares,
			result.TotalAmount.String(), result.TotalFixedPoolAmount.String())
		if err != nil {
			log.Warn("share snapshot failed", "error", err)
		}
	}
	return nil
}

// CalculateByID computes shares for an arbitrary distribution id without
// persisting them, for manual recomputation and audits.
func (o *Orchestrator) CalculateByID(ctx context.Context, id int64) (*rewards.Result, error) {
	d, err := o.repo.Distribution(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch distribution %d: %w", id, err)
	}
	if d == nil {
		return nil, fmt.Errorf("distribution %d not found", id)
	}
	return o.Calculate(ctx, d)
}

// Calculate loads the distribution's verifications, hodler addresses and
// balances and runs the share calculator. Returns nil when the
// distribution has no verifications.
func (o *Orchestrator) Calculate(ctx context.Context, d *storage.Distribution) (*rewards.Result, error) {
	log := o.logger.With("distribution_id", d.ID, "distribution_number", d.Number)

	verifications, err := o.repo.Verifications(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch verifications: %w", err)
	}
	if len(verifications) == 0 {
		log.Warn("no verifications found, skipping distribution")
		return nil, nil
	}
	log.Info("loaded verifications", "count", len(verifications))

	hodlers, err := o.repo.HodlerAddresses(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch hodler addresses: %w", err)
	}
	if len(hodlers) == 0 {
		return nil, fmt.Errorf("no hodler addresses found for distribution %d", d.ID)
	}
	log.Info("loaded hodler addresses", "count", len(hodlers))

	balances, err := o.fetchBalances(ctx, d, hodlers)
	if err != nil {
		return nil, err
	}
	log.Info("loaded balances", "count", len(balances))

	in := rewards.Input{
		Distribution:  d,
		Verifications: verifications,
		Hodlers:       hodlers,
		Balances:      balances,
	}
	result, err := rewards.CalculatePoolShares(in, log)
	if err != nil {
		return nil, fmt.Errorf("calculate shares: %w", err)
	}

	if !result.ZeroWeight && rewards.UsesSlashedFixedPool(d) {
		if err := o.applySlashedFixedPool(ctx, d, in, result); err != nil {
			return nil, err
		}
	}

	if result.FixedPoolExhausted {
		log.Warn("fixed pool is exhausted",
			"allocated", result.TotalFixedPoolAmount.String(),
			"available", result.FixedPoolAvailable.String())
	}
	return result, nil
}

// applySlashedFixedPool swaps the flat fixed-pool amounts for the
// multiplier/slashing policy, using the previous period's shares as the
// slashing baseline.
func (o *Orchestrator) applySlashedFixedPool(ctx context.Context, d *storage.Distribution, in rewards.Input, result *rewards.Result) error {
	previousShares, err := o.repo.SharesByNumber(ctx, d.Number-1)
	if err != nil {
		return fmt.Errorf("fetch previous shares: %w", err)
	}
	previousRewards := make(map[uuid.UUID][]*big.Int, len(previousShares))
	for _, s := range previousShares {
		previousRewards[s.UserID] = append(previousRewards[s.UserID], s.Amount)
	}

	slash, err := o.repo.SendSlash(ctx, d.ID)
	if err != nil {
		return fmt.Errorf("fetch send slash config: %w", err)
	}

	result.ApplySlashedFixedPool(in, previousRewards, int64(d.Number), slash)
	return nil
}

// fetchBalances reads the token balance of every hodler address in
// bounded parallel batches, at the distribution's snapshot block when one
// is set.
func (o *Orchestrator) fetchBalances(ctx context.Context, d *storage.Distribution, hodlers []storage.HodlerAddress) ([]rewards.Balance, error) {
	var blockNumber *big.Int
	if d.SnapshotBlockNum != nil {
		blockNumber = big.NewInt(*d.SnapshotBlockNum)
	}

	balances := make([]rewards.Balance, len(hodlers))
	var (
		mu       sync.Mutex
		firstErr error
	)
	batch := ingest.BatchSize()
	for start := 0; start < len(hodlers); start += batch {
		end := start + batch
		if end > len(hodlers) {
			end = len(hodlers)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				h := hodlers[i]
				balance, err := o.client.TokenBalanceAt(ctx, common.HexToAddress(h.Address), blockNumber)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("fetch balance %s: %w", h.Address, err)
					}
					mu.Unlock()
					return
				}
				balances[i] = rewards.Balance{
					UserID:  h.UserID,
					Address: h.Address,
					Balance: balance,
				}
			}(i)
		}
		wg.Wait()

		if firstErr != nil {
			return nil, firstErr
		}
	}
	return balances, nil
}

var _ SnapshotStore = (*snapshot.Store)(nil)
var _ Notifier = (*notify.Notifier)(nil)
var _ DistributionStore = (*storage.DistributionRepository)(nil)
