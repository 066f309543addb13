// Package rewards implements the share calculator: pure pool math that
// splits one distribution's reward amount across eligible accounts using
// balance-proportional, fixed-value and bonus-multiplier sub-pools.
package rewards

import (
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/0xsend/sendapp-sub007/internal/storage"
)

// BipsDenom is the basis-point denominator used for pool sizing.
var BipsDenom = big.NewInt(10000)

// PercDenom is the fixed-point denominator (1e18) used by the slashing
// and multiplier path.
var PercDenom = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Balance is one on-chain token balance read for a hodler address.
type Balance struct {
	UserID  uuid.UUID
	Address string
	Balance *big.Int
}

// Input carries everything the calculator needs for one distribution.
type Input struct {
	Distribution  *storage.Distribution
	Verifications []storage.Verification
	Hodlers       []storage.HodlerAddress
	Balances      []Balance
}

// Result is the computed share set plus the aggregate totals tracked for
// auditability.
type Result struct {
	Shares []storage.Share

	HodlerPoolAvailable *big.Int
	FixedPoolAvailable  *big.Int
	TotalWeight         *big.Int
	WeightPerSend       *big.Int

	TotalAmount           *big.Int
	TotalHodlerPoolAmount *big.Int
	TotalBonusPoolAmount  *big.Int
	TotalFixedPoolAmount  *big.Int

	// ZeroWeight is set when no balance passed the eligibility floor.
	// The share set is empty and the caller should skip persistence.
	ZeroWeight bool

	FixedPoolExhausted bool
}

// CalculatePercentageWithBips returns value * bips / 10000, rounding down.
func CalculatePercentageWithBips(value *big.Int, bips int64) *big.Int {
	out := new(big.Int).Mul(value, big.NewInt(bips))
	return out.Quo(out, BipsDenom)
}

// CalculatePoolShares computes the final per-address shares for one
// distribution across the hodler, fixed and bonus pools.
//
// Iteration order is deterministic: users ascending by id, verifications
// within a user in repository fetch order. Because the fixed pool is a
// running global cap, this order decides who receives the last marginal
// fixed award.
func CalculatePoolShares(in Input, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := in.Distribution

	// Hodler pool: balance-proportional split over qualifying balances.
	poolWeights := make(map[string]*big.Int)
	totalWeight := new(big.Int)
	for _, b := range in.Balances {
		if b.Balance.Cmp(d.HodlerMinBalance) < 0 {
			continue
		}
		addr := normalizeAddress(b.Address)
		w, ok := poolWeights[addr]
		if !ok {
			w = new(big.Int)
			poolWeights[addr] = w
		}
		w.Add(w, b.Balance)
		totalWeight.Add(totalWeight, b.Balance)
	}

	hodlerPoolAvailable := CalculatePercentageWithBips(d.Amount, d.HodlerPoolBips)

	if totalWeight.Sign() == 0 {
		logger.Warn("total hodler weight is zero, skipping share computation",
			"distribution_id", d.ID, "hodler_min_balance", d.HodlerMinBalance)
		return &Result{
			HodlerPoolAvailable:   hodlerPoolAvailable,
			FixedPoolAvailable:    CalculatePercentageWithBips(d.Amount, d.FixedPoolBips),
			TotalWeight:           totalWeight,
			WeightPerSend:         new(big.Int),
			TotalAmount:           new(big.Int),
			TotalHodlerPoolAmount: new(big.Int),
			TotalBonusPoolAmount:  new(big.Int),
			TotalFixedPoolAmount:  new(big.Int),
			ZeroWeight:            true,
		}, nil
	}
	if hodlerPoolAvailable.Sign() == 0 {
		return nil, fmt.Errorf("hodler pool available amount is zero")
	}

	// weightPerSend is the exchange rate between raw balance weight and
	// the pool's 10000-denominated unit. The two-step form is preserved
	// exactly for reproducible rounding.
	weightPerSend := new(big.Int).Mul(totalWeight, BipsDenom)
	weightPerSend.Quo(weightPerSend, hodlerPoolAvailable)
	if weightPerSend.Sign() == 0 {
		return nil, fmt.Errorf("weight per send rounds to zero (total weight %s, pool %s)", totalWeight, hodlerPoolAvailable)
	}

	hodlerShares := make(map[string]*big.Int)
	for addr, weight := range poolWeights {
		share := new(big.Int).Mul(weight, BipsDenom)
		share.Quo(share, weightPerSend)
		if share.Sign() > 0 {
			hodlerShares[addr] = share
		}
	}

	// Per-type value config and per-user verification grouping.
	valuesByType := make(map[string]storage.VerificationValue, len(d.VerificationValues))
	for _, v := range d.VerificationValues {
		valuesByType[v.Type] = v
	}

	verificationsByUser := make(map[uuid.UUID][]storage.Verification)
	for _, v := range in.Verifications {
		verificationsByUser[v.UserID] = append(verificationsByUser[v.UserID], v)
	}
	userIDs := SortedUserIDs(verificationsByUser)

	addressByUser := make(map[uuid.UUID]string, len(in.Hodlers))
	userByAddress := make(map[string]uuid.UUID, len(in.Hodlers))
	for _, h := range in.Hodlers {
		addr := normalizeAddress(h.Address)
		addressByUser[h.UserID] = addr
		userByAddress[addr] = h.UserID
	}

	// Fixed pool: flat per-verification awards against a running global
	// cap, first-come in user-id order. Bonus pool: accumulated bips per
	// user, capped at maxBonusPoolBips.
	fixedPoolAvailable := CalculatePercentageWithBips(d.Amount, d.FixedPoolBips)
	fixedPoolAllocated := new(big.Int)
	fixedByAddress := make(map[string]*big.Int)
	bonusBipsByAddress := make(map[string]*big.Int)

	maxBonusPoolBips := new(big.Int)
	if d.HodlerPoolBips > 0 {
		maxBonusPoolBips.Mul(big.NewInt(d.BonusPoolBips), BipsDenom)
		maxBonusPoolBips.Quo(maxBonusPoolBips, big.NewInt(d.HodlerPoolBips))
	}

	for _, userID := range userIDs {
		addr, ok := addressByUser[userID]
		if !ok {
			logger.Debug("no hodler address for user, skipping verifications", "user_id", userID)
			continue
		}
		for _, v := range verificationsByUser[userID] {
			if v.Weight == 0 {
				continue
			}
			value, ok := valuesByType[v.Type]
			if !ok {
				continue
			}
			if value.FixedValue != nil && value.FixedValue.Sign() > 0 {
				next := new(big.Int).Add(fixedPoolAllocated, value.FixedValue)
				if next.Cmp(fixedPoolAvailable) <= 0 {
					cur, ok := fixedByAddress[addr]
					if !ok {
						cur = new(big.Int)
						fixedByAddress[addr] = cur
					}
					cur.Add(cur, value.FixedValue)
					fixedPoolAllocated.Set(next)
				}
			}
			if value.BipsValue > 0 {
				cur, ok := bonusBipsByAddress[addr]
				if !ok {
					cur = new(big.Int)
					bonusBipsByAddress[addr] = cur
				}
				cur.Add(cur, big.NewInt(value.BipsValue))
				if cur.Cmp(maxBonusPoolBips) > 0 {
					cur.Set(maxBonusPoolBips)
				}
			}
		}
	}

	// Assembly: one share per address with a nonzero hodler share and a
	// resolvable owning user.
	addresses := make([]string, 0, len(hodlerShares))
	for addr := range hodlerShares {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)

	result := &Result{
		HodlerPoolAvailable:   hodlerPoolAvailable,
		FixedPoolAvailable:    fixedPoolAvailable,
		TotalWeight:           totalWeight,
		WeightPerSend:         weightPerSend,
		TotalAmount:           new(big.Int),
		TotalHodlerPoolAmount: new(big.Int),
		TotalBonusPoolAmount:  new(big.Int),
		TotalFixedPoolAmount:  new(big.Int),
	}

	for _, addr := range addresses {
		userID, ok := userByAddress[addr]
		if !ok {
			// Addresses may belong to accounts without a completed profile.
			logger.Debug("no user for address, dropping share", "address", addr)
			continue
		}

		hodlerAmount := hodlerShares[addr]
		bonusBips := bonusBipsByAddress[addr]
		bonusAmount := new(big.Int)
		if bonusBips != nil && bonusBips.Sign() > 0 {
			bonusAmount.Mul(hodlerAmount, bonusBips)
			bonusAmount.Quo(bonusAmount, BipsDenom)
		}
		fixedAmount := new(big.Int)
		if f, ok := fixedByAddress[addr]; ok {
			fixedAmount.Set(f)
		}

		amount := new(big.Int).Add(hodlerAmount, bonusAmount)

		result.TotalAmount.Add(result.TotalAmount, amount)
		result.TotalHodlerPoolAmount.Add(result.TotalHodlerPoolAmount, hodlerAmount)
		result.TotalBonusPoolAmount.Add(result.TotalBonusPoolAmount, bonusAmount)
		result.TotalFixedPoolAmount.Add(result.TotalFixedPoolAmount, fixedAmount)

		result.Shares = append(result.Shares, storage.Share{
			DistributionID:   d.ID,
			UserID:           userID,
			Address:          addr,
			Amount:           amount,
			HodlerPoolAmount: hodlerAmount,
			BonusPoolAmount:  bonusAmount,
			FixedPoolAmount:  fixedAmount,
			Index:            len(result.Shares),
		})
	}

	result.FixedPoolExhausted = result.TotalFixedPoolAmount.Cmp(fixedPoolAvailable) >= 0 && fixedPoolAvailable.Sign() > 0

	// Share amounts must never exceed the total distribution amount.
	granted := new(big.Int).Add(result.TotalAmount, result.TotalFixedPoolAmount)
	if granted.Cmp(d.Amount) > 0 {
		return nil, fmt.Errorf("share amounts %s exceed distribution amount %s", granted, d.Amount)
	}

	return result, nil
}

func normalizeAddress(addr string) string {
	return strings.ToLower(addr)
}
