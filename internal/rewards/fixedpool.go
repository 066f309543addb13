package rewards

import (
	"math/big"

	"github.com/google/uuid"

	"github.com/0xsend/sendapp-sub007/internal/storage"
)

// SendCeilingType is the verification type carrying a user's send-activity
// weight; its presence in a distribution's value config selects the
// slashed fixed-pool policy.
const SendCeilingType = "send_ceiling"

// UsesSlashedFixedPool reports whether the distribution's value config
// opts into the multiplier/slashing fixed-pool policy.
func UsesSlashedFixedPool(d *storage.Distribution) bool {
	for _, v := range d.VerificationValues {
		if v.Type == SendCeilingType {
			return true
		}
	}
	return false
}

// ApplySlashedFixedPool replaces the flat fixed-pool amounts on the result
// with the multiplier/slashing policy: each user's base award
// (Σ fixedValue × weight) is scaled by the combined multiplier, slashed
// against their previous-period reward, capped at their hodler-pool
// entitlement, and allocated against the pool cap in user-id order.
// previousRewards maps users to their prior-period payout; users without
// one fall back to the distribution's hodler_min_balance.
// distributionNumber is the current distribution's number, which selects
// the decimal-migration correction on the baseline.
func (r *Result) ApplySlashedFixedPool(in Input, previousRewards map[uuid.UUID][]*big.Int, distributionNumber int64, slash storage.SendSlash) {
	d := in.Distribution

	valuesByType := make(map[string]storage.VerificationValue, len(d.VerificationValues))
	for _, v := range d.VerificationValues {
		valuesByType[v.Type] = v
	}

	verificationsByUser := make(map[uuid.UUID][]storage.Verification)
	for _, v := range in.Verifications {
		verificationsByUser[v.UserID] = append(verificationsByUser[v.UserID], v)
	}

	shareByUser := make(map[uuid.UUID]*storage.Share, len(r.Shares))
	for i := range r.Shares {
		shareByUser[r.Shares[i].UserID] = &r.Shares[i]
	}

	divisor := int64(slash.ScalingDivisor)
	if divisor <= 0 {
		divisor = 1
	}

	allocated := new(big.Int)
	totalFixed := new(big.Int)

	for _, userID := range SortedUserIDs(verificationsByUser) {
		share, ok := shareByUser[userID]
		if !ok {
			continue
		}

		base := new(big.Int)
		sendCeilingWeight := new(big.Int)
		for _, v := range verificationsByUser[userID] {
			if v.Type == SendCeilingType {
				sendCeilingWeight.SetInt64(v.Weight)
				continue
			}
			value, ok := valuesByType[v.Type]
			if !ok || value.FixedValue == nil || value.FixedValue.Sign() == 0 {
				continue
			}
			base.Add(base, new(big.Int).Mul(value.FixedValue, big.NewInt(v.Weight)))
		}

		share.FixedPoolAmount = new(big.Int)
		if base.Sign() == 0 {
			continue
		}

		previousReward := PreviousReward(previousRewards[userID], distributionNumber, d.HodlerMinBalance)
		amount := CalculateTaskAmount(base, UserMultipliers(verificationsByUser[userID], valuesByType), sendCeilingWeight, previousReward, divisor)
		if amount.Cmp(share.HodlerPoolAmount) > 0 {
			amount.Set(share.HodlerPoolAmount)
		}

		next := new(big.Int).Add(allocated, amount)
		if next.Cmp(r.FixedPoolAvailable) > 0 {
			continue
		}
		allocated.Set(next)
		share.FixedPoolAmount = amount
		totalFixed.Add(totalFixed, amount)
	}

	r.TotalFixedPoolAmount = totalFixed
	r.FixedPoolExhausted = r.FixedPoolAvailable.Sign() > 0 && totalFixed.Cmp(r.FixedPoolAvailable) >= 0
}
