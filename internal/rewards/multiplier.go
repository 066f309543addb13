package rewards

import (
	"bytes"
	"math"
	"math/big"
	"sort"

	"github.com/google/uuid"

	"github.com/0xsend/sendapp-sub007/internal/storage"
)

// Distribution11Factor is the one-off correction applied to prior share
// amounts when computing distribution 11's slashing baseline; the
// preceding period's amounts were recorded before the token's decimal
// migration.
var Distribution11Factor = new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil)

// MultiplierConfig is one verification type's bonus multiplier curve.
type MultiplierConfig struct {
	Min  float64
	Max  float64
	Step float64
}

// Active reports whether the curve participates in multiplier
// computation. A curve that can never raise the multiplier above 1.0
// is inert and excluded.
func (c MultiplierConfig) Active() bool {
	return c.Step > 0 || c.Max > 1.0
}

// CalculateMultiplier returns the multiplier for a verification type after
// observing weight completions. current carries the running value from
// earlier observations of the same type; hasCurrent is false on the first.
func CalculateMultiplier(weight int64, current float64, hasCurrent bool, cfg MultiplierConfig) float64 {
	if weight == 0 {
		if hasCurrent {
			return current
		}
		return cfg.Min
	}
	if weight == 1 {
		if !hasCurrent {
			return cfg.Min
		}
		return math.Min(current+cfg.Step, cfg.Max)
	}
	return math.Min(cfg.Min+float64(weight-1)*cfg.Step, cfg.Max)
}

// CombinedMultiplier returns the product of all per-type multipliers.
// Types with no recorded value contribute 1.0.
func CombinedMultiplier(multipliers map[string]float64) float64 {
	combined := 1.0
	for _, m := range multipliers {
		combined *= m
	}
	return combined
}

// CalculateSlashPercentage expresses how much of a reward the user keeps,
// as a fraction with denominator PercDenom, based on their send-activity
// weight relative to the previous period's reward scaled down by
// scalingDivisor. Weight at or above the scaled previous reward means no
// slashing (PercDenom, 100%).
func CalculateSlashPercentage(sendCeilingWeight, previousReward *big.Int, scalingDivisor int64) *big.Int {
	if previousReward.Sign() == 0 {
		return new(big.Int)
	}

	scaledPrev := new(big.Int).Mul(previousReward, PercDenom)
	scaledPrev.Quo(scaledPrev, big.NewInt(scalingDivisor))

	capped := new(big.Int).Mul(sendCeilingWeight, PercDenom)
	if capped.Cmp(scaledPrev) > 0 {
		capped.Set(scaledPrev)
	}

	capped.Mul(capped, PercDenom)
	return capped.Quo(capped, scaledPrev)
}

// PreviousReward sums the user's prior-period share amounts, defaulting to
// hodlerMinBalance when no prior shares exist. distributionNumber is the
// current distribution's number; number 11 scales the prior amounts by
// Distribution11Factor.
func PreviousReward(previousAmounts []*big.Int, distributionNumber int64, hodlerMinBalance *big.Int) *big.Int {
	if len(previousAmounts) == 0 {
		return new(big.Int).Set(hodlerMinBalance)
	}
	total := new(big.Int)
	for _, a := range previousAmounts {
		if distributionNumber == 11 {
			total.Add(total, new(big.Int).Mul(a, Distribution11Factor))
		} else {
			total.Add(total, a)
		}
	}
	return total
}

// ApplyMultiplier scales base by a float multiplier using PercDenom
// fixed-point rounding.
func ApplyMultiplier(base *big.Int, multiplier float64) *big.Int {
	scaled := big.NewInt(int64(math.Round(multiplier * 1e18)))
	out := new(big.Int).Mul(base, scaled)
	return out.Quo(out, PercDenom)
}

// CalculateFixedPoolAmount applies the multiplier, then the slash
// percentage, then caps the result at the user's hodler-pool entitlement.
func CalculateFixedPoolAmount(base *big.Int, multiplier float64, slashPercentage, hodlerCap *big.Int) *big.Int {
	amount := ApplyMultiplier(base, multiplier)
	amount.Mul(amount, slashPercentage)
	amount.Quo(amount, PercDenom)
	if amount.Cmp(hodlerCap) > 0 {
		amount.Set(hodlerCap)
	}
	return amount
}

// CalculateTaskAmount composes the full per-task pipeline: combined
// multiplier, then slashing against the previous reward. A zero
// sendCeilingWeight forces the amount to zero regardless of multiplier.
func CalculateTaskAmount(taskBase *big.Int, multipliers map[string]float64, sendCeilingWeight, previousReward *big.Int, scalingDivisor int64) *big.Int {
	amount := ApplyMultiplier(taskBase, CombinedMultiplier(multipliers))
	if sendCeilingWeight.Sign() <= 0 {
		return new(big.Int)
	}
	slash := CalculateSlashPercentage(sendCeilingWeight, previousReward, scalingDivisor)
	amount.Mul(amount, slash)
	return amount.Quo(amount, PercDenom)
}

// UserMultipliers computes the per-type multipliers for one user's
// verifications against the distribution's value config. Inert curves and
// zero-weight verifications are skipped.
func UserMultipliers(verifications []storage.Verification, valuesByType map[string]storage.VerificationValue) map[string]float64 {
	multipliers := make(map[string]float64)
	for _, v := range verifications {
		value, ok := valuesByType[v.Type]
		if !ok {
			continue
		}
		cfg := MultiplierConfig{
			Min:  value.MultiplierMin,
			Max:  value.MultiplierMax,
			Step: value.MultiplierStep,
		}
		if !cfg.Active() || v.Weight == 0 {
			continue
		}
		multipliers[v.Type] = CalculateMultiplier(v.Weight, 0, false, cfg)
	}
	return multipliers
}

// SortedUserIDs returns the map's keys in ascending byte order. The fixed
// pool is a running global cap, so callers need a stable iteration order.
func SortedUserIDs[V any](byUser map[uuid.UUID]V) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(byUser))
	for id := range byUser {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}
