package rewards

import (
	"math/big"
	"testing"

	"github.com/0xsend/sendapp-sub007/internal/storage"
)

func TestCalculateMultiplier(t *testing.T) {
	cfg := MultiplierConfig{Min: 1.0, Max: 2.0, Step: 0.25}

	tests := []struct {
		name       string
		weight     int64
		current    float64
		hasCurrent bool
		want       float64
	}{
		{"zero weight keeps current", 0, 1.5, true, 1.5},
		{"zero weight defaults to min", 0, 0, false, 1.0},
		{"first completion starts at min", 1, 0, false, 1.0},
		{"completion increments by step", 1, 1.5, true, 1.75},
		{"increment capped at max", 1, 1.9, true, 2.0},
		{"bulk weight from min", 3, 0, false, 1.5},
		{"bulk weight capped at max", 10, 0, false, 2.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateMultiplier(tt.weight, tt.current, tt.hasCurrent, cfg)
			if got != tt.want {
				t.Errorf("CalculateMultiplier(%d, %v, %v) = %v, want %v", tt.weight, tt.current, tt.hasCurrent, got, tt.want)
			}
		})
	}
}

func TestCalculateMultiplierMonotonic(t *testing.T) {
	cfg := MultiplierConfig{Min: 1.0, Max: 3.0, Step: 0.1}
	prev := 0.0
	for w := int64(1); w <= 50; w++ {
		got := CalculateMultiplier(w, 0, false, cfg)
		if got < prev {
			t.Fatalf("multiplier decreased at weight %d: %v < %v", w, got, prev)
		}
		if got > cfg.Max {
			t.Fatalf("multiplier %v exceeds max %v at weight %d", got, cfg.Max, w)
		}
		prev = got
	}
}

func TestMultiplierConfigActive(t *testing.T) {
	tests := []struct {
		cfg  MultiplierConfig
		want bool
	}{
		{MultiplierConfig{Min: 1.0, Max: 1.0, Step: 0}, false},
		{MultiplierConfig{Min: 1.0, Max: 0.5, Step: -1}, false},
		{MultiplierConfig{Min: 1.0, Max: 2.0, Step: 0}, true},
		{MultiplierConfig{Min: 1.0, Max: 1.0, Step: 0.1}, true},
	}
	for _, tt := range tests {
		if got := tt.cfg.Active(); got != tt.want {
			t.Errorf("%+v Active() = %v, want %v", tt.cfg, got, tt.want)
		}
	}
}

func TestCombinedMultiplier(t *testing.T) {
	if got := CombinedMultiplier(nil); got != 1.0 {
		t.Errorf("empty combined multiplier = %v, want 1.0", got)
	}
	got := CombinedMultiplier(map[string]float64{
		"tag_registration": 1.5,
		"tag_referral":     2.0,
	})
	if got != 3.0 {
		t.Errorf("combined multiplier = %v, want 3.0", got)
	}
}

func TestCalculateSlashPercentage(t *testing.T) {
	prev := big.NewInt(1000)

	if got := CalculateSlashPercentage(big.NewInt(500), new(big.Int), 1); got.Sign() != 0 {
		t.Errorf("zero previous reward: slash = %s, want 0", got)
	}

	if got := CalculateSlashPercentage(big.NewInt(1000), prev, 1); got.Cmp(PercDenom) != 0 {
		t.Errorf("weight == prev: slash = %s, want %s", got, PercDenom)
	}
	if got := CalculateSlashPercentage(big.NewInt(5000), prev, 1); got.Cmp(PercDenom) != 0 {
		t.Errorf("weight > prev: slash = %s, want %s", got, PercDenom)
	}

	half := new(big.Int).Quo(PercDenom, big.NewInt(2))
	if got := CalculateSlashPercentage(big.NewInt(500), prev, 1); got.Cmp(half) != 0 {
		t.Errorf("half weight: slash = %s, want %s", got, half)
	}

	// scalingDivisor shrinks the target: 500 against 1000/2 is full keep.
	if got := CalculateSlashPercentage(big.NewInt(500), prev, 2); got.Cmp(PercDenom) != 0 {
		t.Errorf("scaled weight == scaled prev: slash = %s, want %s", got, PercDenom)
	}

	last := new(big.Int)
	for w := int64(0); w <= 1000; w += 100 {
		got := CalculateSlashPercentage(big.NewInt(w), prev, 1)
		if got.Cmp(last) < 0 {
			t.Fatalf("slash decreased at weight %d: %s < %s", w, got, last)
		}
		last = got
	}
}

func TestCalculateFixedPoolAmount(t *testing.T) {
	base := big.NewInt(1000)
	noSlash := PercDenom
	halfSlash := new(big.Int).Quo(PercDenom, big.NewInt(2))

	tests := []struct {
		name       string
		multiplier float64
		slash      *big.Int
		cap        int64
		want       int64
	}{
		{"multiplier only", 1.5, noSlash, 10_000, 1500},
		{"capped at hodler entitlement", 1.5, noSlash, 1200, 1200},
		{"slashing halves", 1.5, halfSlash, 10_000, 750},
		{"identity", 1.0, noSlash, 10_000, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateFixedPoolAmount(base, tt.multiplier, tt.slash, big.NewInt(tt.cap))
			if got.Int64() != tt.want {
				t.Errorf("CalculateFixedPoolAmount = %s, want %d", got, tt.want)
			}
		})
	}
}

func TestCalculateTaskAmountZeroSendWeight(t *testing.T) {
	got := CalculateTaskAmount(big.NewInt(1000), map[string]float64{"x": 2.0}, new(big.Int), big.NewInt(500), 1)
	if got.Sign() != 0 {
		t.Errorf("zero send ceiling weight: amount = %s, want 0", got)
	}
}

func TestCalculateTaskAmount(t *testing.T) {
	// 1000 * 2.0, then half slash (500 of prev 1000).
	got := CalculateTaskAmount(big.NewInt(1000), map[string]float64{"x": 2.0}, big.NewInt(500), big.NewInt(1000), 1)
	if got.Int64() != 1000 {
		t.Errorf("task amount = %s, want 1000", got)
	}
}

func TestPreviousReward(t *testing.T) {
	minBalance := big.NewInt(77)

	if got := PreviousReward(nil, 12, minBalance); got.Cmp(minBalance) != 0 {
		t.Errorf("no prior shares: previous reward = %s, want %s", got, minBalance)
	}

	amounts := []*big.Int{big.NewInt(100), big.NewInt(50)}
	if got := PreviousReward(amounts, 12, minBalance); got.Int64() != 150 {
		t.Errorf("previous reward = %s, want 150", got)
	}

	// Distribution 11's baseline amounts predate the decimal migration
	// and are scaled up; the correction is keyed on the current
	// distribution's number, so number 12 reads its baseline unscaled.
	want := new(big.Int).Mul(big.NewInt(150), Distribution11Factor)
	if got := PreviousReward(amounts, 11, minBalance); got.Cmp(want) != 0 {
		t.Errorf("distribution 11 previous reward = %s, want %s", got, want)
	}
	if got := PreviousReward([]*big.Int{big.NewInt(100)}, 12, minBalance); got.Int64() != 100 {
		t.Errorf("distribution 12 previous reward = %s, want 100", got)
	}
}

func TestUserMultipliersSkipsInertAndZeroWeight(t *testing.T) {
	values := map[string]storage.VerificationValue{
		"tag_referral":     {Type: "tag_referral", MultiplierMin: 1.0, MultiplierMax: 2.0, MultiplierStep: 0.5},
		"create_passkey":   {Type: "create_passkey", MultiplierMin: 1.0, MultiplierMax: 1.0, MultiplierStep: 0},
		"tag_registration": {Type: "tag_registration", MultiplierMin: 1.0, MultiplierMax: 3.0, MultiplierStep: 0.1},
	}
	verifications := []storage.Verification{
		{Type: "tag_referral", Weight: 3},
		{Type: "create_passkey", Weight: 5},
		{Type: "tag_registration", Weight: 0},
		{Type: "unknown_type", Weight: 2},
	}

	got := UserMultipliers(verifications, values)
	if len(got) != 1 {
		t.Fatalf("got %d multipliers, want 1: %v", len(got), got)
	}
	if got["tag_referral"] != 2.0 {
		t.Errorf("tag_referral multiplier = %v, want 2.0", got["tag_referral"])
	}
}
