package rewards

import (
	"math/big"
	"testing"

	"github.com/google/uuid"

	"github.com/0xsend/sendapp-sub007/internal/storage"
)

func TestUsesSlashedFixedPool(t *testing.T) {
	d := testDistribution(1_000_000, 6500, 0, 1000)
	if UsesSlashedFixedPool(d) {
		t.Error("distribution without send_ceiling config uses slashed policy")
	}
	d.VerificationValues = append(d.VerificationValues, storage.VerificationValue{Type: SendCeilingType})
	if !UsesSlashedFixedPool(d) {
		t.Error("distribution with send_ceiling config does not use slashed policy")
	}
}

func TestApplySlashedFixedPool(t *testing.T) {
	d := testDistribution(1_000_000, 6500, 0, 1000)
	d.HodlerMinBalance = big.NewInt(0)
	d.VerificationValues = []storage.VerificationValue{
		{Type: SendCeilingType},
		{Type: "create_passkey", FixedValue: big.NewInt(10_000)},
	}

	in := Input{
		Distribution: d,
		Hodlers:      testHodlers(),
		Balances: []Balance{
			{UserID: userA, Address: addrA, Balance: big.NewInt(700)},
			{UserID: userB, Address: addrB, Balance: big.NewInt(300)},
		},
		Verifications: []storage.Verification{
			// User A sent at their full previous reward: no slashing.
			{UserID: userA, Type: "create_passkey", Weight: 1},
			{UserID: userA, Type: SendCeilingType, Weight: 1000},
			// User B has no send activity: fully slashed.
			{UserID: userB, Type: "create_passkey", Weight: 1},
		},
	}

	res, err := CalculatePoolShares(in, nil)
	if err != nil {
		t.Fatalf("CalculatePoolShares: %v", err)
	}

	previous := map[uuid.UUID][]*big.Int{
		userA: {big.NewInt(1000)},
		userB: {big.NewInt(1000)},
	}
	res.ApplySlashedFixedPool(in, previous, 12, storage.SendSlash{ScalingDivisor: 1})

	if got, want := shareFor(t, res, userA).FixedPoolAmount.Int64(), int64(10_000); got != want {
		t.Errorf("user A fixed amount = %d, want %d (unslashed)", got, want)
	}
	if got := shareFor(t, res, userB).FixedPoolAmount.Int64(); got != 0 {
		t.Errorf("user B fixed amount = %d, want 0 (zero send weight)", got)
	}
	if got, want := res.TotalFixedPoolAmount.Int64(), int64(10_000); got != want {
		t.Errorf("total fixed = %d, want %d", got, want)
	}
}

func TestApplySlashedFixedPoolHodlerCap(t *testing.T) {
	d := testDistribution(1_000_000, 6500, 0, 6000)
	d.HodlerMinBalance = big.NewInt(100)
	d.VerificationValues = []storage.VerificationValue{
		{Type: SendCeilingType},
		{Type: "tag_referral", FixedValue: big.NewInt(100_000_000)},
	}

	in := Input{
		Distribution: d,
		Hodlers:      testHodlers(),
		Balances: []Balance{
			{UserID: userA, Address: addrA, Balance: big.NewInt(700)},
			{UserID: userB, Address: addrB, Balance: big.NewInt(300)},
		},
		Verifications: []storage.Verification{
			{UserID: userA, Type: "tag_referral", Weight: 1},
			{UserID: userA, Type: SendCeilingType, Weight: 1_000_000},
		},
	}

	res, err := CalculatePoolShares(in, nil)
	if err != nil {
		t.Fatalf("CalculatePoolShares: %v", err)
	}

	res.ApplySlashedFixedPool(in, nil, 12, storage.SendSlash{ScalingDivisor: 1})

	// The enormous base award is capped at user A's hodler entitlement.
	a := shareFor(t, res, userA)
	if a.FixedPoolAmount.Cmp(a.HodlerPoolAmount) != 0 {
		t.Errorf("fixed amount %s not capped at hodler amount %s", a.FixedPoolAmount, a.HodlerPoolAmount)
	}
}
