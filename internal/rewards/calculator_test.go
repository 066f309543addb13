package rewards

import (
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/0xsend/sendapp-sub007/internal/storage"
)

var (
	userA = uuid.UUID{0x01}
	userB = uuid.UUID{0x02}

	addrA = "0xaaaa000000000000000000000000000000000001"
	addrB = "0xbbbb000000000000000000000000000000000002"
)

func testDistribution(amount int64, hodlerBips, bonusBips, fixedBips int64) *storage.Distribution {
	now := time.Now()
	return &storage.Distribution{
		ID:                 7,
		Number:             7,
		Name:               "distribution #7",
		Amount:             big.NewInt(amount),
		HodlerPoolBips:     hodlerBips,
		BonusPoolBips:      bonusBips,
		FixedPoolBips:      fixedBips,
		HodlerMinBalance:   big.NewInt(0),
		QualificationStart: now.Add(-time.Hour),
		QualificationEnd:   now.Add(time.Hour),
	}
}

func testHodlers() []storage.HodlerAddress {
	return []storage.HodlerAddress{
		{UserID: userA, Address: addrA},
		{UserID: userB, Address: addrB},
	}
}

func shareFor(t *testing.T, res *Result, userID uuid.UUID) storage.Share {
	t.Helper()
	for _, s := range res.Shares {
		if s.UserID == userID {
			return s
		}
	}
	t.Fatalf("no share for user %s", userID)
	return storage.Share{}
}

func TestCalculatePoolSharesProportionalSplit(t *testing.T) {
	in := Input{
		Distribution: testDistribution(1_000_000, 6500, 3500, 0),
		Hodlers:      testHodlers(),
		Balances: []Balance{
			{UserID: userA, Address: addrA, Balance: big.NewInt(700)},
			{UserID: userB, Address: addrB, Balance: big.NewInt(300)},
		},
	}

	res, err := CalculatePoolShares(in, nil)
	if err != nil {
		t.Fatalf("CalculatePoolShares: %v", err)
	}

	if got, want := res.HodlerPoolAvailable.Int64(), int64(650_000); got != want {
		t.Errorf("hodler pool available = %d, want %d", got, want)
	}
	if got, want := res.TotalWeight.Int64(), int64(1000); got != want {
		t.Errorf("total weight = %d, want %d", got, want)
	}
	if got, want := res.WeightPerSend.Int64(), int64(15); got != want {
		t.Errorf("weight per send = %d, want %d", got, want)
	}
	if len(res.Shares) != 2 {
		t.Fatalf("got %d shares, want 2", len(res.Shares))
	}
	if got, want := shareFor(t, res, userA).HodlerPoolAmount.Int64(), int64(466_666); got != want {
		t.Errorf("user A hodler amount = %d, want %d", got, want)
	}
	if got, want := shareFor(t, res, userB).HodlerPoolAmount.Int64(), int64(200_000); got != want {
		t.Errorf("user B hodler amount = %d, want %d", got, want)
	}
}

func TestCalculatePoolSharesMinBalanceFilter(t *testing.T) {
	d := testDistribution(1_000_000, 6500, 0, 0)
	d.HodlerMinBalance = big.NewInt(500)

	in := Input{
		Distribution: d,
		Hodlers:      testHodlers(),
		Balances: []Balance{
			{UserID: userA, Address: addrA, Balance: big.NewInt(700)},
			{UserID: userB, Address: addrB, Balance: big.NewInt(300)},
		},
	}

	res, err := CalculatePoolShares(in, nil)
	if err != nil {
		t.Fatalf("CalculatePoolShares: %v", err)
	}
	if len(res.Shares) != 1 {
		t.Fatalf("got %d shares, want 1", len(res.Shares))
	}
	if res.Shares[0].UserID != userA {
		t.Errorf("share went to %s, want user A", res.Shares[0].UserID)
	}
}

func TestCalculatePoolSharesZeroWeight(t *testing.T) {
	d := testDistribution(1_000_000, 6500, 0, 0)
	d.HodlerMinBalance = big.NewInt(1_000_000)

	in := Input{
		Distribution: d,
		Hodlers:      testHodlers(),
		Balances: []Balance{
			{UserID: userA, Address: addrA, Balance: big.NewInt(700)},
		},
	}

	res, err := CalculatePoolShares(in, nil)
	if err != nil {
		t.Fatalf("zero total weight must not error, got %v", err)
	}
	if !res.ZeroWeight {
		t.Error("ZeroWeight = false, want true")
	}
	if len(res.Shares) != 0 {
		t.Errorf("got %d shares, want 0", len(res.Shares))
	}
}

func TestCalculatePoolSharesBonusCap(t *testing.T) {
	d := testDistribution(1_000_000, 6500, 3500, 0)
	// Sums way past maxBonusPoolBips = 3500*10000/6500 = 5384.
	d.VerificationValues = []storage.VerificationValue{
		{Type: "tag_registration", BipsValue: 4000},
		{Type: "tag_referral", BipsValue: 5000},
	}

	in := Input{
		Distribution: d,
		Hodlers:      testHodlers(),
		Balances: []Balance{
			{UserID: userA, Address: addrA, Balance: big.NewInt(700)},
			{UserID: userB, Address: addrB, Balance: big.NewInt(300)},
		},
		Verifications: []storage.Verification{
			{UserID: userA, Type: "tag_registration", Weight: 1},
			{UserID: userA, Type: "tag_referral", Weight: 1},
		},
	}

	res, err := CalculatePoolShares(in, nil)
	if err != nil {
		t.Fatalf("CalculatePoolShares: %v", err)
	}

	// 466,666 * 5384 / 10000, bips capped before application.
	if got, want := shareFor(t, res, userA).BonusPoolAmount.Int64(), int64(251_252); got != want {
		t.Errorf("user A bonus amount = %d, want %d", got, want)
	}
	if got := shareFor(t, res, userB).BonusPoolAmount.Int64(); got != 0 {
		t.Errorf("user B bonus amount = %d, want 0", got)
	}
	a := shareFor(t, res, userA)
	if got, want := a.Amount.Int64(), a.HodlerPoolAmount.Int64()+a.BonusPoolAmount.Int64(); got != want {
		t.Errorf("user A total = %d, want hodler+bonus = %d", got, want)
	}
}

func TestCalculatePoolSharesFixedPoolCap(t *testing.T) {
	d := testDistribution(1_000_000, 6500, 0, 1000)
	d.VerificationValues = []storage.VerificationValue{
		{Type: "create_passkey", FixedValue: big.NewInt(60_000)},
	}

	in := Input{
		Distribution: d,
		Hodlers:      testHodlers(),
		Balances: []Balance{
			{UserID: userA, Address: addrA, Balance: big.NewInt(700)},
			{UserID: userB, Address: addrB, Balance: big.NewInt(300)},
		},
		Verifications: []storage.Verification{
			{UserID: userA, Type: "create_passkey", Weight: 1},
			{UserID: userB, Type: "create_passkey", Weight: 1},
		},
	}

	res, err := CalculatePoolShares(in, nil)
	if err != nil {
		t.Fatalf("CalculatePoolShares: %v", err)
	}

	// fixedPoolAvailable = 100,000: user A (lower id) gets the full award,
	// user B's would overrun the cap and is skipped entirely.
	if got, want := shareFor(t, res, userA).FixedPoolAmount.Int64(), int64(60_000); got != want {
		t.Errorf("user A fixed amount = %d, want %d", got, want)
	}
	if got := shareFor(t, res, userB).FixedPoolAmount.Int64(); got != 0 {
		t.Errorf("user B fixed amount = %d, want 0 (all-or-nothing cap)", got)
	}
	if res.TotalFixedPoolAmount.Cmp(res.FixedPoolAvailable) > 0 {
		t.Errorf("total fixed %s exceeds available %s", res.TotalFixedPoolAmount, res.FixedPoolAvailable)
	}
}

func TestCalculatePoolSharesDropsUnresolvableAddress(t *testing.T) {
	in := Input{
		Distribution: testDistribution(1_000_000, 6500, 0, 0),
		Hodlers: []storage.HodlerAddress{
			{UserID: userA, Address: addrA},
		},
		Balances: []Balance{
			{UserID: userA, Address: addrA, Balance: big.NewInt(700)},
			{UserID: userB, Address: addrB, Balance: big.NewInt(300)},
		},
	}

	res, err := CalculatePoolShares(in, nil)
	if err != nil {
		t.Fatalf("CalculatePoolShares: %v", err)
	}
	if len(res.Shares) != 1 {
		t.Fatalf("got %d shares, want 1 (orphan address dropped)", len(res.Shares))
	}
	if res.Shares[0].UserID != userA {
		t.Errorf("share went to %s, want user A", res.Shares[0].UserID)
	}
}

func TestCalculatePoolSharesAddressCaseInsensitive(t *testing.T) {
	in := Input{
		Distribution: testDistribution(1_000_000, 6500, 0, 0),
		Hodlers: []storage.HodlerAddress{
			{UserID: userA, Address: "0xAAAA000000000000000000000000000000000001"},
		},
		Balances: []Balance{
			{UserID: userA, Address: addrA, Balance: big.NewInt(700)},
		},
	}

	res, err := CalculatePoolShares(in, nil)
	if err != nil {
		t.Fatalf("CalculatePoolShares: %v", err)
	}
	if len(res.Shares) != 1 {
		t.Fatalf("got %d shares, want 1", len(res.Shares))
	}
	if res.Shares[0].Address != addrA {
		t.Errorf("share address = %q, want lowercase %q", res.Shares[0].Address, addrA)
	}
}

func TestCalculatePercentageWithBips(t *testing.T) {
	tests := []struct {
		value int64
		bips  int64
		want  int64
	}{
		{1_000_000, 6500, 650_000},
		{1_000_000, 10000, 1_000_000},
		{1_000_000, 0, 0},
		{3, 5000, 1}, // rounds down
	}
	for _, tt := range tests {
		got := CalculatePercentageWithBips(big.NewInt(tt.value), tt.bips)
		if got.Int64() != tt.want {
			t.Errorf("CalculatePercentageWithBips(%d, %d) = %d, want %d", tt.value, tt.bips, got, tt.want)
		}
	}
}
