package storage

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// TransferLog is one ingested ERC-20 Transfer event. Rows are created
// once per observed event and never mutated; the composite key
// (block_hash, tx_hash, log_index) makes re-ingestion idempotent.
type TransferLog struct {
	BlockHash      string    `db:"block_hash"`
	BlockNumber    uint64    `db:"block_number"`
	BlockTimestamp uint64    `db:"block_timestamp"`
	TxHash         string    `db:"tx_hash"`
	LogIndex       uint32    `db:"log_index"`
	From           string    `db:"from_address"`
	To             string    `db:"to_address"`
	Value          *big.Int  `db:"value"`
	CreatedAt      time.Time `db:"created_at"`
}

// Distribution describes one reward period.
type Distribution struct {
	ID                 int64     `db:"id"`
	Number             int       `db:"number"`
	Name               string    `db:"name"`
	Amount             *big.Int  `db:"amount"`
	HodlerPoolBips     int64     `db:"hodler_pool_bips"`
	BonusPoolBips      int64     `db:"bonus_pool_bips"`
	FixedPoolBips      int64     `db:"fixed_pool_bips"`
	HodlerMinBalance   *big.Int  `db:"hodler_min_balance"`
	QualificationStart time.Time `db:"qualification_start"`
	QualificationEnd   time.Time `db:"qualification_end"`
	SnapshotBlockNum   *int64    `db:"snapshot_block_num"`

	// Per-type value configuration, joined on load.
	VerificationValues []VerificationValue
}

// VerificationValue is the per-type reward configuration of a
// distribution: a flat award, a bonus bips value, and a multiplier curve.
type VerificationValue struct {
	Type           string   `db:"type"`
	FixedValue     *big.Int `db:"fixed_value"`
	BipsValue      int64    `db:"bips_value"`
	MultiplierMin  float64  `db:"multiplier_min"`
	MultiplierMax  float64  `db:"multiplier_max"`
	MultiplierStep float64  `db:"multiplier_step"`
}

// Verification is a weighted completion of a qualifying action by a user
// inside the distribution's qualification window.
type Verification struct {
	UserID   uuid.UUID       `db:"user_id"`
	Type     string          `db:"type"`
	Weight   int64           `db:"weight"`
	Metadata json.RawMessage `db:"metadata"`
}

// HodlerAddress maps a user to an address eligible to be scored.
type HodlerAddress struct {
	UserID  uuid.UUID `db:"user_id"`
	Address string    `db:"address"`
}

// Share is the computed output, one row per user per distribution.
// Amount = hodler + bonus; the fixed pool amount is tracked separately.
type Share struct {
	DistributionID   int64     `db:"distribution_id"`
	UserID           uuid.UUID `db:"user_id"`
	Address          string    `db:"address"`
	Amount           *big.Int  `db:"amount"`
	HodlerPoolAmount *big.Int  `db:"hodler_pool_amount"`
	BonusPoolAmount  *big.Int  `db:"bonus_pool_amount"`
	FixedPoolAmount  *big.Int  `db:"fixed_pool_amount"`
	Index            int       `db:"index"`
}

// SendSlash is the per-distribution slashing configuration.
type SendSlash struct {
	DistributionID int64 `db:"distribution_id"`
	ScalingDivisor int   `db:"scaling_divisor"`
}

// parseBig converts a NUMERIC::text column value to a big.Int.
func parseBig(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", s)
	}
	return n, nil
}
