package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// DefaultPageSize bounds memory and query size when loading verifications
// and hodler addresses for large user bases.
const DefaultPageSize = 1000

// DistributionRepository reads distribution configuration and writes
// computed shares.
type DistributionRepository struct {
	db       *DB
	pageSize int
}

// NewDistributionRepository creates a new DistributionRepository.
func NewDistributionRepository(db *DB) *DistributionRepository {
	return &DistributionRepository{db: db, pageSize: DefaultPageSize}
}

const distributionColumns = `
	id, number, name, amount::text, hodler_pool_bips, bonus_pool_bips,
	fixed_pool_bips, hodler_min_balance::text,
	qualification_start, qualification_end, snapshot_block_num
`

func scanDistribution(row pgx.Row) (*Distribution, error) {
	var d Distribution
	var amount, minBalance string
	err := row.Scan(
		&d.ID, &d.Number, &d.Name, &amount, &d.HodlerPoolBips, &d.BonusPoolBips,
		&d.FixedPoolBips, &minBalance,
		&d.QualificationStart, &d.QualificationEnd, &d.SnapshotBlockNum,
	)
	if err != nil {
		return nil, err
	}
	if d.Amount, err = parseBig(amount); err != nil {
		return nil, fmt.Errorf("distribution %d amount: %w", d.ID, err)
	}
	if d.HodlerMinBalance, err = parseBig(minBalance); err != nil {
		return nil, fmt.Errorf("distribution %d hodler_min_balance: %w", d.ID, err)
	}
	return &d, nil
}

// ActiveDistributions returns all distributions whose qualification
// window contains now, with their verification value configs joined in.
// The orchestrator treats more than one result as a configuration error.
func (r *DistributionRepository) ActiveDistributions(ctx context.Context, now time.Time) ([]*Distribution, error) {
	sql := `
		SELECT ` + distributionColumns + `
		FROM distributions
		WHERE qualification_start <= $1 AND qualification_end >= $1
		ORDER BY id
	`

	rows, err := r.db.pool.Query(ctx, sql, now)
	if err != nil {
		return nil, fmt.Errorf("query active distributions: %w", err)
	}
	defer rows.Close()

	var distributions []*Distribution
	for rows.Next() {
		d, err := scanDistribution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		distributions = append(distributions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, d := range distributions {
		if err := r.loadVerificationValues(ctx, d); err != nil {
			return nil, err
		}
	}
	return distributions, nil
}

// Distribution returns one distribution by id, with verification values,
// or (nil, nil) when it does not exist.
func (r *DistributionRepository) Distribution(ctx context.Context, id int64) (*Distribution, error) {
	sql := `SELECT ` + distributionColumns + ` FROM distributions WHERE id = $1`

	d, err := scanDistribution(r.db.pool.QueryRow(ctx, sql, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query distribution %d: %w", id, err)
	}

	if err := r.loadVerificationValues(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *DistributionRepository) loadVerificationValues(ctx context.Context, d *Distribution) error {
	sql := `
		SELECT type, fixed_value::text, bips_value,
		       multiplier_min, multiplier_max, multiplier_step
		FROM distribution_verification_values
		WHERE distribution_id = $1
		ORDER BY type
	`

	rows, err := r.db.pool.Query(ctx, sql, d.ID)
	if err != nil {
		return fmt.Errorf("query verification values: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v VerificationValue
		var fixed string
		if err := rows.Scan(&v.Type, &fixed, &v.BipsValue,
			&v.MultiplierMin, &v.MultiplierMax, &v.MultiplierStep); err != nil {
			return fmt.Errorf("scan verification value: %w", err)
		}
		if v.FixedValue, err = parseBig(fixed); err != nil {
			return fmt.Errorf("verification value %s: %w", v.Type, err)
		}
		d.VerificationValues = append(d.VerificationValues, v)
	}
	return rows.Err()
}

// Verifications loads all verifications for a distribution with offset
// pagination, looping until the reported total count is satisfied. A
// mismatch between the count and the fetched rows aborts the calculation.
func (r *DistributionRepository) Verifications(ctx context.Context, distributionID int64) ([]Verification, error) {
	countSQL := `SELECT COUNT(*) FROM distribution_verifications WHERE distribution_id = $1`

	var total int
	if err := r.db.pool.QueryRow(ctx, countSQL, distributionID).Scan(&total); err != nil {
		return nil, fmt.Errorf("count verifications: %w", err)
	}

	pageSQL := `
		SELECT user_id, type, weight, metadata
		FROM distribution_verifications
		WHERE distribution_id = $1
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3
	`

	verifications := make([]Verification, 0, total)
	for offset := 0; offset < total; offset += r.pageSize {
		rows, err := r.db.pool.Query(ctx, pageSQL, distributionID, r.pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("query verifications page at %d: %w", offset, err)
		}

		for rows.Next() {
			var v Verification
			if err := rows.Scan(&v.UserID, &v.Type, &v.Weight, &v.Metadata); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan verification: %w", err)
			}
			verifications = append(verifications, v)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	if len(verifications) != total {
		return nil, fmt.Errorf("verifications count mismatch: expected %d, got %d", total, len(verifications))
	}
	return verifications, nil
}

// HodlerAddresses loads the eligible (user, address) pairs for a
// distribution via the server-side function, paginated like Verifications.
func (r *DistributionRepository) HodlerAddresses(ctx context.Context, distributionID int64) ([]HodlerAddress, error) {
	countSQL := `SELECT COUNT(*) FROM distribution_hodler_addresses($1)`

	var total int
	if err := r.db.pool.QueryRow(ctx, countSQL, distributionID).Scan(&total); err != nil {
		return nil, fmt.Errorf("count hodler addresses: %w", err)
	}

	pageSQL := `
		SELECT user_id, address
		FROM distribution_hodler_addresses($1)
		LIMIT $2 OFFSET $3
	`

	addresses := make([]HodlerAddress, 0, total)
	for offset := 0; offset < total; offset += r.pageSize {
		rows, err := r.db.pool.Query(ctx, pageSQL, distributionID, r.pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("query hodler addresses page at %d: %w", offset, err)
		}

		for rows.Next() {
			var a HodlerAddress
			if err := rows.Scan(&a.UserID, &a.Address); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan hodler address: %w", err)
			}
			addresses = append(addresses, a)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	if len(addresses) != total {
		return nil, fmt.Errorf("hodler addresses count mismatch: expected %d, got %d", total, len(addresses))
	}
	return addresses, nil
}

// SharesByNumber returns the persisted shares of the distribution with
// the given period number. Used for the previous-period reward lookup in
// the slashing path.
func (r *DistributionRepository) SharesByNumber(ctx context.Context, number int) ([]Share, error) {
	sql := `
		SELECT s.distribution_id, s.user_id, s.address,
		       s.amount::text, s.hodler_pool_amount::text,
		       s.bonus_pool_amount::text, s.fixed_pool_amount::text, s.index
		FROM distribution_shares s
		JOIN distributions d ON d.id = s.distribution_id
		WHERE d.number = $1
		ORDER BY s.index
	`

	rows, err := r.db.pool.Query(ctx, sql, number)
	if err != nil {
		return nil, fmt.Errorf("query shares for distribution number %d: %w", number, err)
	}
	defer rows.Close()

	var shares []Share
	for rows.Next() {
		var s Share
		var amount, hodler, bonus, fixed string
		if err := rows.Scan(&s.DistributionID, &s.UserID, &s.Address,
			&amount, &hodler, &bonus, &fixed, &s.Index); err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		if s.Amount, err = parseBig(amount); err != nil {
			return nil, err
		}
		if s.HodlerPoolAmount, err = parseBig(hodler); err != nil {
			return nil, err
		}
		if s.BonusPoolAmount, err = parseBig(bonus); err != nil {
			return nil, err
		}
		if s.FixedPoolAmount, err = parseBig(fixed); err != nil {
			return nil, err
		}
		shares = append(shares, s)
	}
	return shares, rows.Err()
}

// SendSlash returns the slashing configuration for a distribution,
// defaulting to a scaling divisor of 1 when no row exists.
func (r *DistributionRepository) SendSlash(ctx context.Context, distributionID int64) (SendSlash, error) {
	sql := `SELECT distribution_id, scaling_divisor FROM send_slash WHERE distribution_id = $1`

	var s SendSlash
	err := r.db.pool.QueryRow(ctx, sql, distributionID).Scan(&s.DistributionID, &s.ScalingDivisor)
	if err != nil {
		if err == pgx.ErrNoRows {
			return SendSlash{DistributionID: distributionID, ScalingDivisor: 1}, nil
		}
		return SendSlash{}, fmt.Errorf("query send slash: %w", err)
	}
	return s, nil
}

// ReplaceShares overwrites the full share set for a distribution in one
// transaction. A failure leaves the previous share set intact.
func (r *DistributionRepository) ReplaceShares(ctx context.Context, distributionID int64, shares []Share) error {
	insertSQL := `
		INSERT INTO distribution_shares (
			distribution_id, user_id, address, amount,
			hodler_pool_amount, bonus_pool_amount, fixed_pool_amount, index
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM distribution_shares WHERE distribution_id = $1`, distributionID); err != nil {
			return fmt.Errorf("delete previous shares: %w", err)
		}

		batch := &pgx.Batch{}
		for _, s := range shares {
			batch.Queue(insertSQL,
				distributionID,
				s.UserID,
				s.Address,
				s.Amount.String(),
				s.HodlerPoolAmount.String(),
				s.BonusPoolAmount.String(),
				s.FixedPoolAmount.String(),
				s.Index,
			)
		}

		results := tx.SendBatch(ctx, batch)
		defer results.Close()

		for range shares {
			if _, err := results.Exec(); err != nil {
				return fmt.Errorf("insert share: %w", err)
			}
		}
		return results.Close()
	})
}
