// Package snapshot writes JSON audit snapshots of computed share sets to
// object storage. The database stays the source of truth; snapshots exist
// so any historical computation can be inspected or diffed after the
// share set has been overwritten by a later cycle.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/0xsend/sendapp-sub007/internal/storage"
)

// Config configures the audit snapshot store. An empty Endpoint disables
// snapshots.
type Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// DefaultConfig returns snapshot store defaults.
func DefaultConfig() Config {
	return Config{
		Bucket: "distributor-snapshots",
	}
}

// Store writes share-set snapshots to a bucket.
type Store struct {
	cfg    Config
	client *minio.Client
	logger *slog.Logger
}

// New creates a snapshot store.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{cfg: cfg, client: client, logger: logger}, nil
}

type snapshotShare struct {
	UserID           string `json:"user_id"`
	Address          string `json:"address"`
	Amount           string `json:"amount"`
	HodlerPoolAmount string `json:"hodler_pool_amount"`
	BonusPoolAmount  string `json:"bonus_pool_amount"`
	FixedPoolAmount  string `json:"fixed_pool_amount"`
	Index            int    `json:"index"`
}

type snapshotDocument struct {
	DistributionID   int64           `json:"distribution_id"`
	Number           int             `json:"number"`
	CalculatedAt     time.Time       `json:"calculated_at"`
	TotalAmount      string          `json:"total_amount"`
	TotalFixedAmount string          `json:"total_fixed_amount"`
	Shares           []snapshotShare `json:"shares"`
}

// WriteShares persists one computed share set under a timestamped key.
func (s *Store) WriteShares(ctx context.Context, d *storage.Distribution, shares []storage.Share, totalAmount, totalFixed string) error {
	doc := snapshotDocument{
		DistributionID:   d.ID,
		Number:           d.Number,
		CalculatedAt:     time.Now().UTC(),
		TotalAmount:      totalAmount,
		TotalFixedAmount: totalFixed,
		Shares:           make([]snapshotShare, 0, len(shares)),
	}
	for _, sh := range shares {
		doc.Shares = append(doc.Shares, snapshotShare{
			UserID:           sh.UserID.String(),
			Address:          sh.Address,
			Amount:           sh.Amount.String(),
			HodlerPoolAmount: sh.HodlerPoolAmount.String(),
			BonusPoolAmount:  sh.BonusPoolAmount.String(),
			FixedPoolAmount:  sh.FixedPoolAmount.String(),
			Index:            sh.Index,
		})
	}

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	key := fmt.Sprintf("distributions/%d/%s.json", d.ID, doc.CalculatedAt.Format("20060102T150405Z"))
	_, err = s.client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put snapshot %s: %w", key, err)
	}

	s.logger.Info("wrote share snapshot", "key", key, "shares", len(shares))
	return nil
}
