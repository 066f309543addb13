// Package distributor runs the reward distribution engine: a polling
// worker that ingests token transfers and periodically recomputes the
// share set for the currently open distribution.
package distributor

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/0xsend/sendapp-sub007/internal/chain"
	"github.com/0xsend/sendapp-sub007/internal/ingest"
	"github.com/0xsend/sendapp-sub007/internal/leader"
	"github.com/0xsend/sendapp-sub007/internal/notify"
	"github.com/0xsend/sendapp-sub007/internal/snapshot"
	"github.com/0xsend/sendapp-sub007/internal/storage"
)

// Config holds the full distributor configuration.
type Config struct {
	// Chain RPC settings
	Chain chain.Config `yaml:"chain"`

	// Database settings
	Database storage.Config `yaml:"database"`

	// Worker loop settings
	Worker WorkerConfig `yaml:"worker"`

	// Optional leadership lock (disabled when addr is empty)
	Leader leader.Config `yaml:"leader"`

	// Optional NATS notifications (disabled when url is empty)
	Notify notify.Config `yaml:"notify"`

	// Optional Kafka transfer mirror (disabled when brokers is empty)
	Mirror ingest.KafkaMirrorConfig `yaml:"mirror"`

	// Optional object-storage audit snapshots (disabled when endpoint is empty)
	Snapshot snapshot.Config `yaml:"snapshot"`

	// Admin HTTP server listen address
	AdminAddr string `yaml:"admin_addr"`
}

// WorkerConfig holds the polling loop settings.
type WorkerConfig struct {
	// PollInterval between loop iterations
	PollInterval time.Duration `yaml:"poll_interval"`

	// DeploymentBlock is the token contract's deployment block, the
	// ingestion cursor fallback when the transfer log is empty
	DeploymentBlock uint64 `yaml:"deployment_block"`

	// StalenessThreshold before a "no new blocks" warning is emitted
	StalenessThreshold time.Duration `yaml:"staleness_threshold"`

	// CalculateInterval between share recomputations (0 = every iteration)
	CalculateInterval time.Duration `yaml:"calculate_interval"`

	// MaxBlockRange caps how many blocks one iteration may walk
	MaxBlockRange uint64 `yaml:"max_block_range"`
}

// LoadConfig loads configuration from file and applies CLI overrides.
func LoadConfig(configPath, rpcURL, dbURL string) (*Config, error) {
	cfg := &Config{
		Chain: chain.Config{
			CallTimeout: 30 * time.Second,
		},
		Database: storage.DefaultConfig(),
		Worker: WorkerConfig{
			PollInterval:       10 * time.Second,
			StalenessThreshold: 30 * time.Second,
			CalculateInterval:  time.Minute,
			MaxBlockRange:      10_000,
		},
		Leader:    leader.DefaultConfig(),
		Notify:    notify.DefaultConfig(),
		Mirror:    ingest.DefaultKafkaMirrorConfig(),
		Snapshot:  snapshot.DefaultConfig(),
		AdminAddr: ":8080",
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if rpcURL != "" {
		cfg.Chain.URL = rpcURL
	}
	if dbURL != "" {
		if err := cfg.Database.ParseURL(dbURL); err != nil {
			return nil, fmt.Errorf("parse database url: %w", err)
		}
	}

	if cfg.Worker.PollInterval <= 0 {
		return nil, fmt.Errorf("worker poll_interval must be positive")
	}
	return cfg, nil
}
