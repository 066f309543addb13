package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/0xsend/sendapp-sub007/internal/storage"
)

// KafkaMirrorConfig configures the optional transfer mirror stream.
type KafkaMirrorConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// DefaultKafkaMirrorConfig returns the mirror defaults. An empty broker
// list disables the mirror.
func DefaultKafkaMirrorConfig() KafkaMirrorConfig {
	return KafkaMirrorConfig{
		Topic: "send.token.transfers",
	}
}

// KafkaMirror publishes ingested transfer rows to a Kafka topic so
// downstream consumers (activity feeds, analytics) see the same rows the
// transfer log does. Delivery is best-effort: the transfer log is the
// source of truth.
type KafkaMirror struct {
	client *kgo.Client
	topic  string
}

// NewKafkaMirror connects a mirror producer.
func NewKafkaMirror(cfg KafkaMirrorConfig) (*KafkaMirror, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RecordRetries(5),
		kgo.RetryBackoffFn(func(n int) time.Duration {
			return time.Duration(n*100) * time.Millisecond
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaMirror{client: client, topic: cfg.Topic}, nil
}

type mirrorRecord struct {
	BlockHash      string `json:"block_hash"`
	BlockNumber    uint64 `json:"block_number"`
	BlockTimestamp uint64 `json:"block_timestamp"`
	TxHash         string `json:"tx_hash"`
	LogIndex       uint32 `json:"log_index"`
	From           string `json:"from"`
	To             string `json:"to"`
	Value          string `json:"value"`
}

// Publish produces one record per transfer, keyed by (tx_hash, log_index)
// so replayed batches land on the same partitions.
func (m *KafkaMirror) Publish(ctx context.Context, transfers []storage.TransferLog) error {
	records := make([]*kgo.Record, 0, len(transfers))
	for _, t := range transfers {
		payload, err := json.Marshal(mirrorRecord{
			BlockHash:      t.BlockHash,
			BlockNumber:    t.BlockNumber,
			BlockTimestamp: t.BlockTimestamp,
			TxHash:         t.TxHash,
			LogIndex:       t.LogIndex,
			From:           t.From,
			To:             t.To,
			Value:          t.Value.String(),
		})
		if err != nil {
			return fmt.Errorf("marshal transfer record: %w", err)
		}
		records = append(records, &kgo.Record{
			Topic: m.topic,
			Key:   []byte(fmt.Sprintf("%s:%d", t.TxHash, t.LogIndex)),
			Value: payload,
		})
	}

	results := m.client.ProduceSync(ctx, records...)
	if err := results.FirstErr(); err != nil {
		return fmt.Errorf("kafka produce: %w", err)
	}
	return nil
}

// Close flushes and closes the producer.
func (m *KafkaMirror) Close() {
	m.client.Close()
}
