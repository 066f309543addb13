// Package notify publishes distribution lifecycle events over NATS so
// other services (activity feed, workflows) can react to freshly computed
// shares without polling the database.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Config holds the NATS connection configuration. An empty URL disables
// notifications.
type Config struct {
	URL            string        `yaml:"url"`
	Name           string        `yaml:"name"`
	SubjectPrefix  string        `yaml:"subject_prefix"`
	ReconnectWait  time.Duration `yaml:"reconnect_wait"`
	MaxReconnects  int           `yaml:"max_reconnects"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// DefaultConfig returns sensible defaults for local development.
func DefaultConfig() Config {
	return Config{
		Name:           "distributor",
		SubjectPrefix:  "distributor",
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1,
		ConnectTimeout: 10 * time.Second,
	}
}

// Notifier publishes distribution events. Publishing is best-effort: a
// failed publish is logged by the caller, never blocks the cycle.
type Notifier struct {
	nc     *nats.Conn
	prefix string
	logger *slog.Logger
}

// Connect establishes the NATS connection.
func Connect(cfg Config, logger *slog.Logger) (*Notifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Notifier{nc: nc, prefix: cfg.SubjectPrefix, logger: logger}, nil
}

// DistributionCalculated is emitted after a share set has been persisted.
type DistributionCalculated struct {
	DistributionID   int64     `json:"distribution_id"`
	Number           int       `json:"number"`
	ShareCount       int       `json:"share_count"`
	TotalAmount      string    `json:"total_amount"`
	TotalFixedAmount string    `json:"total_fixed_amount"`
	CalculatedAt     time.Time `json:"calculated_at"`
}

// PublishCalculated emits a distribution-calculated event.
func (n *Notifier) PublishCalculated(event DistributionCalculated) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := fmt.Sprintf("%s.distribution.calculated", n.prefix)
	if err := n.nc.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains and closes the connection.
func (n *Notifier) Close() {
	if err := n.nc.Drain(); err != nil {
		n.logger.Warn("nats drain failed", "error", err)
		n.nc.Close()
	}
}
