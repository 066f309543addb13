// Package leader provides a Redis-backed leadership lock so only one
// distributor instance runs the polling worker at a time. The lock is a
// SET NX with a TTL, renewed while held; losing the renewal means another
// instance may take over after expiry.
package leader

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Config configures the leadership lock.
type Config struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Key      string        `yaml:"key"`
	TTL      time.Duration `yaml:"ttl"`
}

// DefaultConfig returns lock defaults. An empty Addr disables leadership
// election entirely.
func DefaultConfig() Config {
	return Config{
		Key: "distributor:leader",
		TTL: 30 * time.Second,
	}
}

// Lock is a single-holder lease on a Redis key. The holder identity is a
// random token so a stale instance can never release a successor's lease.
type Lock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
}

// New connects to Redis and verifies the connection.
func New(cfg Config) (*Lock, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client, mainly for tests.
func NewWithClient(client *redis.Client, cfg Config) *Lock {
	if cfg.Key == "" {
		cfg.Key = "distributor:leader"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	return &Lock{
		client: client,
		key:    cfg.Key,
		ttl:    cfg.TTL,
		token:  uuid.NewString(),
	}
}

// Acquire attempts to take the lease. Returns false without error when
// another instance holds it.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire leader lock: %w", err)
	}
	return ok, nil
}

// renewScript extends the TTL only while we still hold the lease.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Renew extends the lease. Returns false when the lease has been lost.
func (l *Lock) Renew(ctx context.Context) (bool, error) {
	res, err := renewScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("renew leader lock: %w", err)
	}
	return res == 1, nil
}

// releaseScript deletes the key only if we still hold it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Release gives up the lease if still held.
func (l *Lock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release leader lock: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (l *Lock) Close() error {
	return l.client.Close()
}
