package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hmcts/wa-task-management-api-sub002/internal/infra/config"
)

const defaultFlagPrefix = "wa:feature_flags"

// Client owns the Redis pool backing feature flags.
type Client struct {
	client   *redis.Client
	logger   *zap.Logger
	flagKeys []string
}

// Option tunes the client.
type Option func(*Client)

// WithFlagKeys makes HealthCheck verify that each flag hash is readable. Keys are stored as
// "<prefix>:<flag>".
func WithFlagKeys(prefix string, flags ...string) Option {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultFlagPrefix
	}
	return func(c *Client) {
		for _, flag := range flags {
			c.flagKeys = append(c.flagKeys, prefix+":"+flag)
		}
	}
}

// NewClient connects to the flag store and fails when the first ping does.
func NewClient(cfg config.RedisSettings, logger *zap.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	redisOpts := &redis.Options{
		Addr:            fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        10,
		MinIdleConns:    2,
		MaxRetries:      3,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		PoolTimeout:     2 * time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
	}
	if cfg.TLSEnabled {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping flag store: %w", err)
	}

	c := wrap(rdb, logger, opts...)
	logger.Info("flag store connected",
		zap.String("addr", redisOpts.Addr),
		zap.Int("db", cfg.DB),
		zap.Strings("flag_keys", c.flagKeys),
	)
	return c, nil
}

func wrap(rdb *redis.Client, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{client: rdb, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Client returns the underlying redis.Client.
func (c *Client) Client() *redis.Client {
	return c.client
}

// HealthCheck backs the /readyz redis check. A flag key holding anything but a hash would make
// every lookup fail with WRONGTYPE, so it reports unhealthy too; a missing key falls back to the
// configured default and is fine.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping flag store: %w", err)
	}
	for _, key := range c.flagKeys {
		kind, err := c.client.Type(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("inspect flag %s: %w", key, err)
		}
		if kind != "hash" && kind != "none" {
			return fmt.Errorf("flag %s is a %s, want hash", key, kind)
		}
	}
	return nil
}

// Close releases the pool.
func (c *Client) Close() error {
	c.logger.Info("closing flag store connection")
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
