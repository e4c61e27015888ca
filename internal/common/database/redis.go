// internal/common/database/redis.go
package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"receipt-agent/internal/common/config"

	"github.com/redis/go-redis/v9"
)

// RedisClient is shared by the vector store, stage tracker, embedding cache and geocode cache.
type RedisClient struct {
	Client *redis.Client
}

func redisOptions(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	var opts *redis.Options
	if strings.HasPrefix(cfg.Address, "redis://") || strings.HasPrefix(cfg.Address, "rediss://") {
		parsed, err := redis.ParseURL(cfg.Address)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: cfg.Address, DB: cfg.DB}
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	timeout := 3 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Millisecond
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = timeout
	opts.WriteTimeout = timeout
	opts.PoolSize = cfg.PoolSize
	if opts.PoolSize <= 0 {
		opts.PoolSize = 10
	}
	opts.MinIdleConns = opts.PoolSize / 5
	return opts, nil
}

// NewRedis creates a new Redis client. No connection is made until first use.
func NewRedis(cfg config.RedisConfig) (*RedisClient, error) {
	opts, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}
	return &RedisClient{Client: redis.NewClient(opts)}, nil
}

func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (c *RedisClient) Close() error {
	if c.Client != nil {
		return c.Client.Close()
	}
	return nil
}
