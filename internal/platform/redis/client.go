// Package redis opens the shared Redis connection used by the visibility
// network and the chain writer lease.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"endorser/internal/platform/config"
)

// Client is a connected go-redis client.
type Client struct {
	*redis.Client
}

// Open connects using cfg and pings the server. It returns nil, nil when no
// URL is configured.
func Open(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	applyOverrides(opts, cfg)

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{Client: client}, nil
}

// applyOverrides copies non-zero settings over those parsed from the URL.
func applyOverrides(opts *redis.Options, cfg config.RedisConfig) {
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
}

// Health reports whether the server answers.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
