// Package redis holds the Redis-backed adapters and the client plumbing
// (metrics and circuit breaker hooks) they share.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// Client wraps a go-redis client with the hooks the service installs on
// every connection.
type Client struct {
	rdb *goredis.Client
}

// NewClient creates a Redis client from a URL (e.g. "redis://localhost:6379")
// with the metrics and circuit breaker hooks installed.
func NewClient(redisURL string) (*Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := goredis.NewClient(opts)
	rdb.AddHook(&MetricsHook{})
	rdb.AddHook(NewCircuitBreakerHook())
	return &Client{rdb: rdb}, nil
}

// Ping verifies the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the raw go-redis client.
func (c *Client) Underlying() *goredis.Client {
	return c.rdb
}
