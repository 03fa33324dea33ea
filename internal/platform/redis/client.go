// Package redis connects the optional Redis instance shared by replicas for
// API key last-used throttling.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dialTimeout = 2 * time.Second
	ioTimeout   = 500 * time.Millisecond
	pingTimeout = 3 * time.Second
)

// Client is a connected go-redis client.
type Client struct {
	*redis.Client
}

// New dials url and verifies the connection. An empty url is not an error:
// it returns a nil client and the caller runs without Redis.
func New(ctx context.Context, url string) (*Client, error) {
	if url == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = dialTimeout
	opts.ReadTimeout = ioTimeout
	opts.WriteTimeout = ioTimeout

	c := &Client{Client: redis.NewClient(opts)}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.Health(pingCtx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return c, nil
}

// Health pings the server; it backs the redis entry of /health.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
