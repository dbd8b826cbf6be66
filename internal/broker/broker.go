// Package broker wraps the Redis connection shared by all services.
// The broker carries two things: the settings version counter and the
// pub/sub event channels. Both are best-effort; the durable record lives
// in SQLite.
package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// settingsVersionKey holds the monotonically increasing settings version.
const settingsVersionKey = "settings:version"

// Client is a thin wrapper around the Redis client.
type Client struct {
	rdb *redis.Client
	log zerolog.Logger
}

// New creates a broker client from a Redis URL (redis://host:port/db).
func New(url string, log zerolog.Logger) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse broker URL: %w", err)
	}

	return &Client{
		rdb: redis.NewClient(opts),
		log: log.With().Str("component", "broker").Logger(),
	}, nil
}

// Ping checks broker reachability.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SettingsVersion returns the current settings version counter.
// A missing key reads as version 0 (no settings write has happened yet).
func (c *Client) SettingsVersion(ctx context.Context) (int64, error) {
	v, err := c.rdb.Get(ctx, settingsVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read settings version: %w", err)
	}
	return v, nil
}

// BumpSettingsVersion atomically increments the settings version counter
// and returns the new value.
func (c *Client) BumpSettingsVersion(ctx context.Context) (int64, error) {
	v, err := c.rdb.Incr(ctx, settingsVersionKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to bump settings version: %w", err)
	}
	return v, nil
}

// Publish sends a payload on a pub/sub channel. Delivery is at-most-once:
// subscribers that are not connected miss the message.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.rdb.Publish(ctx, channel, payload).Err()
}

// Subscribe opens a pub/sub subscription on the given channels.
// The caller owns the returned subscription and must close it.
func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, channels...)
}

// Close closes the underlying Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
