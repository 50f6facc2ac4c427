// Package rediscache implements the outbound.CacheClient port against Redis via go-redis/v8: request-path commands share one
// multiplexed client, while Subscribe opens its own dedicated connection
// so a slow subscriber can never head-of-line-block hot-path commands.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/sentinelpdp/pdp/internal/port/outbound"
)

// Client adapts *redis.Client to outbound.CacheClient.
type Client struct {
	rdb    *redis.Client
	logger *slog.Logger
}

var _ outbound.CacheClient = (*Client)(nil)

// New parses addr (a redis:// URL) and returns a Client backed by a single
// multiplexed *redis.Client, used for every request-path command
// (get/set/incr/expire). Subscriptions never share this client.
func New(addr string, logger *slog.Logger) (*Client, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("rediscache: parse url: %w", err)
	}
	return &Client{rdb: redis.NewClient(opts), logger: logger}, nil
}

// Ping verifies connectivity at startup.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Get returns the cached value for key. ok is false on a miss.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("rediscache: get: %w", err)
	}
	return v, true, nil
}

// SetWithTTL stores value at key with the given expiry.
func (c *Client) SetWithTTL(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("rediscache: set: %w", err)
	}
	return nil
}

// Incr atomically increments the integer at key (creating it at 1 if
// absent) and returns the new value.
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("rediscache: incr: %w", err)
	}
	return n, nil
}

// Expire sets key's TTL.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("rediscache: expire: %w", err)
	}
	return nil
}

// Publish sends payload on channel.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("rediscache: publish: %w", err)
	}
	return nil
}

// Subscribe opens a dedicated *redis.PubSub connection (never the shared
// multiplexed client) subscribed to channel, and invokes handler for each
// well-formed message until ctx is cancelled or the subscription itself
// breaks. Malformed JSON payloads are logged and skipped, not treated as
// a subscription failure.
func (c *Client) Subscribe(ctx context.Context, channel string, handler outbound.InvalidationHandler) error {
	pubsub := c.rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("rediscache: subscribe: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = pubsub.Close()
	}()

	ch := pubsub.Channel()
	for msg := range ch {
		var inv outbound.InvalidationMessage
		if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
			c.logger.Warn("invalidation listener: malformed message", "payload", msg.Payload, "error", err)
			continue
		}
		handler(inv)
	}
	return nil
}
