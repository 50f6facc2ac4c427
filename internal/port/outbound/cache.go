package outbound

import (
	"context"
	"time"
)

// InvalidationMessage is the JSON payload published/consumed on the
// pdp:invalidate channel.
type InvalidationMessage struct {
	TenantID string `json:"tenant_id"`
}

// InvalidationHandler is invoked for each message received on the
// invalidation channel.
type InvalidationHandler func(msg InvalidationMessage)

// CacheClient is the six-operation contract the decision cache, rate
// limiter, and invalidation listener drive against Redis. All operations
// return errors rather than panicking; a
// cache error is treated as a cache miss by callers, never as a hard
// pipeline failure.
type CacheClient interface {
	// Get returns the cached value for key. ok is false on a miss.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// SetWithTTL stores value at key with the given expiry.
	SetWithTTL(ctx context.Context, key string, value string, ttl time.Duration) error

	// Incr atomically increments the integer at key (creating it at 1 if
	// absent) and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets key's TTL. Used after Incr to bound a fixed-window
	// rate-limit bucket's lifetime.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Publish sends payload on channel.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe opens a dedicated connection subscribed to channel and
	// invokes handler for each message until ctx is cancelled or the
	// subscription itself fails. Subscribe failure is not retried by the
	// cache client; the caller decides what to do with the error.
	Subscribe(ctx context.Context, channel string, handler InvalidationHandler) error
}
