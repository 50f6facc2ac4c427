package memory

import (
	"context"
	"time"

	"github.com/sentinelpdp/pdp/internal/port/outbound"
)

// NoopCacheClient implements outbound.CacheClient as an always-miss,
// always-succeed cache, selected when no REDIS_URL is configured. The
// decision cache becomes a permanent pass-through and the invalidation
// channel is never subscribed to (no listener is started in this mode),
// matching the degraded standalone posture documented on config.HasRedis.
type NoopCacheClient struct{}

// NewNoopCacheClient returns a NoopCacheClient.
func NewNoopCacheClient() *NoopCacheClient { return &NoopCacheClient{} }

var _ outbound.CacheClient = (*NoopCacheClient)(nil)

// Get always reports a miss.
func (NoopCacheClient) Get(context.Context, string) (string, bool, error) {
	return "", false, nil
}

// SetWithTTL is a no-op.
func (NoopCacheClient) SetWithTTL(context.Context, string, string, time.Duration) error {
	return nil
}

// Incr always returns 1, so any caller using it for rate limiting alone
// would never see sustained pressure; the standalone rate limiter uses
// MemoryRateLimiter directly instead of driving Incr through this cache.
func (NoopCacheClient) Incr(context.Context, string) (int64, error) {
	return 1, nil
}

// Expire is a no-op.
func (NoopCacheClient) Expire(context.Context, string, time.Duration) error { return nil }

// Publish is a no-op: standalone mode has no subscribers.
func (NoopCacheClient) Publish(context.Context, string, []byte) error { return nil }

// Subscribe blocks until ctx is cancelled without ever invoking handler,
// since standalone mode has nothing to publish invalidation messages.
func (NoopCacheClient) Subscribe(ctx context.Context, _ string, _ outbound.InvalidationHandler) error {
	<-ctx.Done()
	return ctx.Err()
}
