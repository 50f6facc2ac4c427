package rediscache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sentinelpdp/pdp/internal/domain/ratelimit"
	"github.com/sentinelpdp/pdp/internal/port/outbound"
)

// CacheRateLimiter implements ratelimit.RateLimiter as a fixed 1-second
// wall-clock bucket: "rl:"+tenant+":"+unix_seconds, INCR then EXPIRE(2s),
// compared against config.Rate. It is the primary limiter;
// MemoryRateLimiter is the standalone fallback selected when no shared
// cache is configured.
type CacheRateLimiter struct {
	cache  outbound.CacheClient
	logger *slog.Logger
}

// NewCacheRateLimiter wraps cache as a RateLimiter.
func NewCacheRateLimiter(cache outbound.CacheClient, logger *slog.Logger) *CacheRateLimiter {
	return &CacheRateLimiter{cache: cache, logger: logger}
}

var _ ratelimit.RateLimiter = (*CacheRateLimiter)(nil)

// Allow increments the current second's bucket for key and compares it to
// config.Rate. The increment happens before the
// expiry call; if Expire fails, the result is still reported from the
// increment. If the cache itself is unreachable, the limiter fails open
// (Allowed=true) and logs a warning -- availability over strict
// enforcement on the hot path.
func (l *CacheRateLimiter) Allow(ctx context.Context, key string, config ratelimit.RateLimitConfig) (ratelimit.RateLimitResult, error) {
	now := time.Now()
	bucketKey := fmt.Sprintf("%s:%d", key, now.Unix())

	count, err := l.cache.Incr(ctx, bucketKey)
	if err != nil {
		l.logger.Warn("rate limiter: cache unreachable, failing open", "error", err)
		return ratelimit.RateLimitResult{Allowed: true}, nil
	}

	if err := l.cache.Expire(ctx, bucketKey, 2*time.Second); err != nil {
		l.logger.Warn("rate limiter: failed to set bucket expiry", "key", bucketKey, "error", err)
	}

	rate := int64(config.Rate)
	if rate <= 0 {
		rate = 1
	}

	if count > rate {
		// The next request fits once the next 1-second bucket begins.
		retryAfter := time.Unix(now.Unix()+1, 0).Sub(now)
		return ratelimit.RateLimitResult{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
	}
	return ratelimit.RateLimitResult{Allowed: true, Remaining: int(rate - count)}, nil
}
