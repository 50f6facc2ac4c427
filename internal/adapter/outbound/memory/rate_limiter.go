// Package memory provides in-memory implementations of outbound ports for
// standalone operation, when no Redis or Postgres is configured.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sentinelpdp/pdp/internal/domain/ratelimit"
)

// bucket is one key's token balance. Tokens refill continuously at
// Rate/Period and are capped at Burst; each allowed request spends one.
type bucket struct {
	tokens  float64
	touched time.Time
}

// MemoryRateLimiter is the standalone fallback limiter: a token bucket
// per key, refilled lazily on access rather than by a timer, so an idle
// key costs nothing until its next request. Smoother than the fixed
// 1-second window the shared-cache limiter counts, which is acceptable
// for the degraded mode it serves.
//
// A background sweeper drops buckets untouched past maxIdle to bound the
// map. It runs in two phases, collecting candidates under the lock and
// logging outside it, so a large sweep never extends the critical
// section with I/O.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	sweepEvery time.Duration
	maxIdle    time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRateLimiter returns a limiter sweeping every 5 minutes, dropping
// buckets idle for over an hour.
func NewRateLimiter() *MemoryRateLimiter {
	return NewRateLimiterWithConfig(5*time.Minute, time.Hour)
}

// NewRateLimiterWithConfig returns a limiter with explicit sweep cadence
// and idle cutoff, for tests that need fast expiry.
func NewRateLimiterWithConfig(sweepEvery, maxIdle time.Duration) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		buckets:    make(map[string]*bucket),
		sweepEvery: sweepEvery,
		maxIdle:    maxIdle,
		stop:       make(chan struct{}),
	}
}

var _ ratelimit.RateLimiter = (*MemoryRateLimiter)(nil)

// Allow refills key's bucket for the time elapsed since its last request,
// then tries to spend one token. A new key starts with a full bucket.
func (r *MemoryRateLimiter) Allow(_ context.Context, key string, config ratelimit.RateLimitConfig) (ratelimit.RateLimitResult, error) {
	rate := config.Rate
	if rate <= 0 {
		rate = 1
	}
	burst := config.Burst
	if burst <= 0 {
		burst = rate
	}
	// Seconds of refill needed per token.
	perToken := config.Period.Seconds() / float64(rate)

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(burst)}
		r.buckets[key] = b
	} else {
		b.tokens += now.Sub(b.touched).Seconds() / perToken
		if b.tokens > float64(burst) {
			b.tokens = float64(burst)
		}
	}
	b.touched = now

	refillAll := time.Duration((float64(burst) - b.tokens) * perToken * float64(time.Second))

	if b.tokens < 1 {
		wait := time.Duration((1 - b.tokens) * perToken * float64(time.Second))
		return ratelimit.RateLimitResult{
			Allowed:    false,
			RetryAfter: wait,
			ResetAfter: refillAll,
		}, nil
	}

	b.tokens--
	return ratelimit.RateLimitResult{
		Allowed:    true,
		Remaining:  int(b.tokens),
		ResetAfter: refillAll,
	}, nil
}

// StartCleanup launches the background sweeper. It exits when ctx is
// cancelled or Stop is called.
func (r *MemoryRateLimiter) StartCleanup(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			case <-ticker.C:
				if removed := r.sweep(); removed > 0 {
					slog.Debug("rate limiter swept idle buckets", "removed", removed, "remaining", r.Size())
				}
			}
		}
	}()
}

// sweep removes buckets untouched past maxIdle and reports how many went.
func (r *MemoryRateLimiter) sweep() int {
	cutoff := time.Now().Add(-r.maxIdle)

	r.mu.Lock()
	var stale []string
	for key, b := range r.buckets {
		if b.touched.Before(cutoff) {
			stale = append(stale, key)
		}
	}
	for _, key := range stale {
		delete(r.buckets, key)
	}
	r.mu.Unlock()

	return len(stale)
}

// Stop halts the sweeper and waits for it to exit. Safe to call more than
// once.
func (r *MemoryRateLimiter) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()
}

// Size reports how many buckets are currently tracked.
func (r *MemoryRateLimiter) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}
