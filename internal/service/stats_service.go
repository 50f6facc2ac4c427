package service

import (
	"sync/atomic"
)

// StatsService tracks decision counters with lock-free atomics, surfaced
// by GET /admin/stats. It mirrors (but does not replace) the Prometheus
// counters the HTTP adapter's Metrics type drives; this is the cheap
// snapshot the admin API reads without scraping /metrics. The allow/deny
// counters are fed from the audit fan-out and the cache/rate-limit
// counters from the pipeline's instrumentation fan-out, both wired in
// the serve command.
type StatsService struct {
	allowed     atomic.Int64
	denied      atomic.Int64
	rateLimited atomic.Int64
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
}

// NewStatsService creates a new StatsService with all counters initialized to zero.
func NewStatsService() *StatsService {
	return &StatsService{}
}

// RecordAllow increments the allowed counter.
func (s *StatsService) RecordAllow() {
	s.allowed.Add(1)
}

// RecordDeny increments the denied counter.
func (s *StatsService) RecordDeny() {
	s.denied.Add(1)
}

// RecordRateLimited increments the rate-limited counter.
func (s *StatsService) RecordRateLimited() {
	s.rateLimited.Add(1)
}

// RecordCacheHit increments the decision-cache hit counter.
func (s *StatsService) RecordCacheHit() {
	s.cacheHits.Add(1)
}

// RecordCacheMiss increments the decision-cache miss counter.
func (s *StatsService) RecordCacheMiss() {
	s.cacheMisses.Add(1)
}

// Stats holds a snapshot of all counters at a point in time.
type Stats struct {
	Allowed     int64 `json:"allowed"`
	Denied      int64 `json:"denied"`
	RateLimited int64 `json:"rate_limited"`
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
}

// GetStats returns a snapshot of all counters.
// The snapshot is consistent per-counter but not atomically across all counters.
func (s *StatsService) GetStats() Stats {
	return Stats{
		Allowed:     s.allowed.Load(),
		Denied:      s.denied.Load(),
		RateLimited: s.rateLimited.Load(),
		CacheHits:   s.cacheHits.Load(),
		CacheMisses: s.cacheMisses.Load(),
	}
}

// Reset sets all counters to zero.
func (s *StatsService) Reset() {
	s.allowed.Store(0)
	s.denied.Store(0)
	s.rateLimited.Store(0)
	s.cacheHits.Store(0)
	s.cacheMisses.Store(0)
}
