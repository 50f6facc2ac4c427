package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sentinelpdp/pdp/internal/domain/audit"
	"github.com/sentinelpdp/pdp/internal/domain/policy"
	"github.com/sentinelpdp/pdp/internal/port/outbound"
)

// fakeCache is a minimal in-memory outbound.CacheClient for pipeline and
// rate-limiter tests, standing in for the Redis-backed rediscache.Client
// these tests don't need a real network connection to exercise.
type fakeCache struct {
	mu    sync.Mutex
	vals  map[string]string
	incrs map[string]int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{vals: map[string]string{}, incrs: map[string]int64{}}
}

func (c *fakeCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vals[key]
	return v, ok, nil
}

func (c *fakeCache) SetWithTTL(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals[key] = value
	return nil
}

func (c *fakeCache) Incr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.incrs[key]++
	return c.incrs[key], nil
}

func (c *fakeCache) Expire(context.Context, string, time.Duration) error { return nil }
func (c *fakeCache) Publish(context.Context, string, []byte) error       { return nil }
func (c *fakeCache) Subscribe(ctx context.Context, _ string, _ outbound.InvalidationHandler) error {
	<-ctx.Done()
	return ctx.Err()
}

var _ outbound.CacheClient = (*fakeCache)(nil)

// fakeStore is a scripted outbound.StoreClient: every field is filled in
// by the test that needs it, everything else defaults to the zero value
// (an empty, always-succeeding store).
type fakeStore struct {
	mu sync.Mutex

	scopeErr      error
	scopedTenants []string

	version    int
	versionOK  bool
	versionErr error

	policies    []string
	policiesErr error

	attrs    map[string]map[string]any
	attrsErr error

	auditRecords []audit.AuditRecord
}

func (s *fakeStore) SetTenantScope(_ context.Context, tenant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopedTenants = append(s.scopedTenants, tenant)
	return s.scopeErr
}

func (s *fakeStore) LoadActivePolicyVersion(context.Context, string) (int, bool, error) {
	if s.versionErr != nil {
		return 0, false, s.versionErr
	}
	return s.version, s.versionOK, nil
}

func (s *fakeStore) LoadPolicies(context.Context, string, int) ([]policy.Policy, error) {
	if s.policiesErr != nil {
		return nil, s.policiesErr
	}
	rows := make([]policy.Policy, len(s.policies))
	for i, text := range s.policies {
		rows[i] = policy.Policy{PolicyID: fmt.Sprintf("pol-%d", i), Text: text}
	}
	return rows, nil
}

func (s *fakeStore) LoadAttrs(_ context.Context, _ outbound.EntityKind, uid string) (map[string]any, error) {
	if s.attrsErr != nil {
		return nil, s.attrsErr
	}
	if a, ok := s.attrs[uid]; ok {
		return a, nil
	}
	return map[string]any{}, nil
}

func (s *fakeStore) InsertAudit(_ context.Context, record audit.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditRecords = append(s.auditRecords, record)
	return nil
}

func (s *fakeStore) Close(context.Context) error { return nil }

var _ outbound.StoreClient = (*fakeStore)(nil)

// fakeStoreFactory always returns the same scripted fakeStore and counts
// how many times a connection was checked out, so tests can assert on the
// number of store round trips (e.g. the policy-loader cache/coalescing
// invariants).
type fakeStoreFactory struct {
	mu         sync.Mutex
	store      *fakeStore
	acquireErr error
	acquireCnt int
}

func newFakeStoreFactory(store *fakeStore) *fakeStoreFactory {
	return &fakeStoreFactory{store: store}
}

func (f *fakeStoreFactory) Acquire(context.Context) (outbound.StoreClient, error) {
	f.mu.Lock()
	f.acquireCnt++
	f.mu.Unlock()
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	return f.store, nil
}

func (f *fakeStoreFactory) acquireCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquireCnt
}

var _ outbound.StoreFactory = (*fakeStoreFactory)(nil)

// fakeMetrics counts every PipelineMetrics call for assertions.
type fakeMetrics struct {
	mu          sync.Mutex
	requests    int
	cacheHits   int
	cacheMisses int
	rateLimited int
	latencies   []float64
}

func (m *fakeMetrics) IncRequests() { m.mu.Lock(); m.requests++; m.mu.Unlock() }
func (m *fakeMetrics) IncCacheHit() { m.mu.Lock(); m.cacheHits++; m.mu.Unlock() }
func (m *fakeMetrics) IncCacheMiss() { m.mu.Lock(); m.cacheMisses++; m.mu.Unlock() }
func (m *fakeMetrics) IncRateLimited() { m.mu.Lock(); m.rateLimited++; m.mu.Unlock() }
func (m *fakeMetrics) ObserveLatencyMS(ms float64) {
	m.mu.Lock()
	m.latencies = append(m.latencies, ms)
	m.mu.Unlock()
}

var _ PipelineMetrics = (*fakeMetrics)(nil)

// fakeAuditRecorder collects every record handed to it synchronously, in
// place of the async AuditService these tests don't need to exercise.
type fakeAuditRecorder struct {
	mu      sync.Mutex
	records []audit.AuditRecord
}

func (r *fakeAuditRecorder) Record(record audit.AuditRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
}

func (r *fakeAuditRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

var _ AuditRecorder = (*fakeAuditRecorder)(nil)

// countingEvaluator wraps a policy.Evaluator and counts Evaluate calls, so
// tests can assert the decision cache actually shortcuts re-evaluation.
type countingEvaluator struct {
	mu    sync.Mutex
	inner policy.Evaluator
	calls int
}

func (e *countingEvaluator) Evaluate(ctx context.Context, evalCtx policy.EvaluationContext, entities []policy.Entity, policySet any) (bool, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return e.inner.Evaluate(ctx, evalCtx, entities, policySet)
}

func (e *countingEvaluator) Parse(ids []string, texts []string) (any, []string, error) {
	return e.inner.Parse(ids, texts)
}

func (e *countingEvaluator) evaluateCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

var _ policy.Evaluator = (*countingEvaluator)(nil)
