package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/sentinelpdp/pdp/internal/adapter/outbound/cedarengine"
	"github.com/sentinelpdp/pdp/internal/adapter/outbound/rediscache"
	"github.com/sentinelpdp/pdp/internal/domain/audit"
	"github.com/sentinelpdp/pdp/internal/domain/policy"
	"github.com/sentinelpdp/pdp/internal/port/outbound"
	"github.com/sentinelpdp/pdp/internal/service"
)

const checkTestTenant = "00000000-0000-0000-0000-000000000001"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newPipelineForTest builds a real Pipeline against a miniredis-backed cache
// and rate limiter, a real cedar engine, and an in-memory always-permit
// store, enough to drive CheckHandler end to end without Postgres.
func newPipelineForTest(t *testing.T) *service.Pipeline {
	t.Helper()

	mr := miniredis.RunT(t)
	cache, err := rediscache.New("redis://"+mr.Addr(), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	evaluator := cedarengine.New()
	factory := testStoreFactory{}
	loader := service.NewPolicyLoader(factory, evaluator)
	rateLimiter := rediscache.NewCacheRateLimiter(cache, discardLogger())
	metrics := NewMetrics(prometheus.NewRegistry(), "test")

	return service.NewPipeline(cache, factory, loader, evaluator, rateLimiter, testAuditRecorder{}, metrics, "dev-secret", 100, discardLogger())
}

func TestCheckHandler_MissingTenant(t *testing.T) {
	t.Parallel()
	pipeline := newPipelineForTest(t)
	h := NewCheckHandler(pipeline)

	req := httptest.NewRequest(http.MethodPost, "/check", nil)
	req.Header.Set("x-principal", `User::"a"`)
	req.Header.Set("x-resource", `Doc::"1"`)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	var resp DecisionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "DENY", resp.Decision)
}

func TestCheckHandler_AllowFlag(t *testing.T) {
	t.Parallel()
	pipeline := newPipelineForTest(t)
	h := NewCheckHandler(pipeline)

	req := httptest.NewRequest(http.MethodGet, "/check/some/path", nil)
	req.SetPathValue("rest", "some/path")
	req.Header.Set("x-tenant-id", checkTestTenant)
	req.Header.Set("x-principal", `User::"a"`)
	req.Header.Set("x-resource", `Doc::"1"`)
	req.Header.Set("x-allow", "1")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp DecisionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ALLOW", resp.Decision)
}

func TestOriginalPath(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/check/a/b", nil)
	req.SetPathValue("rest", "a/b")
	require.Equal(t, "/a/b", originalPath(req))

	bare := httptest.NewRequest(http.MethodGet, "/check", nil)
	require.Equal(t, "/check", originalPath(bare))
}

// testStoreFactory and testStore stand in for the real Postgres adapter:
// every tenant gets one always-permit policy and no recorded attributes.

type testStoreFactory struct{}

func (testStoreFactory) Acquire(context.Context) (outbound.StoreClient, error) {
	return testStore{}, nil
}

type testStore struct{}

func (testStore) SetTenantScope(context.Context, string) error { return nil }
func (testStore) LoadActivePolicyVersion(context.Context, string) (int, bool, error) {
	return 1, true, nil
}
func (testStore) LoadPolicies(context.Context, string, int) ([]policy.Policy, error) {
	return []policy.Policy{{PolicyID: "pol-0", Text: `permit(principal, action, resource);`}}, nil
}
func (testStore) LoadAttrs(context.Context, outbound.EntityKind, string) (map[string]any, error) {
	return map[string]any{}, nil
}
func (testStore) InsertAudit(context.Context, audit.AuditRecord) error { return nil }
func (testStore) Close(context.Context) error                         { return nil }

type testAuditRecorder struct{}

func (testAuditRecorder) Record(audit.AuditRecord) {}
