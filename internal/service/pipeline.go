// Package service implements the decision pipeline and its
// collaborators: the policy loader, the invalidation listener,
// and the async audit/stats ambient services.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelpdp/pdp/internal/domain/audit"
	"github.com/sentinelpdp/pdp/internal/domain/claims"
	"github.com/sentinelpdp/pdp/internal/domain/entity"
	"github.com/sentinelpdp/pdp/internal/domain/policy"
	"github.com/sentinelpdp/pdp/internal/domain/ratelimit"
	"github.com/sentinelpdp/pdp/internal/pdperr"
	"github.com/sentinelpdp/pdp/internal/port/outbound"
)

// defaultAction is applied when x-action is absent.
const defaultAction = "read"

// decisionTTL is the shared-cache decision entry lifetime.
const decisionTTL = 30 * time.Second

// cacheKeyPrefix prefixes the fingerprint to form the decision cache key.
const cacheKeyPrefix = "pdp:decision:"

// PipelineMetrics is the narrow metrics surface the pipeline drives.
// Implemented by the HTTP adapter's Prometheus Metrics so this package
// never imports net/http.
type PipelineMetrics interface {
	IncRequests()
	IncCacheHit()
	IncCacheMiss()
	IncRateLimited()
	ObserveLatencyMS(ms float64)
}

// AuditRecorder records a decision for audit, usually fronted by an async
// batching service. Implementations must not block the caller noticeably;
// auditing is best-effort.
type AuditRecorder interface {
	Record(record audit.AuditRecord)
}

// Intake is the decision pipeline's normalized view of one incoming
// request: the headers and path the intake step reads from.
type Intake struct {
	TenantID     string
	Principal    string
	Resource     string
	Action       string
	AllowFlag    string
	ClaimsSig    string
	OriginalPath string
}

// Result is the decision pipeline's outward response.
type Result struct {
	Status   int
	Decision string // "ALLOW" | "DENY"
	Reason   string
}

func deny(status int, reason string) Result {
	return Result{Status: status, Decision: audit.DecisionDeny, Reason: reason}
}

func allow(status int, reason string) Result {
	return Result{Status: status, Decision: audit.DecisionAllow, Reason: reason}
}

// Pipeline implements the decision pipeline: intake -> rate limit ->
// decision-cache probe -> (on miss) tenant scoping, policy load,
// attribute fetch, entity build, evaluation, cache write, audit insert.
type Pipeline struct {
	cache        outbound.CacheClient
	storeFactory outbound.StoreFactory
	loader       policy.Loader
	evaluator    policy.Evaluator
	rateLimiter  ratelimit.RateLimiter
	audit        AuditRecorder
	metrics      PipelineMetrics
	logger       *slog.Logger

	claimsSecret   string
	defaultRateRPS int
	auditCacheHits bool
}

// PipelineOption configures optional Pipeline behavior.
type PipelineOption func(*Pipeline)

// WithAuditCacheHits makes the pipeline write an audit row for decision-
// cache hits too.
func WithAuditCacheHits(v bool) PipelineOption {
	return func(p *Pipeline) { p.auditCacheHits = v }
}

// NewPipeline assembles a Pipeline from its collaborators.
func NewPipeline(
	cache outbound.CacheClient,
	storeFactory outbound.StoreFactory,
	loader policy.Loader,
	evaluator policy.Evaluator,
	rateLimiter ratelimit.RateLimiter,
	auditRecorder AuditRecorder,
	metrics PipelineMetrics,
	claimsSecret string,
	defaultRateRPS int,
	logger *slog.Logger,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		cache:          cache,
		storeFactory:   storeFactory,
		loader:         loader,
		evaluator:      evaluator,
		rateLimiter:    rateLimiter,
		audit:          auditRecorder,
		metrics:        metrics,
		claimsSecret:   claimsSecret,
		defaultRateRPS: defaultRateRPS,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Decide runs the full hot-path decision pipeline for one request.
// It never returns a Go error: every failure mode maps to a
// Result with a fixed status mapping.
func (p *Pipeline) Decide(ctx context.Context, in Intake) Result {
	start := time.Now()
	p.metrics.IncRequests()

	if in.Action == "" {
		in.Action = defaultAction
	}

	// Step 1: intake.
	if in.TenantID == "" {
		return deny(403, "missing x-tenant-id")
	}
	if _, err := uuid.Parse(in.TenantID); err != nil {
		return deny(403, "missing x-tenant-id")
	}
	if in.Principal == "" {
		return deny(403, "missing x-principal")
	}
	if in.Resource == "" {
		return deny(403, "missing x-resource")
	}
	if in.AllowFlag == "1" {
		return allow(200, "allowed by x-allow: 1")
	}

	// Step 2: claims check.
	if in.ClaimsSig != "" {
		if !claims.Verify(p.claimsSecret, in.TenantID, in.Principal, in.Resource, in.Action, in.ClaimsSig) {
			return deny(401, "bad signature")
		}
	}

	// Step 3: rate limit.
	rlResult, err := p.rateLimiter.Allow(ctx, "rl:"+in.TenantID, ratelimit.RateLimitConfig{
		Rate:   p.defaultRateRPS,
		Period: time.Second,
	})
	if err == nil && !rlResult.Allowed {
		p.metrics.IncRateLimited()
		return deny(429, fmt.Sprintf("rate limit > %d rps", p.defaultRateRPS))
	}

	// Step 4: build context.
	evalCtx := policy.EvaluationContext{
		Tenant:    in.TenantID,
		Principal: in.Principal,
		Resource:  in.Resource,
		Action:    in.Action,
		Context: map[string]any{
			"timeOfDay": "workhours",
			"path":      in.OriginalPath,
		},
	}

	// Step 5: fingerprint, step 6: decision-cache probe.
	cacheKey, err := fingerprintKey(evalCtx)
	if err != nil {
		return deny(403, "invalid context")
	}

	if cached, ok, err := p.cache.Get(ctx, cacheKey); err == nil && ok {
		if cached == audit.DecisionAllow || cached == audit.DecisionDeny {
			p.metrics.IncCacheHit()
			p.recordLatency(start)
			if p.auditCacheHits {
				p.recordAudit(evalCtx, cached, 0, start)
			}
			if cached == audit.DecisionAllow {
				return allow(200, "cache hit")
			}
			return deny(403, "cache hit")
		}
	}
	p.metrics.IncCacheMiss()

	// Steps 7-11: scope, load policy, load attrs, build entities, evaluate.
	outcome := p.evaluateMiss(ctx, evalCtx, hotPath)
	p.recordLatency(start)

	if outcome.err != nil {
		result := mapEvalError(outcome.err, hotPath)
		p.recordAudit(evalCtx, result.Decision, outcome.version, start)
		return result
	}

	// Step 12: cache write (best-effort).
	if err := p.cache.SetWithTTL(ctx, cacheKey, outcome.decision.String(), decisionTTL); err != nil {
		p.logger.Warn("decision cache write failed", "error", err)
	}

	// Step 13: audit insert (best-effort).
	p.recordAudit(evalCtx, outcome.decision.String(), outcome.version, start)

	// Step 14: respond.
	if outcome.decision.Allowed {
		return allow(200, "cedar allow")
	}
	return deny(403, "cedar deny")
}

func (p *Pipeline) recordLatency(start time.Time) {
	p.metrics.ObserveLatencyMS(float64(time.Since(start).Microseconds()) / 1000.0)
}

func (p *Pipeline) recordAudit(evalCtx policy.EvaluationContext, decision string, version int, start time.Time) {
	if p.audit == nil {
		return
	}
	p.audit.Record(audit.AuditRecord{
		Tenant:           evalCtx.Tenant,
		Principal:        evalCtx.Principal,
		Resource:         evalCtx.Resource,
		Action:           evalCtx.Action,
		Decision:         decision,
		PolicySetVersion: version,
		LatencyMS:        time.Since(start).Milliseconds(),
		Timestamp:        time.Now().UTC(),
	})
}

// evalOutcome is the result of steps 7-11 on the hot path (evaluateMiss).
// The admin "what-if" path returns its own TestResult instead.
type evalOutcome struct {
	decision policy.Decision
	version  int
	err      error
}

// origin distinguishes hot-path vs admin-surface callers of the shared
// evaluation steps, since the same failures map to different HTTP
// statuses on each.
type origin int

const (
	hotPath origin = iota
	adminPath
)

// evaluateMiss runs the cache-miss half of the pipeline: tenant scoping, policy load,
// attribute load, entity build, and evaluation, for the hot-path decision
// cache miss case. The admin "what-if" path has its own variant in
// admin.go that additionally supports an inline policies_override.
func (p *Pipeline) evaluateMiss(ctx context.Context, evalCtx policy.EvaluationContext, _ origin) evalOutcome {
	store, err := p.storeFactory.Acquire(ctx)
	if err != nil {
		return evalOutcome{err: pdperr.New(pdperr.KindTenantScopeFailed, pdperr.ErrTenantScopeFailed, err.Error())}
	}
	defer func() { _ = store.Close(ctx) }()

	if err := store.SetTenantScope(ctx, evalCtx.Tenant); err != nil {
		return evalOutcome{err: pdperr.New(pdperr.KindTenantScopeFailed, pdperr.ErrTenantScopeFailed, err.Error())}
	}

	version, policySet, err := p.loader.Load(ctx, evalCtx.Tenant)
	if err != nil {
		return evalOutcome{err: err}
	}

	principalAttrs, err := store.LoadAttrs(ctx, outbound.EntityKindPrincipal, evalCtx.Principal)
	if err != nil {
		p.logger.Warn("attribute load failed, continuing with empty attrs", "uid", evalCtx.Principal, "error", err)
		principalAttrs = map[string]any{}
	}
	resourceAttrs, err := store.LoadAttrs(ctx, outbound.EntityKindResource, evalCtx.Resource)
	if err != nil {
		p.logger.Warn("attribute load failed, continuing with empty attrs", "uid", evalCtx.Resource, "error", err)
		resourceAttrs = map[string]any{}
	}

	decision, err := evaluateEntities(ctx, p.evaluator, evalCtx, principalAttrs, resourceAttrs, policySet)
	if err != nil {
		return evalOutcome{version: version, err: err}
	}

	return evalOutcome{decision: decision, version: version}
}

// evaluateEntities builds the principal/resource entity records and
// evaluates the request against an already-loaded policy set. It is shared by the
// hot-path pipeline and the admin "what-if" operation (admin.go), which
// both reach this same step from different places upstream.
func evaluateEntities(ctx context.Context, evaluator policy.Evaluator, evalCtx policy.EvaluationContext, principalAttrs, resourceAttrs map[string]any, policySet any) (policy.Decision, error) {
	principalRec, err := entity.Build(evalCtx.Principal, principalAttrs)
	if err != nil {
		return policy.Decision{}, pdperr.New(pdperr.KindInvalidUID, pdperr.ErrInvalidUID, "principal: "+err.Error())
	}
	resourceRec, err := entity.Build(evalCtx.Resource, resourceAttrs)
	if err != nil {
		return policy.Decision{}, pdperr.New(pdperr.KindInvalidUID, pdperr.ErrInvalidUID, "resource: "+err.Error())
	}

	evalCtx.Action = canonicalActionUID(evalCtx.Action)

	entities := []policy.Entity{
		{Type: principalRec.UID.Type, ID: principalRec.UID.ID, Attrs: principalRec.Attrs},
		{Type: resourceRec.UID.Type, ID: resourceRec.UID.ID, Attrs: resourceRec.Attrs},
	}

	allowed, err := evaluator.Evaluate(ctx, evalCtx, entities, policySet)
	if err != nil {
		return policy.Decision{}, pdperr.New(pdperr.KindEvaluatorInternal, pdperr.ErrEvaluatorInternal, err.Error())
	}

	reason := "cedar deny"
	if allowed {
		reason = "cedar allow"
	}
	return policy.Decision{Allowed: allowed, Reason: reason}, nil
}

// canonicalActionUID promotes a bare action name ("read") to Cedar's
// Action::"read" UID form; an already-qualified action ("Action::\"read\"")
// passes through unchanged.
func canonicalActionUID(action string) string {
	if strings.Contains(action, "::") {
		return action
	}
	return `Action::"` + action + `"`
}

// mapEvalError maps an error from evaluateMiss to an outward Result.
// The hot path and admin path diverge on
// invalid_uid/invalid_context/invalid_action (403 vs 400) and on store
// errors (403 vs 500).
func mapEvalError(err error, o origin) Result {
	kind := pdperr.Kind(err)
	switch kind {
	case pdperr.KindTenantScopeFailed:
		if o == adminPath {
			return deny(500, "internal error")
		}
		return deny(403, "tenant set failed")
	case pdperr.KindPolicyLoadFailed:
		if o == adminPath {
			return deny(500, "policy load error")
		}
		return deny(403, "policy load error")
	case pdperr.KindPolicyParseFailed:
		// A parse failure is a 503, distinct from policy_load_failed's 403:
		// the policy set exists but could not be compiled, a condition a
		// retry may clear once the set is fixed upstream.
		if o == adminPath {
			return deny(500, "policy load error")
		}
		return deny(503, "policy load error")
	case pdperr.KindInvalidUID, pdperr.KindInvalidAction, pdperr.KindInvalidContext:
		if o == adminPath {
			return deny(400, err.Error())
		}
		return deny(403, err.Error())
	case pdperr.KindEvaluatorInternal:
		if o == adminPath {
			return deny(400, err.Error())
		}
		return deny(403, "evaluator error")
	default:
		if o == adminPath {
			return deny(500, "internal error")
		}
		return deny(403, "internal error")
	}
}

// fingerprintKey computes the decision-cache key:
// "pdp:decision:" + lowercase-hex SHA-256 of
// tenant||0x00||principal||0x00||resource||0x00||action||0x00||canonical-context-json.
// encoding/json marshals map[string]any with lexicographically sorted
// keys, which is what makes this canonicalization stable across calls
// with the same logical context.
func fingerprintKey(evalCtx policy.EvaluationContext) (string, error) {
	ctxJSON, err := json.Marshal(evalCtx.Context)
	if err != nil {
		return "", fmt.Errorf("canonicalize context: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(evalCtx.Tenant))
	h.Write([]byte{0})
	h.Write([]byte(evalCtx.Principal))
	h.Write([]byte{0})
	h.Write([]byte(evalCtx.Resource))
	h.Write([]byte{0})
	h.Write([]byte(evalCtx.Action))
	h.Write([]byte{0})
	h.Write(ctxJSON)

	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil)), nil
}
