package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sentinelpdp/pdp/internal/domain/policy"
	"github.com/sentinelpdp/pdp/internal/port/outbound"
)

// AdminService implements the admin surface: syntactic policy
// validation and "what-if" simulation, with optional inline policy
// override. It never writes the decision cache or the audit log: validate
// has no store/cache side effects at all, and test's side effects stop at
// the store reads the hot path also performs.
type AdminService struct {
	storeFactory outbound.StoreFactory
	loader       policy.Loader
	evaluator    policy.Evaluator
	logger       *slog.Logger
}

// NewAdminService builds an AdminService over storeFactory, loader, and
// evaluator.
func NewAdminService(storeFactory outbound.StoreFactory, loader policy.Loader, evaluator policy.Evaluator, logger *slog.Logger) *AdminService {
	return &AdminService{storeFactory: storeFactory, loader: loader, evaluator: evaluator, logger: logger}
}

// ValidateResult is the outcome of Validate: ok when every policy parsed
// and assembled cleanly, with one error line per failing policy otherwise.
type ValidateResult struct {
	OK     bool
	Errors []string
}

// Validate parses each of texts as a standalone policy with id
// "inline_policy_{index}" and attempts to assemble them into one set.
// It has no store or cache side effects.
func (s *AdminService) Validate(texts []string) ValidateResult {
	ids := make([]string, len(texts))
	for i := range texts {
		ids[i] = fmt.Sprintf("inline_policy_%d", i)
	}

	_, errs, err := s.evaluator.Parse(ids, texts)
	if err != nil && len(errs) == 0 {
		// The set as a whole failed to assemble even though every policy
		// parsed individually.
		errs = []string{err.Error()}
	}

	return ValidateResult{OK: len(errs) == 0, Errors: errs}
}

// TestRequest is the "what-if" operation's input.
type TestRequest struct {
	TenantID         string // optional when PoliciesOverride is set
	Principal        string // Cedar UID, required
	Resource         string // Cedar UID, required
	Action           string // defaults to "read"
	Context          map[string]any
	PoliciesOverride []string // when non-nil, used instead of the tenant's active set
}

// TestResult is the "what-if" operation's output: the same (status,
// decision, reason) shape the hot path returns, with the reason naming
// whether the override or the tenant's active version was evaluated.
type TestResult = Result

// Test runs the "what-if" simulation: it reuses
// the hot path's entity-build-and-evaluate steps against
// either an inline policy override or the tenant's active policy set.
func (s *AdminService) Test(ctx context.Context, req TestRequest) TestResult {
	action := req.Action
	if action == "" {
		action = defaultAction
	}
	reqCtx := req.Context
	if reqCtx == nil {
		reqCtx = map[string]any{}
	}

	evalCtx := policy.EvaluationContext{
		Tenant:    req.TenantID,
		Principal: req.Principal,
		Resource:  req.Resource,
		Action:    action,
		Context:   reqCtx,
	}

	if req.PoliciesOverride != nil {
		return s.testOverride(ctx, evalCtx, req.PoliciesOverride)
	}
	if req.TenantID == "" {
		return deny(400, "tenant_id is required when policies_override is not set")
	}
	return s.testActive(ctx, evalCtx)
}

func (s *AdminService) testOverride(ctx context.Context, evalCtx policy.EvaluationContext, texts []string) TestResult {
	ids := make([]string, len(texts))
	for i := range texts {
		ids[i] = fmt.Sprintf("override_%d", i)
	}
	policySet, parseErrs, err := s.evaluator.Parse(ids, texts)
	if err != nil {
		return deny(400, fmt.Sprintf("policies_override: %v", parseErrs))
	}

	principalAttrs, resourceAttrs := map[string]any{}, map[string]any{}
	if evalCtx.Tenant != "" {
		store, err := s.storeFactory.Acquire(ctx)
		if err != nil {
			return deny(500, "internal error")
		}
		defer func() { _ = store.Close(ctx) }()

		if err := store.SetTenantScope(ctx, evalCtx.Tenant); err != nil {
			return deny(500, "internal error")
		}
		principalAttrs = s.loadAttrsOrEmpty(ctx, store, outbound.EntityKindPrincipal, evalCtx.Principal)
		resourceAttrs = s.loadAttrsOrEmpty(ctx, store, outbound.EntityKindResource, evalCtx.Resource)
	}

	decision, err := evaluateEntities(ctx, s.evaluator, evalCtx, principalAttrs, resourceAttrs, policySet)
	if err != nil {
		return mapEvalError(err, adminPath)
	}
	return resultWithOrigin(decision, "override")
}

func (s *AdminService) testActive(ctx context.Context, evalCtx policy.EvaluationContext) TestResult {
	store, err := s.storeFactory.Acquire(ctx)
	if err != nil {
		return deny(500, "internal error")
	}
	defer func() { _ = store.Close(ctx) }()

	if err := store.SetTenantScope(ctx, evalCtx.Tenant); err != nil {
		return deny(500, "internal error")
	}

	version, policySet, err := s.loader.Load(ctx, evalCtx.Tenant)
	if err != nil {
		return deny(500, "policy load error")
	}

	principalAttrs := s.loadAttrsOrEmpty(ctx, store, outbound.EntityKindPrincipal, evalCtx.Principal)
	resourceAttrs := s.loadAttrsOrEmpty(ctx, store, outbound.EntityKindResource, evalCtx.Resource)

	decision, err := evaluateEntities(ctx, s.evaluator, evalCtx, principalAttrs, resourceAttrs, policySet)
	if err != nil {
		return mapEvalError(err, adminPath)
	}
	return resultWithOrigin(decision, fmt.Sprintf("active v%d", version))
}

func (s *AdminService) loadAttrsOrEmpty(ctx context.Context, store outbound.StoreClient, kind outbound.EntityKind, uid string) map[string]any {
	attrs, err := store.LoadAttrs(ctx, kind, uid)
	if err != nil {
		s.logger.Warn("attribute load failed, continuing with empty attrs", "uid", uid, "error", err)
		return map[string]any{}
	}
	return attrs
}

// resultWithOrigin renders decision as a TestResult with its reason
// suffixed by the evaluation's origin:
// "cedar allow (override)" or "cedar allow (active vN)".
func resultWithOrigin(decision policy.Decision, origin string) TestResult {
	if decision.Allowed {
		return allow(200, fmt.Sprintf("cedar allow (%s)", origin))
	}
	return deny(403, fmt.Sprintf("cedar deny (%s)", origin))
}
