// Package outbound defines the narrow interfaces the decision pipeline and
// its collaborators use to reach Postgres and Redis.
package outbound

import (
	"context"

	"github.com/sentinelpdp/pdp/internal/domain/audit"
	"github.com/sentinelpdp/pdp/internal/domain/policy"
)

// EntityKind selects which entity table load_attrs reads from.
type EntityKind string

const (
	EntityKindPrincipal EntityKind = "principals"
	EntityKindResource  EntityKind = "resources"
)

// StoreClient is the five-operation contract the decision pipeline drives
// against Postgres. Every op is non-retryable on failure: callers treat a
// returned error as a terminal store failure for that request.
type StoreClient interface {
	// SetTenantScope re-establishes row-level-security scoping on the
	// connection that will service the rest of this request. Pooled
	// connections may have served a different tenant previously, so this
	// must be called on every request, not just once per connection.
	SetTenantScope(ctx context.Context, tenant string) error

	// LoadActivePolicyVersion returns the highest-version active policy
	// set for tenant. ok is false when no active set exists.
	LoadActivePolicyVersion(ctx context.Context, tenant string) (version int, ok bool, err error)

	// LoadPolicies returns every policy row belonging to the policy set
	// at (tenant, version), in a stable order suitable for deterministic
	// "p{index}" id assignment.
	LoadPolicies(ctx context.Context, tenant string, version int) ([]policy.Policy, error)

	// LoadAttrs returns the attribute map for the given entity kind and
	// Cedar UID. A missing row yields an empty (non-nil) map, not an error.
	LoadAttrs(ctx context.Context, kind EntityKind, uid string) (map[string]any, error)

	// InsertAudit appends an audit row. Best-effort: callers log failures
	// rather than surfacing them to the response.
	InsertAudit(ctx context.Context, record audit.AuditRecord) error

	// Close releases the connection this StoreClient was checked out on
	// back to the pool, committing any scoping transaction. Every
	// StoreClient returned by a StoreFactory must be Closed by its caller.
	Close(ctx context.Context) error
}

// StoreFactory checks out one pooled connection per request as a
// StoreClient, so SetTenantScope's row-level-security guard applies to
// every query the request subsequently issues on that same connection.
type StoreFactory interface {
	Acquire(ctx context.Context) (StoreClient, error)
}
