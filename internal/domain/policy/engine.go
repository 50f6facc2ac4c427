package policy

import "context"

// Evaluator authorizes a single request against an already-loaded, already
// parsed policy set and entity set. Implemented by the cedar-go adapter
// (internal/adapter/outbound/cedarengine); PolicySet is left as `any` here
// so this package does not import cedar-go -- the concrete evaluator casts
// it to its own parsed-policy-set type.
type Evaluator interface {
	// Evaluate returns true when the request is authorized (ALLOW).
	// entities is the set of entity records built for principal and
	// resource. policySet is the value previously returned by Parse.
	Evaluate(ctx context.Context, evalCtx EvaluationContext, entities []Entity, policySet any) (bool, error)

	// Parse compiles policy source texts (in order, ids assigned by the
	// caller) into an opaque policy set value consumable by Evaluate.
	// Returns one error string per failed policy plus an overall error
	// when the set as a whole could not be assembled.
	Parse(ids []string, texts []string) (any, []string, error)
}

// Entity is a single Cedar entity record: a UID plus its attributes, with
// no parent entities (the entity builder never populates parents).
type Entity struct {
	Type  string
	ID    string
	Attrs map[string]any
}

// Loader is the narrow, read-only policy-set loading contract exposed to
// the decision pipeline and the admin surface. It intentionally has no
// Create/Update/Delete: the core does not author, diff, or version-control
// policies.
type Loader interface {
	// Load returns the currently active, parsed policy set for tenant,
	// along with its version, serving from the in-process cache when
	// possible and falling through to the store on a miss.
	Load(ctx context.Context, tenant string) (version int, policySet any, err error)

	// Invalidate evicts tenant's cached entry, forcing the next Load to
	// hit the store. Called by the invalidation listener.
	Invalidate(tenant string)
}
