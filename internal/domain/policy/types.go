// Package policy contains domain types for Cedar-based authorization.
package policy

// PolicySetStatus is the lifecycle state of a PolicySet.
type PolicySetStatus string

const (
	StatusDraft   PolicySetStatus = "draft"
	StatusActive  PolicySetStatus = "active"
	StatusRetired PolicySetStatus = "retired"
)

// PolicySet is a versioned, tenant-scoped collection of policies, mapping
// one policy_sets row. At most one PolicySet per tenant is active at a
// time; when more than one row satisfies that (a transient state the
// loader must tolerate), the highest version wins.
type PolicySet struct {
	PolicySetID string          `db:"id"`
	TenantID    string          `db:"tenant_id"`
	Version     int             `db:"version"`
	Status      PolicySetStatus `db:"status"`
}

// Policy is a single unit of Cedar policy source text belonging to a
// PolicySet, mapping one policies row. The core treats Text as opaque
// source; it does not author, diff, or version it.
type Policy struct {
	PolicyID    string `db:"id"`
	PolicySetID string `db:"policy_set_id"`
	Text        string `db:"cedar"`
}

// Decision is the outcome of one authorize(principal, action, resource,
// context) evaluation.
type Decision struct {
	// Allowed is true when Cedar authorized the request (ALLOW).
	Allowed bool
	// Reason is a short, ASCII, safe-to-expose explanation. It never
	// contains raw store errors or policy text.
	Reason string
}

func (d Decision) String() string {
	if d.Allowed {
		return "ALLOW"
	}
	return "DENY"
}
