// Package audit contains domain types for audit logging.
package audit

import "time"

// Decision constants for audit records.
const (
	DecisionAllow = "ALLOW"
	DecisionDeny  = "DENY"
)

// AuditRecord represents a single decision-pipeline audit row, one per
// evaluated request, mapping one audit_logs row.
type AuditRecord struct {
	Tenant           string    `db:"tenant_id"`
	Principal        string    `db:"principal"`
	Resource         string    `db:"resource"`
	Action           string    `db:"action"`
	Decision         string    `db:"decision"`
	PolicySetVersion int       `db:"policy_set_version"`
	LatencyMS        int64     `db:"latency_ms"`
	Timestamp        time.Time `db:"timestamp"`
}
