package audit

import "context"

// AuditStore persists audit records. Implementations own batching and
// durability; callers treat Append as fire-and-forget.
type AuditStore interface {
	// Append stores audit records.
	Append(ctx context.Context, records ...AuditRecord) error

	// Flush forces pending records to storage during shutdown.
	Flush(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// AuditFilter specifies query parameters for the /admin/audit/recent
// endpoint: scoped to one tenant, bounded by Limit.
type AuditFilter struct {
	Tenant string
	Limit  int
}

// AuditQueryStore provides read access to audit logs for admin queries,
// separate from the write-only AuditStore.
type AuditQueryStore interface {
	// Query retrieves the most recent audit records matching filter,
	// newest first.
	Query(ctx context.Context, filter AuditFilter) ([]AuditRecord, error)
}
