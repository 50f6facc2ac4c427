package postgres

import (
	"context"
	"fmt"

	"github.com/sentinelpdp/pdp/internal/domain/audit"
	"github.com/sentinelpdp/pdp/internal/port/outbound"
)

// AuditStore adapts the per-request StoreClient's InsertAudit op to
// audit.AuditStore, so AuditService's background worker can flush batches
// durably instead of holding them only in the in-memory ring buffer.
// Every record in a batch gets its own short-lived transaction, since
// InsertAudit runs under the same row-level-security tenant scope as the
// hot path's writes and records in one batch may span tenants.
type AuditStore struct {
	factory outbound.StoreFactory
}

// NewAuditStore wraps factory as an audit.AuditStore.
func NewAuditStore(factory outbound.StoreFactory) *AuditStore {
	return &AuditStore{factory: factory}
}

var _ audit.AuditStore = (*AuditStore)(nil)

// Append inserts every record, scoping each to its own tenant before the
// insert. A single record's failure is returned immediately; the caller
// (AuditService.flush) only logs it, so partial batches are acceptable.
func (a *AuditStore) Append(ctx context.Context, records ...audit.AuditRecord) error {
	for _, record := range records {
		if err := a.appendOne(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

func (a *AuditStore) appendOne(ctx context.Context, record audit.AuditRecord) error {
	store, err := a.factory.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("postgres: audit store: acquire: %w", err)
	}
	defer func() { _ = store.Close(ctx) }()

	if err := store.SetTenantScope(ctx, record.Tenant); err != nil {
		return fmt.Errorf("postgres: audit store: set tenant scope: %w", err)
	}
	if err := store.InsertAudit(ctx, record); err != nil {
		return fmt.Errorf("postgres: audit store: insert: %w", err)
	}
	return nil
}

// Flush is a no-op: every Append commits its own transaction immediately,
// so there is nothing buffered here to flush.
func (a *AuditStore) Flush(context.Context) error { return nil }

// Close is a no-op: the underlying StoreFactory outlives this adapter and
// is closed by whoever constructed it.
func (a *AuditStore) Close() error { return nil }

// Query implements audit.AuditQueryStore for GET /admin/audit/recent
// against the real Postgres backend: it scopes the
// connection to filter.Tenant the same way the hot path does, then reads
// audit_logs under that scope so the admin read gets the same
// row-level-security guarantee as every other tenant-scoped read.
func (a *AuditStore) Query(ctx context.Context, filter audit.AuditFilter) ([]audit.AuditRecord, error) {
	store, err := a.factory.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: audit store: acquire: %w", err)
	}
	defer func() { _ = store.Close(ctx) }()

	if err := store.SetTenantScope(ctx, filter.Tenant); err != nil {
		return nil, fmt.Errorf("postgres: audit store: set tenant scope: %w", err)
	}

	queryable, ok := store.(auditQueryable)
	if !ok {
		return nil, fmt.Errorf("postgres: audit store: store client does not support recent-audit queries")
	}
	return queryable.queryRecentAudit(ctx, filter)
}

var _ audit.AuditQueryStore = (*AuditStore)(nil)

// auditQueryable is implemented by *Store to give AuditStore.Query access
// to a raw SELECT without widening the outbound.StoreClient port: the
// recent-audit read is an admin-surface need, not part of the hot-path
// store contract.
type auditQueryable interface {
	queryRecentAudit(ctx context.Context, filter audit.AuditFilter) ([]audit.AuditRecord, error)
}
