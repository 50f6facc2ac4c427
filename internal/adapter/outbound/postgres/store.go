// Package postgres implements the outbound.StoreClient/StoreFactory ports
// against Postgres via sqlx and lib/pq, with row-level
// security as the tenant-scoping mechanism.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/sentinelpdp/pdp/internal/domain/audit"
	"github.com/sentinelpdp/pdp/internal/domain/policy"
	"github.com/sentinelpdp/pdp/internal/port/outbound"
)

// Open connects to Postgres at dsn and verifies the connection.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return db, nil
}

// Factory checks out one transaction per request as a StoreClient. The
// transaction is how SetTenantScope's "SET LOCAL" reaches every query the
// request issues afterward on that connection: SET LOCAL is transaction-scoped in Postgres, so a fresh
// transaction per request is also a fresh scope per request.
type Factory struct {
	db *sqlx.DB
}

// NewFactory wraps db as a StoreFactory.
func NewFactory(db *sqlx.DB) *Factory {
	return &Factory{db: db}
}

var _ outbound.StoreFactory = (*Factory)(nil)

// Acquire checks out a connection from the pool and starts a transaction
// on it. The transaction is left open (uncommitted) until Close.
func (f *Factory) Acquire(ctx context.Context) (outbound.StoreClient, error) {
	tx, err := f.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	return &Store{tx: tx}, nil
}

// Store is a single request's view of Postgres, bound to one transaction
// so tenant scoping applies to every query issued through it.
type Store struct {
	tx *sqlx.Tx
}

var _ outbound.StoreClient = (*Store)(nil)

// SetTenantScope sets the session-local variable Postgres RLS policies on
// policy_sets/policies/principals/resources/audit_logs filter on. SET
// LOCAL is scoped to the current transaction, so this must be (and is)
// called once per Acquire, not cached across requests.
func (s *Store) SetTenantScope(ctx context.Context, tenant string) error {
	// SET LOCAL does not accept query parameters, so tenant is embedded as
	// a string literal escaped by quoteLiteral. The hot path validates it
	// as a UUID first; the admin paths pass it through as given.
	_, err := s.tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL app.tenant_id = %s", quoteLiteral(tenant)))
	if err != nil {
		return fmt.Errorf("postgres: set tenant scope: %w", err)
	}
	return nil
}

// quoteLiteral escapes a string for use as a Postgres string literal,
// doubling embedded single quotes. Used only for SET LOCAL, which cannot
// be parameterized.
func quoteLiteral(s string) string {
	escaped := ""
	for _, r := range s {
		if r == '\'' {
			escaped += "''"
			continue
		}
		escaped += string(r)
	}
	return "'" + escaped + "'"
}

// LoadActivePolicyVersion returns the highest-version policy_sets row
// where tenant_id = current scope and status is active. RLS also
// restricts the scan to tenant's own rows; the tenant predicate is kept
// explicit for defense in depth and for tests run against a plain
// (non-RLS) schema.
func (s *Store) LoadActivePolicyVersion(ctx context.Context, tenant string) (int, bool, error) {
	const q = `
		SELECT id, tenant_id, version, status FROM policy_sets
		WHERE tenant_id = $1 AND status = $2
		ORDER BY version DESC
		LIMIT 1`

	var set policy.PolicySet
	err := s.tx.GetContext(ctx, &set, q, tenant, string(policy.StatusActive))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("postgres: load active policy version: %w", err)
	}
	return set.Version, true, nil
}

// LoadPolicies returns every policies row for (tenant, version), in a
// stable id order (ORDER BY p.id) so "p{index}" assignment is
// deterministic across loads of an unchanged set.
func (s *Store) LoadPolicies(ctx context.Context, tenant string, version int) ([]policy.Policy, error) {
	const q = `
		SELECT p.id, p.policy_set_id, p.cedar FROM policies p
		JOIN policy_sets ps ON ps.id = p.policy_set_id
		WHERE ps.tenant_id = $1 AND ps.version = $2
		ORDER BY p.id`

	var policies []policy.Policy
	if err := s.tx.SelectContext(ctx, &policies, q, tenant, version); err != nil {
		return nil, fmt.Errorf("postgres: load policies: %w", err)
	}
	return policies, nil
}

// LoadAttrs returns the jsonb attrs column for the given entity kind and
// UID, decoded into a map. A missing row yields an empty map, not an
// error: absence of attributes is not denial.
func (s *Store) LoadAttrs(ctx context.Context, kind outbound.EntityKind, uid string) (map[string]any, error) {
	table, err := attrTable(kind)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`SELECT attrs FROM %s WHERE cedar_uid = $1`, table)

	var raw []byte
	err = s.tx.GetContext(ctx, &raw, q, uid)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: load attrs: %w", err)
	}

	attrs := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &attrs); err != nil {
			return nil, fmt.Errorf("postgres: decode attrs: %w", err)
		}
	}
	return attrs, nil
}

func attrTable(kind outbound.EntityKind) (string, error) {
	switch kind {
	case outbound.EntityKindPrincipal:
		return "principals", nil
	case outbound.EntityKindResource:
		return "resources", nil
	default:
		return "", fmt.Errorf("postgres: unknown entity kind %q", kind)
	}
}

// InsertAudit appends one audit_logs row. Best-effort from the caller's
// perspective: the pipeline logs, never surfaces, a failure here.
func (s *Store) InsertAudit(ctx context.Context, record audit.AuditRecord) error {
	const q = `
		INSERT INTO audit_logs
			(tenant_id, principal, resource, action, decision, policy_set_version, latency_ms, timestamp)
		VALUES
			(:tenant_id, :principal, :resource, :action, :decision, :policy_set_version, :latency_ms, :timestamp)`

	if _, err := s.tx.NamedExecContext(ctx, q, record); err != nil {
		return fmt.Errorf("postgres: insert audit: %w", err)
	}
	return nil
}

const defaultAuditQueryLimit = 50

// queryRecentAudit implements auditQueryable for the
// GET /admin/audit/recent endpoint: the most recent audit_logs rows for
// filter.Tenant, newest first, bounded by filter.Limit.
func (s *Store) queryRecentAudit(ctx context.Context, filter audit.AuditFilter) ([]audit.AuditRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditQueryLimit
	}

	const q = `
		SELECT tenant_id, principal, resource, action, decision, policy_set_version, latency_ms, timestamp
		FROM audit_logs
		WHERE tenant_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`

	var records []audit.AuditRecord
	if err := s.tx.SelectContext(ctx, &records, q, filter.Tenant, limit); err != nil {
		return nil, fmt.Errorf("postgres: query recent audit: %w", err)
	}
	return records, nil
}

// Close commits the request's transaction, returning the connection to
// the pool. Call exactly once, after the request finishes using the
// StoreClient returned by Acquire.
func (s *Store) Close(ctx context.Context) error {
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}
