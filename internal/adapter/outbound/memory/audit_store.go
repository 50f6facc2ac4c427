package memory

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/sentinelpdp/pdp/internal/domain/audit"
)

const defaultAuditRingSize = 1000

// MemoryAuditStore is the standalone audit sink: each record is written as
// one JSON line and retained in a bounded ring of recent records so the
// admin surface can still answer recent-audit queries without Postgres.
type MemoryAuditStore struct {
	mu      sync.Mutex
	encoder *json.Encoder
	writer  io.Writer
	ring    []audit.AuditRecord
	size    int
}

// NewAuditStore returns a store writing JSON lines to stdout.
func NewAuditStore() *MemoryAuditStore {
	return NewAuditStoreWithWriter(os.Stdout)
}

// NewAuditStoreWithWriter returns a store writing JSON lines to w, keeping
// the default number of recent records queryable.
func NewAuditStoreWithWriter(w io.Writer) *MemoryAuditStore {
	return &MemoryAuditStore{
		encoder: json.NewEncoder(w),
		writer:  w,
		ring:    make([]audit.AuditRecord, 0, defaultAuditRingSize),
		size:    defaultAuditRingSize,
	}
}

var (
	_ audit.AuditStore      = (*MemoryAuditStore)(nil)
	_ audit.AuditQueryStore = (*MemoryAuditStore)(nil)
)

// Append writes each record as a JSON line and adds it to the recent ring,
// evicting the oldest entry once the ring is full.
func (s *MemoryAuditStore) Append(_ context.Context, records ...audit.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if err := s.encoder.Encode(r); err != nil {
			return err
		}
		if len(s.ring) >= s.size {
			copy(s.ring, s.ring[1:])
			s.ring[len(s.ring)-1] = r
		} else {
			s.ring = append(s.ring, r)
		}
	}
	return nil
}

// Flush is a no-op: Append writes through immediately.
func (s *MemoryAuditStore) Flush(context.Context) error { return nil }

// Close closes the underlying writer when it is a regular file.
func (s *MemoryAuditStore) Close() error {
	if f, ok := s.writer.(*os.File); ok && f != os.Stdout && f != os.Stderr {
		return f.Close()
	}
	return nil
}

// Query returns the most recent records for filter.Tenant, newest first,
// bounded by filter.Limit (default and maximum 100).
func (s *MemoryAuditStore) Query(_ context.Context, filter audit.AuditFilter) ([]audit.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	var out []audit.AuditRecord
	for i := len(s.ring) - 1; i >= 0 && len(out) < limit; i-- {
		r := s.ring[i]
		if filter.Tenant != "" && r.Tenant != filter.Tenant {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
