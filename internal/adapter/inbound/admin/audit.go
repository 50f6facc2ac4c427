package admin

import (
	"net/http"
	"strconv"

	"github.com/sentinelpdp/pdp/internal/domain/audit"
)

const defaultAuditLimit = 50

// auditRecordDTO is the JSON shape of one audit_logs row, mirroring
// audit.AuditRecord.
type auditRecordDTO struct {
	Tenant           string `json:"tenant"`
	Principal        string `json:"principal"`
	Resource         string `json:"resource"`
	Action           string `json:"action"`
	Decision         string `json:"decision"`
	PolicySetVersion int    `json:"policy_set_version"`
	LatencyMS        int64  `json:"latency_ms"`
	Timestamp        string `json:"timestamp"`
}

func toAuditDTO(r audit.AuditRecord) auditRecordDTO {
	return auditRecordDTO{
		Tenant:           r.Tenant,
		Principal:        r.Principal,
		Resource:         r.Resource,
		Action:           r.Action,
		Decision:         r.Decision,
		PolicySetVersion: r.PolicySetVersion,
		LatencyMS:        r.LatencyMS,
		Timestamp:        r.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

// handleAuditRecent implements GET /admin/audit/recent: the most recent
// audit rows for one tenant, newest first, bounded by an optional limit
// query parameter.
func (h *Handler) handleAuditRecent(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		h.respondError(w, http.StatusServiceUnavailable, "audit reader not configured")
		return
	}

	tenant := r.URL.Query().Get("tenant_id")
	if tenant == "" {
		h.respondError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := h.audit.Query(r.Context(), audit.AuditFilter{Tenant: tenant, Limit: limit})
	if err != nil {
		h.logger.Error("admin: audit query failed", "tenant", tenant, "error", err)
		h.respondError(w, http.StatusInternalServerError, "audit query failed")
		return
	}

	dtos := make([]auditRecordDTO, len(records))
	for i, rec := range records {
		dtos[i] = toAuditDTO(rec)
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"records": dtos, "count": len(dtos)})
}
