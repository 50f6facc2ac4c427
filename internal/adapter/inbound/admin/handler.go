// Package admin provides the JSON admin surface:
// policy validation, "what-if" evaluation, and read-only stats/audit
// endpoints.
package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sentinelpdp/pdp/internal/domain/audit"
	"github.com/sentinelpdp/pdp/internal/service"
)

// AuditReader provides read access to recent audit records for
// GET /admin/audit/recent. Satisfied directly by audit.AuditQueryStore.
type AuditReader interface {
	Query(ctx context.Context, filter audit.AuditFilter) ([]audit.AuditRecord, error)
}

// StatsReader is the narrow surface GET /admin/stats reads from
// service.StatsService.
type StatsReader interface {
	GetStats() service.Stats
}

// Handler serves the admin JSON API. Every field is optional; handlers for
// a nil collaborator respond 503 rather than panicking, since the admin
// surface is standalone-safe (no store/cache dependency for validate).
type Handler struct {
	admin  *service.AdminService
	stats  StatsReader
	audit  AuditReader
	logger *slog.Logger
}

// Option configures a Handler dependency.
type Option func(*Handler)

// WithAdminService sets the policy validate/what-if service.
func WithAdminService(s *service.AdminService) Option {
	return func(h *Handler) { h.admin = s }
}

// WithStatsReader sets the stats snapshot source for GET /admin/stats.
func WithStatsReader(s StatsReader) Option {
	return func(h *Handler) { h.stats = s }
}

// WithAuditReader sets the audit query source for GET /admin/audit/recent.
func WithAuditReader(r AuditReader) Option {
	return func(h *Handler) { h.audit = r }
}

// WithLogger sets the handler's logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// NewHandler builds a Handler from opts.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the admin endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /admin/validate", h.handleValidate)
	mux.HandleFunc("POST /admin/test", h.handleTest)
	mux.HandleFunc("GET /admin/stats", h.handleStats)
	mux.HandleFunc("GET /admin/audit/recent", h.handleAuditRecent)
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("admin: failed to encode response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
