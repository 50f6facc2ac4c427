package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sentinelpdp/pdp/internal/service"
)

// DecisionResponse is the response body every decision endpoint returns
//: {"decision": "ALLOW"|"DENY", "reason": string}.
type DecisionResponse struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

// CheckHandler adapts HTTP requests on GET/POST /check, /check/, and
// /check/*rest to service.Pipeline.Decide. It reads
// intake headers and derives original_path from the *rest wildcard.
type CheckHandler struct {
	pipeline *service.Pipeline
}

// NewCheckHandler wraps pipeline as an http.Handler.
func NewCheckHandler(pipeline *service.Pipeline) *CheckHandler {
	return &CheckHandler{pipeline: pipeline}
}

func (h *CheckHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	intake := service.Intake{
		TenantID:     r.Header.Get("x-tenant-id"),
		Principal:    r.Header.Get("x-principal"),
		Resource:     r.Header.Get("x-resource"),
		Action:       r.Header.Get("x-action"),
		AllowFlag:    r.Header.Get("x-allow"),
		ClaimsSig:    r.Header.Get("x-claims-sig"),
		OriginalPath: originalPath(r),
	}

	result := h.pipeline.Decide(r.Context(), intake)
	writeDecision(w, result.Status, result.Decision, result.Reason)
}

// originalPath derives the context's path attribute from the *rest wildcard
// registered on the /check/{rest...} pattern, falling back to the full
// request path for the bare /check and /check/ routes.
func originalPath(r *http.Request) string {
	if rest := r.PathValue("rest"); rest != "" {
		return "/" + strings.TrimPrefix(rest, "/")
	}
	return r.URL.Path
}

// writeDecision writes a DecisionResponse with the given status.
func writeDecision(w http.ResponseWriter, status int, decision, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(DecisionResponse{Decision: decision, Reason: reason})
}
