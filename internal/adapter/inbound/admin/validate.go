package admin

import (
	"encoding/json"
	"net/http"

	"github.com/sentinelpdp/pdp/internal/service"
)

// validateRequest is the POST /admin/validate body.
type validateRequest struct {
	Policies []string `json:"policies"`
}

// validateResponse is the POST /admin/validate response body.
type validateResponse struct {
	OK     bool     `json:"ok"`
	Errors []string `json:"errors"`
}

// handleValidate implements POST /admin/validate: syntactic
// validation of a list of inline policy texts, with no store or cache
// side effects.
func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	if h.admin == nil {
		h.respondError(w, http.StatusServiceUnavailable, "admin service not configured")
		return
	}

	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result := h.admin.Validate(req.Policies)
	errs := result.Errors
	if errs == nil {
		errs = []string{}
	}
	h.respondJSON(w, http.StatusOK, validateResponse{OK: result.OK, Errors: errs})
}

// testRequest is the POST /admin/test body.
type testRequest struct {
	PoliciesOverride []string       `json:"policies_override,omitempty"`
	TenantID         string         `json:"tenant_id,omitempty"`
	Principal        string         `json:"principal"`
	Resource         string         `json:"resource"`
	Action           string         `json:"action,omitempty"`
	Context          map[string]any `json:"context,omitempty"`
}

// handleTest implements POST /admin/test, the "what-if" operation: evaluates a
// principal/resource/action/context tuple against either an inline policy
// override or the tenant's active policy set, reusing the hot path's
// entity-build-and-evaluate steps.
func (h *Handler) handleTest(w http.ResponseWriter, r *http.Request) {
	if h.admin == nil {
		h.respondError(w, http.StatusServiceUnavailable, "admin service not configured")
		return
	}

	var req testRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result := h.admin.Test(r.Context(), service.TestRequest{
		TenantID:         req.TenantID,
		Principal:        req.Principal,
		Resource:         req.Resource,
		Action:           req.Action,
		Context:          req.Context,
		PoliciesOverride: req.PoliciesOverride,
	})

	h.respondJSON(w, result.Status, map[string]string{
		"decision": result.Decision,
		"reason":   result.Reason,
	})
}
