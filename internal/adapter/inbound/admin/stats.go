package admin

import "net/http"

// handleStats implements GET /admin/stats: a cheap snapshot of the
// decision counters, readable without scraping /metrics.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		h.respondError(w, http.StatusServiceUnavailable, "stats service not configured")
		return
	}
	h.respondJSON(w, http.StatusOK, h.stats.GetStats())
}
