package http

import "net/http"

// ReadyHandler answers GET /ready with a bare 200 "ok" liveness probe. It never inspects collaborators -- readiness here means
// "the process is accepting connections", not "every dependency is up";
// individual request failures (store, cache) are surfaced per-request
// instead of flipping this endpoint.
func ReadyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}
