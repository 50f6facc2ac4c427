package http

import (
	"log/slog"
	"net/http"

	"github.com/sentinelpdp/pdp/internal/service"
)

// AdminRoutes is implemented by the admin package's Handler: registering
// the admin JSON API on a shared mux. Declared here (rather than imported
// directly) so this package's router does not need to import admin's
// collaborator-heavy construction; main wiring passes the already-built
// handler in.
type AdminRoutes interface {
	Routes(mux *http.ServeMux)
}

// NewRouter assembles the full external interface: GET /ready,
// GET /metrics, GET/POST /check and its wildcard sub-paths, and whatever
// admin registers on the shared mux. metricsHandler is typically
// promhttp.HandlerFor bound to the same registry Metrics was built with.
func NewRouter(pipeline *service.Pipeline, metricsHandler http.Handler, admin AdminRoutes, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /ready", ReadyHandler())
	mux.Handle("GET /metrics", metricsHandler)

	check := NewCheckHandler(pipeline)
	mux.Handle("GET /check", check)
	mux.Handle("POST /check", check)
	mux.Handle("GET /check/{rest...}", check)
	mux.Handle("POST /check/{rest...}", check)

	if admin != nil {
		admin.Routes(mux)
	}

	return LoggingMiddleware(logger)(mux)
}
