package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeAdminRoutes struct{ registered bool }

func (f *fakeAdminRoutes) Routes(mux *http.ServeMux) {
	f.registered = true
	mux.HandleFunc("GET /admin/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestNewRouter_WiresCoreRoutes(t *testing.T) {
	t.Parallel()
	pipeline := newPipelineForTest(t)
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	admin := &fakeAdminRoutes{}

	router := NewRouter(pipeline, metricsHandler, admin, discardLogger())
	require.True(t, admin.registered)

	for _, path := range []string{"/ready", "/metrics", "/admin/ping"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equalf(t, http.StatusOK, rec.Code, "path %s", path)
	}
}

func TestNewRouter_NilAdminStillServesCore(t *testing.T) {
	t.Parallel()
	pipeline := newPipelineForTest(t)
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	router := NewRouter(pipeline, metricsHandler, nil, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
