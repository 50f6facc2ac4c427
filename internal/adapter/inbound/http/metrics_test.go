package http

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestMetrics_ImplementsPipelineMetrics(t *testing.T) {
	t.Parallel()
	m := NewMetrics(prometheus.NewRegistry(), "test-build")

	m.IncRequests()
	m.IncCacheHit()
	m.IncCacheMiss()
	m.IncRateLimited()
	m.ObserveLatencyMS(12.5)

	require.Equal(t, float64(1), counterValue(t, m.RequestsTotal))
	require.Equal(t, float64(1), counterValue(t, m.CacheHitsTotal))
	require.Equal(t, float64(1), counterValue(t, m.CacheMissesTotal))
	require.Equal(t, float64(1), counterValue(t, m.RatelimitRejectedTotal))
}

func TestMetrics_BuildInfoLabeled(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	NewMetrics(reg, "v1.2.3")

	families, err := reg.Gather()
	require.NoError(t, err)

	found := false
	for _, f := range families {
		if f.GetName() != "pdp_build_info" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "version" && label.GetValue() == "v1.2.3" {
					found = true
				}
			}
		}
	}
	require.True(t, found, "expected pdp_build_info{version=\"v1.2.3\"} to be registered")
}
