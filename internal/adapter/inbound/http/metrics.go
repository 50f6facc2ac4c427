// Package http provides the inbound HTTP transport adapter: the decision
// pipeline's /check handler, /ready and /metrics, and the request-logging
// middleware. The admin JSON API lives in the sibling admin package.
package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the decision pipeline's Prometheus instruments: requests_total,
// cache_hits_total, cache_misses_total, ratelimit_rejected_total, a request
// latency histogram, and a build-info gauge. It implements
// service.PipelineMetrics directly so the Pipeline can drive it without an
// adapter shim.
type Metrics struct {
	RequestsTotal          prometheus.Counter
	CacheHitsTotal         prometheus.Counter
	CacheMissesTotal       prometheus.Counter
	RatelimitRejectedTotal prometheus.Counter
	RequestLatencyMS       prometheus.Histogram
	BuildInfo              *prometheus.GaugeVec
}

// NewMetrics creates and registers every PDP metric against reg.
func NewMetrics(reg prometheus.Registerer, version string) *Metrics {
	m := &Metrics{
		RequestsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "pdp",
			Name:      "requests_total",
			Help:      "Total number of /check decision requests.",
		}),
		CacheHitsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "pdp",
			Name:      "cache_hits_total",
			Help:      "Decision-cache hits.",
		}),
		CacheMissesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "pdp",
			Name:      "cache_misses_total",
			Help:      "Decision-cache misses.",
		}),
		RatelimitRejectedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "pdp",
			Name:      "ratelimit_rejected_total",
			Help:      "Requests rejected by the per-tenant rate limiter.",
		}),
		RequestLatencyMS: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: "pdp",
			Name:      "request_latency_ms",
			Help:      "Decision pipeline latency in milliseconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		BuildInfo: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pdp",
			Name:      "build_info",
			Help:      "Always 1; labeled with the running build's version.",
		}, []string{"version"}),
	}
	m.BuildInfo.WithLabelValues(version).Set(1)
	return m
}

// IncRequests implements service.PipelineMetrics.
func (m *Metrics) IncRequests() { m.RequestsTotal.Inc() }

// IncCacheHit implements service.PipelineMetrics.
func (m *Metrics) IncCacheHit() { m.CacheHitsTotal.Inc() }

// IncCacheMiss implements service.PipelineMetrics.
func (m *Metrics) IncCacheMiss() { m.CacheMissesTotal.Inc() }

// IncRateLimited implements service.PipelineMetrics.
func (m *Metrics) IncRateLimited() { m.RatelimitRejectedTotal.Inc() }

// ObserveLatencyMS implements service.PipelineMetrics.
func (m *Metrics) ObserveLatencyMS(ms float64) { m.RequestLatencyMS.Observe(ms) }
