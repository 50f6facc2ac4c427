package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/sentinelpdp/pdp/internal/adapter/inbound/admin"
	"github.com/sentinelpdp/pdp/internal/adapter/inbound/http"
	"github.com/sentinelpdp/pdp/internal/adapter/outbound/cedarengine"
	"github.com/sentinelpdp/pdp/internal/adapter/outbound/memory"
	"github.com/sentinelpdp/pdp/internal/adapter/outbound/postgres"
	"github.com/sentinelpdp/pdp/internal/adapter/outbound/rediscache"
	"github.com/sentinelpdp/pdp/internal/config"
	"github.com/sentinelpdp/pdp/internal/domain/audit"
	"github.com/sentinelpdp/pdp/internal/domain/ratelimit"
	"github.com/sentinelpdp/pdp/internal/port/outbound"
	"github.com/sentinelpdp/pdp/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the decision point HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, logger)
}

// run wires every component together and blocks until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer func() { _ = db.Close() }()
	storeFactory := postgres.NewFactory(db)

	evaluator := cedarengine.New()
	loader := service.NewPolicyLoader(storeFactory, evaluator)

	var (
		cache       outbound.CacheClient
		rateLimiter ratelimit.RateLimiter
		auditStore  audit.AuditStore
	)

	if cfg.HasRedis() {
		redisClient, err := rediscache.New(cfg.RedisURL, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer func() { _ = redisClient.Close() }()
		cache = redisClient
		rateLimiter = rediscache.NewCacheRateLimiter(redisClient, logger)

		listener := service.NewInvalidationListener(redisClient, loader, logger)
		go listener.Run(ctx)

		auditStore = postgres.NewAuditStore(storeFactory)
		logger.Info("redis configured: decision cache, shared rate limiting, and invalidation listener enabled")
	} else {
		cache = memory.NewNoopCacheClient()
		memLimiter := memory.NewRateLimiter()
		memLimiter.StartCleanup(ctx)
		rateLimiter = memLimiter
		auditStore = memory.NewAuditStore()
		logger.Warn("REDIS_URL not set: running standalone with an in-memory rate limiter, no decision cache, and no cross-process invalidation")
	}

	auditService := service.NewAuditService(auditStore, logger)
	auditService.Start(ctx)
	defer auditService.Stop()

	statsService := service.NewStatsService()
	reg := prometheus.NewRegistry()
	metrics := http.NewMetrics(reg, Version)

	pipeline := service.NewPipeline(
		cache,
		storeFactory,
		loader,
		evaluator,
		rateLimiter,
		statsRecordingAuditor{inner: auditService, stats: statsService},
		statsRecordingMetrics{inner: metrics, stats: statsService},
		cfg.ClaimsSecret,
		cfg.RateLimitRPSDefault,
		logger,
	)

	adminService := service.NewAdminService(storeFactory, loader, evaluator, logger)
	adminHandler := admin.NewHandler(
		admin.WithAdminService(adminService),
		admin.WithStatsReader(statsService),
		admin.WithAuditReader(auditQueryStoreOrNil(auditStore)),
		admin.WithLogger(logger),
	)

	router := http.NewRouter(pipeline, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), adminHandler, logger)

	server := &stdhttp.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("pdp listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// auditQueryStoreOrNil returns store as an admin.AuditReader when it
// implements audit.AuditQueryStore (both the memory fallback and the
// Postgres-backed AuditStore do), nil otherwise so the admin handler
// answers 503 rather than panicking.
func auditQueryStoreOrNil(store audit.AuditStore) admin.AuditReader {
	if r, ok := store.(admin.AuditReader); ok {
		return r
	}
	return nil
}

// statsRecordingAuditor fans a decision out to both the async audit writer
// and the in-memory stats counters, so GET /admin/stats reflects every
// decision without requiring a /metrics scrape.
type statsRecordingAuditor struct {
	inner service.AuditRecorder
	stats *service.StatsService
}

func (a statsRecordingAuditor) Record(record audit.AuditRecord) {
	a.inner.Record(record)
	switch record.Decision {
	case audit.DecisionAllow:
		a.stats.RecordAllow()
	case audit.DecisionDeny:
		a.stats.RecordDeny()
	}
}

// statsRecordingMetrics fans the pipeline's instrumentation out to both
// the Prometheus registry and the stats snapshot, so GET /admin/stats
// reports cache and rate-limit activity alongside allow/deny counts.
type statsRecordingMetrics struct {
	inner *http.Metrics
	stats *service.StatsService
}

func (m statsRecordingMetrics) IncRequests() { m.inner.IncRequests() }

func (m statsRecordingMetrics) IncCacheHit() {
	m.inner.IncCacheHit()
	m.stats.RecordCacheHit()
}

func (m statsRecordingMetrics) IncCacheMiss() {
	m.inner.IncCacheMiss()
	m.stats.RecordCacheMiss()
}

func (m statsRecordingMetrics) IncRateLimited() {
	m.inner.IncRateLimited()
	m.stats.RecordRateLimited()
}

func (m statsRecordingMetrics) ObserveLatencyMS(ms float64) { m.inner.ObserveLatencyMS(ms) }

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
