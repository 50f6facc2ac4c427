package service

import (
	"context"
	"log/slog"

	"github.com/sentinelpdp/pdp/internal/domain/policy"
	"github.com/sentinelpdp/pdp/internal/port/outbound"
)

// InvalidationChannel is the pub/sub topic policy updates are announced
// on.
const InvalidationChannel = "pdp:invalidate"

// InvalidationListener subscribes to the invalidation channel on startup
// and evicts the matching tenant's entry from the policy loader's
// in-process cache on each message.
type InvalidationListener struct {
	cache  outbound.CacheClient
	loader policy.Loader
	logger *slog.Logger
}

// NewInvalidationListener builds a listener over cache and loader.
func NewInvalidationListener(cache outbound.CacheClient, loader policy.Loader, logger *slog.Logger) *InvalidationListener {
	return &InvalidationListener{cache: cache, loader: loader, logger: logger}
}

// Run subscribes to InvalidationChannel and blocks, evicting loader
// entries as messages arrive, until ctx is cancelled or the subscribe
// call itself fails. On subscribe failure, it logs and returns without
// retrying: the process keeps serving with a cold loader cache that will
// never be invalidated until restart. The degraded state is left visible
// for operator tooling to alert on instead of being masked by silent
// background retries that could hide a persistent Redis outage.
func (l *InvalidationListener) Run(ctx context.Context) {
	err := l.cache.Subscribe(ctx, InvalidationChannel, l.handle)
	if err != nil && ctx.Err() == nil {
		l.logger.Error("invalidation listener: subscribe failed, running with a cold policy cache until restart", "error", err)
	}
}

func (l *InvalidationListener) handle(msg outbound.InvalidationMessage) {
	if msg.TenantID == "" {
		l.logger.Warn("invalidation listener: message missing tenant_id, ignoring")
		return
	}
	l.loader.Invalidate(msg.TenantID)
	l.logger.Debug("invalidation listener: evicted policy cache entry", "tenant_id", msg.TenantID)
}
