package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/sentinelpdp/pdp/internal/domain/policy"
	"github.com/sentinelpdp/pdp/internal/pdperr"
	"github.com/sentinelpdp/pdp/internal/port/outbound"
)

// cacheEntry is the in-process loader cache's (version, parsed_policy_set)
// pair for one tenant.
type cacheEntry struct {
	version   int
	policySet any
}

// inflight coalesces concurrent loads for the same tenant into one store
// round trip: the first caller for a tenant does
// the work; everyone else who arrives before it finishes waits on the
// same result instead of issuing a duplicate query.
type inflight struct {
	done      chan struct{}
	version   int
	policySet any
	err       error
}

// PolicyLoader implements policy.Loader: an in-process cache guarded
// by a RWMutex, backed by a StoreFactory and a policy.Evaluator for
// parsing, with per-tenant single-flight coalescing of cache misses.
type PolicyLoader struct {
	storeFactory outbound.StoreFactory
	evaluator    policy.Evaluator

	mu    sync.RWMutex
	cache map[string]cacheEntry

	flightMu sync.Mutex
	flights  map[string]*inflight
}

// NewPolicyLoader builds a PolicyLoader over storeFactory and evaluator.
func NewPolicyLoader(storeFactory outbound.StoreFactory, evaluator policy.Evaluator) *PolicyLoader {
	return &PolicyLoader{
		storeFactory: storeFactory,
		evaluator:    evaluator,
		cache:        make(map[string]cacheEntry),
		flights:      make(map[string]*inflight),
	}
}

var _ policy.Loader = (*PolicyLoader)(nil)

// Load returns tenant's active, parsed policy set. It consults the
// in-process cache first; on a miss it coalesces concurrent callers for
// the same tenant, queries the store exactly once among them, then
// inserts the result under a write lock. The in-process entry is never
// time-expired; it lives until an invalidation message evicts it or the
// process restarts.
func (l *PolicyLoader) Load(ctx context.Context, tenant string) (int, any, error) {
	if entry, ok := l.lookup(tenant); ok {
		return entry.version, entry.policySet, nil
	}

	version, policySet, err := l.loadCoalesced(ctx, tenant)
	if err != nil {
		return 0, nil, err
	}

	l.mu.Lock()
	l.cache[tenant] = cacheEntry{version: version, policySet: policySet}
	l.mu.Unlock()

	return version, policySet, nil
}

func (l *PolicyLoader) lookup(tenant string) (cacheEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.cache[tenant]
	return entry, ok
}

// loadCoalesced ensures at most one concurrent store round trip per
// tenant. Two requests racing to load an unchanged tenant produce the
// same (version, set), so the simplest correct behavior -- sharing one
// in-flight result among all waiters -- is always safe.
func (l *PolicyLoader) loadCoalesced(ctx context.Context, tenant string) (int, any, error) {
	l.flightMu.Lock()
	if f, ok := l.flights[tenant]; ok {
		l.flightMu.Unlock()
		<-f.done
		return f.version, f.policySet, f.err
	}

	f := &inflight{done: make(chan struct{})}
	l.flights[tenant] = f
	l.flightMu.Unlock()

	f.version, f.policySet, f.err = l.loadFromStore(ctx, tenant)
	close(f.done)

	l.flightMu.Lock()
	delete(l.flights, tenant)
	l.flightMu.Unlock()

	return f.version, f.policySet, f.err
}

// loadFromStore does the real work on a cache miss: find the active policy
// set's version, load every policy text in it, and parse the whole set
// atomically. Any failure (no active set, a parse error, an assembly
// error) fails the load as a whole; a partial set is never returned.
func (l *PolicyLoader) loadFromStore(ctx context.Context, tenant string) (int, any, error) {
	store, err := l.storeFactory.Acquire(ctx)
	if err != nil {
		return 0, nil, pdperr.New(pdperr.KindPolicyLoadFailed, pdperr.ErrPolicyLoadFailed, err.Error())
	}
	defer func() { _ = store.Close(ctx) }()

	if err := store.SetTenantScope(ctx, tenant); err != nil {
		return 0, nil, pdperr.New(pdperr.KindTenantScopeFailed, pdperr.ErrTenantScopeFailed, err.Error())
	}

	version, ok, err := store.LoadActivePolicyVersion(ctx, tenant)
	if err != nil {
		return 0, nil, pdperr.New(pdperr.KindPolicyLoadFailed, pdperr.ErrPolicyLoadFailed, err.Error())
	}
	if !ok {
		return 0, nil, pdperr.New(pdperr.KindPolicyLoadFailed, pdperr.ErrPolicyLoadFailed, "no_active_policy_set")
	}

	policies, err := store.LoadPolicies(ctx, tenant, version)
	if err != nil {
		return 0, nil, pdperr.New(pdperr.KindPolicyLoadFailed, pdperr.ErrPolicyLoadFailed, err.Error())
	}

	ids := make([]string, len(policies))
	texts := make([]string, len(policies))
	for i, pol := range policies {
		ids[i] = fmt.Sprintf("p%d", i)
		texts[i] = pol.Text
	}

	policySet, parseErrs, err := l.evaluator.Parse(ids, texts)
	if err != nil {
		return 0, nil, pdperr.New(pdperr.KindPolicyParseFailed, pdperr.ErrPolicyParseFailed, fmt.Sprintf("%v", parseErrs))
	}

	return version, policySet, nil
}

// Invalidate evicts tenant's cached entry, forcing the next Load to hit
// the store. Called by the invalidation listener on messages from
// the pdp:invalidate channel.
func (l *PolicyLoader) Invalidate(tenant string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cache, tenant)
}
