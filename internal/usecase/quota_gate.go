package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/diysmart/productinfo/internal/domain"
	"github.com/diysmart/productinfo/internal/infrastructure/logger"
	"github.com/diysmart/productinfo/internal/infrastructure/metrics"
)

// QuotaGateConfig holds the daily limits per tier. Zero values use the defaults.
type QuotaGateConfig struct {
	FreeLimit    int
	ProLimit     int
	PremiumLimit int
}

// QuotaGate admits or denies requests against per-identity daily counters.
// Check-and-consume for one identity is serialized; different identities
// proceed in parallel.
type QuotaGate struct {
	store  domain.QuotaStore
	limits map[domain.Tier]int
	locks  *keyedMutex

	logger  logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewQuotaGate creates a gate over store
func NewQuotaGate(store domain.QuotaStore, log logger.Logger, m *metrics.Metrics, config QuotaGateConfig) *QuotaGate {
	if config.FreeLimit <= 0 {
		config.FreeLimit = 5
	}
	if config.ProLimit <= 0 {
		config.ProLimit = 20
	}
	if config.PremiumLimit <= 0 {
		config.PremiumLimit = 50
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &QuotaGate{
		store: store,
		limits: map[domain.Tier]int{
			domain.TierFree:    config.FreeLimit,
			domain.TierPro:     config.ProLimit,
			domain.TierPremium: config.PremiumLimit,
			domain.TierAdmin:   domain.Unlimited,
		},
		locks:   newKeyedMutex(),
		logger:  log.With(logger.String("component", "quota")),
		metrics: m,
		now:     time.Now,
	}
}

// Limit returns the daily allowance of tier, or domain.Unlimited
func (g *QuotaGate) Limit(tier domain.Tier) int {
	if l, ok := g.limits[tier]; ok {
		return l
	}
	return g.limits[domain.TierFree]
}

// CheckAndConsume admits the call and charges cost units, or denies it with
// a *domain.QuotaExceededError. A counter stored for an earlier UTC day is
// treated as zero.
func (g *QuotaGate) CheckAndConsume(ctx context.Context, id domain.Identity, cost int) (domain.QuotaDecision, error) {
	if id.ID == "" {
		return domain.QuotaDecision{}, fmt.Errorf("%w: identity is required", domain.ErrBadInput)
	}
	if cost < 1 {
		return domain.QuotaDecision{}, fmt.Errorf("%w: cost must be positive, got %d", domain.ErrBadInput, cost)
	}

	now := g.now()
	limit := g.Limit(id.Tier)
	decision := domain.QuotaDecision{Limit: limit, ResetsAt: domain.NextUTCMidnight(now)}

	if limit == domain.Unlimited {
		decision.Admitted = true
		decision.Remaining = domain.Unlimited
		g.metrics.IncQuotaDecision(string(id.Tier), true)
		return decision, nil
	}

	unlock := g.locks.Lock(id.ID)
	defer unlock()

	counter, admitted, err := g.consume(ctx, id.ID, domain.UTCDay(now), cost, limit)
	if err != nil {
		return domain.QuotaDecision{}, err
	}
	if !admitted {
		decision.Remaining = 0
		g.metrics.IncQuotaDecision(string(id.Tier), false)
		g.logger.Info("quota denied",
			logger.String("identity", id.ID),
			logger.String("tier", string(id.Tier)),
			logger.Int("count", counter.Count),
			logger.Int("limit", limit))
		return decision, &domain.QuotaExceededError{Limit: limit, ResetsAt: decision.ResetsAt}
	}

	decision.Admitted = true
	decision.Remaining = limit - counter.Count
	g.metrics.IncQuotaDecision(string(id.Tier), true)
	return decision, nil
}

// consume charges the counter, atomically when the store supports it. The
// caller holds the identity's lock.
func (g *QuotaGate) consume(ctx context.Context, identityID, today string, cost, limit int) (domain.QuotaCounter, bool, error) {
	if consumer, ok := g.store.(domain.QuotaConsumer); ok {
		counter, admitted, err := consumer.Consume(ctx, identityID, today, cost, limit)
		if err != nil {
			return domain.QuotaCounter{}, false, fmt.Errorf("%w: consume quota: %v", domain.ErrStoreUnavailable, err)
		}
		return counter, admitted, nil
	}

	counter, err := g.store.Get(ctx, identityID)
	if err != nil {
		return domain.QuotaCounter{}, false, fmt.Errorf("%w: read quota: %v", domain.ErrStoreUnavailable, err)
	}
	if counter.Day != today {
		counter = domain.QuotaCounter{Day: today}
	}
	counter.IdentityID = identityID
	if counter.Count+cost > limit {
		return counter, false, nil
	}

	counter.Count += cost
	if err := g.store.Set(ctx, counter); err != nil {
		return domain.QuotaCounter{}, false, fmt.Errorf("%w: write quota: %v", domain.ErrStoreUnavailable, err)
	}
	return counter, true, nil
}

// Usage reports the identity's standing without consuming anything
func (g *QuotaGate) Usage(ctx context.Context, id domain.Identity) (domain.QuotaDecision, error) {
	now := g.now()
	limit := g.Limit(id.Tier)
	decision := domain.QuotaDecision{Limit: limit, ResetsAt: domain.NextUTCMidnight(now), Admitted: true}
	if limit == domain.Unlimited {
		decision.Remaining = domain.Unlimited
		return decision, nil
	}

	counter, err := g.store.Get(ctx, id.ID)
	if err != nil {
		return domain.QuotaDecision{}, fmt.Errorf("%w: read quota: %v", domain.ErrStoreUnavailable, err)
	}
	used := 0
	if counter.Day == domain.UTCDay(now) {
		used = counter.Count
	}
	decision.Remaining = max(limit-used, 0)
	decision.Admitted = decision.Remaining > 0
	return decision, nil
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is held and returns its unlock function
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
