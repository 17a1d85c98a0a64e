package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/diysmart/productinfo/internal/domain"
)

func newTestGate(store domain.QuotaStore, now time.Time) *QuotaGate {
	g := NewQuotaGate(store, nil, nil, QuotaGateConfig{})
	g.now = func() time.Time { return now }
	return g
}

func TestNewQuotaGate_Limits(t *testing.T) {
	g := NewQuotaGate(NewMockQuotaStore(), nil, nil, QuotaGateConfig{ProLimit: 30})

	tests := []struct {
		tier domain.Tier
		want int
	}{
		{domain.TierFree, 5},
		{domain.TierPro, 30},
		{domain.TierPremium, 50},
		{domain.TierAdmin, domain.Unlimited},
		{domain.Tier("enterprise"), 5},
	}

	for _, tt := range tests {
		if got := g.Limit(tt.tier); got != tt.want {
			t.Errorf("Limit(%q) = %d, want %d", tt.tier, got, tt.want)
		}
	}
}

func TestQuotaGate_CheckAndConsume(t *testing.T) {
	store := NewMockQuotaStore()
	now := time.Date(2025, 6, 1, 15, 30, 0, 0, time.UTC)
	g := newTestGate(store, now)
	id := domain.Identity{ID: "user-1", Tier: domain.TierFree}

	for i := 1; i <= 5; i++ {
		d, err := g.CheckAndConsume(context.Background(), id, 1)
		if err != nil {
			t.Fatalf("call %d: unexpected error %v", i, err)
		}
		if !d.Admitted {
			t.Fatalf("call %d: not admitted", i)
		}
		if d.Remaining != 5-i {
			t.Errorf("call %d: Remaining = %d, want %d", i, d.Remaining, 5-i)
		}
	}

	d, err := g.CheckAndConsume(context.Background(), id, 1)
	var qe *domain.QuotaExceededError
	if !errors.As(err, &qe) {
		t.Fatalf("sixth call error = %v, want *domain.QuotaExceededError", err)
	}
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Error("QuotaExceededError should match ErrQuotaExceeded")
	}
	if qe.Limit != 5 {
		t.Errorf("Limit = %d, want 5", qe.Limit)
	}
	wantReset := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	if !qe.ResetsAt.Equal(wantReset) {
		t.Errorf("ResetsAt = %v, want %v", qe.ResetsAt, wantReset)
	}
	if d.Admitted || d.Remaining != 0 {
		t.Errorf("decision = %+v, want denied with nothing remaining", d)
	}
	if got := store.counter("user-1").Count; got != 5 {
		t.Errorf("stored count = %d, want 5 after a denial", got)
	}
}

func TestQuotaGate_IdentitiesAreIndependent(t *testing.T) {
	store := NewMockQuotaStore()
	store.counters["busy"] = domain.QuotaCounter{IdentityID: "busy", Day: "2025-06-01", Count: 5}
	g := newTestGate(store, time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))

	if _, err := g.CheckAndConsume(context.Background(), domain.Identity{ID: "busy", Tier: domain.TierFree}, 1); !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Errorf("busy identity error = %v, want ErrQuotaExceeded", err)
	}
	if _, err := g.CheckAndConsume(context.Background(), domain.Identity{ID: "idle", Tier: domain.TierFree}, 1); err != nil {
		t.Errorf("idle identity error = %v, want admitted", err)
	}
}

func TestQuotaGate_ResetsOnNewUTCDay(t *testing.T) {
	store := NewMockQuotaStore()
	store.counters["user-1"] = domain.QuotaCounter{IdentityID: "user-1", Day: "2025-06-01", Count: 5}

	// 20:00 in UTC-7 is already 03:00 on June 2nd in UTC
	pdt := time.FixedZone("PDT", -7*60*60)
	g := newTestGate(store, time.Date(2025, 6, 1, 20, 0, 0, 0, pdt))

	d, err := g.CheckAndConsume(context.Background(), domain.Identity{ID: "user-1", Tier: domain.TierFree}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Remaining != 4 {
		t.Errorf("Remaining = %d, want 4", d.Remaining)
	}
	got := store.counter("user-1")
	if got.Day != "2025-06-02" || got.Count != 1 {
		t.Errorf("stored counter = %+v, want day 2025-06-02 count 1", got)
	}
	wantReset := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)
	if !d.ResetsAt.Equal(wantReset) {
		t.Errorf("ResetsAt = %v, want %v", d.ResetsAt, wantReset)
	}
}

func TestQuotaGate_SameLocalDayStillCounts(t *testing.T) {
	store := NewMockQuotaStore()
	store.counters["user-1"] = domain.QuotaCounter{IdentityID: "user-1", Day: "2025-06-02", Count: 5}

	// 23:00 in UTC+2 on June 2nd is 21:00 UTC, still the same UTC day
	cest := time.FixedZone("CEST", 2*60*60)
	g := newTestGate(store, time.Date(2025, 6, 2, 23, 0, 0, 0, cest))

	if _, err := g.CheckAndConsume(context.Background(), domain.Identity{ID: "user-1", Tier: domain.TierFree}, 1); !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Errorf("error = %v, want ErrQuotaExceeded", err)
	}
}

func TestQuotaGate_AdminBypassesStore(t *testing.T) {
	store := NewMockQuotaStore()
	store.getError = errors.New("should not be called")
	g := newTestGate(store, time.Now())

	for i := 0; i < 100; i++ {
		d, err := g.CheckAndConsume(context.Background(), domain.Identity{ID: "root", Tier: domain.TierAdmin}, 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !d.Admitted || d.Remaining != domain.Unlimited {
			t.Fatalf("decision = %+v, want unlimited admission", d)
		}
	}
	if store.getCalls != 0 || store.setCalls != 0 {
		t.Errorf("store touched %d/%d times for admin", store.getCalls, store.setCalls)
	}
}

func TestQuotaGate_Cost(t *testing.T) {
	store := NewMockQuotaStore()
	g := newTestGate(store, time.Now())
	id := domain.Identity{ID: "user-1", Tier: domain.TierFree}

	d, err := g.CheckAndConsume(context.Background(), id, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Remaining != 2 {
		t.Errorf("Remaining = %d, want 2", d.Remaining)
	}

	if _, err := g.CheckAndConsume(context.Background(), id, 3); !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Errorf("error = %v, want ErrQuotaExceeded for a cost above what remains", err)
	}
	if got := store.counter("user-1").Count; got != 3 {
		t.Errorf("stored count = %d, want 3", got)
	}
}

func TestQuotaGate_BadInput(t *testing.T) {
	g := newTestGate(NewMockQuotaStore(), time.Now())

	tests := []struct {
		name string
		id   domain.Identity
		cost int
	}{
		{"empty identity", domain.Identity{Tier: domain.TierFree}, 1},
		{"zero cost", domain.Identity{ID: "u", Tier: domain.TierFree}, 0},
		{"negative cost", domain.Identity{ID: "u", Tier: domain.TierFree}, -2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := g.CheckAndConsume(context.Background(), tt.id, tt.cost); !errors.Is(err, domain.ErrBadInput) {
				t.Errorf("error = %v, want ErrBadInput", err)
			}
		})
	}
}

func TestQuotaGate_StoreErrors(t *testing.T) {
	id := domain.Identity{ID: "user-1", Tier: domain.TierPro}

	getFails := NewMockQuotaStore()
	getFails.getError = errors.New("connection reset")
	if _, err := newTestGate(getFails, time.Now()).CheckAndConsume(context.Background(), id, 1); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("read failure error = %v, want ErrStoreUnavailable", err)
	}

	setFails := NewMockQuotaStore()
	setFails.setError = errors.New("read only")
	if _, err := newTestGate(setFails, time.Now()).CheckAndConsume(context.Background(), id, 1); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("write failure error = %v, want ErrStoreUnavailable", err)
	}
}

func TestQuotaGate_ConcurrentSameIdentity(t *testing.T) {
	store := NewMockQuotaStore()
	g := newTestGate(store, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	id := domain.Identity{ID: "burst", Tier: domain.TierFree}

	var admitted, denied atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.CheckAndConsume(context.Background(), id, 1)
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, domain.ErrQuotaExceeded):
				denied.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if admitted.Load() != 5 {
		t.Errorf("admitted = %d, want exactly 5", admitted.Load())
	}
	if denied.Load() != 45 {
		t.Errorf("denied = %d, want 45", denied.Load())
	}
	if got := store.counter("burst").Count; got != 5 {
		t.Errorf("stored count = %d, want 5", got)
	}
	if n := len(g.locks.locks); n != 0 {
		t.Errorf("keyed mutex kept %d idle keys", n)
	}
}

func TestQuotaGate_UsesAtomicConsume(t *testing.T) {
	store := NewMockQuotaConsumer()
	store.counters["user-1"] = domain.QuotaCounter{IdentityID: "user-1", Day: "2025-05-31", Count: 5}
	g := newTestGate(store, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	id := domain.Identity{ID: "user-1", Tier: domain.TierFree}

	for i := 0; i < 5; i++ {
		d, err := g.CheckAndConsume(context.Background(), id, 1)
		if err != nil {
			t.Fatalf("call %d: CheckAndConsume() error = %v", i+1, err)
		}
		if d.Remaining != 4-i {
			t.Errorf("call %d: Remaining = %d, want %d", i+1, d.Remaining, 4-i)
		}
	}
	if _, err := g.CheckAndConsume(context.Background(), id, 1); !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Errorf("sixth call error = %v, want ErrQuotaExceeded", err)
	}

	if store.consumeCalls != 6 {
		t.Errorf("Consume called %d times, want 6", store.consumeCalls)
	}
	if store.getCalls != 0 || store.setCalls != 0 {
		t.Errorf("Get/Set called %d/%d times, want the atomic path only", store.getCalls, store.setCalls)
	}
	if c := store.counter("user-1"); c.Day != "2025-06-01" || c.Count != 5 {
		t.Errorf("counter = %+v, want 5 on 2025-06-01", c)
	}

	store.consumeErr = errors.New("connection reset")
	other := domain.Identity{ID: "user-2", Tier: domain.TierFree}
	if _, err := g.CheckAndConsume(context.Background(), other, 1); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("error = %v, want ErrStoreUnavailable", err)
	}
}

func TestQuotaGate_Usage(t *testing.T) {
	store := NewMockQuotaStore()
	store.counters["user-1"] = domain.QuotaCounter{IdentityID: "user-1", Day: "2025-06-01", Count: 3}
	g := newTestGate(store, time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))

	d, err := g.Usage(context.Background(), domain.Identity{ID: "user-1", Tier: domain.TierFree})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Remaining != 2 || !d.Admitted {
		t.Errorf("decision = %+v, want 2 remaining", d)
	}
	if store.setCalls != 0 {
		t.Error("Usage must not consume quota")
	}

	admin, err := g.Usage(context.Background(), domain.Identity{ID: "root", Tier: domain.TierAdmin})
	if err != nil || admin.Remaining != domain.Unlimited {
		t.Errorf("admin usage = %+v, %v", admin, err)
	}

	nextDay := newTestGate(store, time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC))
	d, _ = nextDay.Usage(context.Background(), domain.Identity{ID: "user-1", Tier: domain.TierFree})
	if d.Remaining != 5 {
		t.Errorf("Remaining on a new day = %d, want 5", d.Remaining)
	}
}
