// Package quotastore persists per-identity daily quota counters.
package quotastore

import (
	"context"
	"sync"
	"time"

	"github.com/diysmart/productinfo/internal/domain"
)

const defaultCleanupInterval = 10 * time.Minute

// MemoryStore is a thread-safe in-process QuotaStore. Counters from earlier
// UTC days are swept periodically.
type MemoryStore struct {
	data  map[string]domain.QuotaCounter
	mutex sync.RWMutex
	now   func() time.Time
	stop  chan struct{}
	once  sync.Once
}

// NewMemoryStore creates a store and starts its cleanup loop
func NewMemoryStore() *MemoryStore {
	return newMemoryStore(defaultCleanupInterval)
}

func newMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		data: make(map[string]domain.QuotaCounter),
		now:  time.Now,
		stop: make(chan struct{}),
	}
	go s.cleanupLoop(cleanupInterval)
	return s
}

// Get returns the stored counter, or a zero counter for unknown identities
func (s *MemoryStore) Get(_ context.Context, identityID string) (domain.QuotaCounter, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	counter, ok := s.data[identityID]
	if !ok {
		return domain.QuotaCounter{IdentityID: identityID}, nil
	}
	return counter, nil
}

// Set replaces the identity's counter
func (s *MemoryStore) Set(_ context.Context, counter domain.QuotaCounter) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.data[counter.IdentityID] = counter
	return nil
}

// Consume checks and charges the identity's counter under the store lock
func (s *MemoryStore) Consume(_ context.Context, identityID, day string, cost, limit int) (domain.QuotaCounter, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	counter := s.data[identityID]
	if counter.Day != day {
		counter = domain.QuotaCounter{Day: day}
	}
	counter.IdentityID = identityID
	if counter.Count+cost > limit {
		return counter, false, nil
	}
	counter.Count += cost
	s.data[identityID] = counter
	return counter, true, nil
}

// Size returns the number of stored counters
func (s *MemoryStore) Size() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.data)
}

// Close stops the cleanup loop
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.removeStale()
		}
	}
}

// removeStale drops counters that no longer belong to the current UTC day
func (s *MemoryStore) removeStale() {
	today := domain.UTCDay(s.now())

	s.mutex.Lock()
	defer s.mutex.Unlock()
	for id, counter := range s.data {
		if counter.Day != today {
			delete(s.data, id)
		}
	}
}
