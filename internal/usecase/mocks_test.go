package usecase

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/diysmart/productinfo/internal/domain"
)

// MockLLMClient is a mock implementation of domain.LLMClient
type MockLLMClient struct {
	mu       sync.Mutex
	response string
	err      error
	// block makes Complete wait for the context to end
	block bool

	calls      int
	lastPrompt string
	lastImage  []byte
}

func NewMockLLMClient(response string, err error) *MockLLMClient {
	return &MockLLMClient{response: response, err: err}
}

func (m *MockLLMClient) Complete(ctx context.Context, prompt string, image []byte) (string, error) {
	m.mu.Lock()
	m.calls++
	m.lastPrompt = prompt
	m.lastImage = image
	block := m.block
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *MockLLMClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockPageFetcher is a mock implementation of domain.PageFetcher
type MockPageFetcher struct {
	mu    sync.Mutex
	page  *domain.Page
	err   error
	block bool

	calls       int
	lastURL     string
	lastHeaders http.Header
	lastTimeout time.Duration
}

func NewMockPageFetcher(status int, body string) *MockPageFetcher {
	return &MockPageFetcher{page: &domain.Page{StatusCode: status, Body: []byte(body)}}
}

func (m *MockPageFetcher) Fetch(ctx context.Context, url string, headers http.Header, timeout time.Duration) (*domain.Page, error) {
	m.mu.Lock()
	m.calls++
	m.lastURL = url
	m.lastHeaders = headers
	m.lastTimeout = timeout
	block := m.block
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, &fetchTimeout{ctx.Err()}
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.page, nil
}

func (m *MockPageFetcher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fetchTimeout struct{ cause error }

func (e *fetchTimeout) Error() string { return domain.ErrFetchTimeout.Error() + ": " + e.cause.Error() }
func (e *fetchTimeout) Unwrap() []error {
	return []error{domain.ErrFetchTimeout, e.cause}
}

// MockQuotaStore is a mock implementation of domain.QuotaStore
type MockQuotaStore struct {
	mu       sync.Mutex
	counters map[string]domain.QuotaCounter
	getError error
	setError error
	getCalls int
	setCalls int
}

func NewMockQuotaStore() *MockQuotaStore {
	return &MockQuotaStore{counters: make(map[string]domain.QuotaCounter)}
}

func (m *MockQuotaStore) Get(ctx context.Context, identityID string) (domain.QuotaCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.getError != nil {
		return domain.QuotaCounter{}, m.getError
	}
	if c, ok := m.counters[identityID]; ok {
		return c, nil
	}
	return domain.QuotaCounter{IdentityID: identityID}, nil
}

func (m *MockQuotaStore) Set(ctx context.Context, counter domain.QuotaCounter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	if m.setError != nil {
		return m.setError
	}
	m.counters[counter.IdentityID] = counter
	return nil
}

func (m *MockQuotaStore) counter(id string) domain.QuotaCounter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[id]
}

// MockQuotaConsumer adds an atomic Consume to MockQuotaStore
type MockQuotaConsumer struct {
	*MockQuotaStore
	consumeErr   error
	consumeCalls int
}

func NewMockQuotaConsumer() *MockQuotaConsumer {
	return &MockQuotaConsumer{MockQuotaStore: NewMockQuotaStore()}
}

func (m *MockQuotaConsumer) Consume(ctx context.Context, identityID, day string, cost, limit int) (domain.QuotaCounter, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumeCalls++
	if m.consumeErr != nil {
		return domain.QuotaCounter{}, false, m.consumeErr
	}
	c := m.counters[identityID]
	if c.Day != day {
		c = domain.QuotaCounter{IdentityID: identityID, Day: day}
	}
	if c.Count+cost > limit {
		return c, false, nil
	}
	c.Count += cost
	m.counters[identityID] = c
	return c, true, nil
}

// MockProductRepository is a mock implementation of domain.ProductRepository
type MockProductRepository struct {
	mu        sync.Mutex
	records   map[string]*domain.ProductRecord
	upsertErr error
}

func NewMockProductRepository() *MockProductRepository {
	return &MockProductRepository{records: make(map[string]*domain.ProductRecord)}
}

func (m *MockProductRepository) Upsert(ctx context.Context, record *domain.ProductRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return "", m.upsertErr
	}
	m.records[record.ProductURL] = record
	return "id-" + record.ProductURL, nil
}

func (m *MockProductRepository) GetByURL(ctx context.Context, productURL string) (*domain.ProductRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[productURL]; ok {
		return r, nil
	}
	return nil, domain.ErrProductNotFound
}

// stepClock returns the same instant for a strategy's start and moves
// forward by the next step when the strategy finishes
type stepClock struct {
	mu    sync.Mutex
	now   time.Time
	steps []time.Duration
	calls int
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls%2 == 1 && len(c.steps) > 0 {
		c.now = c.now.Add(c.steps[0])
		c.steps = c.steps[1:]
	}
	c.calls++
	return c.now
}

func ptr[T any](v T) *T { return &v }
