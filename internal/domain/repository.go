package domain

import (
	"context"
	"net/http"
	"time"
)

// LLMClient completes a prompt, optionally with an attached image.
// Transport failures wrap ErrLLMTransport, provider throttling wraps
// ErrLLMRateLimited and model-side failures wrap ErrLLMModel.
type LLMClient interface {
	Complete(ctx context.Context, prompt string, image []byte) (string, error)
}

// Page is a fetched document
type Page struct {
	StatusCode int
	Body       []byte
	FinalURL   string
	Truncated  bool
}

// PageFetcher retrieves a page. Non-2xx responses are returned as a Page with
// their status code; only transport failures and timeouts are errors.
type PageFetcher interface {
	Fetch(ctx context.Context, url string, headers http.Header, timeout time.Duration) (*Page, error)
}

// QuotaStore persists quota counters. Get returns a zero counter for unknown identities.
type QuotaStore interface {
	Get(ctx context.Context, identityID string) (QuotaCounter, error)
	Set(ctx context.Context, counter QuotaCounter) error
}

// QuotaConsumer is implemented by stores that check and charge a counter in
// one atomic step, which keeps processes sharing the store from losing
// increments. A counter stored for a day other than day counts as zero.
// When count+cost would exceed limit nothing is written and the returned
// counter is the current one.
type QuotaConsumer interface {
	Consume(ctx context.Context, identityID, day string, cost, limit int) (QuotaCounter, bool, error)
}

// ProductRepository is the external catalog products are saved to
type ProductRepository interface {
	Upsert(ctx context.Context, record *ProductRecord) (string, error)
	GetByURL(ctx context.Context, productURL string) (*ProductRecord, error)
}
