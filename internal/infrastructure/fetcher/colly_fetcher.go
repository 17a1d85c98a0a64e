// Package fetcher retrieves product pages for the scraping strategy.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/google/uuid"

	"github.com/diysmart/productinfo/internal/domain"
	"github.com/diysmart/productinfo/internal/infrastructure/logger"
	"github.com/diysmart/productinfo/internal/infrastructure/metrics"
)

const (
	// DefaultMaxBodySize caps how much of a page is read
	DefaultMaxBodySize = 2 << 20
	defaultTimeout     = 15 * time.Second
)

// Config holds fetcher settings
type Config struct {
	MaxBodySize int
	// Parallelism bounds concurrent requests across all fetches
	Parallelism int
	RandomDelay time.Duration
	// RequestTimeout is the transport-level ceiling; per-call timeouts are
	// enforced through the caller's context.
	RequestTimeout time.Duration
	// Transport overrides the HTTP transport. Nil uses a pooled default.
	Transport http.RoundTripper
}

// CollyFetcher fetches single pages. Each call clones a prototype collector,
// so all fetches share one backend and its limit rule. Requests are bound to
// the caller's context through contextTransport, so an abandoned fetch stops
// its round trip and gives its parallelism slot back. A fetch still queued
// for a slot when its context ends waits for one, then fails at once.
type CollyFetcher struct {
	prototype   *colly.Collector
	transport   *contextTransport
	maxBodySize int
	logger      logger.Logger
	metrics     *metrics.Metrics
}

// NewCollyFetcher creates a fetcher
func NewCollyFetcher(cfg Config, log logger.Logger, m *metrics.Metrics) (*CollyFetcher, error) {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultTimeout
	}
	if cfg.Transport == nil {
		cfg.Transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}
	if log == nil {
		log = logger.NewNop()
	}

	prototype := colly.NewCollector(
		colly.MaxBodySize(cfg.MaxBodySize),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	prototype.ParseHTTPErrorResponse = true
	transport := &contextTransport{base: cfg.Transport}
	prototype.SetRequestTimeout(cfg.RequestTimeout)
	prototype.WithTransport(transport)
	if err := prototype.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure fetch limits: %w", err)
	}

	return &CollyFetcher{
		prototype:   prototype,
		transport:   transport,
		maxBodySize: cfg.MaxBodySize,
		logger:      log.With(logger.String("component", "fetcher")),
		metrics:     m,
	}, nil
}

type fetchResult struct {
	page *domain.Page
	err  error
}

// Fetch GETs rawURL with headers, following redirects. Any HTTP status is
// returned as a Page; timeouts wrap domain.ErrFetchTimeout and other failures
// domain.ErrFetchTransport.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string, headers http.Header, timeout time.Duration) (*domain.Page, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fetchID := f.transport.bind(ctx)
	defer f.transport.release(fetchID)

	c := f.prototype.Clone()
	c.ParseHTTPErrorResponse = true
	c.MaxBodySize = f.maxBodySize

	var page *domain.Page
	c.OnRequest(func(r *colly.Request) {
		for k, vs := range headers {
			r.Headers.Del(k)
			for _, v := range vs {
				r.Headers.Add(k, v)
			}
		}
		r.Headers.Set(fetchIDHeader, fetchID)
	})
	c.OnResponse(func(r *colly.Response) {
		page = &domain.Page{
			StatusCode: r.StatusCode,
			Body:       r.Body,
			FinalURL:   r.Request.URL.String(),
			Truncated:  len(r.Body) >= f.maxBodySize,
		}
	})

	done := make(chan fetchResult, 1)
	go func() {
		err := c.Visit(rawURL)
		done <- fetchResult{page: page, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", domain.ErrFetchTimeout, ctx.Err())
	case res := <-done:
		if res.page != nil {
			f.metrics.IncFetchResponse(res.page.StatusCode)
			return res.page, nil
		}
		if res.err == nil {
			res.err = errors.New("no response")
		}
		f.logger.Debug("fetch failed", logger.String("url", rawURL), logger.Error(res.err))
		return nil, mapFetchError(res.err)
	}
}

func mapFetchError(err error) error {
	var netErr net.Error
	var urlErr *url.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout(),
		errors.As(err, &urlErr) && urlErr.Timeout():
		return fmt.Errorf("%w: %w", domain.ErrFetchTimeout, err)
	default:
		return fmt.Errorf("%w: %w", domain.ErrFetchTransport, err)
	}
}

// fetchIDHeader carries the fetch a request belongs to from colly down to
// contextTransport. It never leaves the process.
const fetchIDHeader = "X-Productinfo-Fetch-Id"

// contextTransport runs each request under the context of the Fetch call
// that issued it. colly builds its requests without one.
type contextTransport struct {
	base     http.RoundTripper
	contexts sync.Map
}

func (t *contextTransport) bind(ctx context.Context) string {
	id := uuid.NewString()
	t.contexts.Store(id, ctx)
	return id
}

func (t *contextTransport) release(id string) {
	t.contexts.Delete(id)
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	id := req.Header.Get(fetchIDHeader)
	if id == "" {
		return t.base.RoundTrip(req)
	}
	v, ok := t.contexts.Load(id)
	if !ok {
		// The Fetch call already returned.
		return nil, context.Canceled
	}

	out := req.Clone(v.(context.Context))
	out.Header.Del(fetchIDHeader)
	return t.base.RoundTrip(out)
}
