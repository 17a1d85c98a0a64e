package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/diysmart/productinfo/internal/domain"
	"github.com/diysmart/productinfo/internal/infrastructure/logger"
	"github.com/diysmart/productinfo/internal/infrastructure/metrics"
)

// Default per-strategy deadlines
const (
	DefaultLLMTimeout = 30 * time.Second
)

// Strategy orderings, selected per request by StrategyOrder
var (
	orderLLMFirst = []domain.ExtractionMethod{
		domain.MethodLLMVision, domain.MethodHTTPScrape, domain.MethodURLHeuristic,
	}
	orderScrapeFirst = []domain.ExtractionMethod{
		domain.MethodHTTPScrape, domain.MethodLLMVision, domain.MethodURLHeuristic,
	}
	orderUnknownMerchant = []domain.ExtractionMethod{
		domain.MethodLLMVision, domain.MethodURLHeuristic,
	}
)

// invalidRecordKind is the failure reported when a strategy's record does
// not survive normalization
var invalidRecordKind = map[domain.ExtractionMethod]domain.FailureKind{
	domain.MethodLLMVision:    domain.FailureLLMBadOutput,
	domain.MethodHTTPScrape:   domain.FailureParseMiss,
	domain.MethodURLHeuristic: domain.FailureParseMiss,
}

var timeoutKind = map[domain.ExtractionMethod]domain.FailureKind{
	domain.MethodLLMVision:    domain.FailureLLMTimeout,
	domain.MethodHTTPScrape:   domain.FailureHTTPTimeout,
	domain.MethodURLHeuristic: domain.FailureDeadlineExceeded,
}

// CoordinatorConfig holds the coordinator's deadlines. Zero values use the defaults.
type CoordinatorConfig struct {
	LLMTimeout  time.Duration
	HTTPTimeout time.Duration
	// OverallTimeout caps a whole extraction; zero means no cap
	OverallTimeout time.Duration
}

// Extraction is a successful coordinator run
type Extraction struct {
	Record   *domain.ProductRecord
	Attempts []domain.Attempt
}

// Coordinator runs the extraction strategies in order and enforces the
// record invariants on whatever they return
type Coordinator struct {
	llm       *LLMStrategy
	scrape    *ScrapeStrategy
	heuristic *HeuristicStrategy

	llmTimeout     time.Duration
	httpTimeout    time.Duration
	overallTimeout time.Duration

	logger  logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewCoordinator creates a coordinator over the three strategies
func NewCoordinator(
	llm *LLMStrategy,
	scrape *ScrapeStrategy,
	heuristic *HeuristicStrategy,
	log logger.Logger,
	m *metrics.Metrics,
	config CoordinatorConfig,
) *Coordinator {
	if config.LLMTimeout <= 0 {
		config.LLMTimeout = DefaultLLMTimeout
	}
	if config.HTTPTimeout <= 0 {
		config.HTTPTimeout = DefaultHTTPTimeout
	}
	if log == nil {
		log = logger.NewNop()
	}
	if heuristic == nil {
		heuristic = NewHeuristicStrategy()
	}

	return &Coordinator{
		llm:            llm,
		scrape:         scrape,
		heuristic:      heuristic,
		llmTimeout:     config.LLMTimeout,
		httpTimeout:    config.HTTPTimeout,
		overallTimeout: config.OverallTimeout,
		logger:         log.With(logger.String("component", "coordinator")),
		metrics:        m,
		now:            time.Now,
	}
}

// StrategyOrder picks the strategy sequence for a classified URL
func StrategyOrder(c *Classification, hasImage bool) []domain.ExtractionMethod {
	switch {
	case c.Merchant == domain.MerchantOther:
		return orderUnknownMerchant
	case hasImage, c.Merchant == domain.MerchantAmazon && c.ShortLink:
		return orderLLMFirst
	default:
		return orderScrapeFirst
	}
}

// Extract produces a validated ProductRecord for rawURL. It returns
// domain.ErrMalformedURL before any strategy runs when the URL cannot be
// classified, and a *domain.ExhaustedError when every strategy failed.
func (c *Coordinator) Extract(ctx context.Context, rawURL string, image []byte) (*Extraction, error) {
	class, err := ClassifyURL(rawURL)
	if err != nil {
		c.metrics.IncExtraction("malformed_url")
		return nil, err
	}

	if c.overallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.overallTimeout)
		defer cancel()
	}

	log := c.logger.With(logger.String("merchant", string(class.Merchant)))
	order := StrategyOrder(class, len(image) > 0)
	attempts := make([]domain.Attempt, 0, len(order))

	for _, kind := range order {
		if ctx.Err() != nil {
			attempts = append(attempts, domain.Attempt{Strategy: kind, Failure: domain.FailureDeadlineExceeded})
			log.Warn("extraction deadline reached",
				logger.String("skipped_strategy", string(kind)),
				logger.Error(ctx.Err()))
			break
		}

		start := c.now()
		rec, err := c.runStrategy(ctx, kind, class, image)
		elapsed := c.now().Sub(start)

		if err == nil && c.exceeded(kind, elapsed) {
			err = &domain.StrategyError{Strategy: kind, Kind: timeoutKind[kind], Err: context.DeadlineExceeded}
		}
		if err == nil {
			if err = c.normalize(rec, class, kind); err != nil {
				err = &domain.StrategyError{Strategy: kind, Kind: invalidRecordKind[kind], Err: err}
			}
		}

		if err != nil {
			failure := failureKindOf(kind, err)
			attempts = append(attempts, domain.Attempt{Strategy: kind, Failure: failure, Elapsed: elapsed})
			c.metrics.ObserveStrategy(string(kind), string(failure), elapsed)
			log.Warn("extraction strategy failed",
				logger.String("strategy", string(kind)),
				logger.String("failure_kind", string(failure)),
				logger.Duration("elapsed", elapsed),
				logger.Error(err))
			continue
		}

		attempts = append(attempts, domain.Attempt{Strategy: kind, Elapsed: elapsed})
		c.metrics.ObserveStrategy(string(kind), "", elapsed)
		c.metrics.IncExtraction("success")
		log.Info("product extracted",
			logger.String("extraction_method", string(kind)),
			logger.Int("attempts", len(attempts)),
			logger.Duration("elapsed", elapsed))
		return &Extraction{Record: rec, Attempts: attempts}, nil
	}

	c.metrics.IncExtraction("exhausted")
	return nil, &domain.ExhaustedError{Attempts: attempts}
}

// runStrategy dispatches over the closed set of strategies
func (c *Coordinator) runStrategy(
	ctx context.Context,
	kind domain.ExtractionMethod,
	class *Classification,
	image []byte,
) (*domain.ProductRecord, error) {
	switch kind {
	case domain.MethodLLMVision:
		sctx, cancel := context.WithTimeout(ctx, c.llmTimeout)
		defer cancel()
		return c.llm.Extract(sctx, class, image)
	case domain.MethodHTTPScrape:
		if c.scrape == nil {
			return nil, &domain.StrategyError{Strategy: kind, Kind: domain.FailureHTTPError, Err: errors.New("no page fetcher configured")}
		}
		sctx, cancel := context.WithTimeout(ctx, c.httpTimeout)
		defer cancel()
		return c.scrape.Extract(sctx, class)
	case domain.MethodURLHeuristic:
		return c.heuristic.Extract(class)
	}
	return nil, fmt.Errorf("unknown strategy %q", kind)
}

// exceeded applies the deadline boundary: finishing exactly on the deadline
// still counts as success
func (c *Coordinator) exceeded(kind domain.ExtractionMethod, elapsed time.Duration) bool {
	switch kind {
	case domain.MethodLLMVision:
		return elapsed > c.llmTimeout
	case domain.MethodHTTPScrape:
		return elapsed > c.httpTimeout
	}
	return false
}

func failureKindOf(kind domain.ExtractionMethod, err error) domain.FailureKind {
	var se *domain.StrategyError
	if errors.As(err, &se) && se.Kind.Valid() {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return timeoutKind[kind]
	}
	return invalidRecordKind[kind]
}

// normalize stamps identity and provenance onto rec, maps free-form fields
// onto their vocabularies, clips ranges and validates the result
func (c *Coordinator) normalize(rec *domain.ProductRecord, class *Classification, kind domain.ExtractionMethod) error {
	if rec == nil {
		return errors.New("strategy returned no record")
	}
	if rec.ProductURL != "" && rec.ProductURL != class.PreservedURL {
		c.logger.Debug("strategy rewrote product_url; restoring input",
			logger.String("strategy", string(kind)),
			logger.String("returned_url", rec.ProductURL))
	}
	rec.ProductURL = class.PreservedURL
	rec.Merchant = class.Merchant
	rec.ExtractionMethod = kind

	rec.Title = truncateAtWord(collapseSpace(rec.Title), domain.MaxTitleLength)
	if rec.Description != nil {
		rec.Description = nonEmpty(truncateRunes(strings.TrimSpace(*rec.Description), domain.MaxDescriptionLength))
	}
	if rec.Brand != nil {
		rec.Brand = nonEmpty(*rec.Brand)
	}
	if rec.Model != nil {
		rec.Model = nonEmpty(*rec.Model)
	}

	raw := string(rec.Category)
	rec.Category = NormalizeCategory(raw)
	if strings.TrimSpace(raw) == "" && rec.Category == domain.CategoryOther {
		rec.Category = NormalizeCategory(rec.Title)
	}
	rec.ProjectTypes = NormalizeProjectTypes(projectTypeStrings(rec.ProjectTypes))

	if rec.SalePrice == nil && rec.OriginalPrice != nil {
		rec.SalePrice, rec.OriginalPrice = rec.OriginalPrice, nil
	}
	rec.DiscountPercentage = domain.DiscountFor(rec.OriginalPrice, rec.SalePrice)

	if rec.Rating != nil {
		r := *rec.Rating
		switch {
		case math.IsNaN(r):
			rec.Rating = nil
		case r < 0:
			r = 0
			rec.Rating = &r
		case r > domain.MaxRating:
			r = domain.MaxRating
			rec.Rating = &r
		}
	}
	if rec.RatingCount != nil && *rec.RatingCount < 0 {
		rec.RatingCount = nil
	}
	if rec.ImageURL != nil && !domain.IsAbsoluteURL(*rec.ImageURL) {
		rec.ImageURL = nil
	}

	return rec.Validate(class.PreservedURL)
}
