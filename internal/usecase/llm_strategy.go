package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/diysmart/productinfo/internal/domain"
)

// merchantGuidance tells the model where each retailer usually shows its data
var merchantGuidance = map[domain.Merchant]string{
	domain.MerchantAmazon:    "Amazon pages show the title near the top, the price in the buy box and the star rating under the title. amzn.to links redirect to amazon.com.",
	domain.MerchantHomeDepot: "Home Depot pages show the brand above the title, the model number below it and the price on the right.",
	domain.MerchantLowes:     "Lowes pages show the brand and title together, with item and model numbers beneath.",
	domain.MerchantWalmart:   "Walmart pages show the title at the top, the current price prominently and a struck-through list price when discounted.",
	domain.MerchantOther:     "The retailer is unknown; rely on what is visible or implied by the URL.",
}

const llmPromptTemplate = `You extract product information for a DIY and home improvement assistant.

Product URL: %s
Retailer: %s
Retailer notes: %s
%s
Respond with a single JSON object and nothing else, using exactly these fields:
{
  "product_url": string,
  "title": string,
  "description": string or null,
  "category": one of [%s],
  "brand": string or null,
  "model": string or null,
  "original_price": number or null,
  "sale_price": number or null,
  "rating": number between 0 and 5 or null,
  "rating_count": integer or null,
  "image_url": absolute URL or null,
  "project_types": array drawn from [%s]
}

Rules:
- If you are not confident about a price, leave it null. Do not invent values.
- Use sale_price for the current price. Set original_price only when a higher list price is shown.
- product_url must be the Product URL above, unchanged.
- category must be one of the listed values.
`

var (
	categoryVocabulary = "tools, materials, safety, accessories, other"
	projectVocabulary  = "woodworking, electrical, plumbing, general, home_improvement"
)

// LLMStrategy asks a multimodal model to read the product
type LLMStrategy struct {
	client domain.LLMClient
}

// NewLLMStrategy creates the LLM-vision strategy
func NewLLMStrategy(client domain.LLMClient) *LLMStrategy {
	return &LLMStrategy{client: client}
}

// Extract runs the strategy. Failures are *domain.StrategyError.
func (s *LLMStrategy) Extract(ctx context.Context, c *Classification, image []byte) (*domain.ProductRecord, error) {
	if s == nil || s.client == nil {
		return nil, s.fail(domain.FailureLLMUnavailable, domain.ErrLLMNotConfigured)
	}

	text, err := s.client.Complete(ctx, BuildLLMPrompt(c, len(image) > 0), image)
	if err != nil {
		return nil, s.fail(classifyLLMError(ctx, err), err)
	}

	rec, err := ParseLLMResponse(text)
	if err != nil {
		return nil, s.fail(domain.FailureLLMBadOutput, err)
	}
	return rec, nil
}

func (s *LLMStrategy) fail(kind domain.FailureKind, err error) error {
	return &domain.StrategyError{Strategy: domain.MethodLLMVision, Kind: kind, Err: err}
}

// BuildLLMPrompt renders the extraction prompt for a classified URL
func BuildLLMPrompt(c *Classification, hasImage bool) string {
	imageNote := "No screenshot is attached; infer only what the URL reliably implies.\n"
	if hasImage {
		imageNote = "A screenshot of the product page is attached. Read the values from it.\n"
	}
	return fmt.Sprintf(llmPromptTemplate,
		c.PreservedURL,
		c.Merchant.DisplayName(),
		merchantGuidance[c.Merchant],
		imageNote,
		categoryVocabulary,
		projectVocabulary,
	)
}

// classifyLLMError maps client errors onto failure kinds
func classifyLLMError(ctx context.Context, err error) domain.FailureKind {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return domain.FailureLLMTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return domain.FailureLLMTimeout
	case errors.Is(err, domain.ErrLLMModel):
		return domain.FailureLLMBadOutput
	default:
		return domain.FailureLLMUnavailable
	}
}

// llmProduct mirrors the JSON the model is asked to return
type llmProduct struct {
	ProductURL       *string    `json:"product_url"`
	Title            string     `json:"title"`
	Description      *string    `json:"description"`
	Category         string     `json:"category"`
	Brand            *string    `json:"brand"`
	Model            *string    `json:"model"`
	OriginalPrice    flexNumber `json:"original_price"`
	SalePrice        flexNumber `json:"sale_price"`
	Rating           flexNumber `json:"rating"`
	RatingCount      flexNumber `json:"rating_count"`
	ImageURL         *string    `json:"image_url"`
	ProjectTypes     []string   `json:"project_types"`
	Merchant         *string    `json:"merchant"`
	ExtractionMethod *string    `json:"extraction_method"`
}

// flexNumber accepts a JSON number, a numeric string such as "$1,299.99", or null
type flexNumber struct {
	Value *float64
}

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		n.Value = nil
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			n.Value = nil
			return nil
		}
		v, ok := ParsePrice(s)
		if !ok {
			return fmt.Errorf("not a number: %q", s)
		}
		n.Value = &v
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	n.Value = &v
	return nil
}

// ParseLLMResponse decodes the model's answer into a draft record. Category
// and project types are left raw for the coordinator to normalize.
func ParseLLMResponse(text string) (*domain.ProductRecord, error) {
	raw, err := extractJSONObject(text)
	if err != nil {
		return nil, err
	}

	var p llmProduct
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("invalid JSON from model: %w", err)
	}
	if p.Merchant != nil && *p.Merchant != "" && !domain.Merchant(*p.Merchant).Valid() {
		return nil, fmt.Errorf("merchant %q outside vocabulary", *p.Merchant)
	}
	if p.ExtractionMethod != nil && *p.ExtractionMethod != "" && !domain.ExtractionMethod(*p.ExtractionMethod).Valid() {
		return nil, fmt.Errorf("extraction_method %q outside vocabulary", *p.ExtractionMethod)
	}

	rec := &domain.ProductRecord{
		Title:         p.Title,
		Description:   p.Description,
		Category:      domain.Category(p.Category),
		Brand:         p.Brand,
		Model:         p.Model,
		OriginalPrice: p.OriginalPrice.Value,
		SalePrice:     p.SalePrice.Value,
		Rating:        p.Rating.Value,
		ImageURL:      p.ImageURL,
	}
	if p.ProductURL != nil {
		rec.ProductURL = *p.ProductURL
	}
	if p.RatingCount.Value != nil {
		count := int(*p.RatingCount.Value)
		rec.RatingCount = &count
	}
	for _, pt := range p.ProjectTypes {
		rec.ProjectTypes = append(rec.ProjectTypes, domain.ProjectType(pt))
	}
	return rec, nil
}

// extractJSONObject strips markdown fences and returns the outermost object
func extractJSONObject(text string) (string, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", errors.New("no JSON object in model response")
	}
	return s[start : end+1], nil
}
