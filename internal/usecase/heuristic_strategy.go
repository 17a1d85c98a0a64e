package usecase

import (
	"regexp"
	"strings"

	"github.com/diysmart/productinfo/internal/domain"
)

var (
	asinPathPatterns = []*regexp.Regexp{
		regexp.MustCompile(`/dp/([A-Z0-9]{10})`),
		regexp.MustCompile(`/gp/product/([A-Z0-9]{10})`),
		regexp.MustCompile(`/product/([A-Z0-9]{10})`),
	}
	asinQueryPattern  = regexp.MustCompile(`^[A-Z0-9]{10}$`)
	amazonSlugPattern = regexp.MustCompile(`/([^/]+)/(?:dp|gp/product)/`)

	// /p/<slug>/<id> for Home Depot, /pd/<slug>/<id> for Lowes, /ip/<slug>/<id> for Walmart
	merchantPathPatterns = map[domain.Merchant]*regexp.Regexp{
		domain.MerchantHomeDepot: regexp.MustCompile(`/p/([^/]+)/(\d+)`),
		domain.MerchantLowes:     regexp.MustCompile(`/pd/([^/]+)/(\d+)`),
		domain.MerchantWalmart:   regexp.MustCompile(`/ip/([^/]+)/(\d+)`),
	}
)

// URLIdentity is what the URL path alone reveals about a product
type URLIdentity struct {
	Slug   string
	ItemID string
}

// HeuristicStrategy synthesizes a record from the URL path. It never
// performs I/O.
type HeuristicStrategy struct {
	slugs *SlugPreprocessor
}

// NewHeuristicStrategy creates the URL-heuristic strategy
func NewHeuristicStrategy() *HeuristicStrategy {
	return &HeuristicStrategy{slugs: NewSlugPreprocessor()}
}

// Extract always yields a draft record for a classified URL
func (s *HeuristicStrategy) Extract(c *Classification) (*domain.ProductRecord, error) {
	id := ParseURLIdentity(c)
	tokens := s.slugs.Tokens(id.Slug)

	rec := &domain.ProductRecord{}
	if len(tokens) > 0 {
		rec.Title = s.slugs.Title(tokens)
		rec.Brand = nonEmpty(s.slugs.Brand(tokens))
		rec.Model = nonEmpty(s.slugs.Model(tokens))
		keywords := s.slugs.Keywords(tokens)
		rec.Category = NormalizeCategory(keywords)
		rec.ProjectTypes = NormalizeProjectTypes([]string{keywords})
	}
	if rec.Title == "" {
		rec.Title = fallbackTitle(c, id)
		rec.Category = domain.CategoryOther
	}
	return rec, nil
}

// ParseURLIdentity pulls the slug and merchant item id out of a product URL
func ParseURLIdentity(c *Classification) URLIdentity {
	path := c.URL.EscapedPath()

	switch c.Merchant {
	case domain.MerchantAmazon:
		var id URLIdentity
		for _, p := range asinPathPatterns {
			if m := p.FindStringSubmatch(path); m != nil {
				id.ItemID = m[1]
				break
			}
		}
		if id.ItemID == "" {
			if asin := c.URL.Query().Get("ASIN"); asinQueryPattern.MatchString(asin) {
				id.ItemID = asin
			}
		}
		if m := amazonSlugPattern.FindStringSubmatch(path); m != nil {
			id.Slug = m[1]
		}
		if id.ItemID == "" && c.ShortLink {
			id.ItemID = strings.Trim(path, "/")
		}
		return id
	case domain.MerchantHomeDepot, domain.MerchantLowes, domain.MerchantWalmart:
		if m := merchantPathPatterns[c.Merchant].FindStringSubmatch(path); m != nil {
			return URLIdentity{Slug: m[1], ItemID: m[2]}
		}
	}
	return URLIdentity{Slug: lastWordySegment(path)}
}

// lastWordySegment returns the last path segment that is not purely numeric
// and does not look like a file or an id
func lastWordySegment(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		seg := segments[i]
		if seg == "" || isNumericSegment(seg) {
			continue
		}
		seg = strings.TrimSuffix(seg, ".html")
		seg = strings.TrimSuffix(seg, ".htm")
		if strings.ContainsAny(seg, "-_") || isAlpha(seg) {
			return seg
		}
	}
	return ""
}

func isNumericSegment(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func fallbackTitle(c *Classification, id URLIdentity) string {
	if c.Merchant != domain.MerchantOther {
		if id.ItemID != "" {
			return c.Merchant.DisplayName() + " product " + id.ItemID
		}
		return "Product from " + c.Merchant.DisplayName()
	}
	return "Product from " + c.CanonicalHost
}
