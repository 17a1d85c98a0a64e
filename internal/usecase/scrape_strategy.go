package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/diysmart/productinfo/internal/domain"
)

// DefaultHTTPTimeout bounds a page fetch when the caller set no deadline
const DefaultHTTPTimeout = 15 * time.Second

// browserUserAgents rotate across fetches
var browserUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14.5; rv:127.0) Gecko/20100101 Firefox/127.0",
}

var (
	priceNumberPattern  = regexp.MustCompile(`\d[\d.,]*`)
	ratingNumberPattern = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	countPattern        = regexp.MustCompile(`(\d[\d,.]*)\s*([kK])?`)
)

// ScrapeStrategy fetches the product page and reads it with CSS selectors
type ScrapeStrategy struct {
	fetcher    domain.PageFetcher
	userAgents []string
	next       atomic.Uint64
}

// NewScrapeStrategy creates the HTTP scrape strategy. An empty userAgents
// list uses the built-in browser set.
func NewScrapeStrategy(fetcher domain.PageFetcher, userAgents []string) *ScrapeStrategy {
	if len(userAgents) == 0 {
		userAgents = browserUserAgents
	}
	return &ScrapeStrategy{fetcher: fetcher, userAgents: userAgents}
}

// Extract runs the strategy. Failures are *domain.StrategyError.
func (s *ScrapeStrategy) Extract(ctx context.Context, c *Classification) (*domain.ProductRecord, error) {
	timeout := DefaultHTTPTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	page, err := s.fetcher.Fetch(ctx, c.PreservedURL, s.BrowserHeaders(), timeout)
	if err != nil {
		return nil, s.fail(classifyFetchError(ctx, err), err)
	}
	if page == nil {
		return nil, s.fail(domain.FailureHTTPError, errors.New("empty response"))
	}

	switch {
	case isBlockingStatus(page.StatusCode):
		return nil, s.fail(domain.FailureHTTPBlocked, &statusError{page.StatusCode})
	case page.StatusCode < 200 || page.StatusCode > 299:
		return nil, s.fail(domain.FailureHTTPError, &statusError{page.StatusCode})
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, s.fail(domain.FailureParseMiss, err)
	}
	if isInterstitial(doc) {
		return nil, s.fail(domain.FailureHTTPBlocked, errors.New("anti-bot interstitial"))
	}

	base := c.URL
	if page.FinalURL != "" {
		if u, err := url.Parse(page.FinalURL); err == nil {
			base = u
		}
	}

	rec, err := parseProductDocument(doc, c.Merchant, base)
	if err != nil {
		// A page that yields nothing and talks about a captcha is a challenge
		// we failed to recognise structurally.
		if mentionsCaptcha(page.Body) {
			return nil, s.fail(domain.FailureHTTPBlocked, err)
		}
		return nil, s.fail(domain.FailureParseMiss, err)
	}
	return rec, nil
}

func (s *ScrapeStrategy) fail(kind domain.FailureKind, err error) error {
	return &domain.StrategyError{Strategy: domain.MethodHTTPScrape, Kind: kind, Err: err}
}

// BrowserHeaders returns request headers resembling a desktop browser
func (s *ScrapeStrategy) BrowserHeaders() http.Header {
	ua := s.userAgents[int(s.next.Add(1)-1)%len(s.userAgents)]
	h := http.Header{}
	h.Set("User-Agent", ua)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Cache-Control", "no-cache")
	h.Set("Referer", "https://www.google.com/")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "cross-site")
	h.Set("Upgrade-Insecure-Requests", "1")
	return h
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return "unexpected status " + strconv.Itoa(e.code)
}

func isBlockingStatus(code int) bool {
	return code == http.StatusForbidden || code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}

func classifyFetchError(ctx context.Context, err error) domain.FailureKind {
	var netErr net.Error
	switch {
	case errors.Is(err, domain.ErrFetchTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(ctx.Err(), context.DeadlineExceeded):
		return domain.FailureHTTPTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return domain.FailureHTTPTimeout
	default:
		return domain.FailureHTTPError
	}
}

// isInterstitial reports whether a 200 page is an anti-bot challenge. Only
// structural signals count: product pages routinely load captcha scripts for
// their review and sign-in forms.
func isInterstitial(doc *goquery.Document) bool {
	title := strings.ToLower(collapseSpace(doc.Find("title").First().Text()))
	for _, t := range interstitialTitles {
		if title == t {
			return true
		}
	}
	for _, sel := range interstitialSelectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

func mentionsCaptcha(body []byte) bool {
	return bytes.Contains(bytes.ToLower(body), []byte("captcha"))
}

// ParseProductPage reads a product page into a draft record. It fails when
// no title can be found.
func ParseProductPage(body []byte, merchant domain.Merchant, base *url.URL) (*domain.ProductRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return parseProductDocument(doc, merchant, base)
}

func parseProductDocument(doc *goquery.Document, merchant domain.Merchant, base *url.URL) (*domain.ProductRecord, error) {
	sets := []selectorSet{}
	if sel, ok := merchantSelectors[merchant]; ok {
		sets = append(sets, sel)
	}
	ld := findJSONLDProduct(doc)

	rec := &domain.ProductRecord{}
	rec.Title = cleanPageTitle(firstText(doc, sets, func(s selectorSet) []string { return s.Title }))
	if rec.Title == "" {
		rec.Title = ld.name
	}
	if rec.Title == "" {
		rec.Title = cleanPageTitle(firstText(doc, []selectorSet{genericSelectors}, func(s selectorSet) []string { return s.Title }))
	}
	if rec.Title == "" {
		return nil, errors.New("no title found")
	}

	all := append(sets, genericSelectors)

	sale, saleOK := ParsePrice(firstText(doc, sets, func(s selectorSet) []string { return s.Price }))
	if !saleOK && ld.price != nil {
		sale, saleOK = *ld.price, true
	}
	if !saleOK {
		sale, saleOK = ParsePrice(firstText(doc, []selectorSet{genericSelectors}, func(s selectorSet) []string { return s.Price }))
	}
	if saleOK {
		rec.SalePrice = &sale
		if list, ok := ParsePrice(firstText(doc, sets, func(s selectorSet) []string { return s.ListPrice })); ok && list > sale {
			rec.OriginalPrice = &list
		}
	}

	if r, ok := ParseRating(firstText(doc, sets, func(s selectorSet) []string { return s.Rating })); ok {
		rec.Rating = &r
	} else if ld.rating != nil {
		rec.Rating = ld.rating
	}
	if n, ok := ParseCount(firstText(doc, sets, func(s selectorSet) []string { return s.RatingCount })); ok {
		rec.RatingCount = &n
	} else if ld.ratingCount != nil {
		rec.RatingCount = ld.ratingCount
	}

	image := firstText(doc, sets, func(s selectorSet) []string { return s.Image })
	if image == "" {
		image = ld.image
	}
	if image == "" {
		image = firstText(doc, []selectorSet{genericSelectors}, func(s selectorSet) []string { return s.Image })
	}
	if abs := resolveURL(base, image); abs != "" {
		rec.ImageURL = &abs
	}

	rec.Brand = nonEmpty(cleanBrand(firstNonEmpty(
		firstText(doc, sets, func(s selectorSet) []string { return s.Brand }),
		ld.brand,
		firstText(doc, []selectorSet{genericSelectors}, func(s selectorSet) []string { return s.Brand }),
	)))
	rec.Model = nonEmpty(cleanModel(firstNonEmpty(
		firstText(doc, sets, func(s selectorSet) []string { return s.Model }),
		ld.model,
	)))
	rec.Description = nonEmpty(firstNonEmpty(
		firstText(doc, all, func(s selectorSet) []string { return s.Description }),
		ld.description,
	))

	crumbs := allText(doc, sets, func(s selectorSet) []string { return s.Breadcrumb })
	if len(crumbs) > 0 {
		rec.Category = domain.Category(crumbs[len(crumbs)-1])
	}
	return rec, nil
}

// firstText returns the first non-empty value any selector yields
func firstText(doc *goquery.Document, sets []selectorSet, field func(selectorSet) []string) string {
	for _, set := range sets {
		for _, sel := range field(set) {
			if v := selectValue(doc, sel); v != "" {
				return v
			}
		}
	}
	return ""
}

// allText returns every text match of the first selector that matches at all
func allText(doc *goquery.Document, sets []selectorSet, field func(selectorSet) []string) []string {
	for _, set := range sets {
		for _, sel := range field(set) {
			var out []string
			doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
				if t := collapseSpace(s.Text()); t != "" {
					out = append(out, t)
				}
			})
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

func selectValue(doc *goquery.Document, selector string) string {
	css, attr, hasAttr := strings.Cut(selector, "@")
	sel := doc.Find(css).First()
	if sel.Length() == 0 {
		return ""
	}
	if hasAttr {
		v, _ := sel.Attr(attr)
		return strings.TrimSpace(v)
	}
	return collapseSpace(sel.Text())
}

func collapseSpace(s string) string {
	return strings.TrimSpace(multiSpacePattern.ReplaceAllString(s, " "))
}

func cleanPageTitle(t string) string {
	for _, p := range titlePrefixes {
		t = strings.TrimPrefix(t, p)
	}
	for _, suffix := range titleSuffixes {
		t = strings.TrimSuffix(t, suffix)
	}
	if i := strings.Index(t, " | "); i > 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}

func cleanBrand(b string) string {
	b = strings.TrimPrefix(b, "Visit the ")
	b = strings.TrimSuffix(b, " Store")
	b = strings.TrimPrefix(b, "Brand: ")
	return strings.TrimSpace(b)
}

func cleanModel(m string) string {
	m = strings.TrimSpace(m)
	for _, p := range []string{"Model #", "Model#", "Model"} {
		if strings.HasPrefix(m, p) {
			m = strings.TrimSpace(strings.TrimPrefix(m, p))
			break
		}
	}
	return m
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.String()
}

// ParsePrice reads the first amount in text. It tolerates currency symbols,
// thousands separators, "From $49" and "$129.00 - $199.00" ranges.
func ParsePrice(text string) (float64, bool) {
	m := priceNumberPattern.FindString(text)
	if m == "" {
		return 0, false
	}
	m = strings.TrimRight(m, ".,")
	lastComma := strings.LastIndex(m, ",")
	lastDot := strings.LastIndex(m, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			// 1.299,99
			m = strings.ReplaceAll(m, ".", "")
			m = strings.Replace(m, ",", ".", 1)
		} else {
			m = strings.ReplaceAll(m, ",", "")
		}
	case lastComma >= 0:
		if len(m)-lastComma-1 == 2 && strings.Count(m, ",") == 1 {
			m = strings.Replace(m, ",", ".", 1)
		} else {
			m = strings.ReplaceAll(m, ",", "")
		}
	case strings.Count(m, ".") > 1:
		m = strings.ReplaceAll(m, ".", "")
	}

	v, err := strconv.ParseFloat(m, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// ParseRating reads "4.5 out of 5 stars" style text. Percent-style values
// above 5 and up to 100 are scaled down to the 5-star range.
func ParseRating(text string) (float64, bool) {
	m := ratingNumberPattern.FindString(text)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64)
	if err != nil || v < 0 {
		return 0, false
	}
	if v > domain.MaxRating {
		if v > 100 {
			return 0, false
		}
		v = v / 20
	}
	return v, true
}

// ParseCount reads "(1,847)", "1,847 ratings" or "1.2K reviews"
func ParseCount(text string) (int, bool) {
	m := countPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	if m[2] != "" {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			return 0, false
		}
		return int(v * 1000), true
	}
	digits := strings.NewReplacer(",", "", ".", "").Replace(m[1])
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ldProduct holds the fields read from a schema.org Product JSON-LD block
type ldProduct struct {
	name        string
	brand       string
	model       string
	description string
	image       string
	price       *float64
	rating      *float64
	ratingCount *int
}

func findJSONLDProduct(doc *goquery.Document) ldProduct {
	var found ldProduct
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var payload any
		if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil {
			return true
		}
		if obj := findProductNode(payload); obj != nil {
			found = readLDProduct(obj)
			return false
		}
		return true
	})
	return found
}

func findProductNode(v any) map[string]any {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if obj := findProductNode(item); obj != nil {
				return obj
			}
		}
	case map[string]any:
		if isLDType(t["@type"], "Product") {
			return t
		}
		if graph, ok := t["@graph"]; ok {
			return findProductNode(graph)
		}
	}
	return nil
}

func isLDType(v any, want string) bool {
	switch t := v.(type) {
	case string:
		return t == want
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

func readLDProduct(obj map[string]any) ldProduct {
	p := ldProduct{
		name:        ldString(obj["name"]),
		brand:       ldString(obj["brand"]),
		model:       firstNonEmpty(ldString(obj["model"]), ldString(obj["mpn"])),
		description: ldString(obj["description"]),
		image:       ldString(obj["image"]),
	}

	offers := obj["offers"]
	if list, ok := offers.([]any); ok && len(list) > 0 {
		offers = list[0]
	}
	if o, ok := offers.(map[string]any); ok {
		for _, key := range []string{"price", "lowPrice"} {
			if v, ok := ldNumber(o[key]); ok {
				p.price = &v
				break
			}
		}
	}

	if agg, ok := obj["aggregateRating"].(map[string]any); ok {
		if v, ok := ldNumber(agg["ratingValue"]); ok {
			p.rating = &v
		}
		for _, key := range []string{"reviewCount", "ratingCount"} {
			if v, ok := ldNumber(agg[key]); ok {
				n := int(v)
				p.ratingCount = &n
				break
			}
		}
	}
	return p
}

// ldString reads a plain string, the first of a list, or an object's name/url
func ldString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		if len(t) > 0 {
			return ldString(t[0])
		}
	case map[string]any:
		return firstNonEmpty(ldString(t["name"]), ldString(t["url"]))
	}
	return ""
}

func ldNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, t >= 0
	case string:
		return ParsePrice(t)
	}
	return 0, false
}
