package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"testing"
	"time"

	"github.com/diysmart/productinfo/internal/domain"
)

const homeDepotPage = `<html><head><title>DEWALT Drill - The Home Depot</title></head><body>
<a class="product-details__brand--link">DEWALT</a>
<h1 class="product-details__title">20V MAX Cordless Drill/Driver Kit</h1>
<div class="product-info-bar__detail--model">Model # DCD771C2</div>
<div class="price-format__main-price">$99.00</div>
<div class="price-detailed__was-price"><span class="u__strike">$159.00</span></div>
<span aria-label="4.7 out of 5 stars"></span>
<span class="product-details__review-count">(1,847)</span>
<img class="mediagallery__mainimage" src="/images/dcd771c2.jpg">
<nav>
  <span class="breadcrumb__item"><a>Tools</a></span>
  <span class="breadcrumb__item"><a>Power Tools</a></span>
  <span class="breadcrumb__item"><a>Drills</a></span>
</nav>
</body></html>`

const amazonPage = `<html><body>
<span id="productTitle">
    Milwaukee 2804-20 M18 Hammer Drill
</span>
<a id="bylineInfo">Visit the Milwaukee Store</a>
<div id="corePrice_feature_div"><span class="a-price"><span class="a-offscreen">$149.00</span></span></div>
<div id="corePriceDisplay_desktop_feature_div"><span class="a-text-price"><span class="a-offscreen">$199.00</span></span></div>
<span id="acrPopover" title="4.8 out of 5 stars"></span>
<span id="acrCustomerReviewText">2,345 ratings</span>
<img id="landingImage" data-old-hires="https://m.media-amazon.com/images/I/drill.jpg" src="data:image/gif;base64,R0lGOD">
</body></html>`

const jsonLDPage = `<html><head>
<script type="application/ld+json">{"@context":"https://schema.org","@graph":[
  {"@type":"BreadcrumbList"},
  {"@type":["Product"],"name":"Claw Hammer 16 oz","brand":{"@type":"Brand","name":"Estwing"},
   "mpn":"E3-16C","image":["https://cdn.example.com/hammer.jpg"],
   "offers":[{"@type":"Offer","price":"34.97"}],
   "aggregateRating":{"ratingValue":4.9,"reviewCount":"812"}}
]}</script>
</head><body><p>Hammer</p></body></html>`

const openGraphPage = `<html><head>
<meta property="og:title" content="Garden Hose 50ft">
<meta property="product:price:amount" content="24.99">
<meta property="og:image" content="/img/hose.png">
<meta property="og:description" content="Kink free garden hose">
</head><body></body></html>`

func TestParseProductPage_HomeDepot(t *testing.T) {
	base, _ := url.Parse("https://www.homedepot.com/p/DEWALT-Drill/204279858")

	rec, err := ParseProductPage([]byte(homeDepotPage), domain.MerchantHomeDepot, base)
	if err != nil {
		t.Fatalf("ParseProductPage() error = %v", err)
	}

	if rec.Title != "20V MAX Cordless Drill/Driver Kit" {
		t.Errorf("Title = %q", rec.Title)
	}
	if rec.SalePrice == nil || *rec.SalePrice != 99 {
		t.Errorf("SalePrice = %v, want 99", rec.SalePrice)
	}
	if rec.OriginalPrice == nil || *rec.OriginalPrice != 159 {
		t.Errorf("OriginalPrice = %v, want 159", rec.OriginalPrice)
	}
	if rec.Rating == nil || *rec.Rating != 4.7 {
		t.Errorf("Rating = %v, want 4.7", rec.Rating)
	}
	if rec.RatingCount == nil || *rec.RatingCount != 1847 {
		t.Errorf("RatingCount = %v, want 1847", rec.RatingCount)
	}
	if deref(rec.Brand) != "DEWALT" {
		t.Errorf("Brand = %q, want DEWALT", deref(rec.Brand))
	}
	if deref(rec.Model) != "DCD771C2" {
		t.Errorf("Model = %q, want DCD771C2", deref(rec.Model))
	}
	if deref(rec.ImageURL) != "https://www.homedepot.com/images/dcd771c2.jpg" {
		t.Errorf("ImageURL = %q, want resolved absolute URL", deref(rec.ImageURL))
	}
	if rec.Category != "Drills" {
		t.Errorf("Category = %q, want the last breadcrumb", rec.Category)
	}
}

func TestParseProductPage_Amazon(t *testing.T) {
	base, _ := url.Parse("https://www.amazon.com/dp/B00ET5VMTU")

	rec, err := ParseProductPage([]byte(amazonPage), domain.MerchantAmazon, base)
	if err != nil {
		t.Fatalf("ParseProductPage() error = %v", err)
	}

	if rec.Title != "Milwaukee 2804-20 M18 Hammer Drill" {
		t.Errorf("Title = %q", rec.Title)
	}
	if deref(rec.Brand) != "Milwaukee" {
		t.Errorf("Brand = %q, want Milwaukee", deref(rec.Brand))
	}
	if rec.SalePrice == nil || *rec.SalePrice != 149 {
		t.Errorf("SalePrice = %v, want 149", rec.SalePrice)
	}
	if rec.OriginalPrice == nil || *rec.OriginalPrice != 199 {
		t.Errorf("OriginalPrice = %v, want 199", rec.OriginalPrice)
	}
	if rec.RatingCount == nil || *rec.RatingCount != 2345 {
		t.Errorf("RatingCount = %v, want 2345", rec.RatingCount)
	}
	if deref(rec.ImageURL) != "https://m.media-amazon.com/images/I/drill.jpg" {
		t.Errorf("ImageURL = %q", deref(rec.ImageURL))
	}
}

func TestParseProductPage_JSONLD(t *testing.T) {
	base, _ := url.Parse("https://tools.example.com/hammer")

	rec, err := ParseProductPage([]byte(jsonLDPage), domain.MerchantOther, base)
	if err != nil {
		t.Fatalf("ParseProductPage() error = %v", err)
	}

	if rec.Title != "Claw Hammer 16 oz" {
		t.Errorf("Title = %q", rec.Title)
	}
	if deref(rec.Brand) != "Estwing" {
		t.Errorf("Brand = %q, want Estwing", deref(rec.Brand))
	}
	if deref(rec.Model) != "E3-16C" {
		t.Errorf("Model = %q, want E3-16C", deref(rec.Model))
	}
	if rec.SalePrice == nil || *rec.SalePrice != 34.97 {
		t.Errorf("SalePrice = %v, want 34.97", rec.SalePrice)
	}
	if rec.Rating == nil || *rec.Rating != 4.9 {
		t.Errorf("Rating = %v, want 4.9", rec.Rating)
	}
	if rec.RatingCount == nil || *rec.RatingCount != 812 {
		t.Errorf("RatingCount = %v, want 812", rec.RatingCount)
	}
	if deref(rec.ImageURL) != "https://cdn.example.com/hammer.jpg" {
		t.Errorf("ImageURL = %q", deref(rec.ImageURL))
	}
}

func TestParseProductPage_OpenGraphFallback(t *testing.T) {
	base, _ := url.Parse("https://shop.example.com/hose")

	rec, err := ParseProductPage([]byte(openGraphPage), domain.MerchantOther, base)
	if err != nil {
		t.Fatalf("ParseProductPage() error = %v", err)
	}

	if rec.Title != "Garden Hose 50ft" {
		t.Errorf("Title = %q", rec.Title)
	}
	if rec.SalePrice == nil || *rec.SalePrice != 24.99 {
		t.Errorf("SalePrice = %v, want 24.99", rec.SalePrice)
	}
	if rec.OriginalPrice != nil {
		t.Errorf("OriginalPrice = %v, want nil", *rec.OriginalPrice)
	}
	if deref(rec.ImageURL) != "https://shop.example.com/img/hose.png" {
		t.Errorf("ImageURL = %q", deref(rec.ImageURL))
	}
	if deref(rec.Description) != "Kink free garden hose" {
		t.Errorf("Description = %q", deref(rec.Description))
	}
}

func TestParseProductPage_TitleSuffixStripped(t *testing.T) {
	page := `<html><head><title>Kobalt Tape Measure - Lowes.com</title></head><body></body></html>`

	rec, err := ParseProductPage([]byte(page), domain.MerchantOther, nil)
	if err != nil {
		t.Fatalf("ParseProductPage() error = %v", err)
	}
	if rec.Title != "Kobalt Tape Measure" {
		t.Errorf("Title = %q, want merchant suffix stripped", rec.Title)
	}
}

func TestParseProductPage_NoTitle(t *testing.T) {
	_, err := ParseProductPage([]byte(`<html><body><p>nothing here</p></body></html>`), domain.MerchantWalmart, nil)
	if err == nil {
		t.Fatal("expected an error for a page without a title")
	}
}

func TestScrapeStrategy_Extract(t *testing.T) {
	raw := "https://www.homedepot.com/p/DEWALT-Drill/204279858"
	fetcher := NewMockPageFetcher(200, homeDepotPage)
	s := NewScrapeStrategy(fetcher, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec, err := s.Extract(ctx, mustClassify(t, raw))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if rec.Title == "" {
		t.Error("expected a title")
	}
	if fetcher.lastURL != raw {
		t.Errorf("fetched %q, want %q", fetcher.lastURL, raw)
	}
	if fetcher.lastHeaders.Get("User-Agent") == "" {
		t.Error("expected a browser User-Agent header")
	}
	if fetcher.lastTimeout <= 0 || fetcher.lastTimeout > 5*time.Second {
		t.Errorf("timeout = %v, want the remaining context deadline", fetcher.lastTimeout)
	}
}

func TestScrapeStrategy_ExtractPageWithCaptchaScript(t *testing.T) {
	page := `<html><head><title>RYOBI Drill - The Home Depot</title>
<script src="https://www.google.com/recaptcha/api.js" async defer></script></head><body>
<h1 class="product-details__title">RYOBI 18V Drill</h1>
<div class="price-format__main-price">$129.00</div>
<form class="review-form"><div class="g-recaptcha" data-sitekey="abc"></div></form>
</body></html>`
	s := NewScrapeStrategy(NewMockPageFetcher(200, page), nil)

	rec, err := s.Extract(context.Background(), mustClassify(t, "https://www.homedepot.com/p/RYOBI-Drill/312345678"))
	if err != nil {
		t.Fatalf("Extract() error = %v, want the product parsed", err)
	}
	if rec.Title != "RYOBI 18V Drill" {
		t.Errorf("Title = %q", rec.Title)
	}
	if rec.SalePrice == nil || *rec.SalePrice != 129 {
		t.Errorf("SalePrice = %v, want 129", rec.SalePrice)
	}
}

func TestScrapeStrategy_Failures(t *testing.T) {
	tests := []struct {
		name    string
		fetcher *MockPageFetcher
		want    domain.FailureKind
	}{
		{"forbidden", NewMockPageFetcher(403, "denied"), domain.FailureHTTPBlocked},
		{"throttled", NewMockPageFetcher(429, ""), domain.FailureHTTPBlocked},
		{"service unavailable", NewMockPageFetcher(503, ""), domain.FailureHTTPBlocked},
		{"not found", NewMockPageFetcher(404, "missing"), domain.FailureHTTPError},
		{"server error", NewMockPageFetcher(500, ""), domain.FailureHTTPError},
		{"captcha interstitial", NewMockPageFetcher(200, "<html><title>Robot Check</title><form action='/errors/validateCaptcha'></form></html>"), domain.FailureHTTPBlocked},
		{"perimeterx challenge", NewMockPageFetcher(200, "<html><title>Walmart.com</title><body><div id='px-captcha'></div></body></html>"), domain.FailureHTTPBlocked},
		{"captcha text without product", NewMockPageFetcher(200, "<html><body><p>Please complete the CAPTCHA to continue</p></body></html>"), domain.FailureHTTPBlocked},
		{"no title", NewMockPageFetcher(200, "<html><body></body></html>"), domain.FailureParseMiss},
		{"fetch timeout", &MockPageFetcher{err: fmt.Errorf("%w: slow", domain.ErrFetchTimeout)}, domain.FailureHTTPTimeout},
		{"transport failure", &MockPageFetcher{err: fmt.Errorf("%w: connection refused", domain.ErrFetchTransport)}, domain.FailureHTTPError},
		{"empty response", &MockPageFetcher{}, domain.FailureHTTPError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScrapeStrategy(tt.fetcher, nil)
			_, err := s.Extract(context.Background(), mustClassify(t, "https://www.walmart.com/ip/Hammer/55555"))

			var se *domain.StrategyError
			if !errors.As(err, &se) {
				t.Fatalf("error = %v, want *domain.StrategyError", err)
			}
			if se.Strategy != domain.MethodHTTPScrape {
				t.Errorf("Strategy = %q, want http_scrape", se.Strategy)
			}
			if se.Kind != tt.want {
				t.Errorf("Kind = %q, want %q", se.Kind, tt.want)
			}
		})
	}
}

func TestScrapeStrategy_BrowserHeadersRotate(t *testing.T) {
	s := NewScrapeStrategy(nil, []string{"agent-a", "agent-b"})

	want := []string{"agent-a", "agent-b", "agent-a"}
	for i, w := range want {
		if got := s.BrowserHeaders().Get("User-Agent"); got != w {
			t.Errorf("call %d User-Agent = %q, want %q", i, got, w)
		}
	}
	if s.BrowserHeaders().Get("Accept-Language") == "" {
		t.Error("expected Accept-Language header")
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		text   string
		want   float64
		wantOK bool
	}{
		{"$1,299.99", 1299.99, true},
		{"1.299,99 €", 1299.99, true},
		{"From $49", 49, true},
		{"$129.00 - $199.00", 129, true},
		{"12,50", 12.5, true},
		{"1,299", 1299, true},
		{"1.234.567", 1234567, true},
		{"$49.", 49, true},
		{"Free", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := ParsePrice(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("ParsePrice(%q) ok = %v, want %v", tt.text, ok, tt.wantOK)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ParsePrice(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestParseRating(t *testing.T) {
	tests := []struct {
		text   string
		want   float64
		wantOK bool
	}{
		{"4.5 out of 5 stars", 4.5, true},
		{"4,3", 4.3, true},
		{"90%", 4.5, true},
		{"150", 0, false},
		{"no rating", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseRating(tt.text)
		if ok != tt.wantOK || math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ParseRating(%q) = (%v, %v), want (%v, %v)", tt.text, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		text   string
		want   int
		wantOK bool
	}{
		{"(1,847)", 1847, true},
		{"1,847 ratings", 1847, true},
		{"1.5K reviews", 1500, true},
		{"12", 12, true},
		{"none", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseCount(tt.text)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseCount(%q) = (%d, %v), want (%d, %v)", tt.text, got, ok, tt.want, tt.wantOK)
		}
	}
}
