package usecase

import "github.com/diysmart/productinfo/internal/domain"

// SelectorVersion identifies the selector tables below. Bump it whenever a
// merchant layout change forces an edit.
const SelectorVersion = "2025.06"

// selectorSet lists CSS selectors per field, tried in order. A selector
// suffixed with @attr reads that attribute instead of the element text.
type selectorSet struct {
	Title       []string
	Price       []string
	ListPrice   []string
	Rating      []string
	RatingCount []string
	Image       []string
	Brand       []string
	Model       []string
	Description []string
	Breadcrumb  []string
}

var merchantSelectors = map[domain.Merchant]selectorSet{
	domain.MerchantAmazon: {
		Title: []string{"#productTitle", "h1#title span", "h1#title"},
		Price: []string{
			"#corePrice_feature_div .a-price .a-offscreen",
			"#corePriceDisplay_desktop_feature_div .a-price .a-offscreen",
			"#priceblock_dealprice",
			"#priceblock_ourprice",
			".a-price-whole",
		},
		ListPrice: []string{
			"#corePriceDisplay_desktop_feature_div .a-text-price .a-offscreen",
			".basisPrice .a-offscreen",
			"#listPrice",
		},
		Rating:      []string{"#acrPopover@title", "#acrPopover .a-icon-alt", ".a-icon-alt"},
		RatingCount: []string{"#acrCustomerReviewText"},
		Image:       []string{"#landingImage@data-old-hires", "#landingImage@src", "#imgBlkFront@src"},
		Brand:       []string{"#bylineInfo"},
		Description: []string{"#feature-bullets ul", "#productDescription"},
		Breadcrumb:  []string{"#wayfinding-breadcrumbs_feature_div ul li a"},
	},
	domain.MerchantHomeDepot: {
		Title:       []string{"h1.product-details__title", "[data-testid='product-title']", "h1"},
		Price:       []string{".price-format__main-price", "[data-testid='price'] .price", "[data-testid='price']", ".price"},
		ListPrice:   []string{".price-detailed__was-price .u__strike", ".price-format__was-price", "[data-testid='was-price']"},
		Rating:      []string{"[aria-label*='out of 5']@aria-label", ".ratings-reviews__rating"},
		RatingCount: []string{".product-details__review-count", "[data-testid='ratings-count']"},
		Image:       []string{"img.mediagallery__mainimage@src", "[data-testid='media-gallery'] img@src"},
		Brand:       []string{".product-details__brand--link", "[data-testid='product-brand']"},
		Model:       []string{".product-info-bar__detail--model", "[data-testid='model-number']"},
		Breadcrumb:  []string{".breadcrumb__item a", "nav[aria-label='breadcrumb'] a"},
	},
	domain.MerchantLowes: {
		Title:       []string{"h1.product-brand-description", "[data-testid='product-title']", "h1"},
		Price:       []string{"[data-testid='product-price']", ".main-price", ".art-pd-price"},
		ListPrice:   []string{"[data-testid='was-price']", ".was-price"},
		Rating:      []string{"[aria-label*='out of 5']@aria-label", "[data-testid='avg-rating']"},
		RatingCount: []string{"[data-testid='review-count']", ".reviews-count"},
		Image:       []string{"img.primary-image@src", "[data-testid='product-image'] img@src"},
		Brand:       []string{".product-brand-name", "[data-testid='product-brand']"},
		Model:       []string{"[data-testid='model-number']"},
		Breadcrumb:  []string{"nav[aria-label='breadcrumb'] a"},
	},
	domain.MerchantWalmart: {
		Title:       []string{"h1[itemprop='name']", "[data-automation-id='product-title']", "h1#main-title", "h1"},
		Price:       []string{"[itemprop='price']", "[data-automation-id='product-price'] span", "[data-testid='price-wrap'] span"},
		ListPrice:   []string{"[data-testid='list-price']", ".strike"},
		Rating:      []string{"[data-testid='reviews-and-ratings'] .rating-number", "[aria-label*='out of 5']@aria-label"},
		RatingCount: []string{"[itemprop='ratingCount']", "[data-testid='item-review-section-link']"},
		Image:       []string{"[data-testid='hero-image-container'] img@src", "[data-automation-id='product-image'] img@src"},
		Brand:       []string{"[data-testid='product-brand']", "a[link-identifier='brandName']"},
		Breadcrumb:  []string{"nav[aria-label='breadcrumb'] a"},
	},
}

// genericSelectors run after the merchant set and JSON-LD have been tried
var genericSelectors = selectorSet{
	Title:       []string{"meta[property='og:title']@content", "[data-testid='product-title']", "title"},
	Price:       []string{"meta[property='product:price:amount']@content", "meta[itemprop='price']@content", ".product-price", ".price"},
	Image:       []string{"meta[property='og:image']@content", ".product-image img@src"},
	Description: []string{"meta[property='og:description']@content", "meta[name='description']@content"},
	Brand:       []string{"meta[property='product:brand']@content", "[itemprop='brand']"},
}

// interstitialTitles are the <title> texts of anti-bot pages served with a 200
var interstitialTitles = []string{
	"robot check",
	"access denied",
	"are you a human?",
	"are you a robot?",
	"robot or human?",
	"pardon our interruption",
}

// interstitialSelectors match challenge widgets that never appear on product pages
var interstitialSelectors = []string{
	"#px-captcha",
	"form[action*='validateCaptcha']",
	"form[action*='validatecaptcha']",
	"#challenge-form",
}

// titleSuffixes are merchant boilerplate stripped from <title> fallbacks
var titleSuffixes = []string{
	" - The Home Depot",
	" - Lowes.com",
	" at Lowes.com",
	" - Walmart.com",
}

var titlePrefixes = []string{
	"Amazon.com: ",
	"Amazon.com : ",
}
