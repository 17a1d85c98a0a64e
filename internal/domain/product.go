package domain

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	// MaxTitleLength is the longest title a ProductRecord may carry
	MaxTitleLength = 255
	// MaxDescriptionLength is the longest description a ProductRecord may carry
	MaxDescriptionLength = 2000
	// MaxRating is the top of the rating scale
	MaxRating = 5.0
)

// Merchant identifies the retailer a product URL belongs to
type Merchant string

const (
	MerchantAmazon    Merchant = "amazon"
	MerchantHomeDepot Merchant = "home_depot"
	MerchantLowes     Merchant = "lowes"
	MerchantWalmart   Merchant = "walmart"
	MerchantOther     Merchant = "other"
)

// Valid reports whether m is in the merchant vocabulary
func (m Merchant) Valid() bool {
	switch m {
	case MerchantAmazon, MerchantHomeDepot, MerchantLowes, MerchantWalmart, MerchantOther:
		return true
	}
	return false
}

// DisplayName returns the human-readable merchant name
func (m Merchant) DisplayName() string {
	switch m {
	case MerchantAmazon:
		return "Amazon"
	case MerchantHomeDepot:
		return "Home Depot"
	case MerchantLowes:
		return "Lowes"
	case MerchantWalmart:
		return "Walmart"
	}
	return "Other"
}

// Category is the closed product category vocabulary
type Category string

const (
	CategoryTools       Category = "tools"
	CategoryMaterials   Category = "materials"
	CategorySafety      Category = "safety"
	CategoryAccessories Category = "accessories"
	CategoryOther       Category = "other"
)

// Valid reports whether c is in the category vocabulary
func (c Category) Valid() bool {
	switch c {
	case CategoryTools, CategoryMaterials, CategorySafety, CategoryAccessories, CategoryOther:
		return true
	}
	return false
}

// ProjectType tags a product with a DIY use-case
type ProjectType string

const (
	ProjectWoodworking     ProjectType = "woodworking"
	ProjectElectrical      ProjectType = "electrical"
	ProjectPlumbing        ProjectType = "plumbing"
	ProjectGeneral         ProjectType = "general"
	ProjectHomeImprovement ProjectType = "home_improvement"
)

// Valid reports whether p is in the project type vocabulary
func (p ProjectType) Valid() bool {
	switch p {
	case ProjectWoodworking, ProjectElectrical, ProjectPlumbing, ProjectGeneral, ProjectHomeImprovement:
		return true
	}
	return false
}

// ExtractionMethod records which strategy produced a record. The three
// values double as the strategy identifiers used by the coordinator.
type ExtractionMethod string

const (
	MethodLLMVision    ExtractionMethod = "llm_vision"
	MethodHTTPScrape   ExtractionMethod = "http_scrape"
	MethodURLHeuristic ExtractionMethod = "url_heuristic"
)

// Valid reports whether m is a known extraction method
func (m ExtractionMethod) Valid() bool {
	switch m {
	case MethodLLMVision, MethodHTTPScrape, MethodURLHeuristic:
		return true
	}
	return false
}

// ProductRecord is the canonical, normalized product description
type ProductRecord struct {
	ProductURL         string           `json:"product_url"`
	Merchant           Merchant         `json:"merchant"`
	Title              string           `json:"title"`
	Description        *string          `json:"description"`
	Category           Category         `json:"category"`
	Brand              *string          `json:"brand"`
	Model              *string          `json:"model"`
	OriginalPrice      *float64         `json:"original_price"`
	SalePrice          *float64         `json:"sale_price"`
	DiscountPercentage *int             `json:"discount_percentage"`
	Rating             *float64         `json:"rating"`
	RatingCount        *int             `json:"rating_count"`
	ImageURL           *string          `json:"image_url"`
	ProjectTypes       []ProjectType    `json:"project_types"`
	ExtractionMethod   ExtractionMethod `json:"extraction_method"`
}

// DiscountFor derives the discount percentage from a list/sale price pair.
// It returns nil unless both prices are present.
func DiscountFor(original, sale *float64) *int {
	if original == nil || sale == nil {
		return nil
	}
	d := 0
	if *original > 0 {
		d = int(math.Round((*original - *sale) / *original * 100))
	}
	if d < 0 {
		d = 0
	}
	if d > 100 {
		d = 100
	}
	return &d
}

// Validate checks every record invariant. preservedURL is the exact input
// URL the record must carry.
func (r *ProductRecord) Validate(preservedURL string) error {
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if r.ProductURL != preservedURL {
		return fmt.Errorf("%w: product_url was modified", ErrInvalidRecord)
	}
	if !r.Merchant.Valid() {
		return fmt.Errorf("%w: merchant %q", ErrInvalidRecord, r.Merchant)
	}
	title := strings.TrimSpace(r.Title)
	if title == "" || title != r.Title {
		return fmt.Errorf("%w: title must be non-empty and trimmed", ErrInvalidRecord)
	}
	if utf8.RuneCountInString(r.Title) > MaxTitleLength {
		return fmt.Errorf("%w: title longer than %d", ErrInvalidRecord, MaxTitleLength)
	}
	if r.Description != nil && utf8.RuneCountInString(*r.Description) > MaxDescriptionLength {
		return fmt.Errorf("%w: description longer than %d", ErrInvalidRecord, MaxDescriptionLength)
	}
	if !r.Category.Valid() {
		return fmt.Errorf("%w: category %q", ErrInvalidRecord, r.Category)
	}
	if err := validPrice("original_price", r.OriginalPrice); err != nil {
		return err
	}
	if err := validPrice("sale_price", r.SalePrice); err != nil {
		return err
	}
	if r.OriginalPrice != nil && r.SalePrice != nil && *r.SalePrice > *r.OriginalPrice {
		return fmt.Errorf("%w: sale_price above original_price", ErrInvalidRecord)
	}
	if (r.DiscountPercentage != nil) != (r.OriginalPrice != nil && r.SalePrice != nil) {
		return fmt.Errorf("%w: discount_percentage requires both prices", ErrInvalidRecord)
	}
	if r.DiscountPercentage != nil && *r.DiscountPercentage != *DiscountFor(r.OriginalPrice, r.SalePrice) {
		return fmt.Errorf("%w: discount_percentage does not match prices", ErrInvalidRecord)
	}
	if r.Rating != nil && (math.IsNaN(*r.Rating) || *r.Rating < 0 || *r.Rating > MaxRating) {
		return fmt.Errorf("%w: rating out of range", ErrInvalidRecord)
	}
	if r.RatingCount != nil && *r.RatingCount < 0 {
		return fmt.Errorf("%w: negative rating_count", ErrInvalidRecord)
	}
	if r.ImageURL != nil && !IsAbsoluteURL(*r.ImageURL) {
		return fmt.Errorf("%w: image_url must be absolute", ErrInvalidRecord)
	}
	for _, p := range r.ProjectTypes {
		if !p.Valid() {
			return fmt.Errorf("%w: project type %q", ErrInvalidRecord, p)
		}
	}
	if !r.ExtractionMethod.Valid() {
		return fmt.Errorf("%w: extraction_method %q", ErrInvalidRecord, r.ExtractionMethod)
	}
	return nil
}

func validPrice(field string, p *float64) error {
	if p == nil {
		return nil
	}
	if math.IsNaN(*p) || math.IsInf(*p, 0) || *p < 0 {
		return fmt.Errorf("%w: %s must be a non-negative number", ErrInvalidRecord, field)
	}
	return nil
}

// IsAbsoluteURL reports whether raw parses with both scheme and host
func IsAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}
