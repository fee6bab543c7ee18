package model

import (
	"strings"
	"time"
)

// GTINNotFound is the sentinel stored in Product.GTINSource after every
// search strategy has been exhausted. It marks the product as already
// attempted so the stage gate will not retry it without --force.
const GTINNotFound = "NOT_FOUND"

// Product is the master catalog record and the unit of work for every
// enrichment stage. Each enrichment field stays empty until its producing
// stage succeeds; a non-empty field is never overwritten unless the stage
// runs with force.
type Product struct {
	ID             int64             `json:"id"`
	Code           string            `json:"code"`
	Description    string            `json:"description"`
	NormalizedName string            `json:"normalized_name"`
	SKU            string            `json:"sku"`
	ModelName      string            `json:"model_name"`
	Price          float64           `json:"price"`
	Category       string            `json:"category"`
	Specs          map[string]string `json:"specs"`
	GTIN           string            `json:"gtin"`
	GTINSource     string            `json:"gtin_source"`
	SEOTitle       string            `json:"seo_title"`
	SEODescription string            `json:"seo_description"`
	IsActive       bool              `json:"is_active"`
	IsEligible     bool              `json:"is_eligible"`
	ImageCount     int               `json:"image_count"`
	LastUpdated    time.Time         `json:"last_updated"`
}

// BrandFromSpecs looks up a brand-like key in the specs mapping.
// Supplier data mixes English and Spanish labels.
func (p *Product) BrandFromSpecs() string {
	for k, v := range p.Specs {
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "brand", "marca":
			if v != "" {
				return v
			}
		}
	}
	return ""
}

// DetailScrape is a raw supplemental scrape payload for a product, used as a
// fallback data source by spec extraction and GTIN search. Read-only to the
// enrichment core.
type DetailScrape struct {
	ID         int64             `json:"id"`
	ProductID  int64             `json:"product_id"`
	Name       string            `json:"name"`
	Price      float64           `json:"price"`
	Attributes map[string]string `json:"attributes"`
	ImageURLs  []string          `json:"image_urls"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ProductImage is one stored image for a product. Order 0 is the primary
// image and the only one that may have undergone background removal.
type ProductImage struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	URL       string    `json:"url"`
	Order     int       `json:"order"`
	Processed bool      `json:"processed"`
	CreatedAt time.Time `json:"created_at"`
}
