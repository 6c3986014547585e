package models

import (
	"time"
)

// BasicProduct is one search-result card. The JSON field names are a
// compatibility contract with the downstream export format.
type BasicProduct struct {
	Title                  string   `json:"title"`
	Label                  string   `json:"label"`
	DisplayedPriceFinal    int      `json:"displayed_price_final"`
	DisplayedPriceOriginal int      `json:"displayed_price_original"`
	Discount               int      `json:"discount"`
	ImageURL               string   `json:"image_url"`
	SellerName             string   `json:"seller_name"`
	Location               string   `json:"location"`
	ProductRating          *float64 `json:"product_rating"`
	SoldCount              *string  `json:"sold_count"`
	ProductURL             string   `json:"product_url"`
}

// ProductRecord is the merged output record: the basic fields at top level
// plus the detail object collected from the product page. Details stays nil
// when detail collection failed for this product.
type ProductRecord struct {
	BasicProduct
	Details *ProductDetails `json:"details"`
}

// ProductDetails holds everything collected from a single product page.
type ProductDetails struct {
	Variants                map[string][]string  `json:"variants"`
	AvailableVariantDetails []VariantCombination `json:"available_variant_details"`
	Description             string               `json:"description"`
	SellerRating            float64              `json:"seller_rating"`
	Condition               string               `json:"condition"`
	MinOrder                int                  `json:"min_order"`
	Collection              []CollectionLink     `json:"collection"`
	DeliveryOrigin          string               `json:"delivery_origin"`
	DetailImages            []ImageSet           `json:"detail_images"`
	Reviews                 []Review             `json:"reviews"`
}

// NewProductDetails returns details with every collection initialized, so a
// partially-extracted product still marshals with empty arrays instead of null.
func NewProductDetails() *ProductDetails {
	return &ProductDetails{
		Variants:                make(map[string][]string),
		AvailableVariantDetails: make([]VariantCombination, 0),
		Collection:              make([]CollectionLink, 0),
		DetailImages:            make([]ImageSet, 0),
		Reviews:                 make([]Review, 0),
	}
}

// VariantDimension is one selectable product attribute with its options in
// display order. Option order drives the combination traversal order.
type VariantDimension struct {
	Name    string
	Options []string
}

// VariantCombination is one concrete selection across all dimensions with the
// price/stock state observed while that selection was active.
type VariantCombination struct {
	VariantOptions  map[string]string `json:"variant_options"`
	FinalPrice      int               `json:"final_price"`
	OriginalPrice   int               `json:"original_price"`
	Stock           int               `json:"stock"`
	DiscountPercent float64           `json:"discount_percent"`
}

// CollectionLink is one "Etalase" entry on the product page.
type CollectionLink struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// ImageSet pairs the thumbnail URLs with their higher-resolution previews.
type ImageSet struct {
	Thumbnail []string `json:"thumbnail"`
	Preview   []string `json:"preview"`
}

// Review is a single product review. Pointer fields marshal as null when the
// element was observed but the value was absent.
type Review struct {
	UserName *string  `json:"user_name"`
	Variant  *string  `json:"variant"`
	Rating   *float64 `json:"rating"`
	TimeAgo  *string  `json:"time_ago"`
	Text     string   `json:"text"`
	ImageURL *string  `json:"image_url"`
}

// DedupKey derives the review identity used across pages. Reviews carry no
// stable server-side id, so user, text and relative time stand in for one.
func (r *Review) DedupKey() string {
	return deref(r.UserName) + "\x00" + r.Text + "\x00" + deref(r.TimeAgo)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// RunSummary describes the outcome of one orchestrated run.
type RunSummary struct {
	SearchURLs          int       `json:"search_urls"`
	ProductsCollected   int       `json:"products_collected"`
	ProductsWithDetails int       `json:"products_with_details"`
	ProductsWithReviews int       `json:"products_with_reviews"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at"`
}

func (p *BasicProduct) Validate() []string {
	var errs []string

	if p.Title == "" {
		errs = append(errs, "title is required")
	}

	if p.ProductURL == "" {
		errs = append(errs, "product URL is required")
	}

	return errs
}

// Summarize computes the run summary for a finished record set.
func Summarize(records []ProductRecord, urls int, started, finished time.Time) RunSummary {
	s := RunSummary{
		SearchURLs:        urls,
		ProductsCollected: len(records),
		StartedAt:         started,
		FinishedAt:        finished,
	}
	for _, r := range records {
		if r.Details != nil {
			s.ProductsWithDetails++
			if len(r.Details.Reviews) > 0 {
				s.ProductsWithReviews++
			}
		}
	}
	return s
}
