package parser

import (
	"github.com/reikki7/tokopedia-products-scraper/internal/models"
)

// Parser extracts structured data from rendered page snapshots. Every method
// takes a full HTML snapshot so extraction stays a pure read over data and
// all selector fragility is confined to this package.
type Parser interface {
	// ParseSearchCards extracts listing cards from a search-results page.
	// The second return value is the card selector strategy that matched,
	// empty when no strategy yielded a card.
	ParseSearchCards(html string) ([]models.BasicProduct, string)

	// SearchLabel derives the provenance label for a search page, falling
	// back to the q= query parameter of currentURL.
	SearchLabel(html, currentURL string) string

	// ActiveFilters lists the filter chips active on a search page.
	ActiveFilters(html string) []string

	// ParseProductInfo extracts the static product-page fields.
	ParseProductInfo(html string) *ProductInfo

	// ParseVariantDimensions discovers variant dimensions in display order.
	ParseVariantDimensions(html string) []models.VariantDimension

	// AvailableOptions lists the currently selectable options of one
	// dimension, given the page state in html.
	AvailableOptions(html, dimension string) []string

	// ParseVariantState reads the resolved price/stock state for whatever
	// variant selection is active in html.
	ParseVariantState(html string) (*VariantState, error)

	// ParseReviews extracts all reviews visible on the current review page.
	ParseReviews(html string) []models.Review
}

// ProductInfo carries the static product-page fields that need no UI
// interaction to read.
type ProductInfo struct {
	Description    string
	SellerRating   float64
	Condition      string
	MinOrder       int
	Collection     []models.CollectionLink
	DeliveryOrigin string
	DetailImages   []models.ImageSet
}

// VariantState is the price/stock readout for the currently selected
// combination (or the page default when the product has no variants).
type VariantState struct {
	FinalPrice    int
	OriginalPrice int
	Stock         int
	OutOfStock    bool
	PriceIsRange  bool
	PageDiscount  float64
}

// selectorChain is an ordered list of CSS selectors tried until one yields a
// usable value. Markup drift is absorbed by appending selectors, not by
// changing control flow.
type selectorChain []string
