package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/reikki7/tokopedia-products-scraper/internal/models"
	"github.com/reikki7/tokopedia-products-scraper/internal/parser"
)

// fakeSession scripts page behavior through function fields. Methods without
// a script are no-ops so each test only wires what it exercises.
type fakeSession struct {
	navigateFn   func(ctx context.Context, url string) error
	snapshotFn   func() (string, error)
	selectFn     func(dimension, option string) error
	nextReviewFn func() (bool, error)
	waitErr      error

	currentURL string
	navigated  []string
	selections []string
}

func (f *fakeSession) Navigate(ctx context.Context, url string) error {
	f.navigated = append(f.navigated, url)
	f.currentURL = url
	if f.navigateFn != nil {
		return f.navigateFn(ctx, url)
	}
	return nil
}

func (f *fakeSession) Snapshot() (string, error) {
	if f.snapshotFn != nil {
		return f.snapshotFn()
	}
	return "<html></html>", nil
}

func (f *fakeSession) CurrentURL() string { return f.currentURL }

func (f *fakeSession) TriggerIncrementalLoad(time.Duration) {}

func (f *fakeSession) WaitVisible(string, time.Duration) error { return f.waitErr }

func (f *fakeSession) SelectVariant(dimension, option string) error {
	f.selections = append(f.selections, dimension+"="+option)
	if f.selectFn != nil {
		return f.selectFn(dimension, option)
	}
	return nil
}

func (f *fakeSession) NextReviewPage() (bool, error) {
	if f.nextReviewFn != nil {
		return f.nextReviewFn()
	}
	return false, nil
}

func (f *fakeSession) ClickIfPresent(string) (bool, error) { return false, nil }

// fakeParser scripts extraction results, bypassing real HTML.
type fakeParser struct {
	cardsFn     func(html string) ([]models.BasicProduct, string)
	label       string
	labelFn     func(html, currentURL string) string
	filters     []string
	info        *parser.ProductInfo
	dims        []models.VariantDimension
	availableFn func(html, dimension string) []string
	stateFn     func(html string) (*parser.VariantState, error)
	reviewsFn   func(html string) []models.Review
}

func (f *fakeParser) ParseSearchCards(html string) ([]models.BasicProduct, string) {
	if f.cardsFn != nil {
		return f.cardsFn(html)
	}
	return nil, ""
}

func (f *fakeParser) SearchLabel(html, currentURL string) string {
	if f.labelFn != nil {
		return f.labelFn(html, currentURL)
	}
	return f.label
}

func (f *fakeParser) ActiveFilters(html string) []string { return f.filters }

func (f *fakeParser) ParseProductInfo(html string) *parser.ProductInfo {
	if f.info != nil {
		return f.info
	}
	return &parser.ProductInfo{}
}

func (f *fakeParser) ParseVariantDimensions(html string) []models.VariantDimension {
	return f.dims
}

func (f *fakeParser) AvailableOptions(html, dimension string) []string {
	if f.availableFn != nil {
		return f.availableFn(html, dimension)
	}
	return nil
}

func (f *fakeParser) ParseVariantState(html string) (*parser.VariantState, error) {
	if f.stateFn != nil {
		return f.stateFn(html)
	}
	return &parser.VariantState{FinalPrice: 1000, OriginalPrice: 1000, Stock: 1}, nil
}

func (f *fakeParser) ParseReviews(html string) []models.Review {
	if f.reviewsFn != nil {
		return f.reviewsFn(html)
	}
	return nil
}

func card(title, url string) models.BasicProduct {
	return models.BasicProduct{Title: title, ProductURL: url}
}

func TestBuildPageURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		page int
		want string
	}{
		{"page one untouched", "https://www.tokopedia.com/search?q=baju", 1, "https://www.tokopedia.com/search?q=baju"},
		{"appends page param", "https://www.tokopedia.com/search?q=baju", 2, "https://www.tokopedia.com/search?page=2&q=baju"},
		{"replaces existing page param", "https://www.tokopedia.com/search?q=baju&page=9", 3, "https://www.tokopedia.com/search?page=3&q=baju"},
		{"no query string", "https://www.tokopedia.com/p/fashion", 2, "https://www.tokopedia.com/p/fashion?page=2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildPageURL(tt.url, tt.page)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
