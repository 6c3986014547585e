package scraper

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reikki7/tokopedia-products-scraper/internal/config"
	"github.com/reikki7/tokopedia-products-scraper/internal/models"
	"github.com/reikki7/tokopedia-products-scraper/internal/parser"
	"github.com/reikki7/tokopedia-products-scraper/internal/ratelimit"
)

func testScraperConfig(urls []string, maxProducts int) config.ScraperConfig {
	return config.ScraperConfig{
		SearchURLs:      urls,
		MaxProducts:     maxProducts,
		MaxPages:        1,
		MaxReviewPages:  1,
		MaxCombinations: 60,
	}
}

func noDelayLimiter() ratelimit.RateLimiter {
	return ratelimit.NewSimpleRateLimiter(0, 0)
}

func TestOrchestratorBasicOnly(t *testing.T) {
	session := &fakeSession{}
	p := &fakeParser{
		label: "Sepatu Lari",
		cardsFn: func(html string) ([]models.BasicProduct, string) {
			return []models.BasicProduct{
				card("Sepatu A", "https://www.tokopedia.com/a"),
				card("Sepatu B", "https://www.tokopedia.com/b"),
			}, "primary"
		},
	}

	o := NewOrchestrator(session, p, testScraperConfig([]string{"https://www.tokopedia.com/search?q=sepatu"}, 10), noDelayLimiter())
	o.BasicOnly = true

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Records, 2)
	assert.Nil(t, result.Records[0].Details)
	assert.Equal(t, "Sepatu Lari", result.Records[0].Label)
	assert.Equal(t, 2, result.Summary.ProductsCollected)
	assert.Zero(t, result.Summary.ProductsWithDetails)
	// Only the search page was visited.
	assert.Len(t, session.navigated, 1)
}

func TestOrchestratorProductCapAcrossURLs(t *testing.T) {
	session := &fakeSession{}
	p := &fakeParser{
		cardsFn: func(html string) ([]models.BasicProduct, string) {
			url := session.currentURL
			return []models.BasicProduct{
				card("Produk Satu", url+"/1"),
				card("Produk Dua", url+"/2"),
			}, "primary"
		},
	}

	urls := []string{
		"https://www.tokopedia.com/search?q=satu",
		"https://www.tokopedia.com/search?q=dua",
	}
	o := NewOrchestrator(session, p, testScraperConfig(urls, 3), noDelayLimiter())
	o.BasicOnly = true

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	// Two from the first URL, one from the second.
	assert.Len(t, result.Records, 3)
	assert.Equal(t, 2, result.Summary.SearchURLs)
}

func TestOrchestratorKeepsDuplicatesAcrossURLs(t *testing.T) {
	session := &fakeSession{}
	p := &fakeParser{
		labelFn: func(_, currentURL string) string {
			if strings.Contains(currentURL, "q=satu") {
				return "Satu"
			}
			return "Dua"
		},
		cardsFn: func(html string) ([]models.BasicProduct, string) {
			// The same product ranks in both searches.
			return []models.BasicProduct{card("Produk", "https://www.tokopedia.com/toko/produk")}, "primary"
		},
	}

	urls := []string{
		"https://www.tokopedia.com/search?q=satu",
		"https://www.tokopedia.com/search?q=dua",
	}
	o := NewOrchestrator(session, p, testScraperConfig(urls, 5), noDelayLimiter())
	o.BasicOnly = true

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	// One record per search URL, each under its own label.
	require.Len(t, result.Records, 2)
	assert.Equal(t, result.Records[0].ProductURL, result.Records[1].ProductURL)
	assert.Equal(t, "Satu", result.Records[0].Label)
	assert.Equal(t, "Dua", result.Records[1].Label)
}

func TestOrchestratorCollectsDetails(t *testing.T) {
	session := &fakeSession{}
	p := &fakeParser{
		label: "Kemeja",
		cardsFn: func(html string) ([]models.BasicProduct, string) {
			return []models.BasicProduct{card("Kemeja A", "https://www.tokopedia.com/a")}, "primary"
		},
		info: &parser.ProductInfo{
			Description: "Bahan katun",
			Condition:   "Baru",
			MinOrder:    1,
		},
		stateFn: func(html string) (*parser.VariantState, error) {
			return &parser.VariantState{FinalPrice: 95000, OriginalPrice: 100000, Stock: 4}, nil
		},
		reviewsFn: func(html string) []models.Review {
			return []models.Review{review("Budi", "Bagus", "1 minggu lalu")}
		},
	}

	o := NewOrchestrator(session, p, testScraperConfig([]string{"https://www.tokopedia.com/search?q=kemeja"}, 5), noDelayLimiter())

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	details := result.Records[0].Details
	require.NotNil(t, details)
	assert.Equal(t, "Bahan katun", details.Description)
	require.Len(t, details.AvailableVariantDetails, 1)
	assert.Equal(t, 95000, details.AvailableVariantDetails[0].FinalPrice)
	assert.InDelta(t, 5.0, details.AvailableVariantDetails[0].DiscountPercent, 0.001)
	require.Len(t, details.Reviews, 1)

	assert.Equal(t, 1, result.Summary.ProductsWithDetails)
	assert.Equal(t, 1, result.Summary.ProductsWithReviews)
	// Search page plus the product page.
	assert.Len(t, session.navigated, 2)
}

// recordingLimiter counts the outcome signals the orchestrator emits.
type recordingLimiter struct {
	ratelimit.RateLimiter
	successes int
	failures  int
}

func (r *recordingLimiter) RecordSuccess() { r.successes++ }
func (r *recordingLimiter) RecordFailure() { r.failures++ }

func TestOrchestratorReportsPageOutcomesToLimiter(t *testing.T) {
	session := &fakeSession{}
	session.navigateFn = func(_ context.Context, url string) error {
		if url == "https://www.tokopedia.com/b" {
			return fmt.Errorf("net::ERR_TIMED_OUT")
		}
		return nil
	}
	p := &fakeParser{
		cardsFn: func(html string) ([]models.BasicProduct, string) {
			return []models.BasicProduct{
				card("Produk A", "https://www.tokopedia.com/a"),
				card("Produk B", "https://www.tokopedia.com/b"),
			}, "primary"
		},
	}

	limiter := &recordingLimiter{RateLimiter: noDelayLimiter()}
	o := NewOrchestrator(session, p, testScraperConfig([]string{"https://www.tokopedia.com/search?q=x"}, 5), limiter)

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Records, 2)
	assert.Equal(t, 1, limiter.successes)
	assert.Equal(t, 1, limiter.failures)
}

func TestOrchestratorFailedSearchURLDoesNotAbortRun(t *testing.T) {
	session := &fakeSession{}
	p := &fakeParser{
		cardsFn: func(html string) ([]models.BasicProduct, string) {
			if session.currentURL == "https://www.tokopedia.com/search?q=kosong" {
				return nil, ""
			}
			return []models.BasicProduct{card("Produk A", "https://www.tokopedia.com/a")}, "primary"
		},
	}

	urls := []string{
		"https://www.tokopedia.com/search?q=kosong",
		"https://www.tokopedia.com/search?q=ada",
	}
	o := NewOrchestrator(session, p, testScraperConfig(urls, 5), noDelayLimiter())
	o.BasicOnly = true

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Records, 1)
}

func TestOrchestratorCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := NewOrchestrator(&fakeSession{}, &fakeParser{}, testScraperConfig([]string{"https://www.tokopedia.com/search?q=x"}, 5), noDelayLimiter())
	result, err := o.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotNil(t, result)
	assert.Empty(t, result.Records)
	assert.WithinDuration(t, time.Now(), result.Summary.FinishedAt, time.Minute)
}
