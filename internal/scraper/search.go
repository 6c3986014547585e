package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/reikki7/tokopedia-products-scraper/internal/models"
	"github.com/reikki7/tokopedia-products-scraper/internal/parser"
)

const searchCardWaitSelector = "[data-testid='divSRPContentProducts']"

// SearchResult is everything one search URL yields: the deduplicated cards
// plus the page-one provenance data.
type SearchResult struct {
	Products []models.BasicProduct
	Label    string
	Filters  []string
	Strategy string
	Pages    int
}

// SearchCollector walks the numbered result pages of one search URL and
// accumulates listing cards until a stop condition fires.
type SearchCollector struct {
	session Session
	parser  parser.Parser
	logger  *slog.Logger

	maxPages       int
	scrollDuration time.Duration
}

func NewSearchCollector(session Session, p parser.Parser, maxPages int, scrollDuration time.Duration) *SearchCollector {
	return &SearchCollector{
		session:        session,
		parser:         p,
		logger:         slog.Default().With("component", "search"),
		maxPages:       maxPages,
		scrollDuration: scrollDuration,
	}
}

// Collect paginates through searchURL gathering up to maxProducts cards.
// Stop conditions, in order of precedence: context cancellation, the product
// cap, the page cap, and a page that yields no new products. A page that
// fails to load ends the loop with whatever was already collected.
func (c *SearchCollector) Collect(ctx context.Context, searchURL string, maxProducts int) (*SearchResult, error) {
	result := &SearchResult{
		Products: make([]models.BasicProduct, 0, maxProducts),
	}
	seen := make(map[string]struct{})

	var sessionErr error

	for page := 1; page <= c.maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		pageURL, err := buildPageURL(searchURL, page)
		if err != nil {
			return result, err
		}

		c.logger.Info("loading search page", "page", page, "url", pageURL)

		if err := c.session.Navigate(ctx, pageURL); err != nil {
			c.logger.Error("search page failed to load, keeping partial results",
				"page", page, "error", err)
			sessionErr = fmt.Errorf("%w: page %d: %v", ErrNavigationFailed, page, err)
			break
		}

		// Best effort: lazily rendered grids still produce cards after the
		// scroll pass even when this wait times out.
		if err := c.session.WaitVisible(searchCardWaitSelector, 10*time.Second); err != nil {
			c.logger.Debug("card container wait timed out", "page", page)
		}

		c.session.TriggerIncrementalLoad(c.scrollDuration)

		html, err := c.session.Snapshot()
		if err != nil {
			c.logger.Error("snapshot failed, keeping partial results", "page", page, "error", err)
			sessionErr = fmt.Errorf("%w: page %d: %v", ErrNavigationFailed, page, err)
			break
		}

		if page == 1 {
			result.Label = c.parser.SearchLabel(html, c.session.CurrentURL())
			result.Filters = c.parser.ActiveFilters(html)
		}

		cards, strategy := c.parser.ParseSearchCards(html)
		if strategy != "" {
			result.Strategy = strategy
		}

		added := 0
		for _, card := range cards {
			if len(card.Validate()) > 0 {
				continue
			}
			if _, dup := seen[card.ProductURL]; dup {
				continue
			}
			seen[card.ProductURL] = struct{}{}

			card.Label = result.Label
			result.Products = append(result.Products, card)
			added++

			if len(result.Products) >= maxProducts {
				break
			}
		}

		result.Pages = page
		c.logger.Info("search page parsed",
			"page", page, "cards", len(cards), "new", added, "total", len(result.Products))

		if len(result.Products) >= maxProducts {
			break
		}
		if added == 0 {
			c.logger.Info("no new products on page, stopping pagination", "page", page)
			break
		}
	}

	// A search that produced nothing because the session broke is reported as
	// a session failure, not as an empty result set.
	if len(result.Products) == 0 {
		if sessionErr != nil {
			return result, sessionErr
		}
		return result, fmt.Errorf("%w: %s", ErrNoProducts, searchURL)
	}

	return result, nil
}
