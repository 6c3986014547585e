package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/reikki7/tokopedia-products-scraper/internal/models"
	"github.com/reikki7/tokopedia-products-scraper/internal/parser"
)

const descriptionExpandSelector = `button:has-text("Lihat Selengkapnya")`

// DetailCollector loads one product page and assembles its detail object:
// static fields, the variant combination walk, and the review pages.
type DetailCollector struct {
	session Session
	parser  parser.Parser
	logger  *slog.Logger

	variants *VariantResolver
	reviews  *ReviewsCollector

	scrollDuration time.Duration
}

func NewDetailCollector(session Session, p parser.Parser, variants *VariantResolver, reviews *ReviewsCollector, scrollDuration time.Duration) *DetailCollector {
	return &DetailCollector{
		session:        session,
		parser:         p,
		logger:         slog.Default().With("component", "detail"),
		variants:       variants,
		reviews:        reviews,
		scrollDuration: scrollDuration,
	}
}

// Collect returns nil only when the product page itself cannot be loaded.
// Every extraction step after navigation is best effort: a failing step is
// logged and the remaining steps still run, so the record keeps whatever was
// collected.
func (c *DetailCollector) Collect(ctx context.Context, productURL string) *models.ProductDetails {
	if err := c.session.Navigate(ctx, productURL); err != nil {
		c.logger.Error("product page failed to load", "url", productURL, "error", err)
		return nil
	}

	details := models.NewProductDetails()

	c.session.TriggerIncrementalLoad(c.scrollDuration)

	if expanded, err := c.session.ClickIfPresent(descriptionExpandSelector); err != nil {
		c.logger.Debug("description expander click failed", "error", err)
	} else if expanded {
		c.logger.Debug("description expanded")
	}

	html, err := c.session.Snapshot()
	if err != nil {
		c.logger.Error("product snapshot failed", "url", productURL, "error", err)
		return details
	}

	info := c.parser.ParseProductInfo(html)
	details.Description = info.Description
	details.SellerRating = info.SellerRating
	details.Condition = info.Condition
	details.MinOrder = info.MinOrder
	details.Collection = info.Collection
	details.DeliveryOrigin = info.DeliveryOrigin
	details.DetailImages = info.DetailImages

	variants, combos, err := c.variants.Resolve(ctx)
	if err != nil {
		c.logger.Error("variant walk incomplete", "url", productURL, "error", err)
	}
	if variants != nil {
		details.Variants = variants
	}
	if combos != nil {
		details.AvailableVariantDetails = combos
	}

	details.Reviews = c.reviews.Collect(ctx)

	c.logger.Info("product detail collected",
		"url", productURL,
		"dimensions", len(details.Variants),
		"combinations", len(details.AvailableVariantDetails),
		"reviews", len(details.Reviews))

	return details
}
