package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/reikki7/tokopedia-products-scraper/internal/models"
	"github.com/reikki7/tokopedia-products-scraper/internal/parser"
)

const reviewSectionSelector = "article[class*='css-15m2bcr']"

// ReviewsCollector paginates the review widget of the currently loaded
// product page. The dedup set is scoped to one Collect call, so a review
// repeated across pages or re-renders of the same product is recorded once,
// while an identical review on a different product still counts.
type ReviewsCollector struct {
	session Session
	parser  parser.Parser
	logger  *slog.Logger

	maxPages int
}

func NewReviewsCollector(session Session, p parser.Parser, maxPages int) *ReviewsCollector {
	return &ReviewsCollector{
		session:  session,
		parser:   p,
		logger:   slog.Default().With("component", "reviews"),
		maxPages: maxPages,
	}
}

// Collect reads review pages until the page cap, a missing or disabled next
// button, or two consecutive pages with no unseen reviews. Never fails: any
// error ends the loop with the reviews gathered so far.
func (c *ReviewsCollector) Collect(ctx context.Context) []models.Review {
	reviews := make([]models.Review, 0)
	if c.maxPages <= 0 {
		return reviews
	}

	seen := make(map[string]struct{})

	if err := c.session.WaitVisible(reviewSectionSelector, 5*time.Second); err != nil {
		c.logger.Debug("review section not found")
		return reviews
	}

	staleStreak := 0
	for page := 1; page <= c.maxPages; page++ {
		if ctx.Err() != nil {
			return reviews
		}

		html, err := c.session.Snapshot()
		if err != nil {
			c.logger.Error("review snapshot failed", "page", page, "error", err)
			return reviews
		}

		added := 0
		for _, review := range c.parser.ParseReviews(html) {
			key := review.DedupKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			reviews = append(reviews, review)
			added++
		}

		c.logger.Debug("review page parsed", "page", page, "new", added, "total", len(reviews))

		if added == 0 {
			staleStreak++
			// Two identical pages in a row means the pagination is looping.
			if staleStreak >= 2 {
				c.logger.Info("review pagination stalled, stopping", "page", page)
				return reviews
			}
		} else {
			staleStreak = 0
		}

		if page == c.maxPages {
			break
		}

		clicked, err := c.session.NextReviewPage()
		if err != nil {
			c.logger.Error("review pagination failed", "page", page, "error", err)
			return reviews
		}
		if !clicked {
			return reviews
		}
	}

	return reviews
}
