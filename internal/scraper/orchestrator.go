package scraper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/reikki7/tokopedia-products-scraper/internal/config"
	"github.com/reikki7/tokopedia-products-scraper/internal/models"
	"github.com/reikki7/tokopedia-products-scraper/internal/parser"
	"github.com/reikki7/tokopedia-products-scraper/internal/queue"
	"github.com/reikki7/tokopedia-products-scraper/internal/ratelimit"
)

// RunResult is the complete output of one orchestrated run.
type RunResult struct {
	Records      []models.ProductRecord `json:"records"`
	FiltersByURL map[string][]string    `json:"filters_by_url"`
	Summary      models.RunSummary      `json:"summary"`
}

// Orchestrator drives a whole run through one sequential session: the search
// phase fills the task queue, the detail phase drains it one product at a
// time.
type Orchestrator struct {
	session Session
	parser  parser.Parser
	cfg     config.ScraperConfig
	limiter ratelimit.RateLimiter
	logger  *slog.Logger

	// BasicOnly skips detail collection, emitting search cards only.
	BasicOnly bool
}

func NewOrchestrator(session Session, p parser.Parser, cfg config.ScraperConfig, limiter ratelimit.RateLimiter) *Orchestrator {
	return &Orchestrator{
		session: session,
		parser:  p,
		cfg:     cfg,
		limiter: limiter,
		logger:  slog.Default().With("component", "orchestrator"),
	}
}

// Run executes the search phase over every configured URL and then the
// detail phase over the queued products. The product cap applies across all
// search URLs combined; a product reachable from two search URLs is queued
// twice, each time under its own label. A failing search URL or product
// never aborts the run; cancellation ends it between steps with everything
// collected so far.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	started := time.Now()

	result := &RunResult{
		Records:      make([]models.ProductRecord, 0),
		FiltersByURL: make(map[string][]string, len(o.cfg.SearchURLs)),
	}

	tasks := queue.NewInMemoryQueue()
	// Dedup happens per search URL inside the collector, never across URLs,
	// so each queued task keeps its own card keyed by task ID.
	basics := make(map[string]models.BasicProduct)
	queued := 0

	for _, searchURL := range o.cfg.SearchURLs {
		if ctx.Err() != nil {
			break
		}

		remaining := o.cfg.MaxProducts - queued
		if remaining <= 0 {
			o.logger.Info("product cap reached, skipping remaining search URLs",
				"cap", o.cfg.MaxProducts)
			break
		}

		collector := NewSearchCollector(o.session, o.parser, o.cfg.MaxPages, o.cfg.ScrollDuration)
		searchResult, err := collector.Collect(ctx, searchURL, remaining)
		if err != nil && !errors.Is(err, context.Canceled) {
			o.logger.Error("search URL yielded nothing", "url", searchURL, "error", err)
		}
		if searchResult == nil {
			continue
		}

		result.FiltersByURL[searchURL] = searchResult.Filters

		for _, product := range searchResult.Products {
			task := &queue.Task{
				ID:        uuid.New().String(),
				URL:       product.ProductURL,
				Label:     product.Label,
				CreatedAt: time.Now(),
			}
			if err := tasks.Push(task); err != nil {
				o.logger.Error("failed to enqueue product", "url", product.ProductURL, "error", err)
				continue
			}
			basics[task.ID] = product
			queued++
		}
	}

	tasks.Close()

	o.logger.Info("search phase finished", "products", tasks.Size(), "urls", len(o.cfg.SearchURLs))

	reviews := NewReviewsCollector(o.session, o.parser, o.cfg.MaxReviewPages)
	variants := NewVariantResolver(o.session, o.parser, o.cfg.MaxCombinations)
	details := NewDetailCollector(o.session, o.parser, variants, reviews, o.cfg.ScrollDuration)

	for {
		if ctx.Err() != nil {
			break
		}

		task, err := tasks.Pop(ctx)
		if err != nil {
			break
		}

		basic, ok := basics[task.ID]
		if !ok {
			continue
		}

		record := models.ProductRecord{BasicProduct: basic}

		if !o.BasicOnly {
			if err := o.limiter.Wait(ctx); err != nil {
				result.Records = append(result.Records, record)
				break
			}
			record.Details = details.Collect(ctx, task.URL)

			// An adaptive limiter slows the next visits down while product
			// pages keep failing to load.
			if recorder, ok := o.limiter.(ratelimit.OutcomeRecorder); ok {
				if record.Details != nil {
					recorder.RecordSuccess()
				} else {
					recorder.RecordFailure()
				}
			}
		}

		result.Records = append(result.Records, record)
	}

	result.Summary = models.Summarize(result.Records, len(o.cfg.SearchURLs), started, time.Now())

	o.logger.Info("run finished",
		"products", result.Summary.ProductsCollected,
		"with_details", result.Summary.ProductsWithDetails,
		"with_reviews", result.Summary.ProductsWithReviews,
		"duration", time.Since(started).String())

	return result, ctx.Err()
}
