package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/reikki7/tokopedia-products-scraper/internal/browser"
	"github.com/reikki7/tokopedia-products-scraper/internal/config"
	"github.com/reikki7/tokopedia-products-scraper/internal/database"
	"github.com/reikki7/tokopedia-products-scraper/internal/events"
	"github.com/reikki7/tokopedia-products-scraper/internal/parser"
	"github.com/reikki7/tokopedia-products-scraper/internal/ratelimit"
	"github.com/reikki7/tokopedia-products-scraper/internal/scraper"
	"github.com/reikki7/tokopedia-products-scraper/internal/storage"
	"github.com/reikki7/tokopedia-products-scraper/pkg/logger"
)

// main stays a thin shell around run so every deferred close fires before
// the process exits.
func main() {
	if err := run(); err != nil {
		log.Fatalf("%v", err)
	}
}

func run() error {
	var (
		urls        = flag.String("urls", "", "Comma-separated list of Tokopedia search URLs")
		inputFile   = flag.String("file", "", "File containing search URLs (one per line)")
		maxProducts = flag.Int("max-products", 0, "Total product cap across all search URLs")
		output      = flag.String("output", "json", "Output format: json, csv, both")
		basic       = flag.Bool("basic", false, "Collect search cards only, skip product pages")
		headless    = flag.Bool("headless", true, "Run browser in headless mode")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if flagURLs, err := loadSearchURLs(*urls, *inputFile); err != nil {
		return fmt.Errorf("failed to load search URLs: %w", err)
	} else if len(flagURLs) > 0 {
		cfg.Scraper.SearchURLs = flagURLs
	}
	if *maxProducts > 0 {
		cfg.Scraper.MaxProducts = *maxProducts
	}
	cfg.Browser.Headless = *headless && cfg.Browser.Headless

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if len(cfg.Scraper.SearchURLs) == 0 {
		flag.Usage()
		return fmt.Errorf("no search URLs given, use -urls, -file, or SCRAPER_SEARCH_URLS")
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Starting Tokopedia products scraper",
		"urls", len(cfg.Scraper.SearchURLs),
		"max_products", cfg.Scraper.MaxProducts)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	b, err := browser.New(&browser.Options{
		Headless:       cfg.Browser.Headless,
		Timeout:        cfg.Browser.Timeout,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		UserAgent:      cfg.Browser.UserAgent,
		AcceptLanguage: cfg.Browser.AcceptLanguage,
		TimezoneID:     cfg.Browser.TimezoneID,
		Locale:         cfg.Browser.Locale,
		ProxyServer:    cfg.Browser.ProxyServer,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize browser: %w", err)
	}
	defer b.Close()

	session, err := b.NewSession()
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	limiter := ratelimit.NewAdaptiveRateLimiter(
		cfg.Scraper.ProductDelay,
		cfg.Scraper.ProductDelay*2,
	)

	orchestrator := scraper.NewOrchestrator(session, parser.NewTokopediaParser(), cfg.Scraper, limiter)
	orchestrator.BasicOnly = *basic

	result, runErr := orchestrator.Run(ctx)
	if runErr != nil && len(result.Records) == 0 {
		return fmt.Errorf("run produced nothing: %w", runErr)
	}
	if runErr != nil {
		logger.Warn("Run ended early, saving partial results", "error", runErr)
	}

	label := ""
	if len(result.Records) > 0 {
		label = result.Records[0].Label
	}

	manager := storage.NewDataManager(cfg.Output.BaseDir)
	paths, err := manager.Save(result.Records, label, *output)
	if err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}
	for _, path := range paths {
		logger.Info("Results written", "path", path)
	}

	if cfg.Database.Enabled {
		publishRecords(ctx, cfg, logger, result)
	}

	logger.Info("Scraping completed",
		"products", result.Summary.ProductsCollected,
		"with_details", result.Summary.ProductsWithDetails,
		"with_reviews", result.Summary.ProductsWithReviews)

	return nil
}

func loadSearchURLs(urls, inputFile string) ([]string, error) {
	var list []string

	if urls != "" {
		for _, raw := range strings.Split(urls, ",") {
			if raw = strings.TrimSpace(raw); raw != "" {
				list = append(list, raw)
			}
		}
	}

	if inputFile != "" {
		data, err := os.ReadFile(inputFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read input file: %w", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "#") {
				list = append(list, line)
			}
		}
	}

	return list, nil
}

// publishRecords upserts every record and queues its event in one transaction
// each, so the relay can push them to Redis later.
func publishRecords(ctx context.Context, cfg *config.Config, logger *slog.Logger, result *scraper.RunResult) {
	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		logger.Error("Failed to connect to database, skipping publish", "error", err)
		return
	}
	defer db.Close()

	publisher := events.NewPublisher(db, logger)

	published := 0
	for i := range result.Records {
		if err := publisher.PublishProductScraped(ctx, &result.Records[i]); err != nil {
			logger.Error("Failed to publish record",
				"url", result.Records[i].ProductURL, "error", err)
			continue
		}
		published++
	}

	logger.Info("Records published to outbox", "published", published, "total", len(result.Records))
}
