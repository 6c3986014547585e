package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/reikki7/tokopedia-products-scraper/internal/browser"
	"github.com/reikki7/tokopedia-products-scraper/internal/config"
	"github.com/reikki7/tokopedia-products-scraper/internal/parser"
	"github.com/reikki7/tokopedia-products-scraper/internal/scraper"
	"github.com/reikki7/tokopedia-products-scraper/pkg/logger"
)

// Quick search-page check: renders one search URL, walks its pages and prints
// what the card parser sees. Useful when Tokopedia rotates its markup.
func main() {
	if err := run(); err != nil {
		log.Fatalf("%v", err)
	}
}

func run() error {
	var (
		searchURL = flag.String("url", "", "Tokopedia search URL")
		maxPages  = flag.Int("pages", 1, "Maximum number of result pages")
		maxItems  = flag.Int("max", 20, "Maximum number of products")
		headless  = flag.Bool("headless", true, "Run browser in headless mode")
	)
	flag.Parse()

	if *searchURL == "" {
		flag.Usage()
		return fmt.Errorf("please provide a search URL with -url")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logger.New(cfg.Logging.Level, "text")
	logger.Info("checking search page", "url", *searchURL, "pages", *maxPages)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	b, err := browser.New(&browser.Options{
		Headless:       *headless && cfg.Browser.Headless,
		Timeout:        cfg.Browser.Timeout,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		UserAgent:      cfg.Browser.UserAgent,
		AcceptLanguage: cfg.Browser.AcceptLanguage,
		TimezoneID:     cfg.Browser.TimezoneID,
		Locale:         cfg.Browser.Locale,
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

	collector := scraper.NewSearchCollector(session, parser.NewTokopediaParser(), *maxPages, cfg.Scraper.ScrollDuration)

	result, err := collector.Collect(ctx, *searchURL, *maxItems)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	fmt.Printf("Label:    %s\n", result.Label)
	fmt.Printf("Strategy: %s\n", result.Strategy)
	fmt.Printf("Pages:    %d\n", result.Pages)
	if len(result.Filters) > 0 {
		fmt.Printf("Filters:  %v\n", result.Filters)
	}
	fmt.Printf("Products: %d\n", len(result.Products))
	fmt.Println("---")

	for i, product := range result.Products {
		fmt.Printf("%2d. %s\n", i+1, product.Title)
		fmt.Printf("    price=%d original=%d discount=%d%%\n",
			product.DisplayedPriceFinal, product.DisplayedPriceOriginal, product.Discount)
		fmt.Printf("    seller=%s location=%s\n", product.SellerName, product.Location)
		if product.ProductRating != nil {
			fmt.Printf("    rating=%.1f", *product.ProductRating)
			if product.SoldCount != nil {
				fmt.Printf(" sold=%s", *product.SoldCount)
			}
			fmt.Println()
		}
		fmt.Printf("    %s\n", product.ProductURL)
	}

	return nil
}
