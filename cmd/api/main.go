package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/reikki7/tokopedia-products-scraper/internal/api"
	"github.com/reikki7/tokopedia-products-scraper/internal/browser"
	"github.com/reikki7/tokopedia-products-scraper/internal/config"
	"github.com/reikki7/tokopedia-products-scraper/internal/database"
	"github.com/reikki7/tokopedia-products-scraper/internal/events"
	"github.com/reikki7/tokopedia-products-scraper/internal/jobs"
	"github.com/reikki7/tokopedia-products-scraper/internal/parser"
	"github.com/reikki7/tokopedia-products-scraper/internal/ratelimit"
	"github.com/reikki7/tokopedia-products-scraper/internal/scraper"
	"github.com/reikki7/tokopedia-products-scraper/pkg/logger"
)

// main stays a thin shell around run so the deferred browser, database and
// Redis teardown all fire before the process exits.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Browser setup. One shared browser; each run opens its own page.
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

	// Optional persistence stack: records, run history, outbox relay.
	var db *database.DB
	var relay *database.Relay
	var publisher *events.Publisher

	if cfg.Database.Enabled {
		db, err = database.New(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Name,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		publisher = events.NewPublisher(db, logger)

		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}

		relay = database.NewRelay(db, redisClient, logger, database.RelayConfig{})
		go func() {
			if err := relay.Start(ctx); err != nil && err != context.Canceled {
				logger.Error("relay stopped with error", "error", err)
			}
		}()
	}

	p := parser.NewTokopediaParser()

	runner := func(runCtx context.Context, scfg config.ScraperConfig) (*scraper.RunResult, error) {
		session, err := b.NewSession()
		if err != nil {
			return nil, fmt.Errorf("failed to open session: %w", err)
		}
		defer session.Close()

		limiter := ratelimit.NewAdaptiveRateLimiter(scfg.ProductDelay, scfg.ProductDelay*2)
		orchestrator := scraper.NewOrchestrator(session, p, scfg, limiter)

		var historyID string
		if db != nil {
			historyID = uuid.New().String()
			row := &database.RunRow{
				ID:          historyID,
				SearchURLs:  scfg.SearchURLs,
				MaxProducts: scfg.MaxProducts,
			}
			if err := db.InsertRun(runCtx, row); err != nil {
				logger.Error("failed to record run", "error", err)
				historyID = ""
			} else if err := db.MarkRunStarted(runCtx, historyID); err != nil {
				logger.Error("failed to mark run started", "error", err)
			}
		}

		result, runErr := orchestrator.Run(runCtx)

		if db != nil && result != nil {
			for i := range result.Records {
				if err := publisher.PublishProductScraped(runCtx, &result.Records[i]); err != nil {
					logger.Error("failed to publish record",
						"url", result.Records[i].ProductURL, "error", err)
				}
			}
		}

		// Run history is finalized even when the run context was cancelled.
		if historyID != "" {
			finishCtx, finishCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer finishCancel()

			if runErr != nil {
				if err := db.MarkRunFailed(finishCtx, historyID, runErr); err != nil {
					logger.Error("failed to mark run failed", "error", err)
				}
			} else {
				collected, detailed := 0, 0
				if result != nil {
					collected = result.Summary.ProductsCollected
					detailed = result.Summary.ProductsWithDetails
				}
				if err := db.MarkRunCompleted(finishCtx, historyID, collected, detailed); err != nil {
					logger.Error("failed to mark run completed", "error", err)
				}
			}
		}

		return result, runErr
	}

	runManager := jobs.NewManager(cfg.Scraper, runner, logger)
	go runManager.Start(ctx)

	handlers := api.NewHandlers(runManager, logger)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		health := map[string]interface{}{
			"status": "ok",
		}
		status := http.StatusOK

		if relay != nil {
			pendingCount, _ := relay.GetPendingCount(r.Context())
			deadLetterCount, _ := relay.GetDeadLetterCount(r.Context())

			health["outbox"] = map[string]interface{}{
				"pending":     pendingCount,
				"dead_letter": deadLetterCount,
			}

			if pendingCount > 1000 {
				health["status"] = "warning"
				health["message"] = "High number of pending outbox events"
			}
			if deadLetterCount > 100 {
				health["status"] = "error"
				health["message"] = "High number of dead letter events"
				status = http.StatusServiceUnavailable
			}
		}

		w.WriteHeader(status)
		json.NewEncoder(w).Encode(health)
	})

	r.Route("/api/v1", handlers.Routes)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
