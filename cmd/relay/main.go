package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/reikki7/tokopedia-products-scraper/internal/config"
	"github.com/reikki7/tokopedia-products-scraper/internal/database"
	"github.com/reikki7/tokopedia-products-scraper/pkg/logger"
)

// Standalone outbox relay: moves pending product events from Postgres to the
// Redis stream. Run this next to the API server when publishing is enabled.
func main() {
	if err := run(); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := database.New(ctx, database.Config{
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

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	relay := database.NewRelay(db, redisClient, logger, database.RelayConfig{})

	logger.Info("relay starting", "stream", cfg.Redis.Stream)
	if err := relay.Start(ctx); err != nil && err != context.Canceled {
		return fmt.Errorf("relay stopped with error: %w", err)
	}

	logger.Info("relay stopped")
	return nil
}
