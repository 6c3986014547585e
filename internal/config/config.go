package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Scraper  ScraperConfig
	Browser  BrowserConfig
	Output   OutputConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Logging  LoggingConfig
}

type ScraperConfig struct {
	SearchURLs      []string
	MaxProducts     int
	MaxPages        int
	MaxReviewPages  int
	MaxCombinations int
	ProductDelay    time.Duration
	ScrollDuration  time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	UserAgent      string
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
}

type OutputConfig struct {
	BaseDir string
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Scraper: ScraperConfig{
			SearchURLs:      getStringSliceOrDefault("SCRAPER_SEARCH_URLS", []string{}),
			MaxProducts:     getIntOrDefault("SCRAPER_MAX_PRODUCTS", 5),
			MaxPages:        getIntOrDefault("SCRAPER_MAX_PAGES", 2),
			MaxReviewPages:  getIntOrDefault("SCRAPER_MAX_REVIEW_PAGES", 2),
			MaxCombinations: getIntOrDefault("SCRAPER_MAX_COMBINATIONS", 60),
			ProductDelay:    getDurationOrDefault("SCRAPER_PRODUCT_DELAY", 500*time.Millisecond),
			ScrollDuration:  getDurationOrDefault("SCRAPER_SCROLL_DURATION", 3*time.Second),
			MaxRetries:      getIntOrDefault("SCRAPER_MAX_RETRIES", 3),
			RetryDelay:      getDurationOrDefault("SCRAPER_RETRY_DELAY", 2*time.Second),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", defaultUserAgent),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "id-ID,id;q=0.9,en;q=0.8"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Asia/Jakarta"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "id-ID"),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
		},
		Output: OutputConfig{
			BaseDir: getEnvOrDefault("OUTPUT_DIR", "output"),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", false),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "tokopedia_scraper"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 4)),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "stream:product_records"),
		},
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.MaxProducts < 1 {
		return fmt.Errorf("SCRAPER_MAX_PRODUCTS must be at least 1")
	}

	if c.Scraper.MaxPages < 1 {
		return fmt.Errorf("SCRAPER_MAX_PAGES must be at least 1")
	}

	if c.Scraper.MaxReviewPages < 0 {
		return fmt.Errorf("SCRAPER_MAX_REVIEW_PAGES cannot be negative")
	}

	if c.Scraper.MaxCombinations < 1 {
		return fmt.Errorf("SCRAPER_MAX_COMBINATIONS must be at least 1")
	}

	// Invalid search URLs are dropped, not fatal; the run continues with
	// whatever remains.
	valid := make([]string, 0, len(c.Scraper.SearchURLs))
	for _, raw := range c.Scraper.SearchURLs {
		if !IsValidURL(raw) {
			slog.Warn("dropping invalid search URL", "url", raw)
			continue
		}
		valid = append(valid, raw)
	}
	c.Scraper.SearchURLs = valid

	return nil
}

// IsValidURL reports whether raw parses as an absolute http(s) URL.
func IsValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
