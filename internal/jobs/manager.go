package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reikki7/tokopedia-products-scraper/internal/config"
	"github.com/reikki7/tokopedia-products-scraper/internal/scraper"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"

	queueCapacity = 32
)

// ErrQueueFull is returned when the run queue cannot accept more work.
var ErrQueueFull = errors.New("run queue is full")

// ErrRunNotFound is returned when no run exists for the given id.
var ErrRunNotFound = errors.New("run not found")

// Runner executes one full scrape for the given configuration. The manager
// calls it from a single worker goroutine, so only one rendering session is
// ever active.
type Runner func(ctx context.Context, cfg config.ScraperConfig) (*scraper.RunResult, error)

// Run is one queued or executed scrape.
type Run struct {
	ID                string     `json:"id"`
	SearchURLs        []string   `json:"search_urls"`
	MaxProducts       int        `json:"max_products"`
	Status            string     `json:"status"`
	ProductsCollected int        `json:"products_collected"`
	ProductsDetailed  int        `json:"products_detailed"`
	CreatedAt         time.Time  `json:"created_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	Error             string     `json:"error,omitempty"`
}

// Stats aggregates run counts for the status endpoint.
type Stats struct {
	TotalRuns     int     `json:"total_runs"`
	PendingRuns   int     `json:"pending_runs"`
	RunningRuns   int     `json:"running_runs"`
	CompletedRuns int     `json:"completed_runs"`
	FailedRuns    int     `json:"failed_runs"`
	SuccessRate   float64 `json:"success_rate"`
}

// Manager keeps run state in memory and executes runs one at a time.
type Manager struct {
	base   config.ScraperConfig
	runner Runner
	logger *slog.Logger

	mu      sync.Mutex
	runs    map[string]*Run
	order   []string
	results map[string]*scraper.RunResult
	queue   chan string
}

// NewManager creates a run manager. base supplies the scraper settings that a
// run request does not override.
func NewManager(base config.ScraperConfig, runner Runner, logger *slog.Logger) *Manager {
	return &Manager{
		base:    base,
		runner:  runner,
		logger:  logger.With("component", "run_manager"),
		runs:    make(map[string]*Run),
		results: make(map[string]*scraper.RunResult),
		queue:   make(chan string, queueCapacity),
	}
}

// Start runs the worker loop until the context is cancelled. It must be
// called exactly once.
func (m *Manager) Start(ctx context.Context) {
	m.logger.Info("run worker started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("run worker stopped")
			return
		case id := <-m.queue:
			m.execute(ctx, id)
		}
	}
}

// CreateRun queues a new run. Empty searchURLs fall back to the configured
// defaults; maxProducts <= 0 keeps the configured cap.
func (m *Manager) CreateRun(searchURLs []string, maxProducts int) (*Run, error) {
	cfg := m.base
	if len(searchURLs) > 0 {
		cfg.SearchURLs = searchURLs
	}
	if maxProducts > 0 {
		cfg.MaxProducts = maxProducts
	}

	if len(cfg.SearchURLs) == 0 {
		return nil, fmt.Errorf("no search URLs given")
	}
	for _, raw := range cfg.SearchURLs {
		if !config.IsValidURL(raw) {
			return nil, fmt.Errorf("invalid search URL: %s", raw)
		}
	}

	run := &Run{
		ID:          uuid.New().String(),
		SearchURLs:  cfg.SearchURLs,
		MaxProducts: cfg.MaxProducts,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case m.queue <- run.ID:
	default:
		return nil, ErrQueueFull
	}

	m.runs[run.ID] = run
	m.order = append(m.order, run.ID)

	m.logger.Info("run created", "id", run.ID, "urls", len(run.SearchURLs))
	return snapshot(run), nil
}

// GetRun returns a copy of one run.
func (m *Manager) GetRun(id string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return snapshot(run), nil
}

// ListRuns returns copies of all runs, newest first.
func (m *Manager) ListRuns() []*Run {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Run, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		out = append(out, snapshot(m.runs[m.order[i]]))
	}
	return out
}

// Results returns the collected records for a completed run. The result is
// nil while the run has not finished.
func (m *Manager) Results(id string) (*scraper.RunResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[id]; !ok {
		return nil, ErrRunNotFound
	}
	return m.results[id], nil
}

// GetStats aggregates the in-memory run states.
func (m *Manager) GetStats() *Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &Stats{TotalRuns: len(m.runs)}
	for _, run := range m.runs {
		switch run.Status {
		case StatusPending:
			stats.PendingRuns++
		case StatusRunning:
			stats.RunningRuns++
		case StatusCompleted:
			stats.CompletedRuns++
		case StatusFailed:
			stats.FailedRuns++
		}
	}
	if stats.TotalRuns > 0 {
		stats.SuccessRate = float64(stats.CompletedRuns) / float64(stats.TotalRuns) * 100
	}
	return stats
}

func (m *Manager) execute(ctx context.Context, id string) {
	m.mu.Lock()
	run, ok := m.runs[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	now := time.Now()
	run.Status = StatusRunning
	run.StartedAt = &now

	cfg := m.base
	cfg.SearchURLs = run.SearchURLs
	cfg.MaxProducts = run.MaxProducts
	m.mu.Unlock()

	m.logger.Info("run started", "id", id)

	result, err := m.runner(ctx, cfg)

	m.mu.Lock()
	defer m.mu.Unlock()

	finished := time.Now()
	run.CompletedAt = &finished

	if err != nil {
		run.Status = StatusFailed
		run.Error = err.Error()
		m.logger.Error("run failed", "id", id, "error", err)
	} else {
		run.Status = StatusCompleted
	}

	if result != nil {
		run.ProductsCollected = result.Summary.ProductsCollected
		run.ProductsDetailed = result.Summary.ProductsWithDetails
		m.results[id] = result
	}

	if err == nil {
		m.logger.Info("run completed",
			"id", id,
			"products", run.ProductsCollected,
			"detailed", run.ProductsDetailed)
	}
}

func snapshot(run *Run) *Run {
	copied := *run
	copied.SearchURLs = append([]string(nil), run.SearchURLs...)
	return &copied
}
