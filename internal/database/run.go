package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunRow is one persisted scrape run.
type RunRow struct {
	ID                string     `db:"id"`
	SearchURLs        []string   `db:"search_urls"`
	MaxProducts       int        `db:"max_products"`
	Status            RunStatus  `db:"status"`
	ProductsCollected int        `db:"products_collected"`
	ProductsDetailed  int        `db:"products_detailed"`
	Error             *string    `db:"error"`
	CreatedAt         time.Time  `db:"created_at"`
	StartedAt         *time.Time `db:"started_at"`
	FinishedAt        *time.Time `db:"finished_at"`
}

// InsertRun records a newly created run in pending state.
func (db *DB) InsertRun(ctx context.Context, run *RunRow) error {
	if run.Status == "" {
		run.Status = RunStatusPending
	}
	run.CreatedAt = time.Now()

	query := `
		INSERT INTO scrape_runs (id, search_urls, max_products, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := db.pool.Exec(ctx, query,
		run.ID, run.SearchURLs, run.MaxProducts, run.Status, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// MarkRunStarted transitions a run to running.
func (db *DB) MarkRunStarted(ctx context.Context, id string) error {
	query := `
		UPDATE scrape_runs
		SET status = $1, started_at = CURRENT_TIMESTAMP
		WHERE id = $2`

	result, err := db.pool.Exec(ctx, query, RunStatusRunning, id)
	if err != nil {
		return fmt.Errorf("failed to mark run started: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	return nil
}

// MarkRunCompleted finalizes a run with its product counts.
func (db *DB) MarkRunCompleted(ctx context.Context, id string, collected, detailed int) error {
	query := `
		UPDATE scrape_runs
		SET status = $1, products_collected = $2, products_detailed = $3,
		    finished_at = CURRENT_TIMESTAMP
		WHERE id = $4`

	_, err := db.pool.Exec(ctx, query, RunStatusCompleted, collected, detailed, id)
	if err != nil {
		return fmt.Errorf("failed to mark run completed: %w", err)
	}

	return nil
}

// MarkRunFailed finalizes a run with its error.
func (db *DB) MarkRunFailed(ctx context.Context, id string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}

	query := `
		UPDATE scrape_runs
		SET status = $1, error = $2, finished_at = CURRENT_TIMESTAMP
		WHERE id = $3`

	_, err := db.pool.Exec(ctx, query, RunStatusFailed, msg, id)
	if err != nil {
		return fmt.Errorf("failed to mark run failed: %w", err)
	}

	return nil
}

// GetRun loads one run by ID. Returns nil when no row exists.
func (db *DB) GetRun(ctx context.Context, id string) (*RunRow, error) {
	query := `
		SELECT id, search_urls, max_products, status,
		       products_collected, products_detailed, error,
		       created_at, started_at, finished_at
		FROM scrape_runs
		WHERE id = $1`

	run := &RunRow{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.SearchURLs, &run.MaxProducts, &run.Status,
		&run.ProductsCollected, &run.ProductsDetailed, &run.Error,
		&run.CreatedAt, &run.StartedAt, &run.FinishedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ListRecentRuns lists runs newest first.
func (db *DB) ListRecentRuns(ctx context.Context, limit int) ([]*RunRow, error) {
	query := `
		SELECT id, search_urls, max_products, status,
		       products_collected, products_detailed, error,
		       created_at, started_at, finished_at
		FROM scrape_runs
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := db.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRow
	for rows.Next() {
		run := &RunRow{}
		err := rows.Scan(
			&run.ID, &run.SearchURLs, &run.MaxProducts, &run.Status,
			&run.ProductsCollected, &run.ProductsDetailed, &run.Error,
			&run.CreatedAt, &run.StartedAt, &run.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, nil
}
