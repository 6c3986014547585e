package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Outbox event lifecycle: pending -> processed, or pending -> failed with a
// growing retry delay -> dead_letter once MaxRetryCount is spent.
const (
	OutboxStatusPending    = "pending"
	OutboxStatusProcessed  = "processed"
	OutboxStatusFailed     = "failed"
	OutboxStatusDeadLetter = "dead_letter"

	MaxRetryCount = 5
)

// defaultTargetStream is where product-record events go when the producer
// does not pick a stream.
const defaultTargetStream = "stream:product_records"

// OutboxEvent is one product-record event parked in Postgres until the relay
// ships it to its Redis stream. Writing it in the same transaction as the
// record itself is what makes publishing atomic with the upsert.
type OutboxEvent struct {
	ID            uuid.UUID       `db:"id"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id"`
	EventType     string          `db:"event_type"`
	Payload       json.RawMessage `db:"payload"`
	TargetStream  string          `db:"target_stream"`
	Status        string          `db:"status"`
	RetryCount    int             `db:"retry_count"`
	ErrorMessage  *string         `db:"error_message"`
	CreatedAt     time.Time       `db:"created_at"`
	ProcessedAt   *time.Time      `db:"processed_at"`
	NextRetryAt   *time.Time      `db:"next_retry_at"`
}

// OutboxRepository reads and writes the outbox_event table.
type OutboxRepository struct {
	db *DB
}

func NewOutboxRepository(db *DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// InsertWithTx writes event inside the caller's transaction, filling in the
// id, pending status, default stream and immediate retry time when unset.
func (r *OutboxRepository) InsertWithTx(ctx context.Context, tx pgx.Tx, event *OutboxEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Status == "" {
		event.Status = OutboxStatusPending
	}
	if event.TargetStream == "" {
		event.TargetStream = defaultTargetStream
	}

	now := time.Now()
	event.CreatedAt = now
	if event.NextRetryAt == nil {
		event.NextRetryAt = &now
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_event (
			id, aggregate_type, aggregate_id, event_type,
			payload, target_stream, status, retry_count,
			created_at, next_retry_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.ID, event.AggregateType, event.AggregateID, event.EventType,
		event.Payload, event.TargetStream, event.Status, event.RetryCount,
		event.CreatedAt, event.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	return nil
}

// GetPending returns events whose retry time has come, oldest first, so the
// stream receives records in roughly the order they were scraped.
func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT
			id, aggregate_type, aggregate_id, event_type,
			payload, target_stream, status, retry_count,
			error_message, created_at, processed_at, next_retry_at
		FROM outbox_event
		WHERE status IN ($1, $2)
			AND next_retry_at <= $3
		ORDER BY created_at ASC
		LIMIT $4`,
		OutboxStatusPending, OutboxStatusFailed, time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		event := &OutboxEvent{}
		if err := rows.Scan(
			&event.ID, &event.AggregateType, &event.AggregateID, &event.EventType,
			&event.Payload, &event.TargetStream, &event.Status, &event.RetryCount,
			&event.ErrorMessage, &event.CreatedAt, &event.ProcessedAt, &event.NextRetryAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return events, nil
}

// MarkProcessed finalizes a delivered event.
func (r *OutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE outbox_event
		SET status = $1, processed_at = $2
		WHERE id = $3`,
		OutboxStatusProcessed, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark event as processed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("event not found: %s", id)
	}

	return nil
}

// MarkFailed bumps the retry count and schedules the next attempt; the event
// moves to dead_letter once MaxRetryCount attempts are used up.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	var retryCount int
	err := r.db.pool.QueryRow(ctx, `
		UPDATE outbox_event
		SET retry_count = retry_count + 1, error_message = $2
		WHERE id = $1
		RETURNING retry_count`,
		id, cause.Error()).Scan(&retryCount)
	if err != nil {
		return fmt.Errorf("failed to record delivery failure: %w", err)
	}

	status := OutboxStatusFailed
	if retryCount >= MaxRetryCount {
		status = OutboxStatusDeadLetter
	}
	nextRetryAt := retryBackoff(retryCount)

	_, err = r.db.pool.Exec(ctx, `
		UPDATE outbox_event
		SET status = $1, next_retry_at = $2
		WHERE id = $3`,
		status, nextRetryAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark event as failed: %w", err)
	}

	return nil
}

// retryBackoff doubles the delay per attempt, capped at five minutes.
func retryBackoff(retryCount int) time.Time {
	seconds := 1 << retryCount
	if seconds > 300 {
		seconds = 300
	}
	return time.Now().Add(time.Duration(seconds) * time.Second)
}
