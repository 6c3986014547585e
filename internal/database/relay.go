package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisClient is the slice of the Redis API the relay needs.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// OutboxRepo is the slice of the outbox repository the relay needs.
type OutboxRepo interface {
	GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
}

// Relay drains the outbox into Redis streams. It polls on a fixed interval;
// a delivery failure schedules the event for retry via the outbox and never
// stops the loop.
type Relay struct {
	db        *DB
	redis     RedisClient
	outbox    OutboxRepo
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

// RelayConfig tunes the polling loop. Zero values fall back to defaults.
type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

func NewRelay(db *DB, redisClient *redis.Client, logger *slog.Logger, config RelayConfig) *Relay {
	if config.PollInterval == 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}

	return &Relay{
		db:        db,
		redis:     redisClient,
		outbox:    NewOutboxRepository(db),
		logger:    logger.With("component", "relay"),
		interval:  config.PollInterval,
		batchSize: config.BatchSize,
	}
}

// Start runs the polling loop until ctx is cancelled. One batch is processed
// immediately so restarts do not wait a full interval to resume delivery.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("starting relay",
		"interval", r.interval,
		"batch_size", r.batchSize)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	if err := r.processEvents(ctx); err != nil {
		r.logger.Error("failed to process events on startup", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.processEvents(ctx); err != nil {
				r.logger.Error("failed to process events", "error", err)
			}
		}
	}
}

// processEvents ships one batch of due events. A single bad event is marked
// failed and skipped; the rest of the batch still goes out.
func (r *Relay) processEvents(ctx context.Context) error {
	events, err := r.outbox.GetPending(ctx, r.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending events: %w", err)
	}

	if len(events) == 0 {
		return nil
	}

	r.logger.Debug("processing events", "count", len(events))

	for _, event := range events {
		if err := r.processEvent(ctx, event); err != nil {
			r.logger.Error("failed to process event",
				"event_id", event.ID,
				"aggregate_id", event.AggregateID,
				"error", err)
		}
	}

	return nil
}

func (r *Relay) processEvent(ctx context.Context, event *OutboxEvent) error {
	if err := r.publishToRedis(ctx, event); err != nil {
		if markErr := r.outbox.MarkFailed(ctx, event.ID, err); markErr != nil {
			r.logger.Error("failed to mark event as failed",
				"event_id", event.ID,
				"error", markErr)
		}
		return err
	}

	if err := r.outbox.MarkProcessed(ctx, event.ID); err != nil {
		r.logger.Error("failed to mark event as processed",
			"event_id", event.ID,
			"error", err)
		return err
	}

	r.logger.Info("event processed successfully",
		"event_id", event.ID,
		"event_type", event.EventType,
		"aggregate_id", event.AggregateID,
		"target_stream", event.TargetStream)

	return nil
}

// streamEnvelope is the JSON document consumers read from the stream entry's
// data field. Its shape is part of the downstream contract.
type streamEnvelope struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     string          `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
	Metadata      streamMetadata  `json:"metadata"`
}

type streamMetadata struct {
	Source       string `json:"source"`
	OutboxID     string `json:"outbox_id"`
	RetryCount   int    `json:"retry_count"`
	TargetStream string `json:"target_stream"`
}

// publishToRedis adds the event to its target stream. The payload is checked
// before the XAdd so a corrupt row fails here and ends up in dead_letter
// instead of reaching consumers.
func (r *Relay) publishToRedis(ctx context.Context, event *OutboxEvent) error {
	if !json.Valid(event.Payload) {
		return fmt.Errorf("payload is not valid JSON for event %s", event.ID)
	}

	envelope := streamEnvelope{
		ID:            event.ID.String(),
		Type:          event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Timestamp:     event.CreatedAt.Format(time.RFC3339),
		Payload:       event.Payload,
		Metadata: streamMetadata{
			Source:       "tokopedia-scraper",
			OutboxID:     event.ID.String(),
			RetryCount:   event.RetryCount,
			TargetStream: event.TargetStream,
		},
	}

	dataJSON, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal stream data: %w", err)
	}

	// Flat fields next to the data blob let consumers filter entries without
	// unmarshalling the envelope.
	args := &redis.XAddArgs{
		Stream: event.TargetStream,
		Values: map[string]interface{}{
			"data":           string(dataJSON),
			"type":           event.EventType,
			"timestamp":      fmt.Sprintf("%d", event.CreatedAt.UnixNano()),
			"original_id":    event.ID.String(),
			"aggregate_id":   event.AggregateID,
			"aggregate_type": event.AggregateType,
			"event_type":     event.EventType,
		},
	}

	if _, err := r.redis.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	return nil
}

// GetPendingCount reports how many events still wait for delivery. Served on
// the health endpoint.
func (r *Relay) GetPendingCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM outbox_event
		WHERE status IN ($1, $2)`,
		OutboxStatusPending, OutboxStatusFailed).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending count: %w", err)
	}

	return count, nil
}

// GetDeadLetterCount reports how many events exhausted their retries.
func (r *Relay) GetDeadLetterCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM outbox_event
		WHERE status = $1`,
		OutboxStatusDeadLetter).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get dead letter count: %w", err)
	}

	return count, nil
}
