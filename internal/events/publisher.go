package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/reikki7/tokopedia-products-scraper/internal/database"
	"github.com/reikki7/tokopedia-products-scraper/internal/models"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeProductScraped is published when a product record is collected
	EventTypeProductScraped EventType = "PRODUCT_SCRAPED"

	productRecordStream = "stream:product_records"
)

// ProductScrapedPayload is the event body pushed through the outbox when a
// product record is collected.
type ProductScrapedPayload struct {
	EventID                string    `json:"event_id"`
	EventType              string    `json:"event_type"`
	Timestamp              time.Time `json:"timestamp"`
	ProductURL             string    `json:"product_url"`
	Label                  string    `json:"label"`
	Title                  string    `json:"title"`
	DisplayedPriceFinal    int       `json:"displayed_price_final"`
	DisplayedPriceOriginal int       `json:"displayed_price_original"`
	Discount               int       `json:"discount"`
	ImageURL               string    `json:"image_url,omitempty"`
	SellerName             string    `json:"seller_name,omitempty"`
	Location               string    `json:"location,omitempty"`
	ProductRating          *float64  `json:"product_rating,omitempty"`
	SoldCount              *string   `json:"sold_count,omitempty"`
	VariantCount           int       `json:"variant_count"`
	ReviewCount            int       `json:"review_count"`
	Source                 string    `json:"source"`
}

// NewProductScrapedPayload builds the payload for one collected record.
func NewProductScrapedPayload(record *models.ProductRecord) *ProductScrapedPayload {
	payload := &ProductScrapedPayload{
		ProductURL:             record.ProductURL,
		Label:                  record.Label,
		Title:                  record.Title,
		DisplayedPriceFinal:    record.DisplayedPriceFinal,
		DisplayedPriceOriginal: record.DisplayedPriceOriginal,
		Discount:               record.Discount,
		ImageURL:               record.ImageURL,
		SellerName:             record.SellerName,
		Location:               record.Location,
		ProductRating:          record.ProductRating,
		SoldCount:              record.SoldCount,
	}
	if record.Details != nil {
		payload.VariantCount = len(record.Details.AvailableVariantDetails)
		payload.ReviewCount = len(record.Details.Reviews)
	}
	return payload
}

// Publisher handles event publishing using transactional outbox pattern
type Publisher struct {
	db     *database.DB
	outbox *database.OutboxRepository
	logger *slog.Logger
}

// NewPublisher creates a new event publisher with database connection
func NewPublisher(db *database.DB, logger *slog.Logger) *Publisher {
	return &Publisher{
		db:     db,
		outbox: database.NewOutboxRepository(db),
		logger: logger.With("component", "event_publisher"),
	}
}

// buildOutboxEvent fills payload defaults and wraps it in an outbox event.
func buildOutboxEvent(payload *ProductScrapedPayload) (*database.OutboxEvent, error) {
	if payload.EventID == "" {
		payload.EventID = uuid.New().String()
	}
	if payload.EventType == "" {
		payload.EventType = string(EventTypeProductScraped)
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now()
	}
	if payload.Source == "" {
		payload.Source = "scraper"
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return &database.OutboxEvent{
		AggregateType: "product_record",
		AggregateID:   payload.ProductURL,
		EventType:     payload.EventType,
		Payload:       data,
		TargetStream:  productRecordStream,
	}, nil
}

// PublishProductScraped stores the record and its event atomically. The relay
// moves the event to Redis afterwards.
func (p *Publisher) PublishProductScraped(ctx context.Context, record *models.ProductRecord) error {
	payload := NewProductScrapedPayload(record)

	outboxEvent, err := buildOutboxEvent(payload)
	if err != nil {
		return err
	}

	err = p.db.Transaction(ctx, func(tx pgx.Tx) error {
		if err := p.db.UpsertProductRecordWithTx(ctx, tx, record); err != nil {
			return fmt.Errorf("failed to upsert record: %w", err)
		}
		if err := p.outbox.InsertWithTx(ctx, tx, outboxEvent); err != nil {
			return fmt.Errorf("failed to insert outbox event: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("event published to outbox",
		"type", payload.EventType,
		"event_id", payload.EventID,
		"product_url", payload.ProductURL,
		"outbox_id", outboxEvent.ID,
	)

	return nil
}
