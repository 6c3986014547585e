package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/reikki7/tokopedia-products-scraper/internal/models"
)

// ProductRow is one scraped product as persisted. The detail object is kept
// as JSONB because its shape (variant maps, review lists) is already the
// export contract.
type ProductRow struct {
	ProductURL             string          `db:"product_url"`
	Label                  string          `db:"label"`
	Title                  string          `db:"title"`
	DisplayedPriceFinal    int             `db:"displayed_price_final"`
	DisplayedPriceOriginal int             `db:"displayed_price_original"`
	Discount               int             `db:"discount"`
	ImageURL               string          `db:"image_url"`
	SellerName             string          `db:"seller_name"`
	Location               string          `db:"location"`
	ProductRating          *float64        `db:"product_rating"`
	SoldCount              *string         `db:"sold_count"`
	Details                json.RawMessage `db:"details"`
	ScrapedAt              time.Time       `db:"scraped_at"`
	CreatedAt              time.Time       `db:"created_at"`
	UpdatedAt              time.Time       `db:"updated_at"`
}

// UpsertProductRecord inserts or refreshes one record, keyed by product URL
// and label. A later run for the same search replaces the earlier snapshot.
func (db *DB) UpsertProductRecord(ctx context.Context, record *models.ProductRecord) error {
	var details []byte
	if record.Details != nil {
		var err error
		details, err = json.Marshal(record.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal details: %w", err)
		}
	}

	query := `
		INSERT INTO product_records (
			product_url, label, title,
			displayed_price_final, displayed_price_original, discount,
			image_url, seller_name, location,
			product_rating, sold_count, details, scraped_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, CURRENT_TIMESTAMP
		)
		ON CONFLICT (product_url, label) DO UPDATE SET
			title = EXCLUDED.title,
			displayed_price_final = EXCLUDED.displayed_price_final,
			displayed_price_original = EXCLUDED.displayed_price_original,
			discount = EXCLUDED.discount,
			image_url = EXCLUDED.image_url,
			seller_name = EXCLUDED.seller_name,
			location = EXCLUDED.location,
			product_rating = EXCLUDED.product_rating,
			sold_count = EXCLUDED.sold_count,
			details = EXCLUDED.details,
			scraped_at = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP`

	_, err := db.pool.Exec(ctx, query,
		record.ProductURL, record.Label, record.Title,
		record.DisplayedPriceFinal, record.DisplayedPriceOriginal, record.Discount,
		record.ImageURL, record.SellerName, record.Location,
		record.ProductRating, record.SoldCount, details,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert product record: %w", err)
	}

	return nil
}

// UpsertProductRecordWithTx is the transactional variant, used together with
// the outbox insert so the record and its event commit atomically.
func (db *DB) UpsertProductRecordWithTx(ctx context.Context, tx pgx.Tx, record *models.ProductRecord) error {
	var details []byte
	if record.Details != nil {
		var err error
		details, err = json.Marshal(record.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal details: %w", err)
		}
	}

	query := `
		INSERT INTO product_records (
			product_url, label, title,
			displayed_price_final, displayed_price_original, discount,
			image_url, seller_name, location,
			product_rating, sold_count, details, scraped_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, CURRENT_TIMESTAMP
		)
		ON CONFLICT (product_url, label) DO UPDATE SET
			title = EXCLUDED.title,
			displayed_price_final = EXCLUDED.displayed_price_final,
			displayed_price_original = EXCLUDED.displayed_price_original,
			discount = EXCLUDED.discount,
			image_url = EXCLUDED.image_url,
			seller_name = EXCLUDED.seller_name,
			location = EXCLUDED.location,
			product_rating = EXCLUDED.product_rating,
			sold_count = EXCLUDED.sold_count,
			details = EXCLUDED.details,
			scraped_at = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP`

	_, err := tx.Exec(ctx, query,
		record.ProductURL, record.Label, record.Title,
		record.DisplayedPriceFinal, record.DisplayedPriceOriginal, record.Discount,
		record.ImageURL, record.SellerName, record.Location,
		record.ProductRating, record.SoldCount, details,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert product record: %w", err)
	}

	return nil
}

// GetProductRecord loads one record by its composite key. Returns nil when
// no row exists.
func (db *DB) GetProductRecord(ctx context.Context, productURL, label string) (*ProductRow, error) {
	query := `
		SELECT product_url, label, title,
		       displayed_price_final, displayed_price_original, discount,
		       image_url, seller_name, location,
		       product_rating, sold_count, details,
		       scraped_at, created_at, updated_at
		FROM product_records
		WHERE product_url = $1 AND label = $2`

	row := &ProductRow{}
	err := db.pool.QueryRow(ctx, query, productURL, label).Scan(
		&row.ProductURL, &row.Label, &row.Title,
		&row.DisplayedPriceFinal, &row.DisplayedPriceOriginal, &row.Discount,
		&row.ImageURL, &row.SellerName, &row.Location,
		&row.ProductRating, &row.SoldCount, &row.Details,
		&row.ScrapedAt, &row.CreatedAt, &row.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product record: %w", err)
	}

	return row, nil
}

// ListProductRecords lists the most recently scraped records for one label.
func (db *DB) ListProductRecords(ctx context.Context, label string, limit int) ([]*ProductRow, error) {
	query := `
		SELECT product_url, label, title,
		       displayed_price_final, displayed_price_original, discount,
		       image_url, seller_name, location,
		       product_rating, sold_count, details,
		       scraped_at, created_at, updated_at
		FROM product_records
		WHERE label = $1
		ORDER BY scraped_at DESC
		LIMIT $2`

	rows, err := db.pool.Query(ctx, query, label, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list product records: %w", err)
	}
	defer rows.Close()

	var records []*ProductRow
	for rows.Next() {
		row := &ProductRow{}
		err := rows.Scan(
			&row.ProductURL, &row.Label, &row.Title,
			&row.DisplayedPriceFinal, &row.DisplayedPriceOriginal, &row.Discount,
			&row.ImageURL, &row.SellerName, &row.Location,
			&row.ProductRating, &row.SoldCount, &row.Details,
			&row.ScrapedAt, &row.CreatedAt, &row.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product record: %w", err)
		}
		records = append(records, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// CountRecordsByLabel returns how many records each label holds.
func (db *DB) CountRecordsByLabel(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT label, COUNT(*) as count
		FROM product_records
		GROUP BY label`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var label string
		var count int
		if err := rows.Scan(&label, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[label] = count
	}

	return counts, nil
}
