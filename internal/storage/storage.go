package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/reikki7/tokopedia-products-scraper/internal/models"
)

// DataManager writes run output under the base directory, JSON and CSV into
// their own subdirectories with timestamped file names.
type DataManager struct {
	baseDir string
	now     func() time.Time
}

func NewDataManager(baseDir string) *DataManager {
	return &DataManager{
		baseDir: baseDir,
		now:     time.Now,
	}
}

// SaveJSON writes the full nested records. Returns the written path.
func (m *DataManager) SaveJSON(records []models.ProductRecord, label string) (string, error) {
	dir := filepath.Join(m.baseDir, "json")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, m.fileName(label, "json"))

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal records: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write output: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to finalize output: %w", err)
	}

	return path, nil
}

// SaveCSV writes the flattened top-level fields, one row per product. Nested
// detail objects stay in the JSON export.
func (m *DataManager) SaveCSV(records []models.ProductRecord, label string) (string, error) {
	dir := filepath.Join(m.baseDir, "csv")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, m.fileName(label, "csv"))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create output: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"title", "label", "displayed_price_final", "displayed_price_original",
		"discount", "image_url", "seller_name", "location", "product_rating",
		"sold_count", "product_url", "variant_combinations", "reviews",
	}
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range records {
		combos, reviews := 0, 0
		if r.Details != nil {
			combos = len(r.Details.AvailableVariantDetails)
			reviews = len(r.Details.Reviews)
		}

		row := []string{
			r.Title,
			r.Label,
			strconv.Itoa(r.DisplayedPriceFinal),
			strconv.Itoa(r.DisplayedPriceOriginal),
			strconv.Itoa(r.Discount),
			r.ImageURL,
			r.SellerName,
			r.Location,
			floatOrEmpty(r.ProductRating),
			stringOrEmpty(r.SoldCount),
			r.ProductURL,
			strconv.Itoa(combos),
			strconv.Itoa(reviews),
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush output: %w", err)
	}

	return path, nil
}

// Save writes records in the requested format. format accepts "json", "csv"
// or "both".
func (m *DataManager) Save(records []models.ProductRecord, label, format string) ([]string, error) {
	var paths []string

	if format == "json" || format == "both" {
		path, err := m.SaveJSON(records, label)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	if format == "csv" || format == "both" {
		path, err := m.SaveCSV(records, label)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("unknown output format: %s", format)
	}

	return paths, nil
}

func (m *DataManager) fileName(label, ext string) string {
	slug := strings.ToLower(strings.TrimSpace(label))
	slug = strings.ReplaceAll(slug, " ", "_")
	if slug == "" {
		slug = "products"
	}
	return fmt.Sprintf("%s_%s.%s", slug, m.now().Format("20060102_150405"), ext)
}

func floatOrEmpty(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func stringOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
