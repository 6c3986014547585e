package storage

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reikki7/tokopedia-products-scraper/internal/models"
)

func fixedManager(t *testing.T) *DataManager {
	t.Helper()
	m := NewDataManager(t.TempDir())
	m.now = func() time.Time {
		return time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	}
	return m
}

func sampleRecords() []models.ProductRecord {
	rating := 4.8
	sold := "750+"
	details := models.NewProductDetails()
	details.AvailableVariantDetails = append(details.AvailableVariantDetails, models.VariantCombination{
		VariantOptions: map[string]string{"warna": "Merah"},
		FinalPrice:     129000,
		OriginalPrice:  199000,
		Stock:          3,
	})

	return []models.ProductRecord{
		{
			BasicProduct: models.BasicProduct{
				Title:               "Kemeja Flanel",
				Label:               "Kemeja Flanel",
				DisplayedPriceFinal: 129000,
				SellerName:          "Flanel Store",
				Location:            "Jakarta Barat",
				ProductRating:       &rating,
				SoldCount:           &sold,
				ProductURL:          "https://www.tokopedia.com/a",
			},
			Details: details,
		},
		{
			BasicProduct: models.BasicProduct{
				Title:      "Kemeja Polos",
				ProductURL: "https://www.tokopedia.com/b",
			},
		},
	}
}

func TestSaveJSON(t *testing.T) {
	m := fixedManager(t)

	path, err := m.SaveJSON(sampleRecords(), "Kemeja Flanel")
	require.NoError(t, err)

	assert.Equal(t, "kemeja_flanel_20250314_093000.json", filepath.Base(path))
	assert.Equal(t, "json", filepath.Base(filepath.Dir(path)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got []models.ProductRecord
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 2)
	assert.Equal(t, "Kemeja Flanel", got[0].Title)
	require.NotNil(t, got[0].Details)
	assert.Len(t, got[0].Details.AvailableVariantDetails, 1)
	assert.Nil(t, got[1].Details)
}

func TestSaveJSONEmptyCollectionsMarshalAsArrays(t *testing.T) {
	m := fixedManager(t)

	records := []models.ProductRecord{{
		BasicProduct: models.BasicProduct{Title: "Produk", ProductURL: "https://www.tokopedia.com/x"},
		Details:      models.NewProductDetails(),
	}}

	path, err := m.SaveJSON(records, "produk")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"reviews": []`)
	assert.Contains(t, string(data), `"available_variant_details": []`)
	assert.NotContains(t, string(data), `"reviews": null`)
}

func TestSaveCSV(t *testing.T) {
	m := fixedManager(t)

	path, err := m.SaveCSV(sampleRecords(), "Kemeja Flanel")
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "title", rows[0][0])
	assert.Equal(t, "Kemeja Flanel", rows[1][0])
	assert.Equal(t, "4.8", rows[1][8])
	assert.Equal(t, "750+", rows[1][9])
	assert.Equal(t, "1", rows[1][11])
	// Product without details exports empty optionals and zero counts.
	assert.Equal(t, "", rows[2][8])
	assert.Equal(t, "0", rows[2][11])
}

func TestSaveBoth(t *testing.T) {
	m := fixedManager(t)

	paths, err := m.Save(sampleRecords(), "produk", "both")
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, ".json", filepath.Ext(paths[0]))
	assert.Equal(t, ".csv", filepath.Ext(paths[1]))
}

func TestSaveUnknownFormat(t *testing.T) {
	m := fixedManager(t)

	_, err := m.Save(sampleRecords(), "produk", "xml")
	assert.Error(t, err)
}

func TestFileNameFallback(t *testing.T) {
	m := fixedManager(t)
	assert.Equal(t, "products_20250314_093000.json", m.fileName("  ", "json"))
}
