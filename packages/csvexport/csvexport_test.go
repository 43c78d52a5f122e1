package csvexport

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopharvest/packages/domain"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestWriteOneRowPerVariant(t *testing.T) {
	products := []domain.Product{
		{
			ID:          1,
			Title:       "Shirt",
			Handle:      "shirt",
			Vendor:      "Acme",
			ProductType: "Apparel",
			Tags:        []string{"summer", "sale"},
			Variants: []domain.Variant{
				{ID: 11, Title: "Small", Price: "19.90", SKU: "SH-S", InventoryQuantity: intPtr(3)},
				{ID: 12, Title: "Large", Price: "21.50", SKU: "SH-L", CompareAtPrice: strPtr("25.00"), Option1: strPtr("Large")},
			},
			Images: []domain.Image{{ID: 21, Src: "http://example.com/shirt.png"}},
		},
		{
			ID:    2,
			Title: "Gift Card",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, products))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	// Header, two variant rows, one variant-less row.
	require.Len(t, rows, 4)
	require.Len(t, rows[0], len(header))

	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "Shirt", rows[1][1])
	assert.Equal(t, "summer, sale", rows[1][5])
	assert.Equal(t, "11", rows[1][9])
	assert.Equal(t, "19.90", rows[1][11])
	assert.Equal(t, "3", rows[1][14])
	assert.Equal(t, "http://example.com/shirt.png", rows[1][19])

	assert.Equal(t, "12", rows[2][9])
	assert.Equal(t, "21.50", rows[2][11])
	assert.Equal(t, "25.00", rows[2][12])
	assert.Equal(t, "Large", rows[2][16])

	// Product without variants still gets a row with variant cells empty.
	assert.Equal(t, "2", rows[3][0])
	assert.Equal(t, "Gift Card", rows[3][1])
	assert.Equal(t, "", rows[3][9])
	assert.Equal(t, "", rows[3][11])
}

func TestWriteEmptyCatalog(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, nil))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1) // header only
}
