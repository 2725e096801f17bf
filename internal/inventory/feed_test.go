package inventory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadJSONFeed(t *testing.T) {
	path := writeFile(t, "stock.json", `{"TIENDA-001": {"A": 5, "B": 0}, "TIENDA-002": {"A": 12}}`)

	ix, err := LoadFeed(path)
	require.NoError(t, err)
	assert.Equal(t, 3, ix.Len())

	qty, ok := ix.Lookup("TIENDA-001", "A")
	assert.True(t, ok)
	assert.Equal(t, int64(5), qty)

	qty, ok = ix.Lookup("TIENDA-002", "A")
	assert.True(t, ok)
	assert.Equal(t, int64(12), qty)

	_, ok = ix.Lookup("TIENDA-002", "B")
	assert.False(t, ok)
	assert.True(t, ix.HasStore("TIENDA-002"))
}

func TestLoadFeedMissing(t *testing.T) {
	_, err := LoadFeed(filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorIs(t, err, ErrFeedMissing)
}

func TestLoadFeedMalformed(t *testing.T) {
	cases := map[string]string{
		"syntax":   `{"TIENDA-001": [1, 2]`,
		"null":     `null`,
		"negative": `{"TIENDA-001": {"A": -1}}`,
		"fraction": `{"TIENDA-001": {"A": 1.5}}`,
		"string":   `{"TIENDA-001": {"A": "many"}}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFeed(writeFile(t, "stock.json", content))
			assert.ErrorIs(t, err, ErrFeedMalformed)
		})
	}
}

func TestLoadXLSXFeed(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"Store_Code", "SKU", "Quantity"},
		{"TIENDA-001", "A", 7},
		{"TIENDA-001", "B", 0},
		{"", "", ""},
	}
	for i, row := range rows {
		cellName, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cellName, &row))
	}
	path := filepath.Join(t.TempDir(), "stock.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	ix, err := LoadFeed(path)
	require.NoError(t, err)
	assert.Equal(t, 2, ix.Len())
	qty, ok := ix.Lookup("TIENDA-001", "A")
	assert.True(t, ok)
	assert.Equal(t, int64(7), qty)
}

func TestLoadXLSXMissingColumn(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"sku", "quantity"}))
	path := filepath.Join(t.TempDir(), "stock.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	_, err := LoadFeed(path)
	assert.ErrorIs(t, err, ErrFeedMalformed)
}

func TestEnricherDefaultsToZero(t *testing.T) {
	ix, err := ParseJSON([]byte(`{"TIENDA-001": {"A": 3}}`))
	require.NoError(t, err)
	e := NewEnricher(ix, "TIENDA-001")

	assert.Equal(t, Level{StoreCode: "TIENDA-001", Quantity: 3}, e.Enrich("A"))
	assert.Equal(t, Level{StoreCode: "TIENDA-001", Quantity: 0, Missing: true}, e.Enrich("B"))
}
