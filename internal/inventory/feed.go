// Package inventory loads the local stock feed and enriches local channel
// products with per-store quantities.
package inventory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	ErrFeedMissing   = errors.New("stock feed not found")
	ErrFeedMalformed = errors.New("stock feed malformed")
)

type key struct {
	store string
	sku   string
}

// Index maps (store code, sku) to quantity. It is read only once built.
type Index struct {
	quantities map[key]int64
	stores     map[string]struct{}
}

func NewIndex() *Index {
	return &Index{
		quantities: make(map[key]int64),
		stores:     make(map[string]struct{}),
	}
}

func (ix *Index) set(store, sku string, qty int64) {
	ix.quantities[key{store: store, sku: sku}] = qty
	ix.stores[store] = struct{}{}
}

// Lookup reports the quantity for (store, sku) and whether the feed had it.
func (ix *Index) Lookup(store, sku string) (int64, bool) {
	qty, ok := ix.quantities[key{store: store, sku: sku}]
	return qty, ok
}

func (ix *Index) Len() int {
	return len(ix.quantities)
}

func (ix *Index) HasStore(store string) bool {
	_, ok := ix.stores[store]
	return ok
}

// LoadFeed reads a JSON ({"STORE": {"SKU": qty}}) or XLSX feed, chosen by
// file extension.
func LoadFeed(path string) (*Index, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFeedMissing, path)
		}
		return nil, fmt.Errorf("failed to stat stock feed: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return loadXLSX(path)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read stock feed: %w", err)
		}
		return ParseJSON(data)
	}
}

func ParseJSON(data []byte) (*Index, error) {
	var raw map[string]map[string]json.Number
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedMalformed, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: empty document", ErrFeedMalformed)
	}

	ix := NewIndex()
	for store, skus := range raw {
		store = strings.TrimSpace(store)
		if store == "" {
			return nil, fmt.Errorf("%w: empty store code", ErrFeedMalformed)
		}
		for sku, n := range skus {
			qty, err := parseQuantity(n.String())
			if err != nil {
				return nil, fmt.Errorf("%w: %s/%s: %v", ErrFeedMalformed, store, sku, err)
			}
			ix.set(store, strings.TrimSpace(sku), qty)
		}
	}
	return ix, nil
}

func loadXLSX(path string) (*Index, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedMalformed, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrFeedMalformed)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedMalformed, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: sheet %s is empty", ErrFeedMalformed, sheets[0])
	}

	cols := mapColumns(rows[0])
	for _, name := range []string{"store_code", "sku", "quantity"} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrFeedMalformed, name)
		}
	}

	ix := NewIndex()
	for i, row := range rows[1:] {
		store := cell(row, cols["store_code"])
		sku := cell(row, cols["sku"])
		if store == "" && sku == "" {
			continue
		}
		if store == "" || sku == "" {
			return nil, fmt.Errorf("%w: row %d: store code and sku are required", ErrFeedMalformed, i+2)
		}
		qty, err := parseQuantity(cell(row, cols["quantity"]))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrFeedMalformed, i+2, err)
		}
		ix.set(store, sku, qty)
	}
	return ix, nil
}

func mapColumns(header []string) map[string]int {
	cols := make(map[string]int)
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "store_code", "store", "tienda":
			cols["store_code"] = i
		case "sku":
			cols["sku"] = i
		case "quantity", "qty", "stock", "cantidad":
			cols["quantity"] = i
		}
	}
	return cols
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseQuantity(s string) (int64, error) {
	if s == "" {
		return 0, errors.New("empty quantity")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q", s)
	}
	if f < 0 || f != math.Trunc(f) {
		return 0, fmt.Errorf("quantity %q must be a non-negative integer", s)
	}
	return int64(f), nil
}
