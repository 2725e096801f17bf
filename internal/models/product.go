package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog record read from the store database. It is never
// written back.
type Product struct {
	ID            int64            `json:"id"`
	SKU           string           `json:"sku"`
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	Slug          string           `json:"slug"`
	Price         *decimal.Decimal `json:"price"`
	StockQuantity int              `json:"stock_quantity"`
	StockStatus   StockStatus      `json:"stock_status"`
	Images        []string         `json:"images"`
	// LocalOnly is set when the product is hidden from the public catalog,
	// which routes it to the local inventory channel.
	LocalOnly  bool      `json:"local_only"`
	ModifiedAt time.Time `json:"modified_at"`
}

type StockStatus string

const (
	StockStatusInStock     StockStatus = "instock"
	StockStatusOutOfStock  StockStatus = "outofstock"
	StockStatusOnBackorder StockStatus = "onbackorder"
)

type ProductAvailability string

const (
	AvailabilityInStock    ProductAvailability = "in stock"
	AvailabilityOutOfStock ProductAvailability = "out of stock"
	AvailabilityBackorder  ProductAvailability = "backorder"
)

// Key identifies a product within the tracking table.
type Key struct {
	ProductID int64
	SKU       string
}

func (p Product) Key() Key {
	return Key{ProductID: p.ID, SKU: p.SKU}
}
