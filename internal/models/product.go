package models

import "time"

type StockStatus string

const (
	StockStatusInStock     StockStatus = "in_stock"
	StockStatusOutOfStock  StockStatus = "out_of_stock"
	StockStatusOnBackorder StockStatus = "on_backorder"
)

// Product mirrors the hosting platform's product record: a single stock
// quantity field plus key/value snapshot columns the aggregator keeps in sync
// with the ledger.
type Product struct {
	ID                int64       `json:"id" gorm:"primaryKey;autoIncrement"`
	SKU               string      `json:"sku" gorm:"uniqueIndex;not null"`
	Title             string      `json:"title" gorm:"not null"`
	Price             float64     `json:"price" gorm:"type:decimal(10,2)"`
	StockQuantity     int         `json:"stock_quantity" gorm:"default:0"`
	StockStatus       StockStatus `json:"stock_status" gorm:"default:in_stock"`
	BackordersAllowed bool        `json:"backorders_allowed" gorm:"default:false"`

	// MultiLocation marks the product as initialized for per-location stock.
	// The delta ingestion endpoint refuses products without it.
	MultiLocation bool `json:"multi_location" gorm:"default:false"`

	// Snapshot maps written by the aggregator, serialized JSON:
	// {"<location_id>": qty} and {"<location name>": qty}.
	StockByLocation     *string `json:"stock_by_location"`
	StockByLocationName *string `json:"stock_by_location_name"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
