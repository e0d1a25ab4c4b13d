package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StockRow is the materialized current quantity for one (product, location)
// pair. The ledger is the source of truth; this row is a cache of its latest
// state for fast reads.
type StockRow struct {
	ProductID         int64     `json:"product_id" gorm:"primaryKey;autoIncrement:false"`
	LocationID        int64     `json:"location_id" gorm:"primaryKey;autoIncrement:false"`
	Qty               int       `json:"qty" gorm:"not null;default:0"`
	ReservedQty       int       `json:"reserved_qty" gorm:"not null;default:0"`
	LowStockThreshold *int      `json:"low_stock_threshold"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Ledger entry source tags. OAuth-attributed writes use "oauth_<desc>".
const (
	SourceOrderReduce    = "order_reduce"
	SourceOrderRestore   = "order_restore"
	SourceManualAdmin    = "manual_admin"
	SourceAPIStockUpdate = "api_stock_update"
	SourceLocationDelete = "location_delete"
	SourceSnapshotSync   = "snapshot_sync"
	SourceFillScan       = "fill_scan"
)

// LedgerEntry is one immutable audit record. Delta is the requested change;
// QtyAfter is the clamped result, so an oversell leaves a visible gap between
// QtyBefore+Delta and QtyAfter.
type LedgerEntry struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	ProductID  int64     `json:"product_id" gorm:"index:idx_ledger_product_location;not null"`
	LocationID int64     `json:"location_id" gorm:"index:idx_ledger_product_location;not null"`
	Delta      int       `json:"delta" gorm:"not null"`
	QtyBefore  int       `json:"qty_before" gorm:"not null"`
	QtyAfter   int       `json:"qty_after" gorm:"not null"`
	Source     string    `json:"source" gorm:"index;not null"`
	Who        string    `json:"who"`
	OrderID    *int64    `json:"order_id" gorm:"index"`
	Meta       *string   `json:"meta"` // structured context as JSON
	CreatedAt  time.Time `json:"created_at" gorm:"index"`
}

func (e *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}
