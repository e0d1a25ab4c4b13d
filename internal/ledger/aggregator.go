package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"stockpoint/internal/logger"
	"stockpoint/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrProductNotFound = errors.New("product not found")

// Snapshot is the derived view of a product's stock across locations.
type Snapshot struct {
	ByLocation     map[int64]int  `json:"by_location"`
	ByLocationName map[string]int `json:"by_location_name"`
	Total          int            `json:"total"`
}

// ProductCache invalidates read-through caches after the aggregator writes.
type ProductCache interface {
	InvalidateProduct(ctx context.Context, productID int64) error
}

// Aggregator derives a product's total stock from the ledger's rows and
// keeps the platform product record (single quantity field, status and
// snapshot maps) in sync.
type Aggregator struct {
	db     *gorm.DB
	cache  ProductCache
	logger *logger.Logger
}

// NewAggregator builds an aggregator. cache may be nil when no read-through
// cache sits in front of products.
func NewAggregator(db *gorm.DB, cache ProductCache, logger *logger.Logger) *Aggregator {
	return &Aggregator{db: db, cache: cache, logger: logger}
}

// Recompute sums the product's stock rows across active locations, writes the
// total and snapshot maps back onto the product, and invalidates its cache.
// Rows belonging to inactive locations remain in the table but do not count.
func (a *Aggregator) Recompute(ctx context.Context, productID int64) (*Snapshot, error) {
	if productID <= 0 {
		return nil, ErrInvalidIDs
	}

	snap, err := a.Snapshot(ctx, productID)
	if err != nil {
		return nil, err
	}

	byID, err := json.Marshal(stringKeyed(snap.ByLocation))
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	byName, err := json.Marshal(snap.ByLocationName)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, "id = ?", productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProductNotFound
			}
			return err
		}

		status := models.StockStatusInStock
		if snap.Total <= 0 {
			if product.BackordersAllowed {
				status = models.StockStatusOnBackorder
			} else {
				status = models.StockStatusOutOfStock
			}
		}

		return tx.Model(&product).UpdateColumns(map[string]interface{}{
			"stock_quantity":         snap.Total,
			"stock_status":           status,
			"stock_by_location":      string(byID),
			"stock_by_location_name": string(byName),
			"updated_at":             time.Now(),
		}).Error
	})
	if err != nil {
		a.logger.Error("aggregate recompute failed",
			zap.Int64("product_id", productID),
			zap.Error(err),
		)
		return nil, err
	}

	if a.cache != nil {
		if err := a.cache.InvalidateProduct(ctx, productID); err != nil {
			// Stale cache is recoverable; a silent one is not.
			a.logger.Warn("product cache invalidation failed",
				zap.Int64("product_id", productID),
				zap.Error(err),
			)
		}
	}

	return snap, nil
}

// Snapshot computes the per-location view without writing anything back.
func (a *Aggregator) Snapshot(ctx context.Context, productID int64) (*Snapshot, error) {
	type row struct {
		LocationID int64
		Name       string
		Qty        int
	}
	var rows []row
	err := a.db.WithContext(ctx).
		Table("stock_rows").
		Select("stock_rows.location_id, locations.name, stock_rows.qty").
		Joins("JOIN locations ON locations.id = stock_rows.location_id").
		Where("stock_rows.product_id = ? AND locations.active = ?", productID, true).
		Order("stock_rows.location_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		ByLocation:     make(map[int64]int, len(rows)),
		ByLocationName: make(map[string]int, len(rows)),
	}
	for _, r := range rows {
		snap.ByLocation[r.LocationID] = r.Qty
		snap.ByLocationName[r.Name] = r.Qty
		snap.Total += r.Qty
	}
	return snap, nil
}

func stringKeyed(m map[int64]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[strconv.FormatInt(k, 10)] = v
	}
	return out
}
