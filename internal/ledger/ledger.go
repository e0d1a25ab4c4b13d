package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stockpoint/internal/logger"
	"stockpoint/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInvalidIDs = errors.New("product and location ids must be positive")

// Context classifies one ledger mutation for the audit trail.
type Context struct {
	Source  string
	Who     string
	OrderID *int64
	Meta    map[string]interface{}
}

// Ledger owns the per-(product, location) stock rows and their append-only
// audit trail. Every mutation goes through ApplyDelta.
type Ledger struct {
	db     *gorm.DB
	logger *logger.Logger
}

func New(db *gorm.DB, logger *logger.Logger) *Ledger {
	return &Ledger{db: db, logger: logger}
}

// ApplyDelta applies a signed quantity change to one (product, location)
// pair and appends the matching audit entry in the same transaction. The
// resulting quantity is clamped at zero, but the entry records the requested
// delta so oversell magnitude stays auditable. Returns the before/after pair.
func (l *Ledger) ApplyDelta(ctx context.Context, productID, locationID int64, delta int, lc Context) (before, after int, err error) {
	if productID <= 0 || locationID <= 0 {
		return 0, 0, ErrInvalidIDs
	}
	if delta == 0 {
		// No-op by contract; callers short-circuit but guard here too.
		cur, err := l.Quantity(ctx, productID, locationID)
		return cur, cur, err
	}

	var meta *string
	if len(lc.Meta) > 0 {
		raw, mErr := json.Marshal(lc.Meta)
		if mErr != nil {
			return 0, 0, fmt.Errorf("encode ledger meta: %w", mErr)
		}
		s := string(raw)
		meta = &s
	}

	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, lockErr := lockRow(tx, productID, locationID)
		if lockErr != nil {
			return lockErr
		}

		before = row.Qty
		after = before + delta
		if after < 0 {
			after = 0
		}

		if err := tx.Model(&models.StockRow{}).
			Where("product_id = ? AND location_id = ?", productID, locationID).
			UpdateColumns(map[string]interface{}{
				"qty":        after,
				"updated_at": time.Now(),
			}).Error; err != nil {
			return fmt.Errorf("update stock row: %w", err)
		}

		// A stock row update without its audit entry is a consistency bug,
		// so the entry insert aborts the whole transaction on failure.
		entry := models.LedgerEntry{
			ProductID:  productID,
			LocationID: locationID,
			Delta:      delta,
			QtyBefore:  before,
			QtyAfter:   after,
			Source:     lc.Source,
			Who:        lc.Who,
			OrderID:    lc.OrderID,
			Meta:       meta,
			CreatedAt:  time.Now(),
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("append ledger entry: %w", err)
		}
		return nil
	})
	if err != nil {
		l.logger.Error("apply delta failed",
			zap.Int64("product_id", productID),
			zap.Int64("location_id", locationID),
			zap.Int("delta", delta),
			zap.String("source", lc.Source),
			zap.Error(err),
		)
		return 0, 0, err
	}

	if before+delta < 0 {
		l.logger.Warn("stock clamped at zero",
			zap.Int64("product_id", productID),
			zap.Int64("location_id", locationID),
			zap.Int("requested_delta", delta),
			zap.Int("qty_before", before),
		)
	}
	return before, after, nil
}

// lockRow returns the stock row for one pair, holding its row lock for the
// rest of the transaction on postgres. SQLite serializes writers on its own
// and rejects FOR UPDATE, so the clause is postgres-only. An absent row
// cannot be locked, so the pair is first claimed with an insert-if-absent; a
// lost claim means another writer created the row concurrently, and the
// locked read runs again to pick up that writer's committed value instead of
// overwriting it.
func lockRow(tx *gorm.DB, productID, locationID int64) (models.StockRow, error) {
	query := tx
	if tx.Dialector.Name() == "postgres" {
		query = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var row models.StockRow
	err := query.
		Where("product_id = ? AND location_id = ?", productID, locationID).
		First(&row).Error
	if err == nil || !errors.Is(err, gorm.ErrRecordNotFound) {
		return row, err
	}

	seed, claimed, err := claimRow(tx, productID, locationID)
	if err != nil {
		return row, err
	}
	if claimed {
		return seed, nil
	}

	err = query.
		Where("product_id = ? AND location_id = ?", productID, locationID).
		First(&row).Error
	return row, err
}

// claimRow inserts a zero-quantity row for the pair unless one already
// exists, and reports whether this caller created it. The insert never
// touches an existing row.
func claimRow(tx *gorm.DB, productID, locationID int64) (models.StockRow, bool, error) {
	seed := models.StockRow{
		ProductID:  productID,
		LocationID: locationID,
		UpdatedAt:  time.Now(),
	}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}, {Name: "location_id"}},
		DoNothing: true,
	}).Create(&seed)
	if res.Error != nil {
		return seed, false, fmt.Errorf("seed stock row: %w", res.Error)
	}
	return seed, res.RowsAffected > 0, nil
}

// AdjustReservation moves the reserved quantity for one pair by a signed
// amount, clamped at zero. Reservations are a soft hold placed when an order
// is captured and released when its reduce hook consumes the stock; they
// never touch qty and never append audit entries.
func (l *Ledger) AdjustReservation(ctx context.Context, productID, locationID int64, delta int) error {
	if productID <= 0 || locationID <= 0 {
		return ErrInvalidIDs
	}
	if delta == 0 {
		return nil
	}

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := lockRow(tx, productID, locationID)
		if err != nil {
			return err
		}

		reserved := row.ReservedQty + delta
		if reserved < 0 {
			reserved = 0
		}

		return tx.Model(&models.StockRow{}).
			Where("product_id = ? AND location_id = ?", productID, locationID).
			UpdateColumns(map[string]interface{}{
				"reserved_qty": reserved,
				"updated_at":   time.Now(),
			}).Error
	})
}

// Quantity reads the current quantity for one pair, zero when no row exists.
func (l *Ledger) Quantity(ctx context.Context, productID, locationID int64) (int, error) {
	var row models.StockRow
	err := l.db.WithContext(ctx).
		Where("product_id = ? AND location_id = ?", productID, locationID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return row.Qty, nil
}

// Rows returns all stock rows for a product, newest first.
func (l *Ledger) Rows(ctx context.Context, productID int64) ([]models.StockRow, error) {
	var rows []models.StockRow
	err := l.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("location_id").
		Find(&rows).Error
	return rows, err
}

// EntryFilters narrows the ledger report query.
type EntryFilters struct {
	ProductID  int64
	LocationID int64
	SKU        string
	Source     string
	Page       int
	PageSize   int
}

// Entries lists audit entries for the report UI, paginated, newest first.
func (l *Ledger) Entries(ctx context.Context, f EntryFilters) ([]models.LedgerEntry, int64, error) {
	query := l.db.WithContext(ctx).Model(&models.LedgerEntry{})

	if f.SKU != "" {
		query = query.Where(
			"product_id IN (?)",
			l.db.Model(&models.Product{}).Select("id").Where("sku = ?", f.SKU),
		)
	}
	if f.ProductID > 0 {
		query = query.Where("product_id = ?", f.ProductID)
	}
	if f.LocationID > 0 {
		query = query.Where("location_id = ?", f.LocationID)
	}
	if f.Source != "" {
		query = query.Where("source = ?", f.Source)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := f.Page
	if page < 1 {
		page = 1
	}
	size := f.PageSize
	if size <= 0 {
		size = 50
	}

	var entries []models.LedgerEntry
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&entries).Error
	return entries, total, err
}

// DeleteEntries bulk-deletes report rows by id. The ledger is append-only in
// normal operation; this exists for the admin report's cleanup action only.
func (l *Ledger) DeleteEntries(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := l.db.WithContext(ctx).Delete(&models.LedgerEntry{}, "id IN ?", ids)
	return res.RowsAffected, res.Error
}
