package diagnostics

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"stockpoint/internal/ledger"
	"stockpoint/internal/logger"
	"stockpoint/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrRowNotOrphan = errors.New("stock row still belongs to an existing location")
	ErrNoSnapshot   = errors.New("product has no stored snapshot")
)

// Service implements the admin-facing reconciliation tooling around the
// ledger: the after-the-fact detectors and repairs for consistency drift
// between the platform stock field and the ledger sum.
type Service struct {
	db     *gorm.DB
	ledger *ledger.Ledger
	agg    *ledger.Aggregator
	logger *logger.Logger
}

func New(db *gorm.DB, led *ledger.Ledger, agg *ledger.Aggregator, logger *logger.Logger) *Service {
	return &Service{db: db, ledger: led, agg: agg, logger: logger}
}

// ProductReport is the read-only deep dive for one product.
type ProductReport struct {
	ProductID   int64             `json:"product_id"`
	SKU         string            `json:"sku"`
	PlatformQty int               `json:"platform_qty"`
	LedgerTotal int               `json:"ledger_total"`
	Drift       int               `json:"drift"`
	Rows        []models.StockRow `json:"rows"`
	Snapshot    *ledger.Snapshot  `json:"snapshot"`
	EntryCount  int64             `json:"ledger_entry_count"`
}

// Investigate compares the platform stock field against the ledger without
// changing anything.
func (s *Service) Investigate(ctx context.Context, productID int64) (*ProductReport, error) {
	var product models.Product
	if err := s.db.WithContext(ctx).First(&product, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledger.ErrProductNotFound
		}
		return nil, err
	}

	snap, err := s.agg.Snapshot(ctx, productID)
	if err != nil {
		return nil, err
	}
	rows, err := s.ledger.Rows(ctx, productID)
	if err != nil {
		return nil, err
	}

	var entryCount int64
	if err := s.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("product_id = ?", productID).
		Count(&entryCount).Error; err != nil {
		return nil, err
	}

	return &ProductReport{
		ProductID:   product.ID,
		SKU:         product.SKU,
		PlatformQty: product.StockQuantity,
		LedgerTotal: snap.Total,
		Drift:       product.StockQuantity - snap.Total,
		Rows:        rows,
		Snapshot:    snap,
		EntryCount:  entryCount,
	}, nil
}

// GhostRow is one product whose platform stock field disagrees with the
// ledger sum across active locations.
type GhostRow struct {
	ProductID   int64  `json:"product_id"`
	SKU         string `json:"sku"`
	PlatformQty int    `json:"platform_qty"`
	LedgerTotal int    `json:"ledger_total"`
	Drift       int    `json:"drift"`
}

// GhostStock scans every multi-location product for drift.
func (s *Service) GhostStock(ctx context.Context) ([]GhostRow, error) {
	var rows []GhostRow
	err := s.db.WithContext(ctx).
		Table("products").
		Select(`products.id AS product_id, products.sku, products.stock_quantity AS platform_qty,
			COALESCE(SUM(CASE WHEN locations.active THEN stock_rows.qty ELSE 0 END), 0) AS ledger_total,
			products.stock_quantity - COALESCE(SUM(CASE WHEN locations.active THEN stock_rows.qty ELSE 0 END), 0) AS drift`).
		Joins("LEFT JOIN stock_rows ON stock_rows.product_id = products.id").
		Joins("LEFT JOIN locations ON locations.id = stock_rows.location_id").
		Where("products.multi_location = ?", true).
		Group("products.id, products.sku, products.stock_quantity").
		Having("products.stock_quantity <> COALESCE(SUM(CASE WHEN locations.active THEN stock_rows.qty ELSE 0 END), 0)").
		Scan(&rows).Error
	return rows, err
}

// WriteGhostStockCSV streams the ghost report as CSV for the export action.
func (s *Service) WriteGhostStockCSV(ctx context.Context, w io.Writer) error {
	rows, err := s.GhostStock(ctx)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"product_id", "sku", "platform_qty", "ledger_total", "drift"}); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			strconv.FormatInt(r.ProductID, 10),
			r.SKU,
			strconv.Itoa(r.PlatformQty),
			strconv.Itoa(r.LedgerTotal),
			strconv.Itoa(r.Drift),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FixPlatformStock forces the platform stock field back to the ledger sum.
func (s *Service) FixPlatformStock(ctx context.Context, productID int64, who string) (*ledger.Snapshot, error) {
	snap, err := s.agg.Recompute(ctx, productID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("platform stock forced to ledger sum",
		zap.Int64("product_id", productID),
		zap.Int("total", snap.Total),
		zap.String("who", who),
	)
	return snap, nil
}

// SyncFromSnapshot replays the stored by-location snapshot map back into the
// stock row table, issuing one corrective ledger delta per location.
func (s *Service) SyncFromSnapshot(ctx context.Context, productID int64, who string) (*ledger.Snapshot, error) {
	var product models.Product
	if err := s.db.WithContext(ctx).First(&product, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledger.ErrProductNotFound
		}
		return nil, err
	}
	if product.StockByLocation == nil || *product.StockByLocation == "" {
		return nil, ErrNoSnapshot
	}

	var stored map[string]int
	if err := json.Unmarshal([]byte(*product.StockByLocation), &stored); err != nil {
		return nil, fmt.Errorf("decode stored snapshot: %w", err)
	}

	for key, target := range stored {
		locationID, err := strconv.ParseInt(key, 10, 64)
		if err != nil || locationID <= 0 {
			continue
		}
		current, err := s.ledger.Quantity(ctx, productID, locationID)
		if err != nil {
			return nil, err
		}
		delta := target - current
		if delta == 0 {
			continue
		}
		if _, _, err := s.ledger.ApplyDelta(ctx, productID, locationID, delta, ledger.Context{
			Source: models.SourceSnapshotSync,
			Who:    who,
		}); err != nil {
			return nil, err
		}
	}

	return s.agg.Recompute(ctx, productID)
}

// DeleteOrphanRow removes a stock row whose location no longer exists. Rows
// with a live location are refused; deactivating or deleting the location is
// the supported path for those.
func (s *Service) DeleteOrphanRow(ctx context.Context, productID, locationID int64) error {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Location{}).
		Where("id = ?", locationID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrRowNotOrphan
	}

	res := s.db.WithContext(ctx).
		Where("product_id = ? AND location_id = ?", productID, locationID).
		Delete(&models.StockRow{})
	if res.Error != nil {
		return res.Error
	}

	s.logger.Info("orphan stock row deleted",
		zap.Int64("product_id", productID),
		zap.Int64("location_id", locationID),
		zap.Int64("rows", res.RowsAffected),
	)

	_, err := s.agg.Recompute(ctx, productID)
	return err
}
