package worker

import (
	"context"
	"time"

	"stockpoint/internal/logger"
	"stockpoint/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const scanLockKey = "stockpoint:fill_scan"

// Locker is the expiring-mutex seam; redis backs it in production.
type Locker interface {
	AcquireLock(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, value string) error
}

// Scanner batch-inserts zero-quantity stock rows for every multi-location
// product and active location pair missing one, so new products and locations
// show up in breakdowns without waiting for their first delta. Concurrent
// runs are acquire-or-skip: whoever loses the lock simply no-ops.
type Scanner struct {
	db      *gorm.DB
	locker  Locker
	lockTTL time.Duration
	logger  *logger.Logger
}

func NewScanner(db *gorm.DB, locker Locker, lockTTL time.Duration, logger *logger.Logger) *Scanner {
	return &Scanner{db: db, locker: locker, lockTTL: lockTTL, logger: logger}
}

// Run executes one scan pass and returns how many rows were inserted.
func (s *Scanner) Run(ctx context.Context) (int, error) {
	token := uuid.New().String()
	acquired, err := s.locker.AcquireLock(ctx, scanLockKey, token, s.lockTTL)
	if err != nil {
		return 0, err
	}
	if !acquired {
		s.logger.Debug("fill scan already running, skipping")
		return 0, nil
	}
	defer func() {
		if err := s.locker.ReleaseLock(context.Background(), scanLockKey, token); err != nil {
			s.logger.Warn("fill scan lock release failed", zap.Error(err))
		}
	}()

	type pair struct {
		ProductID  int64
		LocationID int64
	}
	var missing []pair
	err = s.db.WithContext(ctx).
		Table("products").
		Select("products.id AS product_id, locations.id AS location_id").
		Joins("CROSS JOIN locations").
		Where("products.multi_location = ? AND locations.active = ?", true, true).
		Where(`NOT EXISTS (
			SELECT 1 FROM stock_rows
			WHERE stock_rows.product_id = products.id
			AND stock_rows.location_id = locations.id)`).
		Scan(&missing).Error
	if err != nil {
		return 0, err
	}
	if len(missing) == 0 {
		return 0, nil
	}

	rows := make([]models.StockRow, 0, len(missing))
	now := time.Now()
	for _, p := range missing {
		rows = append(rows, models.StockRow{
			ProductID:  p.ProductID,
			LocationID: p.LocationID,
			Qty:        0,
			UpdatedAt:  now,
		})
	}

	// A delta may have raced the scan; never overwrite an existing row.
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&rows, 200).Error
	if err != nil {
		return 0, err
	}

	s.logger.Info("fill scan inserted missing stock rows", zap.Int("rows", len(rows)))
	return len(rows), nil
}

// Loop runs the scanner on the configured interval until ctx is done.
func (s *Scanner) Loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil {
				s.logger.Error("fill scan failed", zap.Error(err))
			}
		}
	}
}
