package registry

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"stockpoint/internal/logger"
	"stockpoint/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNotFound     = errors.New("location not found")
	ErrInvalidInput = errors.New("invalid location")
)

// Registry is the catalog of fulfillment locations.
type Registry struct {
	db     *gorm.DB
	logger *logger.Logger
}

func New(db *gorm.DB, logger *logger.Logger) *Registry {
	return &Registry{db: db, logger: logger}
}

func (r *Registry) Get(ctx context.Context, id int64) (*models.Location, error) {
	var loc models.Location
	err := r.db.WithContext(ctx).
		Preload("Schedule").
		Preload("SpecialDays").
		First(&loc, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &loc, nil
}

// List returns locations, optionally only active ones, ordered by name.
func (r *Registry) List(ctx context.Context, activeOnly bool) ([]models.Location, error) {
	var locs []models.Location
	query := r.db.WithContext(ctx).Preload("Schedule").Preload("SpecialDays")
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	err := query.Order("name").Find(&locs).Error
	return locs, err
}

// ByShippingMethod finds the location explicitly linked to a shipping method
// instance id. Returns ErrNotFound when no link exists.
func (r *Registry) ByShippingMethod(ctx context.Context, methodID string) (*models.Location, error) {
	if methodID == "" {
		return nil, ErrNotFound
	}
	var loc models.Location
	err := r.db.WithContext(ctx).
		Where("shipping_method = ? AND active = ?", methodID, true).
		First(&loc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &loc, nil
}

func (r *Registry) Create(ctx context.Context, loc *models.Location) error {
	if err := validate(loc); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(loc).Error
}

func (r *Registry) Update(ctx context.Context, loc *models.Location) error {
	if loc.ID <= 0 {
		return ErrInvalidInput
	}
	if err := validate(loc); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Schedule and special days are replaced wholesale on update.
		if err := tx.Where("location_id = ?", loc.ID).Delete(&models.DaySchedule{}).Error; err != nil {
			return err
		}
		if err := tx.Where("location_id = ?", loc.ID).Delete(&models.SpecialDay{}).Error; err != nil {
			return err
		}
		return tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(loc).Error
	})
}

// Delete removes a location and cascades: every stock row and ledger entry
// for the location goes with it. It returns the product ids whose aggregates
// must be recomputed by the caller.
func (r *Registry) Delete(ctx context.Context, id int64) ([]int64, error) {
	if id <= 0 {
		return nil, ErrInvalidInput
	}

	var productIDs []int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.StockRow{}).
			Where("location_id = ?", id).
			Distinct().
			Pluck("product_id", &productIDs).Error; err != nil {
			return err
		}

		res := tx.Delete(&models.Location{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		if err := tx.Where("location_id = ?", id).Delete(&models.DaySchedule{}).Error; err != nil {
			return err
		}
		if err := tx.Where("location_id = ?", id).Delete(&models.SpecialDay{}).Error; err != nil {
			return err
		}
		if err := tx.Where("location_id = ?", id).Delete(&models.StockRow{}).Error; err != nil {
			return err
		}
		return tx.Where("location_id = ?", id).Delete(&models.LedgerEntry{}).Error
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("location deleted",
		zap.Int64("location_id", id),
		zap.Int("affected_products", len(productIDs)),
	)
	return productIDs, nil
}

func validate(loc *models.Location) error {
	if loc.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if loc.Kind != models.KindStore && loc.Kind != models.KindDistributionCenter {
		return fmt.Errorf("%w: kind must be store or distribution_center", ErrInvalidInput)
	}
	if loc.Email == "" {
		return fmt.Errorf("%w: contact email is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(loc.Email); err != nil {
		return fmt.Errorf("%w: contact email is malformed", ErrInvalidInput)
	}
	for _, ds := range loc.Schedule {
		if ds.Weekday < 0 || ds.Weekday > 6 {
			return fmt.Errorf("%w: weekday out of range", ErrInvalidInput)
		}
	}
	return nil
}
