package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stockpoint/internal/ledger"
	"stockpoint/internal/logger"
	"stockpoint/internal/models"
	"stockpoint/internal/registry"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrOrderNotFound = errors.New("order not found")

	// ErrNoLocation means no location could be resolved for the order and no
	// global pool is configured. This is a configuration error.
	ErrNoLocation = errors.New("no location resolved for order")
)

// LocationResolver is the extension hook consulted after order meta and the
// shipping-method mapping both fail to resolve a location.
type LocationResolver func(ctx context.Context, order *models.Order) (int64, bool)

// Hooks applies order stock events to the ledger. Reduce and restore are
// mirror operations, each gated by a set-once per-order flag so replays are
// no-ops rather than errors.
type Hooks struct {
	db        *gorm.DB
	ledger    *ledger.Ledger
	agg       *ledger.Aggregator
	registry  *registry.Registry
	publisher EventPublisher
	resolver  LocationResolver
	globalLoc int64
	logger    *logger.Logger
}

func NewHooks(
	db *gorm.DB,
	led *ledger.Ledger,
	agg *ledger.Aggregator,
	reg *registry.Registry,
	publisher EventPublisher,
	resolver LocationResolver,
	globalLocationID int64,
	logger *logger.Logger,
) *Hooks {
	return &Hooks{
		db:        db,
		ledger:    led,
		agg:       agg,
		registry:  reg,
		publisher: publisher,
		resolver:  resolver,
		globalLoc: globalLocationID,
		logger:    logger,
	}
}

// ReduceStock applies -quantity for every order line. Safe to call more than
// once: only the first call wins the idempotency flag.
func (h *Hooks) ReduceStock(ctx context.Context, orderID int64) error {
	return h.run(ctx, orderID, "reduce")
}

// RestoreStock is the mirror of ReduceStock with +quantity deltas.
func (h *Hooks) RestoreStock(ctx context.Context, orderID int64) error {
	return h.run(ctx, orderID, "restore")
}

// ReserveStock places a soft hold for every order line at the order's
// resolved location. The hold surfaces in the availability breakdown and is
// released again when the reduce hook consumes the stock.
func (h *Hooks) ReserveStock(ctx context.Context, orderID int64) error {
	var order models.Order
	if err := h.db.WithContext(ctx).Preload("Lines").First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOrderNotFound
		}
		return err
	}

	locationID, err := h.ResolveLocation(ctx, &order)
	if err != nil {
		return err
	}

	for _, line := range order.Lines {
		if line.Quantity <= 0 {
			continue
		}
		if err := h.ledger.AdjustReservation(ctx, line.ProductID, locationID, line.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hooks) run(ctx context.Context, orderID int64, op string) error {
	flag := "stock_reduced"
	source := models.SourceOrderReduce
	sign := -1
	if op == "restore" {
		flag = "stock_restored"
		source = models.SourceOrderRestore
		sign = 1
	}

	// Claim the set-once flag atomically; a second caller sees zero rows
	// affected and no-ops.
	res := h.db.WithContext(ctx).
		Model(&models.Order{}).
		Where(fmt.Sprintf("id = ? AND %s = ?", flag), orderID, false).
		UpdateColumn(flag, true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := h.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", orderID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrOrderNotFound
		}
		h.logger.Info("order stock operation already applied",
			zap.Int64("order_id", orderID),
			zap.String("operation", op),
		)
		return nil
	}

	var order models.Order
	if err := h.db.WithContext(ctx).Preload("Lines").First(&order, "id = ?", orderID).Error; err != nil {
		return err
	}

	locationID, err := h.ResolveLocation(ctx, &order)
	if err != nil {
		return err
	}

	who := fmt.Sprintf("order:%s", order.Number)
	var noteLines []string
	touched := make(map[int64]struct{}, len(order.Lines))

	for _, line := range order.Lines {
		if line.Quantity == 0 {
			continue
		}
		delta := sign * line.Quantity
		before, after, err := h.ledger.ApplyDelta(ctx, line.ProductID, locationID, delta, ledger.Context{
			Source:  source,
			Who:     who,
			OrderID: &order.ID,
		})
		if err != nil {
			// The flag is already claimed; a partial application is exactly
			// what the ghost-stock diagnostics exist to surface.
			h.logger.Error("order stock operation failed mid-way",
				zap.Int64("order_id", orderID),
				zap.Int64("product_id", line.ProductID),
				zap.String("operation", op),
				zap.Error(err),
			)
			return err
		}
		if sign < 0 {
			// The reduce consumes whatever soft hold order capture placed.
			if rErr := h.ledger.AdjustReservation(ctx, line.ProductID, locationID, -line.Quantity); rErr != nil {
				h.logger.Warn("reservation release failed",
					zap.Int64("order_id", orderID),
					zap.Int64("product_id", line.ProductID),
					zap.Error(rErr),
				)
			}
		}
		touched[line.ProductID] = struct{}{}
		noteLines = append(noteLines, fmt.Sprintf("product %d: %d -> %d (%+d)", line.ProductID, before, after, delta))
	}

	for productID := range touched {
		if _, err := h.agg.Recompute(ctx, productID); err != nil {
			return err
		}
	}

	if h.publisher != nil && len(touched) > 0 {
		ids := make([]int64, 0, len(touched))
		for id := range touched {
			ids = append(ids, id)
		}
		// Event delivery is best-effort; the ledger already holds the truth.
		_ = h.publisher.PublishStockChanged(ctx, StockChangedEvent{
			OrderID:    order.ID,
			LocationID: locationID,
			Operation:  op,
			ProductIDs: ids,
		})
	}

	if len(noteLines) > 0 {
		if err := h.addNote(ctx, &order, op, locationID, noteLines); err != nil {
			h.logger.Warn("order note write failed",
				zap.Int64("order_id", orderID),
				zap.Error(err),
			)
		}
	}

	if op == "reduce" && order.DeliveryType == models.DeliveryPickup {
		h.markNotified(ctx, &order, locationID)
	}

	h.logger.Info("order stock operation applied",
		zap.Int64("order_id", orderID),
		zap.String("operation", op),
		zap.Int64("location_id", locationID),
		zap.Int("lines", len(noteLines)),
	)
	return nil
}

// ResolveLocation picks the order's location with the documented priority:
// explicit order meta, then the shipping-method instance link, then the
// injected resolver hook, then the configured global pool.
func (h *Hooks) ResolveLocation(ctx context.Context, order *models.Order) (int64, error) {
	if order.LocationID != nil && *order.LocationID > 0 {
		return *order.LocationID, nil
	}

	if order.ShippingMethod != "" {
		loc, err := h.registry.ByShippingMethod(ctx, order.ShippingMethod)
		if err == nil {
			return loc.ID, nil
		}
		if !errors.Is(err, registry.ErrNotFound) {
			return 0, err
		}
	}

	if h.resolver != nil {
		if id, ok := h.resolver(ctx, order); ok && id > 0 {
			return id, nil
		}
	}

	if h.globalLoc > 0 {
		return h.globalLoc, nil
	}
	return 0, ErrNoLocation
}

// markNotified claims the set-once email flag for a pickup order. Mail
// delivery itself belongs to the host platform; the flag keeps whatever
// mailer picks this up single-shot.
func (h *Hooks) markNotified(ctx context.Context, order *models.Order, locationID int64) {
	res := h.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND email_sent = ?", order.ID, false).
		UpdateColumn("email_sent", true)
	if res.Error != nil {
		h.logger.Warn("email flag claim failed",
			zap.Int64("order_id", order.ID),
			zap.Error(res.Error),
		)
		return
	}
	if res.RowsAffected > 0 {
		h.logger.Info("pickup notification flagged for delivery",
			zap.Int64("order_id", order.ID),
			zap.Int64("location_id", locationID),
		)
	}
}

func (h *Hooks) addNote(ctx context.Context, order *models.Order, op string, locationID int64, lines []string) error {
	verb := "reduced"
	if op == "restore" {
		verb = "restored"
	}
	text := fmt.Sprintf("Stock %s at location %d:\n%s", verb, locationID, strings.Join(lines, "\n"))

	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		note := models.OrderNote{
			OrderID:   order.ID,
			Text:      text,
			CreatedAt: time.Now(),
		}
		if err := tx.Create(&note).Error; err != nil {
			return err
		}
		return tx.Model(order).UpdateColumn("note_added", true).Error
	})
}
