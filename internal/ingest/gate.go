package ingest

import (
	"context"
	"errors"
	"fmt"

	"stockpoint/internal/ledger"
	"stockpoint/internal/logger"
	"stockpoint/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotInitialized rejects writes against products that were never
	// initialized for multi-location stock.
	ErrNotInitialized = errors.New("product not initialized for multi-location stock")

	// ErrReentrant marks a write the gate recognized as its own write-back.
	// Callers treat it as a no-op, not a failure.
	ErrReentrant = errors.New("re-entrant stock write skipped")

	// ErrStrategyNotImplemented marks the documented extension point for
	// spreading an external update across multiple locations.
	ErrStrategyNotImplemented = errors.New("distribution strategy not implemented")
)

// Allocation is one slice of an external update routed to a location.
type Allocation struct {
	LocationID int64
	Delta      int
}

// DistributionStrategy decides how an external absolute-quantity update is
// split across locations. Only the single-global-location strategy is
// implemented; proportional and priority distribution are declared stubs.
type DistributionStrategy interface {
	Name() string
	Distribute(ctx context.Context, productID int64, delta int) ([]Allocation, error)
}

// GlobalLocationStrategy applies the entire delta to one designated location.
type GlobalLocationStrategy struct {
	LocationID int64
}

func (s GlobalLocationStrategy) Name() string { return "global" }

func (s GlobalLocationStrategy) Distribute(_ context.Context, _ int64, delta int) ([]Allocation, error) {
	if s.LocationID <= 0 {
		return nil, fmt.Errorf("global strategy: %w", ledger.ErrInvalidIDs)
	}
	return []Allocation{{LocationID: s.LocationID, Delta: delta}}, nil
}

// ProportionalStrategy would spread the delta across locations in proportion
// to their current stock. Deliberately unimplemented.
type ProportionalStrategy struct{}

func (ProportionalStrategy) Name() string { return "proportional" }
func (ProportionalStrategy) Distribute(context.Context, int64, int) ([]Allocation, error) {
	return nil, ErrStrategyNotImplemented
}

// PriorityStrategy would fill locations in a configured priority order.
// Deliberately unimplemented.
type PriorityStrategy struct{}

func (PriorityStrategy) Name() string { return "priority" }
func (PriorityStrategy) Distribute(context.Context, int64, int) ([]Allocation, error) {
	return nil, ErrStrategyNotImplemented
}

// Result is what stock-mutating endpoints return to the caller.
type Result struct {
	AppliedDelta     int             `json:"applied_delta"`
	LocationQtyAfter int             `json:"location_qty_after"`
	TotalStockAfter  int             `json:"total_stock_after"`
	Snapshots        *ledger.Snapshot `json:"snapshots"`
}

// Gate intercepts external stock writes before they land on the product's
// single stock-quantity field and routes them through the ledger instead.
type Gate struct {
	db       *gorm.DB
	ledger   *ledger.Ledger
	agg      *ledger.Aggregator
	guard    *Guard
	strategy DistributionStrategy
	logger   *logger.Logger
}

func NewGate(db *gorm.DB, led *ledger.Ledger, agg *ledger.Aggregator, guard *Guard, strategy DistributionStrategy, logger *logger.Logger) *Gate {
	return &Gate{
		db:       db,
		ledger:   led,
		agg:      agg,
		guard:    guard,
		strategy: strategy,
		logger:   logger,
	}
}

// SetQuantity handles an inbound absolute-quantity write: the requested value
// is converted into a delta against the current ledger total and distributed
// by the configured strategy. The aggregator's write-back to the product
// field is shielded from re-interception by the guard.
func (g *Gate) SetQuantity(ctx context.Context, productID int64, quantity int, actor Actor) (*Result, error) {
	if productID <= 0 {
		return nil, ledger.ErrInvalidIDs
	}
	if err := g.requireInitialized(ctx, productID); err != nil {
		return nil, err
	}

	if !g.guard.Enter(productID) {
		g.logger.Debug("skipping re-entrant stock write", zap.Int64("product_id", productID))
		return nil, ErrReentrant
	}
	defer g.guard.Leave(productID)

	snap, err := g.agg.Snapshot(ctx, productID)
	if err != nil {
		return nil, err
	}
	delta := quantity - snap.Total
	if delta == 0 {
		return &Result{TotalStockAfter: snap.Total, Snapshots: snap}, nil
	}

	allocations, err := g.strategy.Distribute(ctx, productID, delta)
	if err != nil {
		return nil, err
	}

	var lastAfter int
	for _, alloc := range allocations {
		if alloc.Delta == 0 {
			continue
		}
		_, after, err := g.ledger.ApplyDelta(ctx, productID, alloc.LocationID, alloc.Delta, ledger.Context{
			Source: actor.Source,
			Who:    actor.Who,
			Meta: map[string]interface{}{
				"requested_quantity": quantity,
				"strategy":           g.strategy.Name(),
			},
		})
		if err != nil {
			return nil, err
		}
		lastAfter = after
	}

	newSnap, err := g.agg.Recompute(ctx, productID)
	if err != nil {
		return nil, err
	}

	g.logger.Info("external stock update ingested",
		zap.Int64("product_id", productID),
		zap.Int("requested_quantity", quantity),
		zap.Int("delta", delta),
		zap.String("who", actor.Who),
		zap.String("strategy", g.strategy.Name()),
	)

	return &Result{
		AppliedDelta:     delta,
		LocationQtyAfter: lastAfter,
		TotalStockAfter:  newSnap.Total,
		Snapshots:        newSnap,
	}, nil
}

// ApplyDelta handles the relative-delta ingestion endpoint: one signed change
// against one explicit location, with the same initialization requirement.
func (g *Gate) ApplyDelta(ctx context.Context, productID, locationID int64, delta int, actor Actor) (*Result, error) {
	if productID <= 0 || locationID <= 0 {
		return nil, ledger.ErrInvalidIDs
	}
	if err := g.requireInitialized(ctx, productID); err != nil {
		return nil, err
	}

	_, after, err := g.ledger.ApplyDelta(ctx, productID, locationID, delta, ledger.Context{
		Source: actor.Source,
		Who:    actor.Who,
	})
	if err != nil {
		return nil, err
	}

	snap, err := g.agg.Recompute(ctx, productID)
	if err != nil {
		return nil, err
	}

	return &Result{
		AppliedDelta:     delta,
		LocationQtyAfter: after,
		TotalStockAfter:  snap.Total,
		Snapshots:        snap,
	}, nil
}

func (g *Gate) requireInitialized(ctx context.Context, productID int64) error {
	var product models.Product
	err := g.db.WithContext(ctx).Select("id", "multi_location").First(&product, "id = ?", productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.ErrProductNotFound
	}
	if err != nil {
		return err
	}
	if !product.MultiLocation {
		return ErrNotInitialized
	}
	return nil
}
