package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"stockpoint/internal/ingest"
	"stockpoint/internal/ledger"
	"stockpoint/internal/logger"
	"stockpoint/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type StockHandler struct {
	db     *gorm.DB
	gate   *ingest.Gate
	ledger *ledger.Ledger
	agg    *ledger.Aggregator
	logger *logger.Logger
}

func NewStockHandler(db *gorm.DB, gate *ingest.Gate, led *ledger.Ledger, agg *ledger.Aggregator, logger *logger.Logger) *StockHandler {
	return &StockHandler{db: db, gate: gate, ledger: led, agg: agg, logger: logger}
}

type applyDeltaRequest struct {
	ProductID  int64  `json:"product_id" binding:"required,gt=0"`
	LocationID int64  `json:"location_id" binding:"required,gt=0"`
	Delta      int    `json:"delta" binding:"required"`
	Source     string `json:"source"`
	Who        string `json:"who"`
}

// ApplyDelta is the REST delta-ingestion endpoint.
func (h *StockHandler) ApplyDelta(c *gin.Context) {
	var req applyDeltaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor := ingest.IdentifyActor(c.Request.Context(), h.db, c.Request)
	if req.Who != "" {
		actor.Who = req.Who
	}
	if req.Source != "" {
		actor.Source = req.Source
	}

	result, err := h.gate.ApplyDelta(c.Request.Context(), req.ProductID, req.LocationID, req.Delta, actor)
	if err != nil {
		h.renderStockError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

// SetQuantity intercepts an absolute stock write bound for the product's
// single stock field and routes it through the ledger.
func (h *StockHandler) SetQuantity(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || productID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}

	var req setQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor := ingest.IdentifyActor(c.Request.Context(), h.db, c.Request)
	result, err := h.gate.SetQuantity(c.Request.Context(), productID, *req.Quantity, actor)
	if err != nil {
		if errors.Is(err, ingest.ErrReentrant) {
			c.JSON(http.StatusOK, gin.H{"data": gin.H{"skipped": true}})
			return
		}
		h.renderStockError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

type breakdownRow struct {
	LocationID   int64  `json:"location_id"`
	LocationName string `json:"location_name"`
	Qty          int    `json:"qty"`
	ReservedQty  int    `json:"reserved_qty"`
	LowStock     bool   `json:"low_stock"`
}

// Breakdown is the read-only per-product stock view across active locations.
func (h *StockHandler) Breakdown(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || productID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}

	type row struct {
		LocationID        int64
		Name              string
		Qty               int
		ReservedQty       int
		LowStockThreshold *int
	}
	var rows []row
	err = h.db.WithContext(c.Request.Context()).
		Table("stock_rows").
		Select("stock_rows.location_id, locations.name, stock_rows.qty, stock_rows.reserved_qty, stock_rows.low_stock_threshold").
		Joins("JOIN locations ON locations.id = stock_rows.location_id").
		Where("stock_rows.product_id = ? AND locations.active = ?", productID, true).
		Order("stock_rows.location_id").
		Scan(&rows).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch stock breakdown"})
		return
	}

	out := make([]breakdownRow, 0, len(rows))
	available := 0
	for _, r := range rows {
		low := r.LowStockThreshold != nil && r.Qty <= *r.LowStockThreshold
		out = append(out, breakdownRow{
			LocationID:   r.LocationID,
			LocationName: r.Name,
			Qty:          r.Qty,
			ReservedQty:  r.ReservedQty,
			LowStock:     low,
		})
		available += r.Qty - r.ReservedQty
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"locations":        out,
		"global_available": available,
	}})
}

// Initialize flags a product for multi-location stock and seeds its
// aggregate columns.
func (h *StockHandler) Initialize(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || productID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}

	res := h.db.WithContext(c.Request.Context()).
		Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumn("multi_location", true)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to initialize product"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		return
	}

	snap, err := h.agg.Recompute(c.Request.Context(), productID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to recompute aggregate"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": snap})
}

func (h *StockHandler) renderStockError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidIDs):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
	case errors.Is(err, ingest.ErrNotInitialized):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ingest.ErrStrategyNotImplemented):
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stock operation failed"})
	}
}
