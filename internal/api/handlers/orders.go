package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"stockpoint/internal/fulfillment"
	"stockpoint/internal/logger"
	"stockpoint/internal/models"
	"stockpoint/internal/selection"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type OrderHandler struct {
	db     *gorm.DB
	hooks  *fulfillment.Hooks
	bridge *selection.Bridge
	logger *logger.Logger
}

func NewOrderHandler(db *gorm.DB, hooks *fulfillment.Hooks, bridge *selection.Bridge, logger *logger.Logger) *OrderHandler {
	return &OrderHandler{db: db, hooks: hooks, bridge: bridge, logger: logger}
}

type createOrderLine struct {
	ProductID int64 `json:"product_id" binding:"required,gt=0"`
	Quantity  int   `json:"quantity" binding:"required,gt=0"`
}

type createOrderRequest struct {
	Number         string              `json:"number" binding:"required"`
	LocationID     *int64              `json:"location_id"`
	DeliveryType   models.DeliveryType `json:"delivery_type"`
	ShippingMethod string              `json:"shipping_method"`
	CustomerID     *int64              `json:"customer_id"`
	Lines          []createOrderLine   `json:"lines" binding:"required,min=1"`
}

// Create captures an order with its fulfillment metadata. Location and mode
// come from the request when present, otherwise from the shopper's stored
// selection; once placed they never change.
func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order := models.Order{
		Number:         req.Number,
		LocationID:     req.LocationID,
		DeliveryType:   req.DeliveryType,
		ShippingMethod: req.ShippingMethod,
		CustomerID:     req.CustomerID,
	}

	if order.LocationID == nil || *order.LocationID == 0 {
		cookies := ginCookies{c}
		ident := selection.Identity{
			SessionToken: c.GetHeader("X-Session-Token"),
			GuestID:      selection.EnsureGuestID(cookies, c.GetHeader("X-Session-Token"), c.ClientIP(), c.Request.UserAgent()),
			UserID:       order.CustomerID,
		}
		if sel, err := h.bridge.Get(c.Request.Context(), ident, cookies); err == nil && sel != nil {
			order.LocationID = &sel.LocationID
			if order.DeliveryType == "" {
				order.DeliveryType = sel.DeliveryType
			}
			if order.ShippingMethod == "" {
				order.ShippingMethod = sel.ShippingMethod
			}
		}
	}

	for _, line := range req.Lines {
		order.Lines = append(order.Lines, models.OrderLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		})
	}

	if err := h.db.WithContext(c.Request.Context()).Create(&order).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create order"})
		return
	}

	// The hold is best-effort; a missing location just means no breakdown
	// adjustment until the reduce hook runs.
	if err := h.hooks.ReserveStock(c.Request.Context(), order.ID); err != nil {
		h.logger.Warn("stock reservation failed",
			zap.Int64("order_id", order.ID),
			zap.Error(err),
		)
	}

	c.JSON(http.StatusCreated, gin.H{"data": order})
}

func (h *OrderHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	var order models.Order
	err = h.db.WithContext(c.Request.Context()).
		Preload("Lines").
		Preload("Notes").
		First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch order"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": order})
}

// ReduceStock fires the order's reduce hook. Replays are no-ops.
func (h *OrderHandler) ReduceStock(c *gin.Context) {
	h.runHook(c, h.hooks.ReduceStock)
}

// RestoreStock is the mirror of ReduceStock.
func (h *OrderHandler) RestoreStock(c *gin.Context) {
	h.runHook(c, h.hooks.RestoreStock)
}

func (h *OrderHandler) runHook(c *gin.Context, hook func(ctx context.Context, orderID int64) error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	if err := hook(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, fulfillment.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		case errors.Is(err, fulfillment.ErrNoLocation):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "stock operation failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"order_id": id}})
}
