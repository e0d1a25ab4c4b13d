package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"stockpoint/internal/diagnostics"
	"stockpoint/internal/ingest"
	"stockpoint/internal/ledger"
	"stockpoint/internal/logger"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type AdminHandler struct {
	db     *gorm.DB
	diag   *diagnostics.Service
	ledger *ledger.Ledger
	logger *logger.Logger
}

func NewAdminHandler(db *gorm.DB, diag *diagnostics.Service, led *ledger.Ledger, logger *logger.Logger) *AdminHandler {
	return &AdminHandler{db: db, diag: diag, ledger: led, logger: logger}
}

// GhostStockCSV exports every product whose platform stock disagrees with
// the ledger sum.
func (h *AdminHandler) GhostStockCSV(c *gin.Context) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="ghost-stock.csv"`)
	if err := h.diag.WriteGhostStockCSV(c.Request.Context(), c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export ghost stock"})
	}
}

// Investigate is the read-only deep dive for one product.
func (h *AdminHandler) Investigate(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || productID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}

	report, err := h.diag.Investigate(c.Request.Context(), productID)
	if err != nil {
		if errors.Is(err, ledger.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "investigation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": report})
}

// FixStock forces the platform stock field to match the ledger sum.
func (h *AdminHandler) FixStock(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || productID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}

	actor := ingest.IdentifyActor(c.Request.Context(), h.db, c.Request)
	snap, err := h.diag.FixPlatformStock(c.Request.Context(), productID, actor.Who)
	if err != nil {
		if errors.Is(err, ledger.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "fix failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": snap})
}

// SyncSnapshot replays a product's stored snapshot map into the stock rows.
func (h *AdminHandler) SyncSnapshot(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || productID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}

	actor := ingest.IdentifyActor(c.Request.Context(), h.db, c.Request)
	snap, err := h.diag.SyncFromSnapshot(c.Request.Context(), productID, actor.Who)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrProductNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		case errors.Is(err, diagnostics.ErrNoSnapshot):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot sync failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": snap})
}

// DeleteOrphanRow removes a stock row pointing at a location that no longer
// exists.
func (h *AdminHandler) DeleteOrphanRow(c *gin.Context) {
	productID, err1 := strconv.ParseInt(c.Query("product_id"), 10, 64)
	locationID, err2 := strconv.ParseInt(c.Query("location_id"), 10, 64)
	if err1 != nil || err2 != nil || productID <= 0 || locationID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "product_id and location_id are required"})
		return
	}

	if err := h.diag.DeleteOrphanRow(c.Request.Context(), productID, locationID); err != nil {
		if errors.Is(err, diagnostics.ErrRowNotOrphan) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete orphan row"})
		return
	}
	c.JSON(http.StatusNoContent, nil)
}

// LedgerReport lists audit entries, filterable by SKU, product, location and
// source, paginated.
func (h *AdminHandler) LedgerReport(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	productID, _ := strconv.ParseInt(c.DefaultQuery("product_id", "0"), 10, 64)
	locationID, _ := strconv.ParseInt(c.DefaultQuery("location_id", "0"), 10, 64)

	entries, total, err := h.ledger.Entries(c.Request.Context(), ledger.EntryFilters{
		SKU:        c.Query("sku"),
		ProductID:  productID,
		LocationID: locationID,
		Source:     c.Query("source"),
		Page:       page,
		PageSize:   limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch ledger entries"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": entries,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

// BulkDeleteEntries is the report UI's bulk-delete action.
func (h *AdminHandler) BulkDeleteEntries(c *gin.Context) {
	var req bulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	deleted, err := h.ledger.DeleteEntries(c.Request.Context(), req.IDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete ledger entries"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": deleted}})
}
