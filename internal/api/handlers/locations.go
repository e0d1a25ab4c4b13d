package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"stockpoint/internal/deadline"
	"stockpoint/internal/ledger"
	"stockpoint/internal/logger"
	"stockpoint/internal/models"
	"stockpoint/internal/registry"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type LocationHandler struct {
	registry *registry.Registry
	agg      *ledger.Aggregator
	calc     *deadline.Calculator
	logger   *logger.Logger
}

func NewLocationHandler(reg *registry.Registry, agg *ledger.Aggregator, calc *deadline.Calculator, logger *logger.Logger) *LocationHandler {
	return &LocationHandler{registry: reg, agg: agg, calc: calc, logger: logger}
}

func (h *LocationHandler) List(c *gin.Context) {
	activeOnly := c.DefaultQuery("active", "") == "true"
	locs, err := h.registry.List(c.Request.Context(), activeOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch locations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": locs})
}

func (h *LocationHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid location id"})
		return
	}

	loc, err := h.registry.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "location not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch location"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": loc})
}

func (h *LocationHandler) Create(c *gin.Context) {
	var loc models.Location
	if err := c.ShouldBindJSON(&loc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.registry.Create(c.Request.Context(), &loc); err != nil {
		if errors.Is(err, registry.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create location"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": loc})
}

func (h *LocationHandler) Update(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid location id"})
		return
	}

	var loc models.Location
	if err := c.ShouldBindJSON(&loc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	loc.ID = id

	if err := h.registry.Update(c.Request.Context(), &loc); err != nil {
		if errors.Is(err, registry.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update location"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": loc})
}

// Delete cascades: the registry drops the location's rows and entries, then
// every affected product's aggregate is recomputed here.
func (h *LocationHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid location id"})
		return
	}

	productIDs, err := h.registry.Delete(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "location not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete location"})
		return
	}

	for _, productID := range productIDs {
		if _, err := h.agg.Recompute(c.Request.Context(), productID); err != nil {
			h.logger.Error("recompute after location delete failed",
				zap.Int64("location_id", id),
				zap.Int64("product_id", productID),
				zap.Error(err),
			)
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"recomputed_products": len(productIDs)}})
}

// Deadline previews the prepare-by deadline for a location, optionally at an
// explicit reference time (RFC 3339 "at" query param).
func (h *LocationHandler) Deadline(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid location id"})
		return
	}

	ref := time.Now()
	if at := c.Query("at"); at != "" {
		parsed, err := time.Parse(time.RFC3339, at)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reference time, want RFC 3339"})
			return
		}
		ref = parsed
	}

	loc, err := h.registry.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "location not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch location"})
		return
	}

	at, err := h.calc.Compute(loc, ref)
	if err != nil {
		// A calendar that never opens is a configuration problem, shown to
		// the shopper as plain unavailability.
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "pickup currently unavailable at this location"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"deadline": at.Format(time.RFC3339),
		"message":  h.calc.Message(ref, at),
	}})
}
