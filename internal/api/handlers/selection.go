package handlers

import (
	"net/http"
	"strconv"
	"time"

	"stockpoint/internal/logger"
	"stockpoint/internal/models"
	"stockpoint/internal/rates"
	"stockpoint/internal/selection"
	"stockpoint/internal/services/postcode"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SelectionHandler struct {
	bridge   *selection.Bridge
	postcode *postcode.Client
	logger   *logger.Logger
}

// NewSelectionHandler builds the selection endpoints. lookup may be nil when
// no address-lookup service is configured.
func NewSelectionHandler(bridge *selection.Bridge, lookup *postcode.Client, logger *logger.Logger) *SelectionHandler {
	return &SelectionHandler{bridge: bridge, postcode: lookup, logger: logger}
}

// ginCookies adapts the request/response cookie jar to the bridge's seam.
type ginCookies struct {
	c *gin.Context
}

func (g ginCookies) GetCookie(name string) (string, bool) {
	val, err := g.c.Cookie(name)
	if err != nil || val == "" {
		return "", false
	}
	return val, true
}

func (g ginCookies) SetCookie(name, value string, ttl time.Duration) {
	g.c.SetCookie(name, value, int(ttl.Seconds()), "/", "", false, true)
}

func (g ginCookies) DeleteCookie(name string) {
	g.c.SetCookie(name, "", -1, "/", "", false, true)
}

// identity assembles every shopper signal the bridge can key on. The host
// platform injects the authenticated user id; everything else is derived
// from the request.
func (h *SelectionHandler) identity(c *gin.Context, cookies selection.CookieCarrier) selection.Identity {
	ident := selection.Identity{}

	if token := c.GetHeader("X-Session-Token"); token != "" {
		ident.SessionToken = token
	} else if token, err := c.Cookie("sp_session"); err == nil {
		ident.SessionToken = token
	}

	if raw := c.GetHeader("X-User-ID"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			ident.UserID = &id
		}
	}

	ident.GuestID = selection.EnsureGuestID(cookies, ident.SessionToken, c.ClientIP(), c.Request.UserAgent())
	return ident
}

func (h *SelectionHandler) Get(c *gin.Context) {
	cookies := ginCookies{c}
	ident := h.identity(c, cookies)

	sel, err := h.bridge.Get(c.Request.Context(), ident, cookies)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read selection"})
		return
	}
	if sel == nil {
		c.JSON(http.StatusOK, gin.H{"data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sel})
}

type setSelectionRequest struct {
	LocationID     int64               `json:"location_id"`
	DeliveryType   models.DeliveryType `json:"delivery_type"`
	ShippingMethod string              `json:"shipping_method"`
	Postcode       string              `json:"postcode"`
}

func (h *SelectionHandler) Set(c *gin.Context) {
	var req setSelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.LocationID != 0 &&
		req.DeliveryType != models.DeliveryPickup && req.DeliveryType != models.DeliveryShipping {
		c.JSON(http.StatusBadRequest, gin.H{"error": "delivery_type must be pickup or delivery"})
		return
	}
	if req.Postcode != "" && !postcode.Valid(req.Postcode) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed postcode"})
		return
	}

	// Address enrichment is best-effort: a slow or dead lookup service must
	// never block the selection.
	if req.Postcode != "" && h.postcode != nil {
		if addr := h.postcode.Lookup(c.Request.Context(), req.Postcode); addr != nil {
			req.Postcode = addr.Postcode
			h.logger.Debug("postcode enriched",
				zap.String("postcode", addr.Postcode),
				zap.String("city", addr.City),
			)
		}
	}

	cookies := ginCookies{c}
	ident := h.identity(c, cookies)

	sel := &selection.Selection{
		LocationID:     req.LocationID,
		DeliveryType:   req.DeliveryType,
		ShippingMethod: req.ShippingMethod,
		Postcode:       req.Postcode,
	}
	if err := h.bridge.Set(c.Request.Context(), ident, cookies, sel); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist selection"})
		return
	}

	if req.LocationID == 0 {
		c.JSON(http.StatusOK, gin.H{"data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sel})
}

func (h *SelectionHandler) Clear(c *gin.Context) {
	cookies := ginCookies{c}
	ident := h.identity(c, cookies)

	if err := h.bridge.Clear(c.Request.Context(), ident, cookies); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear selection"})
		return
	}
	c.JSON(http.StatusNoContent, nil)
}

type selectRatesRequest struct {
	Rates []rates.ShippingRate `json:"rates" binding:"required"`
}

// SelectRates marks the rate matching the stored selection as chosen. The
// full rate list always comes back.
func (h *SelectionHandler) SelectRates(c *gin.Context) {
	var req selectRatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cookies := ginCookies{c}
	ident := h.identity(c, cookies)

	stored := ""
	if sel, err := h.bridge.Get(c.Request.Context(), ident, cookies); err == nil && sel != nil {
		stored = sel.ShippingMethod
	}

	c.JSON(http.StatusOK, gin.H{"data": rates.Select(req.Rates, stored)})
}
