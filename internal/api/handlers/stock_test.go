package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stockpoint/internal/database"
	"stockpoint/internal/ingest"
	"stockpoint/internal/ledger"
	"stockpoint/internal/logger"
	"stockpoint/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func stockTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := database.New("sqlite://file:" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log := logger.NewNop()
	led := ledger.New(db.DB, log)
	agg := ledger.NewAggregator(db.DB, nil, log)
	guard := ingest.NewGuard(30 * time.Second)
	t.Cleanup(guard.Close)
	gate := ingest.NewGate(db.DB, led, agg, guard, ingest.GlobalLocationStrategy{LocationID: 1}, log)

	h := NewStockHandler(db.DB, gate, led, agg, log)

	r := gin.New()
	r.POST("/stock/delta", h.ApplyDelta)
	r.GET("/products/:id/stock", h.Breakdown)
	r.PUT("/products/:id/stock", h.SetQuantity)
	r.POST("/products/:id/initialize", h.Initialize)
	return r, db.DB
}

func seedStockFixture(t *testing.T, db *gorm.DB) {
	t.Helper()
	loc := models.Location{ID: 1, Name: "Store", Kind: models.KindStore, Email: "s@example.com", Active: true}
	if err := db.Create(&loc).Error; err != nil {
		t.Fatalf("seed location: %v", err)
	}
	prod := models.Product{ID: 1, SKU: "A", Title: "P", MultiLocation: true}
	if err := db.Create(&prod).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestApplyDeltaEndpoint(t *testing.T) {
	r, db := stockTestRouter(t)
	seedStockFixture(t, db)

	w := doJSON(t, r, "POST", "/stock/delta",
		`{"product_id":1,"location_id":1,"delta":5,"who":"tester"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data ingest.Result `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.LocationQtyAfter != 5 || resp.Data.TotalStockAfter != 5 {
		t.Fatalf("result mismatch: %+v", resp.Data)
	}

	var entry models.LedgerEntry
	if err := db.First(&entry).Error; err != nil {
		t.Fatalf("load entry: %v", err)
	}
	if entry.Who != "tester" {
		t.Fatalf("who override not applied: %q", entry.Who)
	}
}

func TestApplyDeltaValidation(t *testing.T) {
	r, db := stockTestRouter(t)
	seedStockFixture(t, db)

	w := doJSON(t, r, "POST", "/stock/delta", `{"product_id":1,"delta":5}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing location must be 400, got %d", w.Code)
	}
}

func TestSetQuantityUninitializedConflict(t *testing.T) {
	r, db := stockTestRouter(t)
	seedStockFixture(t, db)
	db.Model(&models.Product{}).Where("id = ?", 1).UpdateColumn("multi_location", false)

	w := doJSON(t, r, "PUT", "/products/1/stock", `{"quantity":10}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("uninitialized product must be 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSetQuantityUnknownProduct(t *testing.T) {
	r, _ := stockTestRouter(t)

	w := doJSON(t, r, "PUT", "/products/99/stock", `{"quantity":10}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown product must be 404, got %d", w.Code)
	}
}

func TestBreakdown(t *testing.T) {
	r, db := stockTestRouter(t)
	seedStockFixture(t, db)

	threshold := 5
	rows := []models.StockRow{
		{ProductID: 1, LocationID: 1, Qty: 3, ReservedQty: 1, LowStockThreshold: &threshold},
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatalf("seed rows: %v", err)
	}

	w := doJSON(t, r, "GET", "/products/1/stock", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data struct {
			Locations []struct {
				LocationID  int64 `json:"location_id"`
				Qty         int   `json:"qty"`
				ReservedQty int   `json:"reserved_qty"`
				LowStock    bool  `json:"low_stock"`
			} `json:"locations"`
			GlobalAvailable int `json:"global_available"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data.Locations) != 1 {
		t.Fatalf("location count mismatch: %d", len(resp.Data.Locations))
	}
	if !resp.Data.Locations[0].LowStock {
		t.Fatalf("low stock flag not set at qty 3 / threshold 5")
	}
	if resp.Data.GlobalAvailable != 2 {
		t.Fatalf("global available mismatch: got %d want 2", resp.Data.GlobalAvailable)
	}
}

func TestInitialize(t *testing.T) {
	r, db := stockTestRouter(t)
	seedStockFixture(t, db)
	db.Model(&models.Product{}).Where("id = ?", 1).UpdateColumn("multi_location", false)

	w := doJSON(t, r, "POST", "/products/1/initialize", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}

	var product models.Product
	db.First(&product, "id = ?", 1)
	if !product.MultiLocation {
		t.Fatalf("multi_location flag not set")
	}

	w = doJSON(t, r, "POST", "/products/42/initialize", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown product must be 404, got %d", w.Code)
	}
}
