package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"stockpoint/internal/database"
	"stockpoint/internal/ledger"
	"stockpoint/internal/logger"
	"stockpoint/internal/models"

	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := database.New("sqlite://file:" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db.DB
}

func newTestGate(t *testing.T, db *gorm.DB, globalLoc int64) (*Gate, *ledger.Ledger, *Guard) {
	t.Helper()
	log := logger.NewNop()
	led := ledger.New(db, log)
	agg := ledger.NewAggregator(db, nil, log)
	guard := NewGuard(30 * time.Second)
	t.Cleanup(guard.Close)
	gate := NewGate(db, led, agg, guard, GlobalLocationStrategy{LocationID: globalLoc}, log)
	return gate, led, guard
}

func seedGateFixture(t *testing.T, db *gorm.DB, multi bool) {
	t.Helper()
	loc := models.Location{ID: 1, Name: "Global Pool", Kind: models.KindDistributionCenter, Email: "dc@example.com", Active: true}
	if err := db.Create(&loc).Error; err != nil {
		t.Fatalf("seed location: %v", err)
	}
	prod := models.Product{ID: 1, SKU: "A", Title: "P", MultiLocation: multi}
	if err := db.Create(&prod).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
}

func TestSetQuantityConvertsAbsoluteToDelta(t *testing.T) {
	db := testDB(t)
	seedGateFixture(t, db, true)
	gate, led, _ := newTestGate(t, db, 1)
	ctx := context.Background()

	led.ApplyDelta(ctx, 1, 1, 10, ledger.Context{Source: models.SourceManualAdmin})

	res, err := gate.SetQuantity(ctx, 1, 25, Actor{Who: "feed", Source: models.SourceAPIStockUpdate})
	if err != nil {
		t.Fatalf("SetQuantity returned error: %v", err)
	}
	if res.AppliedDelta != 15 {
		t.Fatalf("delta mismatch: got %d want 15", res.AppliedDelta)
	}
	if res.TotalStockAfter != 25 {
		t.Fatalf("total mismatch: got %d want 25", res.TotalStockAfter)
	}

	var entry models.LedgerEntry
	if err := db.Where("source = ?", models.SourceAPIStockUpdate).First(&entry).Error; err != nil {
		t.Fatalf("load entry: %v", err)
	}
	if entry.Delta != 15 || entry.LocationID != 1 {
		t.Fatalf("entry mismatch: delta=%d location=%d", entry.Delta, entry.LocationID)
	}
	if entry.Meta == nil || !strings.Contains(*entry.Meta, "requested_quantity") {
		t.Fatalf("entry meta must record the requested quantity: %v", entry.Meta)
	}
}

func TestSetQuantityEqualTotalIsNoOp(t *testing.T) {
	db := testDB(t)
	seedGateFixture(t, db, true)
	gate, led, _ := newTestGate(t, db, 1)
	ctx := context.Background()

	led.ApplyDelta(ctx, 1, 1, 10, ledger.Context{Source: models.SourceManualAdmin})

	res, err := gate.SetQuantity(ctx, 1, 10, Actor{Who: "feed", Source: models.SourceAPIStockUpdate})
	if err != nil {
		t.Fatalf("SetQuantity returned error: %v", err)
	}
	if res.AppliedDelta != 0 || res.TotalStockAfter != 10 {
		t.Fatalf("no-op mismatch: %+v", res)
	}

	var count int64
	db.Model(&models.LedgerEntry{}).Where("source = ?", models.SourceAPIStockUpdate).Count(&count)
	if count != 0 {
		t.Fatalf("no-op wrote %d entries", count)
	}
}

func TestSetQuantityRequiresInitialization(t *testing.T) {
	db := testDB(t)
	seedGateFixture(t, db, false)
	gate, _, _ := newTestGate(t, db, 1)

	if _, err := gate.SetQuantity(context.Background(), 1, 5, anonymousActor); err != ErrNotInitialized {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestSetQuantityUnknownProduct(t *testing.T) {
	db := testDB(t)
	gate, _, _ := newTestGate(t, db, 1)

	if _, err := gate.SetQuantity(context.Background(), 9, 5, anonymousActor); err != ledger.ErrProductNotFound {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestSetQuantityReentrantSkips(t *testing.T) {
	db := testDB(t)
	seedGateFixture(t, db, true)
	gate, _, guard := newTestGate(t, db, 1)

	if !guard.Enter(1) {
		t.Fatalf("initial latch failed")
	}
	defer guard.Leave(1)

	if _, err := gate.SetQuantity(context.Background(), 1, 5, anonymousActor); err != ErrReentrant {
		t.Fatalf("expected ErrReentrant, got %v", err)
	}
}

func TestApplyDeltaEndpoint(t *testing.T) {
	db := testDB(t)
	seedGateFixture(t, db, true)
	gate, _, _ := newTestGate(t, db, 1)
	ctx := context.Background()

	res, err := gate.ApplyDelta(ctx, 1, 1, 7, Actor{Who: "feed", Source: models.SourceAPIStockUpdate})
	if err != nil {
		t.Fatalf("ApplyDelta returned error: %v", err)
	}
	if res.LocationQtyAfter != 7 || res.TotalStockAfter != 7 {
		t.Fatalf("result mismatch: %+v", res)
	}
}

func TestUnimplementedStrategies(t *testing.T) {
	ctx := context.Background()
	if _, err := (ProportionalStrategy{}).Distribute(ctx, 1, 5); err != ErrStrategyNotImplemented {
		t.Fatalf("proportional: expected ErrStrategyNotImplemented, got %v", err)
	}
	if _, err := (PriorityStrategy{}).Distribute(ctx, 1, 5); err != ErrStrategyNotImplemented {
		t.Fatalf("priority: expected ErrStrategyNotImplemented, got %v", err)
	}
}
