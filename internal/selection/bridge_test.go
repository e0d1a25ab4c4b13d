package selection

import (
	"context"
	"strings"
	"testing"
	"time"

	"stockpoint/internal/database"
	"stockpoint/internal/logger"
	"stockpoint/internal/models"

	"gorm.io/gorm"
)

type memKV struct {
	m map[string]string
}

func newMemKV() *memKV { return &memKV{m: make(map[string]string)} }

func (k *memKV) Get(ctx context.Context, key string) (string, error) {
	return k.m[key], nil
}

func (k *memKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	k.m[key] = value
	return nil
}

func (k *memKV) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(k.m, key)
	}
	return nil
}

type memCookies struct {
	m map[string]string
}

func newMemCookies() *memCookies { return &memCookies{m: make(map[string]string)} }

func (c *memCookies) GetCookie(name string) (string, bool) {
	v, ok := c.m[name]
	return v, ok
}

func (c *memCookies) SetCookie(name, value string, ttl time.Duration) {
	c.m[name] = value
}

func (c *memCookies) DeleteCookie(name string) {
	delete(c.m, name)
}

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

func newTestBridge(t *testing.T, kv KV) *Bridge {
	t.Helper()
	return NewBridge(testDB(t), kv, "test-secret", time.Hour, 45*time.Minute, logger.NewNop())
}

func TestSetThenGetViaSession(t *testing.T) {
	kv := newMemKV()
	b := newTestBridge(t, kv)
	cookies := newMemCookies()
	ident := Identity{SessionToken: "tok-1", GuestID: "guest-1"}
	ctx := context.Background()

	in := &Selection{LocationID: 7, DeliveryType: models.DeliveryPickup, ShippingMethod: "local_pickup:5"}
	if err := b.Set(ctx, ident, cookies, in); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	out, err := b.Get(ctx, ident, cookies)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if out == nil || out.LocationID != 7 || out.DeliveryType != models.DeliveryPickup {
		t.Fatalf("selection round trip mismatch: %+v", out)
	}
}

func TestGetFallsBackToCookieAndReconciles(t *testing.T) {
	kv := newMemKV()
	b := newTestBridge(t, kv)
	cookies := newMemCookies()
	ident := Identity{SessionToken: "tok-1", GuestID: "guest-1"}
	ctx := context.Background()

	if err := b.Set(ctx, ident, cookies, &Selection{LocationID: 3, DeliveryType: models.DeliveryPickup}); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	// Simulate an expired session store: only the cookie survives.
	kv.m = make(map[string]string)

	out, err := b.Get(ctx, ident, cookies)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if out == nil || out.LocationID != 3 {
		t.Fatalf("cookie fallback failed: %+v", out)
	}
	if kv.m[sessionKeyPrefix+"tok-1"] == "" {
		t.Fatalf("fallback hit must be reconciled into the session store")
	}
}

func TestGetFallsBackToTransient(t *testing.T) {
	kv := newMemKV()
	b := newTestBridge(t, kv)
	ident := Identity{SessionToken: "tok-2", GuestID: "guest-2"}
	ctx := context.Background()

	if err := b.Set(ctx, ident, nil, &Selection{LocationID: 9, DeliveryType: models.DeliveryShipping}); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	delete(kv.m, sessionKeyPrefix+"tok-2")

	out, err := b.Get(ctx, ident, nil)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if out == nil || out.LocationID != 9 {
		t.Fatalf("transient fallback failed: %+v", out)
	}
}

func TestGetFallsBackToUserPreference(t *testing.T) {
	kv := newMemKV()
	b := newTestBridge(t, kv)
	ctx := context.Background()

	locID := int64(4)
	user := models.User{
		Email:                   "shopper@example.com",
		PreferredLocationID:     &locID,
		PreferredDeliveryType:   models.DeliveryPickup,
		PreferredShippingMethod: "local_pickup:2",
	}
	if err := b.db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	ident := Identity{SessionToken: "tok-3", UserID: &user.ID}
	out, err := b.Get(ctx, ident, nil)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if out == nil || out.LocationID != 4 || out.ShippingMethod != "local_pickup:2" {
		t.Fatalf("user preference fallback failed: %+v", out)
	}
}

func TestTamperedCookieReadsAsNoSelection(t *testing.T) {
	kv := newMemKV()
	b := newTestBridge(t, kv)
	cookies := newMemCookies()
	ident := Identity{GuestID: "guest-4"}
	ctx := context.Background()

	if err := b.Set(ctx, ident, cookies, &Selection{LocationID: 5, DeliveryType: models.DeliveryPickup}); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	delete(kv.m, guestKeyPrefix+"guest-4")
	cookies.m[cookieName] = cookies.m[cookieName] + "x"

	out, err := b.Get(ctx, ident, cookies)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if out != nil {
		t.Fatalf("tampered cookie must read as no selection, got %+v", out)
	}
}

func TestClearPurgesEveryStore(t *testing.T) {
	kv := newMemKV()
	b := newTestBridge(t, kv)
	cookies := newMemCookies()
	ctx := context.Background()

	locID := int64(2)
	user := models.User{Email: "shopper@example.com", PreferredLocationID: &locID}
	if err := b.db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	ident := Identity{SessionToken: "tok-5", GuestID: "guest-5", UserID: &user.ID}
	if err := b.Set(ctx, ident, cookies, &Selection{LocationID: 2, DeliveryType: models.DeliveryPickup}); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	if err := b.Clear(ctx, ident, cookies); err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}

	out, err := b.Get(ctx, ident, cookies)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if out != nil {
		t.Fatalf("selection resurrected after clear: %+v", out)
	}

	var reloaded models.User
	if err := b.db.First(&reloaded, "id = ?", user.ID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if reloaded.PreferredLocationID != nil {
		t.Fatalf("user preference must be cleared, got %v", *reloaded.PreferredLocationID)
	}
}

func TestSetZeroLocationClears(t *testing.T) {
	kv := newMemKV()
	b := newTestBridge(t, kv)
	cookies := newMemCookies()
	ident := Identity{SessionToken: "tok-6", GuestID: "guest-6"}
	ctx := context.Background()

	if err := b.Set(ctx, ident, cookies, &Selection{LocationID: 8, DeliveryType: models.DeliveryPickup}); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := b.Set(ctx, ident, cookies, &Selection{LocationID: 0}); err != nil {
		t.Fatalf("Set(zero) returned error: %v", err)
	}

	out, err := b.Get(ctx, ident, cookies)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if out != nil {
		t.Fatalf("zero location must clear the selection, got %+v", out)
	}
}

func TestEnsureGuestIDStableAcrossRequests(t *testing.T) {
	cookies := newMemCookies()

	first := EnsureGuestID(cookies, "", "10.0.0.1", "agent")
	if first == "" {
		t.Fatalf("guest id must not be empty")
	}
	second := EnsureGuestID(cookies, "", "10.0.0.1", "agent")
	if second != first {
		t.Fatalf("guest id must be stable: %q vs %q", first, second)
	}
}

func TestEnsureGuestIDFallsBackToSession(t *testing.T) {
	id := EnsureGuestID(nil, "tok-7", "10.0.0.1", "agent")
	if id != "sess:tok-7" {
		t.Fatalf("session fallback mismatch: %q", id)
	}
}
