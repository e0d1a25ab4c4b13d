package selection

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"stockpoint/internal/logger"
	"stockpoint/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Selection is the shopper's fulfillment choice at any point in time.
// LocationID zero means "no selection".
type Selection struct {
	LocationID     int64               `json:"location_id"`
	DeliveryType   models.DeliveryType `json:"delivery_type"`
	ShippingMethod string              `json:"shipping_method"`
	Postcode       string              `json:"postcode"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// Identity carries every signal the bridge can key a shopper on.
type Identity struct {
	SessionToken string
	GuestID      string
	UserID       *int64
}

// KV is the transient store seam, backed by redis in production.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// CookieCarrier abstracts the per-request cookie jar so the bridge does not
// depend on the HTTP layer.
type CookieCarrier interface {
	GetCookie(name string) (string, bool)
	SetCookie(name, value string, ttl time.Duration)
	DeleteCookie(name string)
}

const (
	sessionKeyPrefix = "selection:session:"
	guestKeyPrefix   = "selection:guest:"
	cookieName       = "sp_selection"
)

// Bridge persists the shopper's selection redundantly across the primary
// session, a signed cookie, a keyed transient and, for authenticated
// shoppers, a durable user preference. Guest and logged-in flows do not
// reliably share a session mechanism, so reads fall back store by store and
// reconcile the winner into the primary session.
type Bridge struct {
	db           *gorm.DB
	kv           KV
	secret       []byte
	cookieTTL    time.Duration
	selectionTTL time.Duration
	logger       *logger.Logger
}

func NewBridge(db *gorm.DB, kv KV, secret string, cookieTTL, selectionTTL time.Duration, logger *logger.Logger) *Bridge {
	return &Bridge{
		db:           db,
		kv:           kv,
		secret:       []byte(secret),
		cookieTTL:    cookieTTL,
		selectionTTL: selectionTTL,
		logger:       logger,
	}
}

// Get reads the selection with the defined precedence: primary session,
// signed cookie, keyed transient, then user preference. Any fallback hit is
// reconciled back into the primary session so later reads stay fast.
func (b *Bridge) Get(ctx context.Context, ident Identity, cookies CookieCarrier) (*Selection, error) {
	if sel := b.readSession(ctx, ident); sel != nil {
		return sel, nil
	}

	if sel := b.readCookie(cookies); sel != nil {
		b.reconcile(ctx, ident, sel)
		return sel, nil
	}

	if sel := b.readTransient(ctx, ident); sel != nil {
		b.reconcile(ctx, ident, sel)
		return sel, nil
	}

	if sel := b.readUserPreference(ctx, ident); sel != nil {
		b.reconcile(ctx, ident, sel)
		return sel, nil
	}

	return nil, nil
}

// Set writes the selection into every store. A selection with LocationID
// zero is a clear.
func (b *Bridge) Set(ctx context.Context, ident Identity, cookies CookieCarrier, sel *Selection) error {
	if sel == nil || sel.LocationID == 0 {
		return b.Clear(ctx, ident, cookies)
	}
	sel.UpdatedAt = time.Now()

	raw, err := json.Marshal(sel)
	if err != nil {
		return err
	}

	if ident.SessionToken != "" {
		if err := b.kv.Set(ctx, sessionKeyPrefix+ident.SessionToken, string(raw), b.selectionTTL); err != nil {
			return err
		}
	}
	if cookies != nil {
		cookies.SetCookie(cookieName, b.sign(raw), b.cookieTTL)
	}
	if ident.GuestID != "" {
		if err := b.kv.Set(ctx, guestKeyPrefix+ident.GuestID, string(raw), b.selectionTTL); err != nil {
			b.logger.Warn("transient selection write failed", zap.Error(err))
		}
	}
	if ident.UserID != nil {
		if err := b.writeUserPreference(ctx, *ident.UserID, sel); err != nil {
			b.logger.Warn("user preference write failed",
				zap.Int64("user_id", *ident.UserID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Clear purges every store. Leaving any one behind resurrects a stale
// selection on the next fallback read.
func (b *Bridge) Clear(ctx context.Context, ident Identity, cookies CookieCarrier) error {
	keys := make([]string, 0, 2)
	if ident.SessionToken != "" {
		keys = append(keys, sessionKeyPrefix+ident.SessionToken)
	}
	if ident.GuestID != "" {
		keys = append(keys, guestKeyPrefix+ident.GuestID)
	}
	if len(keys) > 0 {
		if err := b.kv.Del(ctx, keys...); err != nil {
			return err
		}
	}
	if cookies != nil {
		cookies.DeleteCookie(cookieName)
	}
	if ident.UserID != nil {
		if err := b.writeUserPreference(ctx, *ident.UserID, nil); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) readSession(ctx context.Context, ident Identity) *Selection {
	if ident.SessionToken == "" {
		return nil
	}
	raw, err := b.kv.Get(ctx, sessionKeyPrefix+ident.SessionToken)
	if err != nil || raw == "" {
		return nil
	}
	return decode(raw)
}

func (b *Bridge) readCookie(cookies CookieCarrier) *Selection {
	if cookies == nil {
		return nil
	}
	val, ok := cookies.GetCookie(cookieName)
	if !ok {
		return nil
	}
	raw, err := b.verify(val)
	if err != nil {
		return nil
	}
	return decode(string(raw))
}

func (b *Bridge) readTransient(ctx context.Context, ident Identity) *Selection {
	if ident.GuestID == "" {
		return nil
	}
	raw, err := b.kv.Get(ctx, guestKeyPrefix+ident.GuestID)
	if err != nil || raw == "" {
		return nil
	}
	return decode(raw)
}

func (b *Bridge) readUserPreference(ctx context.Context, ident Identity) *Selection {
	if ident.UserID == nil {
		return nil
	}
	var user models.User
	err := b.db.WithContext(ctx).First(&user, "id = ?", *ident.UserID).Error
	if err != nil || user.PreferredLocationID == nil || *user.PreferredLocationID == 0 {
		return nil
	}
	return &Selection{
		LocationID:     *user.PreferredLocationID,
		DeliveryType:   user.PreferredDeliveryType,
		ShippingMethod: user.PreferredShippingMethod,
		UpdatedAt:      user.UpdatedAt,
	}
}

func (b *Bridge) writeUserPreference(ctx context.Context, userID int64, sel *Selection) error {
	updates := map[string]interface{}{
		"preferred_location_id":     nil,
		"preferred_delivery_type":   "",
		"preferred_shipping_method": "",
	}
	if sel != nil {
		updates["preferred_location_id"] = sel.LocationID
		updates["preferred_delivery_type"] = sel.DeliveryType
		updates["preferred_shipping_method"] = sel.ShippingMethod
	}
	res := b.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumns(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("user not found")
	}
	return nil
}

// reconcile backfills a fallback hit into the primary session.
func (b *Bridge) reconcile(ctx context.Context, ident Identity, sel *Selection) {
	if ident.SessionToken == "" {
		return
	}
	raw, err := json.Marshal(sel)
	if err != nil {
		return
	}
	if err := b.kv.Set(ctx, sessionKeyPrefix+ident.SessionToken, string(raw), b.selectionTTL); err != nil {
		b.logger.Warn("selection reconcile failed", zap.Error(err))
	}
}

func decode(raw string) *Selection {
	var sel Selection
	if err := json.Unmarshal([]byte(raw), &sel); err != nil {
		return nil
	}
	if sel.LocationID == 0 {
		return nil
	}
	return &sel
}
