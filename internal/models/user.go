package models

import "time"

// User holds the persisted selection preference for authenticated shoppers,
// the durable leg of the selection bridge.
type User struct {
	ID    int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	Email string `json:"email" gorm:"uniqueIndex;not null"`
	Name  string `json:"name"`

	PreferredLocationID     *int64       `json:"preferred_location_id"`
	PreferredDeliveryType   DeliveryType `json:"preferred_delivery_type"`
	PreferredShippingMethod string       `json:"preferred_shipping_method"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// APICredential is one row of the OAuth/API-key credentials table used to
// attribute external stock writes. Attribution is audit labeling only;
// access control stays with the host platform.
type APICredential struct {
	ID             int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	Description    string     `json:"description" gorm:"not null"`
	ConsumerKey    string     `json:"-" gorm:"uniqueIndex;not null"`
	ConsumerSecret string     `json:"-" gorm:"not null"`
	TruncatedKey   string     `json:"truncated_key" gorm:"index;not null"`
	UserID         *int64     `json:"user_id"`
	LastAccess     *time.Time `json:"last_access"`
	CreatedAt      time.Time  `json:"created_at"`
}
