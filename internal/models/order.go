package models

import "time"

type DeliveryType string

const (
	DeliveryPickup   DeliveryType = "pickup"
	DeliveryShipping DeliveryType = "delivery"
)

// Order carries the fulfillment metadata this service owns: the resolved
// location and mode captured at checkout, plus the set-once idempotency
// flags that gate stock reduce/restore.
type Order struct {
	ID             int64        `json:"id" gorm:"primaryKey;autoIncrement"`
	Number         string       `json:"number" gorm:"uniqueIndex;not null"`
	LocationID     *int64       `json:"location_id" gorm:"index"`
	DeliveryType   DeliveryType `json:"delivery_type"`
	ShippingMethod string       `json:"shipping_method"`
	CustomerID     *int64       `json:"customer_id"`

	StockReduced  bool `json:"stock_reduced" gorm:"default:false"`
	StockRestored bool `json:"stock_restored" gorm:"default:false"`
	NoteAdded     bool `json:"note_added" gorm:"default:false"`
	EmailSent     bool `json:"email_sent" gorm:"default:false"`

	Lines []OrderLine `json:"lines" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Notes []OrderNote `json:"notes" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type OrderLine struct {
	ID        int64 `json:"id" gorm:"primaryKey;autoIncrement"`
	OrderID   int64 `json:"order_id" gorm:"index;not null"`
	ProductID int64 `json:"product_id" gorm:"not null"`
	Quantity  int   `json:"quantity" gorm:"not null"`
}

type OrderNote struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	OrderID   int64     `json:"order_id" gorm:"index;not null"`
	Text      string    `json:"text" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}
