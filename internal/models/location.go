package models

import (
	"time"
)

type LocationKind string

const (
	KindStore              LocationKind = "store"
	KindDistributionCenter LocationKind = "distribution_center"
)

// Location is a physical fulfillment point: a pickup-capable store or a
// ship-capable distribution center.
type Location struct {
	ID       int64        `json:"id" gorm:"primaryKey;autoIncrement"`
	Name     string       `json:"name" gorm:"not null"`
	Kind     LocationKind `json:"kind" gorm:"not null;default:store"`
	Email    string       `json:"email" gorm:"not null"`
	Phone    *string      `json:"phone"`
	Address1 string       `json:"address1"`
	Address2 *string      `json:"address2"`
	City     string       `json:"city"`
	State    string       `json:"state"`
	Postcode string       `json:"postcode"`
	Country  string       `json:"country"`
	Active   bool         `json:"active" gorm:"default:true"`

	// ShippingMethod is the explicit link to the shipping method instance
	// ("method_id:instance_id") that represents this location at checkout.
	// Substring matching on rate labels is only a degraded-mode fallback.
	ShippingMethod string `json:"shipping_method" gorm:"index"`

	Schedule    []DaySchedule `json:"schedule" gorm:"foreignKey:LocationID;constraint:OnDelete:CASCADE"`
	SpecialDays []SpecialDay  `json:"special_days" gorm:"foreignKey:LocationID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DaySchedule is one weekly entry. Weekday follows time.Weekday
// (0 = Sunday). Times are "HH:MM" strings in the site timezone.
type DaySchedule struct {
	ID          int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	LocationID  int64  `json:"location_id" gorm:"index:idx_schedule_loc_day,unique;not null"`
	Weekday     int    `json:"weekday" gorm:"index:idx_schedule_loc_day,unique;not null"`
	Open        string `json:"open"`
	Close       string `json:"close"`
	Cutoff      string `json:"cutoff"`
	PrepMinutes int    `json:"prep_minutes"`
	Enabled     bool   `json:"enabled" gorm:"default:false"`
}

// SpecialDay overrides the weekly schedule for one calendar date, or for a
// month/day every year when Annual is set. A special day with Closed set, or
// with blank open/close, is an explicit closure.
type SpecialDay struct {
	ID         int64 `json:"id" gorm:"primaryKey;autoIncrement"`
	LocationID int64 `json:"location_id" gorm:"index;not null"`

	Date     string `json:"date"`      // "2006-01-02"; empty when Annual
	MonthDay string `json:"month_day"` // "01-02"; used when Annual
	Annual   bool   `json:"annual"`

	Open        string `json:"open"`
	Close       string `json:"close"`
	Cutoff      string `json:"cutoff"`
	PrepMinutes int    `json:"prep_minutes"`
	Closed      bool   `json:"closed"`
	Description string `json:"description"`
}
