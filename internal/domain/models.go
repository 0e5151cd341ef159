// Package domain defines the persistence models for SPK issuance: monthly
// sequence counters, short-lived number reservations, and the orders that
// finally consume a number. These types are mapped with GORM and shared by the
// repository and service layers.
package domain

import (
	"time"
)

// SequenceCounter is the high-water mark of issued sequences for one MMYY
// prefix. Rows are created lazily on the first issuance of a month and are
// never deleted; LastValue only ever increases.
type SequenceCounter struct {
	Prefix    string    `json:"prefix"     gorm:"type:varchar(4);primaryKey"`
	LastValue int64     `json:"last_value" gorm:"not null;default:0;check:last_value >= 0"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

// TableName returns the database table name for SequenceCounter.
func (SequenceCounter) TableName() string { return "sequence_counters" }

// Reservation is a time-boxed claim on a formatted SPK. While ExpiresAt is in
// the future no other caller may be handed the same Number.
//
// Number is derived from a counter value at issuance but is not linked to
// sequence_counters by a foreign key.
type Reservation struct {
	Number    string    `json:"spk"        gorm:"type:varchar(16);primaryKey"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
}

// TableName returns the database table name for Reservation.
func (Reservation) TableName() string { return "reservations" }

// Live reports whether the reservation is still held at now.
func (r Reservation) Live(now time.Time) bool { return r.ExpiresAt.After(now) }

// Remaining is the time left on the claim at now, floored at zero.
func (r Reservation) Remaining(now time.Time) time.Duration {
	if d := r.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Order is the minimal work order that durably consumes an SPK. The unique
// index on SPK is the final guard against duplicates.
type Order struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	SPK       string    `json:"spk"        gorm:"column:spk;type:varchar(16);not null;uniqueIndex:ux_orders_spk"`
	Customer  string    `json:"customer"   gorm:"type:varchar(255);not null"`
	Notes     string    `json:"notes"      gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;index"`
}

// TableName returns the database table name for Order.
func (Order) TableName() string { return "orders" }
