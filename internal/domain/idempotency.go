package domain

import "time"

// Idempotency remembers which SPK a generate request produced for a given
// (client_id, key) so that a retried request gets the same number back
// instead of consuming another sequence value.
type Idempotency struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	ClientID  string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_client_key,priority:1"`
	Key       string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_client_key,priority:2"`
	SPK       string    `gorm:"column:spk;type:varchar(16);not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
