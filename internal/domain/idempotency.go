package domain

import "time"

// Idempotency records the outcome of a confirmed import, keyed by
// (session_id, key). A retried confirm carrying the same Idempotency-Key
// replays Response instead of applying the batch again.
type Idempotency struct {
	ID        string    `gorm:"type:varchar(64);primaryKey"`
	SessionID string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_session_key,priority:1"`
	Key       string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_session_key,priority:2"`
	Status    int       `gorm:"not null"`
	Response  string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
