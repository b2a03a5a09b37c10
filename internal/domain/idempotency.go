package domain

import "time"

// Idempotency records the outcome of a completed fork or duplicate request,
// keyed by (user_id, scope, key). Replaying the same key within the TTL
// returns Result instead of creating another chat.
type Idempotency struct {
	ID        string    `gorm:"column:id;primaryKey"`
	UserID    string    `gorm:"column:user_id"`
	Scope     string    `gorm:"column:scope"`
	Key       string    `gorm:"column:key"`
	Result    string    `gorm:"column:result"`
	Status    int       `gorm:"column:status"`
	CreatedAt time.Time `gorm:"column:created_at"`
	ExpiresAt time.Time `gorm:"column:expires_at"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
