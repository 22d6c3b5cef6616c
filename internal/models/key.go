package models

import (
	"time"
)

// Represents an issued API key record. The Key field is the bearer
// credential itself; it never changes after creation.
type Key struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Key       string    `gorm:"uniqueIndex;not null" json:"key"`
	Name      string    `gorm:"index;not null" json:"name"`
	Active    bool      `gorm:"index;default:true" json:"active"`
	Usage     int64     `gorm:"not null;default:0" json:"usage"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (Key) TableName() string {
	return "api_keys"
}

// Reports whether the key is expired relative to now.
func (k *Key) Expired(now time.Time) bool {
	return k.ExpiresAt.Before(now)
}
