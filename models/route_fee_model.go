package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RouteFee struct {
	ID            uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	RouteID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"route_id"`
	StopName      string     `gorm:"size:255;not null" json:"stop_name"`
	BillingPeriod string     `gorm:"size:7;not null" json:"billing_period"`
	Amount        int64      `gorm:"not null" json:"amount"`
	Currency      string     `gorm:"size:3;not null" json:"currency"`
	Active        bool       `gorm:"not null;default:true" json:"active"`
	ValidFrom     time.Time  `gorm:"not null" json:"valid_from"`
	ValidUntil    *time.Time `json:"valid_until"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (f *RouteFee) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// AvailableAt reports whether the fee can be charged at t.
func (f *RouteFee) AvailableAt(t time.Time) bool {
	if !f.Active || t.Before(f.ValidFrom) {
		return false
	}
	return f.ValidUntil == nil || t.Before(*f.ValidUntil)
}
