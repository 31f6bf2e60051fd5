package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RefundInitiated = "initiated"
	RefundProcessed = "processed"
	RefundFailed    = "failed"
)

type PaymentRefund struct {
	ID              uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	PaymentRecordID uuid.UUID `gorm:"type:uuid;not null;unique" json:"payment_record_id"`
	GatewayRefundID *string   `gorm:"size:64" json:"gateway_refund_id,omitempty"`
	Amount          int64     `gorm:"not null" json:"amount"`
	Status          string    `gorm:"size:20;not null" json:"status"`
	Reason          *string   `gorm:"type:text" json:"reason,omitempty"`
	ErrorMessage    *string   `gorm:"type:text" json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *PaymentRefund) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
