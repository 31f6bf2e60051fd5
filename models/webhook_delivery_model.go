package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type DeliveryOutcome string

const (
	DeliveryApplied         DeliveryOutcome = "applied"
	DeliveryAlreadyTerminal DeliveryOutcome = "already_terminal"
	DeliveryPending         DeliveryOutcome = "pending"
	DeliveryNotFound        DeliveryOutcome = "not_found"
	DeliveryIgnored         DeliveryOutcome = "ignored"
	DeliveryRejected        DeliveryOutcome = "rejected"
	DeliveryError           DeliveryOutcome = "error"
)

// WebhookDelivery records what happened to each inbound gateway webhook.
// The gateway always gets a 200 for processed deliveries, so this table is
// where the real outcome stays visible.
type WebhookDelivery struct {
	ID               uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	EventID          string          `gorm:"size:64;index" json:"event_id"`
	EventType        string          `gorm:"size:64;not null;index" json:"event_type"`
	GatewayOrderID   string          `gorm:"size:64;index" json:"gateway_order_id"`
	GatewayPaymentID string          `gorm:"size:64" json:"gateway_payment_id"`
	SignatureValid   bool            `gorm:"not null" json:"signature_valid"`
	Outcome          DeliveryOutcome `gorm:"size:20;not null;index" json:"outcome"`
	Error            *string         `gorm:"type:text" json:"error,omitempty"`
	Payload          datatypes.JSON  `json:"payload"`
	ReceivedAt       time.Time       `gorm:"not null;index" json:"received_at"`
}

func (d *WebhookDelivery) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
