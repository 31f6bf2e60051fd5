package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentFailed    PaymentStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentConfirmed || s == PaymentFailed
}

type ConfirmationPath string

const (
	ViaClient  ConfirmationPath = "client"
	ViaWebhook ConfirmationPath = "webhook"
	ViaSweeper ConfirmationPath = "sweeper"
)

type FailureReason string

const (
	ReasonAmountMismatch  FailureReason = "amount_mismatch"
	ReasonGatewayDeclined FailureReason = "gateway_declined"
	ReasonExpired         FailureReason = "expired"
)

// PaymentRecord is one payment attempt for a (student, route, stop, billing period) scope.
// Only one pending or confirmed record may exist per scope; failed ones are kept for audit.
type PaymentRecord struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	StudentID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_payment_records_active_scope,priority:1,where:status <> 'failed'" json:"student_id"`
	RouteID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_payment_records_active_scope,priority:2" json:"route_id"`
	StopName      string    `gorm:"size:255;not null;uniqueIndex:ux_payment_records_active_scope,priority:3" json:"stop_name"`
	BillingPeriod string    `gorm:"size:7;not null;uniqueIndex:ux_payment_records_active_scope,priority:4" json:"billing_period"`
	FeeID         uuid.UUID `gorm:"type:uuid;not null" json:"fee_id"`

	GatewayOrderID string `gorm:"size:64;not null;unique" json:"gateway_order_id"`
	Receipt        string `gorm:"size:40;not null;unique" json:"receipt"`
	AmountExpected int64  `gorm:"not null" json:"amount_expected"`
	Currency       string `gorm:"size:3;not null" json:"currency"`

	Status           PaymentStatus     `gorm:"size:20;not null;index" json:"status"`
	GatewayPaymentID *string           `gorm:"size:64" json:"gateway_payment_id,omitempty"`
	ConfirmedVia     *ConfirmationPath `gorm:"size:20" json:"confirmed_via,omitempty"`
	FailureReason    *FailureReason    `gorm:"size:32;index" json:"failure_reason,omitempty"`
	AmountCaptured   *int64            `json:"amount_captured,omitempty"`
	Version          int               `gorm:"not null;default:0" json:"version"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *PaymentRecord) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
