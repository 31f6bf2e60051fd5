package services

import (
	"errors"
	"fmt"

	"github.com/anjiri1684/transport_portal/apperr"
	"github.com/anjiri1684/transport_portal/models"
	"github.com/anjiri1684/transport_portal/payments"
)

var (
	ErrInvalidFee        = apperr.InvalidErr("InvalidFee", "The selected fee is not available for this route and stop.")
	ErrSignatureInvalid  = apperr.InvalidErr("InvalidSignature", "Payment signature verification failed.")
	ErrAmountMismatch    = apperr.InvalidErr("AmountMismatch", "The captured amount does not match the fee.")
	ErrPaymentNotFound   = apperr.NotFoundErr("Payment record not found.")
	ErrPaymentOrderMatch = apperr.InvalidErr("PaymentOrderMismatch", "The payment does not belong to this order.")
	ErrNotRefundable     = apperr.New(apperr.Conflict, "NotRefundable", "Only confirmed payments can be refunded.", nil)
	ErrRefundExists      = apperr.New(apperr.Conflict, "RefundExists", "A refund was already requested for this payment.", nil)
	ErrInvalidRefund     = apperr.InvalidErr("InvalidRefundAmount", "Refund amount must be positive and not exceed the captured amount.")
	ErrOrderReference    = apperr.New(apperr.Conflict, "OrderReferenceCollision", "The order reference collided with an existing payment, please retry.", nil)
)

// AlreadyExistsError is returned when the scope already holds a pending or
// confirmed record.
type AlreadyExistsError struct {
	Record *models.PaymentRecord
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("payment record %s already %s for this billing period", e.Record.ID, e.Record.Status)
}

func gatewayUnavailable(err error) error {
	return apperr.New(apperr.Unavailable, "GatewayUnavailable", "The payment gateway is unavailable, please retry.", err)
}

func gatewayError(err error) error {
	if errors.Is(err, payments.ErrGatewayRejected) {
		return apperr.New(apperr.Invalid, "GatewayRejected", "The payment gateway rejected the request.", err)
	}
	return gatewayUnavailable(err)
}
