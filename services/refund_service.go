package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/anjiri1684/transport_portal/apperr"
	"github.com/anjiri1684/transport_portal/database"
	"github.com/anjiri1684/transport_portal/models"
	"github.com/anjiri1684/transport_portal/payments"
	"github.com/google/uuid"
)

type RefundRecords interface {
	Begin(ctx context.Context, r *models.PaymentRefund) error
	GetByRecord(ctx context.Context, recordID uuid.UUID) (*models.PaymentRefund, error)
	Finish(ctx context.Context, id uuid.UUID, status string, gatewayRefundID, errMsg *string) error
}

// RefundService issues at most one gateway refund per confirmed record.
// The payment record itself keeps its confirmed status.
type RefundService struct {
	records PaymentRecords
	refunds RefundRecords
	gateway payments.Gateway
	timeout time.Duration
	logger  *slog.Logger
}

func NewRefundService(records PaymentRecords, refunds RefundRecords, gateway payments.Gateway, timeout time.Duration) *RefundService {
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &RefundService{records: records, refunds: refunds, gateway: gateway, timeout: timeout, logger: slog.Default()}
}

func (s *RefundService) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Refund refunds amount (nil for the full captured amount) of a confirmed payment.
func (s *RefundService) Refund(ctx context.Context, recordID uuid.UUID, amount *int64, reason string) (*models.PaymentRefund, error) {
	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, database.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, apperr.Wrap(err)
	}
	if rec.Status != models.PaymentConfirmed || rec.GatewayPaymentID == nil {
		return nil, ErrNotRefundable
	}

	captured := rec.AmountExpected
	if rec.AmountCaptured != nil {
		captured = *rec.AmountCaptured
	}
	refundAmount := captured
	if amount != nil {
		if *amount <= 0 || *amount > captured {
			return nil, ErrInvalidRefund
		}
		refundAmount = *amount
	}

	refund := &models.PaymentRefund{PaymentRecordID: rec.ID, Amount: refundAmount}
	if reason != "" {
		refund.Reason = &reason
	}
	if err := s.refunds.Begin(ctx, refund); err != nil {
		if errors.Is(err, database.ErrRefundExists) {
			return nil, ErrRefundExists
		}
		return nil, apperr.Wrap(err)
	}

	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	gr, callErr := s.gateway.Refund(gctx, *rec.GatewayPaymentID, amount)
	cancel()

	if callErr != nil {
		msg := callErr.Error()
		status := models.RefundFailed
		if payments.IsRetryable(callErr) {
			// The gateway may still have processed it; the row stays initiated
			// until someone checks the gateway.
			status = models.RefundInitiated
		}
		if err := s.refunds.Finish(ctx, refund.ID, status, nil, &msg); err != nil {
			s.logger.ErrorContext(ctx, "failed to record refund error", "refund_id", refund.ID, "err", err)
		}
		s.logger.WarnContext(ctx, "gateway refund failed", "payment_record_id", rec.ID, "refund_id", refund.ID,
			"refund_status", status, "err", callErr)
		return nil, gatewayError(callErr)
	}

	if err := s.refunds.Finish(ctx, refund.ID, models.RefundProcessed, &gr.ID, nil); err != nil {
		// The gateway refunded; only our bookkeeping is behind.
		s.logger.ErrorContext(ctx, "failed to mark refund processed", "refund_id", refund.ID, "gateway_refund_id", gr.ID, "err", err)
		return nil, apperr.Wrap(err)
	}

	s.logger.InfoContext(ctx, "payment refunded", "payment_record_id", rec.ID, "gateway_refund_id", gr.ID, "amount", refundAmount)
	return s.refunds.GetByRecord(ctx, rec.ID)
}
