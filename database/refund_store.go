package database

import (
	"context"
	"errors"
	"time"

	"github.com/anjiri1684/transport_portal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrRefundExists = errors.New("refund already requested for payment record")

type RefundStore struct {
	db *gorm.DB
}

func NewRefundStore(db *gorm.DB) *RefundStore {
	return &RefundStore{db: db}
}

// Begin inserts an initiated refund row; only one refund per record is allowed.
func (s *RefundStore) Begin(ctx context.Context, r *models.PaymentRefund) error {
	r.Status = models.RefundInitiated
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrRefundExists
		}
		return err
	}
	return nil
}

func (s *RefundStore) GetByRecord(ctx context.Context, recordID uuid.UUID) (*models.PaymentRefund, error) {
	var r models.PaymentRefund
	if err := s.db.WithContext(ctx).First(&r, "payment_record_id = ?", recordID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *RefundStore) Finish(ctx context.Context, id uuid.UUID, status string, gatewayRefundID, errMsg *string) error {
	return s.db.WithContext(ctx).Model(&models.PaymentRefund{}).
		Where("id = ? AND status = ?", id, models.RefundInitiated).
		Updates(map[string]any{
			"status":            status,
			"gateway_refund_id": gatewayRefundID,
			"error_message":     errMsg,
			"updated_at":        time.Now().UTC(),
		}).Error
}
