package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anjiri1684/transport_portal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrRecordNotFound = errors.New("payment record not found")
	// ErrDuplicateScope means another pending or confirmed record already
	// holds the scope key.
	ErrDuplicateScope = errors.New("active payment record already exists for scope")
	// ErrDuplicateReference means the receipt or gateway order id is already
	// used by another record while the scope itself is free.
	ErrDuplicateReference = errors.New("payment record receipt or gateway order id already used")
	// ErrVersionConflict means the record moved on since it was read.
	ErrVersionConflict = errors.New("payment record version conflict")
)

type ScopeKey struct {
	StudentID     uuid.UUID
	RouteID       uuid.UUID
	StopName      string
	BillingPeriod string
}

// Transition is a terminal status write for a pending record.
type Transition struct {
	To               models.PaymentStatus
	GatewayPaymentID string
	Via              models.ConfirmationPath
	FailureReason    models.FailureReason
	AmountCaptured   *int64
}

type PaymentFilter struct {
	Status    string
	StudentID *uuid.UUID
	From, To  *time.Time
	Limit     int
	Offset    int
}

type PaymentStore struct {
	db *gorm.DB
}

func NewPaymentStore(db *gorm.DB) *PaymentStore {
	return &PaymentStore{db: db}
}

func (s *PaymentStore) FindActiveByScope(ctx context.Context, key ScopeKey) (*models.PaymentRecord, error) {
	var rec models.PaymentRecord
	err := s.db.WithContext(ctx).
		Where("student_id = ? AND route_id = ? AND stop_name = ? AND billing_period = ? AND status <> ?",
			key.StudentID, key.RouteID, key.StopName, key.BillingPeriod, models.PaymentFailed).
		First(&rec).Error
	return s.one(&rec, err)
}

// Insert stores a new record. The partial unique index on the scope key is
// what makes the caller's check-then-insert atomic.
func (s *PaymentStore) Insert(ctx context.Context, rec *models.PaymentRecord) error {
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	rec.Version = 0
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		if !isDuplicateKey(err) {
			return err
		}
		_, ferr := s.FindActiveByScope(ctx, ScopeKey{
			StudentID:     rec.StudentID,
			RouteID:       rec.RouteID,
			StopName:      rec.StopName,
			BillingPeriod: rec.BillingPeriod,
		})
		switch {
		case ferr == nil:
			return ErrDuplicateScope
		case errors.Is(ferr, ErrRecordNotFound):
			return ErrDuplicateReference
		default:
			return errors.Join(err, ferr)
		}
	}
	return nil
}

func (s *PaymentStore) ReceiptTaken(ctx context.Context, receipt string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.PaymentRecord{}).Where("receipt = ?", receipt).Count(&n).Error
	return n > 0, err
}

func (s *PaymentStore) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentRecord, error) {
	var rec models.PaymentRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	return s.one(&rec, err)
}

func (s *PaymentStore) GetByGatewayOrderID(ctx context.Context, orderID string) (*models.PaymentRecord, error) {
	var rec models.PaymentRecord
	err := s.db.WithContext(ctx).First(&rec, "gateway_order_id = ?", orderID).Error
	return s.one(&rec, err)
}

// CompareAndSwap applies t only if the record is still pending at
// expectedVersion, and returns the updated record.
func (s *PaymentStore) CompareAndSwap(ctx context.Context, id uuid.UUID, expectedVersion int, t Transition) (*models.PaymentRecord, error) {
	if !t.To.IsTerminal() {
		return nil, errors.New("transition target must be terminal")
	}

	updates := map[string]any{
		"status":        t.To,
		"confirmed_via": t.Via,
		"version":       gorm.Expr("version + 1"),
		"updated_at":    time.Now().UTC(),
	}
	if t.GatewayPaymentID != "" {
		updates["gateway_payment_id"] = t.GatewayPaymentID
	}
	if t.FailureReason != "" {
		updates["failure_reason"] = t.FailureReason
	}
	if t.AmountCaptured != nil {
		updates["amount_captured"] = *t.AmountCaptured
	}

	res := s.db.WithContext(ctx).Model(&models.PaymentRecord{}).
		Where("id = ? AND version = ? AND status = ?", id, expectedVersion, models.PaymentPending).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrVersionConflict
	}
	return s.GetByID(ctx, id)
}

func (s *PaymentStore) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.PaymentRecord, error) {
	var recs []models.PaymentRecord
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.PaymentPending, createdBefore.UTC()).
		Order("created_at asc").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

func (s *PaymentStore) List(ctx context.Context, f PaymentFilter) ([]models.PaymentRecord, int64, error) {
	scoped := func() *gorm.DB {
		query := s.db.WithContext(ctx).Model(&models.PaymentRecord{})
		if f.Status != "" {
			query = query.Where("status = ?", f.Status)
		}
		if f.StudentID != nil {
			query = query.Where("student_id = ?", *f.StudentID)
		}
		if f.From != nil {
			query = query.Where("created_at >= ?", f.From.UTC())
		}
		if f.To != nil {
			query = query.Where("created_at <= ?", f.To.UTC())
		}
		return query
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var recs []models.PaymentRecord
	query := scoped().Order("created_at desc")
	if f.Limit > 0 {
		query = query.Limit(f.Limit).Offset(f.Offset)
	}
	if err := query.Find(&recs).Error; err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

func (s *PaymentStore) one(rec *models.PaymentRecord, err error) (*models.PaymentRecord, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return rec, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
