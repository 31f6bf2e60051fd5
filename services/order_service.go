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
	"github.com/anjiri1684/transport_portal/utils"
	"github.com/google/uuid"
)

const defaultGatewayTimeout = 10 * time.Second

type FeeLookup interface {
	GetFee(ctx context.Context, id uuid.UUID) (*models.RouteFee, error)
}

// PaymentRecords is the subset of database.PaymentStore the services use.
type PaymentRecords interface {
	FindActiveByScope(ctx context.Context, key database.ScopeKey) (*models.PaymentRecord, error)
	Insert(ctx context.Context, rec *models.PaymentRecord) error
	ReceiptTaken(ctx context.Context, receipt string) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentRecord, error)
	GetByGatewayOrderID(ctx context.Context, orderID string) (*models.PaymentRecord, error)
	CompareAndSwap(ctx context.Context, id uuid.UUID, expectedVersion int, t database.Transition) (*models.PaymentRecord, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.PaymentRecord, error)
}

type CreateOrderInput struct {
	StudentID uuid.UUID
	RouteID   uuid.UUID
	StopName  string
	FeeID     uuid.UUID
}

// OrderHandle is what the browser needs to open the gateway checkout.
type OrderHandle struct {
	RecordID uuid.UUID `json:"paymentRecordId"`
	OrderID  string    `json:"orderId"`
	Amount   int64     `json:"amount"`
	Currency string    `json:"currency"`
	KeyID    string    `json:"keyId"`
}

type OrderService struct {
	fees     FeeLookup
	records  PaymentRecords
	gateway  payments.Gateway
	keyID    string
	currency string
	timeout  time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func NewOrderService(fees FeeLookup, records PaymentRecords, gateway payments.Gateway, keyID, currency string, timeout time.Duration) *OrderService {
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	if currency == "" {
		currency = "INR"
	}
	return &OrderService{
		fees:     fees,
		records:  records,
		gateway:  gateway,
		keyID:    keyID,
		currency: currency,
		timeout:  timeout,
		now:      time.Now,
		logger:   slog.Default(),
	}
}

func (s *OrderService) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// CreateOrder opens a gateway order for the fee and persists a pending record.
// Nothing is stored unless the gateway returned an order.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*OrderHandle, error) {
	fee, err := s.fees.GetFee(ctx, in.FeeID)
	if err != nil {
		if errors.Is(err, database.ErrFeeNotFound) {
			return nil, ErrInvalidFee
		}
		return nil, apperr.Wrap(err)
	}
	if fee.RouteID != in.RouteID || fee.StopName != in.StopName || !fee.AvailableAt(s.now()) {
		return nil, ErrInvalidFee
	}

	key := database.ScopeKey{
		StudentID:     in.StudentID,
		RouteID:       in.RouteID,
		StopName:      in.StopName,
		BillingPeriod: fee.BillingPeriod,
	}
	existing, err := s.records.FindActiveByScope(ctx, key)
	if err == nil {
		return nil, &AlreadyExistsError{Record: existing}
	}
	if !errors.Is(err, database.ErrRecordNotFound) {
		return nil, apperr.Wrap(err)
	}

	receipt, err := utils.GenerateUniqueReceipt(func(code string) (bool, error) {
		return s.records.ReceiptTaken(ctx, code)
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}

	currency := fee.Currency
	if currency == "" {
		currency = s.currency
	}

	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	order, err := s.gateway.CreateOrder(gctx, payments.CreateOrderRequest{
		Amount:   fee.Amount,
		Currency: currency,
		Receipt:  receipt,
		Notes: map[string]string{
			"student_id":     in.StudentID.String(),
			"route_id":       in.RouteID.String(),
			"stop_name":      in.StopName,
			"billing_period": fee.BillingPeriod,
		},
	})
	cancel()
	if err != nil {
		s.logger.WarnContext(ctx, "gateway order creation failed", "student_id", in.StudentID, "fee_id", fee.ID, "err", err)
		return nil, gatewayUnavailable(err)
	}

	rec := &models.PaymentRecord{
		StudentID:      in.StudentID,
		RouteID:        in.RouteID,
		StopName:       in.StopName,
		BillingPeriod:  fee.BillingPeriod,
		FeeID:          fee.ID,
		GatewayOrderID: order.ID,
		Receipt:        receipt,
		AmountExpected: fee.Amount,
		Currency:       currency,
		Status:         models.PaymentPending,
	}
	if err := s.records.Insert(ctx, rec); err != nil {
		if errors.Is(err, database.ErrDuplicateReference) {
			s.logger.WarnContext(ctx, "gateway order left unpaid after receipt or order id collision",
				"event", "orphan_gateway_order", "gateway_order_id", order.ID, "receipt", receipt, "student_id", in.StudentID)
			return nil, ErrOrderReference
		}
		if !errors.Is(err, database.ErrDuplicateScope) {
			return nil, apperr.Wrap(err)
		}
		// Lost the race to a concurrent request; the gateway order we just
		// created is never paid and expires on the gateway side.
		s.logger.WarnContext(ctx, "gateway order left unpaid after losing scope race",
			"event", "orphan_gateway_order", "gateway_order_id", order.ID, "student_id", in.StudentID)
		winner, ferr := s.records.FindActiveByScope(ctx, key)
		if ferr != nil {
			return nil, apperr.Wrap(errors.Join(err, ferr))
		}
		return nil, &AlreadyExistsError{Record: winner}
	}

	s.logger.InfoContext(ctx, "payment order created", "payment_record_id", rec.ID, "gateway_order_id", order.ID, "amount", rec.AmountExpected)
	return &OrderHandle{
		RecordID: rec.ID,
		OrderID:  order.ID,
		Amount:   rec.AmountExpected,
		Currency: rec.Currency,
		KeyID:    s.keyID,
	}, nil
}
