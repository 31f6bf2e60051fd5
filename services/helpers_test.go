package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/anjiri1684/transport_portal/database"
	"github.com/anjiri1684/transport_portal/models"
	"github.com/anjiri1684/transport_portal/payments"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const testKeySecret = "key_secret"

type fakeGateway struct {
	mu sync.Mutex

	createErr     error
	orderID       string
	beforeCreate  func()
	beforeFetch   func()
	orderSeq      int
	payments      map[string]payments.GatewayPayment
	orderPayments map[string][]payments.GatewayPayment
	fetchErr      error
	fetchCalls    int
	refundErr     error
	refundCalls   int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		payments:      map[string]payments.GatewayPayment{},
		orderPayments: map[string][]payments.GatewayPayment{},
	}
}

func (g *fakeGateway) CreateOrder(ctx context.Context, req payments.CreateOrderRequest) (*payments.GatewayOrder, error) {
	if g.beforeCreate != nil {
		g.beforeCreate()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.orderSeq++
	id := g.orderID
	if id == "" {
		id = "order_" + uuid.NewString()[:8]
	}
	return &payments.GatewayOrder{
		ID:       id,
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}, nil
}

func (g *fakeGateway) FetchPayment(ctx context.Context, paymentID string) (*payments.GatewayPayment, error) {
	if g.beforeFetch != nil {
		g.beforeFetch()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetchCalls++
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	p, ok := g.payments[paymentID]
	if !ok {
		return nil, payments.ErrGatewayRejected
	}
	return &p, nil
}

func (g *fakeGateway) FetchOrderPayments(ctx context.Context, orderID string) ([]payments.GatewayPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetchCalls++
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	return g.orderPayments[orderID], nil
}

func (g *fakeGateway) Refund(ctx context.Context, paymentID string, amount *int64) (*payments.GatewayRefund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundCalls++
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	r := &payments.GatewayRefund{ID: "rfnd_" + paymentID, PaymentID: paymentID, Status: "processed"}
	if amount != nil {
		r.Amount = *amount
	}
	return r, nil
}

func (g *fakeGateway) setPayment(p payments.GatewayPayment) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[p.ID] = p
	g.orderPayments[p.OrderID] = append(g.orderPayments[p.OrderID], p)
}

func (g *fakeGateway) fetches() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fetchCalls
}

type recordingListener struct {
	mu      sync.Mutex
	records []models.PaymentRecord
}

func (l *recordingListener) OnTerminal(ctx context.Context, rec *models.PaymentRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, *rec)
	return nil
}

func (l *recordingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

type fixture struct {
	db       *gorm.DB
	store    *database.PaymentStore
	fees     *database.FeeStore
	gateway  *fakeGateway
	listener *recordingListener
	engine   *ReconciliationService
	orders   *OrderService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenSQLite("file::memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	f := &fixture{
		db:       db,
		store:    database.NewPaymentStore(db),
		fees:     database.NewFeeStore(db),
		gateway:  newFakeGateway(),
		listener: &recordingListener{},
	}
	f.engine = NewReconciliationService(f.store, f.gateway, testKeySecret, time.Second, f.listener)
	f.orders = NewOrderService(f.fees, f.store, f.gateway, "rzp_test_key", "INR", time.Second)
	return f
}

func (f *fixture) seedFee(t *testing.T, amount int64) *models.RouteFee {
	t.Helper()
	fee := &models.RouteFee{
		RouteID:       uuid.New(),
		StopName:      "Library Stop",
		BillingPeriod: "2026-10",
		Amount:        amount,
		Currency:      "INR",
		Active:        true,
		ValidFrom:     time.Now().UTC().Add(-24 * time.Hour),
	}
	if err := f.fees.Create(context.Background(), fee); err != nil {
		t.Fatalf("seed fee: %v", err)
	}
	return fee
}

// createPending opens an order for a fresh student and returns its record.
func (f *fixture) createPending(t *testing.T, amount int64) *models.PaymentRecord {
	t.Helper()
	fee := f.seedFee(t, amount)
	handle, err := f.orders.CreateOrder(context.Background(), CreateOrderInput{
		StudentID: uuid.New(),
		RouteID:   fee.RouteID,
		StopName:  fee.StopName,
		FeeID:     fee.ID,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	rec, err := f.store.GetByID(context.Background(), handle.RecordID)
	if err != nil {
		t.Fatalf("load record: %v", err)
	}
	return rec
}

func (f *fixture) backdate(t *testing.T, id uuid.UUID, age time.Duration) {
	t.Helper()
	if err := f.db.Model(&models.PaymentRecord{}).Where("id = ?", id).
		Update("created_at", time.Now().UTC().Add(-age)).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}
}

func captured(orderID, paymentID string, amount int64) payments.GatewayPayment {
	return payments.GatewayPayment{ID: paymentID, OrderID: orderID, Amount: amount, Currency: "INR", Status: payments.GatewayStatusCaptured}
}
