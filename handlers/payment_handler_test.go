package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/anjiri1684/transport_portal/database"
	"github.com/anjiri1684/transport_portal/middleware"
	"github.com/anjiri1684/transport_portal/models"
	"github.com/anjiri1684/transport_portal/payments"
	"github.com/anjiri1684/transport_portal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	testJWTSecret     = "jwt-secret"
	testKeySecret     = "key-secret"
	testWebhookSecret = "webhook-secret"
)

type stubGateway struct {
	mu       sync.Mutex
	payments map[string]payments.GatewayPayment
}

func (g *stubGateway) CreateOrder(ctx context.Context, req payments.CreateOrderRequest) (*payments.GatewayOrder, error) {
	return &payments.GatewayOrder{ID: "order_" + uuid.NewString()[:8], Amount: req.Amount, Currency: req.Currency, Status: "created"}, nil
}

func (g *stubGateway) FetchPayment(ctx context.Context, id string) (*payments.GatewayPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[id]
	if !ok {
		return nil, payments.ErrGatewayRejected
	}
	return &p, nil
}

func (g *stubGateway) FetchOrderPayments(ctx context.Context, orderID string) ([]payments.GatewayPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []payments.GatewayPayment
	for _, p := range g.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (g *stubGateway) Refund(ctx context.Context, paymentID string, amount *int64) (*payments.GatewayRefund, error) {
	return &payments.GatewayRefund{ID: "rfnd_1", PaymentID: paymentID, Status: "processed"}, nil
}

func (g *stubGateway) add(p payments.GatewayPayment) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[p.ID] = p
}

type testServer struct {
	app     *fiber.App
	db      *gorm.DB
	store   *database.PaymentStore
	fees    *database.FeeStore
	gateway *stubGateway
}

func newTestServer(t *testing.T) *testServer {
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

	store := database.NewPaymentStore(db)
	fees := database.NewFeeStore(db)
	deliveries := database.NewWebhookDeliveryStore(db)
	gw := &stubGateway{payments: map[string]payments.GatewayPayment{}}

	engine := services.NewReconciliationService(store, gw, testKeySecret, time.Second)
	ph := &PaymentHandler{
		Orders:          services.NewOrderService(fees, store, gw, "rzp_key", "INR", time.Second),
		Engine:          engine,
		Webhooks:        services.NewWebhookService(engine, deliveries, testWebhookSecret, false),
		Records:         store,
		JWTSecret:       testJWTSecret,
		SignatureHeader: "X-Razorpay-Signature",
	}
	ah := &AdminPaymentHandler{
		Records:    store,
		Deliveries: deliveries,
		Refunds:    services.NewRefundService(store, database.NewRefundStore(db), gw, time.Second),
		Reports:    services.NewReportService(store, nil),
		Engine:     engine,
		SweepTTL:   time.Hour,
	}

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	api := app.Group("/api/v1")
	api.Post("/payments/webhook", ph.PaymentWebhook)
	api.Post("/payments/verify", ph.VerifyPayment)
	protected := api.Group("/payments", middleware.Protected(testJWTSecret))
	protected.Post("/orders", ph.CreateOrder)
	protected.Get("/:id", ph.GetPayment)
	admin := api.Group("/admin", middleware.Protected(testJWTSecret), middleware.AdminRequired())
	admin.Get("/payments", ah.ListPayments)
	admin.Get("/payments/report", ah.TransactionReport)
	admin.Post("/payments/sweep", ah.Sweep)
	admin.Post("/payments/:id/refund", ah.RefundPayment)
	admin.Get("/webhook-deliveries", ah.WebhookDeliveries)

	return &testServer{app: app, db: db, store: store, fees: fees, gateway: gw}
}

func bearer(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID.String(),
		"role":    role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "Bearer " + s
}

func (s *testServer) do(t *testing.T, method, path, auth string, body any, headers ...string) (int, map[string]any, []byte) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out, raw
}

func (s *testServer) seedFee(t *testing.T, amount int64) *models.RouteFee {
	t.Helper()
	fee := &models.RouteFee{
		RouteID: uuid.New(), StopName: "Main Gate", BillingPeriod: "2026-10", Amount: amount,
		Currency: "INR", Active: true, ValidFrom: time.Now().UTC().Add(-time.Hour),
	}
	if err := s.fees.Create(context.Background(), fee); err != nil {
		t.Fatalf("seed fee: %v", err)
	}
	return fee
}

// openOrder creates an order through the API and returns the record id and gateway order id.
func (s *testServer) openOrder(t *testing.T, student uuid.UUID, amount int64) (string, string) {
	t.Helper()
	fee := s.seedFee(t, amount)
	code, body, raw := s.do(t, http.MethodPost, "/api/v1/payments/orders", bearer(t, student, "student"), map[string]string{
		"studentId": student.String(), "routeId": fee.RouteID.String(), "stopName": fee.StopName, "feeId": fee.ID.String(),
	})
	if code != http.StatusOK {
		t.Fatalf("create order: %d %s", code, raw)
	}
	return body["paymentRecordId"].(string), body["orderId"].(string)
}

func TestCreateOrderEndpoint(t *testing.T) {
	s := newTestServer(t)
	student := uuid.New()
	fee := s.seedFee(t, 75000)
	payload := map[string]string{
		"studentId": student.String(), "routeId": fee.RouteID.String(), "stopName": fee.StopName, "feeId": fee.ID.String(),
	}

	code, body, raw := s.do(t, http.MethodPost, "/api/v1/payments/orders", bearer(t, student, "student"), payload)
	if code != http.StatusOK {
		t.Fatalf("status = %d: %s", code, raw)
	}
	if body["amount"].(float64) != 75000 || body["keyId"] != "rzp_key" || body["orderId"] == "" {
		t.Errorf("unexpected body: %s", raw)
	}

	code, body, _ = s.do(t, http.MethodPost, "/api/v1/payments/orders", bearer(t, student, "student"), payload)
	if code != http.StatusConflict || body["code"] != "AlreadyExists" {
		t.Errorf("duplicate: %d %v", code, body)
	}

	code, _, _ = s.do(t, http.MethodPost, "/api/v1/payments/orders", bearer(t, uuid.New(), "student"), payload)
	if code != http.StatusForbidden {
		t.Errorf("other student: status = %d, want 403", code)
	}

	code, body, _ = s.do(t, http.MethodPost, "/api/v1/payments/orders", bearer(t, student, "student"), map[string]string{"studentId": "nope"})
	if code != http.StatusBadRequest || body["code"] != "ValidationFailed" {
		t.Errorf("invalid body: %d %v", code, body)
	}

	code, _, _ = s.do(t, http.MethodPost, "/api/v1/payments/orders", "", payload)
	if code != http.StatusBadRequest {
		t.Errorf("missing token: status = %d, want 400", code)
	}
}

func TestVerifyEndpoint(t *testing.T) {
	s := newTestServer(t)

	verify := func(recordID, orderID, paymentID, sig string) (int, map[string]any) {
		code, body, _ := s.do(t, http.MethodPost, "/api/v1/payments/verify", "", map[string]string{
			"order_id": orderID, "payment_id": paymentID, "signature": sig, "paymentRecordId": recordID,
		})
		return code, body
	}
	sign := func(orderID, paymentID string) string {
		return payments.Sign(payments.ClientPayload(orderID, paymentID), testKeySecret)
	}

	t.Run("confirmed", func(t *testing.T) {
		recordID, orderID := s.openOrder(t, uuid.New(), 100000)
		s.gateway.add(payments.GatewayPayment{ID: "pay_ok", OrderID: orderID, Amount: 100000, Currency: "INR", Status: "captured"})
		code, body := verify(recordID, orderID, "pay_ok", sign(orderID, "pay_ok"))
		if code != http.StatusOK || body["status"] != "confirmed" {
			t.Fatalf("got %d %v", code, body)
		}
	})

	t.Run("pending", func(t *testing.T) {
		recordID, orderID := s.openOrder(t, uuid.New(), 100000)
		s.gateway.add(payments.GatewayPayment{ID: "pay_auth", OrderID: orderID, Amount: 100000, Status: "authorized"})
		code, body := verify(recordID, orderID, "pay_auth", sign(orderID, "pay_auth"))
		if code != http.StatusAccepted || body["status"] != "pending" {
			t.Fatalf("got %d %v", code, body)
		}
	})

	t.Run("invalid signature", func(t *testing.T) {
		recordID, orderID := s.openOrder(t, uuid.New(), 100000)
		code, body := verify(recordID, orderID, "pay_x", sign(orderID, "pay_y"))
		if code != http.StatusBadRequest || body["code"] != "InvalidSignature" {
			t.Fatalf("got %d %v", code, body)
		}
	})

	t.Run("amount mismatch", func(t *testing.T) {
		recordID, orderID := s.openOrder(t, uuid.New(), 100000)
		s.gateway.add(payments.GatewayPayment{ID: "pay_short", OrderID: orderID, Amount: 99999, Currency: "INR", Status: "captured"})
		code, body := verify(recordID, orderID, "pay_short", sign(orderID, "pay_short"))
		if code != http.StatusBadRequest || body["code"] != "AmountMismatch" || body["paymentStatus"] != "failed" {
			t.Fatalf("got %d %v", code, body)
		}
	})

	t.Run("unknown record", func(t *testing.T) {
		code, _ := verify(uuid.NewString(), "order_1", "pay_1", sign("order_1", "pay_1"))
		if code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", code)
		}
	})
}

func TestWebhookEndpoint(t *testing.T) {
	s := newTestServer(t)
	student := uuid.New()
	recordID, orderID := s.openOrder(t, student, 100000)

	body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_w","order_id":"` + orderID + `","amount":100000,"currency":"INR","status":"captured"}}}}`)
	sig := payments.Sign(body, testWebhookSecret)

	code, resp, raw := s.do(t, http.MethodPost, "/api/v1/payments/webhook", "", body, "X-Razorpay-Signature", sig, "X-Razorpay-Event-Id", "evt_1")
	if code != http.StatusOK || resp["outcome"] != "applied" {
		t.Fatalf("first delivery: %d %s", code, raw)
	}
	code, resp, _ = s.do(t, http.MethodPost, "/api/v1/payments/webhook", "", body, "X-Razorpay-Signature", sig)
	if code != http.StatusOK || resp["outcome"] != "already_terminal" {
		t.Fatalf("redelivery: %d %v", code, resp)
	}

	code, resp, _ = s.do(t, http.MethodPost, "/api/v1/payments/webhook", "", body, "X-Razorpay-Signature", "deadbeef")
	if code != http.StatusBadRequest || resp["code"] != "InvalidSignature" {
		t.Fatalf("forged: %d %v", code, resp)
	}

	ignored := []byte(`{"event":"settlement.processed","payload":{}}`)
	code, resp, _ = s.do(t, http.MethodPost, "/api/v1/payments/webhook", "", ignored, "X-Razorpay-Signature", payments.Sign(ignored, testWebhookSecret))
	if code != http.StatusOK || resp["outcome"] != "ignored" {
		t.Fatalf("ignored: %d %v", code, resp)
	}

	code, resp, _ = s.do(t, http.MethodGet, "/api/v1/payments/"+recordID, bearer(t, student, "student"), nil)
	if code != http.StatusOK || resp["status"] != "confirmed" || resp["confirmed_via"] != "webhook" {
		t.Fatalf("status lookup: %d %v", code, resp)
	}
	code, _, _ = s.do(t, http.MethodGet, "/api/v1/payments/"+recordID, bearer(t, uuid.New(), "student"), nil)
	if code != http.StatusForbidden {
		t.Fatalf("foreign lookup: status = %d, want 403", code)
	}
}

func TestWebhookEndpointAcknowledgesStoreFailure(t *testing.T) {
	s := newTestServer(t)
	_, orderID := s.openOrder(t, uuid.New(), 100000)

	sqlDB, err := s.db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	_ = sqlDB.Close()

	body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_w","order_id":"` + orderID + `","amount":100000,"currency":"INR","status":"captured"}}}}`)
	code, resp, raw := s.do(t, http.MethodPost, "/api/v1/payments/webhook", "", body, "X-Razorpay-Signature", payments.Sign(body, testWebhookSecret))
	if code != http.StatusOK || resp["outcome"] != "error" {
		t.Fatalf("store failure: %d %s, want 200 with outcome error", code, raw)
	}
}
