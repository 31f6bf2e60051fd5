package payments

import (
	"context"
	"errors"
)

var (
	// ErrGatewayUnavailable marks failures worth retrying: network errors,
	// timeouts, rate limiting and 5xx answers.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrGatewayRejected marks a definitive 4xx answer from the gateway.
	ErrGatewayRejected = errors.New("payment gateway rejected request")
)

// Gateway payment statuses as reported by the provider.
const (
	GatewayStatusCreated    = "created"
	GatewayStatusAuthorized = "authorized"
	GatewayStatusCaptured   = "captured"
	GatewayStatusFailed     = "failed"
	GatewayStatusRefunded   = "refunded"
)

type CreateOrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type GatewayPayment struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// Captured reports a successfully settled payment. A refunded payment was
// captured first, so it still counts as paid for reconciliation.
func (p GatewayPayment) Captured() bool {
	return p.Status == GatewayStatusCaptured || p.Status == GatewayStatusRefunded
}

func (p GatewayPayment) Failed() bool {
	return p.Status == GatewayStatusFailed
}

type GatewayRefund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

// Gateway is what the payment core needs from the external provider.
// Every call may fail; callers never assume success without a result.
type Gateway interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*GatewayOrder, error)
	FetchPayment(ctx context.Context, paymentID string) (*GatewayPayment, error)
	FetchOrderPayments(ctx context.Context, orderID string) ([]GatewayPayment, error)
	Refund(ctx context.Context, paymentID string, amount *int64) (*GatewayRefund, error)
}
