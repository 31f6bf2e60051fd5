package payments

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventOrderPaid       = "order.paid"
)

var ErrMalformedWebhook = errors.New("malformed webhook payload")

// WebhookEvent is one of PaymentCaptured, PaymentFailed, OrderPaid or Ignored.
type WebhookEvent interface {
	EventType() string
}

// PaymentEvent is implemented by the variants that carry a payment entity.
type PaymentEvent interface {
	WebhookEvent
	Payment() GatewayPayment
}

type PaymentCaptured struct{ Entity GatewayPayment }
type PaymentFailed struct{ Entity GatewayPayment }
type OrderPaid struct{ Entity GatewayPayment }

// Ignored is any event type the reconciliation core does not act on.
type Ignored struct{ Type string }

func (PaymentCaptured) EventType() string { return EventPaymentCaptured }
func (PaymentFailed) EventType() string   { return EventPaymentFailed }
func (OrderPaid) EventType() string       { return EventOrderPaid }
func (e Ignored) EventType() string       { return e.Type }

func (e PaymentCaptured) Payment() GatewayPayment { return e.Entity }
func (e PaymentFailed) Payment() GatewayPayment   { return e.Entity }
func (e OrderPaid) Payment() GatewayPayment       { return e.Entity }

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity GatewayPayment `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity GatewayOrder `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

// ParseWebhookEvent decodes the raw gateway envelope. Unknown event types
// come back as Ignored rather than an error.
func ParseWebhookEvent(body []byte) (WebhookEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: missing event", ErrMalformedWebhook)
	}

	switch env.Event {
	case EventPaymentCaptured, EventPaymentFailed, EventOrderPaid:
	default:
		return Ignored{Type: env.Event}, nil
	}

	if env.Payload.Payment == nil {
		return nil, fmt.Errorf("%w: %s without payment entity", ErrMalformedWebhook, env.Event)
	}
	entity := env.Payload.Payment.Entity
	if entity.OrderID == "" && env.Payload.Order != nil {
		entity.OrderID = env.Payload.Order.Entity.ID
	}
	if entity.ID == "" || entity.OrderID == "" {
		return nil, fmt.Errorf("%w: payment entity needs id and order_id", ErrMalformedWebhook)
	}

	switch env.Event {
	case EventPaymentCaptured:
		return PaymentCaptured{Entity: entity}, nil
	case EventPaymentFailed:
		return PaymentFailed{Entity: entity}, nil
	default:
		return OrderPaid{Entity: entity}, nil
	}
}
