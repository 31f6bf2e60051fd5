package payments

import (
	"errors"
	"testing"
)

func TestParseWebhookEvent(t *testing.T) {
	t.Run("payment.captured", func(t *testing.T) {
		body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","amount":50000,"currency":"INR","status":"captured"}}}}`)
		ev, err := ParseWebhookEvent(body)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		captured, ok := ev.(PaymentCaptured)
		if !ok {
			t.Fatalf("expected PaymentCaptured, got %T", ev)
		}
		if captured.Payment().ID != "pay_1" || captured.Payment().Amount != 50000 || !captured.Payment().Captured() {
			t.Errorf("unexpected entity: %+v", captured.Entity)
		}
	})

	t.Run("order.paid takes order id from the order entity when missing", func(t *testing.T) {
		body := []byte(`{"event":"order.paid","payload":{"payment":{"entity":{"id":"pay_1","amount":100,"status":"captured"}},"order":{"entity":{"id":"order_9","amount":100,"status":"paid"}}}}`)
		ev, err := ParseWebhookEvent(body)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		paid, ok := ev.(OrderPaid)
		if !ok {
			t.Fatalf("expected OrderPaid, got %T", ev)
		}
		if paid.Payment().OrderID != "order_9" {
			t.Errorf("order id = %q, want order_9", paid.Payment().OrderID)
		}
	})

	t.Run("payment.failed", func(t *testing.T) {
		body := []byte(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_2","order_id":"order_2","amount":100,"status":"failed"}}}}`)
		ev, err := ParseWebhookEvent(body)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := ev.(PaymentFailed); !ok {
			t.Fatalf("expected PaymentFailed, got %T", ev)
		}
	})

	t.Run("unknown events are ignored", func(t *testing.T) {
		ev, err := ParseWebhookEvent([]byte(`{"event":"refund.created","payload":{}}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ig, ok := ev.(Ignored); !ok || ig.EventType() != "refund.created" {
			t.Fatalf("expected Ignored refund.created, got %#v", ev)
		}
	})

	malformed := map[string]string{
		"not json":       `{"event":`,
		"missing event":  `{"payload":{}}`,
		"missing entity": `{"event":"payment.captured","payload":{}}`,
		"missing ids":    `{"event":"payment.captured","payload":{"payment":{"entity":{"amount":1}}}}`,
	}
	for name, body := range malformed {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseWebhookEvent([]byte(body)); !errors.Is(err, ErrMalformedWebhook) {
				t.Errorf("expected ErrMalformedWebhook, got %v", err)
			}
		})
	}
}
