package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/anjiri1684/transport_portal/apperr"
	"github.com/anjiri1684/transport_portal/models"
	"github.com/anjiri1684/transport_portal/payments"
	"gorm.io/datatypes"
)

var ErrMalformedWebhook = apperr.InvalidErr("MalformedWebhook", "Webhook payload could not be parsed.")

type DeliveryRecorder interface {
	Record(ctx context.Context, d *models.WebhookDelivery) error
}

type WebhookRequest struct {
	Body      []byte
	Signature string
	EventID   string
}

// WebhookService authenticates raw gateway webhooks, hands the parsed event
// to the reconciliation engine and records every delivery.
type WebhookService struct {
	engine        *ReconciliationService
	deliveries    DeliveryRecorder
	secret        string
	allowUnsigned bool
	logger        *slog.Logger
}

func NewWebhookService(engine *ReconciliationService, deliveries DeliveryRecorder, secret string, allowUnsigned bool) *WebhookService {
	return &WebhookService{
		engine:        engine,
		deliveries:    deliveries,
		secret:        secret,
		allowUnsigned: allowUnsigned && secret == "",
		logger:        slog.Default(),
	}
}

func (s *WebhookService) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Ingest returns an error only for unauthenticated or unparseable bodies.
// Every other delivery, including one that hit a store failure, is
// acknowledged and its real outcome is recorded.
func (s *WebhookService) Ingest(ctx context.Context, req WebhookRequest) (models.DeliveryOutcome, error) {
	d := &models.WebhookDelivery{
		EventID:    req.EventID,
		EventType:  "unknown",
		ReceivedAt: time.Now().UTC(),
	}
	if json.Valid(req.Body) {
		d.Payload = datatypes.JSON(req.Body)
	}

	if !s.authentic(req) {
		s.logger.WarnContext(ctx, "webhook signature rejected", "event", "invalid_webhook_signature", "event_id", req.EventID)
		s.record(ctx, d, models.DeliveryRejected, ErrSignatureInvalid)
		return models.DeliveryRejected, ErrSignatureInvalid
	}
	d.SignatureValid = true

	ev, err := payments.ParseWebhookEvent(req.Body)
	if err != nil {
		s.logger.WarnContext(ctx, "webhook payload malformed", "event_id", req.EventID, "err", err)
		s.record(ctx, d, models.DeliveryRejected, err)
		return models.DeliveryRejected, ErrMalformedWebhook
	}
	d.EventType = ev.EventType()

	pev, ok := ev.(payments.PaymentEvent)
	if !ok {
		s.record(ctx, d, models.DeliveryIgnored, nil)
		return models.DeliveryIgnored, nil
	}
	d.GatewayOrderID = pev.Payment().OrderID
	d.GatewayPaymentID = pev.Payment().ID

	res, err := s.engine.ApplyWebhook(ctx, pev)
	if err != nil {
		// The delivery is still acknowledged; the record stays pending and the
		// sweeper or the client callback reconciles it later.
		s.logger.ErrorContext(ctx, "webhook apply failed", "event", "webhook_apply_error",
			"event_id", req.EventID, "gateway_order_id", d.GatewayOrderID, "err", err)
		s.record(ctx, d, models.DeliveryError, err)
		return models.DeliveryError, nil
	}

	outcome := deliveryOutcome(res.Outcome)
	s.record(ctx, d, outcome, nil)
	return outcome, nil
}

func (s *WebhookService) authentic(req WebhookRequest) bool {
	if s.secret == "" {
		return s.allowUnsigned
	}
	return payments.Verify(req.Body, req.Signature, s.secret)
}

func (s *WebhookService) record(ctx context.Context, d *models.WebhookDelivery, outcome models.DeliveryOutcome, cause error) {
	d.Outcome = outcome
	if cause != nil {
		msg := cause.Error()
		var ae *apperr.AppError
		if errors.As(cause, &ae) && ae.Err == nil {
			msg = ae.Code
		}
		d.Error = &msg
	}
	if err := s.deliveries.Record(ctx, d); err != nil {
		s.logger.ErrorContext(ctx, "failed to record webhook delivery", "event_id", d.EventID, "err", err)
	}
}

func deliveryOutcome(o Outcome) models.DeliveryOutcome {
	switch o {
	case OutcomeApplied:
		return models.DeliveryApplied
	case OutcomeAlreadyTerminal:
		return models.DeliveryAlreadyTerminal
	case OutcomeNotFound:
		return models.DeliveryNotFound
	default:
		return models.DeliveryPending
	}
}
