package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/anjiri1684/transport_portal/apperr"
	"github.com/anjiri1684/transport_portal/database"
	"github.com/anjiri1684/transport_portal/models"
	"github.com/anjiri1684/transport_portal/payments"
	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomeApplied         Outcome = "applied"
	OutcomeAlreadyTerminal Outcome = "already_terminal"
	OutcomePending         Outcome = "pending"
	OutcomeNotFound        Outcome = "not_found"
)

const sweepBatchSize = 100

// TransitionListener is told about every terminal write this process made.
type TransitionListener interface {
	OnTerminal(ctx context.Context, rec *models.PaymentRecord) error
}

type Result struct {
	Record  *models.PaymentRecord `json:"record"`
	Outcome Outcome               `json:"outcome"`
}

type ClientVerification struct {
	RecordID  uuid.UUID
	OrderID   string
	PaymentID string
	Signature string
}

type SweepReport struct {
	Checked   int `json:"checked"`
	Confirmed int `json:"confirmed"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
	Errors    int `json:"errors"`
}

// ReconciliationService drives every payment record from pending to a
// terminal state, whichever confirmation arrives first.
type ReconciliationService struct {
	records   PaymentRecords
	gateway   payments.Gateway
	keySecret string
	timeout   time.Duration
	listeners []TransitionListener
	now       func() time.Time
	logger    *slog.Logger
}

func NewReconciliationService(records PaymentRecords, gateway payments.Gateway, keySecret string, timeout time.Duration, listeners ...TransitionListener) *ReconciliationService {
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &ReconciliationService{
		records:   records,
		gateway:   gateway,
		keySecret: keySecret,
		timeout:   timeout,
		listeners: listeners,
		now:       time.Now,
		logger:    slog.Default(),
	}
}

func (s *ReconciliationService) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// resolver produces the transition for a pending record. ok=false leaves
// the record pending.
type resolver func(ctx context.Context, rec *models.PaymentRecord) (t database.Transition, ok bool, err error)

// VerifyClient handles the browser callback after checkout.
func (s *ReconciliationService) VerifyClient(ctx context.Context, in ClientVerification) (*Result, error) {
	rec, err := s.records.GetByID(ctx, in.RecordID)
	if err != nil {
		if errors.Is(err, database.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, apperr.Wrap(err)
	}

	res, err := s.reconcile(ctx, rec, func(ctx context.Context, rec *models.PaymentRecord) (database.Transition, bool, error) {
		if in.OrderID != rec.GatewayOrderID || !payments.VerifyClientSignature(in.OrderID, in.PaymentID, in.Signature, s.keySecret) {
			s.logger.WarnContext(ctx, "client payment signature rejected",
				"event", "invalid_client_signature", "payment_record_id", rec.ID, "order_id", in.OrderID)
			return database.Transition{}, false, ErrSignatureInvalid
		}

		gctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		payment, err := s.gateway.FetchPayment(gctx, in.PaymentID)
		if err != nil {
			s.logger.WarnContext(ctx, "gateway payment fetch failed", "payment_record_id", rec.ID, "payment_id", in.PaymentID, "err", err)
			return database.Transition{}, false, gatewayError(err)
		}
		if payment.OrderID != rec.GatewayOrderID {
			s.logger.WarnContext(ctx, "gateway payment belongs to another order",
				"event", "payment_order_mismatch", "payment_record_id", rec.ID, "payment_order_id", payment.OrderID)
			return database.Transition{}, false, ErrPaymentOrderMatch
		}
		t, ok := transitionFor(rec, *payment, models.ViaClient)
		return t, ok, nil
	})
	if err != nil {
		return nil, err
	}

	if isAmountMismatch(res.Record) {
		return res, ErrAmountMismatch
	}
	return res, nil
}

// ApplyWebhook reconciles an already authenticated webhook event. Unknown
// orders are acknowledged with OutcomeNotFound.
func (s *ReconciliationService) ApplyWebhook(ctx context.Context, ev payments.PaymentEvent) (*Result, error) {
	payment := ev.Payment()
	switch ev.(type) {
	case payments.PaymentFailed:
		payment.Status = payments.GatewayStatusFailed
	case payments.OrderPaid:
		if payment.Status == "" {
			payment.Status = payments.GatewayStatusCaptured
		}
	}

	rec, err := s.records.GetByGatewayOrderID(ctx, payment.OrderID)
	if err != nil {
		if errors.Is(err, database.ErrRecordNotFound) {
			s.logger.WarnContext(ctx, "webhook for unknown gateway order",
				"event", "webhook_unknown_order", "gateway_order_id", payment.OrderID, "payment_id", payment.ID)
			return &Result{Outcome: OutcomeNotFound}, nil
		}
		return nil, apperr.Wrap(err)
	}

	return s.reconcile(ctx, rec, func(_ context.Context, rec *models.PaymentRecord) (database.Transition, bool, error) {
		t, ok := transitionFor(rec, payment, models.ViaWebhook)
		return t, ok, nil
	})
}

// Sweep reconciles pending records older than ttl against the gateway.
func (s *ReconciliationService) Sweep(ctx context.Context, ttl time.Duration) (SweepReport, error) {
	var report SweepReport
	stale, err := s.records.ListStalePending(ctx, s.now().Add(-ttl), sweepBatchSize)
	if err != nil {
		return report, apperr.Wrap(err)
	}

	for i := range stale {
		report.Checked++
		res, err := s.sweepRecord(ctx, &stale[i], true)
		if err != nil {
			report.Errors++
			s.logger.WarnContext(ctx, "sweep left payment pending", "payment_record_id", stale[i].ID, "err", err)
			continue
		}
		switch res.Record.Status {
		case models.PaymentConfirmed:
			report.Confirmed++
		case models.PaymentFailed:
			report.Failed++
		default:
			report.Pending++
		}
	}

	s.logger.InfoContext(ctx, "stale payment sweep finished",
		"checked", report.Checked, "confirmed", report.Confirmed, "failed", report.Failed, "errors", report.Errors)
	return report, nil
}

// SweepRecord reconciles a single record against the gateway. Without a
// captured payment it is only expired once it is older than ttl.
func (s *ReconciliationService) SweepRecord(ctx context.Context, recordID uuid.UUID, ttl time.Duration) (*Result, error) {
	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, database.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, apperr.Wrap(err)
	}
	return s.sweepRecord(ctx, rec, rec.CreatedAt.Before(s.now().Add(-ttl)))
}

func (s *ReconciliationService) sweepRecord(ctx context.Context, rec *models.PaymentRecord, expire bool) (*Result, error) {
	return s.reconcile(ctx, rec, func(ctx context.Context, rec *models.PaymentRecord) (database.Transition, bool, error) {
		gctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		list, err := s.gateway.FetchOrderPayments(gctx, rec.GatewayOrderID)
		if err != nil {
			return database.Transition{}, false, gatewayUnavailable(err)
		}

		var lastFailed string
		for _, p := range list {
			t, ok := transitionFor(rec, p, models.ViaSweeper)
			if ok && (p.Captured() || t.FailureReason == models.ReasonAmountMismatch) {
				return t, true, nil
			}
			if p.Failed() {
				lastFailed = p.ID
			}
		}
		if !expire {
			return database.Transition{}, false, nil
		}
		return database.Transition{
			To:               models.PaymentFailed,
			GatewayPaymentID: lastFailed,
			Via:              models.ViaSweeper,
			FailureReason:    models.ReasonExpired,
		}, true, nil
	})
}

// reconcile runs the shared state machine. resolve is called at most once.
func (s *ReconciliationService) reconcile(ctx context.Context, rec *models.PaymentRecord, resolve resolver) (*Result, error) {
	var (
		t        database.Transition
		ok       bool
		resolved bool
	)
	for attempt := 0; ; attempt++ {
		if rec.Status.IsTerminal() {
			return &Result{Record: rec, Outcome: OutcomeAlreadyTerminal}, nil
		}

		if !resolved {
			var err error
			t, ok, err = resolve(ctx, rec)
			if err != nil {
				return nil, err
			}
			resolved = true
		}
		if !ok {
			return &Result{Record: rec, Outcome: OutcomePending}, nil
		}

		updated, err := s.records.CompareAndSwap(ctx, rec.ID, rec.Version, t)
		if errors.Is(err, database.ErrVersionConflict) && attempt == 0 {
			if rec, err = s.records.GetByID(ctx, rec.ID); err != nil {
				return nil, apperr.Wrap(err)
			}
			continue
		}
		if err != nil {
			return nil, apperr.Wrap(err)
		}

		s.logTransition(ctx, updated)
		s.notify(ctx, updated)
		return &Result{Record: updated, Outcome: OutcomeApplied}, nil
	}
}

// transitionFor maps an authoritative gateway payment onto a terminal write.
func transitionFor(rec *models.PaymentRecord, p payments.GatewayPayment, via models.ConfirmationPath) (database.Transition, bool) {
	t := database.Transition{GatewayPaymentID: p.ID, Via: via}

	// A reported amount that differs from the fee fails the record whatever
	// the gateway status says.
	if p.Amount > 0 || p.Captured() {
		if p.Amount != rec.AmountExpected || (p.Currency != "" && !strings.EqualFold(p.Currency, rec.Currency)) {
			amount := p.Amount
			t.To = models.PaymentFailed
			t.FailureReason = models.ReasonAmountMismatch
			t.AmountCaptured = &amount
			return t, true
		}
	}

	switch {
	case p.Captured():
		amount := p.Amount
		t.To = models.PaymentConfirmed
		t.AmountCaptured = &amount
		return t, true
	case p.Failed():
		t.To = models.PaymentFailed
		t.FailureReason = models.ReasonGatewayDeclined
		return t, true
	default:
		return database.Transition{}, false
	}
}

func (s *ReconciliationService) logTransition(ctx context.Context, rec *models.PaymentRecord) {
	attrs := []any{"payment_record_id", rec.ID, "gateway_order_id", rec.GatewayOrderID, "status", rec.Status}
	if rec.ConfirmedVia != nil {
		attrs = append(attrs, "via", *rec.ConfirmedVia)
	}
	if isAmountMismatch(rec) {
		attrs = append(attrs, "event", "amount_mismatch", "amount_expected", rec.AmountExpected)
		if rec.AmountCaptured != nil {
			attrs = append(attrs, "amount_captured", *rec.AmountCaptured)
		}
		s.logger.ErrorContext(ctx, "captured amount does not match expected amount", attrs...)
		return
	}
	s.logger.InfoContext(ctx, "payment record reached terminal state", attrs...)
}

func (s *ReconciliationService) notify(ctx context.Context, rec *models.PaymentRecord) {
	for _, l := range s.listeners {
		if err := l.OnTerminal(ctx, rec); err != nil {
			s.logger.WarnContext(ctx, "transition listener failed", "payment_record_id", rec.ID, "err", err)
		}
	}
}

func isAmountMismatch(rec *models.PaymentRecord) bool {
	return rec != nil && rec.Status == models.PaymentFailed &&
		rec.FailureReason != nil && *rec.FailureReason == models.ReasonAmountMismatch
}
