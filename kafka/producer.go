package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
	"github.com/anjiri1684/transport_portal/models"
	"github.com/google/uuid"
)

const (
	TopicPaymentConfirmed = "payment.confirmed"
	TopicPaymentFailed    = "payment.failed"
)

// PaymentEvent is the message body published for every terminal payment.
type PaymentEvent struct {
	PaymentRecordID  uuid.UUID `json:"payment_record_id"`
	StudentID        uuid.UUID `json:"student_id"`
	RouteID          uuid.UUID `json:"route_id"`
	StopName         string    `json:"stop_name"`
	BillingPeriod    string    `json:"billing_period"`
	Status           string    `json:"status"`
	GatewayOrderID   string    `json:"gateway_order_id"`
	GatewayPaymentID string    `json:"gateway_payment_id,omitempty"`
	Amount           int64     `json:"amount"`
	Currency         string    `json:"currency"`
	Via              string    `json:"via,omitempty"`
	FailureReason    string    `json:"failure_reason,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

type Producer struct {
	producer sarama.SyncProducer
}

// NewProducer connects to brokers, retrying while Kafka starts up.
func NewProducer(brokers []string, attempts int, wait time.Duration) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll

	var producer sarama.SyncProducer
	var err error
	for i := 1; i <= attempts; i++ {
		producer, err = sarama.NewSyncProducer(brokers, config)
		if err == nil {
			log.Println("Kafka producer initialized for payment events")
			return &Producer{producer: producer}, nil
		}

		log.Printf("Waiting for Kafka... (%d/%d) Error: %v", i, attempts, err)
		time.Sleep(wait)
	}
	return nil, fmt.Errorf("kafka producer: %w", err)
}

func NewProducerWith(p sarama.SyncProducer) *Producer {
	return &Producer{producer: p}
}

// OnTerminal publishes the record to payment.confirmed or payment.failed,
// keyed by record id so consumers see one partition per payment.
func (p *Producer) OnTerminal(ctx context.Context, rec *models.PaymentRecord) error {
	topic := TopicPaymentFailed
	if rec.Status == models.PaymentConfirmed {
		topic = TopicPaymentConfirmed
	}
	return p.publish(topic, rec.ID.String(), newPaymentEvent(rec))
}

func (p *Producer) publish(topic, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("send %s event: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}

func newPaymentEvent(rec *models.PaymentRecord) PaymentEvent {
	ev := PaymentEvent{
		PaymentRecordID: rec.ID,
		StudentID:       rec.StudentID,
		RouteID:         rec.RouteID,
		StopName:        rec.StopName,
		BillingPeriod:   rec.BillingPeriod,
		Status:          string(rec.Status),
		GatewayOrderID:  rec.GatewayOrderID,
		Amount:          rec.AmountExpected,
		Currency:        rec.Currency,
		OccurredAt:      rec.UpdatedAt.UTC(),
	}
	if rec.GatewayPaymentID != nil {
		ev.GatewayPaymentID = *rec.GatewayPaymentID
	}
	if rec.AmountCaptured != nil {
		ev.Amount = *rec.AmountCaptured
	}
	if rec.ConfirmedVia != nil {
		ev.Via = string(*rec.ConfirmedVia)
	}
	if rec.FailureReason != nil {
		ev.FailureReason = string(*rec.FailureReason)
	}
	return ev
}
