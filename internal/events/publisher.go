// Package events publishes payment state changes to Kafka and NATS and
// consumes asynchronous cancel requests.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/interfaces"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/models"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/telemetry"
)

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type KafkaPublisher struct {
	writer MessageWriter
}

var _ interfaces.EventPublisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// Publish keys the message by tid so one transaction's events stay ordered.
func (p *KafkaPublisher) Publish(ctx context.Context, event models.PaymentEvent) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Tid),
		Value: eventJSON,
	})
}

// SubjectPublisher is the subset of *nats.Conn the publisher uses.
type SubjectPublisher interface {
	Publish(subj string, data []byte) error
}

type NATSPublisher struct {
	conn SubjectPublisher
}

var _ interfaces.EventPublisher = (*NATSPublisher)(nil)

func NewNATSPublisher(conn SubjectPublisher) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

// Subject returns the NATS subject for a state, e.g. payment.approved.
func Subject(state models.TxStatus) string {
	return "payment." + strings.ToLower(string(state))
}

func (p *NATSPublisher) Publish(_ context.Context, event models.PaymentEvent) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.conn.Publish(Subject(event.State), eventJSON)
}

// Multi publishes to every publisher and joins their errors.
type Multi []interfaces.EventPublisher

func (m Multi) Publish(ctx context.Context, event models.PaymentEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Publish(context.Context, models.PaymentEvent) error { return nil }

// Logged wraps a publisher so failures are logged and never returned.
type Logged struct {
	Next interfaces.EventPublisher
}

func (l Logged) Publish(ctx context.Context, event models.PaymentEvent) error {
	if err := l.Next.Publish(ctx, event); err != nil {
		telemetry.Logger.Warn("Failed to publish payment event",
			zap.String("tid", event.Tid),
			zap.String("order_id", event.OrderID),
			zap.String("state", string(event.State)),
			zap.Error(err),
		)
	}
	return nil
}
