package events

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/models"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/telemetry"
)

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// CancelFunc performs one cancel. It is satisfied by an adapter over the
// orchestrator's Cancel.
type CancelFunc func(ctx context.Context, req models.CancelRequest) error

// CancelConsumer turns cancel-request messages into cancels.
type CancelConsumer struct {
	reader MessageReader
	cancel CancelFunc
}

func NewCancelConsumer(reader MessageReader, cancel CancelFunc) *CancelConsumer {
	return &CancelConsumer{reader: reader, cancel: cancel}
}

// NewKafkaReader builds the reader for the cancel-request topic.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
}

// Run consumes until ctx is cancelled. Malformed messages and failed cancels
// are logged and skipped.
func (c *CancelConsumer) Run(ctx context.Context) {
	defer c.reader.Close()

	telemetry.Logger.Info("Started consuming cancel requests")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				telemetry.Logger.Info("Cancel request consumer stopped")
				return
			}
			telemetry.Logger.Error("Error reading message from Kafka", zap.Error(err))
			continue
		}

		c.handle(ctx, msg)
	}
}

func (c *CancelConsumer) handle(ctx context.Context, msg kafka.Message) {
	var event models.CancelRequestEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		telemetry.Logger.Error("Error unmarshaling cancel request", zap.Error(err))
		return
	}
	if event.Tid == "" {
		telemetry.Logger.Warn("Cancel request without tid", zap.ByteString("key", msg.Key))
		return
	}

	cancelType := event.CancelType
	if cancelType == "" {
		cancelType = models.CancelGeneral
	}
	reason := event.Reason
	if reason == "" {
		reason = "cancel requested"
	}

	telemetry.Logger.Info("Processing cancel request",
		zap.String("tid", event.Tid),
		zap.String("cancel_type", string(cancelType)),
	)

	if err := c.cancel(ctx, models.CancelRequest{Tid: event.Tid, Reason: reason, CancelType: cancelType}); err != nil {
		telemetry.Logger.Error("Error processing cancel request",
			zap.String("tid", event.Tid),
			zap.Error(err),
		)
	}
}
