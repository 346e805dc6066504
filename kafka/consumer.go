package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shop-svc/config"
	"shop-svc/models"
	"shop-svc/service"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// paymentActor is the identity used when payment events mark orders paid.
var paymentActor = models.Actor{Role: models.RoleStaff, Name: "payment-service"}

type PaymentRecorder interface {
	MarkPaid(ctx context.Context, actor models.Actor, id uuid.UUID, receipt *models.PaymentResult) (*models.Order, error)
}

func InitConsumer(cfg config.Kafka, logger *zap.Logger) (sarama.Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	logger.Info("Kafka consumer initialized", zap.Strings("brokers", cfg.Brokers))
	return consumer, nil
}

type PaymentConsumer struct {
	consumer sarama.Consumer
	topic    string
	payments PaymentRecorder
	logger   *zap.Logger
}

func NewPaymentConsumer(consumer sarama.Consumer, topic string, payments PaymentRecorder, logger *zap.Logger) *PaymentConsumer {
	return &PaymentConsumer{consumer: consumer, topic: topic, payments: payments, logger: logger}
}

// Start consumes payment events until ctx is cancelled.
func (pc *PaymentConsumer) Start(ctx context.Context) error {
	partitionConsumer, err := pc.consumer.ConsumePartition(pc.topic, 0, sarama.OffsetNewest)
	if err != nil {
		return fmt.Errorf("failed to consume partition: %w", err)
	}
	defer partitionConsumer.Close()

	pc.logger.Info("Kafka consumer started", zap.String("topic", pc.topic))

	for {
		select {
		case message, ok := <-partitionConsumer.Messages():
			if !ok {
				return nil
			}
			if err := pc.handleMessage(message); err != nil {
				pc.logger.Error("Failed to handle message", zap.Error(err))
			}
		case err, ok := <-partitionConsumer.Errors():
			if ok {
				pc.logger.Error("Kafka consumer error", zap.Error(err))
			}
		case <-ctx.Done():
			pc.logger.Info("Kafka consumer stopped", zap.String("topic", pc.topic))
			return nil
		}
	}
}

func (pc *PaymentConsumer) handleMessage(message *sarama.ConsumerMessage) error {
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), saramaHeaderCarrierConsumer(message.Headers))

	ctx, span := otel.Tracer("shop-service").Start(ctx, "ProcessPaymentEvent")
	defer span.End()

	var event models.PaymentEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	span.SetAttributes(
		attribute.String("event.type", event.EventType),
		attribute.String("order.id", event.OrderID.String()),
	)

	pc.logger.Info("Received event",
		zap.String("trace_id", traceID(ctx)),
		zap.String("event_type", event.EventType),
		zap.String("order_id", event.OrderID.String()),
	)

	switch event.EventType {
	case "payment_success":
		receipt := &models.PaymentResult{
			ID:         event.TransactionID,
			Status:     event.Status,
			UpdateTime: message.Timestamp.UTC().Format(time.RFC3339),
		}
		_, err := pc.payments.MarkPaid(ctx, paymentActor, event.OrderID, receipt)
		if errors.Is(err, service.ErrOrderNotFound) || errors.Is(err, service.ErrInvalidTransition) {
			pc.logger.Warn("Payment event ignored",
				zap.String("trace_id", traceID(ctx)),
				zap.String("order_id", event.OrderID.String()),
				zap.Error(err),
			)
			return nil
		}
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to mark order %s paid: %w", event.OrderID, err)
		}
		pc.logger.Info("Order marked paid from payment event", zap.String("trace_id", traceID(ctx)), zap.String("order_id", event.OrderID.String()))
	case "payment_failed":
		pc.logger.Warn("Payment failed", zap.String("trace_id", traceID(ctx)), zap.String("order_id", event.OrderID.String()))
	}

	return nil
}

func traceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}

// saramaHeaderCarrierConsumer adapts consumer headers for extraction only.
type saramaHeaderCarrierConsumer []*sarama.RecordHeader

func (c saramaHeaderCarrierConsumer) Get(key string) string {
	for _, h := range c {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c saramaHeaderCarrierConsumer) Set(key, value string) {}

func (c saramaHeaderCarrierConsumer) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = string(h.Key)
	}
	return keys
}
