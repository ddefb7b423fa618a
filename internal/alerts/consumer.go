package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/sweetshop-backend/pkg/db/models"
	"github.com/angelmondragon/sweetshop-backend/pkg/enums"
	"github.com/angelmondragon/sweetshop-backend/pkg/logger"
	"github.com/angelmondragon/sweetshop-backend/pkg/outbox"
	"github.com/angelmondragon/sweetshop-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/sweetshop-backend/pkg/outbox/registry"
)

// ConsumerName scopes the processed-event records of the stock alert consumer.
const ConsumerName = "stock-alerts"

type eventGuard interface {
	Claim(ctx context.Context, eventID uuid.UUID) (bool, error)
	Forget(ctx context.Context, eventID uuid.UUID) error
}

// Consumer turns inventory events into stock alerts for admins.
type Consumer struct {
	repo         Repository
	subscription *pubsub.Subscriber
	idempotency  eventGuard
	logg         *logger.Logger
}

// NewConsumer builds a stock alert consumer. subscription may be nil when only Process is used.
func NewConsumer(repo Repository, subscription *pubsub.Subscriber, guard eventGuard, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("alerts repository required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		idempotency:  guard,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return fmt.Errorf("inventory subscription required")
	}
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.handleMessage(ctx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// handleMessage reports whether the message should be acked.
func (c *Consumer) handleMessage(ctx context.Context, msg *pubsub.Message) bool {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return true
	}
	if err := c.Process(ctx, eventType, envelope); err != nil {
		c.logg.Error(logCtx, "stock alert handling failed", err)
		return false
	}
	return true
}

// Process records a stock alert for supported events. Unsupported events are ignored.
func (c *Consumer) Process(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID,
		"event_type": eventType,
	})
	if eventType != enums.EventSweetOutOfStock && eventType != enums.EventLowStockDetected {
		c.logg.Info(logCtx, "skipping non-alert event")
		return nil
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return nil
	}

	claimed, err := c.idempotency.Claim(ctx, eventID)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if !claimed {
		c.logg.Info(logCtx, "event already processed")
		return nil
	}

	decoded, err := registry.DecodePayload(eventType, envelope.Version, envelope.Data)
	if err != nil {
		_ = c.idempotency.Forget(ctx, eventID)
		return fmt.Errorf("decode payload: %w", err)
	}

	alert := buildAlert(eventID, decoded)
	if alert == nil {
		c.logg.Warn(logCtx, "payload not mapped to an alert")
		return nil
	}
	created, err := c.repo.CreateIfAbsent(ctx, alert)
	if err != nil {
		_ = c.idempotency.Forget(ctx, eventID)
		return fmt.Errorf("store alert: %w", err)
	}
	logCtx = c.logg.WithSweetID(logCtx, alert.SweetID.String())
	if !created {
		c.logg.Info(logCtx, "alert already stored")
		return nil
	}
	c.logg.Info(logCtx, "stock alert recorded")
	return nil
}

func buildAlert(eventID uuid.UUID, decoded interface{}) *models.StockAlert {
	switch event := decoded.(type) {
	case *payloads.SweetOutOfStockEvent:
		return &models.StockAlert{
			EventID:  eventID,
			SweetID:  event.SweetID,
			Kind:     enums.StockAlertOutOfStock,
			Quantity: 0,
			Message:  fmt.Sprintf("%s is out of stock", event.Name),
		}
	case *payloads.LowStockDetectedEvent:
		return &models.StockAlert{
			EventID:  eventID,
			SweetID:  event.SweetID,
			Kind:     enums.StockAlertLowStock,
			Quantity: event.Quantity,
			Message:  fmt.Sprintf("%s is low on stock (%d left, threshold %d)", event.Name, event.Quantity, event.Threshold),
		}
	default:
		return nil
	}
}
