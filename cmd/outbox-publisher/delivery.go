package main

import (
	"context"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/sweetshop-backend/pkg/db/models"
	"github.com/angelmondragon/sweetshop-backend/pkg/enums"
	"github.com/angelmondragon/sweetshop-backend/pkg/metrics"
	"github.com/angelmondragon/sweetshop-backend/pkg/outbox/registry"
)

// deliver publishes one row and records what happened to it. Publish failures are absorbed
// into the row's bookkeeping; only bookkeeping failures abort the batch.
func (d *Dispatcher) deliver(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) error {
	resolved, err := d.registry.Resolve(row)
	if err != nil {
		return d.deadLetter(ctx, tx, row, "", enums.OutboxDLQReasonNonRetryable, err)
	}

	topic := resolved.Descriptor.Topic
	logCtx := d.rowContext(ctx, row, topic)
	if resolved.Envelope.EventID != "" {
		logCtx = d.logg.WithField(logCtx, "event_id", resolved.Envelope.EventID)
	}

	pubErr := d.publish(ctx, topic, row, resolved.Envelope.EventID)
	if pubErr == nil {
		if err := d.events.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		d.metrics.ObserveDelivery(string(row.EventType), metrics.DeliveryPublished)
		d.logg.Info(logCtx, "outbox event published")
		return nil
	}

	if registry.IsNonRetryable(pubErr) {
		return d.deadLetter(ctx, tx, row, topic, enums.OutboxDLQReasonNonRetryable, pubErr)
	}
	if row.AttemptCount+1 >= d.maxAttempts {
		return d.deadLetter(ctx, tx, row, topic, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("max publish attempts reached: %w", pubErr))
	}

	logCtx = d.logg.WithFields(logCtx, map[string]any{
		"attempt_count": row.AttemptCount + 1,
		"error":         pubErr.Error(),
	})
	d.logg.Warn(logCtx, "outbox publish failed, will retry")
	if err := d.events.MarkFailedTx(tx, row.ID, pubErr); err != nil {
		return fmt.Errorf("mark failed %s: %w", row.ID, err)
	}
	d.metrics.ObserveDelivery(string(row.EventType), metrics.DeliveryRetry)
	return nil
}

// deadLetter copies the row into outbox_dlq and stops further attempts on it.
func (d *Dispatcher) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, topic string, reason enums.OutboxDLQErrorReason, cause error) error {
	logCtx := d.logg.WithFields(d.rowContext(ctx, row, topic), map[string]any{
		"error_reason": reason,
		"error":        cause.Error(),
	})
	d.logg.Warn(logCtx, "outbox event dead-lettered")

	message := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &message,
		AttemptCount:  row.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := d.deadLetters.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dead letter %s: %w", row.ID, err)
	}
	if err := d.events.MarkTerminalTx(tx, row.ID, cause, d.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	d.metrics.ObserveDelivery(string(row.EventType), metrics.DeliveryDeadLettered)
	return nil
}

// publish sends the stored envelope as-is. Consumers filter on the event_type attribute.
func (d *Dispatcher) publish(ctx context.Context, topic string, row models.OutboxEvent, eventID string) error {
	pub := d.publisherFor(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %q", topic))
	}

	msg := &gcppubsub.Message{
		Data: row.Payload,
		Attributes: map[string]string{
			"event_id":       eventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"created_at":     row.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher for topic %q returned no result", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

func (d *Dispatcher) rowContext(ctx context.Context, row models.OutboxEvent, topic string) context.Context {
	fields := map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
	}
	if topic != "" {
		fields["topic"] = topic
	}
	if row.LastError != nil {
		fields["last_error"] = *row.LastError
	}
	return d.logg.WithFields(ctx, fields)
}

type gcpPublisher struct {
	topic *gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.topic.Publish(ctx, msg)
}
