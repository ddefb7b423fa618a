package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/sweetshop-backend/pkg/config"
	"github.com/angelmondragon/sweetshop-backend/pkg/db/models"
	"github.com/angelmondragon/sweetshop-backend/pkg/enums"
	"github.com/angelmondragon/sweetshop-backend/pkg/outbox"
	"github.com/angelmondragon/sweetshop-backend/pkg/outbox/payloads"
)

type payloadSpec struct {
	aggregate  enums.OutboxAggregateType
	version    int
	newPayload func() any
}

// Every event the shop emits, with the aggregate it belongs to and the newest payload version
// this build can read.
var payloadSpecs = map[enums.OutboxEventType]payloadSpec{
	enums.EventSweetPurchased:   {enums.AggregateSweet, 1, func() any { return &payloads.SweetPurchasedEvent{} }},
	enums.EventSweetRestocked:   {enums.AggregateSweet, 1, func() any { return &payloads.SweetRestockedEvent{} }},
	enums.EventSweetOutOfStock:  {enums.AggregateSweet, 1, func() any { return &payloads.SweetOutOfStockEvent{} }},
	enums.EventLowStockDetected: {enums.AggregateSweet, 1, func() any { return &payloads.LowStockDetectedEvent{} }},
	enums.EventOrderCreated:     {enums.AggregateOrder, 1, func() any { return &payloads.OrderCreatedEvent{} }},
}

// EventDescriptor is where a resolved event is routed.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is an outbox row with its envelope and typed payload decoded.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that will never publish, however often it is retried.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err or anything it wraps is a NonRetryableError.
func IsNonRetryable(err error) bool {
	var target NonRetryableError
	return errors.As(err, &target)
}

// DecodePayload decodes data into the payload type registered for eventType. A zero version is
// read as 1; versions newer than the registered one are rejected.
func DecodePayload(eventType enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	spec, ok := payloadSpecs[eventType]
	if !ok {
		return nil, fmt.Errorf("unsupported event type %s", eventType)
	}
	if version <= 0 {
		version = 1
	}
	if version > spec.version {
		return nil, fmt.Errorf("%s payload v%d is newer than supported v%d", eventType, version, spec.version)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("payload missing for %s", eventType)
	}
	payload := spec.newPayload()
	if err := json.Unmarshal(trimmed, payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
	}
	return payload, nil
}

// EventRegistry routes sweet events to the inventory topic and order events to the orders topic.
type EventRegistry struct {
	topics map[enums.OutboxAggregateType]string
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	switch {
	case cfg.InventoryTopic == "":
		return nil, errors.New("inventory topic is required")
	case cfg.OrdersTopic == "":
		return nil, errors.New("orders topic is required")
	}
	return &EventRegistry{topics: map[enums.OutboxAggregateType]string{
		enums.AggregateSweet: cfg.InventoryTopic,
		enums.AggregateOrder: cfg.OrdersTopic,
	}}, nil
}

// Topics lists the distinct destination topics in name order.
func (r *EventRegistry) Topics() []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(r.topics))
	for _, topic := range r.topics {
		if !seen[topic] {
			seen[topic] = true
			out = append(out, topic)
		}
	}
	sort.Strings(out)
	return out
}

// Resolve checks a row against its registered shape and decodes it. Every failure is
// non-retryable: the row's bytes will not change between attempts.
func (r *EventRegistry) Resolve(row models.OutboxEvent) (*ResolvedEvent, error) {
	spec, ok := payloadSpecs[row.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", row.EventType))
	}
	if spec.aggregate != row.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", spec.aggregate, row.AggregateType))
	}
	if row.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}
	topic, ok := r.topics[spec.aggregate]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("no topic for aggregate %s", spec.aggregate))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	payload, err := DecodePayload(row.EventType, envelope.Version, envelope.Data)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}

	return &ResolvedEvent{
		Descriptor: EventDescriptor{EventType: row.EventType, AggregateType: spec.aggregate, Topic: topic},
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}
