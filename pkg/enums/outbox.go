package enums

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateSweet OutboxAggregateType = "sweet"
	AggregateOrder OutboxAggregateType = "order"
)

var aggregateTypes = set[OutboxAggregateType]{
	kind:   "aggregate type",
	values: []OutboxAggregateType{AggregateSweet, AggregateOrder},
}

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse(value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventSweetPurchased   OutboxEventType = "sweet_purchased"
	EventSweetRestocked   OutboxEventType = "sweet_restocked"
	EventSweetOutOfStock  OutboxEventType = "sweet_out_of_stock"
	EventLowStockDetected OutboxEventType = "low_stock_detected"
	EventOrderCreated     OutboxEventType = "order_created"
)

var eventTypes = set[OutboxEventType]{
	kind: "event type",
	values: []OutboxEventType{
		EventSweetPurchased,
		EventSweetRestocked,
		EventSweetOutOfStock,
		EventLowStockDetected,
		EventOrderCreated,
	},
}

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }

// OutboxEventTypes lists every event the outbox can carry.
func OutboxEventTypes() []OutboxEventType { return eventTypes.all() }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return eventTypes.parse(value)
}

// OutboxDLQErrorReason explains why an outbox row was dead-lettered.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var dlqReasons = set[OutboxDLQErrorReason]{
	kind:   "dead letter reason",
	values: []OutboxDLQErrorReason{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable},
}

func (r OutboxDLQErrorReason) IsValid() bool { return dlqReasons.has(r) }
