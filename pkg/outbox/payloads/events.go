package payloads

import (
	"time"

	"github.com/angelmondragon/sweetshop-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SweetPurchasedEvent is emitted when a single unit is bought directly from the catalog.
type SweetPurchasedEvent struct {
	SweetID       uuid.UUID       `json:"sweet_id"`
	Name          string          `json:"name"`
	UserID        uuid.UUID       `json:"user_id"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	QuantityAfter int             `json:"quantity_after"`
}

// SweetRestockedEvent is emitted when an admin adds units to a sweet.
type SweetRestockedEvent struct {
	SweetID       uuid.UUID `json:"sweet_id"`
	Name          string    `json:"name"`
	Amount        int       `json:"amount"`
	QuantityAfter int       `json:"quantity_after"`
}

// SweetOutOfStockEvent is emitted when a decrement leaves a sweet with zero units.
type SweetOutOfStockEvent struct {
	SweetID uuid.UUID               `json:"sweet_id"`
	Name    string                  `json:"name"`
	OrderID *uuid.UUID              `json:"order_id,omitempty"`
	SoldOut time.Time               `json:"sold_out_at"`
	Reason  enums.StockLedgerReason `json:"reason"`
}

// LowStockDetectedEvent is emitted by the low stock report for sweets at or below the threshold.
type LowStockDetectedEvent struct {
	SweetID   uuid.UUID `json:"sweet_id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	Threshold int       `json:"threshold"`
}

// OrderCreatedItem is a single line of an OrderCreatedEvent.
type OrderCreatedItem struct {
	SweetID   uuid.UUID       `json:"sweet_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderCreatedEvent is emitted once a checkout commits.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID          `json:"order_id"`
	UserID      uuid.UUID          `json:"user_id"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
	Items       []OrderCreatedItem `json:"items"`
}
