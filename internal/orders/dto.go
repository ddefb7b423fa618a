package orders

import (
	"time"

	"github.com/angelmondragon/sweetshop-backend/pkg/db/models"
	"github.com/angelmondragon/sweetshop-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderDTO is the API representation of a placed order.
type OrderDTO struct {
	ID          uuid.UUID         `json:"id"`
	UserID      uuid.UUID         `json:"user_id"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	Status      enums.OrderStatus `json:"status"`
	Items       []OrderItemDTO    `json:"items"`
	CreatedAt   time.Time         `json:"created_at"`
}

// OrderItemDTO carries the name and price captured at checkout.
type OrderItemDTO struct {
	SweetID   uuid.UUID       `json:"sweet_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// OrderList is one page of a user's order history.
type OrderList struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// FromModel maps an order row and its preloaded items.
func FromModel(o *models.Order) OrderDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemDTO{
			SweetID:   item.SweetID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal,
		})
	}
	return OrderDTO{
		ID:          o.ID,
		UserID:      o.UserID,
		TotalAmount: o.TotalAmount,
		Status:      o.Status,
		Items:       items,
		CreatedAt:   o.CreatedAt,
	}
}
