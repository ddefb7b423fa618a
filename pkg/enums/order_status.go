package enums

// OrderStatus maps to the order_status_enum enum in Postgres.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var orderStatuses = set[OrderStatus]{
	kind:   "order status",
	values: []OrderStatus{OrderStatusPending, OrderStatusCompleted, OrderStatusCancelled},
}

func (s OrderStatus) String() string { return string(s) }
func (s OrderStatus) IsValid() bool  { return orderStatuses.has(s) }

func ParseOrderStatus(value string) (OrderStatus, error) {
	return orderStatuses.parse(value)
}
