package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/sweetshop-backend/pkg/enums"
)

// Order is the immutable record written by checkout.
type Order struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID      uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index:idx_orders_user_created,priority:1"`
	TotalAmount decimal.Decimal   `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Status      enums.OrderStatus `gorm:"column:status;type:order_status_enum;not null"`
	Items       []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime;index:idx_orders_user_created,priority:2"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderItem snapshots the sweet name and unit price at checkout time. LineNo keeps cart order.
type OrderItem struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID       `gorm:"column:order_id;type:uuid;not null;uniqueIndex:idx_order_items_order_line,priority:1"`
	LineNo    int             `gorm:"column:line_no;not null;uniqueIndex:idx_order_items_order_line,priority:2"`
	SweetID   uuid.UUID       `gorm:"column:sweet_id;type:uuid;not null;index"`
	Name      string          `gorm:"column:name;type:text;not null"`
	Quantity  int             `gorm:"column:quantity;not null;check:chk_order_items_quantity_positive,quantity > 0"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(10,2);not null"`
	LineTotal decimal.Decimal `gorm:"column:line_total;type:numeric(12,2);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
