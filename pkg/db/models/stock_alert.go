package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sweetshop-backend/pkg/enums"
)

// StockAlert is an admin-facing notice derived from inventory events.
type StockAlert struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	EventID        uuid.UUID            `gorm:"column:event_id;type:uuid;not null;uniqueIndex:ux_stock_alerts_event_id"`
	SweetID        uuid.UUID            `gorm:"column:sweet_id;type:uuid;not null;index"`
	Kind           enums.StockAlertKind `gorm:"column:kind;type:stock_alert_kind_enum;not null"`
	Quantity       int                  `gorm:"column:quantity;not null"`
	Message        string               `gorm:"column:message;type:text;not null"`
	AcknowledgedAt *time.Time           `gorm:"column:acknowledged_at"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
}

func (a *StockAlert) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
