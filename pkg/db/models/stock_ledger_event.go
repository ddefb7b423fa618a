package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sweetshop-backend/pkg/enums"
)

// StockLedgerEvent is an append-only record of one stock movement.
type StockLedgerEvent struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	SweetID       uuid.UUID               `gorm:"column:sweet_id;type:uuid;not null;index"`
	Delta         int                     `gorm:"column:delta;not null"`
	QuantityAfter int                     `gorm:"column:quantity_after;not null"`
	Reason        enums.StockLedgerReason `gorm:"column:reason;type:stock_ledger_reason_enum;not null"`
	OrderID       *uuid.UUID              `gorm:"column:order_id;type:uuid"`
	ActorUserID   *uuid.UUID              `gorm:"column:actor_user_id;type:uuid"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (e *StockLedgerEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
