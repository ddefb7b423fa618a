package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/sweetshop-backend/pkg/enums"
)

// Sweet is a catalog entry and the authoritative stock counter for it.
type Sweet struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Name        string              `gorm:"column:name;type:text;not null"`
	Category    enums.SweetCategory `gorm:"column:category;type:sweet_category_enum;not null"`
	Price       decimal.Decimal     `gorm:"column:price;type:numeric(10,2);not null"`
	Quantity    int                 `gorm:"column:quantity;not null;check:chk_sweets_quantity_non_negative,quantity >= 0"`
	Description string              `gorm:"column:description;type:text;not null"`
	Image       string              `gorm:"column:image;type:text;not null"`
	Featured    bool                `gorm:"column:featured;not null"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Sweet) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
