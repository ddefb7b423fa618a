package sweets

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/sweetshop-backend/pkg/db/models"
	"github.com/angelmondragon/sweetshop-backend/pkg/enums"
)

// SweetDTO is the API representation of a catalog entry.
type SweetDTO struct {
	ID          uuid.UUID           `json:"id"`
	Name        string              `json:"name"`
	Category    enums.SweetCategory `json:"category"`
	Price       decimal.Decimal     `json:"price"`
	Quantity    int                 `json:"quantity"`
	InStock     bool                `json:"in_stock"`
	Description string              `json:"description"`
	Image       string              `json:"image"`
	Featured    bool                `json:"featured"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// PurchaseResult is returned by a successful single unit purchase.
type PurchaseResult struct {
	Message string   `json:"message"`
	Sweet   SweetDTO `json:"sweet"`
}

// StatsDTO exposes the admin inventory summary.
type StatsDTO struct {
	TotalProducts     int64           `json:"total_products"`
	OutOfStock        int64           `json:"out_of_stock"`
	LowStock          int64           `json:"low_stock"`
	TotalUnits        int64           `json:"total_units"`
	InventoryValue    decimal.Decimal `json:"inventory_value"`
	LowStockThreshold int             `json:"low_stock_threshold"`
}

// LedgerEntryDTO is one row of a sweet's stock history.
type LedgerEntryDTO struct {
	ID            uuid.UUID               `json:"id"`
	Delta         int                     `json:"delta"`
	QuantityAfter int                     `json:"quantity_after"`
	Reason        enums.StockLedgerReason `json:"reason"`
	OrderID       *uuid.UUID              `json:"order_id,omitempty"`
	ActorUserID   *uuid.UUID              `json:"actor_user_id,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
}

// FromModel maps a sweet row to its DTO.
func FromModel(m *models.Sweet) SweetDTO {
	if m == nil {
		return SweetDTO{}
	}
	return SweetDTO{
		ID:          m.ID,
		Name:        m.Name,
		Category:    m.Category,
		Price:       m.Price,
		Quantity:    m.Quantity,
		InStock:     m.Quantity > 0,
		Description: m.Description,
		Image:       m.Image,
		Featured:    m.Featured,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// FromModels maps a slice of rows, never returning nil so the JSON is always an array.
func FromModels(rows []models.Sweet) []SweetDTO {
	out := make([]SweetDTO, 0, len(rows))
	for i := range rows {
		out = append(out, FromModel(&rows[i]))
	}
	return out
}

func ledgerEntriesFromModels(rows []models.StockLedgerEvent) []LedgerEntryDTO {
	out := make([]LedgerEntryDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, LedgerEntryDTO{
			ID:            row.ID,
			Delta:         row.Delta,
			QuantityAfter: row.QuantityAfter,
			Reason:        row.Reason,
			OrderID:       row.OrderID,
			ActorUserID:   row.ActorUserID,
			CreatedAt:     row.CreatedAt,
		})
	}
	return out
}
