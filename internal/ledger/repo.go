package ledger

import (
	"context"

	"github.com/angelmondragon/sweetshop-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository manages persistence for stock ledger events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, event *models.StockLedgerEvent) error
	ListBySweetID(ctx context.Context, sweetID uuid.UUID, limit int) ([]models.StockLedgerEvent, error)
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.StockLedgerEvent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, event *models.StockLedgerEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListBySweetID(ctx context.Context, sweetID uuid.UUID, limit int) ([]models.StockLedgerEvent, error) {
	var events []models.StockLedgerEvent
	query := r.db.WithContext(ctx).
		Where("sweet_id = ?", sweetID).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.StockLedgerEvent, error) {
	var events []models.StockLedgerEvent
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
