package alerts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/sweetshop-backend/pkg/db/models"
	"github.com/angelmondragon/sweetshop-backend/pkg/pagination"
)

// Repository exposes persistence helpers for stock alerts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateIfAbsent(ctx context.Context, alert *models.StockAlert) (bool, error)
	List(ctx context.Context, params listAlertsParams) ([]models.StockAlert, *pagination.Cursor, error)
	Acknowledge(ctx context.Context, alertID uuid.UUID, now time.Time) (ackResult, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a stock alert repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listAlertsParams struct {
	Limit              int
	Cursor             *pagination.Cursor
	UnacknowledgedOnly bool
}

type ackResult struct {
	Updated bool
	Found   bool
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

// CreateIfAbsent inserts the alert unless one already exists for the same event id.
func (r *repositoryImpl) CreateIfAbsent(ctx context.Context, alert *models.StockAlert) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(alert)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repositoryImpl) List(ctx context.Context, params listAlertsParams) ([]models.StockAlert, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.StockAlert{})
	if params.UnacknowledgedOnly {
		query = query.Where("acknowledged_at IS NULL")
	}

	var rows []models.StockAlert
	if err := query.Scopes(pagination.Keyset(params.Cursor, params.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Page(rows, params.Limit, func(a models.StockAlert) pagination.Cursor {
		return pagination.Cursor{CreatedAt: a.CreatedAt, ID: a.ID}
	})
	return page, next, nil
}

func (r *repositoryImpl) Acknowledge(ctx context.Context, alertID uuid.UUID, now time.Time) (ackResult, error) {
	result := r.db.WithContext(ctx).
		Model(&models.StockAlert{}).
		Where("id = ? AND acknowledged_at IS NULL", alertID).
		UpdateColumn("acknowledged_at", now)
	if result.Error != nil {
		return ackResult{}, result.Error
	}
	if result.RowsAffected > 0 {
		return ackResult{Updated: true, Found: true}, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.StockAlert{}).
		Where("id = ?", alertID).
		Count(&count).Error; err != nil {
		return ackResult{}, err
	}
	return ackResult{Found: count > 0}, nil
}
