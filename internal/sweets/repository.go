package sweets

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/sweetshop-backend/pkg/db/models"
	"github.com/angelmondragon/sweetshop-backend/pkg/enums"
)

// ErrInsufficientStock is returned by DecrementIfAvailable when the row exists but holds fewer
// units than requested. The accompanying sweet reflects the quantity observed.
var ErrInsufficientStock = errors.New("insufficient stock")

// MaxQuantity is the largest stock a sweet can hold; the column is a 32-bit integer.
const MaxQuantity = math.MaxInt32

// ErrStockLimit is returned by Restock when the new quantity would pass MaxQuantity. The
// accompanying sweet is the unchanged row.
var ErrStockLimit = errors.New("stock limit exceeded")

// ListFilters narrows the catalog listing. Zero values disable a filter.
type ListFilters struct {
	Query    string
	Category *enums.SweetCategory
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Featured *bool
}

// StockStats summarizes the catalog for the admin dashboard.
type StockStats struct {
	TotalProducts  int64           `gorm:"column:total_products"`
	OutOfStock     int64           `gorm:"column:out_of_stock"`
	LowStock       int64           `gorm:"column:low_stock"`
	TotalUnits     int64           `gorm:"column:total_units"`
	InventoryValue decimal.Decimal `gorm:"column:inventory_value"`
}

const statsQuery = `
SELECT COUNT(*) AS total_products,
       COALESCE(SUM(CASE WHEN quantity = 0 THEN 1 ELSE 0 END), 0) AS out_of_stock,
       COALESCE(SUM(CASE WHEN quantity > 0 AND quantity <= ? THEN 1 ELSE 0 END), 0) AS low_stock,
       COALESCE(SUM(quantity), 0) AS total_units,
       COALESCE(SUM(price * quantity), 0) AS inventory_value
FROM sweets
`

// Repository is the authoritative store for sweets and their stock counters.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts a new sweet row.
func (r *Repository) Create(ctx context.Context, sweet *models.Sweet) error {
	return r.db.WithContext(ctx).Create(sweet).Error
}

// FindByID loads one sweet; gorm.ErrRecordNotFound when absent.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Sweet, error) {
	var sweet models.Sweet
	if err := r.db.WithContext(ctx).First(&sweet, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &sweet, nil
}

// FindByIDs loads every sweet whose id is in ids. Missing ids are simply absent from the result.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Sweet, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Sweet
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&rows).Error
	return rows, err
}

// List returns the catalog newest first.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]models.Sweet, error) {
	query := r.db.WithContext(ctx).Model(&models.Sweet{})
	if q := strings.TrimSpace(filters.Query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(CAST(category AS TEXT)) LIKE ?", like, like)
	}
	if filters.Category != nil {
		query = query.Where("category = ?", *filters.Category)
	}
	if filters.MinPrice != nil {
		query = query.Where("price >= ?", *filters.MinPrice)
	}
	if filters.MaxPrice != nil {
		query = query.Where("price <= ?", *filters.MaxPrice)
	}
	if filters.Featured != nil {
		query = query.Where("featured = ?", *filters.Featured)
	}

	var rows []models.Sweet
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error
	return rows, err
}

// ListLowStock returns sweets whose quantity is at or below threshold, emptiest first.
func (r *Repository) ListLowStock(ctx context.Context, threshold int) ([]models.Sweet, error) {
	var rows []models.Sweet
	err := r.db.WithContext(ctx).
		Where("quantity <= ?", threshold).
		Order("quantity ASC").
		Order("name ASC").
		Find(&rows).Error
	return rows, err
}

// UpdateDetails writes descriptive columns only; quantity is never part of fields.
func (r *Repository) UpdateDetails(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if _, ok := fields["quantity"]; ok {
		return fmt.Errorf("quantity cannot be updated directly")
	}
	if len(fields) == 0 {
		return nil
	}
	fields["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.Sweet{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a sweet; gorm.ErrRecordNotFound when absent.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Sweet{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountOrderReferences counts order items pointing at the sweet.
func (r *Repository) CountOrderReferences(ctx context.Context, id uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("sweet_id = ?", id).
		Count(&count).Error
	return count, err
}

// Restock adds amount units in a single statement and returns the updated row. The statement
// only matches while the result stays within MaxQuantity.
func (r *Repository) Restock(ctx context.Context, id uuid.UUID, amount int) (*models.Sweet, error) {
	if amount <= 0 || amount > MaxQuantity {
		return nil, fmt.Errorf("restock amount must be between 1 and %d, got %d", MaxQuantity, amount)
	}
	res := r.db.WithContext(ctx).
		Model(&models.Sweet{}).
		Where("id = ? AND quantity <= ?", id, MaxQuantity-amount).
		Updates(map[string]any{
			"quantity":   gorm.Expr("quantity + ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		current, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return current, ErrStockLimit
	}
	return r.FindByID(ctx, id)
}

// DecrementIfAvailable removes amount units only if at least amount are in stock. The
// predicate and the write are one UPDATE statement, so concurrent callers can never drive the
// quantity below zero. When no row matches, the sweet is re-read to tell a missing id
// (gorm.ErrRecordNotFound) from a short one (ErrInsufficientStock).
func (r *Repository) DecrementIfAvailable(ctx context.Context, id uuid.UUID, amount int) (*models.Sweet, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("decrement amount must be positive, got %d", amount)
	}
	res := r.db.WithContext(ctx).
		Model(&models.Sweet{}).
		Where("id = ? AND quantity >= ?", id, amount).
		Updates(map[string]any{
			"quantity":   gorm.Expr("quantity - ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		current, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return current, ErrInsufficientStock
	}
	return r.FindByID(ctx, id)
}

// Stats aggregates catalog counters; lowStockThreshold bounds the low stock bucket.
func (r *Repository) Stats(ctx context.Context, lowStockThreshold int) (*StockStats, error) {
	var stats StockStats
	if err := r.db.WithContext(ctx).Raw(statsQuery, lowStockThreshold).Scan(&stats).Error; err != nil {
		return nil, err
	}
	stats.InventoryValue = stats.InventoryValue.Round(2)
	return &stats, nil
}
