// Package reservation removes checkout quantities from stock inside the caller's transaction.
package reservation

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/sweetshop-backend/internal/sweets"
	"github.com/angelmondragon/sweetshop-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/sweetshop-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ReasonInsufficientStock = "insufficient_stock"
	ReasonNotFound          = "not_found"
)

// StockRequest asks for qty units of one sweet.
type StockRequest struct {
	SweetID uuid.UUID
	Qty     int
}

// StockResult reports the outcome of one request. Sweet holds the row after the update, or
// the row as observed when the decrement was refused.
type StockResult struct {
	SweetID     uuid.UUID
	Requested   int
	Decremented bool
	Reason      string
	Sweet       *models.Sweet
}

// DecrementStock runs one conditional decrement per request using tx. A refused request does
// not stop the remaining ones; the caller decides whether to roll back.
func DecrementStock(ctx context.Context, tx *gorm.DB, requests []StockRequest) ([]StockResult, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	repo := sweets.NewRepository(tx)
	results := make([]StockResult, 0, len(requests))
	for _, req := range requests {
		if req.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
		result := StockResult{SweetID: req.SweetID, Requested: req.Qty}
		sweet, err := repo.DecrementIfAvailable(ctx, req.SweetID, req.Qty)
		switch {
		case err == nil:
			result.Decremented = true
		case errors.Is(err, sweets.ErrInsufficientStock):
			result.Reason = ReasonInsufficientStock
		case errors.Is(err, gorm.ErrRecordNotFound):
			result.Reason = ReasonNotFound
		default:
			return nil, err
		}
		result.Sweet = sweet
		results = append(results, result)
	}
	return results, nil
}

// Failed returns the results that were refused.
func Failed(results []StockResult) []StockResult {
	var failed []StockResult
	for _, r := range results {
		if !r.Decremented {
			failed = append(failed, r)
		}
	}
	return failed
}
