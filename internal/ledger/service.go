package ledger

import (
	"context"
	"fmt"

	"github.com/angelmondragon/sweetshop-backend/pkg/db/models"
	"github.com/angelmondragon/sweetshop-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultHistoryLimit = 50

// Service records and reads stock movements.
type Service interface {
	WithTx(tx *gorm.DB) Service
	Record(ctx context.Context, input RecordStockMovementInput) (*models.StockLedgerEvent, error)
	History(ctx context.Context, sweetID uuid.UUID, limit int) ([]models.StockLedgerEvent, error)
}

type service struct {
	repo Repository
}

// RecordStockMovementInput captures one signed change to a sweet's quantity.
type RecordStockMovementInput struct {
	SweetID       uuid.UUID
	Delta         int
	QuantityAfter int
	Reason        enums.StockLedgerReason
	OrderID       *uuid.UUID
	ActorUserID   *uuid.UUID
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

// WithTx returns a service whose writes join tx.
func (s *service) WithTx(tx *gorm.DB) Service {
	return &service{repo: s.repo.WithTx(tx)}
}

func (s *service) Record(ctx context.Context, input RecordStockMovementInput) (*models.StockLedgerEvent, error) {
	if input.SweetID == uuid.Nil {
		return nil, fmt.Errorf("sweet id is required")
	}
	if !input.Reason.IsValid() {
		return nil, fmt.Errorf("invalid ledger reason %q", input.Reason)
	}
	if input.Delta == 0 {
		return nil, fmt.Errorf("delta must be non-zero")
	}
	if input.Reason.IsDecrement() != (input.Delta < 0) {
		return nil, fmt.Errorf("delta %d does not match reason %q", input.Delta, input.Reason)
	}
	if input.QuantityAfter < 0 {
		return nil, fmt.Errorf("quantity after must be non-negative")
	}
	if input.Reason == enums.StockLedgerReasonCheckout && (input.OrderID == nil || *input.OrderID == uuid.Nil) {
		return nil, fmt.Errorf("checkout movements require an order id")
	}

	event := &models.StockLedgerEvent{
		SweetID:       input.SweetID,
		Delta:         input.Delta,
		QuantityAfter: input.QuantityAfter,
		Reason:        input.Reason,
		OrderID:       input.OrderID,
		ActorUserID:   input.ActorUserID,
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *service) History(ctx context.Context, sweetID uuid.UUID, limit int) ([]models.StockLedgerEvent, error) {
	if sweetID == uuid.Nil {
		return nil, fmt.Errorf("sweet id is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.repo.ListBySweetID(ctx, sweetID, limit)
}
