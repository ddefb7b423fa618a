package sweets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/sweetshop-backend/internal/ledger"
	"github.com/angelmondragon/sweetshop-backend/pkg/db"
	"github.com/angelmondragon/sweetshop-backend/pkg/db/models"
	"github.com/angelmondragon/sweetshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sweetshop-backend/pkg/errors"
	"github.com/angelmondragon/sweetshop-backend/pkg/logger"
	"github.com/angelmondragon/sweetshop-backend/pkg/metrics"
	"github.com/angelmondragon/sweetshop-backend/pkg/outbox"
	"github.com/angelmondragon/sweetshop-backend/pkg/outbox/payloads"
)

const (
	purchaseAmount           = 1
	defaultLowStockThreshold = 10
	maxNameLength            = 120
)

// Service exposes catalog management and the stock mutations that go through it.
type Service interface {
	List(ctx context.Context, filters ListFilters) ([]SweetDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*SweetDTO, error)
	Create(ctx context.Context, actor Actor, input CreateSweetInput) (*SweetDTO, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateSweetInput) (*SweetDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Restock(ctx context.Context, actor Actor, id uuid.UUID, amount int) (*SweetDTO, error)
	Purchase(ctx context.Context, actor Actor, id uuid.UUID) (*PurchaseResult, error)
	Stats(ctx context.Context) (*StatsDTO, error)
	History(ctx context.Context, id uuid.UUID, limit int) ([]LedgerEntryDTO, error)
}

// Actor identifies the caller for audit rows and outbox envelopes.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func (a Actor) userIDPtr() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}

func (a Actor) ref() *outbox.ActorRef {
	if a.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: a.UserID, Role: string(a.Role)}
}

// CreateSweetInput holds the validated payload for a new catalog entry.
type CreateSweetInput struct {
	Name        string
	Category    enums.SweetCategory
	Price       decimal.Decimal
	Quantity    int
	Description string
	Image       string
	Featured    bool
}

// UpdateSweetInput carries optional descriptive changes. Stock is not editable here.
type UpdateSweetInput struct {
	Name        *string
	Category    *enums.SweetCategory
	Price       *decimal.Decimal
	Description *string
	Image       *string
	Featured    *bool
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams groups the collaborators of the sweets service.
type ServiceParams struct {
	Repo              *Repository
	Ledger            ledger.Service
	Outbox            outboxEmitter
	TxRunner          txRunner
	Metrics           *metrics.InventoryMetrics
	Logger            *logger.Logger
	LowStockThreshold int
}

type service struct {
	repo              *Repository
	ledger            ledger.Service
	outbox            outboxEmitter
	tx                txRunner
	metrics           *metrics.InventoryMetrics
	logg              *logger.Logger
	lowStockThreshold int
}

// NewService constructs the sweets service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("sweets repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	threshold := params.LowStockThreshold
	if threshold <= 0 {
		threshold = defaultLowStockThreshold
	}
	return &service{
		repo:              params.Repo,
		ledger:            params.Ledger,
		outbox:            params.Outbox,
		tx:                params.TxRunner,
		metrics:           params.Metrics,
		logg:              params.Logger,
		lowStockThreshold: threshold,
	}, nil
}

func (s *service) List(ctx context.Context, filters ListFilters) ([]SweetDTO, error) {
	if filters.Category != nil && !filters.Category.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid category")
	}
	if filters.MinPrice != nil && filters.MaxPrice != nil && filters.MinPrice.GreaterThan(*filters.MaxPrice) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "min_price cannot exceed max_price")
	}
	rows, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list sweets")
	}
	return FromModels(rows), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*SweetDTO, error) {
	sweet, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err, "load sweet")
	}
	dto := FromModel(sweet)
	return &dto, nil
}

func (s *service) Create(ctx context.Context, actor Actor, input CreateSweetInput) (*SweetDTO, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := validateName(input.Name); err != nil {
		return nil, err
	}
	if !input.Category.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid category")
	}
	if err := validatePrice(input.Price); err != nil {
		return nil, err
	}
	if input.Quantity < 0 || input.Quantity > MaxQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between 0 and %d", MaxQuantity))
	}

	sweet := &models.Sweet{
		Name:        input.Name,
		Category:    input.Category,
		Price:       input.Price,
		Quantity:    input.Quantity,
		Description: strings.TrimSpace(input.Description),
		Image:       strings.TrimSpace(input.Image),
		Featured:    input.Featured,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, sweet); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create sweet")
		}
		if sweet.Quantity == 0 {
			return nil
		}
		_, err := s.ledger.WithTx(tx).Record(ctx, ledger.RecordStockMovementInput{
			SweetID:       sweet.ID,
			Delta:         sweet.Quantity,
			QuantityAfter: sweet.Quantity,
			Reason:        enums.StockLedgerReasonInitial,
			ActorUserID:   actor.userIDPtr(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record initial stock")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithSweetID(ctx, sweet.ID.String())
		s.logg.Info(logCtx, "sweet created")
	}
	dto := FromModel(sweet)
	return &dto, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateSweetInput) (*SweetDTO, error) {
	fields := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if err := validateName(name); err != nil {
			return nil, err
		}
		fields["name"] = name
	}
	if input.Category != nil {
		if !input.Category.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid category")
		}
		fields["category"] = *input.Category
	}
	if input.Price != nil {
		if err := validatePrice(*input.Price); err != nil {
			return nil, err
		}
		fields["price"] = *input.Price
	}
	if input.Description != nil {
		fields["description"] = strings.TrimSpace(*input.Description)
	}
	if input.Image != nil {
		fields["image"] = strings.TrimSpace(*input.Image)
	}
	if input.Featured != nil {
		fields["featured"] = *input.Featured
	}

	if len(fields) == 0 {
		return s.Get(ctx, id)
	}
	if err := s.repo.UpdateDetails(ctx, id, fields); err != nil {
		return nil, mapLookupError(err, "update sweet")
	}
	return s.Get(ctx, id)
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	refs, err := s.repo.CountOrderReferences(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count order references")
	}
	if refs > 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "sweet is referenced by existing orders")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if db.IsForeignKeyViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "sweet is referenced by existing orders")
		}
		return mapLookupError(err, "delete sweet")
	}
	return nil
}

func (s *service) Restock(ctx context.Context, actor Actor, id uuid.UUID, amount int) (*SweetDTO, error) {
	if amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restock quantity must be greater than zero").
			WithDetails(map[string]any{"quantity": amount})
	}
	if amount > MaxQuantity {
		return nil, stockLimitError(nil, amount)
	}

	var updated *models.Sweet
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		sweet, err := s.repo.WithTx(tx).Restock(ctx, id, amount)
		if errors.Is(err, ErrStockLimit) {
			return stockLimitError(sweet, amount)
		}
		if err != nil {
			return mapLookupError(err, "restock sweet")
		}
		if _, err := s.ledger.WithTx(tx).Record(ctx, ledger.RecordStockMovementInput{
			SweetID:       sweet.ID,
			Delta:         amount,
			QuantityAfter: sweet.Quantity,
			Reason:        enums.StockLedgerReasonRestock,
			ActorUserID:   actor.userIDPtr(),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record restock")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSweetRestocked,
			AggregateType: enums.AggregateSweet,
			AggregateID:   sweet.ID,
			Actor:         actor.ref(),
			Data: payloads.SweetRestockedEvent{
				SweetID:       sweet.ID,
				Name:          sweet.Name,
				Amount:        amount,
				QuantityAfter: sweet.Quantity,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit restock event")
		}
		updated = sweet
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveRestock(amount)
	dto := FromModel(updated)
	return &dto, nil
}

// Purchase removes exactly one unit. Repeating the call removes another unit.
func (s *service) Purchase(ctx context.Context, actor Actor, id uuid.UUID) (*PurchaseResult, error) {
	var updated *models.Sweet
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		sweet, err := s.repo.WithTx(tx).DecrementIfAvailable(ctx, id, purchaseAmount)
		if err != nil {
			if errors.Is(err, ErrInsufficientStock) {
				return outOfStockError(sweet)
			}
			return mapLookupError(err, "purchase sweet")
		}
		if _, err := s.ledger.WithTx(tx).Record(ctx, ledger.RecordStockMovementInput{
			SweetID:       sweet.ID,
			Delta:         -purchaseAmount,
			QuantityAfter: sweet.Quantity,
			Reason:        enums.StockLedgerReasonPurchase,
			ActorUserID:   actor.userIDPtr(),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record purchase")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSweetPurchased,
			AggregateType: enums.AggregateSweet,
			AggregateID:   sweet.ID,
			Actor:         actor.ref(),
			Data: payloads.SweetPurchasedEvent{
				SweetID:       sweet.ID,
				Name:          sweet.Name,
				UserID:        actor.UserID,
				UnitPrice:     sweet.Price,
				QuantityAfter: sweet.Quantity,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit purchase event")
		}
		if sweet.Quantity == 0 {
			if err := EmitOutOfStock(ctx, tx, s.outbox, sweet, nil, enums.StockLedgerReasonPurchase, actor.ref()); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit out of stock event")
			}
		}
		updated = sweet
		return nil
	})
	if err != nil {
		s.metrics.ObservePurchase(outcomeFor(err))
		if s.logg != nil && pkgerrors.Is(err, pkgerrors.CodeOutOfStock) {
			logCtx := s.logg.WithSweetID(ctx, id.String())
			s.logg.Warn(logCtx, "purchase rejected: out of stock")
		}
		return nil, err
	}

	s.metrics.ObservePurchase(metrics.OutcomeSuccess)
	return &PurchaseResult{
		Message: "purchase successful",
		Sweet:   FromModel(updated),
	}, nil
}

func (s *service) Stats(ctx context.Context) (*StatsDTO, error) {
	stats, err := s.repo.Stats(ctx, s.lowStockThreshold)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load inventory stats")
	}
	return &StatsDTO{
		TotalProducts:     stats.TotalProducts,
		OutOfStock:        stats.OutOfStock,
		LowStock:          stats.LowStock,
		TotalUnits:        stats.TotalUnits,
		InventoryValue:    stats.InventoryValue,
		LowStockThreshold: s.lowStockThreshold,
	}, nil
}

func (s *service) History(ctx context.Context, id uuid.UUID, limit int) ([]LedgerEntryDTO, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return nil, mapLookupError(err, "load sweet")
	}
	rows, err := s.ledger.History(ctx, id, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load stock history")
	}
	return ledgerEntriesFromModels(rows), nil
}

// EmitOutOfStock queues a sweet_out_of_stock event for a sweet that just reached zero.
func EmitOutOfStock(ctx context.Context, tx *gorm.DB, emitter outboxEmitter, sweet *models.Sweet, orderID *uuid.UUID, reason enums.StockLedgerReason, actor *outbox.ActorRef) error {
	return emitter.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSweetOutOfStock,
		AggregateType: enums.AggregateSweet,
		AggregateID:   sweet.ID,
		Actor:         actor,
		Data: payloads.SweetOutOfStockEvent{
			SweetID: sweet.ID,
			Name:    sweet.Name,
			OrderID: orderID,
			SoldOut: sweet.UpdatedAt.UTC(),
			Reason:  reason,
		},
	})
}

func outOfStockError(sweet *models.Sweet) error {
	details := map[string]any{"available": 0}
	if sweet != nil {
		details["sweet_id"] = sweet.ID.String()
		details["name"] = sweet.Name
		details["available"] = sweet.Quantity
	}
	return pkgerrors.New(pkgerrors.CodeOutOfStock, "sweet is out of stock").WithDetails(details)
}

func stockLimitError(sweet *models.Sweet, amount int) error {
	details := map[string]any{"quantity": amount, "max": MaxQuantity}
	if sweet != nil {
		details["sweet_id"] = sweet.ID.String()
		details["available"] = sweet.Quantity
	}
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("restock would take stock past %d units", MaxQuantity)).
		WithDetails(details)
}

func mapLookupError(err error, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "sweet not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, action)
}

func outcomeFor(err error) string {
	switch {
	case pkgerrors.Is(err, pkgerrors.CodeOutOfStock):
		return metrics.OutcomeOutOfStock
	case pkgerrors.Is(err, pkgerrors.CodeNotFound):
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeError
	}
}

func validateName(name string) error {
	if name == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if len(name) > maxNameLength {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("name cannot exceed %d characters", maxNameLength))
	}
	return nil
}

func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price cannot be negative")
	}
	if !price.Equal(price.Round(2)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "price supports at most two decimal places")
	}
	return nil
}
