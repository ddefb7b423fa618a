package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/sweetshop-backend/internal/checkout/helpers"
	"github.com/angelmondragon/sweetshop-backend/internal/checkout/reservation"
	"github.com/angelmondragon/sweetshop-backend/internal/ledger"
	"github.com/angelmondragon/sweetshop-backend/internal/orders"
	"github.com/angelmondragon/sweetshop-backend/internal/sweets"
	"github.com/angelmondragon/sweetshop-backend/pkg/db/models"
	"github.com/angelmondragon/sweetshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sweetshop-backend/pkg/errors"
	"github.com/angelmondragon/sweetshop-backend/pkg/logger"
	"github.com/angelmondragon/sweetshop-backend/pkg/metrics"
	"github.com/angelmondragon/sweetshop-backend/pkg/outbox"
	"github.com/angelmondragon/sweetshop-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockDecrementer interface {
	Decrement(ctx context.Context, tx *gorm.DB, requests []reservation.StockRequest) ([]reservation.StockResult, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type reservationEngine struct{}

func (reservationEngine) Decrement(ctx context.Context, tx *gorm.DB, requests []reservation.StockRequest) ([]reservation.StockResult, error) {
	return reservation.DecrementStock(ctx, tx, requests)
}

// Service executes checkout orchestration.
type Service interface {
	Execute(ctx context.Context, userID uuid.UUID, input CheckoutInput) (*orders.OrderDTO, error)
}

// CheckoutInput is the submitted cart. ClientTotal is informational only.
type CheckoutInput struct {
	Items       []helpers.LineRequest
	ClientTotal *decimal.Decimal
}

// ServiceParams groups the checkout collaborators.
type ServiceParams struct {
	TxRunner   txRunner
	SweetsRepo *sweets.Repository
	OrdersRepo orders.Repository
	Ledger     ledger.Service
	Outbox     outboxPublisher
	Stock      stockDecrementer
	Metrics    *metrics.InventoryMetrics
	Logger     *logger.Logger
}

type service struct {
	tx         txRunner
	sweetsRepo *sweets.Repository
	ordersRepo orders.Repository
	ledger     ledger.Service
	outbox     outboxPublisher
	stock      stockDecrementer
	metrics    *metrics.InventoryMetrics
	logg       *logger.Logger
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.TxRunner == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.SweetsRepo == nil {
		return nil, fmt.Errorf("sweets repository required")
	}
	if params.OrdersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	stock := params.Stock
	if stock == nil {
		stock = reservationEngine{}
	}
	return &service{
		tx:         params.TxRunner,
		sweetsRepo: params.SweetsRepo,
		ordersRepo: params.OrdersRepo,
		ledger:     params.Ledger,
		outbox:     params.Outbox,
		stock:      stock,
		metrics:    params.Metrics,
		logg:       params.Logger,
	}, nil
}

// Execute validates every line against current stock, prices the order from catalog prices and
// writes the order with all stock decrements in one transaction. Any failure leaves no order and
// no stock change behind.
func (s *service) Execute(ctx context.Context, userID uuid.UUID, input CheckoutInput) (*orders.OrderDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	lines, err := helpers.MergeLines(input.Items)
	if err != nil {
		s.metrics.ObserveCheckout(metrics.OutcomeError, 0)
		return nil, err
	}

	var (
		created *models.Order
		units   int
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.sweetsRepo.WithTx(tx).FindByIDs(ctx, helpers.IDs(lines))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load sweets")
		}
		catalog := helpers.IndexSweets(rows)

		if missing := helpers.MissingSweets(lines, catalog); len(missing) > 0 {
			return notFoundError(missing)
		}
		if short := helpers.Shortfalls(lines, catalog); len(short) > 0 {
			return insufficientError(short)
		}

		priced, total := helpers.PriceLines(lines, catalog)
		order := &models.Order{
			UserID:      userID,
			TotalAmount: total,
			Status:      enums.OrderStatusPending,
			CreatedAt:   time.Now().UTC(),
			Items:       make([]models.OrderItem, 0, len(priced)),
		}
		for i, line := range priced {
			order.Items = append(order.Items, models.OrderItem{
				LineNo:    i + 1,
				SweetID:   line.SweetID,
				Name:      line.Name,
				Quantity:  line.Quantity,
				UnitPrice: line.UnitPrice,
				LineTotal: line.LineTotal,
			})
			units += line.Quantity
		}
		if _, err := s.ordersRepo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}

		requests := make([]reservation.StockRequest, 0, len(priced))
		for _, line := range priced {
			requests = append(requests, reservation.StockRequest{SweetID: line.SweetID, Qty: line.Quantity})
		}
		results, err := s.stock.Decrement(ctx, tx, requests)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decrement stock")
		}
		if failed := reservation.Failed(results); len(failed) > 0 {
			return insufficientError(shortfallsFromResults(failed, catalog))
		}

		if err := s.recordMovements(ctx, tx, order, userID, results); err != nil {
			return err
		}
		if err := s.emitOrderCreated(ctx, tx, order); err != nil {
			return err
		}
		created = order
		return nil
	})
	if err != nil {
		s.metrics.ObserveCheckout(checkoutOutcome(err), 0)
		s.logRejection(ctx, userID, err)
		return nil, err
	}

	s.metrics.ObserveCheckout(metrics.OutcomeSuccess, units)
	s.logClientTotal(ctx, created, input.ClientTotal)

	dto := orders.FromModel(created)
	return &dto, nil
}

func (s *service) recordMovements(ctx context.Context, tx *gorm.DB, order *models.Order, userID uuid.UUID, results []reservation.StockResult) error {
	ledgerSvc := s.ledger.WithTx(tx)
	orderID := order.ID
	actorID := userID
	actor := &outbox.ActorRef{UserID: userID, Role: string(enums.UserRoleUser)}
	for _, result := range results {
		if _, err := ledgerSvc.Record(ctx, ledger.RecordStockMovementInput{
			SweetID:       result.SweetID,
			Delta:         -result.Requested,
			QuantityAfter: result.Sweet.Quantity,
			Reason:        enums.StockLedgerReasonCheckout,
			OrderID:       &orderID,
			ActorUserID:   &actorID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record checkout movement")
		}
		if result.Sweet.Quantity == 0 {
			if err := sweets.EmitOutOfStock(ctx, tx, s.outbox, result.Sweet, &orderID, enums.StockLedgerReasonCheckout, actor); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit out of stock event")
			}
		}
	}
	return nil
}

func (s *service) emitOrderCreated(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	items := make([]payloads.OrderCreatedItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, payloads.OrderCreatedItem{
			SweetID:   item.SweetID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: order.UserID, Role: string(enums.UserRoleUser)},
		Data: payloads.OrderCreatedEvent{
			OrderID:     order.ID,
			UserID:      order.UserID,
			TotalAmount: order.TotalAmount,
			Items:       items,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order created event")
	}
	return nil
}

func (s *service) logClientTotal(ctx context.Context, order *models.Order, clientTotal *decimal.Decimal) {
	if s.logg == nil || clientTotal == nil || clientTotal.Equal(order.TotalAmount) {
		return
	}
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"client_total": clientTotal.String(),
		"server_total": order.TotalAmount.String(),
	})
	s.logg.Warn(logCtx, "client total differs from server total; server total kept")
}

func (s *service) logRejection(ctx context.Context, userID uuid.UUID, err error) {
	if s.logg == nil || !pkgerrors.Is(err, pkgerrors.CodeInsufficient) {
		return
	}
	logCtx := s.logg.WithUserID(ctx, userID.String())
	s.logg.Warn(logCtx, "checkout rejected: insufficient stock")
}

func notFoundError(missing []uuid.UUID) error {
	ids := make([]string, 0, len(missing))
	for _, id := range missing {
		ids = append(ids, id.String())
	}
	return pkgerrors.New(pkgerrors.CodeNotFound, "sweets not found: "+strings.Join(ids, ", ")).
		WithDetails(map[string]any{"sweet_ids": ids})
}

func insufficientError(items []helpers.InsufficientItem) error {
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)
	}
	return pkgerrors.New(pkgerrors.CodeInsufficient, "insufficient stock for: "+strings.Join(names, ", ")).
		WithDetails(map[string]any{"items": items})
}

func shortfallsFromResults(failed []reservation.StockResult, catalog map[uuid.UUID]models.Sweet) []helpers.InsufficientItem {
	items := make([]helpers.InsufficientItem, 0, len(failed))
	for _, result := range failed {
		item := helpers.InsufficientItem{SweetID: result.SweetID, Requested: result.Requested}
		if sweet, ok := catalog[result.SweetID]; ok {
			item.Name = sweet.Name
		}
		if result.Sweet != nil {
			item.Available = result.Sweet.Quantity
		}
		items = append(items, item)
	}
	return items
}

func checkoutOutcome(err error) string {
	switch {
	case pkgerrors.Is(err, pkgerrors.CodeInsufficient):
		return metrics.OutcomeInsufficient
	case pkgerrors.Is(err, pkgerrors.CodeNotFound):
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeError
	}
}
