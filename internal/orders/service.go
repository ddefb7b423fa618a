package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/sweetshop-backend/pkg/db/models"
	"github.com/angelmondragon/sweetshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sweetshop-backend/pkg/errors"
	"github.com/angelmondragon/sweetshop-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service exposes read access to placed orders.
type Service interface {
	ListMine(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
	Get(ctx context.Context, orderID uuid.UUID, viewer Viewer) (*OrderDTO, error)
}

// Viewer is the authenticated caller reading an order.
type Viewer struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

type service struct {
	repo Repository
}

// NewService builds the order read service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) ListMine(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.ListByUser(ctx, userID, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}

	rows, next := pagination.Page(rows, params.Limit, orderPosition)
	result := &OrderList{Orders: make([]OrderDTO, 0, len(rows))}
	if next != nil {
		result.NextCursor = pagination.EncodeCursor(*next)
	}
	for i := range rows {
		result.Orders = append(result.Orders, FromModel(&rows[i]))
	}
	return result, nil
}

// Get returns an order to its owner or to an admin. Other callers see NOT_FOUND.
func (s *service) Get(ctx context.Context, orderID uuid.UUID, viewer Viewer) (*OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order.UserID != viewer.UserID && viewer.Role != enums.UserRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	dto := FromModel(order)
	return &dto, nil
}

func orderPosition(o models.Order) pagination.Cursor {
	return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
}
