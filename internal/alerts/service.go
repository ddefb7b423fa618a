package alerts

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/sweetshop-backend/pkg/db/models"
	"github.com/angelmondragon/sweetshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sweetshop-backend/pkg/errors"
	"github.com/angelmondragon/sweetshop-backend/pkg/pagination"
)

// Service defines admin stock alert operations.
type Service interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Acknowledge(ctx context.Context, alertID uuid.UUID) error
}

type service struct {
	repo Repository
	now  func() time.Time
}

// ListParams configures pagination for alerts.
type ListParams struct {
	Limit              int
	Cursor             string
	UnacknowledgedOnly bool
}

// AlertDTO is the API view of a stock alert.
type AlertDTO struct {
	ID             uuid.UUID            `json:"id"`
	SweetID        uuid.UUID            `json:"sweet_id"`
	Kind           enums.StockAlertKind `json:"kind"`
	Quantity       int                  `json:"quantity"`
	Message        string               `json:"message"`
	AcknowledgedAt *time.Time           `json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

// ListResult wraps returned alerts and the cursor for the next page.
type ListResult struct {
	Items  []AlertDTO `json:"items"`
	Cursor string     `json:"cursor"`
}

// NewService wires alert dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "alerts repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listAlertsParams{
		Limit:              params.Limit,
		UnacknowledgedOnly: params.UnacknowledgedOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list stock alerts")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	items := make([]AlertDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, fromModel(row))
	}
	return &ListResult{Items: items, Cursor: cursor}, nil
}

func (s *service) Acknowledge(ctx context.Context, alertID uuid.UUID) error {
	if alertID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "alert id required")
	}
	result, err := s.repo.Acknowledge(ctx, alertID, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "acknowledge stock alert")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "alert not found")
	}
	return nil
}

func fromModel(m models.StockAlert) AlertDTO {
	return AlertDTO{
		ID:             m.ID,
		SweetID:        m.SweetID,
		Kind:           m.Kind,
		Quantity:       m.Quantity,
		Message:        m.Message,
		AcknowledgedAt: m.AcknowledgedAt,
		CreatedAt:      m.CreatedAt,
	}
}
