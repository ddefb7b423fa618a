package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sweetshop-backend/pkg/db/models"
	"github.com/angelmondragon/sweetshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sweetshop-backend/pkg/errors"
	"github.com/angelmondragon/sweetshop-backend/pkg/logger"
	"github.com/angelmondragon/sweetshop-backend/pkg/pagination"
)

// DeadLetter is the admin view of an event the publisher stopped retrying.
type DeadLetter struct {
	EventID       uuid.UUID                  `json:"event_id"`
	EventType     enums.OutboxEventType      `json:"event_type"`
	AggregateType enums.OutboxAggregateType  `json:"aggregate_type"`
	AggregateID   uuid.UUID                  `json:"aggregate_id"`
	Reason        enums.OutboxDLQErrorReason `json:"reason"`
	Message       string                     `json:"message,omitempty"`
	Attempts      int                        `json:"attempts"`
	Payload       json.RawMessage            `json:"payload"`
	FailedAt      time.Time                  `json:"failed_at"`
}

type DeadLetterPage struct {
	Items  []DeadLetter `json:"items"`
	Cursor string       `json:"cursor"`
}

// DeadLetterService lists parked events and hands them back to the publisher.
type DeadLetterService struct {
	db     *gorm.DB
	events *Repository
	dlq    *DLQRepository
	logg   *logger.Logger
}

func NewDeadLetterService(db *gorm.DB, logg *logger.Logger) *DeadLetterService {
	return &DeadLetterService{
		db:     db,
		events: NewRepository(db),
		dlq:    NewDLQRepository(db),
		logg:   logg,
	}
}

func (s *DeadLetterService) List(ctx context.Context, params pagination.Params) (*DeadLetterPage, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)

	rows, err := s.dlq.List(ctx, cursor, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list dead letters")
	}
	rows, next := pagination.Page(rows, limit, func(d models.OutboxDLQ) pagination.Cursor {
		return pagination.Cursor{CreatedAt: d.CreatedAt, ID: d.ID}
	})

	page := &DeadLetterPage{Items: make([]DeadLetter, 0, len(rows))}
	if next != nil {
		page.Cursor = pagination.EncodeCursor(*next)
	}
	for _, row := range rows {
		item := DeadLetter{
			EventID:       row.EventID,
			EventType:     row.EventType,
			AggregateType: row.AggregateType,
			AggregateID:   row.AggregateID,
			Reason:        row.ErrorReason,
			Attempts:      row.AttemptCount,
			Payload:       row.Payload,
			FailedAt:      row.FailedAt,
		}
		if row.ErrorMessage != nil {
			item.Message = *row.ErrorMessage
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

// Requeue drops the dead letter and resets the outbox row so the next publish cycle picks it up.
func (s *DeadLetterService) Requeue(ctx context.Context, eventID uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		removed, err := s.dlq.DeleteTx(tx, eventID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete dead letter")
		}
		if !removed {
			return pkgerrors.New(pkgerrors.CodeNotFound, "dead letter not found")
		}
		reset, err := s.events.RequeueTx(tx, eventID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "requeue outbox event")
		}
		if !reset {
			return pkgerrors.New(pkgerrors.CodeNotFound, "outbox event already published or removed")
		}
		return nil
	})
	if err != nil {
		return err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "event_id", eventID.String()), "dead letter requeued")
	}
	return nil
}
