package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/sweetshop-backend/internal/sweets"
	"github.com/angelmondragon/sweetshop-backend/pkg/enums"
	"github.com/angelmondragon/sweetshop-backend/pkg/logger"
	"github.com/angelmondragon/sweetshop-backend/pkg/metrics"
	"github.com/angelmondragon/sweetshop-backend/pkg/outbox"
	"github.com/angelmondragon/sweetshop-backend/pkg/outbox/payloads"
)

const defaultLowStockThreshold = 10

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type pendingEmitter interface {
	EmitIfNotPending(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (bool, error)
}

// LowStockJobParams configure the low stock report.
type LowStockJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Outbox    pendingEmitter
	Metrics   *metrics.InventoryMetrics
	Threshold int
}

// NewLowStockJob builds the job that queues a low_stock_detected event for every sweet at or
// below the threshold.
func NewLowStockJob(params LowStockJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	threshold := params.Threshold
	if threshold <= 0 {
		threshold = defaultLowStockThreshold
	}
	return &lowStockJob{
		logg:      params.Logger,
		db:        params.DB,
		outbox:    params.Outbox,
		metrics:   params.Metrics,
		threshold: threshold,
		now:       time.Now,
	}, nil
}

type lowStockJob struct {
	logg      *logger.Logger
	db        txRunner
	outbox    pendingEmitter
	metrics   *metrics.InventoryMetrics
	threshold int
	now       func() time.Time
}

func (j *lowStockJob) Name() string { return "low-stock-report" }

func (j *lowStockJob) Run(ctx context.Context) error {
	var found, queued int
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := sweets.NewRepository(tx).ListLowStock(ctx, j.threshold)
		if err != nil {
			return fmt.Errorf("list low stock: %w", err)
		}
		found = len(rows)
		occurred := j.now().UTC()
		for _, sweet := range rows {
			emitted, err := j.outbox.EmitIfNotPending(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventLowStockDetected,
				AggregateType: enums.AggregateSweet,
				AggregateID:   sweet.ID,
				OccurredAt:    occurred,
				Data: payloads.LowStockDetectedEvent{
					SweetID:   sweet.ID,
					Name:      sweet.Name,
					Quantity:  sweet.Quantity,
					Threshold: j.threshold,
				},
			})
			if err != nil {
				return fmt.Errorf("emit low stock for %s: %w", sweet.ID, err)
			}
			if emitted {
				queued++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	j.metrics.SetLowStock(found)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"threshold":     j.threshold,
		"low_stock":     found,
		"events_queued": queued,
	})
	j.logg.Info(logCtx, "low stock report complete")
	return nil
}
