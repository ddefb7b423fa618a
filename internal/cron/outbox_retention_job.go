package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/sweetshop-backend/pkg/logger"
)

const (
	defaultRetentionDays = 30
	retentionBatchSize   = 500
)

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxPruner
	// Retention is in days. Zero or less means defaultRetentionDays.
	Retention int
}

type outboxPruner interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
}

// outboxRetentionJob deletes published outbox rows past the retention window. Each batch commits
// on its own so a large backlog never holds one long transaction.
type outboxRetentionJob struct {
	logg  *logger.Logger
	db    txRunner
	repo  outboxPruner
	keep  time.Duration
	batch int
	now   func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	days := params.Retention
	if days <= 0 {
		days = defaultRetentionDays
	}
	return &outboxRetentionJob{
		logg:  params.Logger,
		db:    params.DB,
		repo:  params.Repository,
		keep:  time.Duration(days) * 24 * time.Hour,
		batch: retentionBatchSize,
		now:   time.Now,
	}, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.keep)
	var total int64
	for batches := 0; ; batches++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		var n int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			n, err = j.repo.DeletePublishedBefore(tx, cutoff, j.batch)
			return err
		})
		if err != nil {
			return fmt.Errorf("outbox retention after %d rows: %w", total, err)
		}
		total += n
		if n < int64(j.batch) {
			j.logg.Info(j.logg.WithFields(ctx, map[string]any{
				"cutoff":       cutoff,
				"rows_deleted": total,
				"batches":      batches + 1,
			}), "outbox retention cleanup complete")
			return nil
		}
	}
}
