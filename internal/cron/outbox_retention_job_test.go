package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/sweetshop-backend/pkg/logger"
)

type fakePruner struct {
	remaining int64
	cutoffs   []time.Time
	failAt    int
}

func (f *fakePruner) DeletePublishedBefore(tx *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	if f.failAt > 0 && len(f.cutoffs) == f.failAt {
		return 0, errors.New("statement timeout")
	}
	n := min(f.remaining, int64(limit))
	f.remaining -= n
	return n, nil
}

type passthroughTxRunner struct{}

func (passthroughTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func newRetentionJob(t *testing.T, repo outboxPruner, days int) *outboxRetentionJob {
	t.Helper()
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.New(logger.Options{Output: io.Discard}),
		DB:         passthroughTxRunner{},
		Repository: repo,
		Retention:  days,
	})
	require.NoError(t, err)
	return job.(*outboxRetentionJob)
}

func TestOutboxRetentionCutoff(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	for days, want := range map[int]time.Time{
		0: now.AddDate(0, 0, -defaultRetentionDays),
		7: now.AddDate(0, 0, -7),
	} {
		repo := &fakePruner{}
		job := newRetentionJob(t, repo, days)
		job.now = func() time.Time { return now }

		require.NoError(t, job.Run(context.Background()))
		require.Len(t, repo.cutoffs, 1)
		assert.True(t, repo.cutoffs[0].Equal(want), "days=%d cutoff=%s", days, repo.cutoffs[0])
	}
}

func TestOutboxRetentionDrainsInBatches(t *testing.T) {
	repo := &fakePruner{remaining: 5}
	job := newRetentionJob(t, repo, 1)
	job.batch = 2

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, repo.cutoffs, 3)
	assert.Zero(t, repo.remaining)
	assert.Equal(t, repo.cutoffs[0], repo.cutoffs[2], "every batch uses the same cutoff")
}

func TestOutboxRetentionStopsOnError(t *testing.T) {
	repo := &fakePruner{remaining: 10, failAt: 2}
	job := newRetentionJob(t, repo, 1)
	job.batch = 3

	err := job.Run(context.Background())
	assert.ErrorContains(t, err, "after 3 rows")
}

func TestOutboxRetentionHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	repo := &fakePruner{remaining: 10}

	assert.ErrorIs(t, newRetentionJob(t, repo, 1).Run(ctx), context.Canceled)
	assert.Empty(t, repo.cutoffs)
}
