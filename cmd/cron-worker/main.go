package main

import (
	"context"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/sweetshop-backend/internal/cron"
	"github.com/angelmondragon/sweetshop-backend/pkg/bootstrap"
	"github.com/angelmondragon/sweetshop-backend/pkg/metrics"
	"github.com/angelmondragon/sweetshop-backend/pkg/outbox"
)

const retentionEvery = 24 * time.Hour

func main() {
	os.Exit(bootstrap.Main("cron-worker", run))
}

func run(ctx context.Context, p *bootstrap.Process) error {
	cfg := p.Config
	dbClient, err := p.Database(ctx)
	if err != nil {
		return err
	}
	redisClient, err := p.Redis(ctx)
	if err != nil {
		return err
	}

	events := outbox.NewRepository(dbClient.DB())
	lowStock, err := cron.NewLowStockJob(cron.LowStockJobParams{
		Logger:    p.Logger,
		DB:        dbClient,
		Outbox:    outbox.NewService(events, p.Logger),
		Metrics:   metrics.NewInventoryMetrics(prometheus.DefaultRegisterer),
		Threshold: cfg.Inventory.LowStockThreshold,
	})
	if err != nil {
		return err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     p.Logger,
		DB:         dbClient,
		Repository: events,
		Retention:  cfg.Outbox.RetentionDays,
	})
	if err != nil {
		return err
	}

	scheduler, err := cron.NewScheduler(cron.SchedulerParams{
		Logger:     p.Logger,
		Locker:     redisClient,
		LockPrefix: lockPrefix(cfg.App.Env),
		Metrics:    metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Schedules: []cron.Schedule{
			{Job: lowStock, Every: cfg.Inventory.LowStockInterval},
			{Job: retention, Every: retentionEvery},
		},
	})
	if err != nil {
		return err
	}
	return scheduler.Run(ctx)
}

// lockPrefix keeps environments sharing one redis from blocking each other's jobs.
func lockPrefix(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
