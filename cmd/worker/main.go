package main

import (
	"context"
	"os"

	"github.com/angelmondragon/sweetshop-backend/internal/alerts"
	"github.com/angelmondragon/sweetshop-backend/pkg/bootstrap"
	"github.com/angelmondragon/sweetshop-backend/pkg/outbox/idempotency"
)

func main() {
	os.Exit(bootstrap.Main("worker", run))
}

func run(ctx context.Context, p *bootstrap.Process) error {
	dbClient, err := p.Database(ctx)
	if err != nil {
		return err
	}
	redisClient, err := p.Redis(ctx)
	if err != nil {
		return err
	}
	pubsubClient, err := p.PubSub(ctx)
	if err != nil {
		return err
	}

	guard, err := idempotency.NewGuard(redisClient, alerts.ConsumerName, p.Config.Outbox.ProcessedEventTTL)
	if err != nil {
		return err
	}
	consumer, err := alerts.NewConsumer(alerts.NewRepository(dbClient.DB()), pubsubClient.InventorySubscription(), guard, p.Logger)
	if err != nil {
		return err
	}

	svc, err := NewService(p.Logger, consumer, []Dependency{
		{Name: "database", Check: dbClient},
		{Name: "redis", Check: redisClient},
		{Name: "pubsub", Check: pubsubClient},
	})
	if err != nil {
		return err
	}
	return svc.Run(ctx)
}
