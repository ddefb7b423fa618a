package main

import (
	"context"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/sweetshop-backend/pkg/bootstrap"
	"github.com/angelmondragon/sweetshop-backend/pkg/metrics"
	"github.com/angelmondragon/sweetshop-backend/pkg/outbox"
	"github.com/angelmondragon/sweetshop-backend/pkg/outbox/registry"
)

func main() {
	os.Exit(bootstrap.Main("outbox-publisher", run))
}

func run(ctx context.Context, p *bootstrap.Process) error {
	events, err := registry.NewEventRegistry(p.Config.PubSub)
	if err != nil {
		return err
	}
	dbClient, err := p.Database(ctx)
	if err != nil {
		return err
	}
	pubsubClient, err := p.PubSub(ctx)
	if err != nil {
		return err
	}

	dispatcher, err := NewDispatcher(DispatcherParams{
		Config:      p.Config,
		Logger:      p.Logger,
		DB:          dbClient,
		PubSub:      pubsubClient,
		Events:      outbox.NewRepository(dbClient.DB()),
		DeadLetters: outbox.NewDLQRepository(dbClient.DB()),
		Registry:    events,
		Metrics:     metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return err
	}
	return dispatcher.Run(ctx)
}
