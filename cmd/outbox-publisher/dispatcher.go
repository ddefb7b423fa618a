package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sweetshop-backend/pkg/config"
	"github.com/angelmondragon/sweetshop-backend/pkg/db/models"
	"github.com/angelmondragon/sweetshop-backend/pkg/logger"
	"github.com/angelmondragon/sweetshop-backend/pkg/metrics"
	"github.com/angelmondragon/sweetshop-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultMaxAttempts    = 10
	defaultPublishTimeout = 15 * time.Second
	maxErrorBackoff       = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type topicSource interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type eventStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// DispatcherParams wires the outbox dispatcher. PublisherFor defaults to the pubsub client's
// topic publishers.
type DispatcherParams struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           txRunner
	PubSub       topicSource
	Events       eventStore
	DeadLetters  deadLetterStore
	Registry     eventResolver
	Metrics      *metrics.OutboxMetrics
	PublisherFor func(topic string) publisher
}

// Dispatcher drains outbox_events to Pub/Sub. Rows are locked for the duration of one batch
// transaction so concurrent dispatchers never publish the same row twice.
type Dispatcher struct {
	logg         *logger.Logger
	db           txRunner
	pubsub       topicSource
	events       eventStore
	deadLetters  deadLetterStore
	registry     eventResolver
	metrics      *metrics.OutboxMetrics
	publisherFor func(topic string) publisher

	batchSize      int
	maxAttempts    int
	pollInterval   time.Duration
	publishTimeout time.Duration
	jitter         *rand.Rand
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Events == nil:
		return nil, errors.New("outbox repository is required")
	case params.DeadLetters == nil:
		return nil, errors.New("dead letter repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	d := &Dispatcher{
		logg:           params.Logger,
		db:             params.DB,
		pubsub:         params.PubSub,
		events:         params.Events,
		deadLetters:    params.DeadLetters,
		registry:       params.Registry,
		metrics:        params.Metrics,
		publisherFor:   params.PublisherFor,
		batchSize:      orDefault(params.Config.Outbox.BatchSize, defaultBatchSize),
		maxAttempts:    orDefault(params.Config.Outbox.MaxAttempts, defaultMaxAttempts),
		pollInterval:   defaultPollInterval,
		publishTimeout: defaultPublishTimeout,
		jitter:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if ms := params.Config.Outbox.PollIntervalMS; ms > 0 {
		d.pollInterval = time.Duration(ms) * time.Millisecond
	}
	if d.publisherFor == nil {
		d.publisherFor = d.topicPublisher
	}
	return d, nil
}

func orDefault(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func (d *Dispatcher) topicPublisher(topic string) publisher {
	p := d.pubsub.Publisher(topic)
	if p == nil {
		return nil
	}
	return gcpPublisher{p}
}

// Run polls until the context is canceled. A full batch is followed immediately by the next
// one; an empty batch waits one poll interval; a failed batch backs off exponentially.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.checkDependencies(ctx); err != nil {
		return err
	}

	wait := d.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			d.logg.Info(ctx, "outbox dispatcher stopping")
			return err
		}

		handled, err := d.drainOnce(ctx)
		switch {
		case err != nil:
			d.logg.Error(ctx, "outbox batch failed", err)
			wait = growBackoff(wait, d.pollInterval)
		case handled > 0:
			wait = d.pollInterval
			continue
		default:
			wait = d.pollInterval
		}

		if err := sleepContext(ctx, wait+d.randomJitter()); err != nil {
			return err
		}
	}
}

func (d *Dispatcher) checkDependencies(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": d.db.Ping,
		"pubsub":   d.pubsub.Ping,
	} {
		if err := ping(ctx); err != nil {
			d.logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}
	return nil
}

// drainOnce handles up to one batch of rows inside a single transaction and reports how many
// rows it touched.
func (d *Dispatcher) drainOnce(ctx context.Context) (int, error) {
	handled := 0
	err := d.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := d.events.FetchUnpublishedForPublish(tx, d.batchSize, d.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox rows: %w", err)
		}
		for _, row := range rows {
			if err := d.deliver(ctx, tx, row); err != nil {
				return err
			}
			handled++
		}
		return nil
	})
	return handled, err
}

func (d *Dispatcher) randomJitter() time.Duration {
	return time.Duration(d.jitter.Int63n(int64(jitterWindow)))
}

func growBackoff(current, base time.Duration) time.Duration {
	if current < base {
		current = base
	}
	if next := current * 2; next < maxErrorBackoff {
		return next
	}
	return maxErrorBackoff
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
