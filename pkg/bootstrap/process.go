// Package bootstrap holds the startup and shutdown sequence shared by every binary under cmd/.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/sweetshop-backend/pkg/config"
	"github.com/angelmondragon/sweetshop-backend/pkg/db"
	"github.com/angelmondragon/sweetshop-backend/pkg/logger"
	"github.com/angelmondragon/sweetshop-backend/pkg/migrate"
	"github.com/angelmondragon/sweetshop-backend/pkg/pubsub"
	"github.com/angelmondragon/sweetshop-backend/pkg/redis"
)

// Process is a loaded binary: its config, its logger and the clients it opened.
type Process struct {
	Name   string
	Config *config.Config
	Logger *logger.Logger

	closers []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

// RunFunc is the body of a binary. It should block until ctx is canceled.
type RunFunc func(ctx context.Context, p *Process) error

// Main loads config, runs fn until SIGINT or SIGTERM, closes every opened client in reverse
// order and returns the process exit code.
func Main(name string, fn RunFunc) int {
	logg := logger.New(logger.Options{ServiceName: name})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	p, err := Load(name)
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = p.Logger.WithFields(ctx, map[string]any{
		"env":          p.Config.App.Env,
		"service_kind": p.Config.Service.Kind,
	})
	p.Logger.Info(ctx, "starting "+name)

	err = fn(ctx, p)
	p.Close(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		p.Logger.Error(ctx, name+" stopped unexpectedly", err)
		return 1
	}
	p.Logger.Info(ctx, name+" shut down gracefully")
	return 0
}

// Load reads the environment and builds the logger at the configured level.
func Load(name string) (*Process, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.Service.Kind = name
	return &Process{
		Name:   name,
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: name,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			WarnStack:   cfg.App.LogWarnStack,
		}),
	}, nil
}

// OnClose registers c to be closed when the process stops. Later registrations close first.
func (p *Process) OnClose(name string, c io.Closer) {
	p.closers = append(p.closers, namedCloser{name: name, c: c})
}

// Close releases everything registered with OnClose. It is safe to call more than once.
func (p *Process) Close(ctx context.Context) {
	for i := len(p.closers) - 1; i >= 0; i-- {
		nc := p.closers[i]
		if err := nc.c.Close(); err != nil {
			p.Logger.Error(ctx, "error closing "+nc.name, err)
		}
	}
	p.closers = nil
}

// Database connects to the configured database and applies dev migrations when enabled.
func (p *Process) Database(ctx context.Context) (*db.Client, error) {
	client, err := db.New(ctx, p.Config.DB, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap database: %w", err)
	}
	p.OnClose("database", client)
	if err := migrate.MaybeRunDev(ctx, p.Config, p.Logger, client); err != nil {
		return nil, fmt.Errorf("dev migrations: %w", err)
	}
	return client, nil
}

func (p *Process) Redis(ctx context.Context) (*redis.Client, error) {
	client, err := redis.New(ctx, p.Config.Redis, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}
	p.OnClose("redis", client)
	return client, nil
}

func (p *Process) PubSub(ctx context.Context) (*pubsub.Client, error) {
	client, err := pubsub.NewClient(ctx, p.Config.GCP, p.Config.PubSub, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap pubsub: %w", err)
	}
	p.OnClose("pubsub client", client)
	return client, nil
}
