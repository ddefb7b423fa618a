package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/sweetshop-backend/pkg/logger"
)

const heartbeatInterval = 30 * time.Second

type pinger interface {
	Ping(context.Context) error
}

type consumer interface {
	Run(context.Context) error
}

// Dependency is checked once before the consumer starts.
type Dependency struct {
	Name  string
	Check pinger
}

// Service supervises the stock alert consumer.
type Service struct {
	logg      *logger.Logger
	consumer  consumer
	deps      []Dependency
	heartbeat time.Duration
}

func NewService(logg *logger.Logger, c consumer, deps []Dependency) (*Service, error) {
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if c == nil {
		return nil, errors.New("stock alert consumer is required")
	}
	for _, d := range deps {
		if d.Check == nil {
			return nil, fmt.Errorf("%s client is required", d.Name)
		}
	}
	return &Service{logg: logg, consumer: c, deps: deps, heartbeat: heartbeatInterval}, nil
}

func (s *Service) ready(ctx context.Context) error {
	for _, d := range s.deps {
		if err := d.Check.Ping(ctx); err != nil {
			return fmt.Errorf("%s not ready: %w", d.Name, err)
		}
	}
	return nil
}

// Run returns when ctx is canceled or the consumer exits, whichever comes first.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	s.logg.Info(ctx, "worker dependencies ready")

	done := make(chan error, 1)
	go func() { done <- s.consumer.Run(ctx) }()

	beat := time.NewTicker(s.heartbeat)
	defer beat.Stop()
	for {
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-beat.C:
			s.logg.Debug(ctx, "worker heartbeat")
		}
	}
}
