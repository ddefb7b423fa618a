package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/sweetshop-backend/pkg/logger"
	"github.com/angelmondragon/sweetshop-backend/pkg/metrics"
)

const defaultTick = time.Minute

// Job is a unit of scheduled maintenance.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Schedule runs Job once per Every.
type Schedule struct {
	Job   Job
	Every time.Duration
}

type locker interface {
	TryLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, name, owner string) (bool, error)
}

type SchedulerParams struct {
	Logger *logger.Logger
	Locker locker
	// LockPrefix separates environments sharing one Redis.
	LockPrefix string
	Metrics    *metrics.JobMetrics
	Schedules  []Schedule
	// Tick is how often due jobs are checked. Defaults to the shortest schedule, capped at a minute.
	Tick time.Duration
}

type entry struct {
	Schedule
	next time.Time
}

// Scheduler runs each job on its own cadence. A job runs only on the instance that wins its
// lock, so several cron workers can share one Redis.
type Scheduler struct {
	logg       *logger.Logger
	locker     locker
	lockPrefix string
	metrics    *metrics.JobMetrics
	entries    []*entry
	tick       time.Duration
	now        func() time.Time
}

func NewScheduler(params SchedulerParams) (*Scheduler, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Locker == nil {
		return nil, errors.New("locker required")
	}
	if len(params.Schedules) == 0 {
		return nil, errors.New("at least one schedule required")
	}

	tick := params.Tick
	entries := make([]*entry, 0, len(params.Schedules))
	for _, sc := range params.Schedules {
		if sc.Job == nil {
			return nil, errors.New("schedule without job")
		}
		if sc.Every <= 0 {
			return nil, fmt.Errorf("job %s: interval must be positive", sc.Job.Name())
		}
		if params.Tick <= 0 && (tick <= 0 || sc.Every < tick) {
			tick = sc.Every
		}
		entries = append(entries, &entry{Schedule: sc})
	}
	if params.Tick <= 0 && tick > defaultTick {
		tick = defaultTick
	}

	return &Scheduler{
		logg:       params.Logger,
		locker:     params.Locker,
		lockPrefix: params.LockPrefix,
		metrics:    params.Metrics,
		entries:    entries,
		tick:       tick,
		now:        time.Now,
	}, nil
}

// Run executes every job immediately, then whenever it falls due, until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.runDue(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

func (s *Scheduler) runDue(ctx context.Context) {
	now := s.now()
	for _, e := range s.entries {
		if now.Before(e.next) {
			continue
		}
		e.next = now.Add(e.Every)
		s.runOne(ctx, e)
	}
}

func (s *Scheduler) runOne(ctx context.Context, e *entry) {
	name := e.Job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})
	lockName := name
	if s.lockPrefix != "" {
		lockName = s.lockPrefix + ":" + name
	}

	owner := uuid.NewString()
	held, err := s.locker.TryLock(ctx, lockName, owner, e.Every)
	if err != nil {
		s.logg.Error(jobCtx, "job lock failed", err)
		return
	}
	if !held {
		s.logg.Info(jobCtx, "job held by another instance, skipping")
		s.metrics.ObserveSkip(name)
		return
	}
	defer func() {
		if _, err := s.locker.Unlock(context.WithoutCancel(ctx), lockName, owner); err != nil {
			s.logg.Error(jobCtx, "job unlock failed", err)
		}
	}()

	start := time.Now()
	err = e.Job.Run(jobCtx)
	took := time.Since(start)
	s.metrics.ObserveRun(name, took, err)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		return
	}
	s.logg.Info(jobCtx, "job completed")
}
