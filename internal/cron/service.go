package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-inventory/pkg/logger"
	"github.com/angelmondragon/storefront-inventory/pkg/metrics"
)

const defaultTick = time.Minute

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	// Tick is how often the worker checks for due jobs. Jobs without their
	// own Interval run on every tick.
	Tick time.Duration
	Now  func() time.Time
}

// Service executes registered cron jobs when they fall due.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	tick     time.Duration
	now      func() time.Time

	mu      sync.Mutex
	lastRun map[string]time.Time
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	tick := params.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		tick:     tick,
		now:      now,
		lastRun:  map[string]time.Time{},
	}, nil
}

// Run starts the cron loop until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.runCycle(ctx); err != nil {
		s.logg.Error(ctx, "scheduled run failed", err)
	}
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				s.logg.Error(ctx, "scheduled run failed", err)
			}
		}
	}
}

// runCycle runs every due job. One failing job never stops the rest; their
// errors are combined in the result.
func (s *Service) runCycle(ctx context.Context) error {
	var errs error
	for _, job := range s.registry.Jobs() {
		if !s.due(job) {
			continue
		}
		errs = multierr.Append(errs, s.runLocked(ctx, job))
	}
	return errs
}

func (s *Service) due(job Job) bool {
	scheduled, ok := job.(Scheduled)
	if !ok || scheduled.Interval() <= 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ran := s.lastRun[job.Name()]
	return !ran || !s.now().Before(last.Add(scheduled.Interval()))
}

func (s *Service) runLocked(ctx context.Context, job Job) error {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	locked, err := s.lock.Acquire(jobCtx, job.Name())
	if err != nil {
		return fmt.Errorf("%s: lock acquire: %w", job.Name(), err)
	}
	if !locked {
		s.metrics.IncSkipped(job.Name())
		s.logg.Debug(jobCtx, "job locked by another worker; skipping")
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(jobCtx, job.Name()); relErr != nil {
			s.logg.Error(jobCtx, "failed to release cron lock", relErr)
		}
	}()

	s.mu.Lock()
	s.lastRun[job.Name()] = s.now()
	s.mu.Unlock()

	if err := s.runJob(jobCtx, job); err != nil {
		return fmt.Errorf("%s: %w", job.Name(), err)
	}
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	ctx = s.logg.WithField(ctx, "event", "cron.job")
	s.logg.Debug(ctx, "job start")
	start := time.Now()
	err := job.Run(ctx)
	duration := time.Since(start)
	s.metrics.ObserveDuration(job.Name(), duration)
	ctx = s.logg.WithField(ctx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "job failed", err)
		s.metrics.IncFailure(job.Name())
		return err
	}
	s.logg.Info(ctx, "job completed")
	s.metrics.IncSuccess(job.Name())
	return nil
}
