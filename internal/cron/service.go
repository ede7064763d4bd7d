package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/lazydrop/lazydrop-billing/pkg/logger"
	"github.com/lazydrop/lazydrop-billing/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

const defaultInterval = time.Minute

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Metrics  *metrics.CronJobMetrics
}

// Service executes every registered schedule on its own cadence.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	metrics  *metrics.CronJobMetrics
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		metrics:  params.Metrics,
	}, nil
}

// Run starts one loop per schedule and blocks until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, schedule := range s.registry.Schedules() {
		schedule := schedule
		g.Go(func() error {
			return s.loop(gctx, schedule)
		})
	}
	err := g.Wait()
	s.logg.Info(ctx, "cron service stopped")
	return err
}

// RunOnce runs every schedule a single time, in registration order.
func (s *Service) RunOnce(ctx context.Context) {
	for _, schedule := range s.registry.Schedules() {
		s.runSchedule(ctx, schedule)
	}
}

func (s *Service) loop(ctx context.Context, schedule Schedule) error {
	interval := schedule.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	loopCtx := s.logg.WithFields(ctx, map[string]any{
		"job":      schedule.Job.Name(),
		"interval": interval.String(),
	})
	s.logg.Info(loopCtx, "schedule started")

	s.runSchedule(ctx, schedule)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(loopCtx, "schedule stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runSchedule(ctx, schedule)
		}
	}
}

func (s *Service) runSchedule(ctx context.Context, schedule Schedule) {
	if schedule.Lock == nil {
		s.runJob(ctx, schedule.Job)
		return
	}
	jobCtx := s.logg.WithField(ctx, "job", schedule.Job.Name())
	locked, err := schedule.Lock.Acquire(ctx)
	if err != nil {
		s.logg.Error(jobCtx, "lock acquire failed", err)
		s.metrics.IncRun(schedule.Job.Name(), metrics.RunLockError)
		return
	}
	if !locked {
		s.logg.Info(jobCtx, "another worker holds the lock; skipping this run")
		s.metrics.IncRun(schedule.Job.Name(), metrics.RunSkipped)
		return
	}
	defer func() {
		if relErr := schedule.Lock.Release(ctx); relErr != nil {
			s.logg.Error(jobCtx, "failed to release job lock", relErr)
		}
	}()
	s.runJob(ctx, schedule.Job)
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	jobCtx = s.logg.WithField(jobCtx, "event", "cron.job")
	s.logg.Debug(jobCtx, "job start")
	start := time.Now()
	err := job.Run(jobCtx)
	duration := time.Since(start)
	s.metrics.ObserveRun(job.Name(), duration, err)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		return
	}
	s.logg.Debug(jobCtx, "job completed")
}
