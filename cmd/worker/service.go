package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lazydrop/lazydrop-billing/internal/cron"
	"github.com/lazydrop/lazydrop-billing/internal/webhooks"
	"github.com/lazydrop/lazydrop-billing/pkg/config"
	"github.com/lazydrop/lazydrop-billing/pkg/logger"
	"github.com/lazydrop/lazydrop-billing/pkg/metrics"
)

const metricsShutdownTimeout = 5 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

type ServiceParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            pinger
	Redis         pinger
	Engine        *webhooks.Engine
	DowngradeLock cron.Lock
	Registry      *prometheus.Registry
}

type Service struct {
	cfg      *config.Config
	logg     *logger.Logger
	db       pinger
	redis    pinger
	cron     *cron.Service
	registry *prometheus.Registry
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Engine == nil {
		return nil, errors.New("webhook engine is required")
	}
	if params.Registry == nil {
		return nil, errors.New("metrics registry is required")
	}

	schedules, err := buildSchedules(params.Config, params.Logger, params.Engine, params.DowngradeLock)
	if err != nil {
		return nil, err
	}
	cronService, err := cron.NewService(cron.ServiceParams{
		Logger:   params.Logger,
		Registry: cron.NewRegistry(schedules...),
		Metrics:  metrics.NewCronJobMetrics(params.Registry),
	})
	if err != nil {
		return nil, fmt.Errorf("cron service: %w", err)
	}

	return &Service{
		cfg:      params.Config,
		logg:     params.Logger,
		db:       params.DB,
		redis:    params.Redis,
		cron:     cronService,
		registry: params.Registry,
	}, nil
}

// buildSchedules wires the three ledger sweeps and the downgrade job. The
// sweeps run unlocked on every replica; only the downgrade job is serialized.
func buildSchedules(cfg *config.Config, logg *logger.Logger, engine *webhooks.Engine, downgradeLock cron.Lock) ([]cron.Schedule, error) {
	sweeps, err := cron.NewWebhookJobs(cron.WebhookJobsParams{
		Processor: engine.Processor,
	})
	if err != nil {
		return nil, fmt.Errorf("webhook jobs: %w", err)
	}
	downgrade, err := cron.NewSubscriptionDowngradeJob(cron.SubscriptionDowngradeJobParams{
		Logger:        logg,
		Subscriptions: engine.Subscriptions,
		Limit:         cfg.Subscriptions.DowngradeBatch,
	})
	if err != nil {
		return nil, fmt.Errorf("downgrade job: %w", err)
	}

	return []cron.Schedule{
		{Job: sweeps.Received, Interval: cfg.Webhooks.ReceivedInterval},
		{Job: sweeps.Failed, Interval: cfg.Webhooks.RetryInterval},
		{Job: sweeps.Stuck, Interval: cfg.Webhooks.StuckInterval},
		{Job: downgrade, Interval: cfg.Subscriptions.DowngradeInterval, Lock: downgradeLock},
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	if s.redis != nil {
		if err := pingDependency(ctx, s.logg, "redis", s.redis.Ping); err != nil {
			return err
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// RunOnce runs every schedule a single time.
func (s *Service) RunOnce(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}
	s.cron.RunOnce(ctx)
	return nil
}

// Run serves /metrics and drives the schedules until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{
		Addr:              s.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logg.Error(ctx, "metrics listener stopped unexpectedly", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	return s.cron.Run(ctx)
}
