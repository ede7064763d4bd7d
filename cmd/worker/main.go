package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/lazydrop/lazydrop-billing/internal/cron"
	"github.com/lazydrop/lazydrop-billing/internal/subscriptions"
	"github.com/lazydrop/lazydrop-billing/internal/webhooks"
	"github.com/lazydrop/lazydrop-billing/pkg/config"
	"github.com/lazydrop/lazydrop-billing/pkg/db"
	"github.com/lazydrop/lazydrop-billing/pkg/instance"
	"github.com/lazydrop/lazydrop-billing/pkg/logger"
	"github.com/lazydrop/lazydrop-billing/pkg/metrics"
	"github.com/lazydrop/lazydrop-billing/pkg/migrate"
	"github.com/lazydrop/lazydrop-billing/pkg/redis"
	pkgstripe "github.com/lazydrop/lazydrop-billing/pkg/stripe"
)

const downgradeLockName = "subscription-downgrade"

func main() {
	once := flag.Bool("once", false, "run every schedule a single time and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine, err := webhooks.NewEngine(webhooks.EngineParams{
		Config:  cfg,
		Logger:  logg,
		DB:      dbClient,
		Stripe:  subscriptions.NewStripeClient(stripeClient),
		Metrics: metrics.NewWebhookMetrics(registry),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build webhook engine", err)
		os.Exit(1)
	}

	downgradeLock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(cfg.App.Env, downgradeLockName), cfg.Subscriptions.DowngradeLockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create downgrade lock", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Redis:         redisClient,
		Engine:        engine,
		DowngradeLock: downgradeLock,
		Registry:      registry,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"instance":    instance.GetID(),
		"serviceKind": cfg.Service.Kind,
	})

	if *once {
		logg.Info(ctx, "running worker schedules once")
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "worker run failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "worker shutting down gracefully")
}
