package webhooks

import (
	"errors"
	"fmt"
	"time"

	"github.com/lazydrop/lazydrop-billing/internal/subscriptions"
	"github.com/lazydrop/lazydrop-billing/internal/users"
	"github.com/lazydrop/lazydrop-billing/internal/webhooks/ledger"
	"github.com/lazydrop/lazydrop-billing/internal/webhooks/processor"
	stripewebhook "github.com/lazydrop/lazydrop-billing/internal/webhooks/stripe"
	"github.com/lazydrop/lazydrop-billing/pkg/config"
	"github.com/lazydrop/lazydrop-billing/pkg/db"
	"github.com/lazydrop/lazydrop-billing/pkg/logger"
	"github.com/lazydrop/lazydrop-billing/pkg/metrics"
)

type EngineParams struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      *db.Client
	Stripe  subscriptions.StripeSubscriptionClient
	Metrics *metrics.WebhookMetrics
	Now     func() time.Time
}

// Engine bundles the ingestion and processing halves of the Stripe webhook
// pipeline over one ledger.
type Engine struct {
	Ledger        *ledger.Repository
	Verifier      *stripewebhook.Verifier
	Receiver      *stripewebhook.Receiver
	Processor     *processor.Service
	Subscriptions *subscriptions.Service
}

func NewEngine(params EngineParams) (*Engine, error) {
	if params.Config == nil {
		return nil, errors.New("config required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.DB == nil {
		return nil, errors.New("database client required")
	}
	cfg := params.Config

	verifier, err := stripewebhook.NewVerifier(cfg.Stripe.WebhookSecret, cfg.Stripe.Tolerance, cfg.Stripe.IgnoreAPIVersionMismatch)
	if err != nil {
		return nil, fmt.Errorf("stripe verifier: %w", err)
	}

	ledgerRepo := ledger.NewRepository(params.DB.DB())
	receiver, err := stripewebhook.NewReceiver(stripewebhook.ReceiverParams{
		Logger:   params.Logger,
		Ledger:   ledgerRepo,
		Verifier: verifier,
		Metrics:  params.Metrics,
		Now:      params.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("stripe receiver: %w", err)
	}

	subsService, err := subscriptions.NewService(
		subscriptions.NewRepository(params.DB.DB()),
		users.NewRepository(params.DB.DB()),
	)
	if err != nil {
		return nil, fmt.Errorf("subscription service: %w", err)
	}

	handlers, err := stripewebhook.NewHandlers(stripewebhook.HandlersParams{
		Logger:        params.Logger,
		Subscriptions: subsService,
		Stripe:        params.Stripe,
		Plans: subscriptions.PlanResolver{
			PlusPriceID: cfg.Stripe.PlusPriceID,
			ProPriceID:  cfg.Stripe.ProPriceID,
		},
		Now: params.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("stripe handlers: %w", err)
	}
	dispatcher := processor.NewDispatcher()
	handlers.Register(dispatcher)

	proc, err := processor.NewService(processor.ServiceParams{
		Logger:     params.Logger,
		DB:         params.DB,
		Ledger:     ledgerRepo,
		Dispatcher: dispatcher,
		Decoder:    verifier,
		Metrics:    params.Metrics,
		Policy: processor.RetryPolicy{
			MaxAttempts: cfg.Webhooks.MaxAttempts,
			BaseDelay:   cfg.Webhooks.BackoffBase,
			MaxDelay:    cfg.Webhooks.BackoffCap,
		},
		Lease:     cfg.Webhooks.Lease,
		BatchSize: cfg.Webhooks.BatchSize,
		Now:       params.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("webhook processor: %w", err)
	}

	return &Engine{
		Ledger:        ledgerRepo,
		Verifier:      verifier,
		Receiver:      receiver,
		Processor:     proc,
		Subscriptions: subsService,
	}, nil
}
