package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lazydrop/lazydrop-billing/api/controllers"
	admincontrollers "github.com/lazydrop/lazydrop-billing/api/controllers/admin"
	webhookcontrollers "github.com/lazydrop/lazydrop-billing/api/controllers/webhooks"
	"github.com/lazydrop/lazydrop-billing/api/middleware"
	"github.com/lazydrop/lazydrop-billing/internal/webhooks/ledger"
	"github.com/lazydrop/lazydrop-billing/internal/webhooks/processor"
	stripewebhook "github.com/lazydrop/lazydrop-billing/internal/webhooks/stripe"
	"github.com/lazydrop/lazydrop-billing/pkg/config"
	"github.com/lazydrop/lazydrop-billing/pkg/enums"
	"github.com/lazydrop/lazydrop-billing/pkg/logger"
	"github.com/lazydrop/lazydrop-billing/pkg/redis"
)

// Dependencies are the wired services the API exposes. Redis is optional:
// without it the admin rate limit is off and readiness skips the check.
// A nil service leaves its routes mounted but answering with an internal error.
type Dependencies struct {
	DB        controllers.Pinger
	Redis     *redis.Client
	Receiver  *stripewebhook.Receiver
	Processor *processor.Service
	Ledger    *ledger.Repository
	Gatherer  prometheus.Gatherer
}

// services converts the concrete services to controller interfaces, keeping
// nil pointers as nil interfaces so the controllers' guards see them.
func (d Dependencies) services() (webhookcontrollers.Ingester, admincontrollers.WebhookRetrier, admincontrollers.WebhookLedger) {
	var (
		ingester webhookcontrollers.Ingester
		retrier  admincontrollers.WebhookRetrier
		events   admincontrollers.WebhookLedger
	)
	if d.Receiver != nil {
		ingester = d.Receiver
	}
	if d.Processor != nil {
		retrier = d.Processor
	}
	if d.Ledger != nil {
		events = d.Ledger
	}
	return ingester, retrier, events
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	ingester, retrier, events := deps.services()

	readiness := map[string]controllers.Pinger{"db": deps.DB}
	if deps.Redis != nil {
		readiness["redis"] = deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(ingester, logg))
	})

	retryPolicy := middleware.NewRateLimitPolicy(
		"webhook-retry",
		cfg.AdminRateLimit.Window,
		cfg.AdminRateLimit.Limit,
	)
	retryLimiter := middleware.RateLimit(retryPolicy, nil, logg)
	if deps.Redis != nil {
		retryLimiter = middleware.RateLimit(retryPolicy, deps.Redis, logg)
	}

	r.Route("/api/admin/v1/webhooks/stripe", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.AdminRoleAdmin, enums.AdminRoleReadOnly))
			r.Get("/dead-letters", admincontrollers.StripeWebhookDeadLetters(events, logg))
			r.Get("/events/{eventID}", admincontrollers.StripeWebhookEvent(events, logg))
		})
		r.With(
			middleware.RequireRole(logg, enums.AdminRoleAdmin),
			retryLimiter,
		).Post("/retry", admincontrollers.RetryStripeWebhooks(retrier, logg))
	})

	return r
}
