package admin

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lazydrop/lazydrop-billing/api/responses"
	"github.com/lazydrop/lazydrop-billing/api/validators"
	"github.com/lazydrop/lazydrop-billing/internal/webhooks/processor"
	"github.com/lazydrop/lazydrop-billing/pkg/db/models"
	pkgerrors "github.com/lazydrop/lazydrop-billing/pkg/errors"
	"github.com/lazydrop/lazydrop-billing/pkg/logger"
	"github.com/lazydrop/lazydrop-billing/pkg/pagination"
)

// WebhookRetrier reruns failed ledger rows on demand.
type WebhookRetrier interface {
	RetryFailedNow(ctx context.Context, limit int) (int, error)
}

// WebhookLedger is the read side of the webhook ledger.
type WebhookLedger interface {
	FindByExternalID(ctx context.Context, externalEventID string) (*models.WebhookEvent, error)
	ListDeadLetters(ctx context.Context, limit int, after *pagination.Cursor) ([]models.WebhookEvent, error)
}

// WebhookEventView is the operator view of a ledger row. The raw payload and
// signature stay out of responses.
type WebhookEventView struct {
	ID              string     `json:"id"`
	ExternalEventID string     `json:"external_event_id"`
	Type            string     `json:"type"`
	Livemode        bool       `json:"livemode"`
	Status          string     `json:"status"`
	AttemptCount    int        `json:"attempt_count"`
	ReceivedAt      time.Time  `json:"received_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	NextRetryAt     *time.Time `json:"next_retry_at,omitempty"`
	LastError       *string    `json:"last_error,omitempty"`
	DeadLettered    bool       `json:"dead_lettered"`
}

func newWebhookEventView(row *models.WebhookEvent) WebhookEventView {
	return WebhookEventView{
		ID:              row.ID.String(),
		ExternalEventID: row.ExternalEventID,
		Type:            row.Type,
		Livemode:        row.Livemode,
		Status:          row.Status.String(),
		AttemptCount:    row.AttemptCount,
		ReceivedAt:      row.ReceivedAt,
		ProcessedAt:     row.ProcessedAt,
		NextRetryAt:     row.NextRetryAt,
		LastError:       row.LastError,
		DeadLettered:    row.DeadLettered(),
	}
}

var (
	retryLimit      = validators.IntParam{Key: "limit", Default: processor.DefaultBatchSize, Min: 1, Max: processor.MaxAdminRetry, Clamp: true}
	deadLetterLimit = validators.IntParam{Key: "limit", Default: pagination.DefaultLimit, Min: 1, Max: pagination.MaxLimit}
)

// RetryStripeWebhooks runs the failed-event retry pass synchronously.
func RetryStripeWebhooks(svc WebhookRetrier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook processor unavailable"))
			return
		}
		limit, err := retryLimit.Parse(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		processed, err := svc.RetryFailedNow(ctx, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retry failed webhooks"))
			return
		}
		if logg != nil {
			logCtx := logg.WithFields(ctx, map[string]any{"limit": limit, "processed": processed})
			logg.Info(logCtx, "admin webhook retry complete")
		}
		responses.WriteSuccess(w, map[string]int{"processed": processed})
	}
}

// StripeWebhookDeadLetters lists events that exhausted their retry budget,
// newest first, one cursor page at a time.
func StripeWebhookDeadLetters(repo WebhookLedger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if repo == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook ledger unavailable"))
			return
		}
		limit, err := deadLetterLimit.Parse(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		after, err := pagination.ParseCursor(r.URL.Query().Get("cursor"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor"))
			return
		}
		rows, err := repo.ListDeadLetters(ctx, pagination.LimitWithBuffer(limit), after)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters"))
			return
		}
		rows, more := pagination.Trim(rows, limit)

		views := make([]WebhookEventView, 0, len(rows))
		for i := range rows {
			views = append(views, newWebhookEventView(&rows[i]))
		}
		body := map[string]any{"events": views, "count": len(views)}
		if more {
			last := rows[len(rows)-1]
			body["next_cursor"] = pagination.EncodeCursor(pagination.Cursor{At: last.ReceivedAt, ID: last.ID})
		}
		responses.WriteSuccess(w, body)
	}
}

// StripeWebhookEvent returns one ledger row by its Stripe event id.
func StripeWebhookEvent(repo WebhookLedger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if repo == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook ledger unavailable"))
			return
		}
		eventID := strings.TrimSpace(chi.URLParam(r, "eventID"))
		if eventID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "event id is required"))
			return
		}
		row, err := repo.FindByExternalID(ctx, eventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load webhook event"))
			return
		}
		if row == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "webhook event not found"))
			return
		}
		responses.WriteSuccess(w, newWebhookEventView(row))
	}
}
