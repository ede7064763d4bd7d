package processor

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/lazydrop/lazydrop-billing/internal/webhooks/ledger"
	"github.com/lazydrop/lazydrop-billing/pkg/db/models"
	"github.com/lazydrop/lazydrop-billing/pkg/enums"
	"github.com/lazydrop/lazydrop-billing/pkg/logger"
	"github.com/lazydrop/lazydrop-billing/pkg/metrics"
)

const (
	DefaultBatchSize = 25
	DefaultLease     = 5 * time.Minute
	MaxAdminRetry    = 200
	maxLastErrorLen  = 500
)

// Driver names the sweep that picked a row up.
type Driver string

const (
	DriverReceived Driver = "received"
	DriverFailed   Driver = "failed"
	DriverStuck    Driver = "stuck"
	DriverAdmin    Driver = "admin"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// EventDecoder re-verifies a stored payload against its signature header.
type EventDecoder interface {
	Reconstruct(payload []byte, signature string) (*stripe.Event, error)
}

type ServiceParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Ledger     *ledger.Repository
	Dispatcher *Dispatcher
	Decoder    EventDecoder
	Metrics    *metrics.WebhookMetrics
	Policy     RetryPolicy
	Lease      time.Duration
	BatchSize  int
	Now        func() time.Time
}

// Service drains the webhook ledger: it finds due rows, claims them, runs the
// matching handler and writes the outcome back.
type Service struct {
	logg       *logger.Logger
	db         txRunner
	ledger     *ledger.Repository
	dispatcher *Dispatcher
	decoder    EventDecoder
	metrics    *metrics.WebhookMetrics
	policy     RetryPolicy
	lease      time.Duration
	batchSize  int
	now        func() time.Time
}

// SweepResult summarizes one driver pass.
type SweepResult struct {
	Scanned      int
	Claimed      int
	Processed    int
	Ignored      int
	Failed       int
	DeadLettered int
	Skipped      int
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if params.Decoder == nil {
		return nil, fmt.Errorf("event decoder required")
	}
	lease := params.Lease
	if lease <= 0 {
		lease = DefaultLease
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		logg:       params.Logger,
		db:         params.DB,
		ledger:     params.Ledger,
		dispatcher: params.Dispatcher,
		decoder:    params.Decoder,
		metrics:    params.Metrics,
		policy:     params.Policy.normalized(),
		lease:      lease,
		batchSize:  batch,
		now:        now,
	}, nil
}

// ProcessReceived handles newly ingested events.
func (s *Service) ProcessReceived(ctx context.Context) (SweepResult, error) {
	return s.sweep(ctx, DriverReceived, ledger.DueQuery{
		Status: enums.WebhookEventStatusReceived,
		Limit:  s.batchSize,
	})
}

// RetryFailed re-attempts failed events whose backoff has elapsed.
func (s *Service) RetryFailed(ctx context.Context) (SweepResult, error) {
	return s.sweep(ctx, DriverFailed, ledger.DueQuery{
		Status:      enums.WebhookEventStatusFailed,
		MaxAttempts: s.policy.MaxAttempts,
		Limit:       s.batchSize,
	})
}

// RecoverStuck reclaims events whose processing lease expired.
func (s *Service) RecoverStuck(ctx context.Context) (SweepResult, error) {
	return s.sweep(ctx, DriverStuck, ledger.DueQuery{
		Status: enums.WebhookEventStatusProcessing,
		Limit:  s.batchSize,
	})
}

// RetryFailedNow runs the failed-retry pass once with limit clamped to
// 1..MaxAdminRetry and reports how many events reached PROCESSED.
func (s *Service) RetryFailedNow(ctx context.Context, limit int) (int, error) {
	res, err := s.sweep(ctx, DriverAdmin, ledger.DueQuery{
		Status:      enums.WebhookEventStatusFailed,
		MaxAttempts: s.policy.MaxAttempts,
		Limit:       ClampRetryLimit(limit),
	})
	return res.Processed, err
}

// ClampRetryLimit bounds an operator supplied batch size.
func ClampRetryLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxAdminRetry {
		return MaxAdminRetry
	}
	return limit
}

func (s *Service) sweep(ctx context.Context, driver Driver, q ledger.DueQuery) (SweepResult, error) {
	var res SweepResult
	q.Now = s.now().UTC()
	rows, err := s.ledger.FindDue(ctx, q)
	if err != nil {
		return res, fmt.Errorf("find due %s events: %w", q.Status, err)
	}
	res.Scanned = len(rows)

	var errs error
	for i := range rows {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		if err := s.processRow(ctx, driver, &rows[i], &res); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("event %s: %w", rows[i].ExternalEventID, err))
		}
	}

	if res.Scanned > 0 {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"driver":        string(driver),
			"scanned":       res.Scanned,
			"claimed":       res.Claimed,
			"processed":     res.Processed,
			"ignored":       res.Ignored,
			"failed":        res.Failed,
			"dead_lettered": res.DeadLettered,
			"skipped":       res.Skipped,
		})
		s.logg.Info(logCtx, "webhook sweep complete")
	}
	return res, errs
}

func (s *Service) processRow(ctx context.Context, driver Driver, row *models.WebhookEvent, res *SweepResult) error {
	ctx = s.logg.WithEvent(ctx, row.ExternalEventID, row.Type)
	ctx = s.logg.WithField(ctx, "driver", string(driver))

	claimed, err := s.ledger.Claim(ctx, row.ExternalEventID, s.now().UTC(), s.lease)
	if err != nil {
		return fmt.Errorf("claim: %w", err)
	}
	if !claimed {
		res.Skipped++
		s.metrics.IncClaimConflict(string(driver))
		s.logg.Debug(ctx, "webhook event claimed elsewhere")
		return nil
	}
	res.Claimed++

	latest, err := s.ledger.FindByExternalID(ctx, row.ExternalEventID)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	if latest == nil {
		return fmt.Errorf("reload: row vanished")
	}
	expected := latest.AttemptCount
	attempt := expected + 1
	ctx = s.logg.WithField(ctx, "attempt_count", attempt)

	event, err := s.decoder.Reconstruct([]byte(latest.RawPayload), latest.Signature)
	if err != nil {
		return s.markFailed(ctx, driver, latest.ExternalEventID, expected, fmt.Errorf("reconstruct event: %w", err), res)
	}

	var outcome enums.WebhookEventStatus
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		handleErr := s.dispatcher.Dispatch(ctx, tx, event)
		now := s.now().UTC()
		switch {
		case handleErr == nil:
			outcome = enums.WebhookEventStatusProcessed
			return s.ledger.WithTx(tx).UpdateOutcome(ctx, latest.ExternalEventID, expected, ledger.Outcome{
				Status:      outcome,
				ProcessedAt: &now,
			})
		case errors.Is(handleErr, ErrUnhandledEventType):
			outcome = enums.WebhookEventStatusIgnored
			reason := truncateError(handleErr.Error())
			return s.ledger.WithTx(tx).UpdateOutcome(ctx, latest.ExternalEventID, expected, ledger.Outcome{
				Status:      outcome,
				ProcessedAt: &now,
				LastError:   &reason,
			})
		default:
			return handleErr
		}
	})
	switch {
	case err == nil:
		s.recordOutcome(ctx, driver, outcome, res)
		return nil
	case errors.Is(err, ledger.ErrClaimLost):
		res.Skipped++
		s.metrics.IncClaimConflict(string(driver))
		s.logg.Warn(ctx, "webhook event claim lost before outcome was written")
		return nil
	default:
		return s.markFailed(ctx, driver, latest.ExternalEventID, expected, err, res)
	}
}

func (s *Service) markFailed(ctx context.Context, driver Driver, externalEventID string, expected int, cause error, res *SweepResult) error {
	attempt := expected + 1
	msg := truncateError(cause.Error())
	next := s.policy.NextRetryAt(s.now().UTC(), attempt)
	err := s.ledger.UpdateOutcome(ctx, externalEventID, expected, ledger.Outcome{
		Status:      enums.WebhookEventStatusFailed,
		LastError:   &msg,
		NextRetryAt: next,
	})
	if errors.Is(err, ledger.ErrClaimLost) {
		res.Skipped++
		s.metrics.IncClaimConflict(string(driver))
		s.logg.Warn(ctx, "webhook event claim lost before failure was recorded")
		return nil
	}
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}

	res.Failed++
	if next == nil {
		res.DeadLettered++
		s.metrics.IncOutcome(metrics.OutcomeDeadLettered, string(driver))
		s.logg.Error(ctx, "webhook event dead-lettered", cause)
		return nil
	}
	s.metrics.IncOutcome(string(enums.WebhookEventStatusFailed), string(driver))
	s.logg.Warn(s.logg.WithField(ctx, "next_retry_at", next.Format(time.RFC3339)), "webhook event failed; retry scheduled: "+msg)
	return nil
}

func (s *Service) recordOutcome(ctx context.Context, driver Driver, status enums.WebhookEventStatus, res *SweepResult) {
	switch status {
	case enums.WebhookEventStatusProcessed:
		res.Processed++
		s.logg.Info(ctx, "webhook event processed")
	case enums.WebhookEventStatusIgnored:
		res.Ignored++
		s.logg.Info(ctx, "webhook event ignored")
	}
	s.metrics.IncOutcome(string(status), string(driver))
}

func truncateError(msg string) string {
	if utf8.RuneCountInString(msg) <= maxLastErrorLen {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:maxLastErrorLen])
}
