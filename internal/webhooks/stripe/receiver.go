package stripewebhook

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/lazydrop/lazydrop-billing/internal/webhooks/ledger"
	"github.com/lazydrop/lazydrop-billing/pkg/db/models"
	"github.com/lazydrop/lazydrop-billing/pkg/enums"
	pkgerrors "github.com/lazydrop/lazydrop-billing/pkg/errors"
	"github.com/lazydrop/lazydrop-billing/pkg/logger"
	"github.com/lazydrop/lazydrop-billing/pkg/metrics"
)

// StoreResult reports what happened to a verified delivery.
type StoreResult string

const (
	StoreResultStored    StoreResult = "stored"
	StoreResultDuplicate StoreResult = "duplicate"
)

// StoreInput is a verified delivery ready for the ledger.
type StoreInput struct {
	ExternalEventID string `validate:"required,max=255"`
	Type            string `validate:"required,max=255"`
	Livemode        bool
	RawPayload      []byte `validate:"required"`
	Signature       string `validate:"required"`
}

type ReceiverParams struct {
	Logger   *logger.Logger
	Ledger   *ledger.Repository
	Verifier *Verifier
	Metrics  *metrics.WebhookMetrics
	Now      func() time.Time
}

// Receiver verifies Stripe deliveries and records them in the ledger. It
// never runs handlers; the processor picks rows up asynchronously.
type Receiver struct {
	logg     *logger.Logger
	ledger   *ledger.Repository
	verifier *Verifier
	metrics  *metrics.WebhookMetrics
	validate *validator.Validate
	now      func() time.Time
}

func NewReceiver(params ReceiverParams) (*Receiver, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Ledger == nil {
		return nil, errors.New("ledger repository required")
	}
	if params.Verifier == nil {
		return nil, errors.New("verifier required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Receiver{
		logg:     params.Logger,
		ledger:   params.Ledger,
		verifier: params.Verifier,
		metrics:  params.Metrics,
		validate: validator.New(),
		now:      now,
	}, nil
}

// Ingest verifies the signature header and stores the delivery.
func (r *Receiver) Ingest(ctx context.Context, payload []byte, signature string) (StoreResult, error) {
	event, err := r.verifier.Construct(payload, signature)
	if err != nil {
		r.metrics.IncReceived(metrics.IngestRejected)
		return "", err
	}
	return r.Store(ctx, StoreInput{
		ExternalEventID: event.ID,
		Type:            string(event.Type),
		Livemode:        event.Livemode,
		RawPayload:      payload,
		Signature:       signature,
	})
}

// Store inserts a RECEIVED row due immediately. A repeated event id is
// reported as a duplicate and leaves the original row untouched.
func (r *Receiver) Store(ctx context.Context, in StoreInput) (StoreResult, error) {
	if err := r.validate.Struct(in); err != nil {
		r.metrics.IncReceived(metrics.IngestRejected)
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook event")
	}

	ctx = r.logg.WithEvent(ctx, in.ExternalEventID, in.Type)
	now := r.now().UTC()
	row := &models.WebhookEvent{
		ExternalEventID: in.ExternalEventID,
		Type:            in.Type,
		Livemode:        in.Livemode,
		ReceivedAt:      now,
		Status:          enums.WebhookEventStatusReceived,
		NextRetryAt:     &now,
		RawPayload:      string(in.RawPayload),
		Signature:       in.Signature,
	}

	stored, err := r.ledger.Insert(ctx, row)
	if err != nil {
		r.metrics.IncReceived(metrics.IngestError)
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store webhook event")
	}
	if !stored {
		r.metrics.IncReceived(metrics.IngestDuplicate)
		r.logg.Info(ctx, "stripe webhook duplicate; skipping insert")
		return StoreResultDuplicate, nil
	}
	r.metrics.IncReceived(metrics.IngestStored)
	r.logg.Info(ctx, "stripe webhook stored")
	return StoreResultStored, nil
}
