package stripewebhook

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	pkgerrors "github.com/lazydrop/lazydrop-billing/pkg/errors"
)

// Verifier checks Stripe-Signature headers against the endpoint secret.
type Verifier struct {
	secret                   string
	tolerance                time.Duration
	ignoreAPIVersionMismatch bool
}

func NewVerifier(secret string, tolerance time.Duration, ignoreAPIVersionMismatch bool) (*Verifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("stripe webhook secret is required")
	}
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &Verifier{
		secret:                   secret,
		tolerance:                tolerance,
		ignoreAPIVersionMismatch: ignoreAPIVersionMismatch,
	}, nil
}

// Construct verifies a live delivery, including the timestamp tolerance, and
// parses the event.
func (v *Verifier) Construct(payload []byte, header string) (stripe.Event, error) {
	if strings.TrimSpace(header) == "" {
		return stripe.Event{}, pkgerrors.New(pkgerrors.CodeSignature, "stripe signature missing")
	}
	event, err := webhook.ConstructEventWithOptions(payload, header, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: v.ignoreAPIVersionMismatch,
	})
	if err != nil {
		return stripe.Event{}, classify(err)
	}
	if event.ID == "" || event.Type == "" {
		return stripe.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe event id and type are required")
	}
	return event, nil
}

// Reconstruct re-verifies a stored payload. The timestamp is not checked
// because retries legitimately run long after delivery.
func (v *Verifier) Reconstruct(payload []byte, header string) (*stripe.Event, error) {
	if err := webhook.ValidatePayloadIgnoringTolerance(payload, header, v.secret); err != nil {
		return nil, classify(err)
	}
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode stored stripe event")
	}
	return &event, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, webhook.ErrNotSigned),
		errors.Is(err, webhook.ErrInvalidHeader),
		errors.Is(err, webhook.ErrNoValidSignature),
		errors.Is(err, webhook.ErrTooOld):
		return pkgerrors.Wrap(pkgerrors.CodeSignature, err, "verify stripe signature")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse stripe event")
	}
}
