package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/lazydrop/lazydrop-billing/api/responses"
	stripewebhook "github.com/lazydrop/lazydrop-billing/internal/webhooks/stripe"
	pkgerrors "github.com/lazydrop/lazydrop-billing/pkg/errors"
	"github.com/lazydrop/lazydrop-billing/pkg/logger"
)

// maxPayloadBytes matches the upper bound Stripe documents for event bodies.
const maxPayloadBytes = 1 << 20

const signatureHeader = "Stripe-Signature"

// Ingester verifies and records one Stripe delivery.
type Ingester interface {
	Ingest(ctx context.Context, payload []byte, signature string) (stripewebhook.StoreResult, error)
}

// StripeWebhook acknowledges a Stripe delivery once it is durably recorded in
// the ledger. Handlers run later in the worker, so the response only reflects
// verification and storage.
func StripeWebhook(receiver Ingester, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if receiver == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook receiver unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes+1))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}
		if len(payload) > maxPayloadBytes {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payload too large"))
			return
		}

		result, err := receiver.Ingest(ctx, payload, r.Header.Get(signatureHeader))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"received": true, "result": result})
	}
}
