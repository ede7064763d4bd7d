package subscriptions

import (
	"context"

	"github.com/stripe/stripe-go/v84"

	pkgstripe "github.com/lazydrop/lazydrop-billing/pkg/stripe"
)

// StripeSubscriptionClient exposes the Stripe reads the webhook handlers need.
type StripeSubscriptionClient interface {
	Get(ctx context.Context, id string) (*stripe.Subscription, error)
}

type apiSubscriptions struct {
	api *pkgstripe.Client
}

// NewStripeClient returns nil when api is nil so callers can treat Stripe as
// unconfigured.
func NewStripeClient(api *pkgstripe.Client) StripeSubscriptionClient {
	if api == nil {
		return nil
	}
	return apiSubscriptions{api: api}
}

func (s apiSubscriptions) Get(ctx context.Context, id string) (*stripe.Subscription, error) {
	return s.api.RetrieveSubscription(ctx, id)
}
