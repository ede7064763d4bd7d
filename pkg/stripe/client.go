package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/lazydrop/lazydrop-billing/pkg/config"
	"github.com/lazydrop/lazydrop-billing/pkg/logger"
)

// Mode is the Stripe account mode a key belongs to.
type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

var errAPIKeyRequired = errors.New("stripe api key is required")

// Client wraps the Stripe API client for one account mode. The webhook
// signing secret is handled by the verifier, not here.
type Client struct {
	api  *stripe.Client
	mode Mode
}

// NewClient refuses a key whose mode disagrees with the configured
// environment, so a live key never reaches a test deployment.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	want := Mode(cfg.Environment())
	if want != ModeTest && want != ModeLive {
		return nil, fmt.Errorf("stripe environment must be %q or %q, got %q", ModeTest, ModeLive, want)
	}

	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errAPIKeyRequired
	}
	got, ok := keyMode(key)
	if !ok {
		return nil, errors.New("stripe api key must be a secret (sk_) or restricted (rk_) key")
	}
	if got != want {
		return nil, fmt.Errorf("stripe environment %q cannot use a %s key", want, got)
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_mode", string(got)), "stripe client initialized")
	}
	return &Client{api: stripe.NewClient(key), mode: got}, nil
}

// Mode reports which Stripe account mode the client talks to.
func (c *Client) Mode() Mode {
	if c == nil {
		return ""
	}
	return c.mode
}

// RetrieveSubscription loads the current state of a subscription, items included.
func (c *Client) RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	if c == nil || c.api == nil {
		return nil, errors.New("stripe client not configured")
	}
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("subscription id is required")
	}
	return c.api.V1Subscriptions.Retrieve(ctx, id, &stripe.SubscriptionRetrieveParams{})
}

func keyMode(key string) (Mode, bool) {
	for _, prefix := range []string{"sk_", "rk_"} {
		rest, found := strings.CutPrefix(key, prefix)
		if !found {
			continue
		}
		switch {
		case strings.HasPrefix(rest, "test_"):
			return ModeTest, true
		case strings.HasPrefix(rest, "live_"):
			return ModeLive, true
		}
	}
	return "", false
}
