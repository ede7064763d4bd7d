package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/lazydrop/lazydrop-billing/internal/subscriptions"
	"github.com/lazydrop/lazydrop-billing/internal/webhooks/processor"
	"github.com/lazydrop/lazydrop-billing/pkg/db/models"
	"github.com/lazydrop/lazydrop-billing/pkg/enums"
	pkgerrors "github.com/lazydrop/lazydrop-billing/pkg/errors"
	"github.com/lazydrop/lazydrop-billing/pkg/logger"
)

const appUserIDMetadataKey = "app_user_id"

type HandlersParams struct {
	Logger        *logger.Logger
	Subscriptions *subscriptions.Service
	Stripe        subscriptions.StripeSubscriptionClient
	Plans         subscriptions.PlanResolver
	Now           func() time.Time
}

// Handlers apply Stripe billing events to local subscription state.
type Handlers struct {
	logg   *logger.Logger
	subs   *subscriptions.Service
	stripe subscriptions.StripeSubscriptionClient
	plans  subscriptions.PlanResolver
	now    func() time.Time
}

func NewHandlers(params HandlersParams) (*Handlers, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Subscriptions == nil {
		return nil, errors.New("subscription service required")
	}
	if params.Stripe == nil {
		return nil, errors.New("stripe subscription client required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Handlers{
		logg:   params.Logger,
		subs:   params.Subscriptions,
		stripe: params.Stripe,
		plans:  params.Plans,
		now:    now,
	}, nil
}

// Register binds every supported event type on d.
func (h *Handlers) Register(d *processor.Dispatcher) {
	d.Register(stripe.EventTypeCheckoutSessionCompleted, h.CheckoutCompleted)
	d.Register(stripe.EventTypeInvoicePaymentSucceeded, h.InvoicePaymentSucceeded)
	d.Register(stripe.EventTypeInvoicePaymentFailed, h.InvoicePaymentFailed)
	d.Register(stripe.EventTypeCustomerSubscriptionUpdated, h.SubscriptionUpdated)
	d.Register(stripe.EventTypeCustomerSubscriptionDeleted, h.SubscriptionDeleted)
}

func (h *Handlers) CheckoutCompleted(ctx context.Context, tx *gorm.DB, event *stripe.Event) error {
	var session stripe.CheckoutSession
	if err := decodeObject(event, &session); err != nil {
		return err
	}
	rawUserID := session.Metadata[appUserIDMetadataKey]
	subscriptionID := ""
	if session.Subscription != nil {
		subscriptionID = session.Subscription.ID
	}
	if rawUserID == "" || subscriptionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout session missing app_user_id or subscription id")
	}
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid app_user_id")
	}

	stripeSub, err := h.stripe.Get(ctx, subscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch stripe subscription")
	}

	customerID := subscriptions.CustomerID(stripeSub)
	if customerID == "" && session.Customer != nil {
		customerID = session.Customer.ID
	}
	plan := h.plans.PlanForPrice(subscriptions.FirstPriceID(stripeSub))
	if _, err := h.subs.WithTx(tx).Activate(ctx, userID, subscriptions.ActivateInput{
		StripeSubscriptionID: stripeSub.ID,
		StripeCustomerID:     customerID,
		Plan:                 plan,
		CurrentPeriodEnd:     subscriptions.PeriodEnd(stripeSub),
	}); err != nil {
		return err
	}

	h.logg.Info(h.logg.WithFields(ctx, map[string]any{
		"user_id":                userID.String(),
		"plan":                   string(plan),
		"stripe_subscription_id": stripeSub.ID,
	}), "subscription activated")
	return nil
}

func (h *Handlers) InvoicePaymentSucceeded(ctx context.Context, tx *gorm.DB, event *stripe.Event) error {
	subscriptionID, err := invoiceSubscriptionID(event)
	if err != nil {
		return err
	}
	if subscriptionID == "" {
		return nil
	}

	stripeSub, err := h.stripe.Get(ctx, subscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch stripe subscription")
	}
	svc := h.subs.WithTx(tx)
	local, err := svc.FindByStripeSubscriptionID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if local == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("no local subscription for %s", subscriptionID))
	}
	if _, err := svc.Renew(ctx, local.UserID, subscriptions.PeriodEnd(stripeSub)); err != nil {
		return err
	}
	h.logg.Info(h.logg.WithField(ctx, "stripe_subscription_id", subscriptionID), "subscription renewed")
	return nil
}

func (h *Handlers) InvoicePaymentFailed(ctx context.Context, tx *gorm.DB, event *stripe.Event) error {
	subscriptionID, err := invoiceSubscriptionID(event)
	if err != nil {
		return err
	}
	if subscriptionID == "" {
		return nil
	}
	svc := h.subs.WithTx(tx)
	local, err := svc.FindByStripeSubscriptionID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if local == nil {
		return nil
	}
	if _, err := svc.MarkPastDue(ctx, local.UserID); err != nil {
		return err
	}
	h.logg.Info(h.logg.WithField(ctx, "stripe_subscription_id", subscriptionID), "subscription marked past due")
	return nil
}

func (h *Handlers) SubscriptionUpdated(ctx context.Context, tx *gorm.DB, event *stripe.Event) error {
	var stripeSub stripe.Subscription
	if err := decodeObject(event, &stripeSub); err != nil {
		return err
	}
	svc := h.subs.WithTx(tx)
	local, err := h.findLocal(ctx, svc, &stripeSub)
	if err != nil {
		return err
	}

	metadata, err := subscriptions.EncodeMetadata(stripeSub.Metadata)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode subscription metadata")
	}
	local.StripeSubscriptionID = &stripeSub.ID
	local.PlanCode = h.plans.PlanForPrice(subscriptions.FirstPriceID(&stripeSub))
	local.Status = subscriptions.MapStripeStatus(stripeSub.Status)
	if end := subscriptions.PeriodEnd(&stripeSub); end != nil {
		local.CurrentPeriodEnd = end
	}
	local.CancelAtPeriodEnd = subscriptions.ScheduledToCancel(&stripeSub, h.now())
	local.Metadata = metadata
	if err := svc.Save(ctx, local); err != nil {
		return err
	}

	h.logg.Info(h.logg.WithFields(ctx, map[string]any{
		"stripe_subscription_id": stripeSub.ID,
		"stripe_status":          string(stripeSub.Status),
		"cancel_at_period_end":   local.CancelAtPeriodEnd,
	}), "subscription updated")
	return nil
}

func (h *Handlers) SubscriptionDeleted(ctx context.Context, tx *gorm.DB, event *stripe.Event) error {
	var stripeSub stripe.Subscription
	if err := decodeObject(event, &stripeSub); err != nil {
		return err
	}
	svc := h.subs.WithTx(tx)
	local, err := h.findLocal(ctx, svc, &stripeSub)
	if err != nil {
		return err
	}

	periodEnd := subscriptions.PeriodEnd(&stripeSub)
	local.StripeSubscriptionID = &stripeSub.ID
	local.Status = enums.SubscriptionStatusCanceled
	local.CancelAtPeriodEnd = false
	local.CurrentPeriodEnd = periodEnd
	// Paid access runs until period end; the downgrade job handles the rest.
	if periodEnd == nil || !periodEnd.After(h.now()) {
		local.PlanCode = enums.SubscriptionPlanFree
	}
	if err := svc.Save(ctx, local); err != nil {
		return err
	}
	h.logg.Info(h.logg.WithField(ctx, "stripe_subscription_id", stripeSub.ID), "subscription canceled")
	return nil
}

func (h *Handlers) findLocal(ctx context.Context, svc *subscriptions.Service, stripeSub *stripe.Subscription) (*models.Subscription, error) {
	local, err := svc.FindByStripeSubscriptionID(ctx, stripeSub.ID)
	if err != nil {
		return nil, err
	}
	if local != nil {
		return local, nil
	}
	customerID := subscriptions.CustomerID(stripeSub)
	local, err = svc.FindByStripeCustomerID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if local == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound,
			fmt.Sprintf("no subscription row for stripe subscription %s customer %s", stripeSub.ID, customerID))
	}
	return local, nil
}

func decodeObject(event *stripe.Event, dest any) error {
	if event == nil || event.Data == nil || len(event.Data.Raw) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	if err := json.Unmarshal(event.Data.Raw, dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("decode %s object", event.Type))
	}
	return nil
}

// invoiceRefs holds the places an invoice can name its subscription across
// API versions.
type invoiceRefs struct {
	Subscription json.RawMessage `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription json.RawMessage `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Lines *struct {
		Data []struct {
			Subscription json.RawMessage `json:"subscription"`
			Parent       *struct {
				SubscriptionItemDetails *struct {
					Subscription json.RawMessage `json:"subscription"`
				} `json:"subscription_item_details"`
			} `json:"parent"`
		} `json:"data"`
	} `json:"lines"`
}

func invoiceSubscriptionID(event *stripe.Event) (string, error) {
	var refs invoiceRefs
	if err := decodeObject(event, &refs); err != nil {
		return "", err
	}
	if refs.Parent != nil && refs.Parent.SubscriptionDetails != nil {
		if id := expandableID(refs.Parent.SubscriptionDetails.Subscription); id != "" {
			return id, nil
		}
	}
	if id := expandableID(refs.Subscription); id != "" {
		return id, nil
	}
	if refs.Lines != nil && len(refs.Lines.Data) > 0 {
		line := refs.Lines.Data[0]
		if id := expandableID(line.Subscription); id != "" {
			return id, nil
		}
		if line.Parent != nil && line.Parent.SubscriptionItemDetails != nil {
			return expandableID(line.Parent.SubscriptionItemDetails.Subscription), nil
		}
	}
	return "", nil
}

// expandableID reads a Stripe reference that is either an id string or an
// expanded object.
func expandableID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}
