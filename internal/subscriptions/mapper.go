package subscriptions

import (
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/lazydrop/lazydrop-billing/pkg/enums"
)

// PlanResolver maps Stripe price ids to plans.
type PlanResolver struct {
	PlusPriceID string
	ProPriceID  string
}

// PlanForPrice returns the plan sold under priceID, FREE when unknown.
func (p PlanResolver) PlanForPrice(priceID string) enums.SubscriptionPlan {
	priceID = strings.TrimSpace(priceID)
	switch {
	case priceID == "":
		return enums.SubscriptionPlanFree
	case priceID == p.PlusPriceID:
		return enums.SubscriptionPlanPlus
	case priceID == p.ProPriceID:
		return enums.SubscriptionPlanPro
	default:
		return enums.SubscriptionPlanFree
	}
}

// MapStripeStatus collapses Stripe's subscription status into the local set.
func MapStripeStatus(status stripe.SubscriptionStatus) enums.SubscriptionStatus {
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return enums.SubscriptionStatusActive
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return enums.SubscriptionStatusPastDue
	case stripe.SubscriptionStatusCanceled:
		return enums.SubscriptionStatusCanceled
	default:
		return enums.SubscriptionStatusActive
	}
}

// FirstPriceID returns the price of the first subscription item.
func FirstPriceID(sub *stripe.Subscription) string {
	item := firstItem(sub)
	if item == nil || item.Price == nil {
		return ""
	}
	return item.Price.ID
}

// PeriodEnd returns the current period end of the first subscription item.
func PeriodEnd(sub *stripe.Subscription) *time.Time {
	item := firstItem(sub)
	if item == nil || item.CurrentPeriodEnd == 0 {
		return nil
	}
	end := time.Unix(item.CurrentPeriodEnd, 0).UTC()
	return &end
}

// ScheduledToCancel reports a pending cancellation, either at period end or
// at an explicit future time.
func ScheduledToCancel(sub *stripe.Subscription, now time.Time) bool {
	if sub == nil {
		return false
	}
	if sub.CancelAtPeriodEnd {
		return true
	}
	return sub.CancelAt > 0 && sub.CancelAt > now.Unix()
}

// CustomerID returns the subscription's customer id, if expanded or referenced.
func CustomerID(sub *stripe.Subscription) string {
	if sub == nil || sub.Customer == nil {
		return ""
	}
	return sub.Customer.ID
}

func firstItem(sub *stripe.Subscription) *stripe.SubscriptionItem {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil
	}
	return sub.Items.Data[0]
}
