package enums

import (
	"fmt"
	"strings"
)

// SubscriptionStatus mirrors Stripe's subscription status vocabulary. The
// webhook handlers only ever write active, past_due and canceled; the rest
// stay valid so rows written by hand or by older releases still load.
type SubscriptionStatus string

const (
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
)

var subscriptionStatuses = map[SubscriptionStatus]struct{}{
	SubscriptionStatusActive:            {},
	SubscriptionStatusTrialing:          {},
	SubscriptionStatusPastDue:           {},
	SubscriptionStatusCanceled:          {},
	SubscriptionStatusIncomplete:        {},
	SubscriptionStatusIncompleteExpired: {},
	SubscriptionStatusUnpaid:            {},
}

func (s SubscriptionStatus) String() string { return string(s) }

func (s SubscriptionStatus) IsValid() bool {
	_, ok := subscriptionStatuses[s]
	return ok
}

// ParseSubscriptionStatus accepts any casing and surrounding whitespace.
func ParseSubscriptionStatus(value string) (SubscriptionStatus, error) {
	status := SubscriptionStatus(strings.ToLower(strings.TrimSpace(value)))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid subscription status %q", value)
	}
	return status, nil
}
