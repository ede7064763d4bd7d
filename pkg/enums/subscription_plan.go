package enums

import (
	"fmt"
	"strings"
)

// SubscriptionPlan is the entitlement tier granted to a user.
type SubscriptionPlan string

const (
	SubscriptionPlanFree SubscriptionPlan = "FREE"
	SubscriptionPlanPlus SubscriptionPlan = "PLUS"
	SubscriptionPlanPro  SubscriptionPlan = "PRO"
)

var validSubscriptionPlans = []SubscriptionPlan{
	SubscriptionPlanFree,
	SubscriptionPlanPlus,
	SubscriptionPlanPro,
}

func (p SubscriptionPlan) String() string {
	return string(p)
}

func (p SubscriptionPlan) IsValid() bool {
	for _, candidate := range validSubscriptionPlans {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsPaid reports whether the plan is backed by a Stripe subscription.
func (p SubscriptionPlan) IsPaid() bool {
	return p == SubscriptionPlanPlus || p == SubscriptionPlanPro
}

func ParseSubscriptionPlan(value string) (SubscriptionPlan, error) {
	normalized := SubscriptionPlan(strings.ToUpper(strings.TrimSpace(value)))
	if normalized.IsValid() {
		return normalized, nil
	}
	return "", fmt.Errorf("invalid subscription plan %q", value)
}
