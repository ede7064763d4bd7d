package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/lazydrop/lazydrop-billing/pkg/logger"
)

const defaultDowngradeLimit = 200

type subscriptionDowngrader interface {
	DowngradeExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// SubscriptionDowngradeJobParams configures the expired-subscription downgrade.
type SubscriptionDowngradeJobParams struct {
	Logger        *logger.Logger
	Subscriptions subscriptionDowngrader
	Limit         int
	Now           func() time.Time
}

// NewSubscriptionDowngradeJob builds the job that moves canceled subscriptions
// past their period end back to the free plan.
func NewSubscriptionDowngradeJob(params SubscriptionDowngradeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription service required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultDowngradeLimit
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &subscriptionDowngradeJob{
		logg:  params.Logger,
		subs:  params.Subscriptions,
		limit: limit,
		now:   now,
	}, nil
}

type subscriptionDowngradeJob struct {
	logg  *logger.Logger
	subs  subscriptionDowngrader
	limit int
	now   func() time.Time
}

func (j *subscriptionDowngradeJob) Name() string { return "subscription-downgrade" }

func (j *subscriptionDowngradeJob) Run(ctx context.Context) error {
	downgraded, err := j.subs.DowngradeExpired(ctx, j.now().UTC(), j.limit)
	if err != nil {
		return fmt.Errorf("downgrade expired subscriptions: %w", err)
	}
	if downgraded > 0 {
		j.logg.Info(j.logg.WithField(ctx, "downgraded", downgraded), "expired subscriptions downgraded")
	}
	return nil
}
