package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lazydrop/lazydrop-billing/pkg/enums"
)

// Subscription holds a single user's entitlement and the Stripe ids that drive it.
type Subscription struct {
	ID                   uuid.UUID                `gorm:"type:uuid;primaryKey"`
	UserID               uuid.UUID                `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_subscriptions_user_id"`
	StripeCustomerID     *string                  `gorm:"column:stripe_customer_id;uniqueIndex:ux_subscriptions_stripe_customer_id"`
	StripeSubscriptionID *string                  `gorm:"column:stripe_subscription_id;uniqueIndex:ux_subscriptions_stripe_subscription_id"`
	PlanCode             enums.SubscriptionPlan   `gorm:"column:plan_code;not null"`
	Status               enums.SubscriptionStatus `gorm:"column:status;not null"`
	CurrentPeriodEnd     *time.Time               `gorm:"column:current_period_end"`
	CancelAtPeriodEnd    bool                     `gorm:"column:cancel_at_period_end;not null;default:false"`
	Metadata             datatypes.JSON           `gorm:"column:metadata"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Subscription) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
