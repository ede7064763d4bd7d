package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lazydrop/lazydrop-billing/pkg/enums"
)

// WebhookEvent is one row of the Stripe webhook ledger. The raw payload and
// signature header are kept verbatim so the event can be re-verified when a
// worker processes it.
type WebhookEvent struct {
	ID              uuid.UUID                `gorm:"type:uuid;primaryKey"`
	ExternalEventID string                   `gorm:"column:external_event_id;not null;uniqueIndex:ux_stripe_webhook_events_external_event_id"`
	Type            string                   `gorm:"column:type;not null"`
	Livemode        bool                     `gorm:"column:livemode;not null;default:false"`
	ReceivedAt      time.Time                `gorm:"column:received_at;not null;index:ix_stripe_webhook_events_due,priority:3"`
	ProcessedAt     *time.Time               `gorm:"column:processed_at"`
	Status          enums.WebhookEventStatus `gorm:"column:status;not null;index:ix_stripe_webhook_events_due,priority:1"`
	AttemptCount    int                      `gorm:"column:attempt_count;not null;default:0"`
	NextRetryAt     *time.Time               `gorm:"column:next_retry_at;index:ix_stripe_webhook_events_due,priority:2"`
	LastError       *string                  `gorm:"column:last_error;type:text"`
	RawPayload      string                   `gorm:"column:raw_payload;type:text;not null"`
	Signature       string                   `gorm:"column:signature;type:text;not null"`
}

func (WebhookEvent) TableName() string {
	return "stripe_webhook_events"
}

func (e *WebhookEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// DeadLettered reports a FAILED row whose retry schedule has been cleared.
func (e *WebhookEvent) DeadLettered() bool {
	return e != nil && e.Status == enums.WebhookEventStatusFailed && e.NextRetryAt == nil
}
