package enums

import "fmt"

// WebhookEventStatus tracks a ledger row through the processing state machine.
type WebhookEventStatus string

const (
	WebhookEventStatusReceived   WebhookEventStatus = "RECEIVED"
	WebhookEventStatusProcessing WebhookEventStatus = "PROCESSING"
	WebhookEventStatusProcessed  WebhookEventStatus = "PROCESSED"
	WebhookEventStatusFailed     WebhookEventStatus = "FAILED"
	WebhookEventStatusIgnored    WebhookEventStatus = "IGNORED"
)

var validWebhookEventStatuses = []WebhookEventStatus{
	WebhookEventStatusReceived,
	WebhookEventStatusProcessing,
	WebhookEventStatusProcessed,
	WebhookEventStatusFailed,
	WebhookEventStatusIgnored,
}

// String implements fmt.Stringer.
func (s WebhookEventStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s WebhookEventStatus) IsValid() bool {
	for _, candidate := range validWebhookEventStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no driver will ever pick the row up again.
// FAILED is terminal only once its retry schedule is cleared, which the
// status alone cannot express.
func (s WebhookEventStatus) IsTerminal() bool {
	return s == WebhookEventStatusProcessed || s == WebhookEventStatusIgnored
}

// ClaimableWebhookEventStatuses lists the statuses a worker may move to PROCESSING.
func ClaimableWebhookEventStatuses() []WebhookEventStatus {
	return []WebhookEventStatus{
		WebhookEventStatusReceived,
		WebhookEventStatusFailed,
		WebhookEventStatusProcessing,
	}
}

// ParseWebhookEventStatus converts raw input into a WebhookEventStatus.
func ParseWebhookEventStatus(value string) (WebhookEventStatus, error) {
	for _, candidate := range validWebhookEventStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid webhook event status %q", value)
}
