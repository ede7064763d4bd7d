package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookEventStatusParse(t *testing.T) {
	for _, raw := range []string{"RECEIVED", "PROCESSING", "PROCESSED", "FAILED", "IGNORED"} {
		got, err := ParseWebhookEventStatus(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, got.String())
	}
	_, err := ParseWebhookEventStatus("received")
	assert.Error(t, err)
}

func TestWebhookEventStatusTerminal(t *testing.T) {
	assert.True(t, WebhookEventStatusProcessed.IsTerminal())
	assert.True(t, WebhookEventStatusIgnored.IsTerminal())
	assert.False(t, WebhookEventStatusFailed.IsTerminal())
	assert.False(t, WebhookEventStatusProcessing.IsTerminal())
	assert.NotContains(t, ClaimableWebhookEventStatuses(), WebhookEventStatusProcessed)
	assert.NotContains(t, ClaimableWebhookEventStatuses(), WebhookEventStatusIgnored)
}

func TestSubscriptionPlanParse(t *testing.T) {
	got, err := ParseSubscriptionPlan(" pro ")
	require.NoError(t, err)
	assert.Equal(t, SubscriptionPlanPro, got)
	assert.True(t, got.IsPaid())
	assert.False(t, SubscriptionPlanFree.IsPaid())

	_, err = ParseSubscriptionPlan("enterprise")
	assert.Error(t, err)
}

func TestAdminRoleValidity(t *testing.T) {
	assert.True(t, AdminRoleAdmin.IsValid())
	assert.False(t, AdminRole("owner").IsValid())
}

func TestSubscriptionStatusParse(t *testing.T) {
	got, err := ParseSubscriptionStatus(" PAST_DUE ")
	require.NoError(t, err)
	assert.Equal(t, SubscriptionStatusPastDue, got)
	assert.True(t, SubscriptionStatusIncompleteExpired.IsValid())

	_, err = ParseSubscriptionStatus("paused")
	assert.Error(t, err)
}
