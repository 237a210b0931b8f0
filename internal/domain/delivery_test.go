package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeliveryStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   DeliveryStatus
		terminal bool
	}{
		{DeliveryStatusPending, false},
		{DeliveryStatusDeferred, false},
		{DeliveryStatusDispatched, false},
		{DeliveryStatusRetryScheduled, false},
		{DeliveryStatusDelivered, true},
		{DeliveryStatusFailedPermanent, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestDeliveryStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    DeliveryStatus
		to      DeliveryStatus
		allowed bool
	}{
		{"pending to dispatched", DeliveryStatusPending, DeliveryStatusDispatched, true},
		{"pending to deferred", DeliveryStatusPending, DeliveryStatusDeferred, true},
		{"deferred to dispatched", DeliveryStatusDeferred, DeliveryStatusDispatched, true},
		{"dispatched to delivered", DeliveryStatusDispatched, DeliveryStatusDelivered, true},
		{"dispatched to retry", DeliveryStatusDispatched, DeliveryStatusRetryScheduled, true},
		{"dispatched to failed", DeliveryStatusDispatched, DeliveryStatusFailedPermanent, true},
		{"retry to dispatched", DeliveryStatusRetryScheduled, DeliveryStatusDispatched, true},
		{"retry to failed", DeliveryStatusRetryScheduled, DeliveryStatusFailedPermanent, true},
		{"pending to delivered skips dispatch", DeliveryStatusPending, DeliveryStatusDelivered, false},
		{"retry to delivered skips dispatch", DeliveryStatusRetryScheduled, DeliveryStatusDelivered, false},
		{"delivered is terminal", DeliveryStatusDelivered, DeliveryStatusDispatched, false},
		{"failed is terminal", DeliveryStatusFailedPermanent, DeliveryStatusDispatched, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestIntentKey_String(t *testing.T) {
	key := IntentKey{
		UserID: "u-1",
		Event:  EventKey{Source: "portal", ID: "job-42", Version: 3},
	}

	assert.Equal(t, "u-1:portal/job-42/v3", key.String())
}

func TestUserPreference_WantsKind(t *testing.T) {
	t.Run("empty kinds accepts everything", func(t *testing.T) {
		pref := UserPreference{}
		assert.True(t, pref.WantsKind(EventKindJob))
		assert.True(t, pref.WantsKind(EventKindCertificationDeadline))
	})

	t.Run("explicit kinds filter", func(t *testing.T) {
		pref := UserPreference{Kinds: []EventKind{EventKindInternship}}
		assert.True(t, pref.WantsKind(EventKindInternship))
		assert.False(t, pref.WantsKind(EventKindJob))
	})
}
