package domain

import "time"

// DeliveryStatus represents the state of a delivery record.
type DeliveryStatus string

// Delivery statuses.
const (
	DeliveryStatusPending         DeliveryStatus = "pending"
	DeliveryStatusDeferred        DeliveryStatus = "deferred"
	DeliveryStatusDispatched      DeliveryStatus = "dispatched"
	DeliveryStatusDelivered       DeliveryStatus = "delivered"
	DeliveryStatusRetryScheduled  DeliveryStatus = "retry_scheduled"
	DeliveryStatusFailedPermanent DeliveryStatus = "failed_permanent"
)

// IsTerminal reports whether the status is a terminal state.
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryStatusDelivered || s == DeliveryStatusFailedPermanent
}

// CanTransitionTo reports whether the state machine permits moving
// from s to next.
func (s DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case DeliveryStatusPending, DeliveryStatusDeferred:
		return next == DeliveryStatusDispatched || next == DeliveryStatusPending || next == DeliveryStatusDeferred
	case DeliveryStatusDispatched:
		return next == DeliveryStatusDelivered ||
			next == DeliveryStatusRetryScheduled ||
			next == DeliveryStatusFailedPermanent
	case DeliveryStatusRetryScheduled:
		return next == DeliveryStatusDispatched || next == DeliveryStatusFailedPermanent
	}
	return false
}

// DeliveryRecord tracks delivery of one intent on one channel.
// All mutable pipeline progress lives here so a restart can resume it.
type DeliveryRecord struct {
	ID          string         `json:"id"`
	IntentKey   IntentKey      `json:"intent_key"`
	UserID      string         `json:"user_id"`
	Channel     Channel        `json:"channel"`
	Target      string         `json:"target"`
	Subject     string         `json:"subject"`
	Body        string         `json:"body"`
	Priority    IntentPriority `json:"priority"`
	Status      DeliveryStatus `json:"status"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"max_attempts"`
	// MaxPerWindow and WindowDuration snapshot the preference frequency
	// cap at dispatch time, so deferred records keep the user's own cap
	// when the preference row is no longer at hand. Zero means platform
	// default.
	MaxPerWindow   int           `json:"max_per_window,omitempty"`
	WindowDuration time.Duration `json:"window_duration,omitempty"`
	NextAttemptAt  time.Time     `json:"next_attempt_at"`
	LastError      string        `json:"last_error,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	DeliveredAt    *time.Time    `json:"delivered_at,omitempty"`
}
