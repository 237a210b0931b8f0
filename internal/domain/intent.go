package domain

import (
	"fmt"
	"time"
)

// IntentPriority represents the urgency of a notification intent.
type IntentPriority string

// Intent priorities.
const (
	PriorityNormal IntentPriority = "normal"
	PriorityHigh   IntentPriority = "high"
)

// IntentKey is the natural key of a notification intent. The same
// (user, event version) pair never produces two distinct intents.
type IntentKey struct {
	UserID string   `json:"user_id"`
	Event  EventKey `json:"event"`
}

// String returns the canonical textual form of the key.
func (k IntentKey) String() string {
	return fmt.Sprintf("%s:%s", k.UserID, k.Event)
}

// NotificationIntent is a derived (user, event) match pending delivery.
type NotificationIntent struct {
	Key        IntentKey         `json:"key"`
	Event      *OpportunityEvent `json:"-"`
	ReasonTags []string          `json:"reason_tags"`
	Priority   IntentPriority    `json:"priority"`
	CreatedAt  time.Time         `json:"created_at"`
}
