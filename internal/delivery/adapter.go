// Package delivery dispatches notification intents onto per-channel
// queues and tracks delivery outcomes with durable retry.
package delivery

import (
	"context"

	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/domain"
)

// Outcome is the four-way result of a delivery attempt. The dispatcher
// interprets only this classification; channel internals stay behind
// the adapter.
type Outcome string

// Delivery outcomes.
const (
	OutcomeDelivered        Outcome = "delivered"
	OutcomeTransientFailure Outcome = "transient_failure"
	OutcomePermanentFailure Outcome = "permanent_failure"
	OutcomeThrottled        Outcome = "throttled"
)

// Adapter is the capability contract for a delivery channel. Adapters
// perform the actual external send and should pass a provider message id
// where the provider supports idempotent sends.
type Adapter interface {
	// Channel returns the channel this adapter serves.
	Channel() domain.Channel

	// AttemptDelivery performs one delivery attempt. The returned error
	// carries detail for the delivery record; the outcome alone decides
	// the state transition.
	AttemptDelivery(ctx context.Context, record *domain.DeliveryRecord) (Outcome, error)
}
