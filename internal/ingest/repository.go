// Package ingest validates and normalizes inbound opportunity events.
package ingest

import (
	"context"
	"time"

	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/domain"
)

// Repository defines the interface for opportunity event storage.
// The events table is append-only; superseding updates arrive as new versions.
type Repository interface {
	// InsertEvent stores an event. Returns false when the same
	// (source, id, version) has already been ingested.
	InsertEvent(ctx context.Context, event *domain.OpportunityEvent) (bool, error)

	// DeleteEventsBefore removes events ingested before the cutoff.
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
