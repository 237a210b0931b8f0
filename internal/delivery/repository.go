package delivery

import (
	"context"
	"time"

	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/domain"
)

// Repository defines the interface for delivery record storage. All
// status transitions use compare-and-set semantics so concurrent workers
// never regress a record or lose an update.
type Repository interface {
	// CreateRecords persists new delivery records.
	CreateRecords(ctx context.Context, records []*domain.DeliveryRecord) error

	// GetRecord retrieves a record by ID.
	GetRecord(ctx context.Context, id string) (*domain.DeliveryRecord, error)

	// MarkDispatched transitions a record from its expected status to
	// dispatched and increments the attempt counter. Returns the updated
	// record, or ErrStaleStatus if the expected status no longer holds.
	MarkDispatched(ctx context.Context, id string, expected domain.DeliveryStatus) (*domain.DeliveryRecord, error)

	// MarkDelivered records terminal success with a delivery timestamp.
	MarkDelivered(ctx context.Context, id string, at time.Time) error

	// MarkRetryScheduled schedules a retry after a transient failure.
	MarkRetryScheduled(ctx context.Context, id string, nextAttempt time.Time, lastError string) error

	// MarkFailedPermanent records terminal failure.
	MarkFailedPermanent(ctx context.Context, id string, lastError string) error

	// Requeue returns a record to pending so the scheduler re-evaluates
	// it at the given time. Used for deferred and backpressured records.
	Requeue(ctx context.Context, id string, status domain.DeliveryStatus, at time.Time) error

	// FetchDue returns non-terminal records whose next attempt time has
	// elapsed, ordered by creation time so per-(user, channel) ordering
	// is preserved.
	FetchDue(ctx context.Context, now time.Time, limit int) ([]*domain.DeliveryRecord, error)

	// ListRecords returns records filtered by status and optionally user.
	ListRecords(ctx context.Context, status domain.DeliveryStatus, userID string, limit int) ([]*domain.DeliveryRecord, error)

	// GetQueueStats returns record counts by status.
	GetQueueStats(ctx context.Context) (*QueueStats, error)
}

// QueueStats holds delivery record counts by status.
type QueueStats struct {
	Pending         int64
	Deferred        int64
	Dispatched      int64
	Delivered       int64
	RetryScheduled  int64
	FailedPermanent int64
}
