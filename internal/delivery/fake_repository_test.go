package delivery

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/domain"
)

// fakeRepository is an in-memory Repository with the same compare-and-set
// semantics as the real store.
type fakeRepository struct {
	mu      sync.Mutex
	records map[string]*domain.DeliveryRecord
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{records: make(map[string]*domain.DeliveryRecord)}
}

func (r *fakeRepository) get(id string) *domain.DeliveryRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok {
		clone := *rec
		return &clone
	}
	return nil
}

func (r *fakeRepository) CreateRecords(_ context.Context, records []*domain.DeliveryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		clone := *rec
		r.records[rec.ID] = &clone
	}
	return nil
}

func (r *fakeRepository) GetRecord(_ context.Context, id string) (*domain.DeliveryRecord, error) {
	rec := r.get(id)
	if rec == nil {
		return nil, ErrRecordNotFound
	}
	return rec, nil
}

func (r *fakeRepository) MarkDispatched(_ context.Context, id string, expected domain.DeliveryStatus) (*domain.DeliveryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	if rec.Status != expected {
		return nil, ErrStaleStatus
	}
	rec.Status = domain.DeliveryStatusDispatched
	rec.Attempts++
	clone := *rec
	return &clone, nil
}

func (r *fakeRepository) MarkDelivered(_ context.Context, id string, at time.Time) error {
	return r.transition(id, domain.DeliveryStatusDelivered, func(rec *domain.DeliveryRecord) bool {
		if rec.Status != domain.DeliveryStatusDispatched {
			return false
		}
		rec.DeliveredAt = &at
		rec.LastError = ""
		return true
	})
}

func (r *fakeRepository) MarkRetryScheduled(_ context.Context, id string, nextAttempt time.Time, lastError string) error {
	return r.transition(id, domain.DeliveryStatusRetryScheduled, func(rec *domain.DeliveryRecord) bool {
		if rec.Status != domain.DeliveryStatusDispatched {
			return false
		}
		rec.NextAttemptAt = nextAttempt
		rec.LastError = lastError
		return true
	})
}

func (r *fakeRepository) MarkFailedPermanent(_ context.Context, id string, lastError string) error {
	return r.transition(id, domain.DeliveryStatusFailedPermanent, func(rec *domain.DeliveryRecord) bool {
		if rec.Status != domain.DeliveryStatusDispatched && rec.Status != domain.DeliveryStatusRetryScheduled {
			return false
		}
		rec.LastError = lastError
		return true
	})
}

func (r *fakeRepository) Requeue(_ context.Context, id string, status domain.DeliveryStatus, at time.Time) error {
	return r.transition(id, status, func(rec *domain.DeliveryRecord) bool {
		if rec.Status != domain.DeliveryStatusPending && rec.Status != domain.DeliveryStatusDeferred {
			return false
		}
		rec.NextAttemptAt = at
		return true
	})
}

func (r *fakeRepository) transition(id string, to domain.DeliveryStatus, apply func(*domain.DeliveryRecord) bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	if !apply(rec) {
		return ErrStaleStatus
	}
	rec.Status = to
	return nil
}

func (r *fakeRepository) FetchDue(_ context.Context, now time.Time, limit int) ([]*domain.DeliveryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*domain.DeliveryRecord
	for _, rec := range r.records {
		switch rec.Status {
		case domain.DeliveryStatusPending, domain.DeliveryStatusDeferred, domain.DeliveryStatusRetryScheduled:
			if !rec.NextAttemptAt.After(now) {
				clone := *rec
				due = append(due, &clone)
			}
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *fakeRepository) ListRecords(_ context.Context, status domain.DeliveryStatus, userID string, limit int) ([]*domain.DeliveryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.DeliveryRecord
	for _, rec := range r.records {
		if rec.Status != status {
			continue
		}
		if userID != "" && rec.UserID != userID {
			continue
		}
		clone := *rec
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRepository) GetQueueStats(_ context.Context) (*QueueStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := &QueueStats{}
	for _, rec := range r.records {
		switch rec.Status {
		case domain.DeliveryStatusPending:
			stats.Pending++
		case domain.DeliveryStatusDeferred:
			stats.Deferred++
		case domain.DeliveryStatusDispatched:
			stats.Dispatched++
		case domain.DeliveryStatusDelivered:
			stats.Delivered++
		case domain.DeliveryStatusRetryScheduled:
			stats.RetryScheduled++
		case domain.DeliveryStatusFailedPermanent:
			stats.FailedPermanent++
		}
	}
	return stats, nil
}
