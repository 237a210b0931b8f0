package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/domain"
)

// Dispatcher fans out surviving intents into delivery records, one per
// channel in the user's configured order, and enqueues them onto
// per-channel bounded queues. One queue per channel type isolates slow
// channels from each other; a full queue defers to the durable store
// instead of dropping.
type Dispatcher struct {
	repo        Repository
	cache       *IntentCache
	limiter     *WindowLimiter
	queues      map[domain.Channel]chan *domain.DeliveryRecord
	maxAttempts int
	now         func() time.Time
}

// NewDispatcher creates a dispatcher with one bounded queue per channel.
func NewDispatcher(repo Repository, cache *IntentCache, limiter *WindowLimiter, channels []domain.Channel, queueSize, maxAttempts int) *Dispatcher {
	queues := make(map[domain.Channel]chan *domain.DeliveryRecord, len(channels))
	for _, ch := range channels {
		queues[ch] = make(chan *domain.DeliveryRecord, queueSize)
	}
	return &Dispatcher{
		repo:        repo,
		cache:       cache,
		limiter:     limiter,
		queues:      queues,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Queue returns the dispatch queue for a channel. Channel workers
// consume from it.
func (d *Dispatcher) Queue(channel domain.Channel) <-chan *domain.DeliveryRecord {
	return d.queues[channel]
}

// Dispatch processes one intent: dedup, per-channel rate limiting,
// record creation and enqueueing. Records for a rate-limited channel are
// created in deferred state and re-evaluated when the window rolls over.
func (d *Dispatcher) Dispatch(ctx context.Context, intent *domain.NotificationIntent, pref *domain.UserPreference) error {
	if d.cache.Seen(intent.Key) {
		recordDeduped()
		slog.Debug("duplicate intent dropped", "intent", intent.Key)
		return nil
	}

	subject, body := BuildMessage(intent)
	now := d.now()

	records := make([]*domain.DeliveryRecord, 0, len(pref.Channels))
	for _, ct := range pref.Channels {
		if _, ok := d.queues[ct.Channel]; !ok {
			slog.Warn("no queue for channel, skipping", "channel", ct.Channel)
			continue
		}

		record := &domain.DeliveryRecord{
			ID:             uuid.New().String(),
			IntentKey:      intent.Key,
			UserID:         pref.UserID,
			Channel:        ct.Channel,
			Target:         ct.Target,
			Subject:        subject,
			Body:           body,
			Priority:       intent.Priority,
			Status:         domain.DeliveryStatusPending,
			MaxAttempts:    d.maxAttempts,
			MaxPerWindow:   pref.MaxPerWindow,
			WindowDuration: pref.WindowDuration,
			NextAttemptAt:  now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		decision := d.limiter.Reserve(pref.UserID, ct.Channel, intent.Priority, pref.MaxPerWindow, pref.WindowDuration)
		if !decision.Allow {
			record.Status = domain.DeliveryStatusDeferred
			record.NextAttemptAt = decision.RetryAt
			recordRateLimited(string(ct.Channel))
			slog.Debug("intent deferred by rate limit",
				"intent", intent.Key,
				"channel", ct.Channel,
				"retry_at", decision.RetryAt,
			)
		}

		records = append(records, record)
	}

	if len(records) == 0 {
		return nil
	}

	if err := d.repo.CreateRecords(ctx, records); err != nil {
		return fmt.Errorf("create delivery records: %w", err)
	}

	for _, record := range records {
		if record.Status != domain.DeliveryStatusPending {
			continue
		}
		d.enqueue(ctx, record)
	}

	return nil
}

// Redispatch puts a due record back onto its channel queue. Deferred
// records re-run the rate limiter first; a still-full window pushes the
// record to the next boundary. A reservation granted for a record that
// then cannot be queued is released, so polls against a saturated queue
// never consume window budget.
func (d *Dispatcher) Redispatch(ctx context.Context, record *domain.DeliveryRecord) error {
	if record.Status == domain.DeliveryStatusDeferred {
		decision := d.limiter.Reserve(record.UserID, record.Channel, record.Priority,
			record.MaxPerWindow, record.WindowDuration)
		if !decision.Allow {
			return d.repo.Requeue(ctx, record.ID, domain.DeliveryStatusDeferred, decision.RetryAt)
		}
		if !d.enqueue(ctx, record) {
			d.limiter.Release(record.UserID, record.Channel, decision.Override)
		}
		return nil
	}

	d.enqueue(ctx, record)
	return nil
}

// enqueue places a record on its channel queue without blocking the
// pipeline pass. A full queue is backpressure: the record stays due in
// the store and the scheduler re-offers it once capacity frees.
func (d *Dispatcher) enqueue(ctx context.Context, record *domain.DeliveryRecord) bool {
	queue := d.queues[record.Channel]

	select {
	case queue <- record:
		recordQueueDepth(string(record.Channel), len(queue))
		return true
	case <-ctx.Done():
		return false
	default:
		slog.Debug("channel queue full, leaving record for scheduler",
			"record_id", record.ID,
			"channel", record.Channel,
		)
		return false
	}
}

// Channels returns the channels this dispatcher serves.
func (d *Dispatcher) Channels() []domain.Channel {
	channels := make([]domain.Channel, 0, len(d.queues))
	for ch := range d.queues {
		channels = append(channels, ch)
	}
	return channels
}
