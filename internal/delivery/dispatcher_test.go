package delivery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/domain"
)

func testDispatcher(repo Repository, queueSize int) *Dispatcher {
	cache := NewIntentCache(time.Hour)
	limiter := NewWindowLimiter(LimiterDefaults{
		MaxPerWindow:       5,
		Window:             24 * time.Hour,
		OverridesPerWindow: 1,
	})
	channels := []domain.Channel{domain.ChannelEmail, domain.ChannelSMS, domain.ChannelPush}
	return NewDispatcher(repo, cache, limiter, channels, queueSize, 6)
}

func testIntent(userID, eventID string) *domain.NotificationIntent {
	return &domain.NotificationIntent{
		Key: domain.IntentKey{
			UserID: userID,
			Event:  domain.EventKey{Source: "portal", ID: eventID, Version: 1},
		},
		Event: &domain.OpportunityEvent{
			Key:    domain.EventKey{Source: "portal", ID: eventID, Version: 1},
			Kind:   domain.EventKindJob,
			Title:  "Backend Engineer",
			Skills: []string{"go"},
		},
		ReasonTags: []string{"skills"},
		Priority:   domain.PriorityNormal,
		CreatedAt:  time.Now(),
	}
}

func testPref(userID string, channels ...domain.ChannelTarget) *domain.UserPreference {
	return &domain.UserPreference{
		UserID:   userID,
		Channels: channels,
		Active:   true,
	}
}

func TestDispatcher_FanOutPerChannel(t *testing.T) {
	repo := newFakeRepository()
	d := testDispatcher(repo, 16)

	pref := testPref("u-1",
		domain.ChannelTarget{Channel: domain.ChannelEmail, Target: "u1@example.com"},
		domain.ChannelTarget{Channel: domain.ChannelSMS, Target: "+911234567890"},
	)

	err := d.Dispatch(context.Background(), testIntent("u-1", "e-1"), pref)
	require.NoError(t, err)

	// One record per configured channel, each on its own queue.
	require.Len(t, d.Queue(domain.ChannelEmail), 1)
	require.Len(t, d.Queue(domain.ChannelSMS), 1)
	assert.Empty(t, d.Queue(domain.ChannelPush))

	emailRec := <-d.queues[domain.ChannelEmail]
	assert.Equal(t, domain.DeliveryStatusPending, emailRec.Status)
	assert.Equal(t, "u1@example.com", emailRec.Target)
	assert.Equal(t, 6, emailRec.MaxAttempts)
	assert.NotEmpty(t, emailRec.Subject)
	assert.NotEmpty(t, emailRec.Body)

	// Records are durable before they are enqueued.
	stats, err := repo.GetQueueStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Pending)
}

func TestDispatcher_DuplicateIntentDropped(t *testing.T) {
	repo := newFakeRepository()
	d := testDispatcher(repo, 16)

	pref := testPref("u-1", domain.ChannelTarget{Channel: domain.ChannelEmail, Target: "u1@example.com"})

	require.NoError(t, d.Dispatch(context.Background(), testIntent("u-1", "e-1"), pref))
	require.NoError(t, d.Dispatch(context.Background(), testIntent("u-1", "e-1"), pref))

	assert.Len(t, d.Queue(domain.ChannelEmail), 1)

	stats, err := repo.GetQueueStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending)
}

func TestDispatcher_RateLimitedIntentDeferred(t *testing.T) {
	repo := newFakeRepository()
	d := testDispatcher(repo, 16)

	pref := testPref("u-1", domain.ChannelTarget{Channel: domain.ChannelEmail, Target: "u1@example.com"})
	pref.MaxPerWindow = 1
	pref.WindowDuration = time.Hour

	require.NoError(t, d.Dispatch(context.Background(), testIntent("u-1", "e-1"), pref))
	require.NoError(t, d.Dispatch(context.Background(), testIntent("u-1", "e-2"), pref))

	// Only the first intent reaches the queue; the second is deferred,
	// not dropped.
	assert.Len(t, d.Queue(domain.ChannelEmail), 1)

	stats, err := repo.GetQueueStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(1), stats.Deferred)

	deferred, err := repo.ListRecords(context.Background(), domain.DeliveryStatusDeferred, "u-1", 10)
	require.NoError(t, err)
	require.Len(t, deferred, 1)
	assert.True(t, deferred[0].NextAttemptAt.After(time.Now()), "deferred record waits for the window to roll over")
}

func TestDispatcher_UnknownChannelSkipped(t *testing.T) {
	repo := newFakeRepository()
	d := NewDispatcher(repo, NewIntentCache(time.Hour), NewWindowLimiter(LimiterDefaults{MaxPerWindow: 5, Window: time.Hour}),
		[]domain.Channel{domain.ChannelEmail}, 16, 6)

	pref := testPref("u-1",
		domain.ChannelTarget{Channel: domain.ChannelEmail, Target: "u1@example.com"},
		domain.ChannelTarget{Channel: domain.ChannelPush, Target: "token"},
	)

	require.NoError(t, d.Dispatch(context.Background(), testIntent("u-1", "e-1"), pref))

	stats, err := repo.GetQueueStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending)
}

func TestDispatcher_FullQueueLeavesRecordForScheduler(t *testing.T) {
	repo := newFakeRepository()
	d := testDispatcher(repo, 1)

	pref := testPref("u-1", domain.ChannelTarget{Channel: domain.ChannelEmail, Target: "u1@example.com"})

	require.NoError(t, d.Dispatch(context.Background(), testIntent("u-1", "e-1"), pref))
	require.NoError(t, d.Dispatch(context.Background(), testIntent("u-1", "e-2"), pref))

	// The queue holds one record; the overflow record stays pending and
	// due so the scheduler re-offers it.
	assert.Len(t, d.Queue(domain.ChannelEmail), 1)

	due, err := repo.FetchDue(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	assert.Len(t, due, 2)
}

func TestDispatcher_RedispatchDeferredReRunsLimiter(t *testing.T) {
	repo := newFakeRepository()

	cache := NewIntentCache(time.Hour)
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewWindowLimiter(LimiterDefaults{MaxPerWindow: 1, Window: time.Hour})
	limiter.now = func() time.Time { return current }

	d := NewDispatcher(repo, cache, limiter, []domain.Channel{domain.ChannelEmail}, 16, 6)

	record := &domain.DeliveryRecord{
		ID:            "rec-1",
		UserID:        "u-1",
		Channel:       domain.ChannelEmail,
		Status:        domain.DeliveryStatusDeferred,
		NextAttemptAt: current,
		CreatedAt:     current,
	}
	require.NoError(t, repo.CreateRecords(context.Background(), []*domain.DeliveryRecord{record}))

	// Window still full: the record is pushed to the next boundary.
	limiter.Reserve("u-1", domain.ChannelEmail, domain.PriorityNormal, 0, 0)
	require.NoError(t, d.Redispatch(context.Background(), record))
	assert.Empty(t, d.Queue(domain.ChannelEmail))

	stored := repo.get("rec-1")
	assert.Equal(t, domain.DeliveryStatusDeferred, stored.Status)
	assert.Equal(t, current.Add(time.Hour), stored.NextAttemptAt)

	// After the rollover the record is enqueued.
	current = current.Add(2 * time.Hour)
	require.NoError(t, d.Redispatch(context.Background(), record))
	assert.Len(t, d.Queue(domain.ChannelEmail), 1)
}

func TestDispatcher_RedispatchFullQueueReleasesReservation(t *testing.T) {
	repo := newFakeRepository()

	cache := NewIntentCache(time.Hour)
	limiter := NewWindowLimiter(LimiterDefaults{MaxPerWindow: 1, Window: time.Hour})
	d := NewDispatcher(repo, cache, limiter, []domain.Channel{domain.ChannelEmail}, 1, 6)

	// Saturate the channel queue so the deferred record cannot be offered.
	blocker := &domain.DeliveryRecord{ID: "rec-0", UserID: "u-0", Channel: domain.ChannelEmail}
	require.True(t, d.enqueue(context.Background(), blocker))

	record := &domain.DeliveryRecord{
		ID:      "rec-1",
		UserID:  "u-1",
		Channel: domain.ChannelEmail,
		Status:  domain.DeliveryStatusDeferred,
	}
	require.NoError(t, repo.CreateRecords(context.Background(), []*domain.DeliveryRecord{record}))

	require.NoError(t, d.Redispatch(context.Background(), record))
	assert.Len(t, d.Queue(domain.ChannelEmail), 1)
	assert.Equal(t, domain.DeliveryStatusDeferred, repo.get("rec-1").Status)

	// The failed offer must not consume window budget: with a cap of
	// one, the user's next send still goes through.
	decision := limiter.Reserve("u-1", domain.ChannelEmail, domain.PriorityNormal, 0, 0)
	assert.True(t, decision.Allow)
}

func TestDispatcher_RedispatchUsesRecordWindowCap(t *testing.T) {
	repo := newFakeRepository()

	cache := NewIntentCache(time.Hour)
	limiter := NewWindowLimiter(LimiterDefaults{MaxPerWindow: 1, Window: time.Hour})
	d := NewDispatcher(repo, cache, limiter, []domain.Channel{domain.ChannelEmail}, 16, 6)

	// One send already counted this window. The platform default of one
	// would defer again, but the record carries the preference cap it
	// was dispatched under.
	limiter.Reserve("u-1", domain.ChannelEmail, domain.PriorityNormal, 2, time.Hour)

	record := &domain.DeliveryRecord{
		ID:             "rec-1",
		UserID:         "u-1",
		Channel:        domain.ChannelEmail,
		Status:         domain.DeliveryStatusDeferred,
		MaxPerWindow:   2,
		WindowDuration: time.Hour,
	}
	require.NoError(t, repo.CreateRecords(context.Background(), []*domain.DeliveryRecord{record}))

	require.NoError(t, d.Redispatch(context.Background(), record))
	assert.Len(t, d.Queue(domain.ChannelEmail), 1)
}
