package delivery

import (
	"sync"
	"time"

	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/domain"
)

// LimiterDefaults hold the platform frequency caps applied when a
// preference carries no configuration of its own.
type LimiterDefaults struct {
	MaxPerWindow       int
	Window             time.Duration
	OverridesPerWindow int
}

// Decision is the rate limiter verdict for one intent on one channel.
// Deferred intents are requeued for the next window, never dropped.
type Decision struct {
	Allow bool
	// RetryAt is when the current window rolls over; only meaningful
	// when Allow is false.
	RetryAt time.Time
	// Override reports that a high-priority intent bypassed the cap.
	Override bool
}

// window tracks one fixed window of counters for a (user, channel) pair.
// Counters only grow within a window and reset at the boundary.
type window struct {
	start     time.Time
	count     int
	overrides int
}

// WindowLimiter enforces per-(user, channel) frequency caps with fixed
// windows. High-priority intents may bypass a full window, capped at a
// configured number of overrides per window to prevent abuse.
type WindowLimiter struct {
	mu       sync.Mutex
	defaults LimiterDefaults
	windows  map[string]*window
	now      func() time.Time
}

// NewWindowLimiter creates a new limiter with platform defaults.
func NewWindowLimiter(defaults LimiterDefaults) *WindowLimiter {
	return &WindowLimiter{
		defaults: defaults,
		windows:  make(map[string]*window),
		now:      time.Now,
	}
}

// Reserve decides whether an intent may be dispatched now on the given
// channel. maxPerWindow and windowDur come from the user preference;
// zero values fall back to platform defaults.
func (l *WindowLimiter) Reserve(userID string, channel domain.Channel, priority domain.IntentPriority, maxPerWindow int, windowDur time.Duration) Decision {
	if maxPerWindow <= 0 {
		maxPerWindow = l.defaults.MaxPerWindow
	}
	if windowDur <= 0 {
		windowDur = l.defaults.Window
	}

	key := userID + "/" + string(channel)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.start.Add(windowDur)) {
		w = &window{start: now}
		l.windows[key] = w
	}

	if w.count < maxPerWindow {
		w.count++
		return Decision{Allow: true}
	}

	if priority == domain.PriorityHigh && w.overrides < l.defaults.OverridesPerWindow {
		w.count++
		w.overrides++
		return Decision{Allow: true, Override: true}
	}

	return Decision{RetryAt: w.start.Add(windowDur)}
}

// Release returns a reservation that was never acted on, so a dispatch
// that could not go out does not consume window budget. The override
// flag must match the Decision that granted the reservation.
func (l *WindowLimiter) Release(userID string, channel domain.Channel, override bool) {
	key := userID + "/" + string(channel)

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok {
		return
	}
	if w.count > 0 {
		w.count--
	}
	if override && w.overrides > 0 {
		w.overrides--
	}
}
