// Package match evaluates opportunity events against user subscription
// criteria, producing notification intents.
package match

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"

	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/domain"
)

// Reason tags carried on intents to record which criteria matched.
const (
	ReasonSkills           = "skills"
	ReasonLocation         = "location"
	ReasonKind             = "kind"
	ReasonDeadline         = "deadline"
	ReasonDeadlineImminent = "deadline_imminent"
)

// Config contains matcher configuration.
type Config struct {
	// Workers is the number of concurrent match goroutines per pass.
	Workers int
	// DefaultLeadTime applies when a preference has no lead time set.
	DefaultLeadTime time.Duration
	// ImminentThreshold marks deadlines close enough for high priority.
	ImminentThreshold time.Duration
}

// DefaultConfig returns default matcher configuration.
func DefaultConfig() Config {
	return Config{
		Workers:           4,
		DefaultLeadTime:   7 * 24 * time.Hour,
		ImminentThreshold: 72 * time.Hour,
	}
}

// Matcher evaluates events against a read-only preference snapshot.
// Matching never mutates preference state, so events are evaluated
// in parallel.
type Matcher struct {
	config Config
	now    func() time.Time
}

// NewMatcher creates a new matcher.
func NewMatcher(config Config) *Matcher {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	return &Matcher{config: config, now: time.Now}
}

// Match evaluates each event against the active preference set and
// returns one intent per matching (user, event) pair. An unexpected data
// shape in a single event is logged and skipped without aborting the pass.
func (m *Matcher) Match(ctx context.Context, events []*domain.OpportunityEvent, prefs []domain.UserPreference) []*domain.NotificationIntent {
	if len(events) == 0 || len(prefs) == 0 {
		return nil
	}

	prefs = foldPreferences(prefs)

	eventCh := make(chan *domain.OpportunityEvent)

	var (
		mu      sync.Mutex
		intents []*domain.NotificationIntent
		wg      sync.WaitGroup
	)

	for i := 0; i < m.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for event := range eventCh {
				matched, err := m.matchEvent(event, prefs)
				if err != nil {
					slog.Error("event skipped during matching", "event", event.Key, "error", err)
					continue
				}
				if len(matched) == 0 {
					continue
				}
				mu.Lock()
				intents = append(intents, matched...)
				mu.Unlock()
			}
		}()
	}

	for _, event := range events {
		select {
		case <-ctx.Done():
			close(eventCh)
			wg.Wait()
			return intents
		case eventCh <- event:
		}
	}
	close(eventCh)
	wg.Wait()

	recordMatched(len(intents))
	return intents
}

// matchEvent evaluates one event against every preference. A panic during
// criteria evaluation is converted into an error for the caller to log.
func (m *Matcher) matchEvent(event *domain.OpportunityEvent, prefs []domain.UserPreference) (intents []*domain.NotificationIntent, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("matching panic: %v", r)
		}
	}()

	now := m.now()
	for i := range prefs {
		pref := &prefs[i]
		if !pref.Active {
			continue
		}
		tags, priority, ok := m.evaluate(event, pref, now)
		if !ok {
			continue
		}
		intents = append(intents, &domain.NotificationIntent{
			Key: domain.IntentKey{
				UserID: pref.UserID,
				Event:  event.Key,
			},
			Event:      event,
			ReasonTags: tags,
			Priority:   priority,
			CreatedAt:  now,
		})
	}
	return intents, nil
}

// evaluate applies the matching predicate: skill intersection (when the
// event specifies skills), location filter, kind filter and, for
// certification deadlines, the lead-time window. All reason tags for the
// pair are collected onto the single resulting intent.
func (m *Matcher) evaluate(event *domain.OpportunityEvent, pref *domain.UserPreference, now time.Time) ([]string, domain.IntentPriority, bool) {
	var tags []string

	if !pref.WantsKind(event.Kind) {
		return nil, "", false
	}
	if len(pref.Kinds) > 0 {
		tags = append(tags, ReasonKind)
	}

	if event.HasSkills() && len(pref.Skills) > 0 {
		if !skillsIntersect(event.Skills, pref.Skills) {
			return nil, "", false
		}
		tags = append(tags, ReasonSkills)
	}

	if pref.Location != "" {
		if event.Location != pref.Location {
			return nil, "", false
		}
		tags = append(tags, ReasonLocation)
	}

	priority := domain.PriorityNormal
	if event.Kind == domain.EventKindCertificationDeadline {
		if event.Deadline == nil {
			return nil, "", false
		}
		leadTime := pref.LeadTime
		if leadTime <= 0 {
			leadTime = m.config.DefaultLeadTime
		}
		until := event.Deadline.Sub(now)
		if until <= 0 || until > leadTime {
			return nil, "", false
		}
		if until <= m.config.ImminentThreshold {
			priority = domain.PriorityHigh
			tags = append(tags, ReasonDeadlineImminent)
		} else {
			tags = append(tags, ReasonDeadline)
		}
	}

	if len(tags) == 0 {
		// Nothing positively matched; an unconstrained preference does
		// not subscribe a user to every event.
		return nil, "", false
	}

	return tags, priority, true
}

// foldPreferences canonicalizes preference skills and locations with
// the same caser ingestion applies to event atoms, so matching stays
// case insensitive no matter how the profile service stored them. The
// input slice is left untouched; a fresh caser per pass keeps the
// stateful Caser off shared goroutines.
func foldPreferences(prefs []domain.UserPreference) []domain.UserPreference {
	folder := cases.Fold()
	out := make([]domain.UserPreference, len(prefs))
	for i, pref := range prefs {
		if len(pref.Skills) > 0 {
			skills := make([]string, len(pref.Skills))
			for j, skill := range pref.Skills {
				skills[j] = folder.String(strings.TrimSpace(skill))
			}
			pref.Skills = skills
		}
		pref.Location = folder.String(strings.TrimSpace(pref.Location))
		out[i] = pref
	}
	return out
}

func skillsIntersect(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if set[s] {
			return true
		}
	}
	return false
}
