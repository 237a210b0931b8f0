package match

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/domain"
)

func testMatcher() *Matcher {
	m := NewMatcher(Config{
		Workers:           2,
		DefaultLeadTime:   7 * 24 * time.Hour,
		ImminentThreshold: 72 * time.Hour,
	})
	m.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return m
}

func jobEvent(id string, skills []string, location string) *domain.OpportunityEvent {
	return &domain.OpportunityEvent{
		Key:      domain.EventKey{Source: "portal", ID: id, Version: 1},
		Kind:     domain.EventKindJob,
		Title:    "Opportunity " + id,
		Skills:   skills,
		Location: location,
	}
}

func certEvent(id string, deadline time.Time) *domain.OpportunityEvent {
	return &domain.OpportunityEvent{
		Key:      domain.EventKey{Source: "certs", ID: id, Version: 1},
		Kind:     domain.EventKindCertificationDeadline,
		Title:    "Certification " + id,
		Deadline: &deadline,
	}
}

func activePref(userID string, skills []string, location string) domain.UserPreference {
	return domain.UserPreference{
		UserID:   userID,
		Skills:   skills,
		Location: location,
		Active:   true,
	}
}

func TestMatcher_SkillsAndLocation(t *testing.T) {
	m := testMatcher()

	tests := []struct {
		name      string
		event     *domain.OpportunityEvent
		pref      domain.UserPreference
		wantMatch bool
		wantTags  []string
	}{
		{
			name:      "skill overlap matches",
			event:     jobEvent("1", []string{"python", "sql"}, ""),
			pref:      activePref("u-1", []string{"sql", "java"}, ""),
			wantMatch: true,
			wantTags:  []string{ReasonSkills},
		},
		{
			name:      "no skill overlap",
			event:     jobEvent("2", []string{"python"}, ""),
			pref:      activePref("u-1", []string{"java"}, ""),
			wantMatch: false,
		},
		{
			name:      "location must match exactly when set",
			event:     jobEvent("3", []string{"python"}, "pune"),
			pref:      activePref("u-1", []string{"python"}, "mumbai"),
			wantMatch: false,
		},
		{
			name:      "empty preference location accepts any",
			event:     jobEvent("4", []string{"python"}, "pune"),
			pref:      activePref("u-1", []string{"python"}, ""),
			wantMatch: true,
			wantTags:  []string{ReasonSkills},
		},
		{
			name:      "skills and location both matched",
			event:     jobEvent("5", []string{"python"}, "pune"),
			pref:      activePref("u-1", []string{"python"}, "pune"),
			wantMatch: true,
			wantTags:  []string{ReasonSkills, ReasonLocation},
		},
		{
			name:      "event without skills skips skill check",
			event:     jobEvent("6", nil, "pune"),
			pref:      activePref("u-1", []string{"python"}, "pune"),
			wantMatch: true,
			wantTags:  []string{ReasonLocation},
		},
		{
			name:      "nothing positively matched",
			event:     jobEvent("7", nil, "pune"),
			pref:      activePref("u-1", nil, ""),
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intents := m.Match(context.Background(),
				[]*domain.OpportunityEvent{tt.event},
				[]domain.UserPreference{tt.pref},
			)

			if !tt.wantMatch {
				assert.Empty(t, intents)
				return
			}

			require.Len(t, intents, 1)
			assert.Equal(t, tt.pref.UserID, intents[0].Key.UserID)
			assert.Equal(t, tt.event.Key, intents[0].Key.Event)
			assert.Equal(t, tt.wantTags, intents[0].ReasonTags)
			assert.Equal(t, domain.PriorityNormal, intents[0].Priority)
		})
	}
}

func TestMatcher_MixedCasePreferenceAtoms(t *testing.T) {
	m := testMatcher()

	// Events arrive case folded from ingestion; preference rows are
	// written by the profile service and may carry any casing.
	tests := []struct {
		name     string
		pref     domain.UserPreference
		wantTags []string
	}{
		{
			name:     "mixed-case skills and location",
			pref:     activePref("u-1", []string{"Python", "Go"}, "Bengaluru"),
			wantTags: []string{ReasonSkills, ReasonLocation},
		},
		{
			name:     "upper-case skill only",
			pref:     activePref("u-1", []string{"PYTHON"}, ""),
			wantTags: []string{ReasonSkills},
		},
		{
			name:     "padded location only",
			pref:     activePref("u-1", nil, " Bengaluru "),
			wantTags: []string{ReasonLocation},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intents := m.Match(context.Background(),
				[]*domain.OpportunityEvent{jobEvent("1", []string{"python", "sql"}, "bengaluru")},
				[]domain.UserPreference{tt.pref},
			)

			require.Len(t, intents, 1)
			assert.Equal(t, tt.wantTags, intents[0].ReasonTags)
		})
	}
}

func TestMatcher_KindFilter(t *testing.T) {
	m := testMatcher()

	pref := activePref("u-1", []string{"python"}, "")
	pref.Kinds = []domain.EventKind{domain.EventKindInternship}

	intents := m.Match(context.Background(),
		[]*domain.OpportunityEvent{jobEvent("1", []string{"python"}, "")},
		[]domain.UserPreference{pref},
	)
	assert.Empty(t, intents)

	internship := jobEvent("2", []string{"python"}, "")
	internship.Kind = domain.EventKindInternship

	intents = m.Match(context.Background(),
		[]*domain.OpportunityEvent{internship},
		[]domain.UserPreference{pref},
	)
	require.Len(t, intents, 1)
	assert.Equal(t, []string{ReasonKind, ReasonSkills}, intents[0].ReasonTags)
}

func TestMatcher_CertificationDeadline(t *testing.T) {
	m := testMatcher()
	now := m.now()

	pref := activePref("u-1", nil, "")
	pref.Kinds = []domain.EventKind{domain.EventKindCertificationDeadline}

	tests := []struct {
		name         string
		deadline     time.Time
		wantMatch    bool
		wantPriority domain.IntentPriority
		wantTag      string
	}{
		{
			name:         "within lead time",
			deadline:     now.Add(5 * 24 * time.Hour),
			wantMatch:    true,
			wantPriority: domain.PriorityNormal,
			wantTag:      ReasonDeadline,
		},
		{
			name:         "imminent deadline is high priority",
			deadline:     now.Add(48 * time.Hour),
			wantMatch:    true,
			wantPriority: domain.PriorityHigh,
			wantTag:      ReasonDeadlineImminent,
		},
		{
			name:      "beyond lead time",
			deadline:  now.Add(10 * 24 * time.Hour),
			wantMatch: false,
		},
		{
			name:      "already past",
			deadline:  now.Add(-time.Hour),
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intents := m.Match(context.Background(),
				[]*domain.OpportunityEvent{certEvent("c1", tt.deadline)},
				[]domain.UserPreference{pref},
			)

			if !tt.wantMatch {
				assert.Empty(t, intents)
				return
			}

			require.Len(t, intents, 1)
			assert.Equal(t, tt.wantPriority, intents[0].Priority)
			assert.Contains(t, intents[0].ReasonTags, tt.wantTag)
		})
	}
}

func TestMatcher_PreferenceLeadTimeOverride(t *testing.T) {
	m := testMatcher()
	now := m.now()

	pref := activePref("u-1", nil, "")
	pref.Kinds = []domain.EventKind{domain.EventKindCertificationDeadline}
	pref.LeadTime = 14 * 24 * time.Hour

	// Ten days out is beyond the platform default but inside the
	// preference's own window.
	intents := m.Match(context.Background(),
		[]*domain.OpportunityEvent{certEvent("c1", now.Add(10*24*time.Hour))},
		[]domain.UserPreference{pref},
	)
	require.Len(t, intents, 1)
	assert.Equal(t, domain.PriorityNormal, intents[0].Priority)
}

func TestMatcher_InactivePreferenceSkipped(t *testing.T) {
	m := testMatcher()

	pref := activePref("u-1", []string{"python"}, "")
	pref.Active = false

	intents := m.Match(context.Background(),
		[]*domain.OpportunityEvent{jobEvent("1", []string{"python"}, "")},
		[]domain.UserPreference{pref},
	)
	assert.Empty(t, intents)
}

func TestMatcher_OneIntentPerUserEventPair(t *testing.T) {
	m := testMatcher()

	event := jobEvent("1", []string{"python"}, "pune")
	prefs := []domain.UserPreference{
		activePref("u-1", []string{"python"}, "pune"),
		activePref("u-2", []string{"python"}, ""),
		activePref("u-3", []string{"java"}, ""),
	}

	intents := m.Match(context.Background(), []*domain.OpportunityEvent{event}, prefs)
	require.Len(t, intents, 2)

	users := map[string]bool{}
	for _, intent := range intents {
		users[intent.Key.UserID] = true
	}
	assert.True(t, users["u-1"])
	assert.True(t, users["u-2"])
	assert.False(t, users["u-3"])
}

func TestMatcher_MalformedEventSkipped(t *testing.T) {
	m := testMatcher()

	pref := activePref("u-1", nil, "")
	pref.Kinds = []domain.EventKind{domain.EventKindCertificationDeadline}

	// Certification event without a deadline never matches but must not
	// abort the pass for the well-formed event alongside it.
	broken := &domain.OpportunityEvent{
		Key:  domain.EventKey{Source: "certs", ID: "broken", Version: 1},
		Kind: domain.EventKindCertificationDeadline,
	}
	good := certEvent("good", m.now().Add(24*time.Hour))

	intents := m.Match(context.Background(),
		[]*domain.OpportunityEvent{broken, good},
		[]domain.UserPreference{pref},
	)
	require.Len(t, intents, 1)
	assert.Equal(t, "good", intents[0].Key.Event.ID)
}

func TestMatcher_EmptyInputs(t *testing.T) {
	m := testMatcher()

	assert.Nil(t, m.Match(context.Background(), nil, []domain.UserPreference{activePref("u-1", nil, "")}))
	assert.Nil(t, m.Match(context.Background(), []*domain.OpportunityEvent{jobEvent("1", nil, "")}, nil))
}
