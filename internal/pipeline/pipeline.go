// Package pipeline runs one pass of the matching and dispatch flow for
// a batch of freshly ingested events.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/delivery"
	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/domain"
	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/match"
	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/preferences"
)

// Pipeline wires the matcher and dispatcher behind the ingestion sink.
type Pipeline struct {
	prefs      preferences.Repository
	matcher    *match.Matcher
	dispatcher *delivery.Dispatcher
	pageSize   int
}

// New creates a new pipeline.
func New(prefs preferences.Repository, matcher *match.Matcher, dispatcher *delivery.Dispatcher, pageSize int) *Pipeline {
	return &Pipeline{
		prefs:      prefs,
		matcher:    matcher,
		dispatcher: dispatcher,
		pageSize:   pageSize,
	}
}

// Submit processes a batch of canonical events: snapshot preferences,
// match, then dispatch each intent. Per-intent failures are isolated so
// one user's channel problem never blocks another's delivery.
func (p *Pipeline) Submit(ctx context.Context, events []*domain.OpportunityEvent) error {
	prefs, err := preferences.Snapshot(ctx, p.prefs, p.pageSize)
	if err != nil {
		return fmt.Errorf("snapshot preferences: %w", err)
	}
	if len(prefs) == 0 {
		return nil
	}

	intents := p.matcher.Match(ctx, events, prefs)
	if len(intents) == 0 {
		return nil
	}

	prefByUser := make(map[string]*domain.UserPreference, len(prefs))
	for i := range prefs {
		prefByUser[prefs[i].UserID] = &prefs[i]
	}

	var dispatched int
	for _, intent := range intents {
		pref, ok := prefByUser[intent.Key.UserID]
		if !ok {
			continue
		}
		if err := p.dispatcher.Dispatch(ctx, intent, pref); err != nil {
			slog.Error("failed to dispatch intent", "intent", intent.Key, "error", err)
			continue
		}
		dispatched++
	}

	slog.Info("pipeline pass completed",
		"events", len(events),
		"preferences", len(prefs),
		"intents", len(intents),
		"dispatched", dispatched,
	)
	return nil
}
