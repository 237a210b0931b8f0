package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind represents the kind of an opportunity event.
type EventKind string

// Event kinds.
const (
	EventKindJob                   EventKind = "job"
	EventKindInternship            EventKind = "internship"
	EventKindCertificationDeadline EventKind = "certification_deadline"
)

// IsValid checks if the event kind is valid.
func (k EventKind) IsValid() bool {
	return k == EventKindJob || k == EventKindInternship || k == EventKindCertificationDeadline
}

// EventKey identifies a single version of an opportunity event.
// Sources may re-publish the same event; a new version gets a new key.
type EventKey struct {
	Source  string `json:"source"`
	ID      string `json:"id"`
	Version int    `json:"version"`
}

// String returns the canonical textual form of the key.
func (k EventKey) String() string {
	return fmt.Sprintf("%s/%s/v%d", k.Source, k.ID, k.Version)
}

// OpportunityEvent is a canonical externally sourced opportunity record.
// Immutable once ingested; superseding updates arrive as a new version.
type OpportunityEvent struct {
	Key        EventKey        `json:"key"`
	Kind       EventKind       `json:"kind"`
	Title      string          `json:"title"`
	Skills     []string        `json:"skills"`
	Location   string          `json:"location"`
	Deadline   *time.Time      `json:"deadline,omitempty"`
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`
	IngestedAt time.Time       `json:"ingested_at"`
}

// HasSkills reports whether the event carries any skill attributes.
func (e *OpportunityEvent) HasSkills() bool {
	return len(e.Skills) > 0
}
