package domain

import "time"

// Channel represents a delivery medium.
type Channel string

// Delivery channels.
const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// IsValid checks if the channel is valid.
func (c Channel) IsValid() bool {
	return c == ChannelEmail || c == ChannelSMS || c == ChannelPush
}

// ChannelTarget binds a channel to its delivery address
// (email address, phone number or device token).
type ChannelTarget struct {
	Channel Channel `json:"channel"`
	Target  string  `json:"target"`
}

// UserPreference holds per-user subscription criteria. Owned and mutated
// by the external profile service; this pipeline reads it and must
// tolerate staleness between match passes.
type UserPreference struct {
	UserID         string          `json:"user_id"`
	Skills         []string        `json:"skills"`
	Location       string          `json:"location"` // empty means any
	Kinds          []EventKind     `json:"kinds"`    // empty means any
	Channels       []ChannelTarget `json:"channels"` // in delivery order
	MaxPerWindow   int             `json:"max_per_window"`  // 0 means platform default
	WindowDuration time.Duration   `json:"window_duration"` // 0 means platform default
	LeadTime       time.Duration   `json:"lead_time"`       // 0 means platform default
	Active         bool            `json:"active"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// WantsKind reports whether the preference accepts events of the given kind.
func (p *UserPreference) WantsKind(kind EventKind) bool {
	if len(p.Kinds) == 0 {
		return true
	}
	for _, k := range p.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}
