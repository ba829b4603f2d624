// Package attention turns per-frame presence signals into debounced
// distraction and refocus events.
package attention

import (
	"time"
)

// Status is the user-facing attention status.
type Status string

const (
	StatusChecking   Status = "checking"
	StatusFocused    Status = "focused"
	StatusDistracted Status = "distracted"
)

func (s Status) String() string { return string(s) }

// State is the single authoritative attention record.
// Status is StatusDistracted exactly when AwayStartedAt is set.
type State struct {
	Status                  Status        `json:"status"`
	LastPresenceAt          time.Time     `json:"last_presence_at,omitzero"`
	AwayStartedAt           time.Time     `json:"away_started_at,omitzero"`
	TotalAway               time.Duration `json:"total_away"`
	LastTransitionMessageAt time.Time     `json:"last_transition_message_at,omitzero"`
}

// Away reports whether a distraction episode is open.
func (s State) Away() bool {
	return !s.AwayStartedAt.IsZero()
}

// Snapshot is a copy of the machine state for display.
type Snapshot struct {
	State

	Active    bool   `json:"active"`
	Present   bool   `json:"present"`
	FaceCount int    `json:"face_count"`
	Pending   bool   `json:"pending"`
	Episodes  int    `json:"episodes"`
	Signals   uint64 `json:"signals"`
}

// DisplayStatus is the status to show the user. Absence that has not yet
// crossed the threshold already shows as distracted.
func (s Snapshot) DisplayStatus() Status {
	if s.Pending {
		return StatusDistracted
	}
	return s.Status
}

// EventKind distinguishes transition events.
type EventKind string

const (
	EventDistraction EventKind = "distraction"
	EventRefocus     EventKind = "refocus"
)

// Event describes one episode boundary.
type Event struct {
	Kind EventKind `json:"kind"`
	At   time.Time `json:"at"`

	// Episode numbers distraction episodes from 1 within a session.
	Episode int `json:"episode"`

	// AwayDuration is set on refocus: refocus time minus onset time.
	AwayDuration time.Duration `json:"away_duration,omitempty"`

	// SinceLastPresence is set on distraction.
	SinceLastPresence time.Duration `json:"since_last_presence,omitempty"`

	// TotalAway is the session aggregate after this event.
	TotalAway time.Duration `json:"total_away"`

	// Announced is false when the refocus cooldown silenced the message.
	Announced bool   `json:"announced"`
	Message   string `json:"message,omitempty"`
}

// Callbacks receive episode boundaries. Both are optional.
// Callbacks run on the signal path and must not call back into the
// machine's Observe, Start, Stop or Reset.
type Callbacks struct {
	OnDistraction func(Event)
	OnRefocus     func(Event)
}

// VoiceSink speaks text. Implementations are fire-and-forget and report
// their own failures.
type VoiceSink interface {
	Speak(text string)
}

// VoiceFunc adapts a function to VoiceSink.
type VoiceFunc func(text string)

// Speak implements VoiceSink.
func (f VoiceFunc) Speak(text string) { f(text) }
