package session

import (
	"time"

	"github.com/MrWong99/voxdesk/internal/transcript"
)

// State is the connection state of a [Controller].
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

// MarshalText implements [encoding.TextMarshaler].
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Phase is the display-only conversation substate while a session is open.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseListening
	PhaseThinking
	PhaseSpeaking
)

// String returns the lower-case phase name, or "" for PhaseNone.
func (p Phase) String() string {
	switch p {
	case PhaseListening:
		return "listening"
	case PhaseThinking:
		return "thinking"
	case PhaseSpeaking:
		return "speaking"
	}
	return ""
}

// MarshalText implements [encoding.TextMarshaler].
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Snapshot is a point-in-time copy of everything a UI shows about a session.
type Snapshot struct {
	SessionID string `json:"session_id,omitempty"`
	Dialect   string `json:"dialect,omitempty"`
	State     State  `json:"state"`
	Phase     Phase  `json:"phase"`

	// Connected is true only while the state is Open.
	Connected bool `json:"connected"`

	// Level is the latest microphone level in [0,100].
	Level float64 `json:"level"`

	// PartialUser and PartialAssistant are the live, unflushed transcripts.
	PartialUser      string `json:"partial_user"`
	PartialAssistant string `json:"partial_assistant"`

	Transcript []transcript.Turn `json:"transcript"`

	// Err is the most recent fatal error; Error is its message.
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`

	StartedAt time.Time `json:"started_at,omitzero"`
}
