// Package s2s defines the Provider interface for Speech-to-Speech (S2S) backends.
//
// An S2S provider wraps a real-time voice AI service that accepts streamed
// microphone audio and answers with synthesised speech in a single, stateful
// session. Examples include the Gemini Live API and the OpenAI Realtime API.
//
// The central abstraction is [SessionHandle]: outbound audio and text are sent
// with explicit method calls, while everything the remote side produces
// (transcription deltas, audio, turn boundaries, interruptions, errors, and
// the final close) arrives as a single ordered stream of [Event] values. A
// session is never reconfigured live; callers close it and open a new one.
//
// All implementations must be safe for concurrent use.
package s2s

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/voxdesk/pkg/audio"
)

// ErrSessionClosed is returned by [SessionHandle] send methods after Close.
var ErrSessionClosed = errors.New("s2s: session closed")

// Modality is a response modality requested from the model.
type Modality string

const (
	ModalityAudio Modality = "AUDIO"
	ModalityText  Modality = "TEXT"
)

// SessionConfig is the initial configuration for a new S2S session.
type SessionConfig struct {
	// Voice is the provider-specific prebuilt voice name. Empty selects the
	// provider default.
	Voice string

	// Instructions is the system-level prompt for the session.
	Instructions string

	// Modality is the requested response modality. Zero means [ModalityAudio].
	Modality Modality

	// InputTranscription enables transcription of the user's speech.
	InputTranscription bool

	// OutputTranscription enables transcription of the model's speech.
	OutputTranscription bool

	// InputSampleRate is the rate of audio passed to SendAudio.
	// Zero means [audio.InputSampleRate].
	InputSampleRate int
}

// Capabilities describes static properties of the S2S provider.
type Capabilities struct {
	// Voices lists the prebuilt voice names the provider offers.
	Voices []string

	// OutputSampleRate is the rate of PCM16 audio carried by [EventAudio].
	OutputSampleRate int

	// MaxSessionDuration is the provider's hard session limit. Zero means no
	// documented limit.
	MaxSessionDuration time.Duration
}

// ── Events ─────────────────────────────────────────────────────────────────────

// EventKind discriminates the [Event] union.
type EventKind int

const (
	// EventInputTranscript carries a delta of the user's transcribed speech.
	EventInputTranscript EventKind = iota + 1

	// EventOutputTranscript carries a delta of the model's transcribed speech.
	EventOutputTranscript

	// EventTurnComplete marks the end of a model turn.
	EventTurnComplete

	// EventAudio carries one chunk of synthesised model audio.
	EventAudio

	// EventInterrupted reports that the user started speaking over the model.
	EventInterrupted

	// EventError reports a session-fatal remote error. It is the last event.
	EventError

	// EventClosed reports that the remote side closed the session. It is the
	// last event.
	EventClosed
)

// String returns the human-readable name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventInputTranscript:
		return "input_transcript"
	case EventOutputTranscript:
		return "output_transcript"
	case EventTurnComplete:
		return "turn_complete"
	case EventAudio:
		return "audio"
	case EventInterrupted:
		return "interrupted"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one inbound session event. Only the fields relevant to Kind are set.
type Event struct {
	Kind EventKind

	// Text is the transcript delta for the transcript kinds.
	Text string

	// Audio is the encoded model audio for [EventAudio].
	Audio audio.EncodedChunk

	// Err is set for [EventError].
	Err error

	// Reason is the remote close reason for [EventClosed], possibly empty.
	Reason string
}

// Terminal reports whether e ends the event stream.
func (e Event) Terminal() bool {
	return e.Kind == EventError || e.Kind == EventClosed
}

// ── Interfaces ─────────────────────────────────────────────────────────────────

// SessionHandle represents an open S2S session. It is an interface so that test
// code can supply mock implementations without a live provider connection.
//
// All methods must be safe for concurrent use. Callers must call Close when
// the session is no longer needed.
type SessionHandle interface {
	// SendAudio delivers one encoded microphone chunk. Returns
	// [ErrSessionClosed] after Close.
	SendAudio(ctx context.Context, chunk audio.EncodedChunk) error

	// SendText delivers a user text message (e.g. a greeting nudge).
	SendText(ctx context.Context, text string) error

	// Events returns the ordered inbound event stream. When the remote side
	// ends the session the last event is [EventClosed] or [EventError]; the
	// channel is then closed. After a local Close the channel is closed
	// without a terminal event. Consumers must drain it promptly.
	Events() <-chan Event

	// Close terminates the session and releases all resources. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any S2S backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Connect establishes a new S2S session. It returns once the remote side
	// has accepted the configuration, or with an error if the connection or
	// setup fails or ctx is cancelled. The caller owns the returned handle.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)

	// Capabilities returns static metadata about the provider.
	Capabilities() Capabilities
}
