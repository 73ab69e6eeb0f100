// Package transcript turns the directional text deltas produced by a
// speech-to-speech session into finalised conversation turns.
//
// An [Accumulator] keeps one pending buffer per role. Deltas are appended to
// the buffer of their role only, and [Accumulator.Flush] converts whatever is
// pending into at most two [Turn] records (user first, then assistant) at a
// turn boundary. The resulting log is append-only until [Accumulator.Reset].
package transcript

import (
	"strings"
	"sync"
	"time"
)

// Role identifies who spoke a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one finalised conversational message. It is immutable once created.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Option configures an [Accumulator].
type Option func(*Accumulator)

// WithClock overrides the time source used to stamp turns.
func WithClock(now func() time.Time) Option {
	return func(a *Accumulator) { a.now = now }
}

// WithUserFilter installs a filter applied to every user delta before it is
// buffered. See [ScriptFilter].
func WithUserFilter(f Filter) Option {
	return func(a *Accumulator) { a.userFilter = f }
}

// Filter rewrites a transcript fragment. Returning "" discards it.
type Filter interface {
	Apply(fragment string) string
}

// Accumulator merges text deltas into turns. It is safe for concurrent use.
type Accumulator struct {
	now        func() time.Time
	userFilter Filter

	mu        sync.Mutex
	user      strings.Builder
	assistant strings.Builder
	log       []Turn
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator(opts ...Option) *Accumulator {
	a := &Accumulator{now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

// AppendUser appends delta to the pending user text and returns the partial.
func (a *Accumulator) AppendUser(delta string) string {
	if a.userFilter != nil {
		delta = a.userFilter.Apply(delta)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user.WriteString(delta)
	return a.user.String()
}

// AppendAssistant appends delta to the pending assistant text and returns
// the partial.
func (a *Accumulator) AppendAssistant(delta string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.assistant.WriteString(delta)
	return a.assistant.String()
}

// Flush finalises the pending buffers. Each role whose trimmed text is
// non-empty yields a Turn, user before assistant, sharing one timestamp. Both
// buffers are reset. With nothing pending Flush returns nil and changes
// nothing.
func (a *Accumulator) Flush() []Turn {
	a.mu.Lock()
	defer a.mu.Unlock()

	u := strings.TrimSpace(a.user.String())
	as := strings.TrimSpace(a.assistant.String())
	a.user.Reset()
	a.assistant.Reset()

	if u == "" && as == "" {
		return nil
	}

	ts := a.now()
	turns := make([]Turn, 0, 2)
	if u != "" {
		turns = append(turns, Turn{Role: RoleUser, Text: u, Timestamp: ts})
	}
	if as != "" {
		turns = append(turns, Turn{Role: RoleAssistant, Text: as, Timestamp: ts})
	}
	a.log = append(a.log, turns...)
	return turns
}

// ClearAssistant discards pending assistant text without emitting a turn.
// Used when the model is interrupted mid-reply.
func (a *Accumulator) ClearAssistant() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.assistant.Reset()
}

// Partial returns the pending (unflushed) user and assistant text.
func (a *Accumulator) Partial() (user, assistant string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user.String(), a.assistant.String()
}

// Turns returns a copy of the transcript log.
func (a *Accumulator) Turns() []Turn {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Turn, len(a.log))
	copy(out, a.log)
	return out
}

// Reset clears the log and both pending buffers for a new session.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user.Reset()
	a.assistant.Reset()
	a.log = nil
}

// ResetPending clears both pending buffers, keeping the log.
func (a *Accumulator) ResetPending() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user.Reset()
	a.assistant.Reset()
}
