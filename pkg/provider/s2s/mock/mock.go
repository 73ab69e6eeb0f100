// Package mock provides test doubles for the s2s package interfaces.
//
// Use Provider to verify Connect calls and hand out controlled sessions. Use
// Session to inject inbound events and inspect what the caller sent.
//
// Example:
//
//	p := &mock.Provider{}
//	handle, _ := p.Connect(ctx, cfg)
//	sess := p.Latest()
//	sess.Push(s2s.Event{Kind: s2s.EventOutputTranscript, Text: "hi"})
//	sess.Push(s2s.Event{Kind: s2s.EventClosed})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxdesk/pkg/audio"
	"github.com/MrWong99/voxdesk/pkg/provider/s2s"
)

var _ s2s.Provider = (*Provider)(nil)
var _ s2s.SessionHandle = (*Session)(nil)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Cfg is the SessionConfig passed to Connect.
	Cfg s2s.SessionConfig
}

// Provider is a mock implementation of s2s.Provider. Every successful Connect
// returns a fresh Session.
type Provider struct {
	mu sync.Mutex

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// Block, if non-nil, makes Connect wait until it is closed or ctx is done.
	Block chan struct{}

	// ProviderCapabilities is returned by Capabilities.
	ProviderCapabilities s2s.Capabilities

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall

	// Sessions holds every session handed out, oldest first.
	Sessions []*Session
}

// Connect records the call and returns a new Session or ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	p.mu.Lock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Cfg: cfg})
	block := p.Block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	s := NewSession(256)
	p.Sessions = append(p.Sessions, s)
	return s, nil
}

// Capabilities returns ProviderCapabilities.
func (p *Provider) Capabilities() s2s.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ProviderCapabilities
}

// Latest returns the most recent session, or nil if none was opened.
func (p *Provider) Latest() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Sessions) == 0 {
		return nil
	}
	return p.Sessions[len(p.Sessions)-1]
}

// Calls returns a copy of the recorded Connect calls.
func (p *Provider) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ConnectCall, len(p.ConnectCalls))
	copy(out, p.ConnectCalls)
	return out
}

// ── Session ────────────────────────────────────────────────────────────────────

// Session is a mock implementation of s2s.SessionHandle.
type Session struct {
	mu     sync.Mutex
	events chan s2s.Event
	closed bool
	ended  bool

	// SendAudioErr, if non-nil, is returned by SendAudio.
	SendAudioErr error

	// SendTextErr, if non-nil, is returned by SendText.
	SendTextErr error

	// Audio records every chunk passed to SendAudio.
	Audio []audio.EncodedChunk

	// Texts records every message passed to SendText.
	Texts []string

	// CloseCalls is the number of times Close was called.
	CloseCalls int
}

// NewSession returns a session whose event stream buffers buf events.
func NewSession(buf int) *Session {
	return &Session{events: make(chan s2s.Event, buf)}
}

// Push injects an inbound event without blocking. A terminal event ends the
// stream. It returns false if the stream has ended or the buffer is full.
func (s *Session) Push(ev s2s.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.ended {
		return false
	}
	select {
	case s.events <- ev:
	default:
		return false
	}
	if ev.Terminal() {
		s.ended = true
		close(s.events)
	}
	return true
}

// SendAudio records chunk.
func (s *Session) SendAudio(_ context.Context, chunk audio.EncodedChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s2s.ErrSessionClosed
	}
	if s.SendAudioErr != nil {
		return s.SendAudioErr
	}
	s.Audio = append(s.Audio, chunk)
	return nil
}

// SendText records text.
func (s *Session) SendText(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s2s.ErrSessionClosed
	}
	if s.SendTextErr != nil {
		return s.SendTextErr
	}
	s.Texts = append(s.Texts, text)
	return nil
}

// Events returns the inbound event stream.
func (s *Session) Events() <-chan s2s.Event { return s.events }

// Close ends the stream without a terminal event. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.ended {
		s.ended = true
		close(s.events)
	}
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SentAudio returns a copy of the recorded audio chunks.
func (s *Session) SentAudio() []audio.EncodedChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.EncodedChunk, len(s.Audio))
	copy(out, s.Audio)
	return out
}

// SentTexts returns a copy of the recorded text messages.
func (s *Session) SentTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Texts))
	copy(out, s.Texts)
	return out
}
