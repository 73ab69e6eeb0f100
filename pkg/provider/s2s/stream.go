package s2s

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/coder/websocket"
)

// Stream is the ordered event queue shared by WebSocket provider
// implementations. A single receive goroutine emits into it; [Stream.Finish]
// closes it exactly once.
type Stream struct {
	ch   chan Event
	ctx  context.Context
	once sync.Once
}

// NewStream returns a stream whose sends give up once ctx is done.
func NewStream(ctx context.Context, buf int) *Stream {
	return &Stream{ch: make(chan Event, buf), ctx: ctx}
}

// Events returns the receive side of the stream.
func (s *Stream) Events() <-chan Event { return s.ch }

// Emit delivers ev in order. It reports false if the stream's context ended
// first.
func (s *Stream) Emit(ev Event) bool {
	select {
	case s.ch <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// Finish emits terminal (when non-nil and the context is still live) and
// closes the stream. Only the first call has any effect.
func (s *Stream) Finish(terminal *Event) {
	s.once.Do(func() {
		if terminal != nil && s.ctx.Err() == nil {
			s.Emit(*terminal)
		}
		close(s.ch)
	})
}

// CloseEvent converts the error that ended a WebSocket read loop into the
// terminal event. Normal and going-away closures become [EventClosed];
// everything else is an [EventError].
func CloseEvent(provider string, err error) Event {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return Event{Kind: EventClosed, Reason: ce.Reason}
		}
		return Event{Kind: EventError, Err: fmt.Errorf("%s: remote closed session: %d %s", provider, ce.Code, ce.Reason)}
	}
	return Event{Kind: EventError, Err: fmt.Errorf("%s: read: %w", provider, err)}
}
