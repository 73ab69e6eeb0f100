package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/voxdesk/pkg/audio/playback"
	"github.com/MrWong99/voxdesk/pkg/provider/s2s"
)

// errRemote stands in for a remote error event that carried no cause.
var errRemote = errors.New("remote reported an error")

// run applies inbound events for l until the stream ends, a terminal event
// arrives, or ctx is cancelled by Stop, then tears the session down.
func (c *Controller) run(ctx context.Context, l *live) {
	events := l.remote.Events()
	var fatal error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			end, err := c.dispatch(ctx, l, ev)
			if end {
				fatal = err
				break loop
			}
		}
	}
	c.finish(l, fatal)
}

// dispatch applies one event. It reports end=true for terminal events, with
// err set when the session must record an error.
func (c *Controller) dispatch(ctx context.Context, l *live, ev s2s.Event) (end bool, err error) {
	c.mu.Lock()
	acc := c.acc
	c.mu.Unlock()

	switch ev.Kind {
	case s2s.EventInputTranscript:
		acc.AppendUser(ev.Text)

	case s2s.EventOutputTranscript:
		acc.AppendAssistant(ev.Text)

	case s2s.EventTurnComplete:
		for _, t := range acc.Flush() {
			c.metrics.RecordTurn(ctx, string(t.Role))
		}
		c.setPhase(l, PhaseListening)

	case s2s.EventAudio:
		unit, qerr := l.sched.Enqueue(ev.Audio)
		switch {
		case errors.Is(qerr, playback.ErrMalformed):
			c.metrics.MalformedChunks.Add(ctx, 1)
			l.log.Warn("session: skipping malformed audio chunk", "err", qerr)
			return false, nil
		case qerr != nil:
			l.log.Warn("session: schedule audio", "err", qerr)
			return false, nil
		}
		if unit.Samples == 0 {
			return false, nil
		}
		c.metrics.PlaybackUnits.Add(ctx, 1)
		c.setSpeaking(l)

	case s2s.EventInterrupted:
		if n := l.sched.CancelAll(); n > 0 {
			l.log.Debug("session: playback interrupted", "units", n)
		}
		c.metrics.Interruptions.Add(ctx, 1)
		acc.ClearAssistant()
		c.setPhase(l, PhaseListening)

	case s2s.EventError:
		cause := ev.Err
		if cause == nil {
			cause = errRemote
		}
		return true, fmt.Errorf("%w: %w", ErrConnection, cause)

	case s2s.EventClosed:
		l.log.Info("session: remote closed", "reason", ev.Reason)
		return true, nil

	default:
		return false, nil
	}

	c.publish()
	return false, nil
}

// setPhase changes the phase if l is still the open session.
func (c *Controller) setPhase(l *live, p Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live == l && c.state == StateOpen {
		c.phase = p
	}
}

// setSpeaking enters Speaking only while playback is pending. A unit that has
// already ended leaves the phase to the idle callback.
func (c *Controller) setSpeaking(l *live) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live == l && c.state == StateOpen && l.sched.Active() > 0 {
		c.phase = PhaseSpeaking
	}
}

func (c *Controller) setLevel(l *live, level float64) {
	c.mu.Lock()
	if c.live != l || c.state != StateOpen {
		c.mu.Unlock()
		return
	}
	c.level = level
	c.mu.Unlock()
	c.publish()
}

// onPlaybackIdle runs when the last scheduled unit finishes naturally.
func (c *Controller) onPlaybackIdle(l *live) {
	c.mu.Lock()
	if c.live != l || c.state != StateOpen || c.phase != PhaseSpeaking {
		c.mu.Unlock()
		return
	}
	c.phase = PhaseListening
	c.mu.Unlock()
	c.publish()
}
