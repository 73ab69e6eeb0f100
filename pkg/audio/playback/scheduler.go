// Package playback schedules decoded model audio onto an [audio.OutputDevice]
// for gapless sequential playback with immediate cancellation.
//
// Every enqueued payload becomes one playback unit starting at
// max(cursor, device now); the cursor then advances by the unit's duration,
// so units never overlap and arrival jitter only ever produces a gap, never a
// reordering. [Scheduler.CancelAll] silences everything at once and pulls the
// cursor back to the device clock.
package playback

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voxdesk/pkg/audio"
)

// ErrMalformed is returned (wrapped) by [Scheduler.Enqueue] when a payload
// cannot be decoded. It is a per-chunk failure: the scheduler stays usable.
var ErrMalformed = errors.New("playback: malformed audio payload")

// ErrClosed is returned by [Scheduler.Enqueue] after [Scheduler.Close].
var ErrClosed = errors.New("playback: scheduler closed")

// Unit describes a scheduled playback unit.
type Unit struct {
	// ID identifies the unit within its scheduler.
	ID uint64

	// Start is the device time at which the unit begins playing.
	Start time.Duration

	// Duration is the playing time of the unit's samples.
	Duration time.Duration

	// Samples is the number of decoded mono samples.
	Samples int
}

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithSampleRate sets the rate at which payloads are interpreted. The default
// is [audio.OutputSampleRate].
func WithSampleRate(rate int) Option {
	return func(s *Scheduler) {
		if rate > 0 {
			s.rate = rate
		}
	}
}

// WithIdleFunc registers fn to run whenever the last active unit finishes
// naturally. It is not called after [Scheduler.CancelAll] or Close. fn runs
// on an internal goroutine and must not block.
func WithIdleFunc(fn func()) Option {
	return func(s *Scheduler) { s.onIdle = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// Scheduler places decoded units back to back on an output device.
// All methods are safe for concurrent use.
type Scheduler struct {
	out    audio.OutputDevice
	rate   int
	onIdle func()
	log    *slog.Logger

	mu     sync.Mutex
	cursor time.Duration
	active map[uint64]audio.Voice
	nextID uint64
	closed bool
	wg     sync.WaitGroup
}

// New creates a Scheduler on out with its cursor at the device's current time.
func New(out audio.OutputDevice, opts ...Option) *Scheduler {
	s := &Scheduler{
		out:    out,
		rate:   audio.OutputSampleRate,
		log:    slog.Default(),
		active: make(map[uint64]audio.Voice),
	}
	for _, o := range opts {
		o(s)
	}
	s.cursor = out.Now()
	return s
}

// ResetCursor moves the cursor to the device's current time. Called once the
// device has been resumed so the first unit starts immediately.
func (s *Scheduler) ResetCursor() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = s.out.Now()
}

// Enqueue decodes chunk (base64 PCM16 mono at the scheduler rate) and
// schedules it at max(cursor, now). A trailing odd byte is ignored. A payload
// with no whole sample schedules nothing and returns a zero Unit.
func (s *Scheduler) Enqueue(chunk audio.EncodedChunk) (Unit, error) {
	raw, err := base64.StdEncoding.DecodeString(chunk.Data)
	if err != nil {
		return Unit{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	samples := audio.DecodePCM16(raw)
	if len(samples) == 0 {
		return Unit{}, nil
	}
	return s.schedule(samples)
}

func (s *Scheduler) schedule(samples []float32) (Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Unit{}, ErrClosed
	}

	start := max(s.cursor, s.out.Now())
	dur := audio.SamplesDuration(len(samples), s.rate)
	voice, err := s.out.Play(samples, start)
	if err != nil {
		return Unit{}, fmt.Errorf("playback: schedule: %w", err)
	}

	s.cursor = start + dur
	s.nextID++
	id := s.nextID
	s.active[id] = voice

	s.wg.Add(1)
	go s.watch(id, voice)

	return Unit{ID: id, Start: start, Duration: dur, Samples: len(samples)}, nil
}

// watch removes a unit once it ends. Units removed by CancelAll are already
// gone from the active set and never trigger the idle callback.
func (s *Scheduler) watch(id uint64, v audio.Voice) {
	defer s.wg.Done()
	<-v.Done()

	s.mu.Lock()
	_, ok := s.active[id]
	if ok {
		delete(s.active, id)
	}
	idle := ok && len(s.active) == 0 && !s.closed
	fn := s.onIdle
	s.mu.Unlock()

	if idle && fn != nil {
		fn()
	}
}

// CancelAll stops every active unit, clears the active set, and resets the
// cursor to the device's current time.
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	voices := s.active
	s.active = make(map[uint64]audio.Voice)
	s.cursor = s.out.Now()
	s.mu.Unlock()

	for _, v := range voices {
		v.Stop()
	}
	if n := len(voices); n > 0 {
		s.log.Debug("playback: cancelled units", "count", n)
	}
	return len(voices)
}

// Close cancels every unit and rejects further enqueues. It waits for the
// unit watchers to exit. It is safe to call Close more than once.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.CancelAll()
	s.wg.Wait()
}

// Active returns the number of units scheduled or playing.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Cursor returns the device time at which the next unit would start if the
// device clock has not overtaken it.
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}
