// Package session runs one duplex voice conversation at a time between a
// user's audio devices and a speech-to-speech model.
//
// A [Controller] owns the lifecycle. [Controller.Start] acquires the speaker,
// the microphone, and the remote session in that order, rolling back
// everything it opened if a later step fails. While the session is open a
// capture pump streams microphone chunks out, and a single event goroutine
// applies inbound model events in arrival order: transcript deltas feed the
// accumulator, audio goes to the playback scheduler, and barge-in cancels
// playback. Teardown releases every resource together and completes a barrier
// that the next Start waits on before touching the devices again.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/voxdesk/internal/dialect"
	"github.com/MrWong99/voxdesk/internal/observe"
	"github.com/MrWong99/voxdesk/internal/transcript"
	"github.com/MrWong99/voxdesk/pkg/audio"
	"github.com/MrWong99/voxdesk/pkg/audio/capture"
	"github.com/MrWong99/voxdesk/pkg/audio/playback"
	"github.com/MrWong99/voxdesk/pkg/provider/s2s"
)

var (
	// ErrPermission wraps failures to open or resume an audio device,
	// including a refused microphone permission.
	ErrPermission = errors.New("session: audio device unavailable")

	// ErrConnection wraps failures to reach the remote model and fatal remote
	// errors during a session.
	ErrConnection = errors.New("session: remote connection failed")

	// ErrActive is returned by Start when a session is already connecting,
	// open, or closing.
	ErrActive = errors.New("session: a session is already active")
)

// Option configures a [Controller].
type Option func(*Controller)

// WithListener registers fn to receive a [Snapshot] after every observable
// change. Calls are serialised. fn must not block and must not call back into
// the Controller's Start, Stop, or ChangeDialect.
func WithListener(fn func(Snapshot)) Option {
	return func(c *Controller) { c.listener = fn }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithMetrics sets the metric instruments. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithRestartDelay sets the pause ChangeDialect inserts between teardown and
// the next Start. Zero (the default) restarts as soon as teardown completes.
func WithRestartDelay(d time.Duration) Option {
	return func(c *Controller) { c.restartDelay = d }
}

// WithNudge controls whether a greeting nudge is sent once the session opens.
// Enabled by default.
func WithNudge(enabled bool) Option {
	return func(c *Controller) { c.nudge = enabled }
}

// WithScriptFilter enables dropping user transcript letters outside the
// dialect's scripts.
func WithScriptFilter(enabled bool) Option {
	return func(c *Controller) { c.scriptFilter = enabled }
}

// WithLevelGain sets the multiplier mapping frame RMS to the 0–100 level.
func WithLevelGain(g float64) Option {
	return func(c *Controller) {
		if g > 0 {
			c.levelGain = g
		}
	}
}

// WithSampleRates sets the microphone and speaker rates.
func WithSampleRates(input, output int) Option {
	return func(c *Controller) {
		if input > 0 {
			c.inputRate = input
		}
		if output > 0 {
			c.outputRate = output
		}
	}
}

// WithFrameSize sets the number of samples per captured frame.
func WithFrameSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.frameSize = n
		}
	}
}

// WithDialect sets the dialect used when Start is given an empty ID. It is
// not validated until Start.
func WithDialect(id string) Option {
	return func(c *Controller) {
		if id != "" {
			c.dialect = id
		}
	}
}

// WithClock overrides the time source for turn timestamps and StartedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller runs at most one live session. All exported methods are safe for
// concurrent use.
type Controller struct {
	platform audio.Platform
	provider s2s.Provider
	catalog  *dialect.Catalog

	listener     func(Snapshot)
	log          *slog.Logger
	metrics      *observe.Metrics
	restartDelay time.Duration
	nudge        bool
	scriptFilter bool
	levelGain    float64
	inputRate    int
	outputRate   int
	frameSize    int
	now          func() time.Time

	pubMu sync.Mutex

	mu        sync.Mutex
	state     State
	phase     Phase
	level     float64
	err       error
	dialect   string
	sessionID string
	startedAt time.Time
	acc       *transcript.Accumulator
	live      *live

	// startCancel and startDone belong to the Start in flight, if any.
	startCancel context.CancelFunc
	startDone   chan struct{}

	// barrier is closed once the most recent session has fully torn down.
	barrier <-chan struct{}
}

// New returns an idle Controller that opens devices on platform and sessions
// on provider, resolving dialects through catalog.
func New(platform audio.Platform, provider s2s.Provider, catalog *dialect.Catalog, opts ...Option) *Controller {
	c := &Controller{
		platform:   platform,
		provider:   provider,
		catalog:    catalog,
		log:        slog.Default(),
		nudge:      true,
		levelGain:  audio.DefaultLevelGain,
		inputRate:  audio.InputSampleRate,
		outputRate: audio.OutputSampleRate,
		frameSize:  audio.DefaultFrameSize,
		now:        time.Now,
		dialect:    dialect.DefaultID,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	c.acc = transcript.NewAccumulator(transcript.WithClock(c.now))
	return c
}

// live holds the resources of one open session.
type live struct {
	id     string
	log    *slog.Logger
	in     audio.InputDevice
	out    audio.OutputDevice
	remote s2s.SessionHandle
	sched  *playback.Scheduler
	cancel context.CancelFunc

	pumpDone chan struct{}
	once     sync.Once
	done     chan struct{}
}

// ── Start ──────────────────────────────────────────────────────────────────────

// Start opens a session in the dialect with the given ID, or in the currently
// selected dialect when dialectID is empty. It returns once the session is
// open. Device failures wrap [ErrPermission]; remote failures wrap
// [ErrConnection]. A failed Start leaves the Controller idle with the error
// recorded in its snapshot. A Stop during Start cancels it.
func (c *Controller) Start(ctx context.Context, dialectID string) error {
	if dialectID == "" {
		c.mu.Lock()
		dialectID = c.dialect
		c.mu.Unlock()
	}
	d, err := c.catalog.Get(dialectID)
	if err != nil {
		return fmt.Errorf("session: start: %w", err)
	}
	instructions, err := c.catalog.Instructions(d)
	if err != nil {
		return fmt.Errorf("session: start: %w", err)
	}

	startCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if err := ctx.Err(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("session: start: %w", err)
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrActive
	}
	barrier := c.barrier
	id := uuid.NewString()
	done := make(chan struct{})
	defer close(done)
	c.state, c.phase = StateConnecting, PhaseThinking
	c.err = nil
	c.level = 0
	c.dialect = d.ID
	c.sessionID = id
	c.startedAt = time.Time{}
	c.acc = c.newAccumulator(d)
	c.startCancel, c.startDone = cancel, done
	c.mu.Unlock()
	c.publish()

	log := c.log.With("session_id", id, "dialect", d.ID)
	began := time.Now()

	if barrier != nil {
		select {
		case <-barrier:
		case <-startCtx.Done():
			return c.failStart(ctx, startCtx, d.ID, nil, "wait for teardown", startCtx.Err(), nil)
		}
	}

	var closers []func() error
	rollback := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn("session: rollback step failed", "err", err)
			}
		}
	}

	out, err := c.platform.OpenOutput(startCtx, c.outputRate)
	if err != nil {
		return c.failStart(ctx, startCtx, d.ID, ErrPermission, "open output", err, rollback)
	}
	closers = append(closers, out.Close)
	if err := out.Resume(startCtx); err != nil {
		return c.failStart(ctx, startCtx, d.ID, ErrPermission, "resume output", err, rollback)
	}

	in, err := c.platform.OpenInput(startCtx, c.inputRate, c.frameSize)
	if err != nil {
		return c.failStart(ctx, startCtx, d.ID, ErrPermission, "open input", err, rollback)
	}
	closers = append(closers, in.Close)
	if err := in.Resume(startCtx); err != nil {
		return c.failStart(ctx, startCtx, d.ID, ErrPermission, "resume input", err, rollback)
	}

	remote, err := c.provider.Connect(startCtx, s2s.SessionConfig{
		Voice:               d.Voice,
		Instructions:        instructions,
		Modality:            s2s.ModalityAudio,
		InputTranscription:  true,
		OutputTranscription: true,
		InputSampleRate:     c.inputRate,
	})
	if err != nil {
		return c.failStart(ctx, startCtx, d.ID, ErrConnection, "connect", err, rollback)
	}
	closers = append(closers, remote.Close)

	sessCtx, sessCancel := context.WithCancel(observe.WithSessionID(context.WithoutCancel(ctx), id))
	l := &live{
		id:       id,
		log:      log,
		in:       in,
		out:      out,
		remote:   remote,
		cancel:   sessCancel,
		pumpDone: make(chan struct{}),
		done:     make(chan struct{}),
	}
	l.sched = playback.New(out,
		playback.WithSampleRate(c.outputRate),
		playback.WithIdleFunc(func() { c.onPlaybackIdle(l) }),
		playback.WithLogger(log),
	)

	c.mu.Lock()
	if startCtx.Err() != nil {
		c.mu.Unlock()
		sessCancel()
		l.sched.Close()
		return c.failStart(ctx, startCtx, d.ID, nil, "open", startCtx.Err(), rollback)
	}
	l.sched.ResetCursor()
	c.live = l
	c.barrier = l.done
	c.state, c.phase = StateOpen, PhaseListening
	c.startCancel = nil
	c.startedAt = c.now()
	c.mu.Unlock()

	c.metrics.ConnectDuration.Record(ctx, time.Since(began).Seconds())
	c.metrics.RecordSessionStart(ctx, d.ID, "ok")
	c.metrics.ActiveSessions.Add(ctx, 1)
	log.Info("session started", "voice", d.Voice, "connect_ms", time.Since(began).Milliseconds())
	c.publish()

	if c.nudge {
		if text, err := c.catalog.Nudge(d); err != nil {
			log.Warn("session: render nudge", "err", err)
		} else if err := remote.SendText(sessCtx, text); err != nil {
			log.Warn("session: send nudge", "err", err)
		}
	}

	pump := capture.NewPump(capture.NewEncoder(c.inputRate, c.levelGain), remote.SendAudio,
		capture.WithLevelFunc(func(level float64) { c.setLevel(l, level) }),
		capture.WithDropFunc(func() { c.metrics.ChunksDropped.Add(sessCtx, 1) }),
		capture.WithSentFunc(func() { c.metrics.ChunksSent.Add(sessCtx, 1) }),
		capture.WithLogger(log),
	)
	go func() {
		defer close(l.pumpDone)
		pump.Run(sessCtx, in.Frames())
	}()
	go c.run(sessCtx, l)

	return nil
}

// failStart rolls back a Start and returns it to idle. kind is the sentinel
// to wrap; when startCtx was cancelled the error slot is left untouched.
func (c *Controller) failStart(ctx, startCtx context.Context, dialectID string, kind error, step string, cause error, rollback func()) error {
	if rollback != nil {
		rollback()
	}

	status := "cancelled"
	var err error
	switch {
	case startCtx.Err() != nil:
		err = fmt.Errorf("session: start: %s: %w", step, startCtx.Err())
	case errors.Is(kind, ErrPermission):
		status = "permission"
		err = fmt.Errorf("%w: %s: %w", kind, step, cause)
	default:
		status = "connection"
		err = fmt.Errorf("%w: %s: %w", kind, step, cause)
	}

	c.mu.Lock()
	c.state, c.phase = StateIdle, PhaseNone
	c.startCancel = nil
	c.level = 0
	if status != "cancelled" {
		c.err = err
	}
	c.mu.Unlock()

	c.metrics.RecordSessionStart(ctx, dialectID, status)
	c.log.Warn("session: start failed", "dialect", dialectID, "status", status, "err", err)
	c.publish()
	return err
}

func (c *Controller) newAccumulator(d dialect.Dialect) *transcript.Accumulator {
	opts := []transcript.Option{transcript.WithClock(c.now)}
	if c.scriptFilter && len(d.Scripts) > 0 {
		f, err := transcript.NewScriptFilter(d.Scripts...)
		if err != nil {
			c.log.Warn("session: script filter disabled", "dialect", d.ID, "err", err)
		} else {
			opts = append(opts, transcript.WithUserFilter(f))
		}
	}
	return transcript.NewAccumulator(opts...)
}

// ── Stop ───────────────────────────────────────────────────────────────────────

// Stop ends the current session and waits until every resource is released,
// or until ctx is done. A Start still in flight is cancelled. Stop on an idle
// Controller returns nil. Teardown failures are logged, never returned.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return nil
	}

	if c.live == nil {
		// Still connecting.
		done := c.startDone
		if c.startCancel != nil {
			c.startCancel()
		}
		c.state = StateClosing
		c.mu.Unlock()
		c.publish()
		return wait(ctx, done)
	}

	l := c.live
	c.state = StateClosing
	c.mu.Unlock()
	c.publish()

	l.cancel()
	return wait(ctx, l.done)
}

func wait(ctx context.Context, done <-chan struct{}) error {
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finish tears l down and returns the Controller to idle. err, if non-nil,
// becomes the recorded error.
func (c *Controller) finish(l *live, err error) {
	c.mu.Lock()
	if c.live == l {
		c.state = StateClosing
		if err != nil {
			c.err = err
		}
	}
	c.mu.Unlock()
	c.publish()

	c.teardown(l)

	c.mu.Lock()
	if c.live == l {
		c.live = nil
		c.state, c.phase = StateIdle, PhaseNone
		c.level = 0
		c.acc.ResetPending()
	}
	c.mu.Unlock()

	if err != nil {
		l.log.Warn("session ended with error", "err", err)
	} else {
		l.log.Info("session stopped")
	}
	c.publish()
	close(l.done)
}

// teardown releases every resource of l. Each step is best-effort.
func (c *Controller) teardown(l *live) {
	l.once.Do(func() {
		l.cancel()
		l.sched.Close()
		if err := l.in.Close(); err != nil {
			l.log.Warn("session: close input", "err", err)
		}
		<-l.pumpDone
		if err := l.remote.Close(); err != nil {
			l.log.Warn("session: close remote", "err", err)
		}
		if err := l.out.Close(); err != nil {
			l.log.Warn("session: close output", "err", err)
		}
		c.metrics.ActiveSessions.Add(context.Background(), -1)
	})
}

// ── ChangeDialect ──────────────────────────────────────────────────────────────

// ChangeDialect selects the dialect with the given ID. If a session is
// active it is stopped, the teardown barrier is awaited, the configured
// restart delay elapses, and a new session is started in the new dialect. On
// an idle Controller only the selection changes.
func (c *Controller) ChangeDialect(ctx context.Context, id string) error {
	d, err := c.catalog.Get(id)
	if err != nil {
		return fmt.Errorf("session: change dialect: %w", err)
	}

	c.mu.Lock()
	if c.state == StateIdle {
		c.dialect = d.ID
		c.mu.Unlock()
		c.publish()
		return nil
	}
	c.mu.Unlock()

	if err := c.Stop(ctx); err != nil {
		return fmt.Errorf("session: change dialect: %w", err)
	}

	c.mu.Lock()
	barrier := c.barrier
	c.mu.Unlock()
	if err := wait(ctx, barrier); err != nil {
		return fmt.Errorf("session: change dialect: %w", err)
	}

	if c.restartDelay > 0 {
		t := time.NewTimer(c.restartDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("session: change dialect: %w", ctx.Err())
		}
	}

	return c.Start(ctx, d.ID)
}

// ── Snapshot ───────────────────────────────────────────────────────────────────

// Snapshot returns the current observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		SessionID: c.sessionID,
		Dialect:   c.dialect,
		State:     c.state,
		Phase:     c.phase,
		Connected: c.state == StateOpen,
		Level:     c.level,
		StartedAt: c.startedAt,
	}
	s.PartialUser, s.PartialAssistant = c.acc.Partial()
	s.Transcript = c.acc.Turns()
	if c.err != nil {
		s.Err = c.err
		s.Error = c.err.Error()
	}
	return s
}

// Done returns a channel closed when the most recent session has torn down.
// It is nil before the first session opens.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.barrier
}

func (c *Controller) publish() {
	if c.listener == nil {
		return
	}
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	c.listener(c.Snapshot())
}
