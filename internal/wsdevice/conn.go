// Package wsdevice bridges a browser over a WebSocket into an
// [audio.Platform].
//
// The browser owns the real devices. When the session opens the microphone
// the server sends a "mic_request" and waits for the browser's "mic" reply,
// which carries the user's permission decision. Granted microphones stream
// little-endian float32 samples as binary frames. The speaker is driven the
// other way: each scheduled buffer is sent as a binary frame carrying its
// voice ID and start time on the device clock, and stopped voices are
// cancelled by ID.
//
// The same connection carries session commands ("start", "stop", "dialect")
// from the browser and snapshots to it.
package wsdevice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxdesk/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Platform     = (*Conn)(nil)
	_ audio.InputDevice  = (*inputDevice)(nil)
	_ audio.OutputDevice = (*outputDevice)(nil)
	_ audio.Voice        = (*voice)(nil)
)

// ErrClosed is returned by device operations after the browser went away.
var ErrClosed = errors.New("wsdevice: connection closed")

// ErrMicPending is returned by OpenInput while another permission request is
// outstanding on the same connection.
var ErrMicPending = errors.New("wsdevice: microphone request already pending")

// Command is a session command sent by the browser.
type Command struct {
	// Type is one of [TypeStart], [TypeStop] or [TypeDialect].
	Type string

	// Dialect is the requested dialect ID for start and dialect commands.
	Dialect string
}

// Option configures a [Conn].
type Option func(*Conn)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Conn) { c.log = l }
}

// WithWriteTimeout bounds every write issued by device methods that carry no
// context of their own. Defaults to 5s.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Conn) { c.writeTimeout = d }
}

// WithClock replaces the wall clock behind the speaker's device clock.
func WithClock(now func() time.Time) Option {
	return func(c *Conn) { c.now = now }
}

// Conn is one browser connection. It implements [audio.Platform]: devices it
// opens are backed by the browser on the other end.
//
// [Conn.Run] must be running for microphone permission replies, audio and
// commands to arrive.
type Conn struct {
	ws           *websocket.Conn
	log          *slog.Logger
	writeTimeout time.Duration
	now          func() time.Time

	cmds   chan Command
	closed chan struct{}

	mu       sync.Mutex
	micReply chan bool
	in       *inputDevice
	dropped  int
}

// New wraps an accepted WebSocket.
func New(ws *websocket.Conn, opts ...Option) *Conn {
	c := &Conn{
		ws:           ws,
		log:          slog.Default(),
		writeTimeout: 5 * time.Second,
		now:          time.Now,
		cmds:         make(chan Command, 8),
		closed:       make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Commands returns the channel of browser commands. It is closed when
// [Conn.Run] returns.
func (c *Conn) Commands() <-chan Command { return c.cmds }

// Done is closed when [Conn.Run] returns.
func (c *Conn) Done() <-chan struct{} { return c.closed }

// Run reads from the browser until the connection ends or ctx is cancelled.
// A normal closure by the browser returns nil.
func (c *Conn) Run(ctx context.Context) error {
	defer func() {
		c.mu.Lock()
		in := c.in
		c.in = nil
		c.mu.Unlock()
		if in != nil {
			in.end()
		}
		close(c.closed)
		close(c.cmds)
	}()

	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wsdevice: read: %w", err)
		}
		if typ == websocket.MessageBinary {
			c.handleAudio(data)
			continue
		}
		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Debug("wsdevice: ignoring malformed message", "err", err)
			continue
		}
		switch msg.Type {
		case TypeMic:
			c.mu.Lock()
			reply := c.micReply
			c.micReply = nil
			c.mu.Unlock()
			if reply != nil {
				reply <- msg.Granted
			}
		case TypeStart, TypeStop, TypeDialect:
			select {
			case c.cmds <- Command{Type: msg.Type, Dialect: msg.Dialect}:
			case <-ctx.Done():
				return nil
			}
		default:
			c.log.Debug("wsdevice: ignoring message", "type", msg.Type)
		}
	}
}

func (c *Conn) handleAudio(data []byte) {
	samples, err := decodeFloats(data)
	if err != nil {
		c.log.Debug("wsdevice: dropping microphone payload", "err", err)
		return
	}
	c.mu.Lock()
	in := c.in
	c.mu.Unlock()
	if in == nil {
		return
	}
	if n := in.push(samples); n > 0 {
		c.mu.Lock()
		c.dropped += n
		total := c.dropped
		c.mu.Unlock()
		c.log.Debug("wsdevice: microphone frames dropped", "dropped", n, "total", total)
	}
}

// Send writes v as a JSON text frame.
func (c *Conn) Send(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wsdevice: marshal: %w", err)
	}
	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("wsdevice: write: %w", err)
	}
	return nil
}

// SendSnapshot pushes a session snapshot to the browser.
func (c *Conn) SendSnapshot(ctx context.Context, snap any) error {
	return c.Send(ctx, message{Type: TypeSnapshot, Snapshot: snap})
}

// sendBounded writes msg with the configured write timeout.
func (c *Conn) sendBounded(msg any) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
	defer cancel()
	return c.Send(ctx, msg)
}

func (c *Conn) writeBinary(data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
	defer cancel()
	if err := c.ws.Write(ctx, websocket.MessageBinary, data); err != nil {
		return fmt.Errorf("wsdevice: write: %w", err)
	}
	return nil
}

// OpenInput implements [audio.Platform]. It asks the browser for the
// microphone and blocks until the user answers, ctx is done, or the
// connection ends. A refusal wraps [audio.ErrPermissionDenied].
func (c *Conn) OpenInput(ctx context.Context, sampleRate, frameSize int) (audio.InputDevice, error) {
	select {
	case <-c.closed:
		return nil, ErrClosed
	default:
	}
	if sampleRate <= 0 || frameSize <= 0 {
		return nil, fmt.Errorf("wsdevice: invalid input geometry rate=%d frame=%d", sampleRate, frameSize)
	}

	reply := make(chan bool, 1)
	c.mu.Lock()
	if c.micReply != nil {
		c.mu.Unlock()
		return nil, ErrMicPending
	}
	c.micReply = reply
	c.mu.Unlock()
	release := func() {
		c.mu.Lock()
		if c.micReply == reply {
			c.micReply = nil
		}
		c.mu.Unlock()
	}

	if err := c.Send(ctx, message{Type: TypeMicRequest, Rate: sampleRate, Frame: frameSize}); err != nil {
		release()
		return nil, err
	}

	var granted bool
	select {
	case granted = <-reply:
	case <-ctx.Done():
		release()
		return nil, ctx.Err()
	case <-c.closed:
		return nil, ErrClosed
	}
	if !granted {
		return nil, fmt.Errorf("wsdevice: browser refused microphone: %w", audio.ErrPermissionDenied)
	}

	in := &inputDevice{
		conn:      c,
		rate:      sampleRate,
		frameSize: frameSize,
		frames:    make(chan audio.Frame, 32),
	}
	c.mu.Lock()
	prev := c.in
	c.in = in
	c.mu.Unlock()
	if prev != nil {
		prev.end()
	}
	return in, nil
}

// OpenOutput implements [audio.Platform]. The speaker is announced to the
// browser on Resume.
func (c *Conn) OpenOutput(_ context.Context, sampleRate int) (audio.OutputDevice, error) {
	select {
	case <-c.closed:
		return nil, ErrClosed
	default:
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("wsdevice: invalid output rate %d", sampleRate)
	}
	return &outputDevice{conn: c, rate: sampleRate, voices: make(map[uint64]*voice)}, nil
}

// ─── Input ────────────────────────────────────────────────────────────────────

// inputDevice reassembles browser payloads of any size into fixed frames.
type inputDevice struct {
	conn      *Conn
	rate      int
	frameSize int
	frames    chan audio.Frame

	mu      sync.Mutex
	resumed bool
	ended   bool
	pending []float32
	emitted int
}

func (d *inputDevice) Resume(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ended {
		return audio.ErrDeviceClosed
	}
	d.resumed = true
	return nil
}

func (d *inputDevice) Frames() <-chan audio.Frame { return d.frames }

// push buffers samples and emits every complete frame. Frames that do not
// fit the channel are dropped; the count is returned.
func (d *inputDevice) push(samples []float32) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.resumed || d.ended {
		return 0
	}
	d.pending = append(d.pending, samples...)
	dropped := 0
	for len(d.pending) >= d.frameSize {
		f := audio.Frame{
			Samples:    append([]float32(nil), d.pending[:d.frameSize]...),
			SampleRate: d.rate,
			Timestamp:  audio.SamplesDuration(d.emitted, d.rate),
		}
		d.pending = d.pending[d.frameSize:]
		d.emitted += d.frameSize
		select {
		case d.frames <- f:
		default:
			dropped++
		}
	}
	return dropped
}

// end closes the frame channel once.
func (d *inputDevice) end() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ended {
		return false
	}
	d.ended = true
	d.pending = nil
	close(d.frames)
	return true
}

// Close releases the microphone and tells the browser to stop streaming.
func (d *inputDevice) Close() error {
	c := d.conn
	c.mu.Lock()
	if c.in == d {
		c.in = nil
	}
	c.mu.Unlock()
	if !d.end() {
		return nil
	}
	select {
	case <-c.closed:
		return nil
	default:
	}
	return c.sendBounded(message{Type: TypeMicRelease})
}

// ─── Output ───────────────────────────────────────────────────────────────────

// outputDevice mirrors the browser speaker. Its clock starts when the
// speaker is announced; the browser anchors scheduled start times to the
// moment it received that announcement.
type outputDevice struct {
	conn *Conn
	rate int

	mu      sync.Mutex
	started time.Time
	resumed bool
	closed  bool
	last    time.Duration
	nextID  uint64
	voices  map[uint64]*voice
}

func (d *outputDevice) Resume(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return audio.ErrDeviceClosed
	}
	if d.resumed {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	if err := d.conn.Send(ctx, message{Type: TypeSpeaker, Rate: d.rate}); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.resumed {
		d.resumed = true
		d.started = d.conn.now()
	}
	return nil
}

func (d *outputDevice) Now() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clock()
}

func (d *outputDevice) clock() time.Duration {
	if !d.resumed || d.closed {
		return d.last
	}
	if t := d.conn.now().Sub(d.started); t > d.last {
		d.last = t
	}
	return d.last
}

func (d *outputDevice) Play(samples []float32, at time.Duration) (audio.Voice, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, audio.ErrDeviceClosed
	}
	d.nextID++
	v := &voice{dev: d, id: d.nextID, done: make(chan struct{})}
	end := at + audio.SamplesDuration(len(samples), d.rate)
	wait := max(end-d.clock(), 0)
	d.mu.Unlock()

	if err := d.conn.writeBinary(encodePlayback(v.id, at, samples)); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		v.ended = true
		close(v.done)
		return v, nil
	}
	d.voices[v.id] = v
	v.timer = time.AfterFunc(wait, v.finish)
	return v, nil
}

// Close stops every voice and releases the speaker.
func (d *outputDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.clock()
	d.closed = true
	for id, v := range d.voices {
		v.endLocked()
		delete(d.voices, id)
	}
	d.mu.Unlock()

	select {
	case <-d.conn.closed:
		return nil
	default:
	}
	return d.conn.sendBounded(message{Type: TypeSpeakerRelease})
}

// ─── Voice ────────────────────────────────────────────────────────────────────

type voice struct {
	dev   *outputDevice
	id    uint64
	timer *time.Timer
	ended bool
	done  chan struct{}
}

// Stop silences the buffer locally and asks the browser to stop it.
func (v *voice) Stop() {
	d := v.dev
	d.mu.Lock()
	if v.ended {
		d.mu.Unlock()
		return
	}
	v.endLocked()
	delete(d.voices, v.id)
	d.mu.Unlock()

	select {
	case <-d.conn.closed:
		return
	default:
	}
	if err := d.conn.sendBounded(message{Type: TypeCancel, ID: v.id}); err != nil {
		d.conn.log.Debug("wsdevice: cancel voice", "id", v.id, "err", err)
	}
}

func (v *voice) Done() <-chan struct{} { return v.done }

func (v *voice) endLocked() {
	if v.ended {
		return
	}
	if v.timer != nil {
		v.timer.Stop()
	}
	v.ended = true
	close(v.done)
}

func (v *voice) finish() {
	d := v.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	v.endLocked()
	delete(d.voices, v.id)
}
