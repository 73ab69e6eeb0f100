// Package wavdev provides an [audio.Platform] backed by WAV files, used for
// offline sessions.
//
// The input device replays a decoded WAV file as microphone frames, paced to
// the wall clock so the remote service sees a live speaker. Trailing silence
// can be appended so the model has time to answer. The output device keeps a
// real-time clock, records every scheduled buffer on a timeline, and renders
// the timeline into a WAV file when it is closed.
package wavdev

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/voxdesk/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Platform     = (*Platform)(nil)
	_ audio.InputDevice  = (*InputDevice)(nil)
	_ audio.OutputDevice = (*OutputDevice)(nil)
	_ audio.Voice        = (*Voice)(nil)
)

// Option configures a [Platform].
type Option func(*Platform)

// WithRealtime controls whether input frames are paced to the wall clock.
// Defaults to true.
func WithRealtime(on bool) Option {
	return func(p *Platform) { p.realtime = on }
}

// WithTail appends d of silence after the source audio.
func WithTail(d time.Duration) Option {
	return func(p *Platform) { p.tail = d }
}

// WithRecordPath makes every output device write its rendered timeline to
// path when it is closed.
func WithRecordPath(path string) Option {
	return func(p *Platform) { p.recordPath = path }
}

// WithClock replaces the wall clock read by output devices.
func WithClock(now func() time.Time) Option {
	return func(p *Platform) { p.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Platform) { p.log = l }
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// Platform opens WAV-backed devices. It is safe for concurrent use.
type Platform struct {
	source     []int16
	format     audio.Format
	hasSource  bool
	realtime   bool
	tail       time.Duration
	recordPath string
	now        func() time.Time
	log        *slog.Logger

	mu      sync.Mutex
	lastOut *OutputDevice
}

// New creates a Platform whose microphone replays the WAV file in data. A nil
// data yields a platform without a microphone: OpenInput then fails with
// [audio.ErrPermissionDenied].
func New(data []byte, opts ...Option) (*Platform, error) {
	p := &Platform{
		realtime: true,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	if data != nil {
		samples, f, err := audio.DecodeWAV(data)
		if err != nil {
			return nil, fmt.Errorf("wavdev: %w", err)
		}
		p.source, p.format, p.hasSource = samples, f, true
	}
	return p, nil
}

// Open reads the WAV file at path and calls [New].
func Open(path string, opts ...Option) (*Platform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wavdev: read %q: %w", path, err)
	}
	return New(data, opts...)
}

// Duration returns the length of the source audio, excluding the tail.
func (p *Platform) Duration() time.Duration {
	if !p.hasSource || p.format.Channels <= 0 {
		return 0
	}
	return audio.SamplesDuration(len(p.source)/p.format.Channels, p.format.SampleRate)
}

// OpenInput implements [audio.Platform]. The source is downmixed and
// resampled to sampleRate.
func (p *Platform) OpenInput(ctx context.Context, sampleRate, frameSize int) (audio.InputDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !p.hasSource {
		return nil, fmt.Errorf("wavdev: no input file: %w", audio.ErrPermissionDenied)
	}
	if sampleRate <= 0 || frameSize <= 0 {
		return nil, fmt.Errorf("wavdev: invalid input geometry rate=%d frame=%d", sampleRate, frameSize)
	}
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: sampleRate, Channels: 1}}
	samples := audio.Int16ToFloat(conv.Convert(p.source, p.format))
	if p.tail > 0 {
		samples = append(samples, make([]float32, int(int64(p.tail)*int64(sampleRate)/int64(time.Second)))...)
	}
	p.log.Debug("wavdev: input opened",
		"source", p.format.String(),
		"duration", audio.SamplesDuration(len(samples), sampleRate),
	)
	return &InputDevice{
		samples:   samples,
		rate:      sampleRate,
		frameSize: frameSize,
		realtime:  p.realtime,
		frames:    make(chan audio.Frame, 16),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// OpenOutput implements [audio.Platform].
func (p *Platform) OpenOutput(ctx context.Context, sampleRate int) (audio.OutputDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("wavdev: invalid output rate %d", sampleRate)
	}
	out := &OutputDevice{
		rate: sampleRate,
		path: p.recordPath,
		now:  p.now,
		log:  p.log,
	}
	p.mu.Lock()
	p.lastOut = out
	p.mu.Unlock()
	return out, nil
}

// LastOutput returns the most recently opened output device, or nil.
func (p *Platform) LastOutput() *OutputDevice {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastOut
}

// ─── Input ────────────────────────────────────────────────────────────────────

// InputDevice replays decoded samples as fixed-size frames. The final frame
// is zero-padded. The frame channel closes when the samples run out.
type InputDevice struct {
	samples   []float32
	rate      int
	frameSize int
	realtime  bool

	frames    chan audio.Frame
	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// Resume implements [audio.InputDevice]. The first call starts the replay.
func (d *InputDevice) Resume(context.Context) error {
	select {
	case <-d.stop:
		return audio.ErrDeviceClosed
	default:
	}
	d.startOnce.Do(func() { go d.run() })
	return nil
}

// Frames implements [audio.InputDevice].
func (d *InputDevice) Frames() <-chan audio.Frame { return d.frames }

// Close implements [audio.InputDevice].
func (d *InputDevice) Close() error {
	d.closeOnce.Do(func() {
		close(d.stop)
		started := true
		d.startOnce.Do(func() {
			started = false
			close(d.frames)
			close(d.done)
		})
		if started {
			<-d.done
		}
	})
	return nil
}

func (d *InputDevice) run() {
	defer close(d.done)
	defer close(d.frames)

	var tick <-chan time.Time
	if d.realtime {
		t := time.NewTicker(audio.SamplesDuration(d.frameSize, d.rate))
		defer t.Stop()
		tick = t.C
	}

	for off := 0; off < len(d.samples); off += d.frameSize {
		buf := make([]float32, d.frameSize)
		copy(buf, d.samples[off:min(off+d.frameSize, len(d.samples))])
		f := audio.Frame{
			Samples:    buf,
			SampleRate: d.rate,
			Timestamp:  audio.SamplesDuration(off, d.rate),
		}
		if tick != nil {
			select {
			case <-tick:
			case <-d.stop:
				return
			}
		}
		select {
		case d.frames <- f:
		case <-d.stop:
			return
		}
	}
}

// ─── Output ───────────────────────────────────────────────────────────────────

// OutputDevice records scheduled buffers against a real-time clock.
type OutputDevice struct {
	rate int
	path string
	now  func() time.Time
	log  *slog.Logger

	mu       sync.Mutex
	started  time.Time
	resumed  bool
	closed   bool
	frozen   time.Duration
	voices   []*Voice
	rendered []int16
}

// Resume implements [audio.OutputDevice]. The clock starts at zero on the
// first call.
func (d *OutputDevice) Resume(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return audio.ErrDeviceClosed
	}
	if !d.resumed {
		d.resumed = true
		d.started = d.now()
	}
	return nil
}

// Now implements [audio.OutputDevice].
func (d *OutputDevice) Now() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clock()
}

func (d *OutputDevice) clock() time.Duration {
	if !d.resumed || d.closed {
		return d.frozen
	}
	t := d.now().Sub(d.started)
	if t < d.frozen {
		return d.frozen
	}
	d.frozen = t
	return t
}

// Play implements [audio.OutputDevice].
func (d *OutputDevice) Play(samples []float32, at time.Duration) (audio.Voice, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, audio.ErrDeviceClosed
	}
	v := &Voice{
		dev:     d,
		at:      at,
		samples: append([]float32(nil), samples...),
		played:  len(samples),
		done:    make(chan struct{}),
	}
	end := at + audio.SamplesDuration(len(samples), d.rate)
	v.timer = time.AfterFunc(max(end-d.clock(), 0), v.finish)
	d.voices = append(d.voices, v)
	return v, nil
}

// Close implements [audio.OutputDevice]. Voices still playing are cut at the
// current clock, the timeline is rendered, and it is written to the record
// path when one is configured.
func (d *OutputDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	now := d.clock()
	d.closed = true
	for _, v := range d.voices {
		v.stopLocked(now)
	}
	d.rendered = d.render()
	rendered, path := d.rendered, d.path
	d.mu.Unlock()

	if path == "" {
		return nil
	}
	data, err := audio.EncodeWAV(rendered, audio.Format{SampleRate: d.rate, Channels: 1})
	if err != nil {
		return fmt.Errorf("wavdev: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("wavdev: write %q: %w", path, err)
	}
	d.log.Info("wavdev: recording written",
		"path", path,
		"duration", audio.SamplesDuration(len(rendered), d.rate),
	)
	return nil
}

// Recording returns the rendered timeline. Before Close it renders what has
// been scheduled so far.
func (d *OutputDevice) Recording() []int16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return d.rendered
	}
	return d.render()
}

// render mixes every voice's played prefix at its start offset. Overlaps are
// summed and clamped by quantisation.
func (d *OutputDevice) render() []int16 {
	length := 0
	for _, v := range d.voices {
		length = max(length, d.offset(v.at)+v.played)
	}
	mix := make([]float32, length)
	for _, v := range d.voices {
		start := d.offset(v.at)
		for i, s := range v.samples[:v.played] {
			mix[start+i] += s
		}
	}
	return audio.FloatToInt16(mix)
}

func (d *OutputDevice) offset(t time.Duration) int {
	if t <= 0 {
		return 0
	}
	return int(int64(t) * int64(d.rate) / int64(time.Second))
}

// ─── Voice ────────────────────────────────────────────────────────────────────

// Voice is one buffer on an [OutputDevice] timeline.
type Voice struct {
	dev     *OutputDevice
	at      time.Duration
	samples []float32
	played  int // samples kept in the rendered timeline
	timer   *time.Timer
	ended   bool
	done    chan struct{}
}

// Stop implements [audio.Voice]. Only the part that already played stays on
// the timeline.
func (v *Voice) Stop() {
	v.dev.mu.Lock()
	defer v.dev.mu.Unlock()
	v.stopLocked(v.dev.clock())
}

// Done implements [audio.Voice].
func (v *Voice) Done() <-chan struct{} { return v.done }

func (v *Voice) stopLocked(now time.Duration) {
	if v.ended {
		return
	}
	v.timer.Stop()
	elapsed := 0
	if now > v.at {
		elapsed = v.dev.offset(now - v.at)
	}
	v.played = min(elapsed, len(v.samples))
	v.ended = true
	close(v.done)
}

func (v *Voice) finish() {
	v.dev.mu.Lock()
	defer v.dev.mu.Unlock()
	if v.ended {
		return
	}
	v.ended = true
	close(v.done)
}
