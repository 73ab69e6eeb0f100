// Package mock provides in-memory mock implementations of the [audio.Platform],
// [audio.InputDevice], [audio.OutputDevice], and [audio.Voice] interfaces for
// use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// The output device has a manual clock: tests move it with [OutputDevice.Advance],
// which also finishes every voice whose buffer has fully played.
//
// Typical usage:
//
//	in := mock.NewInputDevice(8)
//	out := mock.NewOutputDevice(24000)
//	platform := &mock.Platform{Input: in, Output: out}
//	in.Push(audio.Frame{Samples: make([]float32, 2048), SampleRate: 16000})
//	out.Advance(time.Second)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/voxdesk/pkg/audio"
)

// Compile-time assertions.
var (
	_ audio.Platform     = (*Platform)(nil)
	_ audio.InputDevice  = (*InputDevice)(nil)
	_ audio.OutputDevice = (*OutputDevice)(nil)
	_ audio.Voice        = (*Voice)(nil)
)

// ─── Platform ─────────────────────────────────────────────────────────────────

// Platform is a mock implementation of [audio.Platform].
type Platform struct {
	mu sync.Mutex

	// Input is returned by OpenInput unless OpenInputErr is set.
	Input *InputDevice

	// Output is returned by OpenOutput unless OpenOutputErr is set.
	Output *OutputDevice

	// OpenInputErr is returned by OpenInput.
	OpenInputErr error

	// OpenOutputErr is returned by OpenOutput.
	OpenOutputErr error

	// Block, when non-nil, makes OpenInput wait until it is closed or ctx is
	// done. Used to simulate a pending permission prompt.
	Block chan struct{}

	// InputCalls and OutputCalls count successful and failed opens.
	InputCalls  int
	OutputCalls int

	// LastFrameSize and LastInputRate record the most recent OpenInput args.
	LastFrameSize int
	LastInputRate int

	// LastOutputRate records the most recent OpenOutput rate.
	LastOutputRate int

	// LastInput and LastOutput are the devices most recently handed out.
	// When Input or Output is nil a fresh device is created per open.
	LastInput  *InputDevice
	LastOutput *OutputDevice
}

// OpenInput implements [audio.Platform].
func (p *Platform) OpenInput(ctx context.Context, sampleRate, frameSize int) (audio.InputDevice, error) {
	p.mu.Lock()
	p.InputCalls++
	p.LastInputRate = sampleRate
	p.LastFrameSize = frameSize
	block := p.Block
	err := p.OpenInputErr
	in := p.Input
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if in == nil {
		in = NewInputDevice(8)
	}
	p.mu.Lock()
	p.LastInput = in
	p.mu.Unlock()
	return in, nil
}

// OpenOutput implements [audio.Platform].
func (p *Platform) OpenOutput(_ context.Context, sampleRate int) (audio.OutputDevice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OutputCalls++
	p.LastOutputRate = sampleRate
	if p.OpenOutputErr != nil {
		return nil, p.OpenOutputErr
	}
	out := p.Output
	if out == nil {
		out = NewOutputDevice(sampleRate)
	}
	p.LastOutput = out
	return out, nil
}

// Devices returns the most recently opened input and output devices.
func (p *Platform) Devices() (*InputDevice, *OutputDevice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.LastInput, p.LastOutput
}

// Counts returns InputCalls and OutputCalls.
func (p *Platform) Counts() (inputs, outputs int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.InputCalls, p.OutputCalls
}

// ─── InputDevice ──────────────────────────────────────────────────────────────

// InputDevice is a mock microphone. Tests feed frames with [InputDevice.Push].
type InputDevice struct {
	mu     sync.Mutex
	frames chan audio.Frame
	closed bool

	// ResumeErr is returned by Resume.
	ResumeErr error

	// ResumeCalls and CloseCalls count method invocations.
	ResumeCalls int
	CloseCalls  int
}

// NewInputDevice returns an input device whose frame channel has capacity buf.
func NewInputDevice(buf int) *InputDevice {
	return &InputDevice{frames: make(chan audio.Frame, buf)}
}

// Resume implements [audio.InputDevice].
func (d *InputDevice) Resume(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ResumeCalls++
	return d.ResumeErr
}

// Frames implements [audio.InputDevice].
func (d *InputDevice) Frames() <-chan audio.Frame { return d.frames }

// Push delivers f to the frame channel without blocking. It reports false if
// the device is closed or the channel buffer is full.
func (d *InputDevice) Push(f audio.Frame) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	select {
	case d.frames <- f:
		return true
	default:
		return false
	}
}

// Close implements [audio.InputDevice]. The frame channel is closed once.
func (d *InputDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CloseCalls++
	if !d.closed {
		d.closed = true
		close(d.frames)
	}
	return nil
}

// Closed reports whether Close has been called.
func (d *InputDevice) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// ─── OutputDevice ─────────────────────────────────────────────────────────────

// Scheduled records one [OutputDevice.Play] call.
type Scheduled struct {
	Samples []float32
	At      time.Duration
	Voice   *Voice
}

// OutputDevice is a mock speaker with a manual clock.
type OutputDevice struct {
	mu     sync.Mutex
	rate   int
	now    time.Duration
	closed bool

	// ResumeErr is returned by Resume; CloseErr by Close; PlayErr by Play.
	ResumeErr error
	CloseErr  error
	PlayErr   error

	// Instant finishes every voice as soon as it is scheduled.
	Instant bool

	// Plays lists every scheduled buffer in call order.
	Plays []Scheduled

	// ResumeCalls and CloseCalls count method invocations.
	ResumeCalls int
	CloseCalls  int
}

// NewOutputDevice returns an output device at rate with its clock at zero.
func NewOutputDevice(rate int) *OutputDevice {
	return &OutputDevice{rate: rate}
}

// Resume implements [audio.OutputDevice].
func (d *OutputDevice) Resume(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ResumeCalls++
	return d.ResumeErr
}

// Now implements [audio.OutputDevice].
func (d *OutputDevice) Now() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.now
}

// Play implements [audio.OutputDevice].
func (d *OutputDevice) Play(samples []float32, at time.Duration) (audio.Voice, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.PlayErr != nil {
		return nil, d.PlayErr
	}
	if d.closed {
		return nil, audio.ErrDeviceClosed
	}
	v := &Voice{done: make(chan struct{}), end: at + audio.SamplesDuration(len(samples), d.rate)}
	d.Plays = append(d.Plays, Scheduled{Samples: samples, At: at, Voice: v})
	if d.Instant {
		v.finish()
	}
	return v, nil
}

// Advance moves the clock forward by delta and finishes every voice whose
// buffer has ended by the new time.
func (d *OutputDevice) Advance(delta time.Duration) {
	d.mu.Lock()
	d.now += delta
	now := d.now
	var finished []*Voice
	for _, p := range d.Plays {
		if p.Voice.end <= now {
			finished = append(finished, p.Voice)
		}
	}
	d.mu.Unlock()

	for _, v := range finished {
		v.finish()
	}
}

// Close implements [audio.OutputDevice]. Every scheduled voice is stopped.
func (d *OutputDevice) Close() error {
	d.mu.Lock()
	d.CloseCalls++
	d.closed = true
	plays := append([]Scheduled(nil), d.Plays...)
	err := d.CloseErr
	d.mu.Unlock()

	for _, p := range plays {
		p.Voice.Stop()
	}
	return err
}

// Closed reports whether Close has been called.
func (d *OutputDevice) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Scheduled returns a copy of every Play call so far.
func (d *OutputDevice) Scheduled() []Scheduled {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Scheduled(nil), d.Plays...)
}

// ─── Voice ────────────────────────────────────────────────────────────────────

// Voice is a mock scheduled buffer.
type Voice struct {
	mu      sync.Mutex
	done    chan struct{}
	end     time.Duration
	ended   bool
	stopped bool

	// StopCalls counts Stop invocations, including no-op repeats.
	StopCalls int
}

// Stop implements [audio.Voice].
func (v *Voice) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.StopCalls++
	if v.ended {
		return
	}
	v.ended = true
	v.stopped = true
	close(v.done)
}

// Done implements [audio.Voice].
func (v *Voice) Done() <-chan struct{} { return v.done }

// Stopped reports whether the voice was stopped rather than finishing.
func (v *Voice) Stopped() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stopped
}

func (v *Voice) finish() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.ended {
		return
	}
	v.ended = true
	close(v.done)
}
