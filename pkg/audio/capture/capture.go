// Package capture turns microphone frames into wire-ready [audio.EncodedChunk]
// values and forwards them to a remote session without ever blocking the
// device's frame channel on network I/O.
//
// [Encoder] is the synchronous, allocation-light transform (quantise, pack,
// base64, level). [Pump] drives an encoder from an [audio.InputDevice] and
// hands chunks to a single sender goroutine through a bounded queue, so
// outbound chunks keep capture order and a slow network drops chunks instead
// of stalling capture.
package capture

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync"

	"github.com/MrWong99/voxdesk/pkg/audio"
)

const defaultQueueSize = 32

// ── Encoder ────────────────────────────────────────────────────────────────────

// Encoder converts frames at a fixed sample rate into [audio.EncodedChunk]s.
// It performs no I/O and is safe for concurrent use.
type Encoder struct {
	mimeType string
	gain     float64
}

// NewEncoder returns an Encoder tagging chunks with sampleRate and scaling
// frame RMS by gain for the 0–100 level. A non-positive gain falls back to
// [audio.DefaultLevelGain].
func NewEncoder(sampleRate int, gain float64) *Encoder {
	if gain <= 0 {
		gain = audio.DefaultLevelGain
	}
	return &Encoder{mimeType: audio.PCMMIMEType(sampleRate), gain: gain}
}

// Encode returns the wire chunk for f and its signal level in [0,100].
// It never fails: out-of-range and non-finite samples are clamped.
func (e *Encoder) Encode(f audio.Frame) (audio.EncodedChunk, float64) {
	level := audio.Level(f.Samples, e.gain)
	chunk := audio.EncodedChunk{
		MIMEType: e.mimeType,
		Data:     base64.StdEncoding.EncodeToString(audio.EncodePCM16(f.Samples)),
	}
	return chunk, level
}

// MIMEType returns the tag placed on every chunk.
func (e *Encoder) MIMEType() string { return e.mimeType }

// ── Pump ───────────────────────────────────────────────────────────────────────

// SendFunc delivers one chunk to the remote session.
type SendFunc func(ctx context.Context, chunk audio.EncodedChunk) error

// PumpOption configures a [Pump].
type PumpOption func(*Pump)

// WithQueueSize sets the number of encoded chunks buffered between capture
// and the sender. When the queue is full new chunks are dropped.
func WithQueueSize(n int) PumpOption {
	return func(p *Pump) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithLevelFunc registers a callback receiving the level of every frame.
// It runs on the capture goroutine and must not block.
func WithLevelFunc(fn func(level float64)) PumpOption {
	return func(p *Pump) { p.onLevel = fn }
}

// WithDropFunc registers a callback invoked whenever a chunk is dropped
// because the send queue is full.
func WithDropFunc(fn func()) PumpOption {
	return func(p *Pump) { p.onDrop = fn }
}

// WithSentFunc registers a callback invoked after each successful send.
func WithSentFunc(fn func()) PumpOption {
	return func(p *Pump) { p.onSent = fn }
}

// WithLogger sets the logger used for send failures.
func WithLogger(l *slog.Logger) PumpOption {
	return func(p *Pump) { p.log = l }
}

// Pump reads frames, encodes them, and forwards them to a [SendFunc].
type Pump struct {
	enc       *Encoder
	send      SendFunc
	queueSize int
	onLevel   func(float64)
	onDrop    func()
	onSent    func()
	log       *slog.Logger
}

// NewPump creates a Pump that encodes with enc and delivers with send.
func NewPump(enc *Encoder, send SendFunc, opts ...PumpOption) *Pump {
	p := &Pump{
		enc:       enc,
		send:      send,
		queueSize: defaultQueueSize,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run consumes frames until the channel closes or ctx is cancelled. It
// returns only after the sender goroutine has exited, so no send happens
// after Run returns. Chunks still queued when ctx is cancelled are discarded.
func (p *Pump) Run(ctx context.Context, frames <-chan audio.Frame) {
	queue := make(chan audio.EncodedChunk, p.queueSize)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.sendLoop(ctx, queue)
	}()
	defer wg.Wait()
	defer close(queue)

	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			chunk, level := p.enc.Encode(f)
			if p.onLevel != nil {
				p.onLevel(level)
			}
			select {
			case queue <- chunk:
			default:
				if p.onDrop != nil {
					p.onDrop()
				}
			}
		}
	}
}

func (p *Pump) sendLoop(ctx context.Context, queue <-chan audio.EncodedChunk) {
	failures := 0
	for chunk := range queue {
		if ctx.Err() != nil {
			continue
		}
		if err := p.send(ctx, chunk); err != nil {
			// First failure and every 50th after it.
			if failures%50 == 0 {
				p.log.Warn("capture: send audio chunk failed", "err", err, "failures", failures+1)
			}
			failures++
			continue
		}
		if p.onSent != nil {
			p.onSent()
		}
	}
}
