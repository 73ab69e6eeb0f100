// Package audio defines the device abstractions and PCM helpers used by the
// VoxDesk duplex voice pipeline.
//
// The three primary abstractions are:
//
//   - [Platform]: opens capture and playback devices for one session.
//   - [InputDevice]: a microphone that delivers fixed-size [Frame] values.
//   - [OutputDevice]: a speaker with its own clock onto which decoded buffers
//     are scheduled at absolute start times, returning a [Voice] per buffer.
//
// Implementations are provided by adapter packages (the browser bridge in
// internal/wsdevice, WAV files in audio/wavdev, and audio/mock for tests).
//
// This package lives under pkg/ because external code is expected to
// implement [Platform] for other device backends.
package audio

import (
	"context"
	"errors"
	"time"
)

// ErrPermissionDenied is returned (possibly wrapped) by [Platform.OpenInput]
// when the user refuses microphone access or no capture device is available.
var ErrPermissionDenied = errors.New("audio: microphone permission denied")

// ErrDeviceClosed is returned by device methods called after Close.
var ErrDeviceClosed = errors.New("audio: device closed")

// Platform opens the audio devices for one session.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// OpenInput acquires the microphone. Frames are delivered at sampleRate in
	// blocks of frameSize mono samples. Devices may start suspended; callers
	// must call [InputDevice.Resume] before frames flow.
	//
	// A refused permission or a missing device must wrap [ErrPermissionDenied].
	OpenInput(ctx context.Context, sampleRate, frameSize int) (InputDevice, error)

	// OpenOutput acquires the playback device at sampleRate. Like inputs,
	// outputs may start suspended and must be resumed before use.
	OpenOutput(ctx context.Context, sampleRate int) (OutputDevice, error)
}

// InputDevice is an open microphone.
type InputDevice interface {
	// Resume starts (or un-suspends) capture.
	Resume(ctx context.Context) error

	// Frames returns the channel of captured frames. The channel is closed
	// when the device is closed or the underlying source ends.
	Frames() <-chan Frame

	// Close releases the microphone. It is safe to call Close more than once.
	Close() error
}

// OutputDevice is an open playback device.
type OutputDevice interface {
	// Resume starts (or un-suspends) the device clock.
	Resume(ctx context.Context) error

	// Now reports the device clock. It is monotonically non-decreasing for
	// the lifetime of the device.
	Now() time.Duration

	// Play schedules samples (mono, at the device rate, in [-1,1]) to start at
	// the absolute device time at. The returned [Voice] controls that buffer.
	Play(samples []float32, at time.Duration) (Voice, error)

	// Close stops every scheduled buffer and releases the device. It is safe
	// to call Close more than once.
	Close() error
}

// Voice is a single scheduled buffer on an [OutputDevice].
type Voice interface {
	// Stop silences the buffer immediately. Stopping an already stopped or
	// finished voice is a no-op.
	Stop()

	// Done is closed when the buffer finishes playing or is stopped.
	Done() <-chan struct{}
}
