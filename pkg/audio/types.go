package audio

import (
	"fmt"
	"time"
)

const (
	// InputSampleRate is the capture rate expected by speech-to-speech models.
	InputSampleRate = 16000

	// OutputSampleRate is the rate of synthesised model audio.
	OutputSampleRate = 24000

	// DefaultFrameSize is the number of samples per captured frame.
	DefaultFrameSize = 2048

	// DefaultLevelGain maps frame RMS to the 0–100 level scale.
	DefaultLevelGain = 500.0
)

// Frame is a block of mono audio samples captured from an [InputDevice].
// Frames are ephemeral: they are encoded immediately and never retained.
type Frame struct {
	// Samples are nominally in [-1,1]. Out-of-range values are clamped at
	// quantisation time, never rejected.
	Samples []float32

	// SampleRate in Hz (16000 for model input).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to device start.
	Timestamp time.Duration
}

// Duration reports how long the frame lasts at its sample rate.
func (f Frame) Duration() time.Duration {
	return SamplesDuration(len(f.Samples), f.SampleRate)
}

// EncodedChunk is the wire form of a [Frame]: base64 little-endian PCM16 with
// a MIME tag naming the format and rate. It is immutable once created.
type EncodedChunk struct {
	// MIMEType is e.g. "audio/pcm;rate=16000".
	MIMEType string

	// Data is the standard base64 encoding of the PCM16 bytes.
	Data string
}

// PCMMIMEType returns the MIME descriptor for raw PCM16 at rate.
func PCMMIMEType(rate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", rate)
}

// SamplesDuration reports the playing time of n mono samples at rate.
func SamplesDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(rate))
}
