// Package tts defines the Provider interface for one-shot Text-to-Speech
// backends.
//
// A provider renders a complete utterance to raw PCM. The HTTP layer wraps the
// result in a WAV container; the offline CLI writes it straight to a file.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Audio is a synthesised utterance.
type Audio struct {
	// PCM holds signed 16-bit little-endian mono samples.
	PCM []byte

	// SampleRate is the rate of PCM in Hz.
	SampleRate int
}

// Duration returns the playback length of a in seconds.
func (a Audio) Duration() float64 {
	if a.SampleRate <= 0 {
		return 0
	}
	return float64(len(a.PCM)/2) / float64(a.SampleRate)
}

// Provider is the abstraction over any one-shot TTS backend.
type Provider interface {
	// Synthesize renders text with the named voice. An empty voice selects the
	// backend default.
	Synthesize(ctx context.Context, text, voice string) (Audio, error)
}
