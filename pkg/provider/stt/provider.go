// Package stt defines the Provider interface for one-shot Speech-to-Text
// backends.
//
// A provider receives a complete recorded utterance and returns its text in
// the script the speaker used. Streaming recognition is handled by the live
// session (see package s2s); this interface covers the request/response path
// behind POST /v1/transcribe.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Provider is the abstraction over any one-shot STT backend.
type Provider interface {
	// Transcribe converts audio, encoded as mimeType (for example "audio/wav"
	// or "audio/pcm;rate=16000"), into text. languageHint is a language name
	// or BCP-47 tag the backend may use to bias recognition; an empty hint
	// lets the backend detect the language.
	//
	// The result must stay in the original script. Implementations must not
	// translate.
	Transcribe(ctx context.Context, audio []byte, mimeType, languageHint string) (string, error)
}
