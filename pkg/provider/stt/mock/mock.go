// Package mock provides a test double for the stt.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Text: "marhaba"}
//	text, _ := p.Transcribe(ctx, wav, "audio/wav", "Arabic")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxdesk/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Audio is a copy of the audio bytes passed to Transcribe.
	Audio []byte
	// MIMEType is the MIME type passed to Transcribe.
	MIMEType string
	// LanguageHint is the hint passed to Transcribe.
	LanguageHint string
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Text is returned by Transcribe.
	Text string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns Text, Err.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, mimeType, languageHint string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	buf := make([]byte, len(audio))
	copy(buf, audio)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Audio: buf, MIMEType: mimeType, LanguageHint: languageHint})
	if p.Err != nil {
		return "", p.Err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.Text, nil
}

// Calls returns a copy of the recorded calls. Thread-safe.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranscribeCall, len(p.TranscribeCalls))
	copy(out, p.TranscribeCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
