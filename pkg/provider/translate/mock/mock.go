// Package mock provides a test double for the translate.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxdesk/pkg/provider/translate"
)

// TranslateCall records a single invocation of Translate.
type TranslateCall struct {
	Text   string
	Target string
}

// Provider is a mock implementation of translate.Provider.
type Provider struct {
	mu sync.Mutex

	// Text is returned by Translate. When empty, Translate echoes its input
	// prefixed with "[target] ".
	Text string

	// Err, if non-nil, is returned as the error from Translate.
	Err error

	// TranslateCalls records every call to Translate in order.
	TranslateCalls []TranslateCall
}

// Translate records the call and returns Text, Err.
func (p *Provider) Translate(ctx context.Context, text, target string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranslateCalls = append(p.TranslateCalls, TranslateCall{Text: text, Target: target})
	if p.Err != nil {
		return "", p.Err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.Text == "" {
		return "[" + target + "] " + text, nil
	}
	return p.Text, nil
}

// Calls returns a copy of the recorded calls. Thread-safe.
func (p *Provider) Calls() []TranslateCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranslateCall, len(p.TranslateCalls))
	copy(out, p.TranslateCalls)
	return out
}

// Ensure Provider implements translate.Provider at compile time.
var _ translate.Provider = (*Provider)(nil)
