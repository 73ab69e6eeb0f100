// Package translate defines the Provider interface for text translation.
//
// Translation backends are general-purpose language models driven by a short
// instruction prompt. [Prompt] renders that instruction so every backend asks
// the same question.
package translate

import (
	"context"
	"fmt"
)

// Provider is the abstraction over any translation backend.
type Provider interface {
	// Translate renders text in the target language. target is a language name
	// as listed in the dialect catalog (for example "Arabic" or "Hindi").
	Translate(ctx context.Context, text, target string) (string, error)
}

// Prompt returns the instruction sent to a language model to translate text
// into target.
func Prompt(text, target string) string {
	return fmt.Sprintf("Translate to %s: \"%s\"", target, text)
}
