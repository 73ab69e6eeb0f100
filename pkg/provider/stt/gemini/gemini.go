// Package gemini provides a one-shot STT provider backed by the Gemini
// generateContent API.
//
// The recorded utterance is sent as inline data next to a fixed instruction
// that keeps the transcript in the script the speaker used.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/MrWong99/voxdesk/pkg/provider/stt"
)

const (
	defaultModel = "gemini-3-flash-preview"

	// instruction is prepended to every request.
	instruction = "Transcribe audio strictly in its original script. No translation."
)

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the Gemini API.
type Provider struct {
	client *genai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	model      string
	baseURL    string
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithModel overrides the default model (gemini-3-flash-preview).
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithBaseURL overrides the Gemini API base URL. Intended for testing.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

// New constructs a Gemini STT provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: apiKey must not be empty")
	}
	cfg := &config{model: defaultModel}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.model == "" {
		cfg.model = defaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.httpClient,
	}
	if cfg.baseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.baseURL
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Provider{client: client, model: cfg.model}, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, mimeType, languageHint string) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("gemini: transcribe: empty audio")
	}
	if mimeType == "" {
		mimeType = "audio/wav"
	}

	parts := []*genai.Part{genai.NewPartFromText(buildPrompt(languageHint))}
	parts = append(parts, genai.NewPartFromBytes(audio, mimeType))
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini: transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// buildPrompt appends the language hint, if any, to the fixed instruction.
func buildPrompt(languageHint string) string {
	if languageHint == "" {
		return instruction
	}
	return instruction + " Expected language: " + languageHint + "."
}
