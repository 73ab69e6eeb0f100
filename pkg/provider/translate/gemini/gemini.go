// Package gemini provides a translation provider backed by the Gemini
// generateContent API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/MrWong99/voxdesk/pkg/provider/translate"
)

const defaultModel = "gemini-3-flash-preview"

// Compile-time interface assertion.
var _ translate.Provider = (*Provider)(nil)

// Provider implements translate.Provider using the Gemini API.
type Provider struct {
	client *genai.Client
	model  string
}

type config struct {
	model      string
	baseURL    string
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithModel overrides the default model (gemini-3-flash-preview).
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithBaseURL overrides the Gemini API base URL. Intended for testing.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// New constructs a Gemini translation provider.
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

// Translate implements translate.Provider.
func (p *Provider) Translate(ctx context.Context, text, target string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("gemini: translate: empty text")
	}
	if target == "" {
		return "", errors.New("gemini: translate: empty target language")
	}
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(translate.Prompt(text, target)), nil)
	if err != nil {
		return "", fmt.Errorf("gemini: translate: %w", err)
	}
	out := strings.TrimSpace(resp.Text())
	if out == "" {
		return "", errors.New("gemini: translate: empty response")
	}
	return out, nil
}
