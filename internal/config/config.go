// Package config provides the configuration schema, loader, hot-reload watcher,
// and provider registry for the VoxDesk server.
package config

import (
	"time"

	"github.com/MrWong99/voxdesk/internal/dialect"
)

// LogLevel controls log verbosity for the VoxDesk server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for VoxDesk.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Session    SessionConfig    `yaml:"session"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Dialects   DialectsConfig   `yaml:"dialects"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings for the VoxDesk server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. It is hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// ShutdownTimeout bounds graceful shutdown. Default: 15s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// AllowedOrigins lists the host patterns accepted for the /v1/live
	// WebSocket upgrade. Empty means same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation to use for each
// capability. Each entry selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	// S2S is the live speech-to-speech backend. Required.
	S2S ProviderEntry `yaml:"s2s"`

	// STT, TTS, and Translate back the one-shot endpoints. Each may be left
	// empty to disable its endpoint.
	STT       ProviderGroup `yaml:"stt"`
	TTS       ProviderGroup `yaml:"tts"`
	Translate ProviderGroup `yaml:"translate"`

	// CircuitBreaker tunes the breaker wrapped around every one-shot backend.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "gemini", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Voice is the default voice for providers that speak.
	Voice string `yaml:"voice"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// OptionString returns Options[key] when it is a string, or "".
func (e ProviderEntry) OptionString(key string) string {
	if s, ok := e.Options[key].(string); ok {
		return s
	}
	return ""
}

// ProviderGroup is a primary provider followed by ordered fallbacks.
type ProviderGroup struct {
	ProviderEntry `yaml:",inline"`

	// Fallbacks are tried in order when the primary fails or its circuit is
	// open.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// Enabled reports whether a primary provider is configured.
func (g ProviderGroup) Enabled() bool { return g.Name != "" }

// Entries returns the primary followed by the fallbacks.
func (g ProviderGroup) Entries() []ProviderEntry {
	if !g.Enabled() {
		return nil
	}
	return append([]ProviderEntry{g.ProviderEntry}, g.Fallbacks...)
}

// CircuitBreakerConfig mirrors the resilience breaker knobs.
type CircuitBreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// SessionConfig tunes the live session controller.
type SessionConfig struct {
	// Dialect is the dialect ID used when a client does not name one.
	// Default: "english".
	Dialect string `yaml:"dialect"`

	// RestartDelay is waited between teardown and restart on a dialect
	// change. Default: 0.
	RestartDelay time.Duration `yaml:"restart_delay"`

	// LevelGain scales the RMS microphone level before clamping to [0,100].
	// Default: 500.
	LevelGain float64 `yaml:"level_gain"`

	// Nudge controls whether the greeting prompt is sent after connect.
	// Default: true.
	Nudge *bool `yaml:"nudge"`

	// InputRate and OutputRate are the device sample rates in Hz.
	// Defaults: 16000 and 24000.
	InputRate  int `yaml:"input_rate"`
	OutputRate int `yaml:"output_rate"`

	// FrameSize is the capture block size in samples. Default: 2048.
	FrameSize int `yaml:"frame_size"`
}

// NudgeEnabled reports whether the greeting nudge is sent.
func (s SessionConfig) NudgeEnabled() bool { return s.Nudge == nil || *s.Nudge }

// TranscriptConfig tunes transcript handling.
type TranscriptConfig struct {
	// ScriptFilter drops user transcript letters outside the dialect's
	// allowed scripts. Default: false.
	ScriptFilter bool `yaml:"script_filter"`
}

// DialectsConfig customises the dialect catalog.
type DialectsConfig struct {
	// PromptTemplate replaces the built-in system prompt template.
	PromptTemplate string `yaml:"prompt_template"`

	// NudgeTemplate replaces the built-in greeting nudge template.
	NudgeTemplate string `yaml:"nudge_template"`

	// Overrides adds dialects or overrides fields of built-in ones, matched
	// by ID. It is hot-reloadable.
	Overrides []dialect.Dialect `yaml:"overrides"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	// ServiceName is reported as service.name. Default: "voxdesk".
	ServiceName string `yaml:"service_name"`

	// TraceSampleRatio is the fraction of root traces sampled, in [0,1].
	// Default: 1.
	TraceSampleRatio *float64 `yaml:"trace_sample_ratio"`
}

// ApplyDefaults fills zero-valued fields with their documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Session.Dialect == "" {
		c.Session.Dialect = dialect.DefaultID
	}
	if c.Session.LevelGain == 0 {
		c.Session.LevelGain = 500
	}
	if c.Session.InputRate == 0 {
		c.Session.InputRate = 16000
	}
	if c.Session.OutputRate == 0 {
		c.Session.OutputRate = 24000
	}
	if c.Session.FrameSize == 0 {
		c.Session.FrameSize = 2048
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "voxdesk"
	}
}
