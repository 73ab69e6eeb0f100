package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/voxdesk/internal/config"
	"github.com/MrWong99/voxdesk/internal/dialect"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Dialects: config.DialectsConfig{
			Overrides: []dialect.Dialect{{ID: "saudi", Voice: "Kore"}},
		},
	}
	d := config.Diff(cfg, cfg)
	if d.Changed() {
		t.Errorf("expected no changes for identical configs, got %+v", d)
	}
	if len(d.DialectChanges) != 0 {
		t.Errorf("expected 0 dialect changes, got %d", len(d.DialectChanges))
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if !d.Changed() {
		t.Error("Changed() should be true")
	}
}

func TestDiff_DialectOverrides(t *testing.T) {
	t.Parallel()
	old := &config.Config{Dialects: config.DialectsConfig{Overrides: []dialect.Dialect{
		{ID: "saudi", Voice: "Kore"},
		{ID: "hindi", Voice: "Puck"},
	}}}
	new := &config.Config{Dialects: config.DialectsConfig{Overrides: []dialect.Dialect{
		{ID: "saudi", Voice: "Zephyr"},
		{ID: "moroccan", Label: "Moroccan Arabic"},
	}}}

	d := config.Diff(old, new)
	if !d.DialectsChanged {
		t.Error("expected DialectsChanged=true")
	}
	want := []config.DialectDiff{
		{ID: "hindi", Removed: true},
		{ID: "moroccan", Added: true},
		{ID: "saudi", Changed: true},
	}
	if !slices.Equal(d.DialectChanges, want) {
		t.Errorf("DialectChanges = %+v; want %+v", d.DialectChanges, want)
	}
}

func TestDiff_TemplateChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{}
	new := &config.Config{Dialects: config.DialectsConfig{NudgeTemplate: "Say hi in {{.Label}}."}}

	d := config.Diff(old, new)
	if !d.DialectsChanged {
		t.Error("expected DialectsChanged=true for a nudge template change")
	}
	if len(d.DialectChanges) != 0 {
		t.Errorf("template change should not list per-dialect changes, got %+v", d.DialectChanges)
	}
}

func TestDiff_SessionAndTranscript(t *testing.T) {
	t.Parallel()
	old := &config.Config{Session: config.SessionConfig{Dialect: "saudi"}}
	new := &config.Config{
		Session:    config.SessionConfig{Dialect: "saudi", RestartDelay: 500 * time.Millisecond},
		Transcript: config.TranscriptConfig{ScriptFilter: true},
	}

	d := config.Diff(old, new)
	if !d.SessionChanged {
		t.Error("expected SessionChanged=true")
	}
	if !d.ScriptFilterChanged {
		t.Error("expected ScriptFilterChanged=true")
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("session changes should apply live, got RestartRequired=%v", d.RestartRequired)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	ratio := 0.5
	old := &config.Config{
		Server:    config.ServerConfig{ListenAddr: ":8080"},
		Providers: config.ProvidersConfig{S2S: config.ProviderEntry{Name: "gemini"}},
	}
	new := &config.Config{
		Server:    config.ServerConfig{ListenAddr: ":9090", TLS: &config.TLSConfig{CertFile: "c", KeyFile: "k"}},
		Providers: config.ProvidersConfig{S2S: config.ProviderEntry{Name: "openai"}},
		Telemetry: config.TelemetryConfig{TraceSampleRatio: &ratio},
	}

	d := config.Diff(old, new)
	want := []string{"server.listen_addr", "server.tls", "providers", "telemetry"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v; want %v", d.RestartRequired, want)
	}
}
