package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/voxdesk/internal/config"
	"github.com/MrWong99/voxdesk/internal/dialect"
)

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("providers:\n  s2s:\n    name: gemini\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q; want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q; want info", cfg.Server.LogLevel)
	}
	if cfg.Server.ShutdownTimeout != 15*time.Second {
		t.Errorf("shutdown_timeout = %s; want 15s", cfg.Server.ShutdownTimeout)
	}
	s := cfg.Session
	if s.Dialect != dialect.DefaultID || s.LevelGain != 500 || s.InputRate != 16000 || s.OutputRate != 24000 || s.FrameSize != 2048 {
		t.Errorf("session defaults = %+v", s)
	}
	if s.RestartDelay != 0 {
		t.Errorf("restart_delay = %s; want 0", s.RestartDelay)
	}
	if !s.NudgeEnabled() {
		t.Error("nudge should default to enabled")
	}
	if cfg.Transcript.ScriptFilter {
		t.Error("script_filter should default to off")
	}
}

func TestValidate_RequiresS2S(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server:\n  log_level: info\n"))
	if err == nil || !strings.Contains(err.Error(), "providers.s2s.name") {
		t.Fatalf("err = %v; want missing s2s error", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
  tls:
    cert_file: cert.pem
providers:
  s2s:
    name: gemini
  stt:
    fallbacks:
      - name: openai
session:
  dialect: klingon
  restart_delay: -1s
telemetry:
  trace_sample_ratio: 2
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		"server.log_level",
		"server.tls",
		"providers.stt has fallbacks",
		"session.dialect",
		"session.restart_delay",
		"telemetry.trace_sample_ratio",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %q:\n%v", want, err)
		}
	}
	if !errors.Is(err, dialect.ErrUnknownDialect) {
		t.Error("unknown dialect error should wrap dialect.ErrUnknownDialect")
	}
}

func TestValidate_FallbackNeedsName(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  s2s:
    name: openai
  translate:
    name: gemini
    fallbacks:
      - name: anthropic
      - model: llama3
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil || !strings.Contains(err.Error(), "providers.translate.fallbacks[1].name") {
		t.Fatalf("err = %v; want fallbacks[1] name error", err)
	}
}

func TestValidate_BadTemplate(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  s2s:
    name: gemini
dialects:
  nudge_template: "{{.Label"
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for unparsable nudge template")
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  s2s:
    name: gemini
    secret_sauce: true
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadFromReader_ProviderGroupInline(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  s2s:
    name: gemini
    voice: Zephyr
  tts:
    name: gemini
    api_key: g-key
    fallbacks:
      - name: openai
        api_key: o-key
        voice: nova
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries := cfg.Providers.TTS.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %+v; want 2", entries)
	}
	if entries[0].Name != "gemini" || entries[0].APIKey != "g-key" {
		t.Errorf("primary = %+v", entries[0])
	}
	if entries[1].Name != "openai" || entries[1].Voice != "nova" {
		t.Errorf("fallback = %+v", entries[1])
	}
	if cfg.Providers.STT.Enabled() || cfg.Providers.STT.Entries() != nil {
		t.Error("stt should be disabled")
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("VOXDESK_TEST_KEY", "secret")
	t.Setenv("VOXDESK_TEST_EMPTY", "")

	tests := []struct {
		in, want string
	}{
		{"key: ${VOXDESK_TEST_KEY}", "key: secret"},
		{"key: ${VOXDESK_TEST_UNSET}", "key: "},
		{"key: ${VOXDESK_TEST_UNSET:-fallback}", "key: fallback"},
		{"key: ${VOXDESK_TEST_EMPTY:-fallback}", "key: fallback"},
		{"key: ${VOXDESK_TEST_KEY:-fallback}", "key: secret"},
		{"pass: pa$word", "pass: pa$word"},
		{"pass: $VOXDESK_TEST_KEY", "pass: $VOXDESK_TEST_KEY"},
	}
	for _, tt := range tests {
		if got := string(config.ExpandEnv([]byte(tt.in))); got != tt.want {
			t.Errorf("ExpandEnv(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoad_DotEnvNextToConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VOXDESK_DOTENV_KEY", "")
	os.Unsetenv("VOXDESK_DOTENV_KEY")

	writeFile(t, filepath.Join(dir, ".env"), "VOXDESK_DOTENV_KEY=from-dotenv\n")
	cfgPath := filepath.Join(dir, "voxdesk.yaml")
	writeFile(t, cfgPath, "providers:\n  s2s:\n    name: gemini\n    api_key: ${VOXDESK_DOTENV_KEY}\n")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.S2S.APIKey != "from-dotenv" {
		t.Errorf("api_key = %q; want value from .env", cfg.Providers.S2S.APIKey)
	}
}

func TestLoad_EnvironmentWinsOverDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VOXDESK_DOTENV_WIN", "from-env")

	writeFile(t, filepath.Join(dir, ".env"), "VOXDESK_DOTENV_WIN=from-dotenv\n")
	cfgPath := filepath.Join(dir, "voxdesk.yaml")
	writeFile(t, cfgPath, "providers:\n  s2s:\n    name: gemini\n    api_key: ${VOXDESK_DOTENV_WIN}\n")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.S2S.APIKey != "from-env" {
		t.Errorf("api_key = %q; want process environment value", cfg.Providers.S2S.APIKey)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestBuildCatalog_Overrides(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  s2s:
    name: gemini
session:
  dialect: gulf
dialects:
  overrides:
    - id: gulf
      label: Gulf Arabic
      scripts: [Arabic]
    - id: hindi
      voice: Kore
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cat, err := config.BuildCatalog(cfg)
	if err != nil {
		t.Fatalf("BuildCatalog: %v", err)
	}
	gulf, err := cat.Get("gulf")
	if err != nil || gulf.Label != "Gulf Arabic" {
		t.Errorf("gulf = %+v, %v", gulf, err)
	}
	hindi, _ := cat.Get("hindi")
	if hindi.Voice != "Kore" || hindi.Label != "Hindi" {
		t.Errorf("hindi = %+v; want override merged onto built-in", hindi)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "g-key")
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "example.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.S2S.Name != "gemini" || cfg.Providers.S2S.APIKey != "g-key" {
		t.Errorf("s2s = %+v", cfg.Providers.S2S)
	}
	if n := len(cfg.Providers.STT.Fallbacks); n != 1 {
		t.Errorf("stt fallbacks = %d, want 1", n)
	}
	catalog, err := config.BuildCatalog(cfg)
	if err != nil {
		t.Fatalf("BuildCatalog: %v", err)
	}
	if d, err := catalog.Get("gulf"); err != nil || d.Label != "Gulf Arabic" {
		t.Errorf("Get(gulf) = %+v, %v", d, err)
	}
}
