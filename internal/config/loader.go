package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/voxdesk/internal/dialect"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"s2s":       {"gemini", "openai"},
	"stt":       {"gemini", "openai"},
	"tts":       {"gemini", "openai"},
	"translate": {"gemini", "openai", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
//
// Before parsing, a .env file in the working directory and one next to the
// config file are loaded into the process environment when present. Variables
// that are already set are not overridden.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(".env", filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadDotEnv loads each existing file in paths with godotenv. Missing files
// are skipped; duplicates are loaded once.
func LoadDotEnv(paths ...string) error {
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %q: %w", p, err)
		}
		slog.Debug("loaded environment file", "path", p)
	}
	return nil
}

// LoadFromReader expands ${VAR} references in r, decodes the YAML, applies
// defaults, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(ExpandEnv(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envRef matches ${NAME} and ${NAME:-default}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${NAME} with the value of the environment variable NAME
// and ${NAME:-default} with default when NAME is unset or empty. Bare $NAME
// is left alone so values such as passwords may contain dollar signs.
func ExpandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		sub := envRef.FindSubmatch(m)
		if v := os.Getenv(string(sub[1])); v != "" {
			return []byte(v)
		}
		return sub[2]
	})
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %s must not be negative", cfg.Server.ShutdownTimeout))
	}

	// Providers
	if cfg.Providers.S2S.Name == "" {
		errs = append(errs, errors.New("providers.s2s.name is required"))
	}
	validateProviderName("s2s", cfg.Providers.S2S.Name)
	for kind, group := range map[string]ProviderGroup{
		"stt":       cfg.Providers.STT,
		"tts":       cfg.Providers.TTS,
		"translate": cfg.Providers.Translate,
	} {
		if !group.Enabled() && len(group.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("providers.%s has fallbacks but no primary name", kind))
		}
		for i, e := range group.Entries() {
			if e.Name == "" {
				errs = append(errs, fmt.Errorf("providers.%s.fallbacks[%d].name is required", kind, i-1))
				continue
			}
			validateProviderName(kind, e.Name)
		}
	}
	if cb := cfg.Providers.CircuitBreaker; cb.MaxFailures < 0 || cb.HalfOpenMax < 0 || cb.ResetTimeout < 0 {
		errs = append(errs, errors.New("providers.circuit_breaker values must not be negative"))
	}

	// Session
	s := cfg.Session
	if s.RestartDelay < 0 {
		errs = append(errs, fmt.Errorf("session.restart_delay %s must not be negative", s.RestartDelay))
	}
	if s.LevelGain < 0 {
		errs = append(errs, fmt.Errorf("session.level_gain %g must not be negative", s.LevelGain))
	}
	if s.InputRate < 0 || s.OutputRate < 0 || s.FrameSize < 0 {
		errs = append(errs, errors.New("session.input_rate, output_rate and frame_size must not be negative"))
	}

	// Dialects
	catalog, err := BuildCatalog(cfg)
	if err != nil {
		errs = append(errs, err)
	} else if s.Dialect != "" {
		if _, err := catalog.Get(s.Dialect); err != nil {
			errs = append(errs, fmt.Errorf("session.dialect: %w", err))
		}
	}

	// Telemetry
	if r := cfg.Telemetry.TraceSampleRatio; r != nil && (*r < 0 || *r > 1) {
		errs = append(errs, fmt.Errorf("telemetry.trace_sample_ratio %g is out of range [0, 1]", *r))
	}

	return errors.Join(errs...)
}

// BuildCatalog constructs the dialect catalog described by cfg.Dialects.
func BuildCatalog(cfg *Config) (*dialect.Catalog, error) {
	return dialect.NewCatalog(cfg.Dialects.Overrides,
		dialect.WithPromptTemplate(cfg.Dialects.PromptTemplate),
		dialect.WithNudgeTemplate(cfg.Dialects.NudgeTemplate),
	)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
