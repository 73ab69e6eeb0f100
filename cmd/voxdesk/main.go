// Command voxdesk is the main entry point for the VoxDesk voice support desk.
//
// By default it serves the HTTP API and the /v1/live WebSocket. With -in it
// instead runs a single session offline, feeding a WAV file as the microphone
// and optionally recording the agent's reply to -out.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/voxdesk/internal/app"
	"github.com/MrWong99/voxdesk/internal/config"
	"github.com/MrWong99/voxdesk/internal/observe"
	"github.com/MrWong99/voxdesk/internal/resilience"
	"github.com/MrWong99/voxdesk/internal/session"
	"github.com/MrWong99/voxdesk/pkg/audio/wavdev"
	"github.com/MrWong99/voxdesk/pkg/provider/s2s"
	geminilive "github.com/MrWong99/voxdesk/pkg/provider/s2s/gemini"
	oais2s "github.com/MrWong99/voxdesk/pkg/provider/s2s/openai"
	"github.com/MrWong99/voxdesk/pkg/provider/stt"
	geministt "github.com/MrWong99/voxdesk/pkg/provider/stt/gemini"
	oaistt "github.com/MrWong99/voxdesk/pkg/provider/stt/openai"
	"github.com/MrWong99/voxdesk/pkg/provider/translate"
	"github.com/MrWong99/voxdesk/pkg/provider/translate/anyllm"
	geminitranslate "github.com/MrWong99/voxdesk/pkg/provider/translate/gemini"
	"github.com/MrWong99/voxdesk/pkg/provider/tts"
	geminitts "github.com/MrWong99/voxdesk/pkg/provider/tts/gemini"
	oaitts "github.com/MrWong99/voxdesk/pkg/provider/tts/openai"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	inPath := flag.String("in", "", "run one offline session with this WAV file as the microphone")
	outPath := flag.String("out", "", "with -in: write the agent's audio to this WAV file")
	dialectID := flag.String("dialect", "", "with -in: dialect to start in (default from config)")
	runFor := flag.Duration("for", 0, "with -in: stop the session after this long (default: input length plus tail)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxdesk: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxdesk: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(level))

	slog.Info("voxdesk starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ratio := 1.0
	if cfg.Telemetry.TraceSampleRatio != nil {
		ratio = *cfg.Telemetry.TraceSampleRatio
	}
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:      cfg.Telemetry.ServiceName,
		ServiceVersion:   version,
		TraceSampleRatio: ratio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	if *inPath != "" {
		defer shutdownTelemetry(tel)
		return runOffline(ctx, cfg, providers, metrics, offlineOptions{
			in:      *inPath,
			out:     *outPath,
			dialect: *dialectID,
			runFor:  *runFor,
		})
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	var application *app.App
	watcher, err := config.NewWatcher(*configPath, func(old, next *config.Config) {
		application.Reload(old, next)
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err = app.New(ctx, cfg, providers,
		app.WithMetrics(metrics),
		app.WithMetricsHandler(tel.MetricsHandler()),
		app.WithLogLevel(level),
		app.WithWatcher(watcher),
		app.WithVersion(version),
		app.WithCloser(func() error {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return tel.Shutdown(flushCtx)
		}),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready; press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

func shutdownTelemetry(tel *observe.Telemetry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		slog.Warn("telemetry shutdown", "err", err)
	}
}

// ── Offline mode ───────────────────────────────────────────────────────────────

type offlineOptions struct {
	in      string
	out     string
	dialect string
	runFor  time.Duration
}

// offlineTail is the silence appended to the input so the agent can answer
// the last utterance.
const offlineTail = 8 * time.Second

// runOffline plays a WAV file into one session and prints the transcript.
func runOffline(ctx context.Context, cfg *config.Config, providers *app.Providers, metrics *observe.Metrics, o offlineOptions) int {
	catalog, err := config.BuildCatalog(cfg)
	if err != nil {
		slog.Error("failed to build dialect catalog", "err", err)
		return 1
	}

	platform, err := wavdev.Open(o.in, wavdev.WithTail(offlineTail), wavdev.WithRecordPath(o.out))
	if err != nil {
		slog.Error("failed to open input", "path", o.in, "err", err)
		return 1
	}

	ctrl := session.New(platform, providers.S2S, catalog,
		session.WithDialect(cfg.Session.Dialect),
		session.WithNudge(cfg.Session.NudgeEnabled()),
		session.WithScriptFilter(cfg.Transcript.ScriptFilter),
		session.WithLevelGain(cfg.Session.LevelGain),
		session.WithSampleRates(cfg.Session.InputRate, cfg.Session.OutputRate),
		session.WithFrameSize(cfg.Session.FrameSize),
		session.WithMetrics(metrics),
	)

	if err := ctrl.Start(ctx, o.dialect); err != nil {
		slog.Error("failed to start session", "err", err)
		return 1
	}
	snap := ctrl.Snapshot()
	slog.Info("offline session started", "session_id", snap.SessionID, "dialect", snap.Dialect)

	runFor := o.runFor
	if runFor <= 0 {
		runFor = platform.Duration() + offlineTail
	}
	timer := time.NewTimer(runFor)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-ctrl.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := ctrl.Stop(stopCtx); err != nil {
		slog.Error("failed to stop session", "err", err)
		return 1
	}

	snap = ctrl.Snapshot()
	for _, turn := range snap.Transcript {
		fmt.Printf("[%s] %s: %s\n", turn.Timestamp.Format(time.TimeOnly), turn.Role, turn.Text)
	}
	if o.out != "" {
		slog.Info("agent audio written", "path", o.out)
	}
	if snap.Err != nil {
		slog.Error("session ended with error", "err", snap.Err)
		return 1
	}
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// translateBackends are the any-llm backends usable for translation.
var translateBackends = []string{"openai", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── S2S ───────────────────────────────────────────────────────────────────

	reg.RegisterS2S("gemini", func(entry config.ProviderEntry) (s2s.Provider, error) {
		var opts []geminilive.Option
		if entry.Model != "" {
			opts = append(opts, geminilive.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, geminilive.WithBaseURL(entry.BaseURL))
		}
		if entry.Voice != "" {
			opts = append(opts, geminilive.WithDefaultVoice(entry.Voice))
		}
		return geminilive.New(entry.APIKey, opts...), nil
	})

	reg.RegisterS2S("openai", func(entry config.ProviderEntry) (s2s.Provider, error) {
		var opts []oais2s.Option
		if entry.Model != "" {
			opts = append(opts, oais2s.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oais2s.WithBaseURL(entry.BaseURL))
		}
		return oais2s.New(entry.APIKey, opts...), nil
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("gemini", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []geministt.Option
		if entry.Model != "" {
			opts = append(opts, geministt.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, geministt.WithBaseURL(entry.BaseURL))
		}
		return geministt.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oaistt.Option
		if entry.Model != "" {
			opts = append(opts, oaistt.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		return oaistt.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("gemini", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []geminitts.Option
		if entry.Model != "" {
			opts = append(opts, geminitts.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, geminitts.WithBaseURL(entry.BaseURL))
		}
		if entry.Voice != "" {
			opts = append(opts, geminitts.WithDefaultVoice(entry.Voice))
		}
		return geminitts.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oaitts.Option
		if entry.Model != "" {
			opts = append(opts, oaitts.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(entry.BaseURL))
		}
		if entry.Voice != "" {
			opts = append(opts, oaitts.WithDefaultVoice(entry.Voice))
		}
		return oaitts.New(entry.APIKey, opts...)
	})

	// ── Translate ─────────────────────────────────────────────────────────────

	reg.RegisterTranslate("gemini", func(entry config.ProviderEntry) (translate.Provider, error) {
		var opts []geminitranslate.Option
		if entry.Model != "" {
			opts = append(opts, geminitranslate.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, geminitranslate.WithBaseURL(entry.BaseURL))
		}
		return geminitranslate.New(entry.APIKey, opts...)
	})

	// The remaining backends share the same pattern: optional APIKey and
	// optional BaseURL, routed through any-llm.
	for _, backend := range translateBackends {
		reg.RegisterTranslate(backend, func(entry config.ProviderEntry) (translate.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(backend, entry.Model, opts...)
		})
	}

	for _, kind := range []string{"s2s", "stt", "tts", "translate"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates all providers named in cfg using the registry.
// One-shot providers with fallbacks are wrapped in circuit-breaking fallback
// groups.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{Names: make(map[string]string)}

	p, err := reg.CreateS2S(cfg.Providers.S2S)
	if err != nil {
		return nil, fmt.Errorf("create s2s provider %q: %w", cfg.Providers.S2S.Name, err)
	}
	ps.S2S = p
	ps.Names["s2s"] = cfg.Providers.S2S.Name
	slog.Info("provider created", "kind", "s2s", "name", cfg.Providers.S2S.Name)

	fb := resilience.FallbackConfig{CircuitBreaker: resilience.CircuitBreakerConfig{
		MaxFailures:  cfg.Providers.CircuitBreaker.MaxFailures,
		ResetTimeout: cfg.Providers.CircuitBreaker.ResetTimeout,
		HalfOpenMax:  cfg.Providers.CircuitBreaker.HalfOpenMax,
	}}

	if g := cfg.Providers.STT; g.Enabled() {
		primary, err := reg.CreateSTT(g.ProviderEntry)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", g.Name, err)
		}
		ps.STT = primary
		if len(g.Fallbacks) > 0 {
			group := resilience.NewSTTFallback(primary, g.Name, fb)
			for _, e := range g.Fallbacks {
				p, err := reg.CreateSTT(e)
				if err != nil {
					return nil, fmt.Errorf("create stt fallback %q: %w", e.Name, err)
				}
				group.AddFallback(e.Name, p)
			}
			ps.STT = group
		}
		ps.Names["stt"] = g.Name
		slog.Info("provider created", "kind", "stt", "name", g.Name, "fallbacks", len(g.Fallbacks))
	}

	if g := cfg.Providers.TTS; g.Enabled() {
		primary, err := reg.CreateTTS(g.ProviderEntry)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", g.Name, err)
		}
		ps.TTS = primary
		if len(g.Fallbacks) > 0 {
			group := resilience.NewTTSFallback(primary, g.Name, fb)
			for _, e := range g.Fallbacks {
				p, err := reg.CreateTTS(e)
				if err != nil {
					return nil, fmt.Errorf("create tts fallback %q: %w", e.Name, err)
				}
				group.AddFallback(e.Name, p)
			}
			ps.TTS = group
		}
		ps.Names["tts"] = g.Name
		slog.Info("provider created", "kind", "tts", "name", g.Name, "fallbacks", len(g.Fallbacks))
	}

	if g := cfg.Providers.Translate; g.Enabled() {
		primary, err := reg.CreateTranslate(g.ProviderEntry)
		if err != nil {
			return nil, fmt.Errorf("create translate provider %q: %w", g.Name, err)
		}
		ps.Translate = primary
		if len(g.Fallbacks) > 0 {
			group := resilience.NewTranslateFallback(primary, g.Name, fb)
			for _, e := range g.Fallbacks {
				p, err := reg.CreateTranslate(e)
				if err != nil {
					return nil, fmt.Errorf("create translate fallback %q: %w", e.Name, err)
				}
				group.AddFallback(e.Name, p)
			}
			ps.Translate = group
		}
		ps.Names["translate"] = g.Name
		slog.Info("provider created", "kind", "translate", "name", g.Name, "fallbacks", len(g.Fallbacks))
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         VoxDesk: startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("S2S", cfg.Providers.S2S.Name, cfg.Providers.S2S.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("Translate", cfg.Providers.Translate.Name, cfg.Providers.Translate.Model)
	fmt.Printf("║  Dialect         : %-19s ║\n", cfg.Session.Dialect)
	fmt.Printf("║  Overrides       : %-19d ║\n", len(cfg.Dialects.Overrides))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
