// Package app wires the VoxDesk subsystems into a running HTTP server.
//
// The App struct owns the full lifecycle: New builds the dialect catalog,
// health checks and routes, Run serves HTTP (and polls the config file when
// a watcher is attached), and Shutdown stops every live session and runs the
// registered closers.
//
// For testing, inject doubles via functional options (WithMetrics,
// WithLogLevel, etc.) and serve [App.Handler] from an httptest server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxdesk/internal/config"
	"github.com/MrWong99/voxdesk/internal/dialect"
	"github.com/MrWong99/voxdesk/internal/health"
	"github.com/MrWong99/voxdesk/internal/observe"
	"github.com/MrWong99/voxdesk/pkg/provider/s2s"
	"github.com/MrWong99/voxdesk/pkg/provider/stt"
	"github.com/MrWong99/voxdesk/pkg/provider/translate"
	"github.com/MrWong99/voxdesk/pkg/provider/tts"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured and its endpoint answers 503. Populated by
// main.go via the config registry.
type Providers struct {
	S2S       s2s.Provider
	STT       stt.Provider
	TTS       tts.Provider
	Translate translate.Provider

	// Names label provider metrics per slot (for example "gemini").
	Names map[string]string
}

// name returns the configured provider name for kind, or kind itself.
func (p *Providers) name(kind string) string {
	if n := p.Names[kind]; n != "" {
		return n
	}
	return kind
}

// App owns all subsystem lifetimes and serves the VoxDesk HTTP surface.
type App struct {
	cfg       *config.Config
	providers *Providers
	catalog   *dialect.Catalog
	metrics   *observe.Metrics
	health    *health.Handler
	sessions  *SessionManager
	handler   http.Handler
	server    *http.Server
	watcher   *config.Watcher
	version   string

	metricsHandler http.Handler
	logLevel       *slog.LevelVar

	// live holds the hot-reloadable session settings.
	liveMu sync.RWMutex
	live   liveSettings

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// liveSettings are the parts of the config read when a live connection
// opens. A reload only affects connections opened afterwards.
type liveSettings struct {
	session      config.SessionConfig
	scriptFilter bool
	origins      []string
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics sets the metric instruments. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on /metrics. Without it /metrics is not
// registered.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLogLevel hands the App the level variable behind the process logger so
// config reloads can change it.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// WithWatcher makes Run poll w next to the HTTP server. The watcher's
// callback should call [App.Reload].
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// WithVersion sets the build version reported by /healthz.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// WithCloser registers fn to run during Shutdown, after live sessions stop.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg and providers. The S2S provider is required;
// the one-shot providers are optional.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.S2S == nil {
		return nil, errors.New("app: an s2s provider is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Dialect catalog ───────────────────────────────────────────────
	catalog, err := config.BuildCatalog(cfg)
	if err != nil {
		return nil, fmt.Errorf("app: build dialect catalog: %w", err)
	}
	a.catalog = catalog
	a.setLive(cfg)

	// ── 2. Live sessions ─────────────────────────────────────────────────
	a.sessions = NewSessionManager()

	// ── 3. Health ────────────────────────────────────────────────────────
	a.health = health.New([]health.Checker{
		{Name: "dialects", Check: a.checkDialects},
		{Name: "sessions", Check: a.sessions.Check},
	}, health.WithVersion(a.version))

	// ── 4. Routes ────────────────────────────────────────────────────────
	a.handler = observe.Middleware(a.metrics)(a.routes())
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.DebugContext(ctx, "app initialised",
		"dialects", len(catalog.List()),
		"stt", providers.STT != nil,
		"tts", providers.TTS != nil,
		"translate", providers.Translate != nil,
	)
	return a, nil
}

func (a *App) checkDialects(context.Context) error {
	if len(a.catalog.List()) == 0 {
		return errors.New("dialect catalog is empty")
	}
	return nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Catalog returns the live dialect catalog.
func (a *App) Catalog() *dialect.Catalog { return a.catalog }

// Sessions returns the live session registry.
func (a *App) Sessions() *SessionManager { return a.sessions }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP until ctx is cancelled, then shuts the server down within
// the configured shutdown timeout. With a watcher attached the config file is
// polled alongside.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", a.server.Addr, "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})

	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	return g.Wait()
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable parts of next. It is meant to be the
// callback of a [config.Watcher].
func (a *App) Reload(old, next *config.Config) {
	d := config.Diff(old, next)
	if !d.Changed() {
		return
	}

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.DialectsChanged {
		catalog, err := config.BuildCatalog(next)
		if err != nil {
			slog.Warn("dialect reload rejected", "err", err)
		} else {
			a.catalog.Replace(catalog)
			for _, c := range d.DialectChanges {
				slog.Info("dialect override changed",
					"dialect", c.ID,
					"added", c.Added,
					"removed", c.Removed,
				)
			}
		}
	}

	if d.SessionChanged || d.ScriptFilterChanged {
		a.setLive(next)
		slog.Info("session settings reloaded; applies to new sessions")
	}

	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "sections", d.RestartRequired)
	}
}

func (a *App) setLive(cfg *config.Config) {
	a.liveMu.Lock()
	defer a.liveMu.Unlock()
	a.live = liveSettings{
		session:      cfg.Session,
		scriptFilter: cfg.Transcript.ScriptFilter,
		origins:      cfg.Server.AllowedOrigins,
	}
}

func (a *App) liveConfig() liveSettings {
	a.liveMu.RLock()
	defer a.liveMu.RUnlock()
	return a.live
}

// SlogLevel maps a config log level to its slog equivalent.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops accepting requests, tears down every live session, and runs
// the closers. It respects the context deadline: if ctx expires before all
// closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "sessions", a.sessions.Count(), "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown", "err", err)
			shutdownErr = err
		}

		// Hijacked WebSocket connections are not tracked by the server.
		if err := a.sessions.StopAll(ctx); err != nil {
			slog.Warn("live sessions did not stop in time", "err", err)
			shutdownErr = err
			return
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
