// Package app wires all Radio Mirchi subsystems into a running server.
//
// The App struct owns the full lifecycle: New opens the mission store, seeds
// it, connects the event bus and builds the session registry and HTTP server,
// Run serves until its context is cancelled, and Shutdown drains sessions and
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithPublisher, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/radiomirchi/internal/config"
	"github.com/MrWong99/radiomirchi/internal/events"
	"github.com/MrWong99/radiomirchi/internal/game"
	"github.com/MrWong99/radiomirchi/internal/health"
	"github.com/MrWong99/radiomirchi/internal/observe"
	"github.com/MrWong99/radiomirchi/internal/server"
	"github.com/MrWong99/radiomirchi/pkg/mission"
	"github.com/MrWong99/radiomirchi/pkg/mission/memory"
	"github.com/MrWong99/radiomirchi/pkg/mission/postgres"
	"github.com/MrWong99/radiomirchi/pkg/mission/sqlite"
	"github.com/MrWong99/radiomirchi/pkg/provider/llm"
	"github.com/MrWong99/radiomirchi/pkg/provider/stt"
	"github.com/MrWong99/radiomirchi/pkg/provider/tts"
	"github.com/MrWong99/radiomirchi/pkg/provider/tts/deepgram"
	"github.com/MrWong99/radiomirchi/pkg/types"
)

const (
	// DefaultListenAddr is used when server.listen_addr is empty.
	DefaultListenAddr = ":8000"

	// DefaultShutdownTimeout bounds Shutdown when server.shutdown_timeout is
	// not set.
	DefaultShutdownTimeout = 30 * time.Second
)

// Providers holds one interface value per provider slot. Populated by main.go
// via the config registry; every slot is required.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider
}

// App owns all subsystem lifetimes of the broadcast server.
type App struct {
	cfg       *config.Config
	providers *Providers
	log       *slog.Logger
	level     *slog.LevelVar

	// Subsystems, initialised in New and torn down in Shutdown.
	store          mission.Store
	publisher      events.Publisher
	bus            *events.Bus
	metrics        *observe.Metrics
	metricsHandler http.Handler
	catalogue      []types.VoiceProfile
	observers      game.Observers
	registry       *game.Registry
	health         *health.Handler
	server         *server.Server

	// tuning is the game section applied to sessions started from now on.
	tuning atomic.Pointer[config.GameConfig]

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
	stopErr  error
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a mission store instead of opening one from config. The
// caller keeps ownership; Shutdown does not close it.
func WithStore(s mission.Store) Option {
	return func(a *App) { a.store = s }
}

// WithPublisher injects an event publisher instead of connecting to NATS.
func WithPublisher(p events.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithMetrics injects the metric instruments used by the session observer and
// the HTTP middleware. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithVoiceCatalogue overrides the static voice list used when the TTS
// provider cannot list its voices. Defaults to the Deepgram Aura catalogue.
func WithVoiceCatalogue(voices []types.VoiceProfile) Option {
	return func(a *App) { a.catalogue = voices }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithLevelVar lets [App.ApplyConfig] change the log level at runtime.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: store connection and
// migration, mission seeding, event bus connection and server assembly.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if err := checkProviders(providers); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.catalogue == nil {
		a.catalogue = deepgramCatalogue()
	}
	tuning := cfg.Game
	a.tuning.Store(&tuning)

	// ── 1. Mission store ─────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Seed missions ─────────────────────────────────────────────────
	if err := a.seed(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: seed missions: %w", err)
	}

	// ── 3. Event bus ─────────────────────────────────────────────────────
	if err := a.initEvents(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init events: %w", err)
	}

	// ── 4. Session registry ──────────────────────────────────────────────
	a.observers = game.Observers{observe.NewSessionObserver(a.metrics)}
	if a.publisher != nil {
		a.observers = append(a.observers, events.NewObserver(a.publisher, cfg.Events.SubjectPrefix, a.log))
	}
	a.registry = game.NewRegistry(
		game.FactoryFunc(a.newSession),
		game.WithRegistryLogger(a.log),
		game.WithOnRemove(func(id string, err error) {
			a.log.Info("session removed", "session_id", id, "reason", observe.EndReason(err))
		}),
	)

	// ── 5. HTTP server ───────────────────────────────────────────────────
	a.initServer()

	return a, nil
}

func checkProviders(p *Providers) error {
	if p == nil {
		return errors.New("providers must not be nil")
	}
	var errs []error
	if p.LLM == nil {
		errs = append(errs, errors.New("llm provider is required"))
	}
	if p.STT == nil {
		errs = append(errs, errors.New("stt provider is required"))
	}
	if p.TTS == nil {
		errs = append(errs, errors.New("tts provider is required"))
	}
	return errors.Join(errs...)
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore opens the configured mission store unless one was injected.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	var (
		store mission.Store
		err   error
	)
	switch a.cfg.Store.Driver {
	case config.StorePostgres:
		store, err = postgres.NewStore(ctx, a.cfg.Store.PostgresDSN)
	case config.StoreSQLite:
		store, err = sqlite.Open(ctx, a.cfg.Store.SQLitePath)
	case config.StoreMemory, "":
		store = memory.New()
	default:
		err = fmt.Errorf("unknown driver %q", a.cfg.Store.Driver)
	}
	if err != nil {
		return err
	}

	a.store = store
	a.closers = append(a.closers, store.Close)
	a.log.Info("mission store ready", "driver", driverName(a.cfg.Store.Driver))
	return nil
}

// seed upserts the missions of the configured seed file.
func (a *App) seed(ctx context.Context) error {
	path := a.cfg.Store.SeedFile
	if path == "" {
		return nil
	}
	sf, err := mission.LoadSeedFile(path)
	if err != nil {
		return err
	}
	n, err := mission.Seed(ctx, a.store, sf)
	if err != nil {
		return fmt.Errorf("seed %q: %w", path, err)
	}
	a.log.Info("seeded missions", "path", path, "count", n)
	return nil
}

// initEvents connects to NATS when configured and no publisher was injected.
func (a *App) initEvents() error {
	if a.publisher != nil || a.cfg.Events.NATSURL == "" {
		return nil
	}
	bus, err := events.Connect(events.Config{
		URL:           a.cfg.Events.NATSURL,
		SubjectPrefix: a.cfg.Events.SubjectPrefix,
	}, a.log)
	if err != nil {
		return err
	}
	a.bus = bus
	a.publisher = bus.Conn()
	a.closers = append(a.closers, func() error {
		bus.Close()
		return nil
	})
	return nil
}

// initServer builds the readiness checks and the HTTP server.
func (a *App) initServer() {
	checkers := []health.Checker{{Name: "missions", Check: a.store.Ping}}
	if a.bus != nil {
		bus := a.bus
		checkers = append(checkers, health.Checker{
			Name: "events",
			Check: func(context.Context) error {
				if !bus.Healthy() {
					return errors.New("nats connection is down")
				}
				return nil
			},
		})
	}
	a.health = health.New(checkers...)

	srvCfg := server.Config{
		Addr:           a.listenAddr(),
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
	}
	if tls := a.cfg.Server.TLS; tls != nil {
		srvCfg.CertFile, srvCfg.KeyFile = tls.CertFile, tls.KeyFile
	}
	opts := []server.Option{
		server.WithHealth(a.health),
		server.WithMiddleware(observe.Middleware(a.metrics)),
		server.WithLogger(a.log),
	}
	if a.metricsHandler != nil {
		opts = append(opts, server.WithMetricsHandler(a.metricsHandler))
	}
	a.server = server.New(srvCfg, a.registry, opts...)
}

func (a *App) listenAddr() string {
	if a.cfg.Server.ListenAddr == "" {
		return DefaultListenAddr
	}
	return a.cfg.Server.ListenAddr
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout <= 0 {
		return DefaultShutdownTimeout
	}
	return a.cfg.Server.ShutdownTimeout
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// Sessions returns the live session registry.
func (a *App) Sessions() *game.Registry { return a.registry }

// Tuning returns the game section applied to new sessions.
func (a *App) Tuning() config.GameConfig { return *a.tuning.Load() }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run listens on the configured address and serves until ctx is cancelled,
// then shuts down within the configured shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.listenAddr())
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve is [App.Run] on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return a.server.Serve(ln)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.shutdownTimeout())
		defer cancel()
		return a.Shutdown(sctx)
	})

	a.log.Info("app running", "addr", ln.Addr().String())
	return g.Wait()
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable parts of d. Game tuning changes
// affect sessions started afterwards; live sessions keep theirs.
func (a *App) ApplyConfig(d config.ConfigDiff) {
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.NewLogLevel))
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.GameChanged {
		tuning := d.NewGame
		a.tuning.Store(&tuning)
		a.log.Info("game tuning reloaded", "batch_size", tuning.BatchSize, "barge_in", tuning.BargeIn)
	}
	for _, section := range d.RestartRequired {
		a.log.Warn("config change requires a restart", "section", section)
	}
}

// SlogLevel maps a config log level to its slog level. Empty means info.
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

// Shutdown marks the server as draining, stops accepting connections, ends
// every live session and then runs the closers. It respects the context
// deadline: if ctx expires before all sessions have ended, remaining closers
// are skipped and the context error is returned. Calls after the first return
// the first result.
func (a *App) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "sessions", a.registry.Len(), "closers", len(a.closers))
		a.health.SetDraining(true)

		if err := a.server.Shutdown(ctx); err != nil {
			a.log.Warn("http server shutdown error", "err", err)
		}

		a.registry.CloseAll()
		if !a.registry.Wait(ctx) {
			a.log.Warn("shutdown deadline exceeded", "sessions", a.registry.Len())
			a.stopErr = ctx.Err()
			return
		}

		a.closeAll()
		a.log.Info("shutdown complete")
	})
	return a.stopErr
}

// closeAll runs the closers in order and forgets them.
func (a *App) closeAll() {
	for i, closer := range a.closers {
		if err := closer(); err != nil {
			a.log.Warn("closer error", "index", i, "err", err)
		}
	}
	a.closers = nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// deepgramCatalogue returns the static Aura voice list with genders.
func deepgramCatalogue() []types.VoiceProfile {
	voices := make([]types.VoiceProfile, 0, len(deepgram.MaleVoices)+len(deepgram.FemaleVoices))
	add := func(ids []string, gender string) {
		for _, id := range ids {
			voices = append(voices, types.VoiceProfile{ID: id, Name: id, Provider: "deepgram", Gender: gender})
		}
	}
	add(deepgram.MaleVoices, "male")
	add(deepgram.FemaleVoices, "female")
	return voices
}

func driverName(d config.StoreDriver) config.StoreDriver {
	if d == "" {
		return config.StoreMemory
	}
	return d
}
