// Command radiomirchi is the main entry point for the Radio Mirchi broadcast
// server.
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

	"github.com/MrWong99/radiomirchi/internal/app"
	"github.com/MrWong99/radiomirchi/internal/config"
	"github.com/MrWong99/radiomirchi/internal/observe"
	"github.com/MrWong99/radiomirchi/internal/resilience"
	"github.com/MrWong99/radiomirchi/pkg/provider/llm"
	"github.com/MrWong99/radiomirchi/pkg/provider/llm/anyllm"
	"github.com/MrWong99/radiomirchi/pkg/provider/llm/openai"
	"github.com/MrWong99/radiomirchi/pkg/provider/stt"
	sttdeepgram "github.com/MrWong99/radiomirchi/pkg/provider/stt/deepgram"
	"github.com/MrWong99/radiomirchi/pkg/provider/stt/whisper"
	"github.com/MrWong99/radiomirchi/pkg/provider/tts"
	"github.com/MrWong99/radiomirchi/pkg/provider/tts/coqui"
	ttsdeepgram "github.com/MrWong99/radiomirchi/pkg/provider/tts/deepgram"
	"github.com/MrWong99/radiomirchi/pkg/provider/tts/elevenlabs"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	seedPath := flag.String("seed", "", "mission seed file; overrides store.seed_file")
	watch := flag.Bool("watch", true, "reload log level and game tuning when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "radiomirchi: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "radiomirchi: %v\n", err)
		}
		return 1
	}
	if *seedPath != "" {
		cfg.Store.SeedFile = *seedPath
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("radiomirchi starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithMetrics(metrics),
		app.WithMetricsHandler(tel.Handler()),
		app.WithLevelVar(level),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	if *watch {
		w, err := config.NewWatcher(*configPath, func(old, updated *config.Config) {
			application.ApplyConfig(config.Diff(old, updated))
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	// Run shuts the application down itself once ctx is cancelled.
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyllmProviders are the language model backends served through any-llm-go.
// They all share the same pattern: optional APIKey + optional BaseURL.
var anyllmProviders = []string{"gemini", "anthropic", "deepseek", "mistral", "groq"}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	for _, providerName := range anyllmProviders {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.NewOllama(entry.Model, opts...)
	})

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, openai.WithTimeout(d))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []sttdeepgram.Option
		if entry.Model != "" {
			opts = append(opts, sttdeepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, sttdeepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, sttdeepgram.WithEndpoint(entry.BaseURL))
		}
		return sttdeepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if ms := optInt(entry.Options, "max_segment_ms"); ms > 0 {
			opts = append(opts, whisper.WithMaxSegmentMs(ms))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("deepgram", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []ttsdeepgram.Option
		if entry.BaseURL != "" {
			opts = append(opts, ttsdeepgram.WithEndpoint(entry.BaseURL))
		}
		if rate := optInt(entry.Options, "sample_rate"); rate > 0 {
			opts = append(opts, ttsdeepgram.WithSampleRate(rate))
		}
		return ttsdeepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, coqui.WithTimeout(d))
		}
		if rate := optInt(entry.Options, "sample_rate"); rate > 0 {
			opts = append(opts, coqui.WithOutputSampleRate(rate))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	for _, kind := range []string{"llm", "stt", "tts"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// failoverConfig builds the failover template shared by every provider chain.
func failoverConfig(bc config.BreakerConfig, m *observe.Metrics) resilience.FailoverConfig {
	return resilience.FailoverConfig{
		Breaker: resilience.BreakerConfig{
			FailureThreshold: bc.FailureThreshold,
			Cooldown:         bc.Cooldown,
			Probes:           bc.Probes,
			OnStateChange: func(name string, from, to resilience.BreakerState) {
				m.RecordBreakerTransition(context.Background(), name, to.String())
				slog.Warn("circuit breaker state changed", "provider", name, "from", from.String(), "to", to.String())
			},
		},
		OnFailure: func(provider string, err error) {
			slog.Warn("provider call failed", "provider", provider, "err", err)
		},
	}
}

// buildProviders instantiates the primary and fallback providers named in cfg
// using the registry. Each provider is instrumented and every slot is wrapped
// in a failover chain with one circuit breaker per member.
func buildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*app.Providers, error) {
	fc := failoverConfig(cfg.Providers.Breaker, m)
	pc := cfg.Providers

	var llmChain *resilience.LLMFailover
	for _, entry := range append([]config.ProviderEntry{pc.LLM}, pc.LLMFallbacks...) {
		p, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
		}
		p = observe.InstrumentLLM(p, entry.Name, m)
		if llmChain == nil {
			llmChain = resilience.NewLLMFailover(entry.Name, p, fc)
		} else {
			llmChain.Add(entry.Name, p)
		}
		slog.Info("provider created", "kind", "llm", "name", entry.Name, "model", entry.Model)
	}

	var sttChain *resilience.STTFailover
	for _, entry := range append([]config.ProviderEntry{pc.STT}, pc.STTFallbacks...) {
		p, err := reg.CreateSTT(entry)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
		}
		p = observe.InstrumentSTT(p, entry.Name, m)
		if sttChain == nil {
			sttChain = resilience.NewSTTFailover(entry.Name, p, fc)
		} else {
			sttChain.Add(entry.Name, p)
		}
		slog.Info("provider created", "kind", "stt", "name", entry.Name, "model", entry.Model)
	}

	var ttsChain *resilience.TTSFailover
	for _, entry := range append([]config.ProviderEntry{pc.TTS}, pc.TTSFallbacks...) {
		p, err := reg.CreateTTS(entry)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
		}
		p = observe.InstrumentTTS(p, entry.Name, m)
		if ttsChain == nil {
			ttsChain = resilience.NewTTSFailover(entry.Name, p, fc)
		} else {
			ttsChain.Add(entry.Name, p)
		}
		slog.Info("provider created", "kind", "tts", "name", entry.Name, "model", entry.Model)
	}

	return &app.Providers{LLM: llmChain, STT: sttChain, TTS: ttsChain}, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      Radio Mirchi, startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model, len(cfg.Providers.LLMFallbacks))
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model, len(cfg.Providers.STTFallbacks))
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model, len(cfg.Providers.TTSFallbacks))
	driver := string(cfg.Store.Driver)
	if driver == "" {
		driver = string(config.StoreMemory)
	}
	fmt.Printf("║  Store           : %-19s ║\n", driver)
	if cfg.Events.NATSURL != "" {
		fmt.Printf("║  Events          : %-19s ║\n", "nats")
	} else {
		fmt.Printf("║  Events          : %-19s ║\n", "(disabled)")
	}
	fmt.Printf("║  Barge-in        : %-19t ║\n", cfg.Game.BargeIn)
	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = app.DefaultListenAddr
	}
	fmt.Printf("║  Listen addr     : %-19s ║\n", addr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string, fallbacks int) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if fallbacks > 0 {
		value = fmt.Sprintf("%s +%d", value, fallbacks)
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer option. YAML decodes whole numbers as int.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// optDuration parses a duration option such as "30s". Invalid values yield 0.
func optDuration(opts map[string]any, key string) time.Duration {
	d, err := time.ParseDuration(optString(opts, key))
	if err != nil {
		return 0
	}
	return d
}
