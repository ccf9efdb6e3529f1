package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"gemini", "openai", "anthropic", "ollama", "deepseek", "mistral", "groq"},
	"stt": {"deepgram", "whisper"},
	"tts": {"deepgram", "elevenlabs", "coqui"},
}

// Load reads the YAML configuration file at path, applies environment
// overrides and returns a validated [Config].
func Load(path string) (*Config, error) {
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

// LoadFromReader decodes a YAML config from r, applies environment overrides
// and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := Decode(r)
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout must not be negative, got %s", cfg.Server.ShutdownTimeout))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	for _, p := range []struct {
		kind      string
		primary   ProviderEntry
		fallbacks []ProviderEntry
	}{
		{"llm", cfg.Providers.LLM, cfg.Providers.LLMFallbacks},
		{"stt", cfg.Providers.STT, cfg.Providers.STTFallbacks},
		{"tts", cfg.Providers.TTS, cfg.Providers.TTSFallbacks},
	} {
		if p.primary.Name == "" {
			errs = append(errs, fmt.Errorf("providers.%s.name is required", p.kind))
		}
		validateProviderName(p.kind, p.primary.Name)
		for i, fb := range p.fallbacks {
			if fb.Name == "" {
				errs = append(errs, fmt.Errorf("providers.%s_fallbacks[%d].name is required", p.kind, i))
			}
			validateProviderName(p.kind, fb.Name)
		}
	}
	if b := cfg.Providers.Breaker; b.FailureThreshold < 0 || b.Probes < 0 || b.Cooldown < 0 {
		errs = append(errs, errors.New("providers.breaker values must not be negative"))
	}

	// Game
	if err := cfg.Game.Tuning().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("game: %w", err))
	}
	if cfg.Game.HistoryTokenBudget < 0 {
		errs = append(errs, fmt.Errorf("game.history_token_budget must not be negative, got %d", cfg.Game.HistoryTokenBudget))
	}
	if t := cfg.Game.Temperature; t < 0 || t > 2 {
		errs = append(errs, fmt.Errorf("game.temperature %.2f is out of range [0, 2]", t))
	}

	// Store
	switch cfg.Store.Driver {
	case "", StoreMemory:
	case StorePostgres:
		if cfg.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn is required for driver postgres"))
		}
	case StoreSQLite:
		if cfg.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for driver sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is invalid; valid values: memory, postgres, sqlite", cfg.Store.Driver))
	}
	if cfg.Store.Driver == "" || cfg.Store.Driver == StoreMemory {
		if cfg.Store.SeedFile == "" {
			slog.Warn("store.driver is memory and no seed_file is set; no mission can be played")
		}
	}

	// Events
	if p := cfg.Events.SubjectPrefix; p != "" && strings.ContainsAny(p, " *>") {
		errs = append(errs, fmt.Errorf("events.subject_prefix %q must not contain spaces or wildcards", p))
	}

	return errors.Join(errs...)
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
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
