package config

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Decode reads a YAML config from r without applying environment overrides or
// validation. Unknown fields are rejected.
func Decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// envOverrides holds the environment variables that override file values.
// API keys only fill entries that leave api_key empty.
type envOverrides struct {
	ListenAddr string `env:"RADIOMIRCHI_LISTEN_ADDR"`
	Host       string `env:"HOST"`
	Port       string `env:"PORT"`
	LogLevel   string `env:"RADIOMIRCHI_LOG_LEVEL"`

	DeepgramAPIKey   string `env:"DEEPGRAM_API_KEY"`
	GoogleAPIKey     string `env:"GOOGLE_API_KEY"`
	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	ElevenLabsAPIKey string `env:"ELEVENLABS_API_KEY"`

	StoreDriver string `env:"RADIOMIRCHI_STORE_DRIVER"`
	PostgresDSN string `env:"POSTGRES_DSN"`
	SQLitePath  string `env:"SQLITE_PATH"`
	SeedFile    string `env:"RADIOMIRCHI_SEED_FILE"`

	NATSURL string `env:"NATS_URL"`
}

// ApplyEnv overlays environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var e envOverrides
	if err := env.Parse(&e); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}

	switch {
	case e.ListenAddr != "":
		cfg.Server.ListenAddr = e.ListenAddr
	case e.Host != "" || e.Port != "":
		host, port, err := net.SplitHostPort(cfg.Server.ListenAddr)
		if err != nil {
			host, port = "", "8000"
		}
		if e.Host != "" {
			host = e.Host
		}
		if e.Port != "" {
			port = e.Port
		}
		cfg.Server.ListenAddr = net.JoinHostPort(host, port)
	}
	if e.LogLevel != "" {
		cfg.Server.LogLevel = LogLevel(e.LogLevel)
	}

	keys := map[string]string{
		"deepgram":   e.DeepgramAPIKey,
		"gemini":     e.GoogleAPIKey,
		"openai":     e.OpenAIAPIKey,
		"elevenlabs": e.ElevenLabsAPIKey,
	}
	fill := func(p *ProviderEntry) {
		if k := keys[p.Name]; k != "" && p.APIKey == "" {
			p.APIKey = k
		}
	}
	fill(&cfg.Providers.LLM)
	fill(&cfg.Providers.STT)
	fill(&cfg.Providers.TTS)
	for _, list := range [][]ProviderEntry{cfg.Providers.LLMFallbacks, cfg.Providers.STTFallbacks, cfg.Providers.TTSFallbacks} {
		for i := range list {
			fill(&list[i])
		}
	}

	if e.StoreDriver != "" {
		cfg.Store.Driver = StoreDriver(e.StoreDriver)
	}
	if e.PostgresDSN != "" {
		cfg.Store.PostgresDSN = e.PostgresDSN
	}
	if e.SQLitePath != "" {
		cfg.Store.SQLitePath = e.SQLitePath
	}
	if e.SeedFile != "" {
		cfg.Store.SeedFile = e.SeedFile
	}
	if e.NATSURL != "" {
		cfg.Events.NATSURL = e.NATSURL
	}
	return nil
}
