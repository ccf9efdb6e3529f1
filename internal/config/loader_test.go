package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/radiomirchi/internal/config"
)

func valid() *config.Config {
	return &config.Config{
		Providers: config.ProvidersConfig{
			LLM: config.ProviderEntry{Name: "gemini"},
			STT: config.ProviderEntry{Name: "deepgram"},
			TTS: config.ProviderEntry{Name: "deepgram"},
		},
		Store: config.StoreConfig{SeedFile: "missions.yaml"},
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{name: "minimal", mutate: func(*config.Config) {}},
		{name: "bad log level", mutate: func(c *config.Config) { c.Server.LogLevel = "loud" }, wantErr: "server.log_level"},
		{name: "negative shutdown", mutate: func(c *config.Config) { c.Server.ShutdownTimeout = -time.Second }, wantErr: "shutdown_timeout"},
		{name: "half tls", mutate: func(c *config.Config) { c.Server.TLS = &config.TLSConfig{CertFile: "c.pem"} }, wantErr: "server.tls"},
		{name: "missing llm", mutate: func(c *config.Config) { c.Providers.LLM.Name = "" }, wantErr: "providers.llm.name"},
		{name: "missing stt", mutate: func(c *config.Config) { c.Providers.STT.Name = "" }, wantErr: "providers.stt.name"},
		{
			name:    "nameless fallback",
			mutate:  func(c *config.Config) { c.Providers.TTSFallbacks = []config.ProviderEntry{{}} },
			wantErr: "providers.tts_fallbacks[0].name",
		},
		{name: "negative breaker", mutate: func(c *config.Config) { c.Providers.Breaker.Probes = -1 }, wantErr: "providers.breaker"},
		{
			name:    "watermarks",
			mutate:  func(c *config.Config) { c.Game.LowWatermark, c.Game.HighWatermark = 4, 3 },
			wantErr: "high_watermark",
		},
		{name: "temperature", mutate: func(c *config.Config) { c.Game.Temperature = 3 }, wantErr: "game.temperature"},
		{name: "history budget", mutate: func(c *config.Config) { c.Game.HistoryTokenBudget = -5 }, wantErr: "history_token_budget"},
		{name: "bad driver", mutate: func(c *config.Config) { c.Store.Driver = "mongo" }, wantErr: "store.driver"},
		{name: "postgres without dsn", mutate: func(c *config.Config) { c.Store.Driver = config.StorePostgres }, wantErr: "postgres_dsn"},
		{name: "sqlite without path", mutate: func(c *config.Config) { c.Store.Driver = config.StoreSQLite }, wantErr: "sqlite_path"},
		{name: "wildcard prefix", mutate: func(c *config.Config) { c.Events.SubjectPrefix = "radio.*" }, wantErr: "subject_prefix"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(cfg)
			err := config.Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	t.Parallel()
	err := config.Validate(&config.Config{Server: config.ServerConfig{LogLevel: "loud"}})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"log_level", "providers.llm.name", "providers.stt.name", "providers.tts.name"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("err misses %q: %v", want, err)
		}
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "radiomirchi.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.STT.Model != "nova-2" {
		t.Errorf("stt.model = %q", cfg.Providers.STT.Model)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file: expected error")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server:\n  log_level: loud\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), path) {
		t.Errorf("invalid file: err = %v, want it to name the path", err)
	}
}

func TestExampleConfigIsValid(t *testing.T) {
	t.Parallel()
	f, err := os.Open(filepath.Join("..", "..", "configs", "example.yaml"))
	if err != nil {
		t.Fatalf("open example config: %v", err)
	}
	defer f.Close()

	cfg, err := config.Decode(f)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Store.Driver != config.StoreSQLite {
		t.Errorf("store.driver = %q, want sqlite", cfg.Store.Driver)
	}
	if len(cfg.Providers.STTFallbacks) != 1 || cfg.Providers.STTFallbacks[0].Name != "whisper" {
		t.Errorf("stt_fallbacks = %+v", cfg.Providers.STTFallbacks)
	}
}
