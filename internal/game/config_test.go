package game_test

import (
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/radiomirchi/internal/game"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	c := game.DefaultConfig()
	if c.LowWatermark != 2 || c.HighWatermark != 4 || c.BatchSize != 5 {
		t.Errorf("watermarks/batch = %d/%d/%d", c.LowWatermark, c.HighWatermark, c.BatchSize)
	}
	if c.WaitTimeout != 10*time.Second {
		t.Errorf("WaitTimeout = %s, want 10s", c.WaitTimeout)
	}
	if c.BargeIn {
		t.Error("BargeIn should default to false")
	}
	if c.SynthesisRetries != 2 {
		t.Errorf("SynthesisRetries = %d, want 2", c.SynthesisRetries)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate(defaults) = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     game.Config
		wantErr string
	}{
		{name: "zero value", cfg: game.Config{}},
		{name: "negative low", cfg: game.Config{LowWatermark: -1}, wantErr: "low_watermark"},
		{name: "high not above low", cfg: game.Config{LowWatermark: 3, HighWatermark: 3}, wantErr: "high_watermark"},
		{name: "negative batch", cfg: game.Config{BatchSize: -2}, wantErr: "batch_size"},
		{name: "negative wait", cfg: game.Config{WaitTimeout: -time.Second}, wantErr: "wait_timeout"},
		{name: "max backoff below initial", cfg: game.Config{GenerationBackoff: time.Second, GenerationMaxBackoff: time.Millisecond}, wantErr: "generation_max_backoff"},
		{name: "low above default high is fine", cfg: game.Config{LowWatermark: 6}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tc.wantErr)
			}
		})
	}
}
