package anyllm

import (
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/radiomirchi/pkg/provider/llm"
	"github.com/MrWong99/radiomirchi/pkg/types"
)

// ── convertMessage ────────────────────────────────────────────────────────────

func TestConvertMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   types.Message
	}{
		{"system", types.Message{Role: "system", Content: "You are a radio host."}},
		{"user", types.Message{Role: "user", Content: "Write the next lines."}},
		{"assistant", types.Message{Role: "assistant", Content: "Good evening!", Name: "Arthur"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := convertMessage(tt.in)
			if got.Role != tt.in.Role {
				t.Errorf("role = %q, want %q", got.Role, tt.in.Role)
			}
			if got.ContentString() != tt.in.Content {
				t.Errorf("content = %q, want %q", got.ContentString(), tt.in.Content)
			}
			if got.Name != tt.in.Name {
				t.Errorf("name = %q, want %q", got.Name, tt.in.Name)
			}
		})
	}
}

// ── buildParams ───────────────────────────────────────────────────────────────

func TestBuildParams_JSONModeExtendsSystemPrompt(t *testing.T) {
	t.Parallel()

	p := &Provider{model: DefaultModel}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You write radio dialogue.",
		Messages:     []types.Message{{Role: "user", Content: "go"}},
		JSONMode:     true,
		Temperature:  0.9,
		MaxTokens:    512,
	})

	if params.Model != DefaultModel {
		t.Errorf("model = %q, want %q", params.Model, DefaultModel)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	sys := params.Messages[0]
	if sys.Role != anyllmlib.RoleSystem {
		t.Errorf("first message role = %q, want system", sys.Role)
	}
	if !strings.HasPrefix(sys.ContentString(), "You write radio dialogue.") {
		t.Errorf("system prompt lost original text: %q", sys.ContentString())
	}
	if !strings.Contains(sys.ContentString(), "JSON object") {
		t.Errorf("system prompt missing JSON instruction: %q", sys.ContentString())
	}
	if params.Temperature == nil || *params.Temperature != 0.9 {
		t.Errorf("temperature = %v, want 0.9", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 512 {
		t.Errorf("max tokens = %v, want 512", params.MaxTokens)
	}
}

func TestBuildParams_NoSystemPrompt(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "gpt-4o"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	if len(params.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(params.Messages))
	}
	if params.Temperature != nil {
		t.Errorf("expected nil temperature for zero value")
	}
	if params.MaxTokens != nil {
		t.Errorf("expected nil max tokens for zero value")
	}
}

// ── modelCapabilities ─────────────────────────────────────────────────────────

func TestModelCapabilities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model     string
		window    int
		maxOutput int
	}{
		{"gemini-2.5-flash", 1_048_576, 65_536},
		{"GEMINI-2.5-PRO", 1_048_576, 65_536},
		{"gemini-2.0-flash", 1_048_576, 8_192},
		{"gemini-pro", 128_000, 8_192},
		{"gpt-4o-mini", 128_000, 16_384},
		{"claude-3-5-sonnet-latest", 200_000, 8_192},
		{"my-custom-model", 128_000, 4_096},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			t.Parallel()
			caps := modelCapabilities(tt.model)
			if caps.ContextWindow != tt.window {
				t.Errorf("context window = %d, want %d", caps.ContextWindow, tt.window)
			}
			if caps.MaxOutputTokens != tt.maxOutput {
				t.Errorf("max output = %d, want %d", caps.MaxOutputTokens, tt.maxOutput)
			}
		})
	}
}

// ── Constructor ───────────────────────────────────────────────────────────────

func TestNew_EmptyProviderName(t *testing.T) {
	t.Parallel()
	if _, err := New("", "gpt-4o"); err == nil {
		t.Fatal("expected error for empty providerName")
	}
}

func TestNew_UnsupportedProvider(t *testing.T) {
	t.Parallel()
	if _, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy")); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestNew_EmptyModelUsesDefault(t *testing.T) {
	t.Parallel()
	p, err := New("openai", "", anyllmlib.WithAPIKey("sk-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.model != DefaultModel {
		t.Errorf("model = %q, want %q", p.model, DefaultModel)
	}
}

func TestNewOllama_NoAPIKey(t *testing.T) {
	t.Parallel()
	p, err := NewOllama("llama3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}

// ── CountTokens ───────────────────────────────────────────────────────────────

func TestCountTokens_MatchesEstimate(t *testing.T) {
	t.Parallel()
	p := &Provider{model: DefaultModel}
	msgs := []types.Message{
		{Role: "system", Content: "You are a host on Radio Mirchi."},
		{Role: "user", Content: "Write five lines."},
	}
	got, err := p.CountTokens(msgs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := llm.EstimateTokens(msgs); got != want {
		t.Errorf("CountTokens = %d, want %d", got, want)
	}
}
