package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/radiomirchi/pkg/provider/llm"
	llmmock "github.com/MrWong99/radiomirchi/pkg/provider/llm/mock"
	"github.com/MrWong99/radiomirchi/pkg/types"
)

func TestLLMFailover_Complete(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{CompleteErr: errors.New("quota exceeded")}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{"lines":[]}`}}

	f := NewLLMFailover("gemini", primary, FailoverConfig{Logger: quiet})
	f.Add("openai", secondary)

	req := llm.CompletionRequest{SystemPrompt: "host a show", JSONMode: true}
	resp, err := f.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != `{"lines":[]}` {
		t.Fatalf("Content = %q", resp.Content)
	}
	if len(primary.CompleteCalls) != 1 || len(secondary.CompleteCalls) != 1 {
		t.Fatalf("calls = %d/%d, want 1/1", len(primary.CompleteCalls), len(secondary.CompleteCalls))
	}
	if !secondary.CompleteCalls[0].Req.JSONMode {
		t.Fatal("fallback did not receive the original request")
	}
}

func TestLLMFailover_CountTokens(t *testing.T) {
	t.Parallel()
	msgs := []types.Message{{Role: "user", Content: "The sky was always green."}}

	t.Run("primary", func(t *testing.T) {
		t.Parallel()
		f := NewLLMFailover("p", &llmmock.Provider{TokenCount: 7}, FailoverConfig{Logger: quiet})
		n, err := f.CountTokens(msgs)
		if err != nil || n != 7 {
			t.Fatalf("CountTokens = %d, %v; want 7, nil", n, err)
		}
	})
	t.Run("estimate on error", func(t *testing.T) {
		t.Parallel()
		f := NewLLMFailover("p", &llmmock.Provider{CountTokensErr: errors.New("unsupported")}, FailoverConfig{Logger: quiet})
		n, err := f.CountTokens(msgs)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := llm.EstimateTokens(msgs); n != want {
			t.Fatalf("CountTokens = %d, want estimate %d", n, want)
		}
	})
}

func TestLLMFailover_Capabilities(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{ModelCapabilities: types.ModelCapabilities{ContextWindow: 128000, SupportsJSONMode: true}}
	f := NewLLMFailover("p", primary, FailoverConfig{Logger: quiet})
	f.Add("s", &llmmock.Provider{})
	if got := f.Capabilities(); got.ContextWindow != 128000 || !got.SupportsJSONMode {
		t.Fatalf("Capabilities() = %+v", got)
	}
}
