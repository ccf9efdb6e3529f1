package resilience

import (
	"context"

	"github.com/MrWong99/radiomirchi/pkg/provider/llm"
	"github.com/MrWong99/radiomirchi/pkg/types"
)

// LLMFailover is an [llm.Provider] that fails over across language model
// backends.
type LLMFailover struct {
	*Failover[llm.Provider]
}

var _ llm.Provider = (*LLMFailover)(nil)

// NewLLMFailover returns a failover with primary as the preferred backend.
func NewLLMFailover(name string, primary llm.Provider, cfg FailoverConfig) *LLMFailover {
	return &LLMFailover{NewFailover(name, primary, cfg)}
}

// Complete asks the first healthy backend.
func (f *LLMFailover) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Call(ctx, f.Failover, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// CountTokens uses the primary's counter, falling back to the local estimate.
func (f *LLMFailover) CountTokens(messages []types.Message) (int, error) {
	n, err := f.Primary().CountTokens(messages)
	if err != nil {
		return llm.EstimateTokens(messages), nil
	}
	return n, nil
}

// Capabilities reports the primary's capabilities. A fallback that cannot
// honour JSONMode falls back to the prompt's JSON instructions.
func (f *LLMFailover) Capabilities() types.ModelCapabilities {
	return f.Primary().Capabilities()
}
