// Package mock provides a test double for the llm.Provider interface.
//
// Replies scripts a sequence of model outputs, one per Complete call, which
// suits the dialogue generator's batch-after-batch usage:
//
//	p := &mock.Provider{Replies: []string{`{"lines":[...]}`, `not json`}}
//
// CompleteResponse and CompleteErr give a fixed answer instead.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/radiomirchi/pkg/provider/llm"
	"github.com/MrWong99/radiomirchi/pkg/types"
)

var _ llm.Provider = (*Provider)(nil)

// CompleteCall records one Complete invocation.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider. The zero value answers
// every Complete with (nil, nil).
type Provider struct {
	mu sync.Mutex

	// Replies are returned as response content in order. Once exhausted the
	// last reply repeats. Replies take precedence over CompleteResponse.
	Replies []string

	// CompleteResponse is returned by Complete when Replies is empty.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, fails every Complete call.
	CompleteErr error

	// TokenCount is returned by CountTokens when CountTokensFunc is nil.
	TokenCount int

	// CountTokensFunc, if set, computes the CountTokens result.
	CountTokensFunc func(messages []types.Message) int

	// CountTokensErr, if non-nil, is returned from CountTokens.
	CountTokensErr error

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities types.ModelCapabilities

	// CompleteCalls records every Complete invocation in order.
	CompleteCalls []CompleteCall

	// CountTokensCalls counts CountTokens invocations.
	CountTokensCalls int
}

// Complete records the call and returns the next scripted reply.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.CompleteCalls)
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	if len(p.Replies) > 0 {
		content := p.Replies[min(n, len(p.Replies)-1)]
		return &llm.CompletionResponse{Content: content}, nil
	}
	return p.CompleteResponse, nil
}

// CountTokens returns the configured token count.
func (p *Provider) CountTokens(messages []types.Message) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CountTokensCalls++
	if p.CountTokensFunc != nil {
		return p.CountTokensFunc(messages), p.CountTokensErr
	}
	return p.TokenCount, p.CountTokensErr
}

// Capabilities returns ModelCapabilities.
func (p *Provider) Capabilities() types.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelCapabilities
}

// Calls returns a copy of the recorded Complete calls.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]CompleteCall(nil), p.CompleteCalls...)
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
	p.CountTokensCalls = 0
}
