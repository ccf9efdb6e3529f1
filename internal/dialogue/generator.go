// Package dialogue writes the radio hosts' lines with a language model.
//
// A [Generator] is bound to one mission. Each call renders the mission brief
// and the conversation so far into a prompt, asks the model for a JSON batch
// of lines and maps the reply onto the mission's speakers. It implements
// game.Generator.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/radiomirchi/pkg/mission"
	"github.com/MrWong99/radiomirchi/pkg/provider/llm"
	"github.com/MrWong99/radiomirchi/pkg/types"
)

// ErrNoLines is returned when a reply parsed but held no usable line.
var ErrNoLines = errors.New("dialogue: reply has no usable lines")

const (
	defaultTemperature   = 0.9
	defaultHistoryBudget = 4000
	defaultMaxTokens     = 2048
)

// Generator produces batches of host lines for one mission. It is safe for
// concurrent use.
type Generator struct {
	llm     llm.Provider
	mission *mission.Mission
	system  string

	temperature   float64
	historyBudget int
	maxTokens     int
	log           *slog.Logger
}

// Option configures a [Generator].
type Option func(*Generator)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(g *Generator) { g.temperature = t }
}

// WithHistoryTokenBudget caps the tokens spent on conversation history. Older
// history is dropped first.
func WithHistoryTokenBudget(n int) Option {
	return func(g *Generator) { g.historyBudget = n }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(g *Generator) { g.maxTokens = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.log = l }
}

// New returns a generator for m backed by p.
func New(p llm.Provider, m *mission.Mission, opts ...Option) (*Generator, error) {
	if p == nil {
		return nil, errors.New("dialogue: llm provider must not be nil")
	}
	if m == nil || len(m.Speakers) == 0 {
		return nil, errors.New("dialogue: mission must have at least one speaker")
	}
	g := &Generator{
		llm:           p,
		mission:       m,
		temperature:   defaultTemperature,
		historyBudget: defaultHistoryBudget,
		maxTokens:     defaultMaxTokens,
		log:           slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	if cw := p.Capabilities().ContextWindow; cw > 0 && g.historyBudget > cw/2 {
		g.historyBudget = cw / 2
	}
	g.system = formatSystemPrompt(m)
	g.log = g.log.With("mission_id", m.ID)
	return g, nil
}

// GenerateBatch asks the model for the next req.Size lines given the history
// and the live listener score.
func (g *Generator) GenerateBatch(ctx context.Context, req mission.BatchRequest) ([]mission.DialogueLine, error) {
	size := req.Size
	if size <= 0 {
		return nil, fmt.Errorf("dialogue: batch size must be positive, got %d", size)
	}
	transcript, omitted := g.fitHistory(req.History)
	if omitted > 0 {
		g.log.Debug("history trimmed for prompt", "omitted", omitted, "kept", len(transcript))
	}

	resp, err := g.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: g.system,
		Messages: []types.Message{{
			Role:    "user",
			Content: formatRequest(g.mission, req.Awakened, transcript, omitted, size),
		}},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("dialogue: complete: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("dialogue: complete: %w", ErrNoLines)
	}

	lines, dropped, err := parseBatch(resp.Content, g.mission)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		g.log.Warn("dropped generated lines", "dropped", dropped, "kept", len(lines))
	}
	if len(lines) == 0 {
		return nil, ErrNoLines
	}
	if len(lines) > size {
		lines = lines[:size]
	}
	g.log.Debug("batch generated", "lines", len(lines), "prompt_tokens", resp.Usage.PromptTokens, "completion_tokens", resp.Usage.CompletionTokens)
	return lines, nil
}

// fitHistory renders history and drops the oldest half of what is left until
// it fits the token budget. It returns the kept lines and how many were
// omitted.
func (g *Generator) fitHistory(history []mission.Utterance) ([]string, int) {
	rendered := make([]string, len(history))
	for i, u := range history {
		rendered[i] = u.Render()
	}
	kept := rendered
	for len(kept) > 0 && g.tokens(kept) > g.historyBudget {
		kept = kept[max(1, len(kept)/2):]
	}
	return kept, len(rendered) - len(kept)
}

func (g *Generator) tokens(lines []string) int {
	msgs := make([]types.Message, len(lines))
	for i, l := range lines {
		msgs[i] = types.Message{Role: "user", Content: l}
	}
	n, err := g.llm.CountTokens(msgs)
	if err != nil {
		return llm.EstimateTokens(msgs)
	}
	return n
}
