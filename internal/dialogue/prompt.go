package dialogue

import (
	"fmt"
	"strings"

	"github.com/MrWong99/radiomirchi/pkg/mission"
)

const baseInstruction = `You write the live script of a pirate radio show. The hosts below push a
fabricated narrative to their listeners. A caller ("User") is trying to expose
it on air. Stay in character: the hosts dodge, mock or rationalise what the
caller says, but a strong argument backed by real evidence shakes some
listeners awake.`

const formatInstruction = `Reply with a single JSON object and nothing else:
{"lines":[{"speaker":"<host name>","text":"<what they say>","awakened_delta":<integer>}]}
Rules:
- speaker must be one of the host names exactly as listed.
- text is one short spoken turn, no stage directions, no speaker prefix.
- awakened_delta is how many listeners this line wakes (positive) or lulls back
  to sleep (negative); use 0 unless the caller just landed or lost a point.`

// formatSystemPrompt renders the per-mission system prompt.
func formatSystemPrompt(m *mission.Mission) string {
	var sb strings.Builder
	sb.WriteString(baseInstruction)
	if p := strings.TrimSpace(m.DialoguePrompt); p != "" {
		sb.WriteString("\n\n")
		sb.WriteString(p)
	}
	sb.WriteString("\n\n")
	sb.WriteString(formatInstruction)
	return sb.String()
}

// formatRequest renders the user message for one batch: the show brief, the
// transcript so far and the ask.
func formatRequest(m *mission.Mission, awakened int, transcript []string, omitted, size int) string {
	var sb strings.Builder

	// ── Show ──────────────────────────────────────────────────────────────────
	sb.WriteString("## Show\n")
	if m.Topic != "" {
		fmt.Fprintf(&sb, "Topic: %s\n", m.Topic)
	}
	if m.Summary != "" {
		fmt.Fprintf(&sb, "Narrative: %s\n", m.Summary)
	}
	fmt.Fprintf(&sb, "Listeners: %d of %d awake\n", awakened, m.InitialListeners)

	// ── Hosts ─────────────────────────────────────────────────────────────────
	sb.WriteString("\n## Hosts\n")
	for _, s := range m.Speakers {
		fmt.Fprintf(&sb, "- %s", s.Name)
		if d := strings.TrimSpace(s.Description); d != "" {
			fmt.Fprintf(&sb, ": %s", d)
		}
		sb.WriteByte('\n')
	}

	// ── Evidence ──────────────────────────────────────────────────────────────
	if len(m.ProofSentences) > 0 {
		sb.WriteString("\n## Facts the caller may use against the hosts\n")
		for _, p := range m.ProofSentences {
			fmt.Fprintf(&sb, "- %s\n", p)
		}
	}

	// ── Transcript ────────────────────────────────────────────────────────────
	sb.WriteString("\n## Transcript so far\n")
	if omitted > 0 {
		fmt.Fprintf(&sb, "(%d earlier lines omitted)\n", omitted)
	}
	if len(transcript) == 0 {
		sb.WriteString("(the show is just starting)\n")
	}
	for _, l := range transcript {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}

	fmt.Fprintf(&sb, "\nWrite the next %d lines.", size)
	return sb.String()
}
