package dialogue

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrWong99/radiomirchi/pkg/mission"
)

type rawLine struct {
	Speaker       string `json:"speaker"`
	Text          string `json:"text"`
	AwakenedDelta int    `json:"awakened_delta"`
}

type rawBatch struct {
	Lines []rawLine `json:"lines"`
}

// parseBatch decodes a model reply into lines spoken by m's hosts. Lines with
// an unknown speaker, the user's label or blank text are dropped and counted.
// A bare JSON array of lines is accepted as well as the wrapped object.
func parseBatch(content string, m *mission.Mission) ([]mission.DialogueLine, int, error) {
	body := stripFences(content)

	var batch rawBatch
	var err error
	if strings.HasPrefix(body, "[") {
		err = json.Unmarshal([]byte(body), &batch.Lines)
	} else {
		err = json.Unmarshal([]byte(body), &batch)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("dialogue: decode reply: %w", err)
	}

	lines := make([]mission.DialogueLine, 0, len(batch.Lines))
	dropped := 0
	for _, r := range batch.Lines {
		text := strings.TrimSpace(r.Text)
		if text == "" || strings.EqualFold(strings.TrimSpace(r.Speaker), mission.UserSpeaker) {
			dropped++
			continue
		}
		s, ok := m.Speaker(r.Speaker)
		if !ok {
			dropped++
			continue
		}
		delta := max(-m.InitialListeners, min(r.AwakenedDelta, m.InitialListeners))
		lines = append(lines, mission.DialogueLine{Speaker: s.Name, Text: text, AwakenedDelta: delta})
	}
	return lines, dropped, nil
}

// stripFences removes a surrounding markdown code fence and any prose around
// the outermost JSON value.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "```"); ok {
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			rest = rest[i+1:]
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rest), "```"))
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	if end := strings.LastIndexByte(s, closer); end > start {
		return s[start : end+1]
	}
	return s[start:]
}
