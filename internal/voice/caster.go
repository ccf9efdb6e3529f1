// Package voice connects a session to the speech providers: [Caster] gives
// every radio host a voice from the synthesis catalogue and [Recognizer] turns
// one push-to-talk turn into a transcript.
package voice

import (
	"context"
	"hash/fnv"
	"log/slog"
	"strings"

	"github.com/MrWong99/radiomirchi/pkg/mission"
	"github.com/MrWong99/radiomirchi/pkg/provider/tts"
	"github.com/MrWong99/radiomirchi/pkg/types"
)

// DefaultGender is used for hosts whose gender is missing or unrecognised.
const DefaultGender = "female"

// Caster maps a mission's hosts to voices. The assignment is fixed at
// construction, depends only on the catalogue and host names, and gives two
// hosts the same voice only when their gender pool is exhausted.
type Caster struct {
	voices   map[string]types.VoiceProfile
	fallback types.VoiceProfile
}

// NewCaster lists the provider's voices and casts m's hosts. If listing fails
// or returns nothing, catalogue is used instead; it is typically the
// provider's static voice list.
func NewCaster(ctx context.Context, p tts.Provider, m *mission.Mission, catalogue []types.VoiceProfile, log *slog.Logger) *Caster {
	if log == nil {
		log = slog.Default()
	}
	voices, err := p.ListVoices(ctx)
	switch {
	case err != nil:
		log.Warn("list voices failed, using static catalogue", "mission_id", m.ID, "err", err)
		voices = catalogue
	case len(voices) == 0:
		voices = catalogue
	}
	return Cast(voices, m.Speakers)
}

// Cast assigns voices from catalogue to speakers.
func Cast(catalogue []types.VoiceProfile, speakers []mission.Speaker) *Caster {
	pools := map[string][]types.VoiceProfile{}
	for _, v := range catalogue {
		g := normalizeGender(v.Gender)
		pools[g] = append(pools[g], v)
	}

	c := &Caster{voices: make(map[string]types.VoiceProfile, len(speakers))}
	used := map[string]bool{}
	for _, s := range speakers {
		pool := pools[normalizeGender(s.Gender)]
		if len(pool) == 0 {
			pool = catalogue
		}
		if len(pool) == 0 {
			continue
		}
		v := pick(pool, s.Name, used)
		used[v.ID] = true
		c.voices[strings.ToLower(s.Name)] = v
	}
	if len(speakers) > 0 {
		c.fallback = c.voices[strings.ToLower(speakers[0].Name)]
	}
	return c
}

// pick hashes name into pool and probes forward past voices already taken.
func pick(pool []types.VoiceProfile, name string, used map[string]bool) types.VoiceProfile {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(name)))
	start := int(h.Sum32() % uint32(len(pool)))
	for i := range pool {
		v := pool[(start+i)%len(pool)]
		if !used[v.ID] {
			return v
		}
	}
	return pool[start]
}

func normalizeGender(g string) string {
	switch strings.ToLower(strings.TrimSpace(g)) {
	case "male", "m", "man":
		return "male"
	case "female", "f", "woman":
		return "female"
	default:
		return DefaultGender
	}
}

// Voice returns the voice cast for speaker. Unknown speakers get the first
// host's voice.
func (c *Caster) Voice(speaker string) types.VoiceProfile {
	if v, ok := c.voices[strings.ToLower(strings.TrimSpace(speaker))]; ok {
		return v
	}
	return c.fallback
}
