// Package mission defines the mission record, the conversation history that
// accumulates while a mission is played, and the Store abstraction that
// persists both.
//
// A mission is one game: a pirate radio station whose hosts (Speakers) push a
// fabricated narrative while the player calls in to wake the listeners up.
// The session engine treats the mission ID as an opaque session key and only
// touches a mission through a [Context] handle obtained from [Bind].
package mission

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by Store lookups for an unknown mission ID.
	ErrNotFound = errors.New("mission: not found")

	// ErrNotReady is returned when a mission exists but cannot be played yet.
	ErrNotReady = errors.New("mission: not ready")
)

// Status describes whether a mission can be played.
type Status string

const (
	// StatusPending marks a mission whose setup has not finished yet.
	StatusPending Status = "pending"
	// StatusReady marks a mission that can be connected to.
	StatusReady Status = "ready"
)

// Speaker is one AI radio host.
type Speaker struct {
	Name        string `yaml:"name" json:"name"`
	Gender      string `yaml:"gender" json:"gender"`
	Color       string `yaml:"color" json:"color"`
	Description string `yaml:"description" json:"description"`
}

// Mission is the persistent record of one game.
type Mission struct {
	ID    string `yaml:"id"`
	Topic string `yaml:"topic"`

	// Summary describes the fabricated narrative the hosts push.
	Summary string `yaml:"summary"`

	// ProofSentences are facts the player can use to expose the narrative.
	ProofSentences []string `yaml:"proof_sentences"`

	Speakers []Speaker `yaml:"speakers"`

	// InitialListeners is the audience size; AwakenedListeners counts the
	// listeners the player has convinced so far and never exceeds it.
	InitialListeners  int `yaml:"initial_listeners"`
	AwakenedListeners int `yaml:"awakened_listeners"`

	// DialoguePrompt is the per-mission instruction for the dialogue generator.
	DialoguePrompt string `yaml:"dialogue_prompt"`

	Status    Status    `yaml:"status"`
	CreatedAt time.Time `yaml:"created_at"`
}

// MaxSpeakers is the most hosts a mission may have.
const MaxSpeakers = 4

// Validate reports every problem with m joined into one error.
func (m *Mission) Validate() error {
	var errs []error
	if strings.TrimSpace(m.ID) == "" {
		errs = append(errs, errors.New("id must not be empty"))
	}
	if n := len(m.Speakers); n < 1 || n > MaxSpeakers {
		errs = append(errs, fmt.Errorf("speakers: need 1 to %d, got %d", MaxSpeakers, n))
	}
	seen := make(map[string]bool, len(m.Speakers))
	for i, s := range m.Speakers {
		key := strings.ToLower(strings.TrimSpace(s.Name))
		if key == "" {
			errs = append(errs, fmt.Errorf("speakers[%d]: name must not be empty", i))
			continue
		}
		if seen[key] {
			errs = append(errs, fmt.Errorf("speakers[%d]: duplicate name %q", i, s.Name))
		}
		seen[key] = true
	}
	if m.InitialListeners <= 0 {
		errs = append(errs, fmt.Errorf("initial_listeners must be positive, got %d", m.InitialListeners))
	}
	if m.AwakenedListeners < 0 || m.AwakenedListeners > m.InitialListeners {
		errs = append(errs, fmt.Errorf("awakened_listeners %d outside [0, %d]", m.AwakenedListeners, m.InitialListeners))
	}
	switch m.Status {
	case "", StatusPending, StatusReady:
	default:
		errs = append(errs, fmt.Errorf("unknown status %q", m.Status))
	}
	if len(errs) > 0 {
		return fmt.Errorf("mission %q: %w", m.ID, errors.Join(errs...))
	}
	return nil
}

// Speaker returns the host whose name matches name case-insensitively.
func (m *Mission) Speaker(name string) (Speaker, bool) {
	name = strings.TrimSpace(name)
	for _, s := range m.Speakers {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Speaker{}, false
}

// ClampAwakened bounds n to the valid awakened-listener range of m.
func (m *Mission) ClampAwakened(n int) int {
	return max(0, min(n, m.InitialListeners))
}

// ── Conversation history ─────────────────────────────────────────────────────

// Kind tags what an Utterance records.
type Kind string

const (
	// KindLine is a host line that was fully spoken.
	KindLine Kind = "line"
	// KindUser is a recognised user turn.
	KindUser Kind = "user"
	// KindUserSpokeNothing marks a user turn with no usable speech.
	KindUserSpokeNothing Kind = "user_spoke_nothing"
	// KindUserInterrupted marks a host line cut short by the user.
	KindUserInterrupted Kind = "user_interrupted"
	// KindLineUnavailable marks a host line skipped because synthesis failed.
	KindLineUnavailable Kind = "line_unavailable"
)

// UserSpeaker is the speaker label recorded for the player.
const UserSpeaker = "User"

// Utterance is one entry of a mission's append-only conversation history.
type Utterance struct {
	Speaker string
	Text    string
	Kind    Kind
	At      time.Time
}

// Render formats u as a single transcript line for prompts.
func (u Utterance) Render() string {
	switch u.Kind {
	case KindUser:
		return UserSpeaker + ": " + u.Text
	case KindUserSpokeNothing:
		return UserSpeaker + ": (user spoke nothing)"
	case KindUserInterrupted:
		return u.Speaker + ": " + u.Text + " (user interrupted)"
	case KindLineUnavailable:
		return u.Speaker + ": (line unavailable)"
	default:
		return u.Speaker + ": " + u.Text
	}
}

// IsUserTurn reports whether u records the outcome of a user turn.
func (u Utterance) IsUserTurn() bool {
	return u.Kind == KindUser || u.Kind == KindUserSpokeNothing
}

// DialogueLine is one generated host line waiting to be spoken.
type DialogueLine struct {
	Speaker string
	Text    string

	// AwakenedDelta is added to the mission's awakened listeners once the line
	// has been spoken.
	AwakenedDelta int
}

// BatchRequest asks for the next lines of a running show.
type BatchRequest struct {
	// History is the ordered conversation so far.
	History []Utterance

	// Awakened is the live awakened listener count. It supersedes the
	// mission's AwakenedListeners, which is only the value at connect time.
	Awakened int

	// Size is the number of lines wanted.
	Size int
}
