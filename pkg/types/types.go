// Package types defines the shared types used across Radio Mirchi packages.
//
// These types form the lingua franca between providers, the dialogue generator
// and the session engine. Each package defines its own domain types; only
// cross-cutting data structures live here to avoid circular imports.
package types

import "time"

// Transcript represents a speech-to-text result from an STT provider.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is a final (authoritative) or interim transcript.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the
	// provider does not report confidence.
	Confidence float64

	// Start marks when the utterance started, relative to stream start.
	Start time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// KeywordBoost represents a keyword to boost in STT recognition. The session
// engine boosts host names so listeners calling them out are recognised.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "Arthur Sterling").
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name.
	Name string
}

// VoiceProfile describes a TTS voice assigned to a radio host.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier (e.g., "aura-2-thalia-en").
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Gender is "male" or "female" when known.
	Gender string

	// Metadata holds provider-specific voice attributes (accent, age, ...).
	Metadata map[string]string
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsJSONMode indicates the backend can be asked for a JSON-only reply.
	SupportsJSONMode bool
}
