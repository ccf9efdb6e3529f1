// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., Deepgram Aura or
// ElevenLabs) and presents a uniform streaming interface. Synthesize turns one
// dialogue line into a [Stream]: a lazy, finite and single-use sequence of raw
// PCM chunks that the session relay forwards to the client as they arrive.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/radiomirchi/pkg/types"
)

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use. Sessions synthesise
// independently, so several Synthesize calls may run in parallel.
type Provider interface {
	// Synthesize starts synthesis of text with the given voice and returns a
	// stream of raw PCM audio chunks in playback order.
	//
	// Returns a non-nil error only if synthesis cannot be started (bad voice,
	// authentication failure, HTTP error status). Failures after the stream has
	// started are reported by [Stream.Err] once [Stream.Chunks] is closed.
	// Cancelling ctx stops the stream promptly.
	Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (Stream, error)

	// ListVoices returns all voice profiles available from this provider.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)
}

// Stream is a finite, non-restartable sequence of synthesised audio chunks.
type Stream interface {
	// Chunks returns the channel of audio chunks. It is closed when synthesis
	// finishes, fails or is cancelled. The caller must either drain it or cancel
	// the context passed to Synthesize.
	Chunks() <-chan []byte

	// Err reports why Chunks was closed. It returns nil after a complete
	// synthesis and must only be called once Chunks is closed.
	Err() error
}
