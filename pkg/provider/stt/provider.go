// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a real-time transcription service (e.g., Deepgram live
// streaming) and exposes a uniform push-to-talk interface. The central
// abstraction is SessionHandle: once opened, a session accepts raw PCM audio
// frames and emits authoritative final Transcript values. When the user
// releases the talk button the caller invokes Finish, which flushes the
// provider and waits until every remaining final has been delivered.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/radiomirchi/pkg/types"
)

// ErrSessionClosed is returned by SendAudio after the session was finished or
// closed.
var ErrSessionClosed = errors.New("stt: session closed")

// StreamConfig describes the audio format and recognition hints for a new STT
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. The browser client captures
	// 16000 Hz mono PCM16.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the provider pick its default.
	Language string

	// Keywords is a list of vocabulary hints that increase recognition
	// probability for uncommon words such as host names.
	Keywords []types.KeywordBoost
}

// SessionHandle represents an open STT streaming session.
//
// Callers must call either Finish or Close when the session is no longer
// needed. All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio bytes to the provider.
	// Calling SendAudio after Finish or Close returns ErrSessionClosed.
	SendAudio(chunk []byte) error

	// Finals returns a read-only channel that emits authoritative Transcript
	// values. The channel is closed when the session ends.
	Finals() <-chan types.Transcript

	// Finish signals end of audio, waits until the provider has delivered every
	// pending final on Finals (or ctx expires) and releases the session. It
	// returns the first transport or provider error seen during the session.
	Finish(ctx context.Context) error

	// Close aborts the session immediately, discarding pending results.
	// Calling Close more than once, or after Finish, is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use: every session that enters
// USER_SPEAKING opens its own stream.
type Provider interface {
	// StartStream opens a new streaming transcription session. The returned
	// SessionHandle is ready to accept audio immediately.
	//
	// Returns an error if the provider cannot establish the session (e.g.,
	// authentication failure or ctx already cancelled).
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
