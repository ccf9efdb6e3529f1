package game

import (
	"context"

	"github.com/MrWong99/radiomirchi/pkg/mission"
	"github.com/MrWong99/radiomirchi/pkg/provider/tts"
	"github.com/MrWong99/radiomirchi/pkg/types"
)

// Generator produces the next batch of host lines from the conversation so
// far and the current listener score. An empty batch is treated as a failure.
type Generator interface {
	GenerateBatch(ctx context.Context, req mission.BatchRequest) ([]mission.DialogueLine, error)
}

// Synthesizer turns one line into a lazy, finite, single-use sequence of audio
// chunks.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (tts.Stream, error)
}

// VoiceFunc picks the voice for a speaker label.
type VoiceFunc func(speaker string) types.VoiceProfile

// Recognizer consumes one user turn's audio and returns its transcript once
// audio is closed. It must keep draining audio until the channel is closed or
// ctx is cancelled.
type Recognizer interface {
	Recognize(ctx context.Context, audio <-chan []byte) (string, error)
}

// ContextStore is the session's read/append handle on the mission's
// conversation history. [*mission.Context] implements it.
type ContextStore interface {
	Append(ctx context.Context, u mission.Utterance) error
	History(ctx context.Context) ([]mission.Utterance, error)
	SetAwakened(ctx context.Context, n int) error
}

var _ ContextStore = (*mission.Context)(nil)

// Frame is one inbound transport message.
type Frame struct {
	// Binary frames carry raw audio; text frames carry JSON control messages.
	Binary bool
	Data   []byte
}

// Transport is the bidirectional client connection borrowed by one session.
// Send methods may be called from the relay and the control loop; they are
// never called concurrently by one session.
type Transport interface {
	SendBinary(ctx context.Context, data []byte) error
	SendText(ctx context.Context, data []byte) error

	// Receive blocks for the next inbound frame. Any error is a disconnect.
	Receive(ctx context.Context) (Frame, error)

	// Close releases the connection; it is safe to call more than once.
	Close() error

	// Done is closed once the connection is gone.
	Done() <-chan struct{}
}

// Observer receives session lifecycle notifications for metrics and events.
// Calls are made from session goroutines and must not block.
type Observer interface {
	SessionStarted(sessionID string)
	SessionEnded(sessionID string, err error)
	StateChanged(sessionID string, from, to State)
	LineSpoken(sessionID string, line mission.DialogueLine, chunks, awakened int)
	LineSkipped(sessionID string, line mission.DialogueLine, err error)
	LineInterrupted(sessionID string, line mission.DialogueLine)
	UserTurn(sessionID string, transcript string)
	GenerationFailed(sessionID string, err *GenerationError)
	InvalidSignal(sessionID string, err *InvalidSignalError)
	AudioDropped(sessionID string)
}

// NopObserver ignores every notification.
type NopObserver struct{}

var _ Observer = NopObserver{}

func (NopObserver) SessionStarted(string) {}
func (NopObserver) SessionEnded(string, error) {}
func (NopObserver) StateChanged(string, State, State) {}
func (NopObserver) LineSpoken(string, mission.DialogueLine, int, int) {}
func (NopObserver) LineSkipped(string, mission.DialogueLine, error) {}
func (NopObserver) LineInterrupted(string, mission.DialogueLine) {}
func (NopObserver) UserTurn(string, string) {}
func (NopObserver) GenerationFailed(string, *GenerationError) {}
func (NopObserver) InvalidSignal(string, *InvalidSignalError) {}
func (NopObserver) AudioDropped(string) {}

// Observers fans every notification out to each member in order.
type Observers []Observer

var _ Observer = Observers(nil)

func (obs Observers) SessionStarted(id string) {
	for _, o := range obs {
		o.SessionStarted(id)
	}
}

func (obs Observers) SessionEnded(id string, err error) {
	for _, o := range obs {
		o.SessionEnded(id, err)
	}
}

func (obs Observers) StateChanged(id string, from, to State) {
	for _, o := range obs {
		o.StateChanged(id, from, to)
	}
}

func (obs Observers) LineSpoken(id string, line mission.DialogueLine, chunks, awakened int) {
	for _, o := range obs {
		o.LineSpoken(id, line, chunks, awakened)
	}
}

func (obs Observers) LineSkipped(id string, line mission.DialogueLine, err error) {
	for _, o := range obs {
		o.LineSkipped(id, line, err)
	}
}

func (obs Observers) LineInterrupted(id string, line mission.DialogueLine) {
	for _, o := range obs {
		o.LineInterrupted(id, line)
	}
}

func (obs Observers) UserTurn(id string, transcript string) {
	for _, o := range obs {
		o.UserTurn(id, transcript)
	}
}

func (obs Observers) GenerationFailed(id string, err *GenerationError) {
	for _, o := range obs {
		o.GenerationFailed(id, err)
	}
}

func (obs Observers) InvalidSignal(id string, err *InvalidSignalError) {
	for _, o := range obs {
		o.InvalidSignal(id, err)
	}
}

func (obs Observers) AudioDropped(id string) {
	for _, o := range obs {
		o.AudioDropped(id)
	}
}
