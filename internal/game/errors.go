package game

import (
	"errors"
	"fmt"

	"github.com/MrWong99/radiomirchi/internal/protocol"
)

var (
	// ErrDuplicateSession is returned by [Registry.Register] when a session
	// for the same ID is already active.
	ErrDuplicateSession = errors.New("game: session already active")

	// ErrRegistryClosed is returned by [Registry.Register] once
	// [Registry.CloseAll] has run.
	ErrRegistryClosed = errors.New("game: registry closed")

	// ErrQueueEmpty is returned by [DialogueQueue.DequeueNext] on an empty
	// queue. The control loop parks instead of surfacing it.
	ErrQueueEmpty = errors.New("game: dialogue queue empty")

	// ErrTransportDisconnect reports that the client connection was lost.
	// It is terminal for the session.
	ErrTransportDisconnect = errors.New("game: transport disconnected")

	// errEmptyBatch is the cause recorded when the generator returns no lines.
	errEmptyBatch = errors.New("generator returned an empty batch")
)

// GenerationError wraps a failed dialogue batch request. Generation is
// retried until it succeeds or the session ends.
type GenerationError struct {
	Attempt int
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("game: generation attempt %d: %v", e.Attempt, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// SynthesisError wraps a failed synthesis of one line.
type SynthesisError struct {
	Speaker  string
	Attempts int
	Err      error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("game: synthesis for %q failed after %d attempt(s): %v", e.Speaker, e.Attempts, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// RecognitionError wraps a failed recognition of one user turn.
type RecognitionError struct {
	Err error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("game: recognition: %v", e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// InvalidSignalError describes a client control message that is not valid in
// the session's current state, or that could not be decoded. It is logged and
// the message ignored.
type InvalidSignalError struct {
	Action protocol.Action
	State  State
	Err    error
}

func (e *InvalidSignalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("game: invalid signal in %s: %v", e.State, e.Err)
	}
	return fmt.Sprintf("game: %s not accepted in %s", e.Action, e.State)
}

func (e *InvalidSignalError) Unwrap() error { return e.Err }

// InvalidTransitionError is returned by [StateMachine.Transition] for an edge
// the transition table does not allow.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("game: invalid transition %s -> %s", e.From, e.To)
}
