package game

import "sync"

// State is the externally observable phase of a session.
type State int

const (
	// StateGenerating is the initial phase and the phase of a parked dequeue:
	// the session waits for the generator before it can speak.
	StateGenerating State = iota

	// StateHostSpeaking means one line's audio is being relayed.
	StateHostSpeaking

	// StateWaitingForUser follows a line's dialogue_end.
	StateWaitingForUser

	// StateUserSpeaking means inbound audio is forwarded to the recognizer.
	StateUserSpeaking

	// StateClosed is terminal.
	StateClosed
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateGenerating:
		return "GENERATING"
	case StateHostSpeaking:
		return "HOST_SPEAKING"
	case StateWaitingForUser:
		return "WAITING_FOR_USER"
	case StateUserSpeaking:
		return "USER_SPEAKING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// transitions lists every allowed edge. StateClosed is reachable from every
// non-terminal state through [StateMachine.Close].
var transitions = map[State][]State{
	StateGenerating:     {StateHostSpeaking},
	StateHostSpeaking:   {StateWaitingForUser, StateUserSpeaking},
	StateWaitingForUser: {StateHostSpeaking, StateUserSpeaking, StateWaitingForUser, StateGenerating},
	StateUserSpeaking:   {StateWaitingForUser},
}

// StateMachine guards a session's [State]. It is safe for concurrent use;
// only the session's control loop transitions it, other goroutines read it.
//
// HOST_SPEAKING to USER_SPEAKING exists only for barge-in. Because both
// speaking states are values of one variable they can never hold at once.
type StateMachine struct {
	mu       sync.Mutex
	state    State
	onChange func(from, to State)
}

// NewStateMachine returns a machine in [StateGenerating]. onChange, if not
// nil, is called after every successful transition while the machine's lock
// is held, so it must not call back into the machine.
func NewStateMachine(onChange func(from, to State)) *StateMachine {
	return &StateMachine{state: StateGenerating, onChange: onChange}
}

// Current returns the current state.
func (m *StateMachine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves the machine to to. It returns *InvalidTransitionError when
// the edge is not in the table, including any edge out of StateClosed.
func (m *StateMachine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state
	if !allowed(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	m.state = to
	if m.onChange != nil {
		m.onChange(from, to)
	}
	return nil
}

// Close moves the machine to StateClosed. It reports whether this call
// performed the close.
func (m *StateMachine) Close() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateClosed {
		return false
	}
	from := m.state
	m.state = StateClosed
	if m.onChange != nil {
		m.onChange(from, StateClosed)
	}
	return true
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
