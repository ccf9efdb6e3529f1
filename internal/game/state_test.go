package game_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/radiomirchi/internal/game"
)

func TestStateMachine_InitialState(t *testing.T) {
	t.Parallel()
	sm := game.NewStateMachine(nil)
	if got := sm.Current(); got != game.StateGenerating {
		t.Errorf("initial state = %s, want GENERATING", got)
	}
}

func TestStateMachine_Transitions(t *testing.T) {
	t.Parallel()

	all := []game.State{
		game.StateGenerating, game.StateHostSpeaking, game.StateWaitingForUser,
		game.StateUserSpeaking, game.StateClosed,
	}
	allowed := map[[2]game.State]bool{
		{game.StateGenerating, game.StateHostSpeaking}:       true,
		{game.StateHostSpeaking, game.StateWaitingForUser}:   true,
		{game.StateHostSpeaking, game.StateUserSpeaking}:     true,
		{game.StateWaitingForUser, game.StateHostSpeaking}:   true,
		{game.StateWaitingForUser, game.StateUserSpeaking}:   true,
		{game.StateWaitingForUser, game.StateWaitingForUser}: true,
		{game.StateWaitingForUser, game.StateGenerating}:     true,
		{game.StateUserSpeaking, game.StateWaitingForUser}:   true,
	}

	// drive returns a machine sitting in state s.
	drive := func(s game.State) *game.StateMachine {
		sm := game.NewStateMachine(nil)
		path := map[game.State][]game.State{
			game.StateGenerating:     nil,
			game.StateHostSpeaking:   {game.StateHostSpeaking},
			game.StateWaitingForUser: {game.StateHostSpeaking, game.StateWaitingForUser},
			game.StateUserSpeaking:   {game.StateHostSpeaking, game.StateWaitingForUser, game.StateUserSpeaking},
		}
		if s == game.StateClosed {
			sm.Close()
			return sm
		}
		for _, step := range path[s] {
			if err := sm.Transition(step); err != nil {
				t.Fatalf("setup transition to %s: %v", step, err)
			}
		}
		return sm
	}

	for _, from := range all {
		for _, to := range all {
			if to == game.StateClosed {
				continue
			}
			sm := drive(from)
			err := sm.Transition(to)
			want := allowed[[2]game.State{from, to}]
			if want && err != nil {
				t.Errorf("%s -> %s: unexpected error %v", from, to, err)
			}
			if !want {
				var ite *game.InvalidTransitionError
				if !errors.As(err, &ite) {
					t.Errorf("%s -> %s: error = %v, want *InvalidTransitionError", from, to, err)
					continue
				}
				if ite.From != from || ite.To != to {
					t.Errorf("error fields = %s -> %s", ite.From, ite.To)
				}
				if sm.Current() != from {
					t.Errorf("%s -> %s: state changed to %s on rejected transition", from, to, sm.Current())
				}
			}
		}
	}
}

func TestStateMachine_Close(t *testing.T) {
	t.Parallel()

	var changes [][2]game.State
	sm := game.NewStateMachine(func(from, to game.State) {
		changes = append(changes, [2]game.State{from, to})
	})
	_ = sm.Transition(game.StateHostSpeaking)

	if !sm.Close() {
		t.Fatal("first Close() = false, want true")
	}
	if sm.Close() {
		t.Error("second Close() = true, want false")
	}
	if sm.Current() != game.StateClosed {
		t.Errorf("state = %s, want CLOSED", sm.Current())
	}
	if err := sm.Transition(game.StateWaitingForUser); err == nil {
		t.Error("transition out of CLOSED succeeded")
	}

	want := [][2]game.State{
		{game.StateGenerating, game.StateHostSpeaking},
		{game.StateHostSpeaking, game.StateClosed},
	}
	if len(changes) != len(want) {
		t.Fatalf("onChange calls = %v, want %v", changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("change[%d] = %v, want %v", i, changes[i], want[i])
		}
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	for s, want := range map[game.State]string{
		game.StateGenerating:     "GENERATING",
		game.StateHostSpeaking:   "HOST_SPEAKING",
		game.StateWaitingForUser: "WAITING_FOR_USER",
		game.StateUserSpeaking:   "USER_SPEAKING",
		game.StateClosed:         "CLOSED",
		game.State(99):           "UNKNOWN",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
