package mission_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/radiomirchi/pkg/mission"
	"github.com/MrWong99/radiomirchi/pkg/mission/memory"
	"github.com/MrWong99/radiomirchi/pkg/mission/storetest"
)

func TestMission_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(m *mission.Mission)
		wantErr string
	}{
		{name: "valid", mutate: func(*mission.Mission) {}},
		{name: "empty id", mutate: func(m *mission.Mission) { m.ID = " " }, wantErr: "id must not be empty"},
		{name: "no speakers", mutate: func(m *mission.Mission) { m.Speakers = nil }, wantErr: "need 1 to 4"},
		{
			name: "too many speakers",
			mutate: func(m *mission.Mission) {
				for _, n := range []string{"A", "B", "C"} {
					m.Speakers = append(m.Speakers, mission.Speaker{Name: n})
				}
			},
			wantErr: "got 5",
		},
		{
			name:    "duplicate speaker ignores case",
			mutate:  func(m *mission.Mission) { m.Speakers[1].Name = "arthur sterling" },
			wantErr: "duplicate name",
		},
		{name: "blank speaker name", mutate: func(m *mission.Mission) { m.Speakers[0].Name = "" }, wantErr: "name must not be empty"},
		{name: "zero listeners", mutate: func(m *mission.Mission) { m.InitialListeners = 0 }, wantErr: "initial_listeners"},
		{name: "awakened above total", mutate: func(m *mission.Mission) { m.AwakenedListeners = 5000 }, wantErr: "awakened_listeners"},
		{name: "bad status", mutate: func(m *mission.Mission) { m.Status = "archived" }, wantErr: "unknown status"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m := storetest.Fixture("m1")
			tc.mutate(m)
			err := m.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestMission_Validate_ReportsAllProblems(t *testing.T) {
	t.Parallel()
	m := &mission.Mission{}
	err := m.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"id must not be empty", "speakers", "initial_listeners"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestMission_Speaker(t *testing.T) {
	t.Parallel()
	m := storetest.Fixture("m1")

	s, ok := m.Speaker("  luna VALE ")
	if !ok || s.Name != "Luna Vale" {
		t.Errorf("Speaker(luna VALE) = %+v, %v", s, ok)
	}
	if _, ok := m.Speaker("Nobody"); ok {
		t.Error("Speaker(Nobody) found a host")
	}
}

func TestMission_ClampAwakened(t *testing.T) {
	t.Parallel()
	m := storetest.Fixture("m1")
	for in, want := range map[int]int{-5: 0, 0: 0, 600: 600, 1200: 1200, 9999: 1200} {
		if got := m.ClampAwakened(in); got != want {
			t.Errorf("ClampAwakened(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestUtterance_Render(t *testing.T) {
	t.Parallel()

	tests := []struct {
		u    mission.Utterance
		want string
	}{
		{mission.Utterance{Speaker: "Luna Vale", Text: "Cheese!", Kind: mission.KindLine}, "Luna Vale: Cheese!"},
		{mission.Utterance{Speaker: mission.UserSpeaker, Text: "That is basalt.", Kind: mission.KindUser}, "User: That is basalt."},
		{mission.Utterance{Speaker: mission.UserSpeaker, Kind: mission.KindUserSpokeNothing}, "User: (user spoke nothing)"},
		{mission.Utterance{Speaker: "Arthur Sterling", Text: "As I was", Kind: mission.KindUserInterrupted}, "Arthur Sterling: As I was (user interrupted)"},
		{mission.Utterance{Speaker: "Arthur Sterling", Text: "lost", Kind: mission.KindLineUnavailable}, "Arthur Sterling: (line unavailable)"},
	}
	for _, tc := range tests {
		if got := tc.u.Render(); got != tc.want {
			t.Errorf("Render(%s) = %q, want %q", tc.u.Kind, got, tc.want)
		}
	}
}

func TestUtterance_IsUserTurn(t *testing.T) {
	t.Parallel()
	for kind, want := range map[mission.Kind]bool{
		mission.KindUser:             true,
		mission.KindUserSpokeNothing: true,
		mission.KindLine:             false,
		mission.KindUserInterrupted:  false,
		mission.KindLineUnavailable:  false,
	} {
		if got := (mission.Utterance{Kind: kind}).IsUserTurn(); got != want {
			t.Errorf("IsUserTurn(%s) = %v, want %v", kind, got, want)
		}
	}
}

// ── Context ──────────────────────────────────────────────────────────────────

func TestContext_AppendStampsTime(t *testing.T) {
	t.Parallel()

	store := memory.New()
	ctx := context.Background()
	_ = store.Put(ctx, storetest.Fixture("m1"))

	mc := mission.Bind(store, "m1")
	if mc.ID() != "m1" {
		t.Errorf("ID() = %q", mc.ID())
	}

	fixed := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	if err := mc.Append(ctx, mission.Utterance{Speaker: "Luna Vale", Text: "one", Kind: mission.KindLine, At: fixed}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	before := time.Now().Add(-time.Second)
	if err := mc.Append(ctx, mission.Utterance{Speaker: mission.UserSpeaker, Text: "two", Kind: mission.KindUser}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	h, err := mc.History(ctx)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(h) != 2 {
		t.Fatalf("history length = %d, want 2", len(h))
	}
	if !h[0].At.Equal(fixed) {
		t.Errorf("explicit timestamp overwritten: %v", h[0].At)
	}
	if h[1].At.Before(before) {
		t.Errorf("zero timestamp not stamped: %v", h[1].At)
	}
}

func TestContext_WrapsStoreErrors(t *testing.T) {
	t.Parallel()

	mc := mission.Bind(memory.New(), "missing")
	ctx := context.Background()

	if err := mc.Append(ctx, mission.Utterance{Kind: mission.KindUser}); !errors.Is(err, mission.ErrNotFound) {
		t.Errorf("Append error = %v, want ErrNotFound", err)
	}
	if _, err := mc.History(ctx); !errors.Is(err, mission.ErrNotFound) {
		t.Errorf("History error = %v, want ErrNotFound", err)
	}
	if err := mc.SetAwakened(ctx, 3); !errors.Is(err, mission.ErrNotFound) {
		t.Errorf("SetAwakened error = %v, want ErrNotFound", err)
	}
}
