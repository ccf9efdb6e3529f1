// Package storetest provides a behavioural test suite that every
// [mission.Store] implementation must pass.
//
// Usage from a backend's _test.go:
//
//	func TestStore(t *testing.T) {
//	    storetest.Run(t, func(t *testing.T) mission.Store { return memory.New() })
//	}
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/radiomirchi/pkg/mission"
)

// Fixture returns a valid, ready mission with the given ID.
func Fixture(id string) *mission.Mission {
	return &mission.Mission{
		ID:             id,
		Topic:          "The moon is made of cheese",
		Summary:        "The hosts insist a lunar dairy lobby hides the truth.",
		ProofSentences: []string{"Apollo samples were basalt.", "Regolith contains no lactose."},
		Speakers: []mission.Speaker{
			{Name: "Arthur Sterling", Gender: "male", Color: "#f6c177", Description: "Veteran anchor."},
			{Name: "Luna Vale", Gender: "female", Color: "#9ccfd8", Description: "Breathless field reporter."},
		},
		InitialListeners: 1200,
		DialoguePrompt:   "Keep the cheese narrative alive.",
		Status:           mission.StatusReady,
		CreatedAt:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// Run executes the suite. newStore must return a fresh, empty store; the
// suite closes it when the test finishes.
func Run(t *testing.T, newStore func(t *testing.T) mission.Store) {
	t.Helper()

	open := func(t *testing.T) mission.Store {
		s := newStore(t)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	t.Run("GetUnknown", func(t *testing.T) {
		s := open(t)
		if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, mission.ErrNotFound) {
			t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		want := Fixture("m-roundtrip")
		if err := s.Put(ctx, want); err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, err := s.Get(ctx, want.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Topic != want.Topic || got.Summary != want.Summary || got.DialoguePrompt != want.DialoguePrompt {
			t.Errorf("text fields differ: got %+v", got)
		}
		if len(got.Speakers) != 2 || got.Speakers[1] != want.Speakers[1] {
			t.Errorf("speakers = %+v", got.Speakers)
		}
		if len(got.ProofSentences) != 2 || got.ProofSentences[0] != want.ProofSentences[0] {
			t.Errorf("proof sentences = %q", got.ProofSentences)
		}
		if got.InitialListeners != 1200 || got.Status != mission.StatusReady {
			t.Errorf("listeners/status = %d/%q", got.InitialListeners, got.Status)
		}
		if !got.CreatedAt.Equal(want.CreatedAt) {
			t.Errorf("created_at = %v, want %v", got.CreatedAt, want.CreatedAt)
		}
	})

	t.Run("PutKeepsHistory", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		m := Fixture("m-replace")
		_ = s.Put(ctx, m)
		if err := s.AppendUtterance(ctx, m.ID, mission.Utterance{Speaker: "Luna Vale", Text: "Hello.", Kind: mission.KindLine, At: time.Now()}); err != nil {
			t.Fatalf("AppendUtterance: %v", err)
		}
		m.Topic = "Birds are drones"
		if err := s.Put(ctx, m); err != nil {
			t.Fatalf("Put replace: %v", err)
		}
		got, _ := s.Get(ctx, m.ID)
		if got.Topic != "Birds are drones" {
			t.Errorf("topic = %q after replace", got.Topic)
		}
		h, _ := s.History(ctx, m.ID)
		if len(h) != 1 {
			t.Errorf("history length = %d after replace, want 1", len(h))
		}
	})

	t.Run("HistoryIsOrderedAndAppendOnly", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		m := Fixture("m-history")
		_ = s.Put(ctx, m)

		base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
		kinds := []mission.Kind{
			mission.KindLine, mission.KindUser, mission.KindUserSpokeNothing,
			mission.KindUserInterrupted, mission.KindLineUnavailable, mission.KindLine,
		}
		for i, k := range kinds {
			u := mission.Utterance{Speaker: "Arthur Sterling", Text: fmt.Sprintf("u%d", i), Kind: k, At: base}
			if err := s.AppendUtterance(ctx, m.ID, u); err != nil {
				t.Fatalf("AppendUtterance %d: %v", i, err)
			}
		}
		h, err := s.History(ctx, m.ID)
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(h) != len(kinds) {
			t.Fatalf("history length = %d, want %d", len(h), len(kinds))
		}
		for i, u := range h {
			if u.Text != fmt.Sprintf("u%d", i) || u.Kind != kinds[i] {
				t.Errorf("history[%d] = %+v, out of order", i, u)
			}
		}
	})

	t.Run("AppendUnknownMission", func(t *testing.T) {
		s := open(t)
		err := s.AppendUtterance(context.Background(), "missing", mission.Utterance{Kind: mission.KindUser, Text: "x"})
		if !errors.Is(err, mission.ErrNotFound) {
			t.Fatalf("AppendUtterance(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("SetAwakened", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		m := Fixture("m-awakened")
		_ = s.Put(ctx, m)
		if err := s.SetAwakened(ctx, m.ID, 42); err != nil {
			t.Fatalf("SetAwakened: %v", err)
		}
		got, _ := s.Get(ctx, m.ID)
		if got.AwakenedListeners != 42 {
			t.Errorf("awakened = %d, want 42", got.AwakenedListeners)
		}
		if err := s.SetAwakened(ctx, "missing", 1); !errors.Is(err, mission.ErrNotFound) {
			t.Errorf("SetAwakened(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("ConcurrentAppends", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		m := Fixture("m-concurrent")
		_ = s.Put(ctx, m)

		const writers, each = 4, 10
		var wg sync.WaitGroup
		for w := range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range each {
					u := mission.Utterance{Speaker: "Luna Vale", Text: fmt.Sprintf("w%d-%d", w, i), Kind: mission.KindLine, At: time.Now()}
					if err := s.AppendUtterance(ctx, m.ID, u); err != nil {
						t.Errorf("AppendUtterance: %v", err)
					}
				}
			}()
		}
		wg.Wait()
		h, _ := s.History(ctx, m.ID)
		if len(h) != writers*each {
			t.Errorf("history length = %d, want %d", len(h), writers*each)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		s := open(t)
		if err := s.Ping(context.Background()); err != nil {
			t.Errorf("Ping: %v", err)
		}
	})
}
