package game_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/radiomirchi/internal/game"
	"github.com/MrWong99/radiomirchi/internal/game/mock"
	"github.com/MrWong99/radiomirchi/pkg/mission"
	"github.com/MrWong99/radiomirchi/pkg/mission/memory"
	"github.com/MrWong99/radiomirchi/pkg/mission/storetest"
)

const missionID = "m1"

var speakers = []string{"Arthur Sterling", "Luna Vale"}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// batch returns n lines alternating between the fixture speakers, with texts
// "<prefix>-<i>".
func batch(prefix string, n int) []mission.DialogueLine {
	out := make([]mission.DialogueLine, n)
	for i := range out {
		out[i] = mission.DialogueLine{Speaker: speakers[i%len(speakers)], Text: fmt.Sprintf("%s-%d", prefix, i)}
	}
	return out
}

// fast returns tuning with short backoffs and a wait timeout long enough to
// never fire unless a test overrides it.
func fast() game.Config {
	return game.Config{
		WaitTimeout:          time.Minute,
		SynthesisBackoff:     time.Millisecond,
		GenerationBackoff:    time.Millisecond,
		GenerationMaxBackoff: 5 * time.Millisecond,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// harness wires a session to mocks and an in-memory store. Nil fields are
// filled in by build.
type harness struct {
	transport  *mock.Transport
	gen        *mock.Generator
	synth      *mock.Synthesizer
	recognizer game.Recognizer
	obs        *mock.Observer
	store      *memory.Store
	mission    *mission.Mission

	sess   *game.Session
	runErr chan error
}

func (h *harness) build(tuning game.Config) error {
	if h.transport == nil {
		h.transport = mock.NewTransport()
	}
	if h.gen == nil {
		h.gen = &mock.Generator{}
	}
	if h.synth == nil {
		h.synth = &mock.Synthesizer{}
	}
	if h.recognizer == nil {
		h.recognizer = &mock.Recognizer{}
	}
	if h.obs == nil {
		h.obs = &mock.Observer{}
	}
	if h.store == nil {
		h.store = memory.New()
	}
	if h.mission == nil {
		h.mission = storetest.Fixture(missionID)
	}
	if err := h.store.Put(context.Background(), h.mission); err != nil {
		return err
	}
	sess, err := game.NewSession(game.SessionConfig{
		Mission:     h.mission,
		Transport:   h.transport,
		Generator:   h.gen,
		Synthesizer: h.synth,
		Recognizer:  h.recognizer,
		Context:     mission.Bind(h.store, h.mission.ID),
		Tuning:      tuning,
		Logger:      discard,
		Observer:    h.obs,
	})
	if err != nil {
		return err
	}
	h.sess = sess
	return nil
}

// start builds h and runs its session until the test ends.
func start(t *testing.T, h *harness, tuning game.Config) *harness {
	t.Helper()
	if err := h.build(tuning); err != nil {
		t.Fatalf("build session: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.runErr = make(chan error, 1)
	go func() { h.runErr <- h.sess.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.sess.Done():
		case <-time.After(3 * time.Second):
			t.Error("session did not stop after cancel")
		}
	})
	return h
}

func (h *harness) rec() *mock.Recognizer {
	r, _ := h.recognizer.(*mock.Recognizer)
	return r
}

// status is a decoded server control message.
type status struct {
	Status            string `json:"status"`
	Speaker           string `json:"speaker"`
	AwakenedListeners *int   `json:"awakened_listeners"`
	TotalListeners    *int   `json:"total_listeners"`
}

func (h *harness) statuses(t *testing.T) []status {
	t.Helper()
	var out []status
	for _, f := range h.transport.Sent() {
		if f.Binary {
			continue
		}
		var s status
		if err := json.Unmarshal(f.Data, &s); err != nil {
			t.Fatalf("decode control frame %q: %v", f.Data, err)
		}
		out = append(out, s)
	}
	return out
}

func (h *harness) count(t *testing.T, name string) int {
	t.Helper()
	n := 0
	for _, s := range h.statuses(t) {
		if s.Status == name {
			n++
		}
	}
	return n
}

func (h *harness) binaryFrames() int {
	n := 0
	for _, f := range h.transport.Sent() {
		if f.Binary {
			n++
		}
	}
	return n
}

func (h *harness) history(t *testing.T) []mission.Utterance {
	t.Helper()
	hist, err := h.store.History(context.Background(), h.mission.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	return hist
}

func (h *harness) waitEnds(t *testing.T, n int) {
	t.Helper()
	waitFor(t, fmt.Sprintf("%d dialogue_end", n), func() bool { return h.count(t, "dialogue_end") >= n })
	waitFor(t, "WAITING_FOR_USER", func() bool { return h.sess.State() == game.StateWaitingForUser })
}

// sync pushes a signal that is invalid in the current state and waits until
// total signals have been rejected, proving every earlier frame was handled.
func (h *harness) sync(t *testing.T, invalid string, total int) {
	t.Helper()
	h.transport.PushText(invalid)
	waitFor(t, "signal rejection", func() bool { return h.obs.Snapshot().InvalidSignals >= total })
}

func (h *harness) ready() { h.transport.PushText(`{"action":"ready_for_next"}`) }

// segment is one line as the client saw it.
type segment struct {
	speaker string
	chunks  []string
	ended   bool
}

// segments splits the outbound stream at dialogue_start frames.
func (h *harness) segments(t *testing.T) []segment {
	t.Helper()
	var out []segment
	for _, f := range h.transport.Sent() {
		if f.Binary {
			if len(out) == 0 {
				t.Fatalf("audio %q before any dialogue_start", f.Data)
			}
			cur := &out[len(out)-1]
			if cur.ended {
				t.Fatalf("audio %q after dialogue_end", f.Data)
			}
			cur.chunks = append(cur.chunks, string(f.Data))
			continue
		}
		var s status
		if err := json.Unmarshal(f.Data, &s); err != nil {
			t.Fatalf("decode control frame: %v", err)
		}
		switch s.Status {
		case "dialogue_start":
			if len(out) > 0 && !out[len(out)-1].ended {
				t.Fatalf("dialogue_start for %s before previous dialogue_end", s.Speaker)
			}
			out = append(out, segment{speaker: s.Speaker})
		case "dialogue_end":
			if len(out) == 0 || out[len(out)-1].ended {
				t.Fatal("dialogue_end without dialogue_start")
			}
			out[len(out)-1].ended = true
		}
	}
	return out
}

// text returns the line a segment's chunks belong to; it fails when chunks
// of different lines are mixed.
func (sg segment) text(t *testing.T) string {
	t.Helper()
	var line string
	for i, c := range sg.chunks {
		l, _, _ := strings.Cut(c, "#")
		if i == 0 {
			line = l
		} else if l != line {
			t.Fatalf("segment mixes chunks of %q and %q", line, l)
		}
	}
	return line
}

func texts(lines []mission.DialogueLine) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text
	}
	return out
}
