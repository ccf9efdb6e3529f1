// Package mock provides test doubles for the collaborators of a game session:
// the client transport, the dialogue generator, the speech synthesizer, the
// speech recognizer and the session observer.
//
// All doubles are safe for concurrent use and record their calls so tests can
// assert on ordering.
package mock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/radiomirchi/internal/game"
	"github.com/MrWong99/radiomirchi/pkg/mission"
	"github.com/MrWong99/radiomirchi/pkg/provider/tts"
	"github.com/MrWong99/radiomirchi/pkg/types"
)

// ErrClosed is returned by Transport methods after Close or Disconnect.
var ErrClosed = errors.New("mock: transport closed")

// ── Transport ────────────────────────────────────────────────────────────────

// Sent is one outbound frame recorded by Transport.
type Sent struct {
	Binary bool
	Data   []byte
}

// Transport is a mock implementation of game.Transport. Tests inject client
// frames with Push and inspect outbound frames with Sent.
type Transport struct {
	mu             sync.Mutex
	sent           []Sent
	closed         bool
	closeCalls     int
	sentAfterClose int

	// SendErr, if non-nil, is returned by every send without recording it.
	SendErr error

	// BinaryGate, if non-nil, holds every SendBinary until a value is
	// received from it. A ctx cancelled while a send is held drops the
	// connection, as a real websocket does for an abandoned write.
	BinaryGate chan struct{}

	inbound   chan game.Frame
	done      chan struct{}
	closeOnce sync.Once
}

// NewTransport returns an open Transport.
func NewTransport() *Transport {
	return &Transport{
		inbound: make(chan game.Frame),
		done:    make(chan struct{}),
	}
}

// Push delivers f to the next Receive. It returns false if the transport was
// closed first.
func (t *Transport) Push(f game.Frame) bool {
	select {
	case t.inbound <- f:
		return true
	case <-t.done:
		return false
	}
}

// PushText delivers a text frame.
func (t *Transport) PushText(s string) bool {
	return t.Push(game.Frame{Data: []byte(s)})
}

// PushAudio delivers a binary frame.
func (t *Transport) PushAudio(b []byte) bool {
	return t.Push(game.Frame{Binary: true, Data: b})
}

// Disconnect simulates the client going away.
func (t *Transport) Disconnect() { t.shutdown() }

// Receive implements game.Transport.
func (t *Transport) Receive(ctx context.Context) (game.Frame, error) {
	select {
	case f := <-t.inbound:
		return f, nil
	case <-t.done:
		return game.Frame{}, ErrClosed
	case <-ctx.Done():
		return game.Frame{}, ctx.Err()
	}
}

// SendBinary implements game.Transport.
func (t *Transport) SendBinary(ctx context.Context, data []byte) error {
	if t.BinaryGate != nil {
		select {
		case <-t.BinaryGate:
		case <-ctx.Done():
			t.shutdown()
			return fmt.Errorf("mock: write abandoned: %w", ctx.Err())
		case <-t.done:
			return ErrClosed
		}
	}
	return t.send(Sent{Binary: true, Data: append([]byte(nil), data...)})
}

// SendText implements game.Transport.
func (t *Transport) SendText(_ context.Context, data []byte) error {
	return t.send(Sent{Data: append([]byte(nil), data...)})
}

func (t *Transport) send(s Sent) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		t.sentAfterClose++
		return ErrClosed
	}
	if t.SendErr != nil {
		return t.SendErr
	}
	t.sent = append(t.sent, s)
	return nil
}

// Close implements game.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closeCalls++
	t.mu.Unlock()
	t.shutdown()
	return nil
}

func (t *Transport) shutdown() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.closeOnce.Do(func() { close(t.done) })
}

// Done implements game.Transport.
func (t *Transport) Done() <-chan struct{} { return t.done }

// Sent returns a copy of every recorded outbound frame in order.
func (t *Transport) Sent() []Sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Sent, len(t.sent))
	copy(out, t.sent)
	return out
}

// CloseCalls returns how often Close was called.
func (t *Transport) CloseCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeCalls
}

// SentAfterClose returns how many sends were attempted on the closed transport.
func (t *Transport) SentAfterClose() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sentAfterClose
}

var _ game.Transport = (*Transport)(nil)

// ── Generator ────────────────────────────────────────────────────────────────

// GenerateCall records a single invocation of GenerateBatch.
type GenerateCall struct {
	Ctx      context.Context
	History  []mission.Utterance
	Awakened int
	Size     int
}

// Generator is a mock implementation of game.Generator.
//
// Call n returns Errs[n] when that entry exists and is non-nil; otherwise it
// serves the next unserved entry of Batches. Once Batches are exhausted,
// GenerateBatch blocks until its context is cancelled.
type Generator struct {
	mu sync.Mutex

	Batches [][]mission.DialogueLine
	Errs    []error

	calls  []GenerateCall
	served int
}

// GenerateBatch implements game.Generator.
func (g *Generator) GenerateBatch(ctx context.Context, req mission.BatchRequest) ([]mission.DialogueLine, error) {
	g.mu.Lock()
	n := len(g.calls)
	g.calls = append(g.calls, GenerateCall{
		Ctx:      ctx,
		History:  append([]mission.Utterance(nil), req.History...),
		Awakened: req.Awakened,
		Size:     req.Size,
	})
	if n < len(g.Errs) && g.Errs[n] != nil {
		err := g.Errs[n]
		g.mu.Unlock()
		return nil, err
	}
	if g.served < len(g.Batches) {
		batch := g.Batches[g.served]
		g.served++
		g.mu.Unlock()
		return batch, nil
	}
	g.mu.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}

// Calls returns a copy of the recorded calls.
func (g *Generator) Calls() []GenerateCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]GenerateCall, len(g.calls))
	copy(out, g.calls)
	return out
}

// Reset clears the recorded calls and the served counter.
func (g *Generator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = nil
	g.served = 0
}

var _ game.Generator = (*Generator)(nil)

// ── Synthesizer ──────────────────────────────────────────────────────────────

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	Ctx   context.Context
	Text  string
	Voice types.VoiceProfile
}

// Synthesizer is a mock implementation of game.Synthesizer. Every stream
// emits ChunksPerLine chunks whose payload is Chunk(text, i).
type Synthesizer struct {
	mu sync.Mutex

	// ChunksPerLine defaults to 3.
	ChunksPerLine int

	// Errs fails call n with Errs[n] when that entry is non-nil.
	Errs []error

	// FailAfter, when positive, ends every stream for a text listed in
	// FailTexts with StreamErr after that many chunks.
	FailAfter int
	FailTexts map[string]bool
	StreamErr error

	// Gate, if non-nil, must yield a value before each chunk is emitted.
	Gate chan struct{}

	calls []SynthesizeCall
}

// Chunk returns the payload of chunk i of text.
func Chunk(text string, i int) []byte {
	return fmt.Appendf(nil, "%s#%d", text, i)
}

// Synthesize implements game.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (tts.Stream, error) {
	s.mu.Lock()
	n := len(s.calls)
	s.calls = append(s.calls, SynthesizeCall{Ctx: ctx, Text: text, Voice: voice})
	if n < len(s.Errs) && s.Errs[n] != nil {
		err := s.Errs[n]
		s.mu.Unlock()
		return nil, err
	}
	count := s.ChunksPerLine
	if count <= 0 {
		count = 3
	}
	failAfter := -1
	if s.FailAfter > 0 && s.FailTexts[text] {
		failAfter = s.FailAfter
	}
	streamErr := s.StreamErr
	gate := s.Gate
	s.mu.Unlock()

	stream := tts.NewChanStream(0)
	go func() {
		for i := range count {
			if i == failAfter {
				stream.Finish(streamErr)
				return
			}
			if gate != nil {
				select {
				case <-gate:
				case <-ctx.Done():
					stream.Finish(ctx.Err())
					return
				}
			}
			if !stream.Send(ctx, Chunk(text, i)) {
				stream.Finish(ctx.Err())
				return
			}
		}
		stream.Finish(nil)
	}()
	return stream, nil
}

// Calls returns a copy of the recorded calls.
func (s *Synthesizer) Calls() []SynthesizeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SynthesizeCall, len(s.calls))
	copy(out, s.calls)
	return out
}

var _ game.Synthesizer = (*Synthesizer)(nil)

// ── Recognizer ───────────────────────────────────────────────────────────────

// Recognizer is a mock implementation of game.Recognizer. It drains audio
// until it is closed and then returns Transcript, Err.
type Recognizer struct {
	mu sync.Mutex

	Transcript string
	Err        error

	frames [][]byte
	calls  int
}

// Recognize implements game.Recognizer.
func (r *Recognizer) Recognize(ctx context.Context, audio <-chan []byte) (string, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	for {
		select {
		case b, ok := <-audio:
			if !ok {
				r.mu.Lock()
				defer r.mu.Unlock()
				return r.Transcript, r.Err
			}
			r.mu.Lock()
			r.frames = append(r.frames, b)
			r.mu.Unlock()
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Frames returns the audio frames received so far.
func (r *Recognizer) Frames() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.frames))
	copy(out, r.frames)
	return out
}

// CallCount returns how often Recognize was called.
func (r *Recognizer) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

var _ game.Recognizer = (*Recognizer)(nil)

// ── Observer ─────────────────────────────────────────────────────────────────

// Transition is one recorded state change.
type Transition struct {
	From, To game.State
}

// Record is everything an Observer has seen.
type Record struct {
	Started            int
	Ended              int
	EndErr             error
	Transitions        []Transition
	Spoken             []mission.DialogueLine
	Skipped            []mission.DialogueLine
	Interrupted        []mission.DialogueLine
	UserTurns          []string
	GenerationFailures int
	InvalidSignals     int
	DroppedAudio       int
}

// Observer records every notification. The zero value is ready to use.
type Observer struct {
	mu  sync.Mutex
	rec Record
}

func (o *Observer) SessionStarted(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rec.Started++
}

func (o *Observer) SessionEnded(_ string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rec.Ended++
	o.rec.EndErr = err
}

func (o *Observer) StateChanged(_ string, from, to game.State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rec.Transitions = append(o.rec.Transitions, Transition{From: from, To: to})
}

func (o *Observer) LineSpoken(_ string, line mission.DialogueLine, _, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rec.Spoken = append(o.rec.Spoken, line)
}

func (o *Observer) LineSkipped(_ string, line mission.DialogueLine, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rec.Skipped = append(o.rec.Skipped, line)
}

func (o *Observer) LineInterrupted(_ string, line mission.DialogueLine) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rec.Interrupted = append(o.rec.Interrupted, line)
}

func (o *Observer) UserTurn(_ string, transcript string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rec.UserTurns = append(o.rec.UserTurns, transcript)
}

func (o *Observer) GenerationFailed(string, *game.GenerationError) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rec.GenerationFailures++
}

func (o *Observer) InvalidSignal(string, *game.InvalidSignalError) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rec.InvalidSignals++
}

func (o *Observer) AudioDropped(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rec.DroppedAudio++
}

// Snapshot returns a deep copy of the record.
func (o *Observer) Snapshot() Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	r := o.rec
	r.Transitions = append([]Transition(nil), r.Transitions...)
	r.Spoken = append([]mission.DialogueLine(nil), r.Spoken...)
	r.Skipped = append([]mission.DialogueLine(nil), r.Skipped...)
	r.Interrupted = append([]mission.DialogueLine(nil), r.Interrupted...)
	r.UserTurns = append([]string(nil), r.UserTurns...)
	return r
}

var _ game.Observer = (*Observer)(nil)
