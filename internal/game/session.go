package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/radiomirchi/internal/protocol"
	"github.com/MrWong99/radiomirchi/internal/resilience"
	"github.com/MrWong99/radiomirchi/pkg/mission"
	"github.com/MrWong99/radiomirchi/pkg/types"
)

// SessionConfig holds everything one session needs.
type SessionConfig struct {
	// ID is the session key. Defaults to Mission.ID.
	ID string

	// Mission supplies the listener totals. Required.
	Mission *mission.Mission

	Transport   Transport
	Generator   Generator
	Synthesizer Synthesizer
	Recognizer  Recognizer
	Context     ContextStore

	// Voices picks a voice per speaker. When nil every line uses the
	// synthesizer's default voice.
	Voices VoiceFunc

	Tuning   Config
	Logger   *slog.Logger
	Observer Observer
}

// Session drives one mission's conversation over one connection.
//
// A single control loop goroutine owns the state machine, the queue and every
// piece of turn bookkeeping. Workers (reader, relay, refill, recognizer) run
// in one errgroup under the session context and report back over channels,
// so no lock is held across a suspension point.
type Session struct {
	id          string
	total       int
	cfg         Config
	transport   Transport
	generator   Generator
	synthesizer Synthesizer
	recognizer  Recognizer
	history     ContextStore
	voices      VoiceFunc
	log         *slog.Logger
	observer    Observer

	synthBackoff resilience.Backoff
	genBackoff   resilience.Backoff

	sm       *StateMachine
	queue    *DialogueQueue
	awakened atomic.Int64

	inbound    chan Frame
	relayDone  chan relayResult
	refillDone chan refillResult
	recognized chan recognizeResult

	started atomic.Bool
	done    chan struct{}

	// Control loop state.
	g             *errgroup.Group
	current       *mission.DialogueLine
	cancelRelay   context.CancelFunc
	refilling     bool
	regenPending  bool
	parked        bool
	stalled       bool
	audio         chan []byte
	recognizing   bool
	early         *recognizeResult
	readyDeferred bool
	wait          *time.Timer
	waitC         <-chan time.Time
}

type recognizeResult struct {
	text string
	err  error
}

// NewSession validates cfg and returns a session ready to [Session.Run].
func NewSession(cfg SessionConfig) (*Session, error) {
	var errs []error
	if cfg.Mission == nil {
		errs = append(errs, errors.New("mission is required"))
	}
	if cfg.Transport == nil {
		errs = append(errs, errors.New("transport is required"))
	}
	if cfg.Generator == nil {
		errs = append(errs, errors.New("generator is required"))
	}
	if cfg.Synthesizer == nil {
		errs = append(errs, errors.New("synthesizer is required"))
	}
	if cfg.Recognizer == nil {
		errs = append(errs, errors.New("recognizer is required"))
	}
	if cfg.Context == nil {
		errs = append(errs, errors.New("context store is required"))
	}
	if err := cfg.Tuning.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("game: new session: %w", errors.Join(errs...))
	}

	id := cfg.ID
	if id == "" {
		id = cfg.Mission.ID
	}
	tuning := cfg.Tuning.withDefaults()
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	voices := cfg.Voices
	if voices == nil {
		voices = func(string) types.VoiceProfile { return types.VoiceProfile{} }
	}

	s := &Session{
		id:           id,
		total:        cfg.Mission.InitialListeners,
		cfg:          tuning,
		transport:    cfg.Transport,
		generator:    cfg.Generator,
		synthesizer:  cfg.Synthesizer,
		recognizer:   cfg.Recognizer,
		history:      cfg.Context,
		voices:       voices,
		log:          logger.With("session_id", id),
		observer:     observer,
		synthBackoff: resilience.Backoff{Initial: tuning.SynthesisBackoff, Max: 8 * tuning.SynthesisBackoff},
		genBackoff:   resilience.Backoff{Initial: tuning.GenerationBackoff, Max: tuning.GenerationMaxBackoff},
		queue:        NewDialogueQueue(),
		inbound:      make(chan Frame),
		relayDone:    make(chan relayResult, 1),
		refillDone:   make(chan refillResult),
		recognized:   make(chan recognizeResult),
		done:         make(chan struct{}),
	}
	s.awakened.Store(int64(cfg.Mission.ClampAwakened(cfg.Mission.AwakenedListeners)))
	s.sm = NewStateMachine(func(from, to State) {
		s.log.Debug("session state changed", "from", from, "to", to)
		s.observer.StateChanged(s.id, from, to)
	})
	return s, nil
}

// ID returns the session key.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State { return s.sm.Current() }

// Queued returns the number of lines waiting to be spoken.
func (s *Session) Queued() int { return s.queue.Len() }

// Awakened returns the current awakened-listener count.
func (s *Session) Awakened() int { return int(s.awakened.Load()) }

// Done is closed when Run has returned and every worker has stopped.
func (s *Session) Done() <-chan struct{} { return s.done }

// Run drives the session until ctx is cancelled or the transport is lost.
// It streams the first line without waiting for a client signal. Run returns
// nil on cancellation and an error wrapping [ErrTransportDisconnect] when the
// connection dropped. It may only be called once.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("game: session already started")
	}
	defer close(s.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	s.g = g
	g.Go(func() error { return s.readLoop(gctx) })

	s.log.Info("session started", "awakened_listeners", s.Awakened(), "total_listeners", s.total)
	s.observer.SessionStarted(s.id)

	err := s.loop(gctx)

	s.sm.Close()
	s.stopWaitTimer()
	cancel()
	_ = s.transport.Close()
	if werr := g.Wait(); err == nil {
		err = werr
	}
	s.queue.Release()

	if err != nil {
		s.log.Info("session ended", "err", err)
	} else {
		s.log.Info("session ended")
	}
	s.observer.SessionEnded(s.id, err)
	return err
}

func (s *Session) readLoop(ctx context.Context) error {
	for {
		f, err := s.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrTransportDisconnect, err)
		}
		select {
		case s.inbound <- f:
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Session) loop(ctx context.Context) error {
	s.parked = true
	s.startRefill(ctx)

	for {
		var err error
		select {
		case <-ctx.Done():
			return nil
		case f := <-s.inbound:
			err = s.handleFrame(ctx, f)
		case res := <-s.relayDone:
			err = s.onRelayDone(ctx, res)
		case res := <-s.refillDone:
			err = s.onRefill(ctx, res)
		case res := <-s.recognized:
			err = s.onRecognized(ctx, res)
		case <-s.waitC:
			s.onWaitTimeout(ctx)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// ── Inbound signals ──────────────────────────────────────────────────────────

func (s *Session) handleFrame(ctx context.Context, f Frame) error {
	if f.Binary {
		s.onAudio(f.Data)
		return nil
	}
	msg, err := protocol.DecodeClientMessage(f.Data)
	if err != nil {
		s.rejectSignal(&InvalidSignalError{State: s.sm.Current(), Err: err})
		return nil
	}
	switch msg.Action {
	case protocol.ActionStartSpeech:
		return s.onStartSpeech(ctx)
	case protocol.ActionStopSpeech:
		return s.onStopSpeech(ctx)
	case protocol.ActionReadyForNext:
		return s.onReadyForNext(ctx)
	}
	return nil
}

func (s *Session) onAudio(data []byte) {
	if s.audio == nil {
		s.log.Debug("audio frame outside user turn dropped", "bytes", len(data), "state", s.sm.Current())
		return
	}
	select {
	case s.audio <- data:
	default:
		s.log.Warn("recognizer backlog full, audio frame dropped", "bytes", len(data))
		s.observer.AudioDropped(s.id)
	}
}

func (s *Session) onStartSpeech(ctx context.Context) error {
	state := s.sm.Current()
	switch {
	case state == StateWaitingForUser && !s.recognizing:
		s.stopWaitTimer()
		return s.beginCapture(ctx)
	case state == StateHostSpeaking && s.cfg.BargeIn:
		return s.bargeIn(ctx)
	}
	s.rejectSignal(&InvalidSignalError{Action: protocol.ActionStartSpeech, State: state})
	return nil
}

func (s *Session) onStopSpeech(ctx context.Context) error {
	state := s.sm.Current()
	if state != StateUserSpeaking {
		s.rejectSignal(&InvalidSignalError{Action: protocol.ActionStopSpeech, State: state})
		return nil
	}
	close(s.audio)
	s.audio = nil
	if err := s.sm.Transition(StateWaitingForUser); err != nil {
		return err
	}
	if res := s.early; res != nil {
		s.early = nil
		return s.finishUserTurn(ctx, *res)
	}
	s.recognizing = true
	return nil
}

func (s *Session) onReadyForNext(ctx context.Context) error {
	state := s.sm.Current()
	switch state {
	case StateWaitingForUser:
		if s.recognizing {
			s.readyDeferred = true
			return nil
		}
		s.stopWaitTimer()
		return s.speakNext(ctx)
	case StateHostSpeaking, StateGenerating:
		s.log.Debug("ready_for_next ignored", "state", state)
		return nil
	}
	s.rejectSignal(&InvalidSignalError{Action: protocol.ActionReadyForNext, State: state})
	return nil
}

func (s *Session) rejectSignal(err *InvalidSignalError) {
	s.log.Warn("client signal rejected", "err", err)
	s.observer.InvalidSignal(s.id, err)
}

// ── Speaking ─────────────────────────────────────────────────────────────────

// speakNext dequeues the next line and starts relaying it, or parks the
// dequeue until a refill lands.
func (s *Session) speakNext(ctx context.Context) error {
	line, err := s.queue.DequeueNext()
	if errors.Is(err, ErrQueueEmpty) {
		return s.park(ctx)
	}
	if err := s.sm.Transition(StateHostSpeaking); err != nil {
		return err
	}
	s.maybePrefetch(ctx)

	rctx, cancel := context.WithCancel(ctx)
	s.current = &line
	s.cancelRelay = cancel
	s.g.Go(func() error {
		s.relayDone <- s.relay(ctx, rctx, line)
		return nil
	})
	return nil
}

func (s *Session) park(ctx context.Context) error {
	if s.sm.Current() != StateGenerating {
		if err := s.sm.Transition(StateGenerating); err != nil {
			return err
		}
	}
	s.parked = true
	if !s.refilling {
		s.startRefill(ctx)
	}
	s.log.Debug("dequeue parked on generation")
	return nil
}

func (s *Session) clearRelay() {
	if s.cancelRelay != nil {
		s.cancelRelay()
	}
	s.cancelRelay = nil
	s.current = nil
}

func (s *Session) onRelayDone(ctx context.Context, res relayResult) error {
	s.clearRelay()
	switch {
	case res.fatal:
		return res.err
	case res.cancelled:
		return nil
	case !res.spoken:
		s.skipLine(ctx, res)
		if err := s.sm.Transition(StateWaitingForUser); err != nil {
			return err
		}
		return s.speakNext(ctx)
	}
	return s.finishLine(ctx, res)
}

func (s *Session) skipLine(ctx context.Context, res relayResult) {
	s.log.Warn("line unavailable, skipping", "speaker", res.line.Speaker, "err", res.err)
	s.observer.LineSkipped(s.id, res.line, res.err)
	s.appendUtterance(ctx, mission.Utterance{Speaker: res.line.Speaker, Text: res.line.Text, Kind: mission.KindLineUnavailable})
}

// finishLine records a spoken line, applies its listener delta and starts
// waiting for the user.
func (s *Session) finishLine(ctx context.Context, res relayResult) error {
	if res.err != nil {
		s.log.Warn("line ended early", "speaker", res.line.Speaker, "chunks", res.chunks, "err", res.err)
	}
	s.appendUtterance(ctx, mission.Utterance{Speaker: res.line.Speaker, Text: res.line.Text, Kind: mission.KindLine})

	before := s.Awakened()
	after := max(0, min(before+res.line.AwakenedDelta, s.total))
	if after != before {
		s.awakened.Store(int64(after))
		if err := s.history.SetAwakened(ctx, after); err != nil {
			s.log.Error("failed to persist awakened listeners", "awakened_listeners", after, "err", err)
		}
		if err := s.sendStatus(ctx, protocol.Listeners(after, s.total)); err != nil {
			return err
		}
	}
	s.observer.LineSpoken(s.id, res.line, res.chunks, after)

	if err := s.sm.Transition(StateWaitingForUser); err != nil {
		return err
	}
	s.armWaitTimer()
	return nil
}

// bargeIn stops the current line and hands the turn to the user.
func (s *Session) bargeIn(ctx context.Context) error {
	line := *s.current
	s.cancelRelay()

	var res relayResult
	select {
	case res = <-s.relayDone:
	case <-ctx.Done():
		return nil
	}
	s.clearRelay()

	switch {
	case res.fatal:
		return res.err
	case res.cancelled:
		if err := s.sendStatus(ctx, protocol.Interrupted()); err != nil {
			return err
		}
		s.log.Info("line interrupted by user", "speaker", line.Speaker, "chunks", res.chunks)
		s.observer.LineInterrupted(s.id, line)
		s.appendUtterance(ctx, mission.Utterance{Speaker: line.Speaker, Text: line.Text, Kind: mission.KindUserInterrupted})
	case !res.spoken:
		s.skipLine(ctx, res)
		if err := s.sm.Transition(StateWaitingForUser); err != nil {
			return err
		}
	default:
		// The line completed before the cancellation took effect.
		if err := s.finishLine(ctx, res); err != nil {
			return err
		}
		s.stopWaitTimer()
	}
	return s.beginCapture(ctx)
}

// ── User turns ───────────────────────────────────────────────────────────────

func (s *Session) beginCapture(ctx context.Context) error {
	if err := s.sm.Transition(StateUserSpeaking); err != nil {
		return err
	}
	audio := make(chan []byte, s.cfg.RecognizerBuffer)
	s.audio = audio
	s.early = nil
	s.readyDeferred = false
	s.g.Go(func() error {
		text, err := s.recognizer.Recognize(ctx, audio)
		select {
		case s.recognized <- recognizeResult{text: text, err: err}:
		case <-ctx.Done():
		}
		return nil
	})
	s.log.Debug("user turn started")
	return nil
}

func (s *Session) onRecognized(ctx context.Context, res recognizeResult) error {
	if s.audio != nil {
		// The recognizer gave up before stop_speech; hold the result.
		s.early = &res
		return nil
	}
	if !s.recognizing {
		return nil
	}
	s.recognizing = false
	return s.finishUserTurn(ctx, res)
}

// finishUserTurn records the turn, then requests regeneration. The append
// happens strictly before the refill reads history.
func (s *Session) finishUserTurn(ctx context.Context, res recognizeResult) error {
	text := strings.TrimSpace(res.text)
	if res.err != nil {
		s.log.Warn("recognition failed, recording silence", "err", &RecognitionError{Err: res.err})
		text = ""
	}
	u := mission.Utterance{Speaker: mission.UserSpeaker, Text: text, Kind: mission.KindUser}
	if text == "" {
		u.Kind = mission.KindUserSpokeNothing
	}
	s.appendUtterance(ctx, u)
	s.log.Info("user turn recorded", "kind", u.Kind, "chars", len(text))
	s.observer.UserTurn(s.id, text)
	s.requestRegeneration(ctx)

	if s.readyDeferred {
		s.readyDeferred = false
		return s.onReadyForNext(ctx)
	}
	return nil
}

func (s *Session) armWaitTimer() {
	s.stopWaitTimer()
	s.wait = time.NewTimer(s.cfg.WaitTimeout)
	s.waitC = s.wait.C
}

func (s *Session) stopWaitTimer() {
	if s.wait != nil {
		s.wait.Stop()
	}
	s.wait = nil
	s.waitC = nil
}

func (s *Session) onWaitTimeout(ctx context.Context) {
	s.wait = nil
	s.waitC = nil
	if s.sm.Current() != StateWaitingForUser || s.recognizing {
		return
	}
	s.log.Info("user did not respond", "timeout", s.cfg.WaitTimeout)
	s.appendUtterance(ctx, mission.Utterance{Speaker: mission.UserSpeaker, Kind: mission.KindUserSpokeNothing})
	s.observer.UserTurn(s.id, "")
	s.requestRegeneration(ctx)
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func (s *Session) appendUtterance(ctx context.Context, u mission.Utterance) {
	if err := s.history.Append(ctx, u); err != nil {
		s.log.Error("failed to append to conversation history", "kind", u.Kind, "err", err)
	}
}

func (s *Session) sendStatus(ctx context.Context, msg protocol.ServerMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("game: %w", err)
	}
	if err := s.transport.SendText(ctx, b); err != nil {
		return fmt.Errorf("%w: send %s: %w", ErrTransportDisconnect, msg.Status, err)
	}
	return nil
}
