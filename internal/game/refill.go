package game

import (
	"context"
	"strings"

	"github.com/MrWong99/radiomirchi/internal/protocol"
	"github.com/MrWong99/radiomirchi/internal/resilience"
	"github.com/MrWong99/radiomirchi/pkg/mission"
)

// refillResult is either a landed batch or one failed attempt. A refill
// keeps retrying after reporting a failure, so only a batch ends it.
type refillResult struct {
	lines []mission.DialogueLine
	err   *GenerationError
}

// startRefill launches the single in-flight refill.
func (s *Session) startRefill(ctx context.Context) {
	s.refilling = true
	s.g.Go(func() error {
		s.refill(ctx)
		return nil
	})
}

// maybePrefetch starts a refill once the queue is down to the low watermark.
func (s *Session) maybePrefetch(ctx context.Context) {
	if !s.refilling && s.queue.Len() <= s.cfg.LowWatermark {
		s.startRefill(ctx)
	}
}

// requestRegeneration asks for a batch that reflects the latest history. It
// shares the prefetch slot: while a refill runs, another one is queued behind
// it.
func (s *Session) requestRegeneration(ctx context.Context) {
	if s.refilling {
		s.regenPending = true
		return
	}
	s.startRefill(ctx)
}

// refill reads the history afresh and asks for a batch on every attempt,
// retrying with capped backoff until a batch lands or ctx ends.
func (s *Session) refill(ctx context.Context) {
	for attempt := 1; ; attempt++ {
		lines, err := s.generate(ctx)
		if err == nil {
			select {
			case s.refillDone <- refillResult{lines: lines}:
			case <-ctx.Done():
			}
			return
		}
		if ctx.Err() != nil {
			return
		}

		select {
		case s.refillDone <- refillResult{err: &GenerationError{Attempt: attempt, Err: err}}:
		case <-ctx.Done():
			return
		}
		if resilience.Sleep(ctx, s.genBackoff.Delay(attempt)) != nil {
			return
		}
	}
}

func (s *Session) generate(ctx context.Context) ([]mission.DialogueLine, error) {
	history, err := s.history.History(ctx)
	if err != nil {
		return nil, err
	}
	batch, err := s.generator.GenerateBatch(ctx, mission.BatchRequest{
		History:  history,
		Awakened: s.Awakened(),
		Size:     s.cfg.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	lines := make([]mission.DialogueLine, 0, len(batch))
	for _, l := range batch {
		if strings.TrimSpace(l.Text) != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return nil, errEmptyBatch
	}
	return lines, nil
}

// onRefill handles a refill report on the control loop.
func (s *Session) onRefill(ctx context.Context, res refillResult) error {
	if res.err != nil {
		s.log.Warn("dialogue generation failed, retrying", "attempt", res.err.Attempt, "err", res.err.Err)
		s.observer.GenerationFailed(s.id, res.err)
		if s.parked && !s.stalled {
			s.stalled = true
			return s.sendStatus(ctx, protocol.GenerationStalled())
		}
		return nil
	}

	s.refilling = false
	s.queue.Enqueue(res.lines...)
	s.log.Debug("dialogue batch queued", "lines", len(res.lines), "queued", s.queue.Len())

	if s.stalled {
		s.stalled = false
		if err := s.sendStatus(ctx, protocol.GenerationResumed()); err != nil {
			return err
		}
	}

	switch {
	case s.regenPending:
		s.regenPending = false
		s.startRefill(ctx)
	case s.queue.Len() < s.cfg.HighWatermark:
		s.startRefill(ctx)
	}

	if s.parked {
		s.parked = false
		return s.speakNext(ctx)
	}
	return nil
}
