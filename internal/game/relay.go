package game

import (
	"context"
	"fmt"

	"github.com/MrWong99/radiomirchi/internal/protocol"
	"github.com/MrWong99/radiomirchi/internal/resilience"
	"github.com/MrWong99/radiomirchi/pkg/mission"
	"github.com/MrWong99/radiomirchi/pkg/provider/tts"
)

// relayResult reports how one line's relay ended.
type relayResult struct {
	line     mission.DialogueLine
	chunks   int
	attempts int

	// spoken means dialogue_end was sent for the line.
	spoken bool

	// cancelled means the relay context ended first (barge-in or teardown).
	cancelled bool

	// fatal means the transport failed; err wraps ErrTransportDisconnect.
	fatal bool

	err error
}

// relay streams one line to the client: dialogue_start, every chunk in
// synthesizer order, then exactly one dialogue_end. A synthesis failure before
// any audio was sent is retried; once audio has reached the client the line is
// ended early instead, since a retry would repeat it.
//
// lineCtx ends the line (barge-in); it stops synthesis and is checked between
// chunks. Frames are written with the session ctx so a barge-in never cuts a
// frame in half.
func (s *Session) relay(ctx, lineCtx context.Context, line mission.DialogueLine) relayResult {
	res := relayResult{line: line}
	voice := s.voices(line.Speaker)

	var lastErr error
	for attempt := 1; attempt <= 1+s.cfg.SynthesisRetries; attempt++ {
		res.attempts = attempt
		if attempt > 1 {
			if err := resilience.Sleep(lineCtx, s.synthBackoff.Delay(attempt-1)); err != nil {
				res.cancelled = true
				return res
			}
		}

		var streamErr, sendErr error
		stream, err := s.synthesizer.Synthesize(lineCtx, line.Text, voice)
		if err != nil {
			streamErr = err
		} else {
			streamErr, sendErr = s.pump(ctx, lineCtx, stream, line.Speaker, &res)
		}

		switch {
		case lineCtx.Err() != nil:
			res.cancelled = true
			return res
		case sendErr != nil:
			res.fatal = true
			res.err = sendErr
			return res
		case streamErr == nil || res.chunks > 0:
			if streamErr != nil {
				res.err = &SynthesisError{Speaker: line.Speaker, Attempts: attempt, Err: streamErr}
			}
			return s.endLine(ctx, res)
		}

		lastErr = streamErr
		s.log.Debug("synthesis attempt failed", "speaker", line.Speaker, "attempt", attempt, "err", streamErr)
	}

	res.err = &SynthesisError{Speaker: line.Speaker, Attempts: res.attempts, Err: lastErr}
	return res
}

// pump forwards one stream's chunks in order. It returns the stream's own
// error and, separately, any transport failure.
func (s *Session) pump(ctx, lineCtx context.Context, stream tts.Stream, speaker string, res *relayResult) (streamErr, sendErr error) {
	chunks := stream.Chunks()
	for {
		select {
		case <-lineCtx.Done():
			return lineCtx.Err(), nil
		case chunk, ok := <-chunks:
			if !ok {
				return stream.Err(), nil
			}
			if len(chunk) == 0 {
				continue
			}
			if err := lineCtx.Err(); err != nil {
				return err, nil
			}
			if res.chunks == 0 {
				if err := s.sendStatus(ctx, protocol.DialogueStart(speaker)); err != nil {
					return nil, err
				}
			}
			if err := s.transport.SendBinary(ctx, chunk); err != nil {
				return nil, fmt.Errorf("%w: send audio: %w", ErrTransportDisconnect, err)
			}
			res.chunks++
		}
	}
}

func (s *Session) endLine(ctx context.Context, res relayResult) relayResult {
	if res.chunks == 0 {
		if err := s.sendStatus(ctx, protocol.DialogueStart(res.line.Speaker)); err != nil {
			return s.sendFailed(ctx, res, err)
		}
	}
	if err := s.sendStatus(ctx, protocol.DialogueEnd()); err != nil {
		return s.sendFailed(ctx, res, err)
	}
	res.spoken = true
	return res
}

func (s *Session) sendFailed(ctx context.Context, res relayResult, err error) relayResult {
	if ctx.Err() != nil {
		res.cancelled = true
		return res
	}
	res.fatal = true
	res.err = err
	return res
}
