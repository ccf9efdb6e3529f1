// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify that the caller starts sessions with the expected
// StreamConfig. Use Session to script the final transcripts a push-to-talk
// turn produces and to inspect which audio chunks were delivered.
//
// Example:
//
//	sess := &mock.Session{
//	    Transcripts: []types.Transcript{{Text: "the sky is green", IsFinal: true}},
//	}
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.StartStream(ctx, cfg)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/radiomirchi/pkg/provider/stt"
	"github.com/MrWong99/radiomirchi/pkg/types"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	// Ctx is the context passed to StartStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to StartStream.
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by StartStream. If nil, StartStream
	// returns a new Session that produces no transcripts.
	Session stt.SessionHandle

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall
}

// StartStream records the call and returns Session, StartStreamErr.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return &Session{}, nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// SendAudioCall records a single invocation of Session.SendAudio.
type SendAudioCall struct {
	// Chunk is a copy of the audio bytes that were passed to SendAudio.
	Chunk []byte
}

// Session is a mock implementation of stt.SessionHandle.
//
// Transcripts are emitted on Finals when Finish is called, after which the
// channel is closed. A zero Session is ready to use.
type Session struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Transcripts are delivered on Finals during Finish.
	Transcripts []types.Transcript

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// FinishErr, if non-nil, is returned by Finish after the transcripts are
	// delivered.
	FinishErr error

	// --- Call records ---

	// SendAudioCalls records every call to SendAudio.
	SendAudioCalls []SendAudioCall

	// FinishCallCount is the number of times Finish was called.
	FinishCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	finals chan types.Transcript
	closed bool
}

func (s *Session) ch() chan types.Transcript {
	if s.finals == nil {
		s.finals = make(chan types.Transcript, len(s.Transcripts)+1)
	}
	return s.finals
}

// SendAudio records the chunk and returns SendAudioErr, or
// stt.ErrSessionClosed after Finish or Close.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrSessionClosed
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendAudioCalls = append(s.SendAudioCalls, SendAudioCall{Chunk: cp})
	return s.SendAudioErr
}

// Finals returns the transcript channel.
func (s *Session) Finals() <-chan types.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch()
}

// Finish delivers Transcripts, closes Finals and returns FinishErr.
func (s *Session) Finish(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FinishCallCount++
	if s.closed {
		return nil
	}
	ch := s.ch()
	for _, t := range s.Transcripts {
		ch <- t
	}
	close(ch)
	s.closed = true
	return s.FinishErr
}

// Close closes Finals without delivering transcripts.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	if !s.closed {
		close(s.ch())
		s.closed = true
	}
	return nil
}

// AudioChunks returns a copy of every chunk passed to SendAudio. Thread-safe.
func (s *Session) AudioChunks() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, 0, len(s.SendAudioCalls))
	for _, c := range s.SendAudioCalls {
		out = append(out, c.Chunk)
	}
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendAudioCalls = nil
	s.FinishCallCount = 0
	s.CloseCallCount = 0
}

// Ensure Session implements stt.SessionHandle at compile time.
var _ stt.SessionHandle = (*Session)(nil)
