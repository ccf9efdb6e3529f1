package tts

import (
	"context"
	"sync"
)

// ChanStream is a channel-backed [Stream] for provider implementations. The
// producing goroutine calls [ChanStream.Send] for each chunk and
// [ChanStream.Finish] exactly once when it is done.
type ChanStream struct {
	ch   chan []byte
	err  error
	once sync.Once
}

// Compile-time interface assertion.
var _ Stream = (*ChanStream)(nil)

// NewChanStream returns a stream whose channel buffers up to buf chunks.
func NewChanStream(buf int) *ChanStream {
	if buf < 0 {
		buf = 0
	}
	return &ChanStream{ch: make(chan []byte, buf)}
}

// Send delivers chunk to the consumer. It returns false if ctx was cancelled
// before the chunk could be queued. Empty chunks are dropped.
func (s *ChanStream) Send(ctx context.Context, chunk []byte) bool {
	if len(chunk) == 0 {
		return true
	}
	select {
	case s.ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// Finish records err as the terminal error and closes the chunk channel.
// Only the first call has any effect.
func (s *ChanStream) Finish(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.ch)
	})
}

// Chunks implements [Stream].
func (s *ChanStream) Chunks() <-chan []byte { return s.ch }

// Err implements [Stream]. The close of the chunk channel orders the write of
// err before any read made after Chunks is drained.
func (s *ChanStream) Err() error { return s.err }
