// Package transport adapts client WebSocket connections to [game.Transport].
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/radiomirchi/internal/game"
	"github.com/MrWong99/radiomirchi/internal/protocol"
)

// Default limits for accepted connections.
const (
	DefaultReadLimit    = 1 << 20
	DefaultWriteTimeout = 10 * time.Second
)

// Options configures [Accept].
type Options struct {
	// OriginPatterns lists host patterns allowed to connect cross-origin.
	OriginPatterns []string

	// InsecureSkipVerify disables the origin check entirely.
	InsecureSkipVerify bool

	// ReadLimit caps the size of one inbound message. Defaults to
	// DefaultReadLimit.
	ReadLimit int64

	// WriteTimeout bounds a single outbound write. Defaults to
	// DefaultWriteTimeout; negative disables it.
	WriteTimeout time.Duration
}

// Conn is one accepted client connection. It is safe for concurrent use,
// except that Receive must only be called from one goroutine.
type Conn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

var _ game.Transport = (*Conn)(nil)

// Accept upgrades the HTTP request to a WebSocket connection.
func Accept(w http.ResponseWriter, r *http.Request, opts Options) (*Conn, error) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     opts.OriginPatterns,
		InsecureSkipVerify: opts.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: accept: %w", err)
	}
	return newConn(conn, opts), nil
}

func newConn(conn *websocket.Conn, opts Options) *Conn {
	limit := opts.ReadLimit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	conn.SetReadLimit(limit)

	timeout := opts.WriteTimeout
	switch {
	case timeout == 0:
		timeout = DefaultWriteTimeout
	case timeout < 0:
		timeout = 0
	}
	return &Conn{conn: conn, writeTimeout: timeout, done: make(chan struct{})}
}

// SendBinary implements [game.Transport].
func (c *Conn) SendBinary(ctx context.Context, data []byte) error {
	return c.write(ctx, websocket.MessageBinary, data)
}

// SendText implements [game.Transport].
func (c *Conn) SendText(ctx context.Context, data []byte) error {
	return c.write(ctx, websocket.MessageText, data)
}

// write sends one message. A ctx that is already done fails the write
// without touching the connection. Once a write has started it runs to
// completion or to the write timeout: the websocket library tears the
// connection down when a write is abandoned mid-frame, so cancelling ctx
// does not abort it.
func (c *Conn) write(ctx context.Context, typ websocket.MessageType, data []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	wctx := context.WithoutCancel(ctx)
	if c.writeTimeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(wctx, c.writeTimeout)
		defer cancel()
	}
	if err := c.conn.Write(wctx, typ, data); err != nil {
		c.markDone()
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

// Receive implements [game.Transport]. Any error, including a normal close
// by the client, marks the connection done.
func (c *Conn) Receive(ctx context.Context) (game.Frame, error) {
	typ, data, err := c.conn.Read(ctx)
	if err != nil {
		c.markDone()
		if status := websocket.CloseStatus(err); status != -1 {
			return game.Frame{}, fmt.Errorf("transport: client closed (%s): %w", status, err)
		}
		return game.Frame{}, fmt.Errorf("transport: read: %w", err)
	}
	return game.Frame{Binary: typ == websocket.MessageBinary, Data: data}, nil
}

// Close implements [game.Transport]. It performs a normal close handshake
// and is safe to call more than once.
func (c *Conn) Close() error {
	return c.closeWith(websocket.StatusNormalClosure, "session closed")
}

// Reject sends an error message with code and closes the connection with a
// policy-violation status. It is used before a session exists.
func (c *Conn) Reject(ctx context.Context, code string) error {
	b, err := protocol.Error(code).Encode()
	if err != nil {
		return fmt.Errorf("transport: reject: %w", err)
	}
	werr := c.write(ctx, websocket.MessageText, b)
	cerr := c.closeWith(websocket.StatusPolicyViolation, code)
	return errors.Join(werr, cerr)
}

// Done implements [game.Transport].
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) closeWith(status websocket.StatusCode, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		defer close(c.done)
		if cerr := c.conn.Close(status, reason); cerr != nil && !isClosed(cerr) {
			err = fmt.Errorf("transport: close: %w", cerr)
		}
	})
	return err
}

// markDone records that the connection is gone without a handshake.
func (c *Conn) markDone() {
	c.closeOnce.Do(func() {
		_ = c.conn.CloseNow()
		close(c.done)
	})
}

func isClosed(err error) bool {
	return websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed)
}
