package jsonrpc2

import (
	"context"
	"io"
	"sync"
)

// Conn manages reading/writing JSON-RPC frames via a Stream. It does not
// classify messages itself (that is jsonrpc2.Receive's job, spec.md §4.2);
// Conn only owns frame-level I/O and serializes concurrent writers.
type Conn struct {
	stream *Stream
	mu     sync.Mutex // protects concurrent writes and the closed flag
	closed bool
}

// NewConn creates a new connection manager around stream.
func NewConn(stream *Stream) *Conn {
	return &Conn{stream: stream}
}

// ReadMessage blocks until the next frame's raw JSON payload is available,
// or returns an error (io.EOF, a wrapped I/O error) if the connection can no
// longer produce frames. ctx is checked before the blocking read begins;
// once started, the read itself is not preemptible (the single reader
// goroutine design of spec.md §5 means this is always safe to call from one
// place at a time).
func (c *Conn) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := c.stream.ReadMessage()
	if err != nil {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		return nil, err
	}
	return data, nil
}

// WriteMessage encodes and sends msg (a *RequestMessage, *ResponseMessage,
// or *NotificationMessage) as a single frame. Safe for concurrent use; the
// Output Handler is still responsible for ordering (spec.md §4.7), this
// method only guarantees each individual frame is atomic and that Write
// fails fast once the connection is known closed.
func (c *Conn) WriteMessage(ctx context.Context, msg interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return io.ErrClosedPipe
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return c.stream.WriteMessage(msg)
}

// Close closes the underlying stream and marks the connection closed.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.stream.Close()
}

// Closed reports whether the connection has observed a fatal read error or
// an explicit Close. A failed write does not mark it closed.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
