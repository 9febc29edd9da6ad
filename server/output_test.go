package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/liaozhiqiu/lsprpc/jsonrpc2"
)

// failingWriter fails every Write after the first n successful writes.
type failingWriter struct {
	buf       bytes.Buffer
	allow     int
	writeErr  error
}

func (f *failingWriter) Read(p []byte) (int, error) { return f.buf.Read(p) }

func (f *failingWriter) Write(p []byte) (int, error) {
	if f.allow <= 0 {
		return 0, f.writeErr
	}
	f.allow--
	return f.buf.Write(p)
}

func newTestOutput(t *testing.T, queueLen int) (*Output, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	stream := jsonrpc2.NewStream(&buf, nil)
	conn := jsonrpc2.NewConn(stream)
	return NewOutput(conn, queueLen, nil), &buf
}

func TestOutput_SendWritesInFIFOOrder(t *testing.T) {
	out, buf := newTestOutput(t, 8)

	for i := 0; i < 5; i++ {
		msg := &jsonrpc2.NotificationMessage{JSONRPC: jsonrpc2.Version, Method: fmt.Sprintf("tick%d", i)}
		require.NoError(t, out.Send(context.Background(), msg))
	}

	last := -1
	for i := 0; i < 5; i++ {
		pos := bytes.Index(buf.Bytes(), []byte(fmt.Sprintf(`"tick%d"`, i)))
		require.Greater(t, pos, last)
		last = pos
	}
}

func TestOutput_SendFailsFastAfterWriteFailure(t *testing.T) {
	fw := &failingWriter{allow: 0, writeErr: errors.New("broken pipe")}
	stream := jsonrpc2.NewStream(fw, nil)
	conn := jsonrpc2.NewConn(stream)
	out := NewOutput(conn, 8, nil)

	err := out.Send(context.Background(), &jsonrpc2.NotificationMessage{JSONRPC: jsonrpc2.Version, Method: "tick"})
	require.Error(t, err)

	// The writer goroutine has terminated; a subsequent Send must fail fast
	// rather than block forever on a dead queue.
	require.Eventually(t, func() bool {
		return out.Send(context.Background(), &jsonrpc2.NotificationMessage{JSONRPC: jsonrpc2.Version, Method: "tick"}) != nil
	}, time.Second, 5*time.Millisecond)
}

func TestOutput_StopDrainsBeforeDeadline(t *testing.T) {
	out, _ := newTestOutput(t, 8)
	require.NoError(t, out.Send(context.Background(), &jsonrpc2.NotificationMessage{JSONRPC: jsonrpc2.Version, Method: "tick"}))

	err := out.Stop(time.Second)
	require.NoError(t, err)
}

func TestOutput_StopIsIdempotent(t *testing.T) {
	out, _ := newTestOutput(t, 8)
	require.NoError(t, out.Stop(time.Second))
	require.NoError(t, out.Stop(time.Second))
}
