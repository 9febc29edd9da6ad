package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/liaozhiqiu/lsprpc/invoke"
	"github.com/liaozhiqiu/lsprpc/protocol"
)

// syncBuffer is a mutex-guarded byte sink, used where a test needs to
// inspect output concurrently with the Output Handler's own writer
// goroutine still appending to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	var buf bytes.Buffer
	return NewServer(WithStream(&buf), WithLogger(zap.NewNop()))
}

func TestServer_InitializeLifecycle(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, stateUninitialized, s.currentState())

	raw, err := json.Marshal(protocol.InitializeParams{})
	require.NoError(t, err)

	result, err := s.handleInitialize(context.Background(), raw)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, stateInitializing, s.currentState())

	_, err = s.handleInitialized(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, stateRunning, s.currentState())

	_, err = s.handleShutdown(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, stateShutdown, s.currentState())
}

func TestServer_DoubleInitializeRejected(t *testing.T) {
	s := newTestServer(t)
	raw, err := json.Marshal(protocol.InitializeParams{})
	require.NoError(t, err)

	_, err = s.handleInitialize(context.Background(), raw)
	require.NoError(t, err)

	_, err = s.handleInitialize(context.Background(), raw)
	require.Error(t, err)
}

func TestServer_ShutdownIsIdempotent(t *testing.T) {
	s := newTestServer(t)
	_, err := s.handleShutdown(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, stateShutdown, s.currentState())

	_, err = s.handleShutdown(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, stateShutdown, s.currentState())
}

func TestServer_DetermineServerCapabilitiesReflectsRegisteredHandlers(t *testing.T) {
	s := newTestServer(t)

	noop := func(ctx context.Context, params json.RawMessage) (interface{}, error) { return nil, nil }

	_, err := s.RegisterRequest(protocol.MethodTextDocumentHover, noop)
	require.NoError(t, err)
	_, err = s.RegisterRequest(protocol.MethodTextDocumentCompletion, noop)
	require.NoError(t, err)
	_, err = s.RegisterNotification(protocol.MethodTextDocumentDidChange, "textDocument", noop)
	require.NoError(t, err)

	caps := s.determineServerCapabilities()
	require.NotNil(t, caps.HoverProvider)
	require.NotNil(t, caps.CompletionProvider)
	require.False(t, caps.CompletionProvider.ResolveProvider)
	require.NotNil(t, caps.TextDocumentSync)
	require.Nil(t, caps.DefinitionProvider)
}

func TestServer_RegisterRequestRejectsDuplicates(t *testing.T) {
	s := newTestServer(t)
	noop := func(ctx context.Context, params json.RawMessage) (interface{}, error) { return nil, nil }

	_, err := s.RegisterRequest("foo", noop)
	require.NoError(t, err)

	_, err = s.RegisterRequest("foo", noop)
	require.Error(t, err)
}

func TestServer_ClientReturnsUsableFacade(t *testing.T) {
	s := newTestServer(t)
	require.NotNil(t, s.Client())
	require.IsType(t, &invoke.Client{}, s.Client())
}

// A real shutdown request, dispatched through the actual Invoker and its
// in-flight table (not called directly as a bare handler), must still get
// exactly one reply: the shutdown handler's own Handle is live in the
// table for the whole duration of its invocation, and Invoker.Shutdown
// must not cancel it out from under itself before it can respond.
//
// The read side is an io.Pipe rather than a bytes.Reader deliberately: a
// bytes.Reader would hit io.EOF (and trigger Input's own teardown, a
// second, unrelated Shutdown sweep) the instant the single frame is
// consumed, racing the shutdown handler's goroutine instead of exercising
// the self-exclusion this test is meant to verify. The pipe stays open
// until the reply has been observed.
func TestServer_ShutdownRequestGetsReplyThroughRealInvoker(t *testing.T) {
	body := frame(`{"jsonrpc":"2.0","id":1,"method":"shutdown"}`)

	pr, pw := io.Pipe()
	out := &syncBuffer{}
	stream := ReadWriter{Reader: pr, Writer: out}

	s := NewServer(WithStream(stream), WithLogger(zap.NewNop()))

	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(context.Background()) }()

	_, err := pw.Write(body)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"id":1`)
	}, time.Second, 5*time.Millisecond, "shutdown request never received a reply")

	require.NotContains(t, out.String(), `"error"`)
	require.Equal(t, stateShutdown, s.currentState())

	require.NoError(t, pw.Close())
	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run never returned after the pipe closed")
	}
}
