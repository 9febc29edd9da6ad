package server

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/liaozhiqiu/lsprpc/invoke"
	"github.com/liaozhiqiu/lsprpc/jsonrpc2"
	"github.com/liaozhiqiu/lsprpc/protocol"
)

// Server wires the transport core's components — Conn, Registry, Invoker,
// Router, Input, Output — into the LSP lifecycle (uninitialized →
// initializing → running → shutdown) described by spec.md §6 and §7.
type Server struct {
	id       uuid.UUID
	conn     *jsonrpc2.Conn
	registry *invoke.Registry
	invoker  *invoke.Invoker
	router   *invoke.Router
	output   *Output
	input    *Input
	client   *invoke.Client
	logger   *zap.Logger

	state        atomic.Value // serverState
	shutdownOnce sync.Once

	mu         sync.RWMutex
	initParams *protocol.InitializeParams
	initResult *protocol.InitializeResult
}

type serverState int

const (
	stateUninitialized serverState = iota
	stateInitializing
	stateRunning
	stateShutdown
)

// NewServer creates a server communicating over the configured stream
// (stdin/stdout by default).
func NewServer(opts ...Option) *Server {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	connID := uuid.New()
	logger := o.logger.With(zap.String("conn_id", connID.String()))

	stream := jsonrpc2.NewStream(o.stream, logger)
	conn := jsonrpc2.NewConn(stream)
	registry := invoke.NewRegistry()
	router := invoke.NewRouter()
	output := NewOutput(conn, o.outputQueueLen, logger)

	s := &Server{
		id:       connID,
		conn:     conn,
		registry: registry,
		router:   router,
		output:   output,
		logger:   logger,
	}
	s.state.Store(stateUninitialized)

	s.invoker = invoke.NewInvoker(registry, s.reply, o.concurrency, o.maxRequestTimeout, o.supportsContentModified, logger)
	s.input = NewInput(conn, s.invoker, router, output, logger)
	s.client = invoke.NewClient(router, output)

	s.registerDefaultHandlers()
	return s
}

// Client returns the outbound request/notification façade (spec.md §4.5),
// for use by handlers that need to call back into the peer (e.g. publishing
// diagnostics, requesting workspace edits).
func (s *Server) Client() *invoke.Client { return s.client }

// Register binds desc in the Handler Registry. See invoke.Registry.Register.
func (s *Server) Register(desc invoke.Descriptor) (invoke.Registration, error) {
	return s.registry.Register(desc)
}

// RegisterRequest is a convenience wrapper for registering a request
// handler, matching the common case where handlers don't need a serial
// group.
func (s *Server) RegisterRequest(method string, handler invoke.HandlerFunc) (invoke.Registration, error) {
	return s.registry.Register(invoke.Descriptor{Method: method, Kind: invoke.KindRequest, Handler: handler})
}

// RegisterNotification is a convenience wrapper for registering a
// notification handler. serialGroup may be empty for unordered fan-out.
func (s *Server) RegisterNotification(method, serialGroup string, handler invoke.HandlerFunc) (invoke.Registration, error) {
	return s.registry.Register(invoke.Descriptor{Method: method, Kind: invoke.KindNotification, Handler: handler, SerialGroup: serialGroup})
}

func (s *Server) registerDefaultHandlers() {
	mustRegister := func(reg invoke.Registration, err error) {
		if err != nil {
			s.logger.Fatal("failed to register default handler", zap.Error(err))
		}
	}
	mustRegister(s.RegisterRequest(protocol.MethodInitialize, s.handleInitialize))
	mustRegister(s.RegisterNotification(protocol.MethodInitialized, "", s.handleInitialized))
	mustRegister(s.RegisterRequest(protocol.MethodShutdown, s.handleShutdown))
	mustRegister(s.RegisterNotification(protocol.MethodExit, "", s.handleExit))
	mustRegister(s.RegisterNotification(protocol.MethodProgress, "", s.handleProgress))
}

// Run drives the Input Handler's read loop until the connection closes or
// ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("server starting")
	defer s.logger.Info("server stopped")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.conn.Close()
		case <-done:
		}
	}()

	return s.input.Run(ctx)
}

// Stop tears down the server: it marks every in-flight request cancelled
// and drains the Output Handler's queue up to deadline.
func (s *Server) Stop(deadline time.Duration) error {
	s.invoker.Shutdown(jsonrpc2.ID{})
	return s.output.Stop(deadline)
}

func (s *Server) currentState() serverState {
	st, _ := s.state.Load().(serverState)
	return st
}

// reply implements invoke.ReplyFunc, delivering a request's outcome through
// the Output Handler.
func (s *Server) reply(id jsonrpc2.ID, result json.RawMessage, errObj *jsonrpc2.ErrorObject) {
	resp := &jsonrpc2.ResponseMessage{JSONRPC: jsonrpc2.Version, ID: id}
	switch {
	case errObj != nil:
		resp.Error = errObj
	case result != nil:
		resp.Result = result
	default:
		resp.Result = json.RawMessage("null")
	}
	if err := s.output.Send(context.Background(), resp); err != nil {
		s.logger.Warn("failed to send response", zap.Stringer("id", idStringer{id}), zap.Error(err))
	}
}

type idStringer struct{ id jsonrpc2.ID }

func (s idStringer) String() string { return s.id.String() }

// --- Standard handlers ---

func (s *Server) handleInitialize(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params protocol.InitializeParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, jsonrpc2.NewError(jsonrpc2.InvalidParams, "invalid initialize params: "+err.Error())
		}
	}

	if !s.state.CompareAndSwap(stateUninitialized, stateInitializing) {
		return nil, jsonrpc2.NewError(jsonrpc2.InvalidRequest, "server already initialized or shutting down")
	}

	s.mu.Lock()
	s.initParams = &params
	s.mu.Unlock()

	result := &protocol.InitializeResult{
		Capabilities: s.determineServerCapabilities(),
		ServerInfo: &protocol.ServerInfo{
			Name:    "lsprpc",
			Version: "0.1.0",
		},
	}

	s.mu.Lock()
	s.initResult = result
	s.mu.Unlock()

	return result, nil
}

func (s *Server) determineServerCapabilities() protocol.ServerCapabilities {
	caps := protocol.ServerCapabilities{}

	hasOpen := len(s.registry.LookupNotifications(protocol.MethodTextDocumentDidOpen)) > 0
	hasChange := len(s.registry.LookupNotifications(protocol.MethodTextDocumentDidChange)) > 0
	hasClose := len(s.registry.LookupNotifications(protocol.MethodTextDocumentDidClose)) > 0
	hasSave := len(s.registry.LookupNotifications(protocol.MethodTextDocumentDidSave)) > 0

	if hasChange || hasClose || hasSave {
		syncOpts := &protocol.TextDocumentSyncOptions{
			OpenClose: hasOpen || hasClose,
			Change:    protocol.SyncFull,
		}
		if hasSave {
			syncOpts.Save = &protocol.SaveOptions{IncludeText: false}
		}
		caps.TextDocumentSync = syncOpts
	}

	if _, ok := s.registry.LookupRequest(protocol.MethodTextDocumentHover); ok {
		caps.HoverProvider = &protocol.HoverOptions{}
	}
	if _, ok := s.registry.LookupRequest(protocol.MethodTextDocumentCompletion); ok {
		opts := &protocol.CompletionOptions{}
		if _, ok := s.registry.LookupRequest(protocol.MethodCompletionItemResolve); ok {
			opts.ResolveProvider = true
		}
		caps.CompletionProvider = opts
	}
	if _, ok := s.registry.LookupRequest(protocol.MethodTextDocumentDefinition); ok {
		caps.DefinitionProvider = &protocol.DefinitionOptions{}
	}
	if _, ok := s.registry.LookupRequest(protocol.MethodTextDocumentCodeAction); ok {
		opts := &protocol.CodeActionOptions{}
		if _, ok := s.registry.LookupRequest(protocol.MethodCodeActionResolve); ok {
			opts.ResolveProvider = true
		}
		caps.CodeActionProvider = opts
	}

	return caps
}

func (s *Server) handleInitialized(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	if s.state.CompareAndSwap(stateInitializing, stateRunning) {
		s.logger.Info("server running")
	} else {
		s.logger.Warn("initialized notification received in unexpected state", zap.Int("state", int(s.currentState())))
	}
	return nil, nil
}

func (s *Server) handleShutdown(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	// The shutdown request's own Handle is still live in the in-flight
	// table at this point (it only leaves on tryComplete, after this
	// handler returns), so the cancellation sweep below must exclude it
	// by id or it would cancel itself before it can reply.
	ownID, _ := invoke.RequestIDFromContext(ctx)

	s.shutdownOnce.Do(func() {
		s.state.CompareAndSwap(stateRunning, stateShutdown)
		s.state.CompareAndSwap(stateInitializing, stateShutdown)
		s.state.CompareAndSwap(stateUninitialized, stateShutdown)
		s.logger.Info("server shutting down")
		s.invoker.Shutdown(ownID)
	})
	return nil, nil
}

func (s *Server) handleExit(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	s.logger.Info("exit notification received", zap.Bool("clean", s.currentState() == stateShutdown))
	s.output.Stop(5 * time.Second)
	s.conn.Close()
	return nil, nil
}

func (s *Server) handleProgress(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p protocol.ProgressParams
	if err := json.Unmarshal(raw, &p); err != nil {
		s.logger.Debug("malformed $/progress notification", zap.Error(err))
	}
	return nil, nil
}
