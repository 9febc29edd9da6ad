package server

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/liaozhiqiu/lsprpc/invoke"
	"github.com/liaozhiqiu/lsprpc/jsonrpc2"
)

// Input is the Input Handler of spec.md §4.6: it owns the single read loop,
// driving Framer → Receiver → {Invoker | Response Router}. Dispatch returns
// immediately after scheduling a handler; Input never blocks the framer on
// handler execution.
type Input struct {
	conn    *jsonrpc2.Conn
	invoker *invoke.Invoker
	router  *invoke.Router
	output  *Output
	logger  *zap.Logger

	settle chan *jsonrpc2.ResponseMessage
	done   chan struct{}
}

// NewInput wires an Input Handler over conn, dispatching requests and
// notifications to invoker and routing inbound responses through router.
func NewInput(conn *jsonrpc2.Conn, invoker *invoke.Invoker, router *invoke.Router, output *Output, logger *zap.Logger) *Input {
	if logger == nil {
		logger = zap.NewNop()
	}
	in := &Input{
		conn:    conn,
		invoker: invoker,
		router:  router,
		output:  output,
		logger:  logger,
		settle:  make(chan *jsonrpc2.ResponseMessage, 64),
		done:    make(chan struct{}),
	}
	go in.settleLoop()
	return in
}

// settleLoop delivers inbound responses to the Response Router in the order
// they were received, even though Run may hand them off from different
// frames in a batch (spec.md §4.6: "an internal ordered queue of side-effect
// units ... to guarantee that observers see settlement in the order
// responses were received").
func (in *Input) settleLoop() {
	for resp := range in.settle {
		in.router.Resolve(resp)
	}
}

// Run drives the read loop until the connection ends or ctx is cancelled.
// On any fatal error it tears down outstanding work: in-flight handles are
// cancelled (shutdown reason) and pending outbound calls fail with a
// connection-lost error (spec.md §7 "Framing fatal errors").
func (in *Input) Run(ctx context.Context) error {
	defer close(in.settle)
	defer close(in.done)

	for {
		data, err := in.conn.ReadMessage(ctx)
		if err != nil {
			in.teardown(err)
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}

		batch := jsonrpc2.Receive(data)

		for _, inv := range batch.Invalid {
			resp := inv
			go func() {
				if err := in.output.Send(context.Background(), resp); err != nil {
					in.logger.Warn("failed to send malformed-input reply", zap.Error(err))
				}
			}()
		}

		for _, item := range batch.Items {
			switch item.Kind {
			case jsonrpc2.ItemRequest:
				in.invoker.Dispatch(ctx, item.Request)
			case jsonrpc2.ItemNotification:
				in.invoker.DispatchNotification(ctx, item.Notification)
			case jsonrpc2.ItemResponse:
				in.settle <- item.Response
			}
		}
	}
}

func (in *Input) teardown(err error) {
	in.invoker.Shutdown(jsonrpc2.ID{})
	in.router.CloseWithError(err)
}

// Done closes once Run has returned.
func (in *Input) Done() <-chan struct{} { return in.done }
