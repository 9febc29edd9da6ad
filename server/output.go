package server

import (
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/liaozhiqiu/lsprpc/jsonrpc2"
)

// Output is the Output Handler of spec.md §4.7: a single-writer queue that
// serializes outbound frames in strict FIFO completion order. Multiple
// goroutines (request replies, outbound client calls, server-initiated
// notifications) call Send concurrently; Output guarantees each frame is
// written to the wire atomically and in the order Send was called.
type Output struct {
	conn   *jsonrpc2.Conn
	logger *zap.Logger

	queue chan outboundFrame
	done  chan struct{}

	stopOnce sync.Once
	failErr  atomicError
}

type outboundFrame struct {
	msg    interface{}
	result chan error
}

// NewOutput starts the Output Handler's writer goroutine over conn. queueLen
// bounds how many outbound frames may be buffered before Send blocks.
func NewOutput(conn *jsonrpc2.Conn, queueLen int, logger *zap.Logger) *Output {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueLen <= 0 {
		queueLen = 64
	}
	o := &Output{
		conn:   conn,
		logger: logger,
		queue:  make(chan outboundFrame, queueLen),
		done:   make(chan struct{}),
	}
	go o.loop()
	return o
}

func (o *Output) loop() {
	defer close(o.done)
	for frame := range o.queue {
		err := o.conn.WriteMessage(context.Background(), frame.msg)
		if err != nil {
			o.failErr.set(err)
			frame.result <- err
			o.drainWithError(err)
			return
		}
		frame.result <- nil
	}
}

// drainWithError fails every frame still queued once a partial write failure
// has terminated the writer goroutine (spec.md §4.7: "partial failures on
// the underlying sink terminate the output handler and fail subsequent
// sends").
func (o *Output) drainWithError(err error) {
	for {
		select {
		case frame, ok := <-o.queue:
			if !ok {
				return
			}
			frame.result <- err
		default:
			return
		}
	}
}

// Send enqueues msg for writing and blocks until it has been written (or the
// attempt has failed). ctx cancellation only aborts the wait for this call's
// own turn; it does not cancel frames already handed to the writer.
func (o *Output) Send(ctx context.Context, msg interface{}) error {
	if err := o.failErr.get(); err != nil {
		return err
	}

	frame := outboundFrame{msg: msg, result: make(chan error, 1)}

	select {
	case o.queue <- frame:
	case <-o.done:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-frame.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the queue and waits up to deadline for already-enqueued
// frames to drain, per spec.md §4.7 ("Stop is idempotent and drains the
// queue up to a bounded deadline before closing"). If the deadline elapses
// first, Stop returns context.DeadlineExceeded (combined with any earlier
// write failure); frames still queued are not failed by Stop and may still
// be written afterwards.
func (o *Output) Stop(deadline time.Duration) error {
	var stopErr error
	o.stopOnce.Do(func() {
		close(o.queue)
		select {
		case <-o.done:
			stopErr = o.failErr.get()
		case <-time.After(deadline):
			stopErr = multierr.Append(context.DeadlineExceeded, o.failErr.get())
		}
	})
	return stopErr
}

type atomicError struct {
	mu  sync.Mutex
	err error
}

func (a *atomicError) set(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err == nil {
		a.err = err
	}
}

func (a *atomicError) get() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}
