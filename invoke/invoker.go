package invoke

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/liaozhiqiu/lsprpc/jsonrpc2"
)

// ReplyFunc delivers a request's final outcome to the Output Handler. It
// deliberately does not take a context: a reply for id must still be
// deliverable after that id's own Handle.Context() has been cancelled,
// since cancellation of the handler is exactly the condition under which a
// RequestCancelled reply needs to go out (spec.md §4.4).
type ReplyFunc func(id jsonrpc2.ID, result json.RawMessage, errObj *jsonrpc2.ErrorObject)

// Invoker is the Request Invoker of spec.md §4.4: it dispatches inbound
// requests and notifications against the Handler Registry, enforcing
// cancellation, timeout, content-modified abandonment, serial-group
// ordering, and a global concurrency ceiling.
type Invoker struct {
	registry *Registry
	reply    ReplyFunc
	logger   *zap.Logger

	table  *table
	groups *groupTable
	sem    *semaphore.Weighted

	maxTimeout      time.Duration
	contentModified bool
}

// NewInvoker builds an Invoker. concurrency <= 0 means unbounded (no
// semaphore is used); maxTimeout <= 0 means requests never time out on
// their own.
func NewInvoker(registry *Registry, reply ReplyFunc, concurrency int64, maxTimeout time.Duration, contentModified bool, logger *zap.Logger) *Invoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	inv := &Invoker{
		registry:        registry,
		reply:           reply,
		logger:          logger,
		table:           newTable(),
		groups:          newGroupTable(),
		maxTimeout:      maxTimeout,
		contentModified: contentModified,
	}
	if concurrency > 0 {
		inv.sem = semaphore.NewWeighted(concurrency)
	}
	return inv
}

// Dispatch begins executing an inbound request. It returns immediately; the
// handler body runs on its own goroutine. The Handle is inserted into the
// in-flight table before Dispatch returns, so a $/cancelRequest notification
// processed by a later call to DispatchNotification on the same input
// thread is guaranteed to observe it (spec.md §5's happens-before
// guarantee).
func (inv *Invoker) Dispatch(ctx context.Context, req *jsonrpc2.RequestMessage) {
	desc, ok := inv.registry.LookupRequest(req.Method)
	if !ok {
		inv.reply(req.ID, nil, jsonrpc2.NewError(jsonrpc2.MethodNotFound, "method not found: "+req.Method))
		return
	}

	h := newHandle(req.ID, req.Method, desc, captureURI(req.Params), contextWithRequestID(ctx, req.ID))
	h.setTimer(inv.maxTimeout)
	inv.table.insert(h)
	h.advance(StateCreated, StateQueued)

	go inv.run(h, req.Params)
}

// DispatchNotification fans a notification out to every registered
// notification handler, and additionally implements the two internal
// cancellation triggers of spec.md §4.4: $/cancelRequest (peer cancel) and,
// when enabled, textDocument/didChange and textDocument/didClose
// (content-modified abandonment).
func (inv *Invoker) DispatchNotification(ctx context.Context, ntf *jsonrpc2.NotificationMessage) {
	if ntf.Method == MethodCancelRequest {
		inv.handleCancelRequest(ntf.Params)
		return
	}

	if inv.contentModified && (ntf.Method == "textDocument/didChange" || ntf.Method == "textDocument/didClose") {
		if uri := captureURI(ntf.Params); uri != "" {
			inv.cancelByURI(uri)
		}
	}

	for _, desc := range inv.registry.LookupNotifications(ntf.Method) {
		wait, advance := inv.groups.join(desc.SerialGroup)
		go inv.runNotification(ctx, desc, ntf.Params, wait, advance)
	}
}

func (inv *Invoker) runNotification(ctx context.Context, desc *Descriptor, params json.RawMessage, wait <-chan struct{}, advance func()) {
	defer advance()
	select {
	case <-wait:
	case <-ctx.Done():
		return
	}
	if _, err := desc.Handler(ctx, params); err != nil {
		inv.logger.Warn("notification handler returned error",
			zap.String("method", desc.Method), zap.Error(err))
	}
}

// MethodCancelRequest is the internal method name the Invoker intercepts
// itself, rather than dispatching through the Handler Registry (spec.md
// §4.4).
const MethodCancelRequest = "$/cancelRequest"

type cancelRequestParams struct {
	ID jsonrpc2.ID `json:"id"`
}

func (inv *Invoker) handleCancelRequest(params json.RawMessage) {
	var p cancelRequestParams
	if err := json.Unmarshal(params, &p); err != nil {
		inv.logger.Warn("malformed $/cancelRequest", zap.Error(err))
		return
	}
	if h, ok := inv.table.lookup(p.ID); ok {
		h.tryCancel(ReasonPeerCancel)
	}
}

type textDocumentURIParams struct {
	TextDocument struct {
		URI string `json:"uri"`
	} `json:"textDocument"`
}

func captureURI(params json.RawMessage) string {
	if len(params) == 0 {
		return ""
	}
	var p textDocumentURIParams
	if err := json.Unmarshal(params, &p); err != nil {
		return ""
	}
	return p.TextDocument.URI
}

func (inv *Invoker) cancelByURI(uri string) {
	inv.table.each(func(h *Handle) {
		if h.URI == uri {
			h.tryCancel(ReasonContentModified)
		}
	})
}

// run executes one dispatched request's handler, honoring serial-group
// order and the concurrency ceiling, then delivers exactly one reply. A
// request cancelled while its handler runs is answered at once; it gives up
// its group turn and concurrency slot then, even if the handler body has
// not returned yet.
func (inv *Invoker) run(h *Handle, params json.RawMessage) {
	wait, advance := inv.groups.join(h.Descriptor.SerialGroup)

	select {
	case <-wait:
	case <-h.ctx.Done():
		inv.finishCancelled(h)
		// Hand the turn on only once every predecessor has finished, so
		// later members of the group still never overlap with them.
		go func() {
			<-wait
			advance()
		}()
		return
	}
	defer advance()

	if inv.sem != nil {
		if err := inv.sem.Acquire(h.ctx, 1); err != nil {
			inv.finishCancelled(h)
			return
		}
		defer inv.sem.Release(1)
	}

	if !h.advance(StateQueued, StateRunning) {
		inv.finishCancelled(h)
		return
	}

	type outcome struct {
		result interface{}
		err    error
	}
	out := make(chan outcome, 1)
	go func() {
		result, err := h.Descriptor.Handler(h.ctx, params)
		out <- outcome{result, err}
	}()

	var o outcome
	select {
	case o = <-out:
	case <-h.Done():
		// Cancelled while running: reply now rather than wait for a
		// handler that may ignore its cancellation.
	}
	result, err := o.result, o.err

	if !h.tryComplete() {
		// A cancel source won the race while the handler was running;
		// the result (if any) is discarded per spec.md §8.
		inv.finishCancelled(h)
		return
	}

	inv.table.remove(h.ID)

	if err != nil {
		errObj, ok := jsonrpc2.AsErrorObject(err)
		if !ok {
			errObj = jsonrpc2.NewError(jsonrpc2.InternalError, err.Error())
		}
		inv.reply(h.ID, nil, errObj)
		return
	}

	raw, merr := json.Marshal(result)
	if merr != nil {
		inv.reply(h.ID, nil, jsonrpc2.NewError(jsonrpc2.InternalError, "marshal result: "+merr.Error()))
		return
	}
	inv.reply(h.ID, raw, nil)
}

func (inv *Invoker) finishCancelled(h *Handle) {
	inv.table.remove(h.ID)
	if errObj := replyForCancel(h.Reason()); errObj != nil {
		inv.reply(h.ID, nil, errObj)
	}
}

// Shutdown cancels every in-flight request with ReasonShutdown, except
// excludeID (if valid). Per spec.md §4.4, shutdown-cancelled requests
// receive no reply at all; this is the one case where the "exactly one
// reply" property is deliberately waived, since the connection is going
// away regardless.
//
// excludeID exists for the shutdown request's own handle: a handler
// implementing the LSP shutdown method is expected to call Shutdown from
// inside its own invocation, and without this exclusion the sweep would
// cancel the very request asking for it, racing its own tryComplete and
// silently swallowing the one reply the peer is waiting on to send exit
// (spec.md §8's "exactly one response per request id"). Pass the zero
// jsonrpc2.ID (invalid, never equal to a real request id) when no handle
// should be excluded, e.g. when tearing down the whole connection.
func (inv *Invoker) Shutdown(excludeID jsonrpc2.ID) {
	inv.table.each(func(h *Handle) {
		if h.ID == excludeID {
			return
		}
		h.tryCancel(ReasonShutdown)
	})
}

type requestIDContextKey struct{}

func contextWithRequestID(ctx context.Context, id jsonrpc2.ID) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

// RequestIDFromContext returns the id of the request currently executing
// on ctx, if ctx was derived from a Handle's context (spec.md §5). Handlers
// that need to act on their own request id — notably the shutdown
// handler, which must exclude itself from Invoker.Shutdown's cancellation
// sweep — retrieve it this way rather than through a changed HandlerFunc
// signature.
func RequestIDFromContext(ctx context.Context) (jsonrpc2.ID, bool) {
	id, ok := ctx.Value(requestIDContextKey{}).(jsonrpc2.ID)
	return id, ok
}
