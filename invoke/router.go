package invoke

import (
	"sync"
	"sync/atomic"

	"github.com/liaozhiqiu/lsprpc/jsonrpc2"
)

// pendingCall is one outbound request awaiting its response.
type pendingCall struct {
	result chan *jsonrpc2.ResponseMessage
}

// Router is the Response Router of spec.md §4.5: it allocates ids for
// outbound requests and correlates each arriving response back to its
// waiting caller. Registration happens before the request is written to the
// wire (spec.md §4.5 "registers the pending call before the request is
// written"), the same ordering golang.org/x/tools/internal/jsonrpc2's
// Conn.Call uses to avoid a response racing its own registration.
type Router struct {
	seq int64 // atomic; monotonically increasing outbound id source

	mu      sync.Mutex
	pending map[jsonrpc2.ID]*pendingCall
	closeErr error
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{pending: make(map[jsonrpc2.ID]*pendingCall)}
}

// NextID allocates the next outbound request id. Ids are never reused within
// a connection's lifetime (spec.md §4.5).
func (r *Router) NextID() jsonrpc2.ID {
	n := atomic.AddInt64(&r.seq, 1)
	return jsonrpc2.NewNumberID(n)
}

// Register records a pending call for id, to be resolved when its response
// arrives. It must be called before the request bytes are handed to the
// Output Handler.
func (r *Router) Register(id jsonrpc2.ID) *pendingCall {
	call := &pendingCall{result: make(chan *jsonrpc2.ResponseMessage, 1)}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closeErr != nil {
		// Connection already torn down; resolve immediately so the
		// caller doesn't block forever waiting on a channel nothing
		// will ever write to.
		call.result <- &jsonrpc2.ResponseMessage{
			JSONRPC: jsonrpc2.Version,
			ID:      id,
			Error:   jsonrpc2.NewError(jsonrpc2.InternalError, r.closeErr.Error()),
		}
		return call
	}

	r.pending[id] = call
	return call
}

// Deregister removes a pending call without resolving it, used when the
// caller's own context is cancelled before a response ever arrives.
func (r *Router) Deregister(id jsonrpc2.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
}

// Resolve delivers resp to its waiting caller, if any. A response whose id
// matches nothing pending is discarded silently (spec.md §4.5 "a response
// whose id does not match any pending call is discarded without effect"),
// since that is the normal outcome of a late response arriving after its
// caller gave up.
func (r *Router) Resolve(resp *jsonrpc2.ResponseMessage) {
	r.mu.Lock()
	call, ok := r.pending[resp.ID]
	if ok {
		delete(r.pending, resp.ID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	call.result <- resp
}

// CloseWithError rejects every pending call with err, and causes any future
// Register to fail fast the same way. Called once the underlying connection
// is known broken (spec.md §4.5: outbound calls must not hang forever past
// connection loss).
func (r *Router) CloseWithError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closeErr != nil {
		return
	}
	r.closeErr = err

	for id, call := range r.pending {
		call.result <- &jsonrpc2.ResponseMessage{
			JSONRPC: jsonrpc2.Version,
			ID:      id,
			Error:   jsonrpc2.NewError(jsonrpc2.InternalError, err.Error()),
		}
	}
	r.pending = make(map[jsonrpc2.ID]*pendingCall)
}
