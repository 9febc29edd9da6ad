package invoke

import "github.com/liaozhiqiu/lsprpc/jsonrpc2"

// replyForCancel maps a winning CancelReason to the error reply the Request
// Invoker sends back, per spec.md §4.4's policy precedence table. Shutdown
// is the one source with no reply at all: the connection is going away, and
// spec.md §4.4 carves it out as the sole exception to "every request gets
// exactly one reply" (spec.md §8).
func replyForCancel(reason CancelReason) *jsonrpc2.ErrorObject {
	switch reason {
	case ReasonPeerCancel:
		return jsonrpc2.NewError(jsonrpc2.RequestCancelled, "request cancelled")
	case ReasonTimeout:
		return jsonrpc2.NewError(jsonrpc2.RequestCancelled, "request exceeded its maximum timeout")
	case ReasonContentModified:
		return jsonrpc2.NewError(jsonrpc2.ContentModified, "content modified since request was made")
	case ReasonShutdown:
		return nil
	default:
		return jsonrpc2.NewError(jsonrpc2.InternalError, "cancelled")
	}
}
