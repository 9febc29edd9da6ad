package invoke

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/liaozhiqiu/lsprpc/jsonrpc2"
)

// Sender is the minimal write-side dependency Client needs; *server.Output
// satisfies it (spec.md §4.7 "the Output Handler is the only component
// that writes to the wire").
type Sender interface {
	Send(ctx context.Context, msg interface{}) error
}

// Client is the outbound request/notification façade of spec.md §4.5: it
// assigns ids via the Router, hands the framed message to the Output
// Handler, and blocks the caller until either a response arrives or ctx is
// done.
type Client struct {
	router *Router
	sender Sender
}

// NewClient builds a Client that allocates ids from router and writes
// through sender.
func NewClient(router *Router, sender Sender) *Client {
	return &Client{router: router, sender: sender}
}

// Invoke sends method as an outbound request and blocks until its response
// arrives, ctx is cancelled, or the connection is torn down. A cancelled ctx
// deregisters the pending call so a late response can't leak a goroutine's
// worth of waiting, but does not itself send a $/cancelRequest to the peer —
// callers wanting that must send it themselves (spec.md §4.5 leaves
// cooperative outbound cancellation to the caller).
func (c *Client) Invoke(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, errors.Wrap(err, "invoke: marshal params")
	}

	id := c.router.NextID()
	call := c.router.Register(id)

	req := &jsonrpc2.RequestMessage{
		JSONRPC: jsonrpc2.Version,
		ID:      id,
		Method:  method,
		Params:  raw,
	}
	if err := c.sender.Send(ctx, req); err != nil {
		c.router.Deregister(id)
		return nil, errors.Wrap(err, "invoke: send request")
	}

	select {
	case resp := <-call.result:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		c.router.Deregister(id)
		return nil, ctx.Err()
	}
}

// Notify sends method as a fire-and-forget notification.
func (c *Client) Notify(ctx context.Context, method string, params interface{}) error {
	raw, err := marshalParams(params)
	if err != nil {
		return errors.Wrap(err, "invoke: marshal params")
	}

	ntf := &jsonrpc2.NotificationMessage{
		JSONRPC: jsonrpc2.Version,
		Method:  method,
		Params:  raw,
	}
	return errors.Wrap(c.sender.Send(ctx, ntf), "invoke: send notification")
}

func marshalParams(params interface{}) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(params)
}
