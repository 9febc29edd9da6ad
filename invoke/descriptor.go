// Package invoke implements the Handler Registry, Request Invoker, and
// Response Router components of spec.md §4.3–§4.5: lookup and lifetime of
// handler bindings, execution of inbound requests under cancellation,
// timeout, and content-modified policies, and correlation of outbound
// requests to their eventual responses.
package invoke

import (
	"context"
	"encoding/json"
)

// Kind distinguishes request handlers (which must reply exactly once) from
// notification handlers (fire-and-forget, spec.md §3 "Handler Descriptor").
type Kind int

const (
	KindRequest Kind = iota
	KindNotification
)

// HandlerFunc is the shape every registered handler takes. ctx carries this
// invocation's cancellation signal (peer cancel, content-modified, timeout,
// or shutdown — spec.md §4.4); params is the request's raw JSON params,
// left undecoded so each handler can unmarshal into its own type.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (result interface{}, err error)

// Descriptor is a registration record: a method name, its kind, the
// handler to invoke, and an optional serial group (spec.md §3 "Handler
// Descriptor"). Descriptors sharing a non-empty SerialGroup execute in
// on-the-wire order relative to one another (spec.md §4.4).
type Descriptor struct {
	Method      string
	Kind        Kind
	Handler     HandlerFunc
	SerialGroup string
}
