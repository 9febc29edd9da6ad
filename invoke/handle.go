package invoke

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/liaozhiqiu/lsprpc/jsonrpc2"
)

// State is a Handle's position in the state machine of spec.md §4.4:
//
//	Created → Queued → Running → Completed        (success)
//	                 → Running → Cancelled         (any cancel source)
//	       (Queued  → Cancelled)                   (cancel before start)
//
// Cancelled and Completed are terminal; every transition is atomic (CAS).
type State int32

const (
	StateCreated State = iota
	StateQueued
	StateRunning
	StateCompleted
	StateCancelled
)

// CancelReason identifies which of spec.md §4.4's four cancel sources won
// the race to cancel a Handle. The reason decides the reply's error code
// (§4.4 "Policy precedence ... its reply kind is used").
type CancelReason int32

const (
	ReasonNone CancelReason = iota
	ReasonPeerCancel
	ReasonContentModified
	ReasonTimeout
	ReasonShutdown
)

// Handle is the Request Invocation Handle of spec.md §3: it exists in the
// in-flight table exactly while the request has neither produced a result
// nor been observed cancelled or timed out.
type Handle struct {
	ID         jsonrpc2.ID
	Method     string
	Descriptor *Descriptor
	StartedAt  time.Time

	// URI is the single textDocument.uri this request's params named, if
	// any, captured at dispatch time so content-modified cancellation
	// (spec.md §4.4 source 2) can match against it without re-parsing
	// params against the handler's own type.
	URI string

	ctx    context.Context
	cancel context.CancelCauseFunc

	state  atomic.Int32
	reason atomic.Int32
	timer  *time.Timer

	done chan struct{}
}

func newHandle(id jsonrpc2.ID, method string, desc *Descriptor, uri string, parent context.Context) *Handle {
	ctx, cancel := context.WithCancelCause(parent)
	return &Handle{
		ID:         id,
		Method:     method,
		Descriptor: desc,
		StartedAt:  time.Now(),
		URI:        uri,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Context returns the Handle's cancellation context; handler bodies should
// treat it as the cooperative cancellation signal (spec.md §5).
func (h *Handle) Context() context.Context { return h.ctx }

// State returns the handle's current position in the state machine.
func (h *Handle) State() State { return State(h.state.Load()) }

// Reason returns which cancel source won, valid once State() ==
// StateCancelled.
func (h *Handle) Reason() CancelReason { return CancelReason(h.reason.Load()) }

// Done closes once the handle reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.done }

// setTimer installs the timeout watchdog (spec.md §4.4 source 3). Called at
// most once, from the Invoker immediately after the handle is created.
func (h *Handle) setTimer(d time.Duration) {
	if d <= 0 {
		return
	}
	h.timer = time.AfterFunc(d, func() {
		h.tryCancel(ReasonTimeout)
	})
}

// transition moves the handle from any non-terminal state to target exactly
// once; it is the single compare-and-swap loop spec.md's Design Notes §9(b)
// calls for ("an atomic terminal-state field with CAS on transition").
func (h *Handle) transition(target State, reason CancelReason) bool {
	for {
		cur := State(h.state.Load())
		if cur == StateCompleted || cur == StateCancelled {
			return false
		}
		if h.state.CompareAndSwap(int32(cur), int32(target)) {
			if target == StateCancelled {
				h.reason.Store(int32(reason))
			}
			return true
		}
	}
}

// advance moves the handle between two non-terminal states (e.g. Queued ->
// Running); unlike transition it fails (without side effects) if the
// current state does not match from, which lets callers detect a
// concurrent cancellation that raced them to the punch.
func (h *Handle) advance(from, to State) bool {
	return h.state.CompareAndSwap(int32(from), int32(to))
}

// tryCancel transitions the handle to Cancelled with reason if it has not
// already reached a terminal state. It returns true iff this call won the
// race — later callers are coalesced into a no-op (spec.md §4.4 "Policy
// precedence").
func (h *Handle) tryCancel(reason CancelReason) bool {
	won := h.transition(StateCancelled, reason)
	if won {
		if h.timer != nil {
			h.timer.Stop()
		}
		h.cancel(cancelError(reason))
		close(h.done)
	}
	return won
}

// tryComplete transitions the handle to Completed if it has not already
// been cancelled. It returns false if a cancel source won first, in which
// case the caller must discard whatever result the handler produced
// (spec.md §8: "After cancelling id i, any result the handler later
// produces is discarded").
func (h *Handle) tryComplete() bool {
	won := h.transition(StateCompleted, ReasonNone)
	if won {
		if h.timer != nil {
			h.timer.Stop()
		}
		h.cancel(nil)
		close(h.done)
	}
	return won
}

type cancelCause struct{ reason CancelReason }

func (c cancelCause) Error() string {
	switch c.reason {
	case ReasonPeerCancel:
		return "invoke: cancelled by peer $/cancelRequest"
	case ReasonContentModified:
		return "invoke: cancelled by content modification"
	case ReasonTimeout:
		return "invoke: cancelled by request timeout"
	case ReasonShutdown:
		return "invoke: cancelled by shutdown"
	default:
		return "invoke: cancelled"
	}
}

func cancelError(reason CancelReason) error { return cancelCause{reason: reason} }
