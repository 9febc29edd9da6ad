package invoke

import "sync"

// groupTable implements the serial-group ordering of spec.md §4.4: handler
// invocations sharing a non-empty group key run in the order their requests
// were dispatched, one at a time; invocations outside any group, or in
// different groups, run fully concurrently. It is the same "baton passing"
// technique as nextRequest/thisRequest in
// golang.org/x/tools/internal/jsonrpc2.
type groupTable struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

func newGroupTable() *groupTable {
	return &groupTable{tails: make(map[string]chan struct{})}
}

// join reserves the next turn in group and returns the channel to wait on
// before starting (already closed if this call is first-in-group, so the
// caller's select always has a ready case instead of blocking on a nil
// channel) and the advance func to call once this invocation has finished
// its ordered portion of work, handing the baton to whoever joined next.
//
// An empty group key means "no ordering constraint"; join still returns a
// pre-closed wait channel so callers can treat grouped and ungrouped
// invocations identically.
func (g *groupTable) join(group string) (wait <-chan struct{}, advance func()) {
	if group == "" {
		ready := make(chan struct{})
		close(ready)
		return ready, func() {}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	prev := g.tails[group]
	next := make(chan struct{})
	g.tails[group] = next

	if prev == nil {
		prev = closedChan
	}
	return prev, func() { close(next) }
}

var closedChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()
