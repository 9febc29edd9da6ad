package invoke

import (
	"sync"

	"github.com/liaozhiqiu/lsprpc/jsonrpc2"
)

// table is the in-flight request table of spec.md §5: every Handle that has
// been dispatched but not yet reached a terminal state, keyed by the
// request's wire id. It is deliberately fine-grained (a sync.RWMutex guarding
// a plain map, rather than golang.org/x/sync's more heavyweight primitives)
// since the hot path is independent lookups by distinct ids, not one shared
// sequence — the same trade-off akhenakh-lspgo's Server makes for its own
// state, and the one golang.org/x/tools/internal/jsonrpc2's Conn.handling
// makes for request cancellation.
type table struct {
	mu   sync.RWMutex
	byID map[jsonrpc2.ID]*Handle
}

func newTable() *table {
	return &table{byID: make(map[jsonrpc2.ID]*Handle)}
}

func (t *table) insert(h *Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[h.ID] = h
}

func (t *table) remove(id jsonrpc2.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byID, id)
}

func (t *table) lookup(id jsonrpc2.ID) (*Handle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.byID[id]
	return h, ok
}

// each calls fn for a snapshot of every handle currently in the table. The
// lock is released before fn runs, so fn may call back into the table.
func (t *table) each(fn func(*Handle)) {
	t.mu.RLock()
	handles := make([]*Handle, 0, len(t.byID))
	for _, h := range t.byID {
		handles = append(handles, h)
	}
	t.mu.RUnlock()

	for _, h := range handles {
		fn(h)
	}
}
