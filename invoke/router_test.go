package invoke

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/liaozhiqiu/lsprpc/jsonrpc2"
)

func TestRouter_NextIDIsMonotonicAndNeverReused(t *testing.T) {
	r := NewRouter()
	seen := map[jsonrpc2.ID]bool{}
	for i := 0; i < 100; i++ {
		id := r.NextID()
		require.False(t, seen[id], "id %v reused", id)
		seen[id] = true
	}
}

func TestRouter_RegisterThenResolveDeliversResponse(t *testing.T) {
	r := NewRouter()
	id := r.NextID()
	call := r.Register(id)

	resp := &jsonrpc2.ResponseMessage{JSONRPC: jsonrpc2.Version, ID: id, Result: []byte(`42`)}
	r.Resolve(resp)

	got := <-call.result
	require.Equal(t, resp, got)
}

func TestRouter_ResolveUnknownIDIsDiscardedSilently(t *testing.T) {
	r := NewRouter()
	// No panic, no block: resolving an id nobody registered is a no-op.
	r.Resolve(&jsonrpc2.ResponseMessage{JSONRPC: jsonrpc2.Version, ID: jsonrpc2.NewNumberID(999)})
}

func TestRouter_DeregisterPreventsLateResolveFromBlocking(t *testing.T) {
	r := NewRouter()
	id := r.NextID()
	r.Register(id)
	r.Deregister(id)

	// Resolve after Deregister must not panic, and must not deliver
	// anywhere since the pending entry is gone.
	r.Resolve(&jsonrpc2.ResponseMessage{JSONRPC: jsonrpc2.Version, ID: id})
}

func TestRouter_CloseWithErrorRejectsAllPending(t *testing.T) {
	r := NewRouter()
	idA := r.NextID()
	idB := r.NextID()
	callA := r.Register(idA)
	callB := r.Register(idB)

	closeErr := errors.New("connection lost")
	r.CloseWithError(closeErr)

	respA := <-callA.result
	respB := <-callB.result

	require.NotNil(t, respA.Error)
	require.Equal(t, jsonrpc2.InternalError, respA.Error.Code)
	require.NotNil(t, respB.Error)
	require.Equal(t, jsonrpc2.InternalError, respB.Error.Code)
}

func TestRouter_RegisterAfterCloseFailsFast(t *testing.T) {
	r := NewRouter()
	r.CloseWithError(errors.New("connection lost"))

	id := r.NextID()
	call := r.Register(id)

	resp := <-call.result
	require.NotNil(t, resp.Error)
	require.Equal(t, jsonrpc2.InternalError, resp.Error.Code)
}
