package invoke

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/liaozhiqiu/lsprpc/jsonrpc2"
)

func newTestHandle() *Handle {
	return newHandle(jsonrpc2.NewNumberID(1), "foo", &Descriptor{Method: "foo"}, "", context.Background())
}

func TestHandle_TryCancelWinsOnce(t *testing.T) {
	h := newTestHandle()

	require.True(t, h.tryCancel(ReasonPeerCancel))
	require.False(t, h.tryCancel(ReasonTimeout))

	require.Equal(t, StateCancelled, h.State())
	require.Equal(t, ReasonPeerCancel, h.Reason())

	select {
	case <-h.Done():
	default:
		t.Fatal("Done channel should be closed after a winning cancel")
	}

	var cc cancelCause
	require.True(t, errors.As(context.Cause(h.Context()), &cc))
	require.Equal(t, ReasonPeerCancel, cc.reason)
}

func TestHandle_TryCompleteLosesToEarlierCancel(t *testing.T) {
	h := newTestHandle()

	require.True(t, h.tryCancel(ReasonTimeout))
	require.False(t, h.tryComplete())
	require.Equal(t, StateCancelled, h.State())
}

func TestHandle_TryCompleteWinsWhenNotCancelled(t *testing.T) {
	h := newTestHandle()

	require.True(t, h.tryComplete())
	require.Equal(t, StateCompleted, h.State())
	require.Nil(t, context.Cause(h.Context()))

	// A later cancel attempt is a no-op.
	require.False(t, h.tryCancel(ReasonPeerCancel))
	require.Equal(t, StateCompleted, h.State())
}

func TestHandle_AdvanceFailsOnConcurrentCancel(t *testing.T) {
	h := newTestHandle()
	require.True(t, h.advance(StateCreated, StateQueued))

	require.True(t, h.tryCancel(ReasonShutdown))

	// The race loser must observe the state no longer matches "Queued".
	require.False(t, h.advance(StateQueued, StateRunning))
}

func TestHandle_TimerFiresTimeout(t *testing.T) {
	h := newTestHandle()
	h.setTimer(10 * time.Millisecond)

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timer never cancelled the handle")
	}

	require.Equal(t, StateCancelled, h.State())
	require.Equal(t, ReasonTimeout, h.Reason())
}

func TestHandle_ZeroDurationTimerNeverFires(t *testing.T) {
	h := newTestHandle()
	h.setTimer(0)

	select {
	case <-h.Done():
		t.Fatal("handle should not have been cancelled by a disabled timer")
	case <-time.After(50 * time.Millisecond):
	}
	require.Equal(t, StateCreated, h.State())
}
